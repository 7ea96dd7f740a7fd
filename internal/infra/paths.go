package infra

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// AppName names the per-user data and config directories.
const AppName = "bytra"

const (
	localWorkspace = "_workspace"
	lockName       = "instance.lock"
)

// GetWorkspaceDir returns the root for journals, snapshots and logs.
// BYTRA_HOME wins, then a local _workspace directory, then the per-user
// data directory of the OS.
func GetWorkspaceDir() string {
	if home := os.Getenv("BYTRA_HOME"); home != "" {
		return home
	}
	if fi, err := os.Stat(localWorkspace); err == nil && fi.IsDir() {
		return localWorkspace
	}
	if root := userDataRoot(); root != "" {
		return filepath.Join(root, AppName)
	}
	return localWorkspace
}

// userDataRoot is %AppData% on Windows, Application Support on macOS and
// XDG_DATA_HOME (or ~/.local/share) elsewhere.
func userDataRoot() string {
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		if dir := os.Getenv("APPDATA"); dir != "" {
			return dir
		}
		if home == "" {
			return ""
		}
		return filepath.Join(home, "AppData", "Roaming")
	case "darwin":
		if home == "" {
			return ""
		}
		return filepath.Join(home, "Library", "Application Support")
	case "linux", "freebsd", "openbsd", "netbsd":
		if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
			return dir
		}
		if home == "" {
			return ""
		}
		return filepath.Join(home, ".local", "share")
	}
	return ""
}

// EnsureDir creates path and its parents with 0755.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// CreateLockFile takes the single-instance lock of workDir. The file holds
// the owner's pid; a leftover lock from a crashed run must be removed by hand.
// The returned func releases the lock.
func CreateLockFile(workDir string) (func(), error) {
	path := filepath.Join(workDir, lockName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if errors.Is(err, os.ErrExist) {
		owner := "unknown"
		if b, rerr := os.ReadFile(path); rerr == nil && len(b) > 0 {
			owner = strings.TrimSpace(string(b))
		}
		return nil, fmt.Errorf("another instance is already running (pid %s, lock %s)", owner, path)
	}
	if err != nil {
		return nil, fmt.Errorf("create lock file: %w", err)
	}

	_, werr := f.WriteString(strconv.Itoa(os.Getpid()))
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write lock file: %w", werr)
	}

	return func() { os.Remove(path) }, nil
}

// ResolveConfigPath finds config.yaml: ./configs first, then the per-user
// config directory. When neither exists the local path is returned so the
// loader reports the missing file.
func ResolveConfigPath() string {
	local := filepath.Join("configs", "config.yaml")
	candidates := []string{local}
	if dir, err := os.UserConfigDir(); err == nil {
		candidates = append(candidates, filepath.Join(dir, AppName, "config.yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return local
}

// ResolvePath joins a relative path onto workDir. Absolute and empty paths
// come back unchanged.
func ResolvePath(workDir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workDir, path)
}
