package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Snapshot is a point-in-time capture of session state, tagged with the
// journal position it was taken at.
type Snapshot struct {
	Seq      int64           `json:"seq"` // last journal id covered
	TsUnix   int64           `json:"ts"`  // creation time (Unix seconds)
	Strategy string          `json:"strategy"`
	State    json.RawMessage `json:"state"` // engine.Session.Snapshot output
}

// SnapshotManager handles saving and loading snapshots.
type SnapshotManager struct {
	dir string
}

// NewSnapshotManager creates a new snapshot manager.
// dir: directory to store snapshot files.
func NewSnapshotManager(dir string) *SnapshotManager {
	return &SnapshotManager{dir: dir}
}

// CreateSnapshot wraps an encoded session state.
func CreateSnapshot(seq int64, strategy string, state []byte, now time.Time) *Snapshot {
	return &Snapshot{
		Seq:      seq,
		TsUnix:   now.Unix(),
		Strategy: strategy,
		State:    append(json.RawMessage(nil), state...),
	}
}

// Save writes a snapshot to disk and returns its path.
func (sm *SnapshotManager) Save(snap *Snapshot) (string, error) {
	if err := os.MkdirAll(sm.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	path := filepath.Join(sm.dir, fmt.Sprintf("snapshot_%d_%d.json", snap.Seq, snap.TsUnix))
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	// readers never see a half-written file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	slog.Info("Snapshot saved",
		slog.Int64("seq", snap.Seq),
		slog.String("path", path))
	return path, nil
}

type snapFile struct {
	path string
	seq  int64
	ts   int64
}

// list returns snapshot files newest first.
func (sm *SnapshotManager) list() ([]snapFile, error) {
	entries, err := os.ReadDir(sm.dir)
	if err != nil {
		return nil, err
	}

	var files []snapFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var f snapFile
		if _, err := fmt.Sscanf(entry.Name(), "snapshot_%d_%d.json", &f.seq, &f.ts); err != nil {
			continue
		}
		f.path = filepath.Join(sm.dir, entry.Name())
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].seq != files[j].seq {
			return files[i].seq > files[j].seq
		}
		return files[i].ts > files[j].ts
	})
	return files, nil
}

// LoadLatest loads the most recent snapshot from disk.
// Returns nil if no snapshot exists.
func (sm *SnapshotManager) LoadLatest() (*Snapshot, error) {
	files, err := sm.list()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot dir: %w", err)
	}
	if len(files) == 0 {
		return nil, nil
	}

	data, err := os.ReadFile(files[0].path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	slog.Info("Snapshot loaded",
		slog.Int64("seq", snap.Seq),
		slog.String("path", files[0].path))
	return &snap, nil
}

// Cleanup removes old snapshots, keeping only the latest N.
func (sm *SnapshotManager) Cleanup(keepCount int) error {
	files, err := sm.list()
	if err != nil {
		return err
	}
	for i := max(keepCount, 0); i < len(files); i++ {
		if err := os.Remove(files[i].path); err != nil {
			slog.Warn("Failed to remove old snapshot", slog.String("path", files[i].path))
		} else {
			slog.Info("Removed old snapshot", slog.String("path", files[i].path))
		}
	}
	return nil
}
