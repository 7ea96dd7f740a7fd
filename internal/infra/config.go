package infra

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"bytra_go/internal/strategy"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// GetPlatformUserAgent builds the User-Agent sent on websocket and REST requests.
func GetPlatformUserAgent(version string) string {
	if version == "" {
		version = "dev"
	}
	return fmt.Sprintf("bytra/%s (%s; %s)", version, runtime.GOOS, runtime.GOARCH)
}

// Trading modes.
const (
	ModePaper   = "paper"
	ModeTestnet = "testnet"
	ModeReal    = "real"
)

// ExchangeConfig is one exchange environment (mainnet or testnet).
type ExchangeConfig struct {
	BaseURL   string  `yaml:"base_url"`
	WSHost    string  `yaml:"ws_host"`
	WSTarget  string  `yaml:"ws_target"`         // public market data stream
	WSPrivate string  `yaml:"ws_private_target"` // authenticated execution/order stream
	APIKey    string  `yaml:"api_key"`
	APISecret string  `yaml:"api_secret"`
	RateLimit float64 `yaml:"rate_limit"` // REST requests per second
	RateBurst int     `yaml:"rate_burst"`
}

// WSURL is the dialable public stream URL.
func (e ExchangeConfig) WSURL() string { return e.wsJoin(e.WSTarget) }

// WSPrivateURL is the dialable private stream URL, empty when unset.
func (e ExchangeConfig) WSPrivateURL() string {
	if e.WSPrivate == "" {
		return ""
	}
	return e.wsJoin(e.WSPrivate)
}

func (e ExchangeConfig) wsJoin(target string) string {
	host := e.WSHost
	if !strings.HasPrefix(host, "ws://") && !strings.HasPrefix(host, "wss://") {
		host = "wss://" + host
	}
	return strings.TrimRight(host, "/") + "/" + strings.TrimLeft(target, "/")
}

// HasCredentials reports whether both key and secret are set.
func (e ExchangeConfig) HasCredentials() bool {
	return e.APIKey != "" && e.APISecret != ""
}

// SessionConfig holds the session timers and reconnect policy.
type SessionConfig struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	ResyncInterval    time.Duration `yaml:"resync_interval"`
	ResyncRetry       time.Duration `yaml:"resync_retry"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
	Backoff           string        `yaml:"backoff"`        // fixed | exponential
	MaxReconnects     int           `yaml:"max_reconnects"` // 0 = retry forever
	OrderBookDepth    int           `yaml:"order_book_depth"`
	ReadTimeout       time.Duration `yaml:"read_timeout"` // 0 = none
}

// LoggingConfig selects level, format and an optional file sink.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text | json
	File   string `yaml:"file"`
}

// StorageConfig locates the journal and state snapshots.
// Relative paths resolve against the workspace directory.
type StorageConfig struct {
	Journal       string `yaml:"journal"`
	SnapshotDir   string `yaml:"snapshot_dir"`
	KeepSnapshots int    `yaml:"keep_snapshots"`
}

// Config holds every setting of the application.
// LoadConfig reads it, then environment variables override secrets.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Trading struct {
		Mode     string `yaml:"mode"`
		Strategy string `yaml:"strategy"`
		Secrets  string `yaml:"secrets_file"` // optional credentials file
	} `yaml:"trading"`

	Exchange struct {
		Bybit        ExchangeConfig `yaml:"bybit"`
		BybitTestnet ExchangeConfig `yaml:"bybit_testnet"`
	} `yaml:"exchange"`

	Strategies map[string]strategy.Settings `yaml:"strategies"`

	Session SessionConfig `yaml:"session"`
	Logging LoggingConfig `yaml:"logging"`
	Storage StorageConfig `yaml:"storage"`
}

// DefaultConfig is used for anything the file leaves out.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.App.Name = "bytra"
	cfg.App.Version = "0.1.0"
	cfg.Trading.Mode = ModePaper
	cfg.Trading.Strategy = "rsi"
	cfg.Exchange.Bybit = ExchangeConfig{
		BaseURL:   "https://api.bybit.com",
		WSHost:    "wss://stream.bybit.com",
		WSTarget:  "/v5/public/inverse",
		WSPrivate: "/v5/private",
		RateLimit: 10,
		RateBurst: 5,
	}
	cfg.Exchange.BybitTestnet = ExchangeConfig{
		BaseURL:   "https://api-testnet.bybit.com",
		WSHost:    "wss://stream-testnet.bybit.com",
		WSTarget:  "/v5/public/inverse",
		WSPrivate: "/v5/private",
		RateLimit: 10,
		RateBurst: 5,
	}
	cfg.Strategies = map[string]strategy.Settings{}
	cfg.Session = SessionConfig{
		HeartbeatInterval: 45 * time.Second,
		ResyncInterval:    3600 * time.Second,
		ResyncRetry:       time.Minute,
		ReconnectDelay:    3 * time.Second,
		Backoff:           BackoffFixed,
		OrderBookDepth:    50,
	}
	cfg.Logging = LoggingConfig{Level: "info", Format: "text", File: "logs.txt"}
	cfg.Storage = StorageConfig{Journal: "journal.db", SnapshotDir: "snapshots", KeepSnapshots: 10}
	return cfg
}

// LoadConfig reads and validates the YAML file at path. A .env file in the
// working directory is loaded first when present.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over the defaults, applies env overrides and validates.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	overrideWithEnv(cfg)
	cfg.Trading.Mode = strings.ToLower(cfg.Trading.Mode)

	if cfg.Trading.Secrets != "" {
		secret, err := LoadSecretConfig(cfg.Trading.Secrets)
		if err != nil {
			return nil, err
		}
		if cfg.Trading.Mode == ModeTestnet {
			secret.Apply(&cfg.Exchange.BybitTestnet)
		} else {
			secret.Apply(&cfg.Exchange.Bybit)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ActiveExchange returns the environment the mode trades on. Paper mode reads
// mainnet market data and never sends orders.
func (c *Config) ActiveExchange() ExchangeConfig {
	if strings.EqualFold(c.Trading.Mode, ModeTestnet) {
		return c.Exchange.BybitTestnet
	}
	return c.Exchange.Bybit
}

// StrategySettings returns the settings block for the selected strategy.
func (c *Config) StrategySettings() strategy.Settings {
	return c.Strategies[strings.ToLower(c.Trading.Strategy)]
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Trading.Mode) {
	case ModePaper, ModeTestnet, ModeReal:
	default:
		return fmt.Errorf("unknown trading mode: %q", c.Trading.Mode)
	}
	if c.Trading.Strategy == "" {
		return fmt.Errorf("trading.strategy is required")
	}

	ex := c.ActiveExchange()
	if ex.WSHost == "" {
		return fmt.Errorf("exchange ws_host is required")
	}
	if !strings.HasPrefix(ex.BaseURL, "http://") && !strings.HasPrefix(ex.BaseURL, "https://") {
		return fmt.Errorf("invalid exchange base_url: %s", ex.BaseURL)
	}
	if !strings.EqualFold(c.Trading.Mode, ModePaper) && !ex.HasCredentials() {
		return fmt.Errorf("%s mode requires api_key and api_secret", c.Trading.Mode)
	}
	if !strings.EqualFold(c.Trading.Mode, ModePaper) && ex.WSPrivate == "" {
		return fmt.Errorf("%s mode requires exchange ws_private_target", c.Trading.Mode)
	}

	s := c.Session
	if s.HeartbeatInterval <= 0 || s.ResyncInterval <= 0 {
		return fmt.Errorf("session intervals must be positive")
	}
	if s.ReadTimeout > 0 && s.ReadTimeout <= s.HeartbeatInterval {
		return fmt.Errorf("read_timeout %s must exceed heartbeat_interval %s", s.ReadTimeout, s.HeartbeatInterval)
	}
	if s.Backoff != BackoffFixed && s.Backoff != BackoffExponential {
		return fmt.Errorf("unknown backoff %q", s.Backoff)
	}
	if s.MaxReconnects < 0 {
		return fmt.Errorf("max_reconnects must not be negative")
	}
	return nil
}

// overrideWithEnv lets environment variables win over the config file.
func overrideWithEnv(cfg *Config) {
	for _, ex := range []*ExchangeConfig{&cfg.Exchange.Bybit, &cfg.Exchange.BybitTestnet} {
		if key := os.Getenv("BYTRA_API_KEY"); key != "" {
			ex.APIKey = key
		}
		if secret := os.Getenv("BYTRA_API_SECRET"); secret != "" {
			ex.APISecret = secret
		}
	}
	if mode := os.Getenv("BYTRA_MODE"); mode != "" {
		cfg.Trading.Mode = mode
	}
}
