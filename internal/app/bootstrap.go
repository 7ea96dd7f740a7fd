package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"bytra_go/backtest"
	"bytra_go/internal/engine"
	"bytra_go/internal/execution"
	"bytra_go/internal/infra"
	"bytra_go/internal/infra/bybit"
	"bytra_go/internal/storage"
	"bytra_go/internal/strategy"
)

// Options are the command line switches.
type Options struct {
	ConfigPath string
	Strategy   string // overrides trading.strategy
	Debug      bool
	Testnet    bool   // forces testnet mode
	Replay     string // recording to play instead of the live stream
	Restore    bool   // rebuild the position from the journal
}

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config    *infra.Config
	Strategy  strategy.Strategy
	Session   *engine.Session
	Backoff   engine.Backoff
	Journal   *storage.Journal
	Snapshots *storage.SnapshotManager
	DataDir   string

	opts    Options
	closers []func() error
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(opts Options) *Bootstrap {
	return &Bootstrap{opts: opts}
}

// Initialize loads configuration and wires every component of the session.
func (b *Bootstrap) Initialize(ctx context.Context) error {
	slog.Info("🚀 Bootstrapping Bytra...")

	// 1. Config (dynamic path resolution, CLI overrides)
	path := b.opts.ConfigPath
	if path == "" {
		path = infra.ResolveConfigPath()
	}
	cfg, err := infra.LoadConfig(path)
	if err != nil {
		return err
	}
	if err := b.applyOptions(cfg); err != nil {
		return err
	}
	b.Config = cfg

	// 2. Workspace: _workspace/data/{mode}, _workspace/logs/{mode}
	mode := cfg.Trading.Mode
	workDir := infra.GetWorkspaceDir()
	dataDir := filepath.Join(workDir, "data", mode)
	logDir := filepath.Join(workDir, "logs", mode)
	for _, dir := range []string{dataDir, logDir} {
		if err := infra.EnsureDir(dir); err != nil {
			return fmt.Errorf("failed to create workspace dir: %w", err)
		}
	}
	b.DataDir = dataDir

	// 3. Logger
	logger, closeLog, err := infra.NewLogger(cfg.Logging, logDir, b.opts.Debug)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	b.closers = append(b.closers, closeLog)
	slog.Info("Using strategy", slog.String("strategy", cfg.Trading.Strategy), slog.String("mode", mode))

	// 4. Single instance per workspace
	unlock, err := infra.CreateLockFile(workDir)
	if err != nil {
		return err
	}
	b.closers = append(b.closers, func() error { unlock(); return nil })

	// 5. Journal and snapshots
	journalPath := infra.ResolvePath(dataDir, cfg.Storage.Journal)
	journal, err := storage.OpenJournal(journalPath)
	if err != nil {
		return err
	}
	b.Journal = journal
	b.closers = append(b.closers, journal.Close)
	b.Snapshots = storage.NewSnapshotManager(infra.ResolvePath(dataDir, cfg.Storage.SnapshotDir))
	slog.Info("✅ Journal initialized (WAL-mode)", slog.String("path", journalPath))

	// 6. Strategy
	strat, err := strategy.NewRegistry().New(cfg.Trading.Strategy, cfg.StrategySettings())
	if err != nil {
		return err
	}
	b.Strategy = strat

	// 7. Exchange, gateway, transport
	session, err := b.wire(cfg, strat)
	if err != nil {
		return err
	}
	b.Session = session

	if b.opts.Restore {
		if _, err := backtest.RestorePosition(ctx, journal, session.Tracker()); err != nil {
			return err
		}
	}

	now := time.Now()
	for k, v := range map[string]string{
		"mode":       mode,
		"strategy":   cfg.Trading.Strategy,
		"version":    cfg.App.Version,
		"started_at": now.UTC().Format(time.RFC3339),
	} {
		if err := journal.UpsertMetadata(ctx, k, v, now); err != nil {
			slog.Warn("Metadata write failed", slog.String("key", k), slog.Any("error", err))
		}
	}

	slog.Info("✨ Bootstrap complete",
		slog.String("symbol", strat.Profile().Symbol),
		slog.Bool("replay", b.opts.Replay != ""))
	return nil
}

func (b *Bootstrap) applyOptions(cfg *infra.Config) error {
	if b.opts.Testnet {
		cfg.Trading.Mode = infra.ModeTestnet
	}
	if b.opts.Strategy != "" {
		cfg.Trading.Strategy = strings.ToLower(b.opts.Strategy)
	}
	if b.opts.Replay != "" {
		cfg.Trading.Mode = infra.ModePaper
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (b *Bootstrap) wire(cfg *infra.Config, strat strategy.Strategy) (*engine.Session, error) {
	ex := cfg.ActiveExchange()
	ua := infra.GetPlatformUserAgent(cfg.App.Version)
	client := bybit.NewClient(ex, ua)
	b.closers = append(b.closers, func() error { client.Signer().Wipe(); return nil })

	factory := execution.NewExecutionFactory(cfg.Trading.Mode, func() (execution.Gateway, error) {
		if client.Signer() == nil {
			return nil, errors.New("exchange credentials missing")
		}
		return client, nil
	})
	gateway, err := factory.CreateGateway()
	if err != nil {
		return nil, err
	}

	private := cfg.Trading.Mode != infra.ModePaper && ex.HasCredentials()
	codec := bybit.NewCodec(cfg.Session.OrderBookDepth, private)

	deps := engine.Deps{
		Codec:   codec,
		Gateway: gateway,
		Journal: b.Journal,
	}
	if b.opts.Replay != "" {
		deps.Transport = backtest.NewFileReplay(b.opts.Replay, 0)
		b.Backoff = backtest.Once{}
	} else {
		ws := infra.NewWSTransport(ex.WSURL(), bybit.Handshake(codec, nil, 10*time.Second))
		ws.UserAgent = ua
		ws.ReadTimeout = cfg.Session.ReadTimeout
		if private {
			// executions and order updates only come on the authenticated stream
			ws.PrivateURL = ex.WSPrivateURL()
			ws.PrivateHandshake = bybit.Handshake(codec, client.Signer(), 10*time.Second)
			ws.IsPrivate = bybit.IsPrivateTopic
		}
		deps.Transport = ws
		deps.Books = client
		deps.History = client
		b.Backoff = infra.NewReconnectPolicy(cfg.Session)
	}

	return engine.NewSession(engine.Config{
		HeartbeatInterval: cfg.Session.HeartbeatInterval,
		ResyncInterval:    cfg.Session.ResyncInterval,
		ResyncRetry:       cfg.Session.ResyncRetry,
		BookDepth:         cfg.Session.OrderBookDepth,
	}, strat, deps)
}

// Replaying reports whether the session plays a recording.
func (b *Bootstrap) Replaying() bool { return b.opts.Replay != "" }

// SaveSnapshot writes the session state tagged with the journal position
// and prunes old snapshots.
func (b *Bootstrap) SaveSnapshot(ctx context.Context) error {
	if b.Session == nil || b.Snapshots == nil {
		return nil
	}
	state, err := b.Session.Snapshot()
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	var seq int64
	if b.Journal != nil {
		if seq, err = b.Journal.LastID(ctx); err != nil {
			slog.Warn("Journal position unknown", slog.Any("error", err))
		}
	}
	if _, err := b.Snapshots.Save(storage.CreateSnapshot(seq, b.Config.Trading.Strategy, state, time.Now())); err != nil {
		return err
	}
	return b.Snapshots.Cleanup(b.Config.Storage.KeepSnapshots)
}

// DumpState writes the raw session state next to the journal.
func (b *Bootstrap) DumpState(name string) {
	if b.Session == nil {
		return
	}
	b.Session.DumpState(filepath.Join(b.DataDir, name))
}

// Close releases everything Initialize opened, last first.
func (b *Bootstrap) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}
