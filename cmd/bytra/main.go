package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bytra_go/internal/app"
	"bytra_go/internal/engine"
	"bytra_go/internal/infra"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	os.Exit(run())
}

func run() int {
	var opts app.Options
	var pprofAddr string
	flag.StringVar(&opts.Strategy, "strategy", "", "name of the strategy (rsi, ema)")
	flag.BoolVar(&opts.Debug, "debug", false, "enable debug logging")
	flag.BoolVar(&opts.Testnet, "testnet", false, "use the testnet configuration")
	flag.StringVar(&opts.ConfigPath, "config", "", "path to config.yaml")
	flag.StringVar(&opts.Replay, "replay", "", "play a recorded frame file instead of the live stream")
	flag.BoolVar(&opts.Restore, "restore", false, "rebuild the open position from the journal")
	flag.StringVar(&pprofAddr, "pprof", "", "serve pprof on this address, e.g. localhost:6060")
	flag.Parse()
	if opts.Strategy == "" && flag.NArg() > 0 {
		opts.Strategy = flag.Arg(0)
	}

	// 1. Pprof Server (opt-in, for performance profiling)
	if pprofAddr != "" {
		go func() {
			slog.Info("🕵️ Pprof server started", slog.String("addr", pprofAddr))
			if err := http.ListenAndServe(pprofAddr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 2. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. System Bootstrapping
	bootstrap := app.NewBootstrap(opts)
	if err := bootstrap.Initialize(ctx); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, "✗", err)
		bootstrap.Close()
		return 1
	}
	defer bootstrap.Close()

	infra.PrintBanner(bootstrap.Config, bootstrap.Strategy.Profile().Symbol)

	defer func() {
		if r := recover(); r != nil {
			slog.Error("🔥 Panic in program loop", slog.Any("panic", r))
			bootstrap.DumpState("panic_state.json")
			panic(r)
		}
	}()

	// 4. Program Loop
	slog.InfoContext(ctx, "✨ Connecting. Press Ctrl+C to exit.")
	err := engine.Run(ctx, bootstrap.Session, bootstrap.Backoff)

	// 5. Shutdown: pull resting orders, persist state
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if bootstrap.Config.Trading.Mode != infra.ModePaper {
		bootstrap.Session.CancelPending(shutdownCtx)
	}
	if serr := bootstrap.SaveSnapshot(shutdownCtx); serr != nil {
		slog.Warn("Snapshot failed", slog.Any("error", serr))
	}

	switch {
	case err == nil:
		slog.Info("👋 Shut down gracefully")
		return 0
	case bootstrap.Replaying() && errors.Is(err, engine.ErrStreamClosed):
		slog.Info("Replay finished")
		return 0
	default:
		slog.Error("Program loop stopped", slog.Any("error", err))
		return 1
	}
}
