// Snapview server - periodic desktop captures behind a small HTTP surface
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/snapview/snapview/internal/config"
	"github.com/snapview/snapview/internal/journal"
	"github.com/snapview/snapview/internal/manager"
	"github.com/snapview/snapview/internal/scheduler"
	"github.com/snapview/snapview/internal/server"
)

func main() {
	cfg, err := config.LoadFile(config.DefaultSettings)
	if err != nil {
		slog.Error("cannot load settings", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	target, err := cfg.Target()
	if err != nil {
		logger.Error("invalid capture target", "error", err)
		os.Exit(1)
	}
	policy, err := manager.ParsePolicy(cfg.Policy)
	if err != nil {
		logger.Error("invalid persistence policy", "error", err)
		os.Exit(1)
	}

	// The journal is best-effort; the service runs without it.
	var jrnl *journal.Journal
	if j, err := journal.Open(cfg.JournalPath, logger); err != nil {
		logger.Warn("capture journal disabled", "error", err)
	} else {
		jrnl = j
		defer func() { _ = jrnl.Close() }()
	}

	mgr := manager.New(logger)
	if jrnl != nil {
		mgr.WithRecorder(jrnl)
	}
	mgr.SetDedup(cfg.Dedup)
	if err := mgr.Configure(policy, cfg.OutputDir, target); err != nil {
		logger.Error("cannot configure capture manager", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(logger, mgr, cfg.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := server.New(ctx, logger, mgr, sched, jrnl)
	sched.Start(ctx)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("snapview server starting",
			"addr", cfg.Addr(), "mode", target.Kind.String(), "interval", cfg.Interval)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	// Wait for a signal or a client-requested shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info("signal received, shutting down...")
	case <-srv.ShutdownRequests():
		logger.Info("shutdown requested over http...")
	}

	if sched.Running() {
		sched.Stop()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	logger.Info("shutdown complete")
}

func logLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
