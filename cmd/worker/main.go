package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"campus/internal/app"
	"campus/internal/config"
	"campus/internal/jobs"
	"campus/internal/reporting"
)

// Worker runs the periodic auto-completion sweep and drains queued
// sweep/completion jobs.
func main() {
	cfg := config.Load()
	reporting.Setup(reporting.Options{
		Level:        cfg.LogLevel,
		Format:       cfg.LogFormat,
		Env:          cfg.Env,
		RollbarToken: cfg.RollbarToken,
	})
	defer reporting.Wait()

	if err := cfg.Validate(); err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Open(ctx, cfg)
	if err != nil {
		reporting.Error(nil, "worker startup failed", err)
		reporting.Wait()
		os.Exit(1)
	}
	defer deps.Close()

	if cfg.QueueBackend == "memory" {
		slog.Warn("memory queue is process-local; the worker only runs the sweep")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return jobs.RunSweep(gctx, deps.Service, cfg.SweepInterval, cfg.SweepTimeout)
	})
	if cfg.QueueBackend != "memory" {
		g.Go(func() error {
			return jobs.Consume(gctx, deps.Queue, deps.Service, cfg.SweepTimeout)
		})
	}

	slog.Info("worker started", "sweep_interval", cfg.SweepInterval)
	if err := g.Wait(); err != nil {
		reporting.Error(nil, "worker stopped with error", err)
		return
	}
	slog.Info("worker stopped")
}
