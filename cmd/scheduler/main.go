// Package main runs the interview scheduler: the four timed tasks plus the
// ops HTTP API (health, stats, manual maintenance, metrics), until SIGINT or
// SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"placement/internal/app"
	"placement/internal/config"
	"placement/internal/core"
	"placement/internal/db"
	notifcore "placement/internal/notifications/core"
	"placement/internal/scheduler"
	"placement/internal/types"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig(config.ProviderForEnv())
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("placement scheduler starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	for _, register := range []func(prometheus.Registerer) error{
		notifcore.RegisterMetrics,
		scheduler.RegisterMetrics,
		core.RegisterMetrics,
	} {
		if err := register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	sched := scheduler.New(scheduler.Options{
		Clock:      types.RealClock{},
		History:    a.History,
		RunOnStart: cfg.Scheduler.RunOnStart,
		Logger:     logger,
	})
	if err := scheduler.RegisterTasks(sched, cfg.Scheduler, a.Services); err != nil {
		return fmt.Errorf("registering tasks: %w", err)
	}

	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating ops server: %w", err)
	}
	srv.Stats = a.Stats
	srv.Maintenance = sched
	srv.HealthProbes = []core.HealthProbe{
		db.HealthProbe{DB: a.Pool},
		core.MailProbe{Transport: a.Transport},
	}
	srv.MountRoutes()
	httpSrv := srv.HTTPServer()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("ops server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := sched.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("ops server shutdown error", "error", err)
		}
		return sched.Stop(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("placement scheduler stopped cleanly")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
