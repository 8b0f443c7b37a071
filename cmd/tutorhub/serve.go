package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var noScheduler bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, !noScheduler)
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Do not run background jobs in this process")
	return cmd
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run background jobs only",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd)
		},
	}
}

// runServe поднимает API и, если разрешено, планировщик в том же процессе.
func runServe(cmd *cobra.Command, withScheduler bool) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	appLog, slogger := setupLogger(cfg)
	slogger.Info("starting Tutor Hub API",
		"version", cfg.App.Version,
		"env", string(cfg.App.Environment),
		"addr", cfg.HTTPAddr(),
	)

	a, err := newApp(ctx, cfg, appLog, slogger)
	if err != nil {
		return err
	}
	defer a.Close()

	if withScheduler && cfg.Scheduler.Enabled {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		defer func() { _ = a.scheduler.Stop() }()
	}

	server := a.httpServer()
	errCh := server.StartAsync()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		slogger.Info("received shutdown signal")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	start := time.Now()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		slogger.Error("http shutdown failed", "error", err)
	}
	slogger.Info("shutdown completed", "took", time.Since(start).String())
	return nil
}

// runWorker выполняет только фоновые задачи.
func runWorker(cmd *cobra.Command) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	appLog, slogger := setupLogger(cfg)
	slogger.Info("starting Tutor Hub worker",
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
		"daily_practice_cron", cfg.Scheduler.DailyPracticeCron,
	)

	a, err := newApp(ctx, cfg, appLog, slogger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	for _, j := range a.scheduler.ListJobs() {
		slogger.Info("job scheduled", "job", j.Name, "schedule", j.Schedule, "next_run", j.NextRun)
	}

	<-ctx.Done()
	slogger.Info("received shutdown signal, waiting for running jobs...")
	if err := a.scheduler.Stop(); err != nil {
		slogger.Warn("scheduler stop", "error", err)
	}
	slogger.Info("shutdown completed")
	return nil
}
