// Package main - точка входа Tutor Hub.
//
// Один бинарник, несколько команд:
//
//	tutorhub serve            - HTTP API (и планировщик, если включён)
//	tutorhub worker           - только фоновые задачи
//	tutorhub migrate up|down|status
//	tutorhub job list|run <name> - список задач и разовый запуск
//	tutorhub route "<text>"   - показать решение роутера для сообщения
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tutorhub/tutor-hub/config"
	"github.com/tutorhub/tutor-hub/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "tutorhub: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd собирает дерево команд.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tutorhub",
		Short:         "Multi-subject tutoring orchestrator",
		Long:          "Tutor Hub routes student messages to subject tutors, tracks engagement and alerts teachers.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("env-file", "", "Path to a .env file (overrides ENV_FILE)")

	root.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newMigrateCmd(),
		newJobCmd(),
		newRouteCmd(),
	)
	return root
}

// loadConfig читает конфигурацию с учётом флага --env-file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("env-file"); path != "" {
		if err := os.Setenv("ENV_FILE", path); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// setupLogger настраивает оба логгера: прикладной logger.Logger и slog для
// инфраструктуры. В текстовом режиме slog пишет через TextHandler.
func setupLogger(cfg *config.Config) (*logger.Logger, *slog.Logger) {
	level := logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		level = logger.LevelDebug
	}

	appLog := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     level,
		AddCaller: cfg.App.Debug,
	}).With(
		logger.String("app", cfg.App.Name),
		logger.String("version", cfg.App.Version),
	)

	var slogger *slog.Logger
	if cfg.Observability.LogFormat == "text" {
		slogger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level.SlogLevel()}))
	} else {
		slogger = appLog.Slog()
	}
	slog.SetDefault(slogger)

	return appLog, slogger
}
