package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"NewsCrawler/internal/app"
	"NewsCrawler/internal/config"
)

const shutdownTimeout = 15 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run crawl cycles on the configured schedule until interrupted",
	RunE:  runScheduler,
}

func runScheduler(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, resolvedConfigPath(), logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := application.Close(closeCtx); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}()

	logger.Info("newscrawler started", zap.String("version", version), zap.Int("sources", len(application.Sources())))
	if err := application.Run(ctx); err != nil {
		logger.Error("application stopped", zap.Error(err))
		return err
	}
	logger.Info("newscrawler stopped")
	return nil
}

// resolvedConfigPath is the file the watcher follows; empty disables hot reload.
func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv(config.ConfigPathEnv)
}
