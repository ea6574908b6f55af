package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"NewsCrawler/internal/app"
)

var onceJSON bool

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single crawl cycle and print its statistics",
	RunE:  runOnce,
}

func init() {
	onceCmd.Flags().BoolVar(&onceJSON, "json", false, "print the cycle statistics as JSON")
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	application, err := app.New(ctx, cfg, "", logger)
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

	stats, runErr := application.RunOnce(ctx)
	if stats != nil {
		out := cmd.OutOrStdout()
		if onceJSON {
			if err := writeJSON(out, stats); err != nil {
				return err
			}
		} else {
			fmt.Fprintln(out, renderCycle(stats))
			fmt.Fprintln(out, stats.Summary())
		}
	}
	return runErr
}
