package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"packetSync/internal/config"
)

// runAll hosts the watcher and the gateway in one process. Without an MQTT
// broker the in-memory bus still connects the two ends, so a single node
// serves live updates end to end.
func runAll(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, eventBus, runner, expirer, err := buildWatchPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	defer eventBus.Close()

	go func() {
		if err := expirer.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("expirer stopped", zap.Error(err))
		}
	}()
	go func() {
		if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("watcher stopped", zap.Error(err))
			stop()
		}
	}()

	return serveGateway(ctx, cfg, store, eventBus, logger)
}
