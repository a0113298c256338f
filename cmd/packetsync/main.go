package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"packetSync/internal/bus"
	"packetSync/internal/config"
	"packetSync/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "packetsync",
		Short:        "Real-time red packet claim synchronization",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the chain and project claim events",
		RunE:  runWatch,
	}
	addWatchFlags(watchCmd)
	root.AddCommand(watchCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve live subscriptions and the query API",
		RunE:  runServe,
	}
	addServeFlags(serveCmd)
	root.AddCommand(serveCmd)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run watcher and gateway in one process",
		RunE:  runAll,
	}
	addWatchFlags(runCmd)
	addServeFlags(runCmd)
	root.AddCommand(runCmd)

	replayCmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-apply one packet's ledger entries through the projector",
		RunE:  runReplay,
	}
	replayCmd.Flags().String("packet", "", "packet id to replay")
	replayCmd.Flags().Int("limit", 10000, "maximum ledger entries to replay")
	replayCmd.Flags().Bool("single-claim", true, "reject a second claim from the same address per packet")
	replayCmd.Flags().Int("lock-shards", 256, "per-packet lock shards")
	replayCmd.Flags().Duration("lock-wait", 3*time.Second, "bounded wait for a packet's critical section")
	addSharedFlags(replayCmd)
	root.AddCommand(replayCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addWatchFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "chain RPC URL")
	cmd.Flags().String("contract", "", "red packet contract address")
	cmd.Flags().Uint64("from", 0, "start block (inclusive)")
	cmd.Flags().Uint64("to", 0, "end block (inclusive), 0 means follow the head")
	cmd.Flags().Uint64("confirmations", 3, "blocks to trail behind the head")
	cmd.Flags().Uint64("batch-size", 2000, "blocks per log query")
	cmd.Flags().Duration("poll-interval", 5*time.Second, "head polling cadence")
	cmd.Flags().String("checkpoint", "./data/checkpoint.json", "checkpoint file path")
	cmd.Flags().Bool("checkpoint-enabled", true, "enable file checkpointing")
	cmd.Flags().Int("lock-shards", 256, "per-packet lock shards")
	cmd.Flags().Duration("lock-wait", 3*time.Second, "bounded wait for a packet's critical section")
	cmd.Flags().Bool("single-claim", true, "reject a second claim from the same address per packet")
	cmd.Flags().Duration("expire-interval", 30*time.Second, "expiry sweep cadence")
	cmd.Flags().String("state-name", "packetsync", "watcher state name")
	addSharedFlags(cmd)
}

func addServeFlags(cmd *cobra.Command) {
	cmd.Flags().String("listen", ":8080", "HTTP listen address")
	cmd.Flags().String("auth-secret", "", "shared secret verifying live-connection credentials")
	addSharedFlags(cmd)
}

func addSharedFlags(cmd *cobra.Command) {
	if cmd.Flags().Lookup("pg-dsn") != nil {
		return
	}
	cmd.Flags().String("pg-dsn", "", "Postgres DSN")
	cmd.Flags().String("mqtt-broker", "", "MQTT broker URL for cross-process fan-out")
	cmd.Flags().String("mqtt-client-id", "", "MQTT client id")
	cmd.Flags().String("mqtt-username", "", "MQTT username")
	cmd.Flags().String("mqtt-password", "", "MQTT password")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

func newStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (*postgres.Store, error) {
	store, err := postgres.NewStore(ctx, cfg.PgDSN)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	logger.Info("postgres ready")
	return store, nil
}

func newBus(cfg config.Config, logger *zap.Logger) (bus.Bus, error) {
	if cfg.MQTTBroker == "" {
		logger.Warn("no mqtt broker configured, fan-out is process-local only")
		return bus.NewMemoryBus(logger), nil
	}
	return bus.NewMQTTBus(bus.MQTTConfig{
		Broker:   cfg.MQTTBroker,
		ClientID: cfg.MQTTClientID,
		Username: cfg.MQTTUsername,
		Password: cfg.MQTTPassword,
	}, logger)
}
