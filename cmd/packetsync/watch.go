package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"packetSync/internal/bus"
	"packetSync/internal/chain"
	"packetSync/internal/config"
	"packetSync/internal/packet"
	"packetSync/internal/projector"
	"packetSync/internal/storage/postgres"
	"packetSync/internal/watcher"
)

func runWatch(cmd *cobra.Command, _ []string) error {
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

	logger.Info("watcher start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("contract", cfg.Contract),
		zap.Uint64("from", cfg.FromBlock),
		zap.Uint64("to", cfg.ToBlock),
		zap.Uint64("confirmations", cfg.Confirmations),
		zap.Uint64("batch_size", cfg.BatchSize),
	)

	return runner.Run(ctx)
}

func buildWatchPipeline(ctx context.Context, cfg config.Config, logger *zap.Logger) (*postgres.Store, bus.Bus, *watcher.Runner, *projector.Expirer, error) {
	if cfg.RPCURL == "" {
		return nil, nil, nil, nil, fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.Contract) {
		return nil, nil, nil, nil, fmt.Errorf("invalid contract address: %q", cfg.Contract)
	}

	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	eventBus, err := newBus(cfg, logger)
	if err != nil {
		store.Close()
		return nil, nil, nil, nil, err
	}

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		store.Close()
		eventBus.Close()
		return nil, nil, nil, nil, fmt.Errorf("connect rpc: %w", err)
	}

	decoder, err := packet.NewDecoder()
	if err != nil {
		store.Close()
		eventBus.Close()
		chainClient.Close()
		return nil, nil, nil, nil, err
	}

	proj := projector.New(projector.Config{
		LockShards:            cfg.LockShards,
		LockWait:              cfg.LockWait,
		SingleClaimPerAddress: cfg.SingleClaim,
	}, store, eventBus, logger)

	ingestor := watcher.NewIngestor(store, proj, cfg.MaxRetries, cfg.RetryBackoff, logger)

	runner := watcher.NewRunner(watcher.RunConfig{
		FromBlock:         cfg.FromBlock,
		ToBlock:           cfg.ToBlock,
		Contract:          common.HexToAddress(cfg.Contract),
		BatchSize:         cfg.BatchSize,
		Confirmations:     cfg.Confirmations,
		PollInterval:      cfg.PollInterval,
		StateName:         cfg.StateName,
		CheckpointPath:    cfg.Checkpoint,
		CheckpointEnabled: cfg.CheckpointEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, chainClient, decoder, ingestor, store, logger)

	expirer := projector.NewExpirer(proj, store, cfg.ExpireInterval, logger)

	return store, eventBus, runner, expirer, nil
}
