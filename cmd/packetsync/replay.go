package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"packetSync/internal/config"
	"packetSync/internal/projector"
)

// runReplay re-applies one packet's ledger entries through the projector.
// Events already projected come back as duplicates; only the ones an
// earlier ingestion failure left out take effect.
func runReplay(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	packetID, _ := cmd.Flags().GetString("packet")
	if packetID == "" {
		return fmt.Errorf("--packet is required")
	}
	limit, _ := cmd.Flags().GetInt("limit")

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	eventBus, err := newBus(cfg, logger)
	if err != nil {
		return err
	}
	defer eventBus.Close()

	proj := projector.New(projector.Config{
		LockShards:            cfg.LockShards,
		LockWait:              cfg.LockWait,
		SingleClaimPerAddress: cfg.SingleClaim,
	}, store, eventBus, logger)

	events, err := store.PacketEvents(ctx, packetID, limit)
	if err != nil {
		return fmt.Errorf("load ledger for %s: %w", packetID, err)
	}
	if len(events) == 0 {
		logger.Warn("no ledger entries", zap.String("packet_id", packetID))
		return nil
	}

	applied, duplicates, rejections := 0, 0, 0
	for _, ev := range events {
		res, err := proj.Apply(ctx, ev)
		if err != nil {
			return fmt.Errorf("replay %s: %w", ev.EventID, err)
		}
		switch res.Outcome {
		case projector.OutcomeApplied:
			applied++
		case projector.OutcomeDuplicate:
			duplicates++
		case projector.OutcomeRejected:
			rejections++
		}
	}

	logger.Info("replay complete",
		zap.String("packet_id", packetID),
		zap.Int("events", len(events)),
		zap.Int("applied", applied),
		zap.Int("duplicates", duplicates),
		zap.Int("rejections", rejections),
	)
	return nil
}
