package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"packetSync/internal/chain"
	"packetSync/internal/packet"
	"packetSync/internal/storage"
)

// RunConfig holds runtime settings for the chain watcher.
type RunConfig struct {
	// FromBlock is the first block scanned when no resume point exists.
	FromBlock uint64
	// ToBlock bounds the scan; 0 means follow the chain head.
	ToBlock uint64
	// Contract is the red packet contract address.
	Contract common.Address
	// BatchSize is the number of blocks per log query.
	BatchSize uint64
	// Confirmations is how far the watcher trails the head, riding out
	// shallow reorgs before events are ingested.
	Confirmations uint64
	// PollInterval is the head polling cadence in follow mode.
	PollInterval time.Duration
	// StateName keys the resume point in the watcher_state table.
	StateName         string
	CheckpointPath    string
	CheckpointEnabled bool
	MaxRetries        int
	RetryBackoff      time.Duration
}

// Runner streams red packet logs from the chain and feeds them through
// the ingestion pipeline. Delivery to the pipeline is at-least-once; the
// ledger's event id dedup makes redelivery a no-op.
type Runner struct {
	cfg        RunConfig
	chain      *chain.Client
	decoder    *packet.Decoder
	ingestor   *Ingestor
	state      storage.WatcherState
	checkpoint *CheckpointStore
	logger     *zap.Logger
	seen       map[string]struct{}
}

func NewRunner(cfg RunConfig, chainClient *chain.Client, decoder *packet.Decoder, ingestor *Ingestor, state storage.WatcherState, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		chain:      chainClient,
		decoder:    decoder,
		ingestor:   ingestor,
		state:      state,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
		logger:     logger,
		seen:       make(map[string]struct{}),
	}
}

// Run scans from the resume point to ToBlock, or follows the head when
// ToBlock is 0, until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if r.chain == nil {
		return fmt.Errorf("chain client is nil")
	}
	if r.ingestor == nil {
		return fmt.Errorf("ingestor is nil")
	}
	if r.cfg.BatchSize == 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	if r.cfg.Contract == (common.Address{}) {
		return fmt.Errorf("contract address is required")
	}

	from, err := r.resumePoint(ctx)
	if err != nil {
		return err
	}
	follow := r.cfg.ToBlock == 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		to := r.cfg.ToBlock
		if follow {
			head, err := r.latestWithRetry(ctx)
			if err != nil {
				return fmt.Errorf("get latest block: %w", err)
			}
			if head < r.cfg.Confirmations {
				to = 0
			} else {
				to = head - r.cfg.Confirmations
			}
		}

		if from > to {
			if !follow {
				r.logger.Info("caught up", zap.Uint64("from", from), zap.Uint64("to", to))
				return nil
			}
			if err := r.sleep(ctx); err != nil {
				return err
			}
			continue
		}

		windows, err := SplitWindows(from, to, r.cfg.BatchSize)
		if err != nil {
			return err
		}
		for _, w := range windows {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if err := r.processWindow(ctx, w); err != nil {
				return err
			}
			if err := r.saveResumePoint(ctx, w.To); err != nil {
				return err
			}
		}
		from = to + 1

		if !follow && from > r.cfg.ToBlock {
			return nil
		}
	}
}

func (r *Runner) processWindow(ctx context.Context, w BlockWindow) error {
	logs, err := r.filterLogsWithRetry(ctx, w.From, w.To)
	if err != nil {
		return fmt.Errorf("filter logs: %w", err)
	}

	ingested := 0
	for _, lg := range logs {
		if lg.Removed {
			r.logger.Warn("log removed by reorg, skipping",
				zap.String("tx_hash", lg.TxHash.Hex()),
				zap.Uint64("block", lg.BlockNumber),
			)
			continue
		}
		if len(lg.Topics) == 0 || !r.decoder.CanDecode(lg.Topics[0]) {
			continue
		}
		if r.isDuplicate(lg) {
			continue
		}

		ts, err := r.blockTimestampWithRetry(ctx, lg.BlockNumber)
		if err != nil {
			return fmt.Errorf("block timestamp %d: %w", lg.BlockNumber, err)
		}
		ev, err := r.decoder.Decode(lg, time.Unix(int64(ts), 0).UTC())
		if err != nil {
			r.logger.Warn("undecodable log, skipping",
				zap.Error(err),
				zap.String("tx_hash", lg.TxHash.Hex()),
				zap.Uint64("log_index", uint64(lg.Index)),
			)
			continue
		}

		if _, err := r.ingestor.Ingest(ctx, ev); err != nil {
			// surfaced for operator replay, never silently dropped
			return err
		}
		ingested++
	}

	r.logger.Info("window complete",
		zap.Uint64("from", w.From),
		zap.Uint64("to", w.To),
		zap.Int("logs", len(logs)),
		zap.Int("ingested", ingested),
	)
	return nil
}

func (r *Runner) resumePoint(ctx context.Context) (uint64, error) {
	from := r.cfg.FromBlock

	if r.state != nil {
		last, ok, err := r.state.LoadWatcherState(ctx, r.cfg.StateName)
		if err != nil {
			return 0, fmt.Errorf("load watcher state: %w", err)
		}
		if ok && last >= from {
			from = last + 1
		}
	}
	if r.checkpoint != nil {
		cp, ok, err := r.checkpoint.Load()
		if err != nil {
			return 0, err
		}
		if ok && cp.LastProcessedBlock >= from {
			from = cp.LastProcessedBlock + 1
		}
	}
	if from > r.cfg.FromBlock {
		r.logger.Info("resume from saved position", zap.Uint64("from", from))
	}
	return from, nil
}

func (r *Runner) saveResumePoint(ctx context.Context, block uint64) error {
	if r.checkpoint != nil {
		if err := r.checkpoint.Save(block); err != nil {
			return err
		}
	}
	if r.state != nil {
		err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
			return r.state.SaveWatcherState(ctx, r.cfg.StateName, block)
		})
		if err != nil {
			return fmt.Errorf("save watcher state: %w", err)
		}
	}
	return nil
}

func (r *Runner) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = r.chain.FilterLogs(ctx, fromBlock, toBlock, []common.Address{r.cfg.Contract}, r.decoder.Topics())
		if err != nil {
			r.logger.Warn("filter logs failed", zap.Error(err), zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	return logs, err
}

func (r *Runner) blockTimestampWithRetry(ctx context.Context, blockNumber uint64) (uint64, error) {
	var ts uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		ts, err = r.chain.BlockTimestamp(ctx, blockNumber)
		if err != nil {
			r.logger.Warn("block timestamp fetch failed", zap.Error(err), zap.Uint64("block_number", blockNumber))
		}
		return err
	})
	return ts, err
}

func (r *Runner) latestWithRetry(ctx context.Context) (uint64, error) {
	var head uint64
	err := withRetry(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		head, err = r.chain.LatestBlockNumber(ctx)
		return err
	})
	return head, err
}

func (r *Runner) sleep(ctx context.Context) error {
	interval := r.cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// isDuplicate is a cheap in-process guard; the ledger remains the real
// idempotence boundary across restarts and processes.
func (r *Runner) isDuplicate(lg types.Log) bool {
	id := fmt.Sprintf("%d:%s:%d", lg.BlockNumber, lg.TxHash.Hex(), lg.Index)
	if _, ok := r.seen[id]; ok {
		return true
	}
	r.seen[id] = struct{}{}
	return false
}
