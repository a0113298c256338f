package watcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"packetSync/internal/model"
	"packetSync/internal/projector"
	"packetSync/internal/storage"
)

// errBusy flags a contention rejection so the retry loop treats it as
// transient. The event is an on-chain fact and must eventually apply.
var errBusy = errors.New("projection busy")

// Ingestor pushes one event through the idempotence boundary and the
// projector. The ledger insert is the dedup point: when it reports a
// duplicate, downstream effects are skipped. Transient failures are
// retried with backoff and then escalated; an event is never silently
// dropped.
type Ingestor struct {
	ledger     storage.EventLedger
	projector  *projector.Projector
	logger     *zap.Logger
	maxRetries int
	backoff    time.Duration
}

func NewIngestor(ledger storage.EventLedger, p *projector.Projector, maxRetries int, backoff time.Duration, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		ledger:     ledger,
		projector:  p,
		logger:     logger,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// Ingest records the event and applies it. A non-nil error means ingestion
// failed after bounded retries and the event needs operator replay.
func (in *Ingestor) Ingest(ctx context.Context, ev model.PacketEvent) (projector.Result, error) {
	var inserted bool
	err := withRetry(ctx, in.maxRetries, in.backoff, func(ctx context.Context) error {
		var err error
		inserted, err = in.ledger.RecordEvent(ctx, ev)
		if err != nil {
			in.logger.Warn("ledger write failed", zap.Error(err), zap.String("event_id", ev.EventID))
		}
		return err
	})
	if err != nil {
		return projector.Result{}, fmt.Errorf("ingestion failed for %s: %w", ev.EventID, err)
	}
	if !inserted {
		in.logger.Debug("duplicate event", zap.String("event_id", ev.EventID))
		return projector.Result{Outcome: projector.OutcomeDuplicate}, nil
	}

	var res projector.Result
	err = withRetry(ctx, in.maxRetries, in.backoff, func(ctx context.Context) error {
		var err error
		res, err = in.projector.Apply(ctx, ev)
		if err != nil {
			in.logger.Warn("projection failed", zap.Error(err), zap.String("event_id", ev.EventID))
			return err
		}
		if res.Outcome == projector.OutcomeRejected && res.Reason == projector.ReasonBusy {
			return errBusy
		}
		return nil
	})
	if err != nil {
		return projector.Result{}, fmt.Errorf("ingestion failed for %s: %w", ev.EventID, err)
	}
	return res, nil
}
