package projector

import (
	"context"
	"time"

	"go.uber.org/zap"

	"packetSync/internal/storage"
)

// Expirer periodically flips overdue active packets to expired. Claims on
// an overdue packet are rejected by the expire-time check either way; this
// keeps the stored status honest for the query boundary.
type Expirer struct {
	projector *Projector
	scanner   storage.ExpiryScanner
	interval  time.Duration
	batch     int
	logger    *zap.Logger
	now       func() time.Time
}

func NewExpirer(p *Projector, scanner storage.ExpiryScanner, interval time.Duration, logger *zap.Logger) *Expirer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Expirer{
		projector: p,
		scanner:   scanner,
		interval:  interval,
		batch:     100,
		logger:    logger,
		now:       time.Now,
	}
}

// Run scans until ctx is cancelled.
func (e *Expirer) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.ExpireDue(ctx, e.now()); err != nil {
				e.logger.Warn("expiry sweep failed", zap.Error(err))
			}
		}
	}
}

// ExpireDue expires all packets overdue at now and returns how many
// transitioned.
func (e *Expirer) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	ids, err := e.scanner.ExpiredCandidates(ctx, uint64(now.Unix()), e.batch)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, id := range ids {
		ok, err := e.projector.Expire(ctx, id, now)
		if err != nil {
			return expired, err
		}
		if ok {
			expired++
		}
	}
	return expired, nil
}
