package projector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"packetSync/internal/bus"
	"packetSync/internal/model"
	"packetSync/internal/storage"
)

// Config holds runtime settings for the projector.
type Config struct {
	// LockShards is the number of per-packet serialization points.
	LockShards int
	// LockWait bounds how long a claim waits for its packet's critical
	// section before being rejected as busy.
	LockWait time.Duration
	// SingleClaimPerAddress rejects a second claim from the same address
	// on one packet.
	SingleClaimPerAddress bool
}

// Projector folds ledger events into per-packet state, keeps the ranking
// index consistent with it, and emits a broadcast after each commit. It is
// the sole writer of PacketState.
type Projector struct {
	store       storage.PacketStore
	publisher   bus.Publisher
	locks       *KeyLock
	logger      *zap.Logger
	lockWait    time.Duration
	singleClaim bool
	now         func() time.Time
}

func New(cfg Config, store storage.PacketStore, publisher bus.Publisher, logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 3 * time.Second
	}
	return &Projector{
		store:       store,
		publisher:   publisher,
		locks:       NewKeyLock(cfg.LockShards),
		logger:      logger,
		lockWait:    cfg.LockWait,
		singleClaim: cfg.SingleClaimPerAddress,
		now:         time.Now,
	}
}

// Apply runs one event through the packet's atomic unit. Rule violations
// come back as rejected results; only storage failures are errors. The
// broadcast is published strictly after the unit commits.
func (p *Projector) Apply(ctx context.Context, ev model.PacketEvent) (Result, error) {
	release, err := p.locks.Acquire(ctx, ev.PacketID, p.lockWait)
	if err != nil {
		if errors.Is(err, ErrContentionTimeout) {
			p.logger.Warn("packet lock busy",
				zap.String("packet_id", ev.PacketID),
				zap.String("event_id", ev.EventID),
			)
			return rejected(ReasonBusy), nil
		}
		return Result{}, err
	}
	defer release()

	var res Result
	err = p.store.WithPacket(ctx, ev.PacketID, func(tx storage.PacketTx) error {
		var applyErr error
		switch ev.Kind {
		case model.EventCreated:
			res, applyErr = p.applyCreated(ctx, tx, ev)
		case model.EventClaimed:
			res, applyErr = p.applyClaimed(ctx, tx, ev)
		case model.EventRefunded:
			res, applyErr = p.applyRefunded(ctx, tx, ev)
		default:
			applyErr = fmt.Errorf("unknown event kind: %q", ev.Kind)
		}
		return applyErr
	})
	if err != nil {
		return Result{}, fmt.Errorf("apply %s: %w", ev.EventID, err)
	}

	switch res.Outcome {
	case OutcomeApplied:
		p.publish(ctx, res.Broadcast)
		p.logger.Info("event applied",
			zap.String("event_id", ev.EventID),
			zap.String("packet_id", ev.PacketID),
			zap.String("kind", string(ev.Kind)),
			zap.Uint32("remaining", res.State.RemainingCount),
			zap.String("status", string(res.State.Status)),
		)
	case OutcomeRejected:
		p.logger.Info("event rejected",
			zap.String("event_id", ev.EventID),
			zap.String("packet_id", ev.PacketID),
			zap.String("reason", string(res.Reason)),
		)
	case OutcomeDuplicate:
		p.logger.Debug("event already projected", zap.String("event_id", ev.EventID))
	}
	return res, nil
}

func (p *Projector) applyCreated(ctx context.Context, tx storage.PacketTx, ev model.PacketEvent) (Result, error) {
	existing, ok, err := tx.State(ctx)
	if err != nil {
		return Result{}, err
	}
	if ok {
		if existing.CreateEventID == ev.EventID {
			return duplicate(), nil
		}
		return rejected(ReasonAlreadyCreated), nil
	}

	st := model.PacketState{
		PacketID:       ev.PacketID,
		Creator:        ev.ActorAddress,
		TotalAmount:    ev.TotalAmount,
		Count:          ev.Count,
		RemainingCount: ev.Count,
		ClaimedAmount:  "0",
		IsRandom:       ev.IsRandom,
		ExpireTime:     ev.ExpireTime,
		Status:         model.StatusActive,
		CreateEventID:  ev.EventID,
		CreatedAt:      ev.ObservedAt,
		UpdatedAt:      ev.ObservedAt,
	}
	inserted, err := tx.CreateState(ctx, st)
	if err != nil {
		return Result{}, err
	}
	if !inserted {
		// lost a cross-process race on the same packet id
		return rejected(ReasonAlreadyCreated), nil
	}

	return Result{
		Outcome: OutcomeApplied,
		State:   st,
		Broadcast: &model.Broadcast{
			Type:           model.TypePacketCreated,
			EventID:        ev.EventID,
			PacketID:       st.PacketID,
			Creator:        st.Creator,
			TotalAmount:    st.TotalAmount,
			Count:          st.Count,
			RemainingCount: st.RemainingCount,
			ClaimedAmount:  st.ClaimedAmount,
			Status:         st.Status,
			ExpireTime:     st.ExpireTime,
		},
	}, nil
}

func (p *Projector) applyClaimed(ctx context.Context, tx storage.PacketTx, ev model.PacketEvent) (Result, error) {
	dup, err := tx.ClaimByEvent(ctx, ev.EventID)
	if err != nil {
		return Result{}, err
	}
	if dup {
		return duplicate(), nil
	}

	st, ok, err := tx.State(ctx)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return rejected(ReasonUnknownPacket), nil
	}

	switch st.Status {
	case model.StatusRefunded:
		return rejected(ReasonRefunded), nil
	case model.StatusExpired:
		return rejected(ReasonExpired), nil
	case model.StatusExhausted:
		return rejected(ReasonExhausted), nil
	}
	if st.ExpireTime > 0 && p.now().Unix() > int64(st.ExpireTime) {
		return rejected(ReasonExpired), nil
	}
	if st.RemainingCount == 0 {
		return rejected(ReasonExhausted), nil
	}
	if p.singleClaim {
		has, err := tx.HasClaim(ctx, ev.ActorAddress)
		if err != nil {
			return Result{}, err
		}
		if has {
			return rejected(ReasonAlreadyClaimed), nil
		}
	}

	amount, err := model.ParseAmount(ev.Amount)
	if err != nil {
		return Result{}, err
	}
	claimed, err := model.ParseAmount(st.ClaimedAmount)
	if err != nil {
		return Result{}, err
	}
	total, err := model.ParseAmount(st.TotalAmount)
	if err != nil {
		return Result{}, err
	}
	newClaimed := new(big.Int).Add(claimed, amount)
	if newClaimed.Cmp(total) > 0 {
		return rejected(ReasonOverdrawn), nil
	}

	st.RemainingCount--
	st.ClaimedAmount = newClaimed.String()
	if st.RemainingCount == 0 {
		st.Status = model.StatusExhausted
	}
	st.UpdatedAt = ev.ObservedAt

	if err := tx.InsertClaim(ctx, model.Claim{
		EventID:        ev.EventID,
		PacketID:       ev.PacketID,
		ClaimerAddress: ev.ActorAddress,
		Amount:         ev.Amount,
		ClaimedAt:      ev.ObservedAt,
	}); err != nil {
		return Result{}, err
	}
	if err := tx.UpdateState(ctx, st); err != nil {
		return Result{}, err
	}
	for _, scope := range []string{model.ScopeGlobal, model.PacketScope(ev.PacketID)} {
		if err := p.addScore(ctx, tx, scope, ev.ActorAddress, ev.Amount, ev.EventID, ev.ObservedAt); err != nil {
			return Result{}, err
		}
	}

	return Result{
		Outcome: OutcomeApplied,
		State:   st,
		Broadcast: &model.Broadcast{
			Type:           model.TypePacketClaimed,
			EventID:        ev.EventID,
			PacketID:       st.PacketID,
			Claimer:        ev.ActorAddress,
			Amount:         ev.Amount,
			RemainingCount: st.RemainingCount,
			ClaimedAmount:  st.ClaimedAmount,
			Status:         st.Status,
		},
	}, nil
}

// applyRefunded voids the packet: status flips to refunded and the
// packet-scoped leaderboard is compensated back to zero. Global scores
// are kept, claims were real.
func (p *Projector) applyRefunded(ctx context.Context, tx storage.PacketTx, ev model.PacketEvent) (Result, error) {
	st, ok, err := tx.State(ctx)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return rejected(ReasonUnknownPacket), nil
	}
	if st.Status == model.StatusRefunded {
		return rejected(ReasonRefunded), nil
	}

	claims, err := tx.Claims(ctx)
	if err != nil {
		return Result{}, err
	}
	scope := model.PacketScope(ev.PacketID)
	for _, c := range claims {
		if err := p.addScore(ctx, tx, scope, c.ClaimerAddress, "-"+c.Amount, ev.EventID, ev.ObservedAt); err != nil {
			return Result{}, err
		}
	}

	st.Status = model.StatusRefunded
	st.UpdatedAt = ev.ObservedAt
	if err := tx.UpdateState(ctx, st); err != nil {
		return Result{}, err
	}

	return Result{
		Outcome: OutcomeApplied,
		State:   st,
		Broadcast: &model.Broadcast{
			Type:           model.TypePacketRefunded,
			EventID:        ev.EventID,
			PacketID:       st.PacketID,
			Creator:        st.Creator,
			Amount:         ev.Amount,
			RemainingCount: st.RemainingCount,
			ClaimedAmount:  st.ClaimedAmount,
			Status:         st.Status,
		},
	}, nil
}

// Expire flips an overdue active packet to expired. It reports whether a
// transition happened.
func (p *Projector) Expire(ctx context.Context, packetID string, now time.Time) (bool, error) {
	release, err := p.locks.Acquire(ctx, packetID, p.lockWait)
	if err != nil {
		if errors.Is(err, ErrContentionTimeout) {
			return false, nil
		}
		return false, err
	}
	defer release()

	expired := false
	err = p.store.WithPacket(ctx, packetID, func(tx storage.PacketTx) error {
		st, ok, err := tx.State(ctx)
		if err != nil {
			return err
		}
		if !ok || st.Status != model.StatusActive {
			return nil
		}
		if st.ExpireTime == 0 || now.Unix() <= int64(st.ExpireTime) {
			return nil
		}
		st.Status = model.StatusExpired
		st.UpdatedAt = now
		if err := tx.UpdateState(ctx, st); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("expire %s: %w", packetID, err)
	}
	if expired {
		p.logger.Info("packet expired", zap.String("packet_id", packetID))
	}
	return expired, nil
}

func (p *Projector) addScore(ctx context.Context, tx storage.PacketTx, scope, member, delta, eventID string, at time.Time) error {
	if err := tx.AddScore(ctx, scope, member, delta, at); err != nil {
		return err
	}
	return tx.WriteIntent(ctx, model.RankingIntent{
		IntentID:  uuid.NewString(),
		ScopeKey:  scope,
		MemberID:  member,
		Delta:     delta,
		EventID:   eventID,
		CreatedAt: at,
	})
}

// publish is fire-and-forget: a missed broadcast is recoverable through
// the query boundary.
func (p *Projector) publish(ctx context.Context, b *model.Broadcast) {
	if p.publisher == nil || b == nil {
		return
	}
	payload, err := json.Marshal(b)
	if err != nil {
		p.logger.Error("marshal broadcast", zap.Error(err), zap.String("event_id", b.EventID))
		return
	}
	for _, topic := range []string{bus.TopicPacket(b.PacketID), bus.TopicAll} {
		if err := p.publisher.Publish(ctx, topic, payload); err != nil {
			p.logger.Warn("bus publish failed",
				zap.Error(err),
				zap.String("topic", topic),
				zap.String("event_id", b.EventID),
			)
		}
	}
}
