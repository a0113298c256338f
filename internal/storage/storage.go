package storage

import (
	"context"
	"time"

	"packetSync/internal/model"
)

// EventLedger is the durable append-only record of observed chain events.
// RecordEvent reports inserted=false when the event id was already
// recorded; the caller must not re-run downstream effects in that case.
type EventLedger interface {
	RecordEvent(ctx context.Context, ev model.PacketEvent) (inserted bool, err error)
}

// PacketTx is the atomic unit the projector runs its checks and writes in.
// Implementations hold the packet's serialization point (a row lock or an
// in-memory critical section) for the duration of the callback.
type PacketTx interface {
	// State returns the packet's current projection, locked for update.
	State(ctx context.Context) (model.PacketState, bool, error)
	// CreateState inserts the initial projection. It reports false when a
	// projection for the packet already exists.
	CreateState(ctx context.Context, st model.PacketState) (bool, error)
	// HasClaim reports whether the claimer already holds a claim on this packet.
	HasClaim(ctx context.Context, claimer string) (bool, error)
	// ClaimByEvent reports whether a claim for the event id already exists.
	ClaimByEvent(ctx context.Context, eventID string) (bool, error)
	InsertClaim(ctx context.Context, c model.Claim) error
	UpdateState(ctx context.Context, st model.PacketState) error
	// Claims returns all claims of this packet in claim order.
	Claims(ctx context.Context) ([]model.Claim, error)
	// AddScore applies a score delta for (scope, member). Delta is a
	// decimal string and may be negative for compensating updates.
	AddScore(ctx context.Context, scope, member, delta string, at time.Time) error
	// WriteIntent journals a score change for idempotent replay.
	WriteIntent(ctx context.Context, in model.RankingIntent) error
}

// PacketStore runs fn inside the per-packet atomic unit. The callback's
// writes become visible to readers only when WithPacket returns nil.
type PacketStore interface {
	WithPacket(ctx context.Context, packetID string, fn func(PacketTx) error) error
}

// QueryStore serves the read boundary over committed projection state.
type QueryStore interface {
	GetPacket(ctx context.Context, packetID string) (model.PacketState, bool, error)
	// PacketClaims returns a packet's claims, most recent first.
	PacketClaims(ctx context.Context, packetID string, limit int) ([]model.Claim, error)
	// TopN returns up to n entries of a scope ordered by score descending,
	// ties broken by earliest achievement time.
	TopN(ctx context.Context, scope string, n int) ([]model.RankingEntry, error)
}

// ExpiryScanner lists packets that are still active past their expire time.
type ExpiryScanner interface {
	ExpiredCandidates(ctx context.Context, before uint64, limit int) ([]string, error)
}

// WatcherState persists the chain watcher's resume point.
type WatcherState interface {
	LoadWatcherState(ctx context.Context, name string) (uint64, bool, error)
	SaveWatcherState(ctx context.Context, name string, block uint64) error
}
