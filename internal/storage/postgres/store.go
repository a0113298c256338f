package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"packetSync/internal/model"
	"packetSync/internal/storage"
)

// Store provides Postgres persistence for the event ledger, packet
// projections, claims, and the ranking index.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// RecordEvent inserts the event keyed by its canonical id. A conflicting
// id makes the insert a no-op and reports inserted=false.
func (s *Store) RecordEvent(ctx context.Context, ev model.PacketEvent) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO packet_events (
			event_id, packet_id, kind, actor_address, amount, total_amount,
			share_count, is_random, expire_time, block_number, tx_hash, log_index, observed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (event_id) DO NOTHING
	`,
		ev.EventID,
		ev.PacketID,
		string(ev.Kind),
		ev.ActorAddress,
		zeroAmount(ev.Amount),
		zeroAmount(ev.TotalAmount),
		int64(ev.Count),
		ev.IsRandom,
		int64(ev.ExpireTime),
		int64(ev.BlockNumber),
		ev.TxHash,
		int64(ev.LogIndex),
		ev.ObservedAt,
	)
	if err != nil {
		return false, fmt.Errorf("record event %s: %w", ev.EventID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// PacketEvents returns a packet's ledger entries in chain order, for
// operator replay.
func (s *Store) PacketEvents(ctx context.Context, packetID string, limit int) ([]model.PacketEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, packet_id, kind, actor_address, amount::text, total_amount::text,
		       share_count, is_random, expire_time, block_number, tx_hash, log_index, observed_at
		FROM packet_events
		WHERE packet_id = $1
		ORDER BY block_number ASC, log_index ASC
		LIMIT $2
	`, packetID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.PacketEvent
	for rows.Next() {
		var ev model.PacketEvent
		var kind string
		var count, expire, block, logIndex int64
		if err := rows.Scan(
			&ev.EventID, &ev.PacketID, &kind, &ev.ActorAddress, &ev.Amount, &ev.TotalAmount,
			&count, &ev.IsRandom, &expire, &block, &ev.TxHash, &logIndex, &ev.ObservedAt,
		); err != nil {
			return nil, err
		}
		ev.Kind = model.EventKind(kind)
		ev.Count = uint32(count)
		ev.ExpireTime = uint64(expire)
		ev.BlockNumber = uint64(block)
		ev.LogIndex = uint64(logIndex)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// WithPacket runs fn in a transaction that holds the packet's row lock.
// The callback's writes commit only when fn returns nil.
func (s *Store) WithPacket(ctx context.Context, packetID string, fn func(storage.PacketTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin packet tx: %w", err)
	}
	ptx := &packetTx{tx: tx, packetID: packetID}
	if err := fn(ptx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit packet tx: %w", err)
	}
	return nil
}

type packetTx struct {
	tx       pgx.Tx
	packetID string
}

func (t *packetTx) State(ctx context.Context) (model.PacketState, bool, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT packet_id, creator, total_amount::text, share_count, remaining_count,
		       claimed_amount::text, is_random, expire_time, status, create_event_id,
		       created_at, updated_at
		FROM packet_states
		WHERE packet_id = $1
		FOR UPDATE
	`, t.packetID)
	return scanState(row)
}

func (t *packetTx) CreateState(ctx context.Context, st model.PacketState) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO packet_states (
			packet_id, creator, total_amount, share_count, remaining_count,
			claimed_amount, is_random, expire_time, status, create_event_id,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (packet_id) DO NOTHING
	`,
		st.PacketID,
		st.Creator,
		zeroAmount(st.TotalAmount),
		int64(st.Count),
		int64(st.RemainingCount),
		zeroAmount(st.ClaimedAmount),
		st.IsRandom,
		int64(st.ExpireTime),
		string(st.Status),
		st.CreateEventID,
		st.CreatedAt,
		st.UpdatedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *packetTx) HasClaim(ctx context.Context, claimer string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM claims WHERE packet_id = $1 AND claimer_address = $2)
	`, t.packetID, claimer).Scan(&exists)
	return exists, err
}

func (t *packetTx) ClaimByEvent(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM claims WHERE event_id = $1)
	`, eventID).Scan(&exists)
	return exists, err
}

func (t *packetTx) InsertClaim(ctx context.Context, c model.Claim) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO claims (event_id, packet_id, claimer_address, amount, claimed_at)
		VALUES ($1,$2,$3,$4,$5)
	`, c.EventID, c.PacketID, c.ClaimerAddress, zeroAmount(c.Amount), c.ClaimedAt)
	return err
}

func (t *packetTx) UpdateState(ctx context.Context, st model.PacketState) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE packet_states
		SET remaining_count = $2, claimed_amount = $3, status = $4, updated_at = $5
		WHERE packet_id = $1
	`, st.PacketID, int64(st.RemainingCount), zeroAmount(st.ClaimedAmount), string(st.Status), st.UpdatedAt)
	return err
}

func (t *packetTx) Claims(ctx context.Context) ([]model.Claim, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT event_id, packet_id, claimer_address, amount::text, claimed_at
		FROM claims
		WHERE packet_id = $1
		ORDER BY claimed_at ASC, event_id ASC
	`, t.packetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClaims(rows)
}

func (t *packetTx) AddScore(ctx context.Context, scope, member, delta string, at time.Time) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO ranking_entries (scope_key, member_id, score, achieved_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (scope_key, member_id)
		DO UPDATE SET score = ranking_entries.score + EXCLUDED.score, achieved_at = EXCLUDED.achieved_at
	`, scope, member, delta, at)
	return err
}

func (t *packetTx) WriteIntent(ctx context.Context, in model.RankingIntent) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO ranking_intents (intent_id, scope_key, member_id, delta, event_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (intent_id) DO NOTHING
	`, in.IntentID, in.ScopeKey, in.MemberID, in.Delta, in.EventID, in.CreatedAt)
	return err
}

func (s *Store) GetPacket(ctx context.Context, packetID string) (model.PacketState, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT packet_id, creator, total_amount::text, share_count, remaining_count,
		       claimed_amount::text, is_random, expire_time, status, create_event_id,
		       created_at, updated_at
		FROM packet_states
		WHERE packet_id = $1
	`, packetID)
	return scanState(row)
}

func (s *Store) PacketClaims(ctx context.Context, packetID string, limit int) ([]model.Claim, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event_id, packet_id, claimer_address, amount::text, claimed_at
		FROM claims
		WHERE packet_id = $1
		ORDER BY claimed_at DESC, event_id DESC
		LIMIT $2
	`, packetID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClaims(rows)
}

func (s *Store) TopN(ctx context.Context, scope string, n int) ([]model.RankingEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT scope_key, member_id, score::text, achieved_at
		FROM ranking_entries
		WHERE scope_key = $1
		ORDER BY score DESC, achieved_at ASC, member_id ASC
		LIMIT $2
	`, scope, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.RankingEntry
	for rows.Next() {
		var e model.RankingEntry
		if err := rows.Scan(&e.ScopeKey, &e.MemberID, &e.Score, &e.AchievedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) ExpiredCandidates(ctx context.Context, before uint64, limit int) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT packet_id FROM packet_states
		WHERE status = 'active' AND expire_time > 0 AND expire_time < $1
		ORDER BY expire_time ASC
		LIMIT $2
	`, int64(before), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// LoadWatcherState returns the last processed block for a watcher name.
func (s *Store) LoadWatcherState(ctx context.Context, name string) (uint64, bool, error) {
	if name == "" {
		return 0, false, fmt.Errorf("watcher name required")
	}
	var block int64
	row := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM watcher_state WHERE name=$1`, name)
	if err := row.Scan(&block); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return uint64(block), true, nil
}

// SaveWatcherState upserts the last processed block for a watcher name.
func (s *Store) SaveWatcherState(ctx context.Context, name string, block uint64) error {
	if name == "" {
		return fmt.Errorf("watcher name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO watcher_state (name, last_processed_block, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_processed_block = EXCLUDED.last_processed_block, updated_at = now()
	`, name, int64(block))
	return err
}

func scanState(row pgx.Row) (model.PacketState, bool, error) {
	var st model.PacketState
	var status string
	var count, remaining, expire int64
	err := row.Scan(
		&st.PacketID, &st.Creator, &st.TotalAmount, &count, &remaining,
		&st.ClaimedAmount, &st.IsRandom, &expire, &status, &st.CreateEventID,
		&st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PacketState{}, false, nil
		}
		return model.PacketState{}, false, err
	}
	st.Count = uint32(count)
	st.RemainingCount = uint32(remaining)
	st.ExpireTime = uint64(expire)
	st.Status = model.PacketStatus(status)
	return st, true, nil
}

func scanClaims(rows pgx.Rows) ([]model.Claim, error) {
	var claims []model.Claim
	for rows.Next() {
		var c model.Claim
		if err := rows.Scan(&c.EventID, &c.PacketID, &c.ClaimerAddress, &c.Amount, &c.ClaimedAt); err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

func zeroAmount(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
