package postgres

import "context"

// Claims carry no unique constraint on (packet_id, claimer_address): the
// single-claim-per-address rule is configurable at the projector and is
// enforced there under the packet row lock.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS packet_events (
		event_id     text PRIMARY KEY,
		packet_id    text NOT NULL,
		kind         text NOT NULL,
		actor_address text NOT NULL,
		amount       numeric NOT NULL,
		total_amount numeric NOT NULL DEFAULT 0,
		share_count  bigint NOT NULL DEFAULT 0,
		is_random    boolean NOT NULL DEFAULT false,
		expire_time  bigint NOT NULL DEFAULT 0,
		block_number bigint NOT NULL,
		tx_hash      text NOT NULL,
		log_index    bigint NOT NULL,
		observed_at  timestamptz NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS packet_events_packet_idx
		ON packet_events (packet_id, block_number, log_index)`,
	`CREATE TABLE IF NOT EXISTS packet_states (
		packet_id       text PRIMARY KEY,
		creator         text NOT NULL,
		total_amount    numeric NOT NULL,
		share_count     bigint NOT NULL,
		remaining_count bigint NOT NULL,
		claimed_amount  numeric NOT NULL,
		is_random       boolean NOT NULL,
		expire_time     bigint NOT NULL,
		status          text NOT NULL,
		create_event_id text NOT NULL,
		created_at      timestamptz NOT NULL,
		updated_at      timestamptz NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS packet_states_expiry_idx
		ON packet_states (expire_time) WHERE status = 'active'`,
	`CREATE TABLE IF NOT EXISTS claims (
		event_id        text PRIMARY KEY,
		packet_id       text NOT NULL,
		claimer_address text NOT NULL,
		amount          numeric NOT NULL,
		claimed_at      timestamptz NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS claims_packet_idx
		ON claims (packet_id, claimer_address)`,
	`CREATE TABLE IF NOT EXISTS ranking_entries (
		scope_key   text NOT NULL,
		member_id   text NOT NULL,
		score       numeric NOT NULL,
		achieved_at timestamptz NOT NULL,
		PRIMARY KEY (scope_key, member_id)
	)`,
	`CREATE INDEX IF NOT EXISTS ranking_entries_top_idx
		ON ranking_entries (scope_key, score DESC, achieved_at ASC)`,
	`CREATE TABLE IF NOT EXISTS ranking_intents (
		intent_id  uuid PRIMARY KEY,
		scope_key  text NOT NULL,
		member_id  text NOT NULL,
		delta      numeric NOT NULL,
		event_id   text NOT NULL,
		created_at timestamptz NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS watcher_state (
		name                 text PRIMARY KEY,
		last_processed_block bigint NOT NULL,
		updated_at           timestamptz NOT NULL DEFAULT now()
	)`,
}

// Migrate creates the schema when missing. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
