package memory

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"packetSync/internal/model"
	"packetSync/internal/storage"
)

// Store is an in-memory implementation of the storage interfaces, used for
// single-process runs and tests. WithPacket serializes on one store-wide
// mutex, which satisfies the per-packet atomicity contract.
type Store struct {
	mu          sync.Mutex
	events      map[string]model.PacketEvent
	states      map[string]model.PacketState
	claims      map[string][]model.Claim
	claimEvents map[string]struct{}
	scores      map[string]map[string]*scoreEntry
	intents     []model.RankingIntent
	watcher     map[string]uint64
}

type scoreEntry struct {
	score      *big.Int
	achievedAt time.Time
}

func NewStore() *Store {
	return &Store{
		events:      make(map[string]model.PacketEvent),
		states:      make(map[string]model.PacketState),
		claims:      make(map[string][]model.Claim),
		claimEvents: make(map[string]struct{}),
		scores:      make(map[string]map[string]*scoreEntry),
		watcher:     make(map[string]uint64),
	}
}

// RecordEvent inserts the event unless its id was already recorded.
func (s *Store) RecordEvent(_ context.Context, ev model.PacketEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[ev.EventID]; ok {
		return false, nil
	}
	s.events[ev.EventID] = ev
	return true, nil
}

// WithPacket runs fn under the store mutex. Callback writes are applied
// directly; an error from fn leaves maps in whatever state fn produced,
// which is acceptable because the projector performs all checks before
// any write.
func (s *Store) WithPacket(_ context.Context, packetID string, fn func(storage.PacketTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memTx{store: s, packetID: packetID})
}

type memTx struct {
	store    *Store
	packetID string
}

func (t *memTx) State(context.Context) (model.PacketState, bool, error) {
	st, ok := t.store.states[t.packetID]
	return st, ok, nil
}

func (t *memTx) CreateState(_ context.Context, st model.PacketState) (bool, error) {
	if _, ok := t.store.states[st.PacketID]; ok {
		return false, nil
	}
	t.store.states[st.PacketID] = st
	return true, nil
}

func (t *memTx) HasClaim(_ context.Context, claimer string) (bool, error) {
	for _, c := range t.store.claims[t.packetID] {
		if c.ClaimerAddress == claimer {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) ClaimByEvent(_ context.Context, eventID string) (bool, error) {
	_, ok := t.store.claimEvents[eventID]
	return ok, nil
}

func (t *memTx) InsertClaim(_ context.Context, c model.Claim) error {
	if _, ok := t.store.claimEvents[c.EventID]; ok {
		return fmt.Errorf("claim already recorded for event %s", c.EventID)
	}
	t.store.claims[c.PacketID] = append(t.store.claims[c.PacketID], c)
	t.store.claimEvents[c.EventID] = struct{}{}
	return nil
}

func (t *memTx) UpdateState(_ context.Context, st model.PacketState) error {
	if _, ok := t.store.states[st.PacketID]; !ok {
		return fmt.Errorf("no state for packet %s", st.PacketID)
	}
	t.store.states[st.PacketID] = st
	return nil
}

func (t *memTx) Claims(context.Context) ([]model.Claim, error) {
	src := t.store.claims[t.packetID]
	out := make([]model.Claim, len(src))
	copy(out, src)
	return out, nil
}

func (t *memTx) AddScore(_ context.Context, scope, member, delta string, at time.Time) error {
	d, ok := new(big.Int).SetString(delta, 10)
	if !ok {
		return fmt.Errorf("invalid score delta: %q", delta)
	}
	members := t.store.scores[scope]
	if members == nil {
		members = make(map[string]*scoreEntry)
		t.store.scores[scope] = members
	}
	entry := members[member]
	if entry == nil {
		entry = &scoreEntry{score: big.NewInt(0)}
		members[member] = entry
	}
	entry.score.Add(entry.score, d)
	entry.achievedAt = at
	return nil
}

func (t *memTx) WriteIntent(_ context.Context, in model.RankingIntent) error {
	t.store.intents = append(t.store.intents, in)
	return nil
}

func (s *Store) GetPacket(_ context.Context, packetID string) (model.PacketState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[packetID]
	return st, ok, nil
}

func (s *Store) PacketClaims(_ context.Context, packetID string, limit int) ([]model.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.claims[packetID]
	out := make([]model.Claim, len(src))
	copy(out, src)
	// most recent first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) TopN(_ context.Context, scope string, n int) ([]model.RankingEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.scores[scope]
	entries := make([]model.RankingEntry, 0, len(members))
	for member, e := range members {
		entries = append(entries, model.RankingEntry{
			ScopeKey:   scope,
			MemberID:   member,
			Score:      e.score.String(),
			AchievedAt: e.achievedAt,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		a, _ := new(big.Int).SetString(entries[i].Score, 10)
		b, _ := new(big.Int).SetString(entries[j].Score, 10)
		if cmp := a.Cmp(b); cmp != 0 {
			return cmp > 0
		}
		if !entries[i].AchievedAt.Equal(entries[j].AchievedAt) {
			return entries[i].AchievedAt.Before(entries[j].AchievedAt)
		}
		return entries[i].MemberID < entries[j].MemberID
	})
	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func (s *Store) ExpiredCandidates(_ context.Context, before uint64, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for id, st := range s.states {
		if st.Status == model.StatusActive && st.ExpireTime > 0 && st.ExpireTime < before {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *Store) LoadWatcherState(_ context.Context, name string) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	block, ok := s.watcher[name]
	return block, ok, nil
}

func (s *Store) SaveWatcherState(_ context.Context, name string, block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watcher[name] = block
	return nil
}

// Intents returns a copy of the journaled score changes.
func (s *Store) Intents() []model.RankingIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.RankingIntent, len(s.intents))
	copy(out, s.intents)
	return out
}
