package memory

import (
	"context"
	"testing"
	"time"

	"packetSync/internal/model"
	"packetSync/internal/storage"
)

func TestRecordEventDedup(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	ev := model.PacketEvent{EventID: "0xaa:0", PacketID: "pk1", Kind: model.EventClaimed}
	inserted, err := s.RecordEvent(ctx, ev)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !inserted {
		t.Fatalf("first insert reported as duplicate")
	}

	inserted, err = s.RecordEvent(ctx, ev)
	if err != nil {
		t.Fatalf("record again: %v", err)
	}
	if inserted {
		t.Fatalf("duplicate insert reported as new")
	}
}

func TestTopNOrdering(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	base := time.Unix(1700000000, 0).UTC()
	add := func(member, delta string, at time.Time) {
		t.Helper()
		err := s.WithPacket(ctx, "pk1", func(tx storage.PacketTx) error {
			return tx.AddScore(ctx, "global", member, delta, at)
		})
		if err != nil {
			t.Fatalf("add score: %v", err)
		}
	}

	add("0xalice", "300", base)
	add("0xbob", "500", base.Add(time.Second))
	add("0xcarol", "500", base.Add(2*time.Second))
	add("0xalice", "100", base.Add(3*time.Second))

	top, err := s.TopN(ctx, "global", 10)
	if err != nil {
		t.Fatalf("topn: %v", err)
	}
	if len(top) != 3 {
		t.Fatalf("len = %d, want 3", len(top))
	}
	// bob and carol tie at 500; bob reached it first
	if top[0].MemberID != "0xbob" || top[1].MemberID != "0xcarol" || top[2].MemberID != "0xalice" {
		t.Fatalf("order mismatch: %+v", top)
	}
	if top[2].Score != "400" {
		t.Fatalf("alice score = %q, want 400", top[2].Score)
	}

	top, err = s.TopN(ctx, "global", 2)
	if err != nil {
		t.Fatalf("topn limited: %v", err)
	}
	if len(top) != 2 {
		t.Fatalf("limited len = %d, want 2", len(top))
	}
}

func TestAddScoreNegativeDelta(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	at := time.Unix(1700000000, 0).UTC()

	err := s.WithPacket(ctx, "pk1", func(tx storage.PacketTx) error {
		if err := tx.AddScore(ctx, "packet:pk1", "0xalice", "600", at); err != nil {
			return err
		}
		return tx.AddScore(ctx, "packet:pk1", "0xalice", "-600", at.Add(time.Second))
	})
	if err != nil {
		t.Fatalf("add scores: %v", err)
	}

	top, err := s.TopN(ctx, "packet:pk1", 10)
	if err != nil {
		t.Fatalf("topn: %v", err)
	}
	if len(top) != 1 || top[0].Score != "0" {
		t.Fatalf("compensated score mismatch: %+v", top)
	}
}

func TestPacketClaimsMostRecentFirst(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()

	err := s.WithPacket(ctx, "pk1", func(tx storage.PacketTx) error {
		for i, claimer := range []string{"0xalice", "0xbob", "0xcarol"} {
			c := model.Claim{
				EventID:        model.FormatEventID("0xAB", uint64(i)),
				PacketID:       "pk1",
				ClaimerAddress: claimer,
				Amount:         "100",
				ClaimedAt:      base.Add(time.Duration(i) * time.Second),
			}
			if err := tx.InsertClaim(ctx, c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("insert claims: %v", err)
	}

	claims, err := s.PacketClaims(ctx, "pk1", 2)
	if err != nil {
		t.Fatalf("claims: %v", err)
	}
	if len(claims) != 2 {
		t.Fatalf("len = %d, want 2", len(claims))
	}
	if claims[0].ClaimerAddress != "0xcarol" || claims[1].ClaimerAddress != "0xbob" {
		t.Fatalf("order mismatch: %+v", claims)
	}
}

func TestExpiredCandidates(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	seed := func(id string, status model.PacketStatus, expire uint64) {
		t.Helper()
		err := s.WithPacket(ctx, id, func(tx storage.PacketTx) error {
			_, err := tx.CreateState(ctx, model.PacketState{
				PacketID:   id,
				Status:     status,
				ExpireTime: expire,
			})
			return err
		})
		if err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	seed("pk1", model.StatusActive, 100)
	seed("pk2", model.StatusActive, 200)
	seed("pk3", model.StatusExpired, 100)
	seed("pk4", model.StatusActive, 0) // no deadline

	ids, err := s.ExpiredCandidates(ctx, 150, 10)
	if err != nil {
		t.Fatalf("candidates: %v", err)
	}
	if len(ids) != 1 || ids[0] != "pk1" {
		t.Fatalf("candidates = %v, want [pk1]", ids)
	}
}

func TestWatcherStateRoundTrip(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	_, ok, err := s.LoadWatcherState(ctx, "main")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatalf("unexpected state before save")
	}

	if err := s.SaveWatcherState(ctx, "main", 1234); err != nil {
		t.Fatalf("save: %v", err)
	}
	block, ok, err := s.LoadWatcherState(ctx, "main")
	if err != nil || !ok || block != 1234 {
		t.Fatalf("load after save: block=%d ok=%v err=%v", block, ok, err)
	}
}
