package model

import "time"

// ScopeGlobal is the scope key of the global leaderboard.
const ScopeGlobal = "global"

// PacketScope returns the scope key of a single packet's leaderboard.
func PacketScope(packetID string) string {
	return "packet:" + packetID
}

// RankingEntry is one member's score within a scope. AchievedAt is the
// time the member last reached its current score and breaks score ties,
// earliest first.
type RankingEntry struct {
	ScopeKey   string    `json:"scope_key"`
	MemberID   string    `json:"member_id"`
	Score      string    `json:"score"`
	AchievedAt time.Time `json:"achieved_at"`
}

// RankingIntent is the journal row written in the same transaction as a
// score change. It allows an external ranking store to be rebuilt by
// replaying intents, idempotent on IntentID. Delta may be negative for
// compensating updates.
type RankingIntent struct {
	IntentID  string    `json:"intent_id"`
	ScopeKey  string    `json:"scope_key"`
	MemberID  string    `json:"member_id"`
	Delta     string    `json:"delta"`
	EventID   string    `json:"event_id"`
	CreatedAt time.Time `json:"created_at"`
}
