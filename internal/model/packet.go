package model

import "time"

// PacketStatus is the projected lifecycle state of a packet. Transitions
// are one-directional: Active -> Exhausted (last share claimed),
// Active -> Expired (expire time passed), any non-refunded state ->
// Refunded. Nothing ever returns to Active.
type PacketStatus string

const (
	StatusActive    PacketStatus = "active"
	StatusExhausted PacketStatus = "exhausted"
	StatusExpired   PacketStatus = "expired"
	StatusRefunded  PacketStatus = "refunded"
)

// PacketState is the current projection of one packet, owned exclusively
// by the projector. All other components read committed snapshots.
type PacketState struct {
	PacketID       string       `json:"packet_id"`
	Creator        string       `json:"creator"`
	TotalAmount    string       `json:"total_amount"`
	Count          uint32       `json:"count"`
	RemainingCount uint32       `json:"remaining_count"`
	ClaimedAmount  string       `json:"claimed_amount"`
	IsRandom       bool         `json:"is_random"`
	ExpireTime     uint64       `json:"expire_time"`
	Status         PacketStatus `json:"status"`
	CreateEventID  string       `json:"-"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Claim is one successful withdrawal of a share, linked 1:1 to the
// claimed event that authorized it. Claim rows are never mutated.
type Claim struct {
	EventID        string    `json:"event_id"`
	PacketID       string    `json:"packet_id"`
	ClaimerAddress string    `json:"claimer_address"`
	Amount         string    `json:"amount"`
	ClaimedAt      time.Time `json:"claimed_at"`
}
