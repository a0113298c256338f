package model

// Broadcast message types on the live channel.
const (
	TypePacketCreated  = "packet:created"
	TypePacketClaimed  = "packet:claimed"
	TypePacketRefunded = "packet:refunded"
)

// Broadcast is the advisory fan-out payload published after a projection
// commits. It carries the post-commit state so a client that misses or
// duplicates a delivery can reconcile, but the query boundary remains the
// authoritative read path.
type Broadcast struct {
	Type           string       `json:"type"`
	EventID        string       `json:"event_id"`
	PacketID       string       `json:"packet_id"`
	Creator        string       `json:"creator,omitempty"`
	Claimer        string       `json:"claimer,omitempty"`
	Amount         string       `json:"amount,omitempty"`
	TotalAmount    string       `json:"total_amount,omitempty"`
	Count          uint32       `json:"count,omitempty"`
	RemainingCount uint32       `json:"remaining_count"`
	ClaimedAmount  string       `json:"claimed_amount"`
	Status         PacketStatus `json:"status"`
	ExpireTime     uint64       `json:"expire_time,omitempty"`
}
