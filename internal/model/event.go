package model

import (
	"fmt"
	"math/big"
	"strings"
	"time"
)

// EventKind enumerates the on-chain facts the ledger records.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventClaimed  EventKind = "claimed"
	EventRefunded EventKind = "refunded"
)

// PacketEvent is an immutable observed on-chain event. EventID is the
// canonical identifier (tx hash + log index) and the ledger's dedup key;
// re-delivery of the same EventID must be a no-op.
type PacketEvent struct {
	EventID      string    `json:"event_id"`
	PacketID     string    `json:"packet_id"`
	Kind         EventKind `json:"kind"`
	ActorAddress string    `json:"actor_address"`
	Amount       string    `json:"amount"`
	TotalAmount  string    `json:"total_amount,omitempty"`
	Count        uint32    `json:"count,omitempty"`
	IsRandom     bool      `json:"is_random,omitempty"`
	ExpireTime   uint64    `json:"expire_time,omitempty"`
	BlockNumber  uint64    `json:"block_number"`
	TxHash       string    `json:"tx_hash"`
	LogIndex     uint64    `json:"log_index"`
	ObservedAt   time.Time `json:"observed_at"`
}

// FormatEventID builds the canonical event identifier from tx hash and log index.
func FormatEventID(txHash string, logIndex uint64) string {
	return fmt.Sprintf("%s:%d", strings.ToLower(txHash), logIndex)
}

// ParseAmount parses a decimal amount in the token's smallest unit.
// The empty string is treated as zero.
func ParseAmount(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %q", s)
	}
	return v, nil
}
