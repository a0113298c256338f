package projector

import "packetSync/internal/model"

// Outcome classifies what applying an event did.
type Outcome int

const (
	// OutcomeApplied means the projection and ranking were updated and a
	// broadcast was emitted.
	OutcomeApplied Outcome = iota
	// OutcomeRejected means the event was well-formed but violated packet
	// rules; rejections are terminal for that event.
	OutcomeRejected
	// OutcomeDuplicate means the event was already processed; nothing changed.
	OutcomeDuplicate
)

// RejectReason is the caller-visible cause of a rejection, precise enough
// for a client to render an accurate message.
type RejectReason string

const (
	ReasonAlreadyCreated RejectReason = "already created"
	ReasonUnknownPacket  RejectReason = "unknown packet"
	ReasonExhausted      RejectReason = "exhausted"
	ReasonExpired        RejectReason = "expired"
	ReasonAlreadyClaimed RejectReason = "already claimed"
	ReasonRefunded       RejectReason = "refunded"
	ReasonOverdrawn      RejectReason = "amount exceeds total"
	ReasonBusy           RejectReason = "busy, retry"
)

// Result is the outcome of applying one event. State and Broadcast are
// populated only when the outcome is OutcomeApplied.
type Result struct {
	Outcome   Outcome
	Reason    RejectReason
	State     model.PacketState
	Broadcast *model.Broadcast
}

func rejected(reason RejectReason) Result {
	return Result{Outcome: OutcomeRejected, Reason: reason}
}

func duplicate() Result {
	return Result{Outcome: OutcomeDuplicate}
}
