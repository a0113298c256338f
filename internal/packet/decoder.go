package packet

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"packetSync/internal/model"
)

// Decoder converts raw red packet contract logs into ledger events.
type Decoder struct {
	contractABI abi.ABI
	topicToName map[common.Hash]string
}

func NewDecoder() (*Decoder, error) {
	contractABI, err := RedPacketABI()
	if err != nil {
		return nil, err
	}
	return &Decoder{
		contractABI: contractABI,
		topicToName: map[common.Hash]string{
			contractABI.Events["PacketCreated"].ID:  "PacketCreated",
			contractABI.Events["PacketClaimed"].ID:  "PacketClaimed",
			contractABI.Events["PacketRefunded"].ID: "PacketRefunded",
		},
	}, nil
}

// Topics returns the topic0 filter set for log subscriptions.
func (d *Decoder) Topics() []common.Hash {
	topics := make([]common.Hash, 0, len(d.topicToName))
	for topic := range d.topicToName {
		topics = append(topics, topic)
	}
	return topics
}

// CanDecode checks whether topic0 belongs to a red packet event.
func (d *Decoder) CanDecode(topic0 common.Hash) bool {
	_, ok := d.topicToName[topic0]
	return ok
}

// Decode converts a chain log into a PacketEvent. The packet id and actor
// come from the indexed topics, the rest from the data segment.
func (d *Decoder) Decode(lg types.Log, observedAt time.Time) (model.PacketEvent, error) {
	if len(lg.Topics) < 3 {
		return model.PacketEvent{}, fmt.Errorf("log %s:%d: expected 3 topics, got %d", lg.TxHash.Hex(), lg.Index, len(lg.Topics))
	}
	name, ok := d.topicToName[lg.Topics[0]]
	if !ok {
		return model.PacketEvent{}, fmt.Errorf("unsupported topic0: %s", lg.Topics[0].Hex())
	}

	ev := model.PacketEvent{
		EventID:      model.FormatEventID(lg.TxHash.Hex(), uint64(lg.Index)),
		PacketID:     lg.Topics[1].Hex(),
		ActorAddress: common.BytesToAddress(lg.Topics[2].Bytes()).Hex(),
		BlockNumber:  lg.BlockNumber,
		TxHash:       lg.TxHash.Hex(),
		LogIndex:     uint64(lg.Index),
		ObservedAt:   observedAt,
	}

	event := d.contractABI.Events[name]
	values, err := event.Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return model.PacketEvent{}, fmt.Errorf("unpack %s: %w", name, err)
	}

	switch name {
	case "PacketCreated":
		totalAmount, ok := values[0].(*big.Int)
		if !ok {
			return model.PacketEvent{}, fmt.Errorf("unexpected totalAmount type %T", values[0])
		}
		count, ok := values[1].(uint32)
		if !ok {
			return model.PacketEvent{}, fmt.Errorf("unexpected count type %T", values[1])
		}
		isRandom, ok := values[2].(bool)
		if !ok {
			return model.PacketEvent{}, fmt.Errorf("unexpected isRandom type %T", values[2])
		}
		expireTime, ok := values[3].(uint64)
		if !ok {
			return model.PacketEvent{}, fmt.Errorf("unexpected expireTime type %T", values[3])
		}
		ev.Kind = model.EventCreated
		ev.Amount = totalAmount.String()
		ev.TotalAmount = totalAmount.String()
		ev.Count = count
		ev.IsRandom = isRandom
		ev.ExpireTime = expireTime
	case "PacketClaimed":
		amount, ok := values[0].(*big.Int)
		if !ok {
			return model.PacketEvent{}, fmt.Errorf("unexpected amount type %T", values[0])
		}
		// the emitted remaining counter is a hint only; the projector
		// derives remaining from its own committed state
		ev.Kind = model.EventClaimed
		ev.Amount = amount.String()
	case "PacketRefunded":
		amount, ok := values[0].(*big.Int)
		if !ok {
			return model.PacketEvent{}, fmt.Errorf("unexpected amount type %T", values[0])
		}
		ev.Kind = model.EventRefunded
		ev.Amount = amount.String()
	}

	return ev, nil
}
