package packet

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"packetSync/internal/model"
)

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

func buildLog(topic0 common.Hash, packetID common.Hash, actor common.Address, data []byte) types.Log {
	return types.Log{
		Address:     common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Topics:      []common.Hash{topic0, packetID, topicFromAddress(actor)},
		Data:        data,
		BlockNumber: 100,
		TxHash:      common.HexToHash("0xABCDEF"),
		Index:       7,
	}
}

func TestDecodePacketCreated(t *testing.T) {
	contractABI, err := RedPacketABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	creator := common.HexToAddress("0x2222222222222222222222222222222222222222")
	packetID := common.HexToHash("0x01")
	data, err := contractABI.Events["PacketCreated"].Inputs.NonIndexed().Pack(
		big.NewInt(1000),
		uint32(5),
		true,
		uint64(1700009999),
	)
	if err != nil {
		t.Fatalf("pack created: %v", err)
	}

	lg := buildLog(contractABI.Events["PacketCreated"].ID, packetID, creator, data)
	observedAt := time.Unix(1700000000, 0).UTC()

	ev, err := decoder.Decode(lg, observedAt)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != model.EventCreated {
		t.Fatalf("kind = %q", ev.Kind)
	}
	if ev.EventID != model.FormatEventID(lg.TxHash.Hex(), 7) {
		t.Fatalf("event id = %q", ev.EventID)
	}
	if ev.PacketID != packetID.Hex() {
		t.Fatalf("packet id = %q", ev.PacketID)
	}
	if ev.ActorAddress != creator.Hex() {
		t.Fatalf("actor = %q", ev.ActorAddress)
	}
	if ev.TotalAmount != "1000" || ev.Count != 5 || !ev.IsRandom || ev.ExpireTime != 1700009999 {
		t.Fatalf("payload mismatch: %+v", ev)
	}
	if ev.BlockNumber != 100 || !ev.ObservedAt.Equal(observedAt) {
		t.Fatalf("metadata mismatch: %+v", ev)
	}
}

func TestDecodePacketClaimed(t *testing.T) {
	contractABI, err := RedPacketABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	claimer := common.HexToAddress("0x3333333333333333333333333333333333333333")
	data, err := contractABI.Events["PacketClaimed"].Inputs.NonIndexed().Pack(
		big.NewInt(600),
		uint32(4),
	)
	if err != nil {
		t.Fatalf("pack claimed: %v", err)
	}

	lg := buildLog(contractABI.Events["PacketClaimed"].ID, common.HexToHash("0x01"), claimer, data)
	ev, err := decoder.Decode(lg, time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != model.EventClaimed || ev.Amount != "600" {
		t.Fatalf("claim mismatch: %+v", ev)
	}
	if ev.ActorAddress != claimer.Hex() {
		t.Fatalf("actor = %q", ev.ActorAddress)
	}
}

func TestDecodePacketRefunded(t *testing.T) {
	contractABI, err := RedPacketABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	creator := common.HexToAddress("0x2222222222222222222222222222222222222222")
	data, err := contractABI.Events["PacketRefunded"].Inputs.NonIndexed().Pack(big.NewInt(400))
	if err != nil {
		t.Fatalf("pack refunded: %v", err)
	}

	lg := buildLog(contractABI.Events["PacketRefunded"].ID, common.HexToHash("0x01"), creator, data)
	ev, err := decoder.Decode(lg, time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.Kind != model.EventRefunded || ev.Amount != "400" {
		t.Fatalf("refund mismatch: %+v", ev)
	}
}

func TestDecodeRejectsForeignTopic(t *testing.T) {
	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	lg := buildLog(common.HexToHash("0xdead"), common.HexToHash("0x01"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"), nil)
	if _, err := decoder.Decode(lg, time.Now()); err == nil {
		t.Fatalf("expected error for unknown topic0")
	}
	if decoder.CanDecode(common.HexToHash("0xdead")) {
		t.Fatalf("CanDecode accepted a foreign topic")
	}
}

func TestDecodeRequiresIndexedTopics(t *testing.T) {
	contractABI, err := RedPacketABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewDecoder()
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	lg := types.Log{Topics: []common.Hash{contractABI.Events["PacketClaimed"].ID}}
	if _, err := decoder.Decode(lg, time.Now()); err == nil {
		t.Fatalf("expected error for missing indexed topics")
	}
}
