package packet

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const redPacketABIJSON = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "packetId", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "creator", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "totalAmount", "type": "uint256"},
      {"indexed": false, "internalType": "uint32", "name": "count", "type": "uint32"},
      {"indexed": false, "internalType": "bool", "name": "isRandom", "type": "bool"},
      {"indexed": false, "internalType": "uint64", "name": "expireTime", "type": "uint64"}
    ],
    "name": "PacketCreated",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "packetId", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "claimer", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"},
      {"indexed": false, "internalType": "uint32", "name": "remaining", "type": "uint32"}
    ],
    "name": "PacketClaimed",
    "type": "event"
  },
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "bytes32", "name": "packetId", "type": "bytes32"},
      {"indexed": true, "internalType": "address", "name": "creator", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"}
    ],
    "name": "PacketRefunded",
    "type": "event"
  }
]`

var (
	redPacketABI     abi.ABI
	redPacketABIOnce sync.Once
	redPacketABIErr  error
)

// RedPacketABI returns the parsed red packet contract ABI.
func RedPacketABI() (abi.ABI, error) {
	redPacketABIOnce.Do(func() {
		redPacketABI, redPacketABIErr = abi.JSON(strings.NewReader(redPacketABIJSON))
	})
	return redPacketABI, redPacketABIErr
}
