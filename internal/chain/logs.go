package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ERC20 Transfer(address indexed from, address indexed to, uint256 value).
var transferTopic = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// TransferEvent is one decoded ERC20 Transfer log.
type TransferEvent struct {
	Token common.Address
	From  common.Address
	To    common.Address
	Value *big.Int
}

// ParseTransfer decodes a receipt log as an ERC20 Transfer. Returns false
// for any other event shape.
func ParseTransfer(log types.Log) (TransferEvent, bool) {
	if len(log.Topics) != 3 || log.Topics[0] != transferTopic {
		return TransferEvent{}, false
	}
	return TransferEvent{
		Token: log.Address,
		From:  common.BytesToAddress(log.Topics[1].Bytes()),
		To:    common.BytesToAddress(log.Topics[2].Bytes()),
		Value: new(big.Int).SetBytes(log.Data),
	}, true
}
