package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func transferLog(token, from, to common.Address, value *big.Int) types.Log {
	return types.Log{
		Address: token,
		Topics: []common.Hash{
			transferTopic,
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: common.LeftPadBytes(value.Bytes(), 32),
	}
}

func TestParseTransfer(t *testing.T) {
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	value := big.NewInt(123456789)

	ev, ok := ParseTransfer(transferLog(WETH().Address, from, to, value))
	if !ok {
		t.Fatal("expected a transfer event")
	}
	if ev.Token != WETH().Address {
		t.Fatalf("token = %s, want WETH", ev.Token.Hex())
	}
	if ev.From != from || ev.To != to {
		t.Fatalf("from/to = %s/%s", ev.From.Hex(), ev.To.Hex())
	}
	if ev.Value.Cmp(value) != 0 {
		t.Fatalf("value = %s, want %s", ev.Value, value)
	}
}

func TestParseTransferRejectsOtherEvents(t *testing.T) {
	// Approval(address,address,uint256) has a different topic0.
	log := types.Log{
		Address: WETH().Address,
		Topics: []common.Hash{
			common.HexToHash("0x8c5be1e5ebec7d5bd14f71427d1e84f3dd0314c0f7b2291e5b200ac8c7c3b925"),
			common.HexToHash("0x1"),
			common.HexToHash("0x2"),
		},
	}
	if _, ok := ParseTransfer(log); ok {
		t.Fatal("approval log parsed as transfer")
	}

	// Transfer topic but wrong arity (e.g. ERC721 with indexed tokenId).
	bad := transferLog(WETH().Address, common.Address{}, common.Address{}, big.NewInt(1))
	bad.Topics = append(bad.Topics, common.HexToHash("0x3"))
	if _, ok := ParseTransfer(bad); ok {
		t.Fatal("four-topic log parsed as transfer")
	}
}
