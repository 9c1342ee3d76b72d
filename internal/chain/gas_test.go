package chain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/params"
)

func gweiEstimate(maxFee, maxPriority int64) GasEstimate {
	return GasEstimate{
		MaxFeePerGas:         new(big.Int).Mul(big.NewInt(maxFee), big.NewInt(params.GWei)),
		MaxPriorityFeePerGas: new(big.Int).Mul(big.NewInt(maxPriority), big.NewInt(params.GWei)),
	}
}

func TestIsGasAcceptable(t *testing.T) {
	cases := []struct {
		name        string
		maxFee      int64
		maxPriority int64
		want        bool
	}{
		{"well under ceiling", 300, 100, true},
		{"sum over ceiling", 400, 50, false},
		{"sum exactly at ceiling", 400, 44, false},
		{"one below ceiling", 400, 43, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := IsGasAcceptable(gweiEstimate(tc.maxFee, tc.maxPriority))
			if got != tc.want {
				t.Fatalf("IsGasAcceptable(%d+%d gwei) = %v, want %v", tc.maxFee, tc.maxPriority, got, tc.want)
			}
		})
	}
}

func TestGasAsGwei(t *testing.T) {
	got := GasAsGwei(gweiEstimate(300, 100))
	if got != "400.00" {
		t.Fatalf("GasAsGwei = %q, want %q", got, "400.00")
	}
}
