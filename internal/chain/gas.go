package chain

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/params"

	"github.com/kjannette/ethmatic-backend/internal/httputil"
)

// gasCeilingWei is the sum admission ceiling: a transaction is submitted
// only while maxFee + maxPriorityFee is strictly below 444 gwei.
var gasCeilingWei = new(big.Int).Mul(big.NewInt(444), big.NewInt(params.GWei))

type GasEstimate struct {
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// IsGasAcceptable is the admission gate every chain-mutating stage calls
// immediately before acting.
func IsGasAcceptable(est GasEstimate) bool {
	sum := new(big.Int).Add(est.MaxFeePerGas, est.MaxPriorityFeePerGas)
	return sum.Cmp(gasCeilingWei) < 0
}

// GasAsGwei renders the estimate's fee sum for log and error messages.
func GasAsGwei(est GasEstimate) string {
	sum := new(big.Int).Add(est.MaxFeePerGas, est.MaxPriorityFeePerGas)
	gwei := new(big.Float).Quo(new(big.Float).SetInt(sum), big.NewFloat(params.GWei))
	return fmt.Sprintf("%.2f", gwei)
}

// GasOracle fetches the current network fee estimate.
type GasOracle interface {
	Estimate(ctx context.Context) (GasEstimate, error)
}

// StationOracle reads the public gas-station JSON feed.
type StationOracle struct {
	url    string
	client *http.Client
	retry  httputil.RetryConfig
}

func NewStationOracle(url string) *StationOracle {
	return &StationOracle{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		retry: httputil.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    5 * time.Second,
		},
	}
}

type stationResponse struct {
	Fast struct {
		MaxFee         float64 `json:"maxFee"`         // gwei
		MaxPriorityFee float64 `json:"maxPriorityFee"` // gwei
	} `json:"fast"`
}

func (o *StationOracle) Estimate(ctx context.Context) (GasEstimate, error) {
	var resp stationResponse
	err := httputil.GetJSON(ctx, o.client, o.retry, o.url, &resp)
	if err != nil {
		return GasEstimate{}, fmt.Errorf("gas station fetch: %w", err)
	}
	return GasEstimate{
		MaxFeePerGas:         gweiToWei(resp.Fast.MaxFee),
		MaxPriorityFeePerGas: gweiToWei(resp.Fast.MaxPriorityFee),
	}, nil
}

func gweiToWei(gwei float64) *big.Int {
	f := new(big.Float).Mul(big.NewFloat(gwei), big.NewFloat(params.GWei))
	i, _ := f.Int(nil)
	return i
}
