// Package price maintains the pair price rows and their moving-average
// buckets.
package price

import "math"

// Moving-average bucket grid: durations 5, 10, ... 60 cycles.
const (
	SMAFrom = 5
	SMATo   = 60
	SMAStep = 5
)

// BucketCount is the length every smas array must have.
const BucketCount = (SMATo-SMAFrom)/SMAStep + 1

// Pairs the fleet tracks. Only the trading pair carries moving averages;
// the USDC pairs exist to price settlements.
const (
	TradingPair = "WETH/WMATIC"
	PairWMATIC  = "WMATIC/USDC"
	PairWETH    = "WETH/USDC"
)

// Durations returns the bucket durations in grid order.
func Durations() []int {
	out := make([]int, 0, BucketCount)
	for d := SMAFrom; d <= SMATo; d += SMAStep {
		out = append(out, d)
	}
	return out
}

// BucketIndex maps an agent's ma_duration onto its grid slot.
func BucketIndex(duration int) int {
	return int(math.Round(float64(duration)/SMAStep)) - 1
}

// ComputeMovingAverages advances every bucket one cycle. Each bucket is an
// exponential-style average nudged by (newPrice - prior) / duration. A
// missing or wrong-length prior array is discarded and every bucket is
// seeded to the current price, so a cold start converges instead of
// crashing.
func ComputeMovingAverages(prior []float64, newPrice float64) []float64 {
	durations := Durations()
	out := make([]float64, len(durations))

	if len(prior) != len(durations) {
		for i := range out {
			out[i] = newPrice
		}
		return out
	}

	for i, d := range durations {
		out[i] = prior[i] + (newPrice-prior[i])/float64(d)
	}
	return out
}
