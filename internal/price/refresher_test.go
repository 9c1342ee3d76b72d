package price

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/kjannette/ethmatic-backend/internal/bus"
	"github.com/kjannette/ethmatic-backend/internal/chain"
	"github.com/kjannette/ethmatic-backend/internal/metrics"
	"github.com/kjannette/ethmatic-backend/internal/models"
)

type fakeQuoter struct {
	prices map[string]float64
}

func (f *fakeQuoter) PoolPrice(_ context.Context, base, quote chain.Token) (chain.PoolQuote, error) {
	return chain.PoolQuote{
		Price:     f.prices[base.Symbol+"/"+quote.Symbol],
		Liquidity: "1000",
	}, nil
}

type fakePriceStore struct {
	rows    map[string]*models.PriceRow
	history []string
}

func (f *fakePriceStore) GetRow(_ context.Context, pair string) (*models.PriceRow, error) {
	return f.rows[pair], nil
}

func (f *fakePriceStore) UpdateRow(_ context.Context, p *models.PriceRow) error {
	f.rows[p.Pair] = p
	return nil
}

func (f *fakePriceStore) AddHistory(_ context.Context, pair string, _ float64, _ string) error {
	f.history = append(f.history, pair)
	return nil
}

type fakePublisher struct {
	channels []string
}

func (f *fakePublisher) Publish(_ context.Context, channel string, _ any) error {
	f.channels = append(f.channels, channel)
	return nil
}

func TestRefreshColdStartAndNudge(t *testing.T) {
	quoter := &fakeQuoter{prices: map[string]float64{
		"WETH/WMATIC": 2000,
		"WMATIC/USDC": 0.5,
		"WETH/USDC":   1000,
	}}
	store := &fakePriceStore{rows: map[string]*models.PriceRow{}}
	pub := &fakePublisher{}
	r := NewRefresher(quoter, store, pub, metrics.New(prometheus.NewRegistry()), zerolog.Nop())

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Cold start seeds every trading-pair bucket to the current price.
	trading := store.rows[TradingPair]
	if trading == nil {
		t.Fatal("no trading pair row written")
	}
	if len(trading.SMAs) != BucketCount {
		t.Fatalf("got %d buckets, want %d", len(trading.SMAs), BucketCount)
	}
	for i, v := range trading.SMAs {
		if v != 2000 {
			t.Fatalf("bucket %d = %g, want seeded 2000", i, v)
		}
	}

	// USDC pairs carry no buckets.
	if row := store.rows[PairWMATIC]; row == nil || row.SMAs != nil {
		t.Fatalf("WMATIC/USDC row = %+v, want bucketless", row)
	}

	if len(store.history) != 3 {
		t.Fatalf("wrote %d history rows, want 3", len(store.history))
	}
	if len(pub.channels) != 1 || pub.channels[0] != bus.ChannelCycleComplete {
		t.Fatalf("published %v, want one cycle-complete", pub.channels)
	}

	// Second pass nudges each bucket by (newPrice - prior) / duration.
	quoter.prices["WETH/WMATIC"] = 2060
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	trading = store.rows[TradingPair]
	for i, d := range Durations() {
		want := 2000 + 60/float64(d)
		if trading.SMAs[i] != want {
			t.Fatalf("bucket %d (duration %d) = %g, want %g", i, d, trading.SMAs[i], want)
		}
	}
}
