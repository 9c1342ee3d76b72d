package price

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kjannette/ethmatic-backend/internal/bus"
	"github.com/kjannette/ethmatic-backend/internal/chain"
	"github.com/kjannette/ethmatic-backend/internal/metrics"
	"github.com/kjannette/ethmatic-backend/internal/models"
)

// Quoter reads a spot pool price.
type Quoter interface {
	PoolPrice(ctx context.Context, base, quote chain.Token) (chain.PoolQuote, error)
}

// Store is the slice of the price repository the refresher needs.
type Store interface {
	GetRow(ctx context.Context, pair string) (*models.PriceRow, error)
	UpdateRow(ctx context.Context, p *models.PriceRow) error
	AddHistory(ctx context.Context, pair string, price float64, liquidity string) error
}

// Publisher announces cycle completion on the bus.
type Publisher interface {
	Publish(ctx context.Context, channel string, msg any) error
}

type pairSpec struct {
	name        string
	base, quote chain.Token
	withSMAs    bool
}

// Refresher is the price stage: one pass reads every pair's pool, appends
// history, advances the moving averages on the trading pair, and announces
// the cycle.
type Refresher struct {
	quoter  Quoter
	store   Store
	pub     Publisher
	metrics *metrics.Metrics
	log     zerolog.Logger
	pairs   []pairSpec
}

func NewRefresher(quoter Quoter, store Store, pub Publisher, m *metrics.Metrics, log zerolog.Logger) *Refresher {
	return &Refresher{
		quoter:  quoter,
		store:   store,
		pub:     pub,
		metrics: m,
		log:     log.With().Str("component", "price-refresher").Logger(),
		pairs: []pairSpec{
			{name: TradingPair, base: chain.WETH(), quote: chain.WMATIC(), withSMAs: true},
			{name: PairWMATIC, base: chain.WMATIC(), quote: chain.USDC()},
			{name: PairWETH, base: chain.WETH(), quote: chain.USDC()},
		},
	}
}

// Refresh runs one full pass. A pair that fails to quote fails the pass;
// stale prices must never feed the signal stage silently.
func (r *Refresher) Refresh(ctx context.Context) error {
	for _, p := range r.pairs {
		if err := r.refreshPair(ctx, p); err != nil {
			return fmt.Errorf("refresh %s: %w", p.name, err)
		}
	}

	if err := r.pub.Publish(ctx, bus.ChannelCycleComplete, struct{}{}); err != nil {
		// Completion is advisory; the refreshed rows are already durable.
		r.log.Warn().Err(err).Msg("cycle-complete publish failed")
	}
	return nil
}

func (r *Refresher) refreshPair(ctx context.Context, p pairSpec) error {
	quote, err := r.quoter.PoolPrice(ctx, p.base, p.quote)
	if err != nil {
		return err
	}

	if err := r.store.AddHistory(ctx, p.name, quote.Price, quote.Liquidity); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	row := &models.PriceRow{
		Pair:      p.name,
		Price:     quote.Price,
		Liquidity: quote.Liquidity,
	}

	if p.withSMAs {
		prior, err := r.store.GetRow(ctx, p.name)
		if err != nil {
			return fmt.Errorf("load prior row: %w", err)
		}
		var priorSMAs []float64
		if prior != nil {
			priorSMAs = prior.SMAs
		}
		row.SMAs = ComputeMovingAverages(priorSMAs, quote.Price)

		for i, d := range Durations() {
			r.metrics.SetMovingAverage(p.name, d, row.SMAs[i])
		}
	}

	if err := r.store.UpdateRow(ctx, row); err != nil {
		return fmt.Errorf("update price row: %w", err)
	}

	r.metrics.SetPairPrice(p.name, quote.Price)
	r.log.Debug().Str("pair", p.name).Float64("price", quote.Price).Msg("pair refreshed")
	return nil
}
