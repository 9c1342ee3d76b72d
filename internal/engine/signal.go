package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kjannette/ethmatic-backend/internal/bus"
	"github.com/kjannette/ethmatic-backend/internal/chain"
	"github.com/kjannette/ethmatic-backend/internal/metrics"
	"github.com/kjannette/ethmatic-backend/internal/models"
	"github.com/kjannette/ethmatic-backend/internal/price"
	"github.com/kjannette/ethmatic-backend/internal/strategy"
)

// SignalEngine is stage 1: one pass over the active agents deciding, per
// agent, whether to open a trade, drop a stale one, or do nothing.
type SignalEngine struct {
	agents   AgentStore
	trades   TradeStore
	prices   PriceStore
	pub      Publisher
	oracle   chain.GasOracle
	metrics  *metrics.Metrics
	notifier Notifier
	log      zerolog.Logger
}

func NewSignalEngine(agents AgentStore, trades TradeStore, prices PriceStore, pub Publisher, oracle chain.GasOracle, m *metrics.Metrics, n Notifier, log zerolog.Logger) *SignalEngine {
	return &SignalEngine{
		agents:   agents,
		trades:   trades,
		prices:   prices,
		pub:      pub,
		oracle:   oracle,
		metrics:  m,
		notifier: n,
		log:      log.With().Str("component", "signal-engine").Logger(),
	}
}

// RunCycle evaluates every active agent once. Gas above the ceiling aborts
// the whole cycle before any agent is touched; a missing price row is fatal
// for the cycle. Per-agent failures are logged and do not stop the pass.
func (e *SignalEngine) RunCycle(ctx context.Context) error {
	est, err := e.oracle.Estimate(ctx)
	if err != nil {
		return fmt.Errorf("gas estimate: %w", err)
	}
	if !chain.IsGasAcceptable(est) {
		e.metrics.CountGasAbort()
		e.notifier.Notify("signal cycle skipped",
			fmt.Sprintf("gas at %s gwei is above the ceiling", chain.GasAsGwei(est)))
		return fmt.Errorf("signal cycle at %s gwei: %w", chain.GasAsGwei(est), ErrGasTooHigh)
	}

	row, err := e.prices.GetRow(ctx, price.TradingPair)
	if err != nil {
		return fmt.Errorf("load price row: %w", err)
	}
	if row == nil {
		return fmt.Errorf("%s: %w", price.TradingPair, ErrNoPriceRow)
	}

	agents, err := e.agents.LoadActive(ctx)
	if err != nil {
		return fmt.Errorf("load active agents: %w", err)
	}

	var best strategy.BestProximity
	for i := range agents {
		agent := &agents[i]
		decision, err := strategy.Evaluate(agent, row.SMAs, row.Price)
		if err != nil {
			e.log.Error().Err(err).Str("agent", agent.AgentAddress).Msg("agent not evaluable")
			continue
		}
		best.Observe(agent, decision)

		switch decision.Action {
		case strategy.ActionAddTrade:
			if err := e.addTrade(ctx, agent, row.Price); err != nil {
				e.log.Error().Err(err).Str("agent", agent.AgentAddress).Msg("add trade failed")
			}
		case strategy.ActionDropTrade:
			if err := e.dropTrade(ctx, agent); err != nil {
				e.log.Error().Err(err).Str("agent", agent.AgentAddress).Msg("drop trade failed")
			}
		}
	}

	if best.AgentAddress != "" {
		e.metrics.SetBestProximity(string(best.Side), best.Ratio)
		e.log.Info().
			Str("agent", best.AgentAddress).
			Str("side", string(best.Side)).
			Float64("ratio", best.Ratio).
			Msg("closest to trigger")
	}
	return nil
}

// addTrade writes the trade row, takes the agent's lock, and publishes the
// request. The lock write is conditional: losing the race to a concurrent
// writer drops this trade rather than stealing the lock.
func (e *SignalEngine) addTrade(ctx context.Context, agent *models.Agent, currentPrice float64) error {
	id := uuid.NewString()

	trade := &models.Trade{
		UUID:         id,
		Side:         agent.Side,
		AgentAddress: agent.AgentAddress,
		CurrentPrice: currentPrice,
		Status:       models.StatusPending,
	}
	if err := e.trades.Create(ctx, trade); err != nil {
		return fmt.Errorf("create trade row: %w", err)
	}

	if err := e.agents.AcquireOpenTrade(ctx, agent.AgentAddress, id); err != nil {
		if dropErr := e.trades.MarkDropped(ctx, id); dropErr != nil {
			e.log.Error().Err(dropErr).Str("uuid", id).Msg("orphaned trade row")
		}
		return fmt.Errorf("acquire lock: %w", err)
	}

	req := models.TradeRequest{
		UUID:         id,
		Side:         agent.Side,
		AgentAddress: agent.AgentAddress,
		CurrentPrice: currentPrice,
	}
	if err := e.pub.Publish(ctx, bus.ChannelTradeRequests, req); err != nil {
		// Roll the admission back; an unpublished request would pin the
		// lock until an operator intervened.
		if relErr := e.agents.ReleaseOpenTrade(ctx, agent.AgentAddress, id); relErr != nil {
			e.log.Error().Err(relErr).Str("agent", agent.AgentAddress).Msg("rollback release failed")
		}
		if dropErr := e.trades.MarkDropped(ctx, id); dropErr != nil {
			e.log.Error().Err(dropErr).Str("uuid", id).Msg("orphaned trade row")
		}
		return fmt.Errorf("publish trade request: %w", err)
	}

	e.log.Info().
		Str("agent", agent.AgentAddress).
		Str("uuid", id).
		Str("side", string(agent.Side)).
		Float64("price", currentPrice).
		Msg("trade requested")
	return nil
}

// dropTrade abandons an open trade whose signal has gone away.
func (e *SignalEngine) dropTrade(ctx context.Context, agent *models.Agent) error {
	id := agent.OpenTradeID
	if err := e.agents.ReleaseOpenTrade(ctx, agent.AgentAddress, id); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	if err := e.trades.MarkDropped(ctx, id); err != nil {
		return fmt.Errorf("mark dropped: %w", err)
	}
	e.log.Info().Str("agent", agent.AgentAddress).Str("uuid", id).Msg("trade dropped")
	return nil
}
