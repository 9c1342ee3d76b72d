package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/rs/zerolog"

	"github.com/kjannette/ethmatic-backend/internal/chain"
	"github.com/kjannette/ethmatic-backend/internal/metrics"
	"github.com/kjannette/ethmatic-backend/internal/models"
)

// halfCoin is the fee floor: half a native unit in wei. Wallets below it
// cannot cover swap fees, and dust positions below it are not worth
// trading.
var halfCoin = big.NewInt(500_000_000_000_000_000)

// Executor is stage 2: it turns a trade request into a submitted swap.
// Requests arrive at-least-once, so every step revalidates against fresh
// state instead of trusting the message.
type Executor struct {
	agents  AgentStore
	trades  TradeStore
	pending PendingStore
	errors  ErrorStore
	trader  Trader
	oracle  chain.GasOracle
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewExecutor(agents AgentStore, trades TradeStore, pending PendingStore, errs ErrorStore, trader Trader, oracle chain.GasOracle, m *metrics.Metrics, log zerolog.Logger) *Executor {
	return &Executor{
		agents:  agents,
		trades:  trades,
		pending: pending,
		errors:  errs,
		trader:  trader,
		oracle:  oracle,
		metrics: m,
		log:     log.With().Str("component", "executor").Logger(),
	}
}

// HandleTradeRequest processes one request end to end. A nil return means
// the message is consumed; an error means the delivery should be recorded
// as failed and the agent has already been parked.
func (x *Executor) HandleTradeRequest(ctx context.Context, req models.TradeRequest) error {
	agent, err := x.agents.Load(ctx, req.AgentAddress)
	if err != nil {
		return fmt.Errorf("reload agent %s: %w", req.AgentAddress, err)
	}
	if agent == nil {
		return x.fail(ctx, req, fmt.Errorf("agent %s no longer exists", req.AgentAddress))
	}

	// Deactivated after the request was queued: the message is stale, not
	// wrong. Consume it without touching anything.
	if !agent.IsActive {
		x.log.Warn().Str("agent", agent.AgentAddress).Str("uuid", req.UUID).Msg("agent inactive, request ignored")
		return nil
	}

	// Active but unlocked is an inconsistency we cannot reason about.
	// Park the agent and stop.
	if agent.OpenTradeID == "" {
		x.log.Error().Str("agent", agent.AgentAddress).Str("uuid", req.UUID).Msg("active agent without lock, deactivating")
		if err := x.agents.SetActivation(ctx, agent.AgentAddress, false); err != nil {
			return fmt.Errorf("deactivate %s: %w", agent.AgentAddress, err)
		}
		return nil
	}

	est, err := x.oracle.Estimate(ctx)
	if err != nil {
		return x.fail(ctx, req, fmt.Errorf("gas estimate: %w", err))
	}
	if !chain.IsGasAcceptable(est) {
		// Gas moved against us while the request was in flight. Abandon
		// the trade loudly so the caller records a failed delivery.
		x.metrics.CountGasAbort()
		if err := x.agents.ClearOpenTrade(ctx, agent.AgentAddress); err != nil {
			x.log.Error().Err(err).Str("agent", agent.AgentAddress).Msg("clear lock failed")
		}
		if err := x.trades.MarkDropped(ctx, req.UUID); err != nil {
			x.log.Error().Err(err).Str("uuid", req.UUID).Msg("mark dropped failed")
		}
		return fmt.Errorf("trade %s at %s gwei: %w", req.UUID, chain.GasAsGwei(est), ErrGasTooHigh)
	}

	tokenIn, tokenOut := tradeTokens(req.Side)

	owner, err := x.trader.Address(agent.WalletIndex)
	if err != nil {
		return x.fail(ctx, req, fmt.Errorf("derive wallet %d: %w", agent.WalletIndex, err))
	}

	native, err := x.trader.Balance(ctx, owner)
	if err != nil {
		return x.fail(ctx, req, fmt.Errorf("native balance: %w", err))
	}
	if native.Cmp(halfCoin) < 0 {
		return x.fail(ctx, req, fmt.Errorf("native balance %s below fee floor", native))
	}

	inputBal, err := x.trader.TokenBalance(ctx, tokenIn, owner)
	if err != nil {
		return x.fail(ctx, req, fmt.Errorf("%s balance: %w", tokenIn.Symbol, err))
	}
	if inputValue(req.Side, inputBal, req.CurrentPrice).Cmp(halfCoin) < 0 {
		return x.fail(ctx, req, fmt.Errorf("%s position %s below trade floor", tokenIn.Symbol, inputBal))
	}

	hash, err := x.trader.Swap(ctx, agent.WalletIndex, tokenIn, tokenOut, inputBal, est)
	if err != nil {
		return x.fail(ctx, req, fmt.Errorf("submit swap: %w", err))
	}

	if err := x.trades.SaveSubmission(ctx, req.UUID, hash, tokenIn.Symbol, inputBal.String()); err != nil {
		return x.fail(ctx, req, fmt.Errorf("save submission: %w", err))
	}
	if err := x.pending.Submit(ctx, &models.PendingTxn{
		TxnHash:      hash,
		TradeUUID:    req.UUID,
		AgentAddress: agent.AgentAddress,
		WalletIndex:  agent.WalletIndex,
		Symbol:       tokenIn.Symbol,
		Amount:       inputBal.String(),
		Type:         models.TxnSwap,
	}); err != nil {
		return x.fail(ctx, req, fmt.Errorf("enqueue pending txn: %w", err))
	}

	x.log.Info().
		Str("agent", agent.AgentAddress).
		Str("uuid", req.UUID).
		Str("txn", hash).
		Str("input", tokenIn.Symbol).
		Msg("swap submitted")
	return nil
}

// tradeTokens maps the trade side onto the pair: BUY spends the quote token
// for WETH, SELL spends WETH back into the quote token.
func tradeTokens(side models.Side) (chain.Token, chain.Token) {
	if side == models.SideSell {
		return chain.WETH(), chain.WMATIC()
	}
	return chain.WMATIC(), chain.WETH()
}

// inputValue is the quantity checked against the trade floor. The SELL side
// scales the WETH balance by the current price to approximate the quote
// notional; the swap itself still spends the raw balance. Known
// approximation, kept deliberately.
func inputValue(side models.Side, balance *big.Int, currentPrice float64) *big.Int {
	if side != models.SideSell {
		return balance
	}
	scaled, _ := new(big.Float).Mul(new(big.Float).SetInt(balance), big.NewFloat(currentPrice)).Int(nil)
	return scaled
}

// fail is the single failure path: record the error against the trade,
// park the agent, release its lock, and surface the cause.
func (x *Executor) fail(ctx context.Context, req models.TradeRequest, cause error) error {
	if err := x.errors.Record(ctx, req.UUID, req.AgentAddress, cause.Error()); err != nil {
		x.log.Error().Err(err).Str("uuid", req.UUID).Msg("error record failed")
	}
	if err := x.agents.SetActivation(ctx, req.AgentAddress, false); err != nil {
		x.log.Error().Err(err).Str("agent", req.AgentAddress).Msg("deactivate failed")
	}
	if err := x.agents.ClearOpenTrade(ctx, req.AgentAddress); err != nil {
		x.log.Error().Err(err).Str("agent", req.AgentAddress).Msg("clear lock failed")
	}
	return cause
}
