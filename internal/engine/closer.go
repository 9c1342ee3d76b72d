package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kjannette/ethmatic-backend/internal/chain"
	"github.com/kjannette/ethmatic-backend/internal/metrics"
	"github.com/kjannette/ethmatic-backend/internal/models"
	"github.com/kjannette/ethmatic-backend/internal/price"
	"github.com/kjannette/ethmatic-backend/internal/repository"
)

// Closer is stage 4: it consumes receipt messages and posts their
// consequences — ledger rows, trade settlement, agent lock release. Receipt
// messages are a tagged union; Type picks the handler.
type Closer struct {
	agents   AgentStore
	trades   TradeStore
	ledger   LedgerStore
	prices   PriceStore
	metrics  *metrics.Metrics
	notifier Notifier
	log      zerolog.Logger
}

func NewCloser(agents AgentStore, trades TradeStore, ledger LedgerStore, prices PriceStore, m *metrics.Metrics, n Notifier, log zerolog.Logger) *Closer {
	return &Closer{
		agents:   agents,
		trades:   trades,
		ledger:   ledger,
		prices:   prices,
		metrics:  m,
		notifier: n,
		log:      log.With().Str("component", "closer").Logger(),
	}
}

// HandleReceipt dispatches one receipt message by its type tag.
func (c *Closer) HandleReceipt(ctx context.Context, rc models.TxnReceipt) error {
	switch rc.Type {
	case models.TxnSwap:
		return c.closeTrade(ctx, rc)
	case models.TxnWrap, models.TxnUnwrap:
		return c.closeTreasury(ctx, rc)
	default:
		c.log.Warn().Str("txn", rc.TxnHash).Str("type", string(rc.Type)).Msg("no closer for receipt type")
		return nil
	}
}

// closeTrade settles a swap receipt. Whatever happened on chain, the agent
// must leave this function unlocked and active; only an unparseable receipt
// is allowed to halt that.
func (c *Closer) closeTrade(ctx context.Context, rc models.TxnReceipt) error {
	switch rc.TxnStatus {
	case models.StatusReverted:
		c.metrics.CountTrade(swapSide(rc.Symbol), "REVERTED")
		c.log.Warn().Str("txn", rc.TxnHash).Str("uuid", rc.TradeUUID).Msg("swap reverted")
		return c.unlock(ctx, rc.AgentAddress, rc.TradeUUID)

	case models.StatusApplied:
		if err := c.settleTrade(ctx, rc); err != nil {
			return err
		}
		return c.unlock(ctx, rc.AgentAddress, rc.TradeUUID)

	default:
		// Unrecognized status is an explicit no-op: the reconciler only
		// emits APPLIED or REVERTED, so anything else is a replay of a
		// message shape we do not own.
		c.log.Warn().Str("txn", rc.TxnHash).Str("status", string(rc.TxnStatus)).Msg("receipt status ignored")
		return nil
	}
}

func (c *Closer) settleTrade(ctx context.Context, rc models.TxnReceipt) error {
	in, out, err := swapTransfers(rc)
	if err != nil {
		return err
	}

	inPrice, outPrice, err := c.usdcPrices(ctx, in.symbol, out.symbol)
	if err != nil {
		return err
	}

	debit := &models.LedgerEntry{
		TxnHash:      rc.TxnHash + "_d",
		TxnBlock:     rc.TxnBlock,
		TxnIdx:       rc.TxnIdx,
		Gas:          rc.Gas,
		AgentAddress: rc.AgentAddress,
		Symbol:       in.symbol,
		Price:        inPrice,
		Type:         models.TxnSwap,
		Amount:       in.amount,
		Debit:        true,
	}
	credit := &models.LedgerEntry{
		TxnHash:      rc.TxnHash + "_c",
		TxnBlock:     rc.TxnBlock,
		TxnIdx:       rc.TxnIdx,
		Gas:          rc.Gas,
		AgentAddress: rc.AgentAddress,
		Symbol:       out.symbol,
		Price:        outPrice,
		Type:         models.TxnSwap,
		Amount:       out.amount,
		Debit:        false,
	}
	if err := c.ledger.Add(ctx, debit); err != nil {
		return fmt.Errorf("post debit: %w", err)
	}
	if err := c.ledger.Add(ctx, credit); err != nil {
		return fmt.Errorf("post credit: %w", err)
	}

	if err := c.trades.SaveSettlement(ctx, rc.TradeUUID, out.amount, inPrice, outPrice); err != nil {
		return fmt.Errorf("save settlement: %w", err)
	}

	// The position changed hands, so the agent now trades the other way.
	if err := c.agents.SwitchSides(ctx, rc.AgentAddress, ""); err != nil {
		return fmt.Errorf("flip side: %w", err)
	}

	c.metrics.CountTrade(swapSide(rc.Symbol), "APPLIED")
	c.notifier.Notify("trade settled",
		fmt.Sprintf("%s swapped %s %s for %s %s", rc.AgentAddress, in.amount, in.symbol, out.amount, out.symbol))
	c.log.Info().
		Str("txn", rc.TxnHash).
		Str("uuid", rc.TradeUUID).
		Str("in", in.symbol).
		Str("out", out.symbol).
		Msg("trade settled")
	return nil
}

// closeTreasury settles a wrap or unwrap: one single-sided ledger row, and
// the agent's side resets to BUY because its position composition changed
// out from under the strategy.
func (c *Closer) closeTreasury(ctx context.Context, rc models.TxnReceipt) error {
	if rc.TxnStatus != models.StatusApplied {
		c.log.Warn().Str("txn", rc.TxnHash).Str("status", string(rc.TxnStatus)).Msg("treasury txn not applied")
		return nil
	}

	pair, ok := usdcPairFor(rc.Symbol)
	if !ok {
		return fmt.Errorf("txn %s: no USDC pair for %q", rc.TxnHash, rc.Symbol)
	}
	prices, err := c.prices.AllPrices(ctx, pair)
	if err != nil {
		return fmt.Errorf("resolve %s price: %w", rc.Symbol, err)
	}

	entry := &models.LedgerEntry{
		TxnHash:      rc.TxnHash,
		TxnBlock:     rc.TxnBlock,
		TxnIdx:       rc.TxnIdx,
		Gas:          rc.Gas,
		AgentAddress: rc.AgentAddress,
		Symbol:       rc.Symbol,
		Price:        prices[pair],
		Type:         rc.Type,
		Amount:       rc.Amount,
		Debit:        rc.Type == models.TxnUnwrap,
	}
	if err := c.ledger.Add(ctx, entry); err != nil {
		return fmt.Errorf("post %s entry: %w", rc.Type, err)
	}

	if err := c.agents.SwitchSides(ctx, rc.AgentAddress, models.SideBuy); err != nil {
		return fmt.Errorf("reset side: %w", err)
	}

	c.log.Info().Str("txn", rc.TxnHash).Str("type", string(rc.Type)).Msg("treasury txn settled")
	return nil
}

// unlock ends the trade's claim on the agent. The conditional release can
// lose only to a failure path that already cleared the lock, so a conflict
// downgrades to the unconditional clear.
func (c *Closer) unlock(ctx context.Context, agentAddress, tradeUUID string) error {
	if err := c.agents.ReleaseOpenTrade(ctx, agentAddress, tradeUUID); err != nil {
		if !errors.Is(err, repository.ErrLockConflict) {
			return fmt.Errorf("release lock: %w", err)
		}
		if err := c.agents.ClearOpenTrade(ctx, agentAddress); err != nil {
			return fmt.Errorf("clear lock: %w", err)
		}
	}
	if err := c.agents.SetActivation(ctx, agentAddress, true); err != nil {
		return fmt.Errorf("reactivate: %w", err)
	}
	return nil
}

type transferLeg struct {
	symbol string
	amount string
}

// swapTransfers extracts the two legs of a settled swap from the receipt
// logs: index 1 is the inbound transfer (from the agent into the pool),
// index 0 the outbound (pool to agent). Any other shape is an inconsistency
// surfaced to the caller.
func swapTransfers(rc models.TxnReceipt) (in, out transferLeg, err error) {
	if len(rc.Logs) < 2 {
		return in, out, fmt.Errorf("txn %s: %d logs, need 2 transfers", rc.TxnHash, len(rc.Logs))
	}

	inEv, ok := chain.ParseTransfer(rc.Logs[1])
	if !ok {
		return in, out, fmt.Errorf("txn %s: log 1 is not a transfer", rc.TxnHash)
	}
	if !sameAddress(inEv.From.Hex(), rc.AgentAddress) {
		return in, out, fmt.Errorf("txn %s: inbound transfer from %s, want agent %s", rc.TxnHash, inEv.From.Hex(), rc.AgentAddress)
	}

	outEv, ok := chain.ParseTransfer(rc.Logs[0])
	if !ok {
		return in, out, fmt.Errorf("txn %s: log 0 is not a transfer", rc.TxnHash)
	}
	if !sameAddress(outEv.To.Hex(), rc.AgentAddress) {
		return in, out, fmt.Errorf("txn %s: outbound transfer to %s, want agent %s", rc.TxnHash, outEv.To.Hex(), rc.AgentAddress)
	}

	inSym, err := symbolFor(inEv.Token.Hex())
	if err != nil {
		return in, out, fmt.Errorf("txn %s: %w", rc.TxnHash, err)
	}
	outSym, err := symbolFor(outEv.Token.Hex())
	if err != nil {
		return in, out, fmt.Errorf("txn %s: %w", rc.TxnHash, err)
	}

	in = transferLeg{symbol: inSym, amount: inEv.Value.String()}
	out = transferLeg{symbol: outSym, amount: outEv.Value.String()}
	return in, out, nil
}

func symbolFor(tokenAddress string) (string, error) {
	for _, t := range []chain.Token{chain.WMATIC(), chain.WETH(), chain.USDC()} {
		if sameAddress(t.Address.Hex(), tokenAddress) {
			return t.Symbol, nil
		}
	}
	return "", fmt.Errorf("unknown token %s", tokenAddress)
}

func usdcPairFor(symbol string) (string, bool) {
	switch symbol {
	case "WMATIC":
		return price.PairWMATIC, true
	case "WETH":
		return price.PairWETH, true
	}
	return "", false
}

func (c *Closer) usdcPrices(ctx context.Context, inSymbol, outSymbol string) (float64, float64, error) {
	inPair, ok := usdcPairFor(inSymbol)
	if !ok {
		return 0, 0, fmt.Errorf("no USDC pair for %q", inSymbol)
	}
	outPair, ok := usdcPairFor(outSymbol)
	if !ok {
		return 0, 0, fmt.Errorf("no USDC pair for %q", outSymbol)
	}

	prices, err := c.prices.AllPrices(ctx, inPair, outPair)
	if err != nil {
		return 0, 0, fmt.Errorf("resolve USDC prices: %w", err)
	}
	inPrice, ok := prices[inPair]
	if !ok {
		return 0, 0, fmt.Errorf("no price row for %s", inPair)
	}
	outPrice, ok := prices[outPair]
	if !ok {
		return 0, 0, fmt.Errorf("no price row for %s", outPair)
	}
	return inPrice, outPrice, nil
}

// swapSide labels trade metrics by what the input token implies: spending
// the quote token is a buy, spending WETH is a sell.
func swapSide(inputSymbol string) string {
	if inputSymbol == "WETH" {
		return string(models.SideSell)
	}
	return string(models.SideBuy)
}
