package engine

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/kjannette/ethmatic-backend/internal/bus"
	"github.com/kjannette/ethmatic-backend/internal/metrics"
	"github.com/kjannette/ethmatic-backend/internal/models"
)

// Reconciler is stage 3: a polling sweep over the pending queue. It never
// waits for a transaction; anything unmined is revisited next sweep. Rows
// are deleted only after their receipt message is published, so a crashed
// or failed sweep replays rather than losing settlements.
type Reconciler struct {
	pending PendingStore
	trades  TradeStore
	reader  ChainReader
	pub     Publisher
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewReconciler(pending PendingStore, trades TradeStore, reader ChainReader, pub Publisher, m *metrics.Metrics, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		pending: pending,
		trades:  trades,
		reader:  reader,
		pub:     pub,
		metrics: m,
		log:     log.With().Str("component", "reconciler").Logger(),
	}
}

// Sweep reconciles every pending row once. Per-row failures are logged and
// leave the row in place.
func (r *Reconciler) Sweep(ctx context.Context) error {
	rows, err := r.pending.LoadPending(ctx)
	if err != nil {
		return err
	}
	r.metrics.SetPendingDepth(len(rows))

	for i := range rows {
		if err := r.reconcile(ctx, &rows[i]); err != nil {
			r.log.Error().Err(err).Str("txn", rows[i].TxnHash).Msg("row left for next sweep")
		}
	}
	return nil
}

func (r *Reconciler) reconcile(ctx context.Context, row *models.PendingTxn) error {
	age := time.Since(row.CreatedOn).Round(time.Second)

	tx, from, unmined, err := r.reader.TransactionByHash(ctx, row.TxnHash)
	if err != nil {
		// Not found is normal right after submission; the node may not
		// have seen the transaction yet.
		r.log.Warn().Err(err).Str("txn", row.TxnHash).Dur("age", age).Msg("transaction not fetchable")
		return nil
	}

	if !sameAddress(from.Hex(), row.AgentAddress) {
		r.log.Warn().
			Str("txn", row.TxnHash).
			Str("sender", from.Hex()).
			Str("agent", row.AgentAddress).
			Msg("sender mismatch, skipping")
		return nil
	}

	if unmined {
		r.log.Debug().Str("txn", row.TxnHash).Dur("age", age).Msg("still unmined")
		return nil
	}

	receipt, err := r.reader.TransactionReceipt(ctx, row.TxnHash)
	if err != nil {
		return err
	}
	block, err := r.reader.BlockByNumber(ctx, receipt.BlockNumber)
	if err != nil {
		return err
	}

	status := models.StatusReverted
	if receipt.Status == types.ReceiptStatusSuccessful {
		status = models.StatusApplied
	}

	rc := models.TxnReceipt{
		PendingTxn:     *row,
		TxnBlock:       receipt.BlockNumber.Int64(),
		TxnIdx:         int(receipt.TransactionIndex),
		BlockTimestamp: int64(block.Time()),
		Gas:            txnFee(receipt).String(),
		TxnStatus:      status,
		Logs:           derefLogs(receipt.Logs),
	}
	if to := tx.To(); to != nil {
		rc.ToAddr = to.Hex()
	}

	if row.TradeUUID != "" {
		if err := r.trades.SaveReceipt(ctx, row.TradeUUID, rc); err != nil {
			return err
		}
	}

	// Publish before delete: a failed publish keeps the row and the next
	// sweep redoes this work idempotently.
	if err := r.pub.Publish(ctx, bus.ChannelTxnReceipts, rc); err != nil {
		return err
	}
	if err := r.pending.Delete(ctx, row.TxnHash); err != nil {
		return err
	}

	r.log.Info().
		Str("txn", row.TxnHash).
		Str("type", string(row.Type)).
		Str("status", string(status)).
		Dur("age", age).
		Msg("settled")
	return nil
}

// txnFee is the realized cost in wei.
func txnFee(receipt *types.Receipt) *big.Int {
	if receipt.EffectiveGasPrice == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Mul(new(big.Int).SetUint64(receipt.GasUsed), receipt.EffectiveGasPrice)
}

func derefLogs(logs []*types.Log) []types.Log {
	out := make([]types.Log, 0, len(logs))
	for _, l := range logs {
		if l != nil {
			out = append(out, *l)
		}
	}
	return out
}
