package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/ethmatic-backend/internal/models"
)

const pendingColumns = `txn_hash, trade_uuid, agent_address, wallet_index,
	symbol, amount, created_on, type`

type PendingTxnRepo struct {
	pool *pgxpool.Pool
}

func NewPendingTxnRepo(pool *pgxpool.Pool) *PendingTxnRepo {
	return &PendingTxnRepo{pool: pool}
}

func (r *PendingTxnRepo) Submit(ctx context.Context, txn *models.PendingTxn) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO pending_txns (txn_hash, trade_uuid, agent_address, wallet_index, symbol, amount, created_on, type)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), $7)`,
		txn.TxnHash, txn.TradeUUID, txn.AgentAddress, txn.WalletIndex,
		txn.Symbol, txn.Amount, txn.Type,
	)
	return err
}

// LoadPending returns every row, oldest first. Rows survive until the
// reconciler has both published a receipt and deleted them.
func (r *PendingTxnRepo) LoadPending(ctx context.Context) ([]models.PendingTxn, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+pendingColumns+` FROM pending_txns ORDER BY created_on ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PendingTxn
	for rows.Next() {
		var p models.PendingTxn
		if err := rows.Scan(
			&p.TxnHash, &p.TradeUUID, &p.AgentAddress, &p.WalletIndex,
			&p.Symbol, &p.Amount, &p.CreatedOn, &p.Type,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *PendingTxnRepo) Delete(ctx context.Context, txnHash string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM pending_txns WHERE txn_hash = $1`,
		txnHash,
	)
	return err
}
