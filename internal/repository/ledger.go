package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/ethmatic-backend/internal/models"
)

const ledgerColumns = `txn_hash, txn_block, txn_idx, gas,
	agent_address, symbol, price, type, amount, debit, created_on`

// LedgerRepo appends realized token movements. Rows are never updated or
// deleted.
type LedgerRepo struct {
	pool *pgxpool.Pool
}

func NewLedgerRepo(pool *pgxpool.Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

func (r *LedgerRepo) Add(ctx context.Context, e *models.LedgerEntry) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO ledger (txn_hash, txn_block, txn_idx, gas, agent_address, symbol, price, type, amount, debit, created_on)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())`,
		e.TxnHash, e.TxnBlock, e.TxnIdx, e.Gas,
		e.AgentAddress, e.Symbol, e.Price, e.Type, e.Amount, e.Debit,
	)
	return err
}

func (r *LedgerRepo) GetRecent(ctx context.Context, limit int) ([]models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+ledgerColumns+` FROM ledger ORDER BY created_on DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLedger(rows)
}

func (r *LedgerRepo) GetByAgent(ctx context.Context, address string, limit int) ([]models.LedgerEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+ledgerColumns+` FROM ledger WHERE agent_address = $1 ORDER BY created_on DESC LIMIT $2`,
		address, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLedger(rows)
}

func collectLedger(rows rowsIter) ([]models.LedgerEntry, error) {
	var out []models.LedgerEntry
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(
			&e.TxnHash, &e.TxnBlock, &e.TxnIdx, &e.Gas,
			&e.AgentAddress, &e.Symbol, &e.Price, &e.Type, &e.Amount, &e.Debit,
			&e.CreatedOn,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
