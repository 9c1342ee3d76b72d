package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/ethmatic-backend/internal/models"
)

const tradeColumns = `uuid, side, agent_address, current_price,
	txn_hash, input_token, input_bal,
	to_addr, txn_block, txn_idx, block_timestamp, gas,
	output_bal, input_price, output_price,
	trade_status, created_on, updated_on`

type TradeRepo struct {
	pool *pgxpool.Pool
}

func NewTradeRepo(pool *pgxpool.Pool) *TradeRepo {
	return &TradeRepo{pool: pool}
}

// Create inserts the open trade row written by the signal engine.
func (r *TradeRepo) Create(ctx context.Context, t *models.Trade) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO trades (uuid, side, agent_address, current_price, trade_status, created_on, updated_on)
		 VALUES ($1, $2, $3, $4, $5, NOW(), NOW())`,
		t.UUID, t.Side, t.AgentAddress, t.CurrentPrice, models.StatusPending,
	)
	return err
}

func (r *TradeRepo) Get(ctx context.Context, uuid string) (*models.Trade, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE uuid = $1`,
		uuid,
	)
	t, err := scanTrade(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (r *TradeRepo) GetRecent(ctx context.Context, limit int) ([]models.Trade, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades ORDER BY created_on DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTrades(rows)
}

func (r *TradeRepo) MarkDropped(ctx context.Context, uuid string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE trades SET trade_status = $2, updated_on = NOW() WHERE uuid = $1`,
		uuid, models.StatusDropped,
	)
	return err
}

// SaveSubmission links the trade to its chain transaction.
func (r *TradeRepo) SaveSubmission(ctx context.Context, uuid, txnHash, inputToken, inputBal string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE trades
		 SET txn_hash = $2, input_token = $3, input_bal = $4, updated_on = NOW()
		 WHERE uuid = $1`,
		uuid, txnHash, inputToken, inputBal,
	)
	return err
}

// SaveReceipt pushes the mined outcome onto the trade row.
func (r *TradeRepo) SaveReceipt(ctx context.Context, uuid string, rc models.TxnReceipt) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE trades
		 SET to_addr = $2, txn_block = $3, txn_idx = $4, block_timestamp = $5,
		     gas = $6, trade_status = $7, updated_on = NOW()
		 WHERE uuid = $1`,
		uuid, rc.ToAddr, rc.TxnBlock, rc.TxnIdx, rc.BlockTimestamp, rc.Gas, rc.TxnStatus,
	)
	return err
}

// SaveSettlement records the settled amounts and prices; the trade is
// terminal afterwards.
func (r *TradeRepo) SaveSettlement(ctx context.Context, uuid, outputBal string, inputPrice, outputPrice float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE trades
		 SET output_bal = $2, input_price = $3, output_price = $4,
		     trade_status = $5, updated_on = NOW()
		 WHERE uuid = $1`,
		uuid, outputBal, inputPrice, outputPrice, models.StatusApplied,
	)
	return err
}

// --- scan helpers ---

func scanTrade(row scannable) (*models.Trade, error) {
	var t models.Trade
	err := row.Scan(
		&t.UUID, &t.Side, &t.AgentAddress, &t.CurrentPrice,
		&t.TxnHash, &t.InputToken, &t.InputBal,
		&t.ToAddr, &t.TxnBlock, &t.TxnIdx, &t.BlockTimestamp, &t.Gas,
		&t.OutputBal, &t.InputPrice, &t.OutputPrice,
		&t.Status, &t.CreatedOn, &t.UpdatedOn,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTrades(rows rowsIter) ([]models.Trade, error) {
	var out []models.Trade
	for rows.Next() {
		var t models.Trade
		if err := rows.Scan(
			&t.UUID, &t.Side, &t.AgentAddress, &t.CurrentPrice,
			&t.TxnHash, &t.InputToken, &t.InputBal,
			&t.ToAddr, &t.TxnBlock, &t.TxnIdx, &t.BlockTimestamp, &t.Gas,
			&t.OutputBal, &t.InputPrice, &t.OutputPrice,
			&t.Status, &t.CreatedOn, &t.UpdatedOn,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
