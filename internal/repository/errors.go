package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrorRepo stores the error record written before an agent is deactivated,
// keyed by the trade that failed.
type ErrorRepo struct {
	pool *pgxpool.Pool
}

func NewErrorRepo(pool *pgxpool.Pool) *ErrorRepo {
	return &ErrorRepo{pool: pool}
}

func (r *ErrorRepo) Record(ctx context.Context, tradeUUID, agentAddress, message string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO agent_errors (trade_uuid, agent_address, error, created_on)
		 VALUES ($1, $2, $3, NOW())`,
		tradeUUID, agentAddress, message,
	)
	return err
}
