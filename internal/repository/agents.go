package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/ethmatic-backend/internal/models"
)

const agentColumns = `agent_address, wallet_index, ma_init_gain, ma_duration,
	side, open_trade_id, is_active, balance, created_on, updated_on`

type AgentRepo struct {
	pool *pgxpool.Pool
}

func NewAgentRepo(pool *pgxpool.Pool) *AgentRepo {
	return &AgentRepo{pool: pool}
}

// Load returns one agent, or nil if no row exists for the address.
func (r *AgentRepo) Load(ctx context.Context, address string) (*models.Agent, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE agent_address = $1`,
		address,
	)
	a, err := scanAgent(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

func (r *AgentRepo) LoadAll(ctx context.Context) ([]models.Agent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+agentColumns+` FROM agents ORDER BY wallet_index ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAgents(rows)
}

func (r *AgentRepo) LoadActive(ctx context.Context) ([]models.Agent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE is_active ORDER BY wallet_index ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAgents(rows)
}

func (r *AgentRepo) SaveBalance(ctx context.Context, address string, balance float64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE agents SET balance = $2, updated_on = NOW() WHERE agent_address = $1`,
		address, balance,
	)
	return err
}

func (r *AgentRepo) SetActivation(ctx context.Context, address string, active bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE agents SET is_active = $2, updated_on = NOW() WHERE agent_address = $1`,
		address, active,
	)
	return err
}

// SwitchSides sets the agent's favored direction. An empty side flips the
// current value (unset rows count as BUY).
func (r *AgentRepo) SwitchSides(ctx context.Context, address string, side models.Side) error {
	if side != "" {
		_, err := r.pool.Exec(ctx,
			`UPDATE agents SET side = $2, updated_on = NOW() WHERE agent_address = $1`,
			address, side,
		)
		return err
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE agents
		 SET side = CASE WHEN side = 'SELL' THEN 'BUY' ELSE 'SELL' END,
		     updated_on = NOW()
		 WHERE agent_address = $1`,
		address,
	)
	return err
}

// AcquireOpenTrade installs uuid as the agent's open-trade lock, but only if
// no lock is currently held. Returns ErrLockConflict otherwise.
func (r *AgentRepo) AcquireOpenTrade(ctx context.Context, address, uuid string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE agents SET open_trade_id = $2, updated_on = NOW()
		 WHERE agent_address = $1 AND open_trade_id = ''`,
		address, uuid,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("acquire lock for %s: %w", address, ErrLockConflict)
	}
	return nil
}

// ReleaseOpenTrade clears the lock only if it still holds the expected uuid.
func (r *AgentRepo) ReleaseOpenTrade(ctx context.Context, address, expected string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE agents SET open_trade_id = '', updated_on = NOW()
		 WHERE agent_address = $1 AND open_trade_id = $2`,
		address, expected,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("release lock for %s: %w", address, ErrLockConflict)
	}
	return nil
}

// ClearOpenTrade unconditionally empties the lock. Reserved for failure
// paths where the trade state is already ambiguous and policy resolves
// toward releasing the agent.
func (r *AgentRepo) ClearOpenTrade(ctx context.Context, address string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE agents SET open_trade_id = '', updated_on = NOW() WHERE agent_address = $1`,
		address,
	)
	return err
}

// --- scan helpers ---

func scanAgent(row scannable) (*models.Agent, error) {
	var a models.Agent
	err := row.Scan(
		&a.AgentAddress, &a.WalletIndex, &a.MAInitGain, &a.MADuration,
		&a.Side, &a.OpenTradeID, &a.IsActive, &a.Balance,
		&a.CreatedOn, &a.UpdatedOn,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAgents(rows rowsIter) ([]models.Agent, error) {
	var out []models.Agent
	for rows.Next() {
		var a models.Agent
		if err := rows.Scan(
			&a.AgentAddress, &a.WalletIndex, &a.MAInitGain, &a.MADuration,
			&a.Side, &a.OpenTradeID, &a.IsActive, &a.Balance,
			&a.CreatedOn, &a.UpdatedOn,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
