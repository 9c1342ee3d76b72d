package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/ethmatic-backend/internal/models"
)

type PriceRepo struct {
	pool *pgxpool.Pool
}

func NewPriceRepo(pool *pgxpool.Pool) *PriceRepo {
	return &PriceRepo{pool: pool}
}

// GetRow returns the latest price row for a pair, or nil if none exists.
func (r *PriceRepo) GetRow(ctx context.Context, pair string) (*models.PriceRow, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT pair, price, liquidity, smas, updated_on FROM prices WHERE pair = $1`,
		pair,
	)

	var p models.PriceRow
	var smas []byte
	err := row.Scan(&p.Pair, &p.Price, &p.Liquidity, &smas, &p.UpdatedOn)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(smas) > 0 {
		if err := json.Unmarshal(smas, &p.SMAs); err != nil {
			return nil, err
		}
	}
	return &p, nil
}

// UpdateRow upserts the price row, serializing the moving-average buckets.
func (r *PriceRepo) UpdateRow(ctx context.Context, p *models.PriceRow) error {
	smas, err := json.Marshal(p.SMAs)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO prices (pair, price, liquidity, smas, updated_on)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (pair) DO UPDATE
		 SET price = $2, liquidity = $3, smas = $4, updated_on = NOW()`,
		p.Pair, p.Price, p.Liquidity, smas,
	)
	return err
}

// AllPrices returns the latest price per requested pair, keyed by pair.
// Pairs with no row are simply absent from the map.
func (r *PriceRepo) AllPrices(ctx context.Context, pairs ...string) (map[string]float64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT pair, price FROM prices WHERE pair = ANY($1)`,
		pairs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]float64, len(pairs))
	for rows.Next() {
		var pair string
		var price float64
		if err := rows.Scan(&pair, &price); err != nil {
			return nil, err
		}
		out[pair] = price
	}
	return out, rows.Err()
}

func (r *PriceRepo) AddHistory(ctx context.Context, pair string, price float64, liquidity string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO price_history (pair, price, liquidity, created_on)
		 VALUES ($1, $2, $3, NOW())`,
		pair, price, liquidity,
	)
	return err
}

func (r *PriceRepo) GetHistory(ctx context.Context, pair string, limit int) ([]models.PricePoint, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, pair, price, liquidity, created_on
		 FROM price_history WHERE pair = $1
		 ORDER BY created_on DESC LIMIT $2`,
		pair, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PricePoint
	for rows.Next() {
		var p models.PricePoint
		if err := rows.Scan(&p.ID, &p.Pair, &p.Price, &p.Liquidity, &p.CreatedOn); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
