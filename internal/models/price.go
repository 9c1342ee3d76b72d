package models

import "time"

// PriceRow is the latest observed pool price for a trading pair, plus the
// serialized moving-average buckets (one per configured duration).
type PriceRow struct {
	Pair      string    `json:"pair"`
	Price     float64   `json:"price"`
	Liquidity string    `json:"liquidity"`
	SMAs      []float64 `json:"smas"`
	UpdatedOn time.Time `json:"updatedOn"`
}

type PricePoint struct {
	ID        int64     `json:"id"`
	Pair      string    `json:"pair"`
	Price     float64   `json:"price"`
	Liquidity string    `json:"liquidity"`
	CreatedOn time.Time `json:"createdOn"`
}
