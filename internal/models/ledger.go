package models

import "time"

// LedgerEntry is one append-only debit or credit row. For swaps the
// transaction hash carries a "_d" or "_c" suffix so both halves of the
// double entry share a chain transaction but keep distinct keys.
type LedgerEntry struct {
	TxnHash  string `json:"txnHash"`
	TxnBlock int64  `json:"txnBlock"`
	TxnIdx   int    `json:"txnIdx"`
	Gas      string `json:"gas"`

	AgentAddress string  `json:"agentAddress"`
	Symbol       string  `json:"symbol"`
	Price        float64 `json:"price"` // USDC-quoted, at settlement time

	Type      TxnType   `json:"type"`
	Amount    string    `json:"amount"` // raw base units
	Debit     bool      `json:"debit"`
	CreatedOn time.Time `json:"createdOn"`
}
