package models

import "time"

type TxnStatus string

const (
	StatusDropped  TxnStatus = "DROPPED"
	StatusPending  TxnStatus = "PENDING"
	StatusApplied  TxnStatus = "APPLIED"
	StatusReverted TxnStatus = "REVERTED"
)

// Terminal reports whether no further lifecycle transitions apply.
func (s TxnStatus) Terminal() bool {
	return s == StatusDropped || s == StatusApplied || s == StatusReverted
}

// Trade is one trade attempt. Raw token amounts (InputBal, OutputBal, Gas)
// are decimal strings in base units; prices are USDC-quoted floats.
type Trade struct {
	UUID         string  `json:"uuid"`
	Side         Side    `json:"side"`
	AgentAddress string  `json:"agentAddress"`
	CurrentPrice float64 `json:"currentPrice"`

	// Set by the execution gateway at submission time.
	TxnHash    string `json:"txnHash,omitempty"`
	InputToken string `json:"inputToken,omitempty"`
	InputBal   string `json:"inputBal,omitempty"`

	// Receipt fields, set by the settlement reconciler.
	ToAddr         string `json:"toAddr,omitempty"`
	TxnBlock       int64  `json:"txnBlock,omitempty"`
	TxnIdx         int    `json:"txnIdx,omitempty"`
	BlockTimestamp int64  `json:"blockTimestamp,omitempty"`
	Gas            string `json:"gas,omitempty"`

	// Settlement fields, set by the closer.
	OutputBal   string  `json:"outputBal,omitempty"`
	InputPrice  float64 `json:"inputPrice,omitempty"`
	OutputPrice float64 `json:"outputPrice,omitempty"`

	Status    TxnStatus `json:"tradeStatus"`
	CreatedOn time.Time `json:"createdOn"`
	UpdatedOn time.Time `json:"updatedOn"`
}

// TradeRequest is the pub/sub payload that moves a trade from the signal
// engine to the execution gateway.
type TradeRequest struct {
	UUID         string  `json:"uuid"`
	Side         Side    `json:"side"`
	AgentAddress string  `json:"agent_address"`
	CurrentPrice float64 `json:"current_price"`
}
