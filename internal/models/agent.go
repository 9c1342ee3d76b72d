package models

import "time"

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Flip returns the opposite trade direction. An unset side flips to SELL,
// matching the registry default of BUY.
func (s Side) Flip() Side {
	if s == SideSell {
		return SideBuy
	}
	return SideSell
}

// Agent is one automated trading identity bound to a single HD wallet.
// OpenTradeID doubles as the open-trade lock: while it is non-empty the
// agent must not be offered for a new trade.
type Agent struct {
	AgentAddress string    `json:"agentAddress"`
	WalletIndex  int       `json:"walletIndex"`
	MAInitGain   float64   `json:"maInitGain"`
	MADuration   int       `json:"maDuration"`
	Side         Side      `json:"side"`
	OpenTradeID  string    `json:"openTradeId"`
	IsActive     bool      `json:"isActive"`
	Balance      float64   `json:"balance"` // native token, whole units
	CreatedOn    time.Time `json:"createdOn"`
	UpdatedOn    time.Time `json:"updatedOn"`
}
