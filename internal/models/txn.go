package models

import (
	"time"

	"github.com/ethereum/go-ethereum/core/types"
)

type TxnType string

const (
	TxnWrap     TxnType = "WRAP"
	TxnUnwrap   TxnType = "UNWRAP"
	TxnSwap     TxnType = "SWAP"
	TxnTransfer TxnType = "TRANSFER"
)

// PendingTxn is a chain transaction that has been submitted but not yet
// reconciled. TradeUUID is empty for treasury operations.
type PendingTxn struct {
	TxnHash      string    `json:"txn_hash"`
	TradeUUID    string    `json:"trade_uuid,omitempty"`
	AgentAddress string    `json:"agent_address"`
	WalletIndex  int       `json:"wallet_index"`
	Symbol       string    `json:"symbol"`
	Amount       string    `json:"amount"` // raw base units
	CreatedOn    time.Time `json:"created_on"`
	Type         TxnType   `json:"type"`
}

// TxnReceipt is the reconciler's receipt message: the pending row plus the
// mined outcome and the raw event logs, tagged by Type so subscribers can
// filter for the closer that handles them.
type TxnReceipt struct {
	PendingTxn

	ToAddr         string      `json:"to_addr"`
	TxnBlock       int64       `json:"txn_block"`
	TxnIdx         int         `json:"txn_idx"`
	BlockTimestamp int64       `json:"block_timestamp"`
	Gas            string      `json:"gas"`
	TxnStatus      TxnStatus   `json:"txn_status"`
	Logs           []types.Log `json:"logs"`
}

// RefillRequest asks the treasury to top up one agent's fee balance.
type RefillRequest struct {
	AgentAddress string `json:"agent_address"`
	Amount       string `json:"amount"` // raw base units
}
