// Package engine implements the four pipeline stages: signal evaluation,
// trade execution, settlement reconciliation, and closing. Stages share
// narrow store interfaces so each can be tested against fakes.
package engine

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/kjannette/ethmatic-backend/internal/chain"
	"github.com/kjannette/ethmatic-backend/internal/models"
)

var (
	// ErrGasTooHigh aborts a chain-mutating action when fees breach the
	// admission ceiling.
	ErrGasTooHigh = errors.New("gas above admission ceiling")
	// ErrNoPriceRow is fatal for a signal cycle: no agents are evaluated
	// against a price that does not exist.
	ErrNoPriceRow = errors.New("no price row for trading pair")
)

type AgentStore interface {
	Load(ctx context.Context, address string) (*models.Agent, error)
	LoadActive(ctx context.Context) ([]models.Agent, error)
	SetActivation(ctx context.Context, address string, active bool) error
	SwitchSides(ctx context.Context, address string, side models.Side) error
	AcquireOpenTrade(ctx context.Context, address, uuid string) error
	ReleaseOpenTrade(ctx context.Context, address, expected string) error
	ClearOpenTrade(ctx context.Context, address string) error
}

type TradeStore interface {
	Create(ctx context.Context, t *models.Trade) error
	MarkDropped(ctx context.Context, uuid string) error
	SaveSubmission(ctx context.Context, uuid, txnHash, inputToken, inputBal string) error
	SaveReceipt(ctx context.Context, uuid string, rc models.TxnReceipt) error
	SaveSettlement(ctx context.Context, uuid, outputBal string, inputPrice, outputPrice float64) error
}

type PendingStore interface {
	Submit(ctx context.Context, txn *models.PendingTxn) error
	LoadPending(ctx context.Context) ([]models.PendingTxn, error)
	Delete(ctx context.Context, txnHash string) error
}

type LedgerStore interface {
	Add(ctx context.Context, e *models.LedgerEntry) error
}

type PriceStore interface {
	GetRow(ctx context.Context, pair string) (*models.PriceRow, error)
	AllPrices(ctx context.Context, pairs ...string) (map[string]float64, error)
}

type ErrorStore interface {
	Record(ctx context.Context, tradeUUID, agentAddress, message string) error
}

type Publisher interface {
	Publish(ctx context.Context, channel string, msg any) error
}

// Trader is the slice of the chain client the execution gateway uses.
type Trader interface {
	Address(walletIndex int) (common.Address, error)
	Balance(ctx context.Context, address common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token chain.Token, owner common.Address) (*big.Int, error)
	Swap(ctx context.Context, walletIndex int, tokenIn, tokenOut chain.Token, amountIn *big.Int, gas chain.GasEstimate) (string, error)
}

// ChainReader is the slice of the chain client the reconciler uses.
type ChainReader interface {
	TransactionByHash(ctx context.Context, hash string) (*types.Transaction, common.Address, bool, error)
	TransactionReceipt(ctx context.Context, hash string) (*types.Receipt, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
}

// Notifier posts human-facing alerts. Implementations must never block a
// pipeline stage on delivery.
type Notifier interface {
	Notify(title, body string)
}

// sameAddress compares hex addresses case-insensitively; checksummed and
// lowercased forms of the same address must match.
func sameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}
