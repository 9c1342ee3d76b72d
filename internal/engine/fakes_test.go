package engine

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/kjannette/ethmatic-backend/internal/chain"
	"github.com/kjannette/ethmatic-backend/internal/models"
	"github.com/kjannette/ethmatic-backend/internal/repository"
)

// In-memory stand-ins for the store interfaces. The agent fake reproduces
// the conditional lock semantics of the real repository.

type fakeAgents struct {
	rows map[string]*models.Agent
}

func newFakeAgents(agents ...*models.Agent) *fakeAgents {
	f := &fakeAgents{rows: map[string]*models.Agent{}}
	for _, a := range agents {
		f.rows[a.AgentAddress] = a
	}
	return f
}

func (f *fakeAgents) Load(_ context.Context, address string) (*models.Agent, error) {
	a, ok := f.rows[address]
	if !ok {
		return nil, nil
	}
	copied := *a
	return &copied, nil
}

func (f *fakeAgents) LoadActive(_ context.Context) ([]models.Agent, error) {
	var out []models.Agent
	for _, a := range f.rows {
		if a.IsActive {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (f *fakeAgents) SetActivation(_ context.Context, address string, active bool) error {
	f.rows[address].IsActive = active
	return nil
}

func (f *fakeAgents) SwitchSides(_ context.Context, address string, side models.Side) error {
	a := f.rows[address]
	if side != "" {
		a.Side = side
		return nil
	}
	a.Side = a.Side.Flip()
	return nil
}

func (f *fakeAgents) AcquireOpenTrade(_ context.Context, address, uuid string) error {
	a := f.rows[address]
	if a.OpenTradeID != "" {
		return fmt.Errorf("acquire lock for %s: %w", address, repository.ErrLockConflict)
	}
	a.OpenTradeID = uuid
	return nil
}

func (f *fakeAgents) ReleaseOpenTrade(_ context.Context, address, expected string) error {
	a := f.rows[address]
	if a.OpenTradeID != expected {
		return fmt.Errorf("release lock for %s: %w", address, repository.ErrLockConflict)
	}
	a.OpenTradeID = ""
	return nil
}

func (f *fakeAgents) ClearOpenTrade(_ context.Context, address string) error {
	f.rows[address].OpenTradeID = ""
	return nil
}

type fakeTrades struct {
	rows map[string]*models.Trade
}

func newFakeTrades() *fakeTrades {
	return &fakeTrades{rows: map[string]*models.Trade{}}
}

func (f *fakeTrades) Create(_ context.Context, t *models.Trade) error {
	copied := *t
	f.rows[t.UUID] = &copied
	return nil
}

func (f *fakeTrades) MarkDropped(_ context.Context, uuid string) error {
	f.rows[uuid].Status = models.StatusDropped
	return nil
}

func (f *fakeTrades) SaveSubmission(_ context.Context, uuid, txnHash, inputToken, inputBal string) error {
	t := f.rows[uuid]
	t.TxnHash, t.InputToken, t.InputBal = txnHash, inputToken, inputBal
	return nil
}

func (f *fakeTrades) SaveReceipt(_ context.Context, uuid string, rc models.TxnReceipt) error {
	t, ok := f.rows[uuid]
	if !ok {
		t = &models.Trade{UUID: uuid}
		f.rows[uuid] = t
	}
	t.ToAddr = rc.ToAddr
	t.TxnBlock = rc.TxnBlock
	t.TxnIdx = rc.TxnIdx
	t.BlockTimestamp = rc.BlockTimestamp
	t.Gas = rc.Gas
	t.Status = rc.TxnStatus
	return nil
}

func (f *fakeTrades) SaveSettlement(_ context.Context, uuid, outputBal string, inputPrice, outputPrice float64) error {
	t := f.rows[uuid]
	t.OutputBal, t.InputPrice, t.OutputPrice = outputBal, inputPrice, outputPrice
	t.Status = models.StatusApplied
	return nil
}

// single returns the only trade row, for tests that create exactly one.
func (f *fakeTrades) single() *models.Trade {
	if len(f.rows) != 1 {
		panic(fmt.Sprintf("want exactly 1 trade row, have %d", len(f.rows)))
	}
	for _, t := range f.rows {
		return t
	}
	return nil
}

type fakePending struct {
	rows    []models.PendingTxn
	deleted []string
}

func (f *fakePending) Submit(_ context.Context, txn *models.PendingTxn) error {
	f.rows = append(f.rows, *txn)
	return nil
}

func (f *fakePending) LoadPending(_ context.Context) ([]models.PendingTxn, error) {
	out := make([]models.PendingTxn, len(f.rows))
	copy(out, f.rows)
	return out, nil
}

func (f *fakePending) Delete(_ context.Context, txnHash string) error {
	f.deleted = append(f.deleted, txnHash)
	for i := range f.rows {
		if f.rows[i].TxnHash == txnHash {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			break
		}
	}
	return nil
}

type fakeLedger struct {
	entries []models.LedgerEntry
}

func (f *fakeLedger) Add(_ context.Context, e *models.LedgerEntry) error {
	f.entries = append(f.entries, *e)
	return nil
}

type fakePrices struct {
	row *models.PriceRow
	all map[string]float64
}

func (f *fakePrices) GetRow(_ context.Context, _ string) (*models.PriceRow, error) {
	return f.row, nil
}

func (f *fakePrices) AllPrices(_ context.Context, pairs ...string) (map[string]float64, error) {
	out := map[string]float64{}
	for _, p := range pairs {
		if v, ok := f.all[p]; ok {
			out[p] = v
		}
	}
	return out, nil
}

type fakeErrors struct {
	messages []string
}

func (f *fakeErrors) Record(_ context.Context, tradeUUID, agentAddress, message string) error {
	f.messages = append(f.messages, message)
	return nil
}

type published struct {
	channel string
	payload any
}

type fakePub struct {
	msgs    []published
	failOn  string
	failErr error
}

func (f *fakePub) Publish(_ context.Context, channel string, msg any) error {
	if channel == f.failOn {
		return f.failErr
	}
	f.msgs = append(f.msgs, published{channel: channel, payload: msg})
	return nil
}

type fakeOracle struct {
	est chain.GasEstimate
}

func (f *fakeOracle) Estimate(context.Context) (chain.GasEstimate, error) {
	return f.est, nil
}

func cheapGas() *fakeOracle {
	return &fakeOracle{est: gweiEstimate(300, 100)}
}

func spikedGas() *fakeOracle {
	return &fakeOracle{est: gweiEstimate(400, 50)}
}

func gweiEstimate(maxFee, maxPriority int64) chain.GasEstimate {
	gwei := big.NewInt(1_000_000_000)
	return chain.GasEstimate{
		MaxFeePerGas:         new(big.Int).Mul(big.NewInt(maxFee), gwei),
		MaxPriorityFeePerGas: new(big.Int).Mul(big.NewInt(maxPriority), gwei),
	}
}

type swapCall struct {
	walletIndex int
	tokenIn     string
	amountIn    *big.Int
}

type fakeTrader struct {
	address   common.Address
	native    *big.Int
	tokenBals map[string]*big.Int
	swapHash  string
	swapErr   error
	swaps     []swapCall
}

func (f *fakeTrader) Address(int) (common.Address, error) {
	return f.address, nil
}

func (f *fakeTrader) Balance(context.Context, common.Address) (*big.Int, error) {
	return f.native, nil
}

func (f *fakeTrader) TokenBalance(_ context.Context, token chain.Token, _ common.Address) (*big.Int, error) {
	return f.tokenBals[token.Symbol], nil
}

func (f *fakeTrader) Swap(_ context.Context, walletIndex int, tokenIn, _ chain.Token, amountIn *big.Int, _ chain.GasEstimate) (string, error) {
	if f.swapErr != nil {
		return "", f.swapErr
	}
	f.swaps = append(f.swaps, swapCall{walletIndex: walletIndex, tokenIn: tokenIn.Symbol, amountIn: amountIn})
	return f.swapHash, nil
}

type chainTxn struct {
	tx      *types.Transaction
	from    common.Address
	unmined bool
	receipt *types.Receipt
}

type fakeReader struct {
	txns   map[string]chainTxn
	blocks map[int64]*types.Block
}

func (f *fakeReader) TransactionByHash(_ context.Context, hash string) (*types.Transaction, common.Address, bool, error) {
	t, ok := f.txns[hash]
	if !ok {
		return nil, common.Address{}, false, fmt.Errorf("not found: %s", hash)
	}
	return t.tx, t.from, t.unmined, nil
}

func (f *fakeReader) TransactionReceipt(_ context.Context, hash string) (*types.Receipt, error) {
	return f.txns[hash].receipt, nil
}

func (f *fakeReader) BlockByNumber(_ context.Context, number *big.Int) (*types.Block, error) {
	return f.blocks[number.Int64()], nil
}

type fakeNotifier struct {
	titles []string
}

func (f *fakeNotifier) Notify(title, _ string) {
	f.titles = append(f.titles, title)
}
