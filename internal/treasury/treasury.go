// Package treasury holds the one-shot housekeeping operations: wrapping and
// unwrapping the native token, fee refills, balance refreshes, sweeps to
// cold storage, and activation changes. They share the fleet wallet, the
// gas gate, and the pending queue with the trade pipeline but have no
// multi-stage reconciliation of their own.
package treasury

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"
	"github.com/rs/zerolog"

	"github.com/kjannette/ethmatic-backend/internal/bus"
	"github.com/kjannette/ethmatic-backend/internal/chain"
	"github.com/kjannette/ethmatic-backend/internal/models"
)

// reserve is kept in native form per agent wallet so fees never strand it.
// refillFloor is the least treasury balance worth fanning out, and the
// least agent balance eligible for activation.
var (
	reserve     = new(big.Int).Mul(big.NewInt(2), big.NewInt(params.Ether))
	refillFloor = new(big.Int).Mul(big.NewInt(1), big.NewInt(params.Ether))
)

// treasuryWallet is derivation index 0; agents start at 1.
const treasuryWallet = 0

type AgentStore interface {
	Load(ctx context.Context, address string) (*models.Agent, error)
	LoadAll(ctx context.Context) ([]models.Agent, error)
	SaveBalance(ctx context.Context, address string, balance float64) error
	SetActivation(ctx context.Context, address string, active bool) error
}

type PendingStore interface {
	Submit(ctx context.Context, txn *models.PendingTxn) error
}

type Publisher interface {
	Publish(ctx context.Context, channel string, msg any) error
}

// Wallet is the slice of the chain client treasury operations drive.
type Wallet interface {
	Address(walletIndex int) (common.Address, error)
	Balance(ctx context.Context, address common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, token chain.Token, owner common.Address) (*big.Int, error)
	Wrap(ctx context.Context, walletIndex int, amount *big.Int, gas chain.GasEstimate) (string, error)
	Unwrap(ctx context.Context, walletIndex int, amount *big.Int, gas chain.GasEstimate) (string, error)
	SendNative(ctx context.Context, walletIndex int, to common.Address, value *big.Int, gas chain.GasEstimate) (string, error)
	WaitMined(ctx context.Context, hash string) (*types.Receipt, error)
}

type Treasury struct {
	agents       AgentStore
	pending      PendingStore
	pub          Publisher
	wallet       Wallet
	oracle       chain.GasOracle
	withdrawAddr string
	log          zerolog.Logger
}

func New(agents AgentStore, pending PendingStore, pub Publisher, wallet Wallet, oracle chain.GasOracle, withdrawAddr string, log zerolog.Logger) *Treasury {
	return &Treasury{
		agents:       agents,
		pending:      pending,
		pub:          pub,
		wallet:       wallet,
		oracle:       oracle,
		withdrawAddr: withdrawAddr,
		log:          log.With().Str("component", "treasury").Logger(),
	}
}

// admit fetches a fresh estimate and applies the gas gate.
func (t *Treasury) admit(ctx context.Context) (chain.GasEstimate, error) {
	est, err := t.oracle.Estimate(ctx)
	if err != nil {
		return chain.GasEstimate{}, fmt.Errorf("gas estimate: %w", err)
	}
	if !chain.IsGasAcceptable(est) {
		return chain.GasEstimate{}, fmt.Errorf("treasury op at %s gwei: gas above admission ceiling", chain.GasAsGwei(est))
	}
	return est, nil
}

// WrapAll converts each agent's native balance above the reserve into the
// wrapped token and enqueues a WRAP row for settlement.
func (t *Treasury) WrapAll(ctx context.Context) error {
	est, err := t.admit(ctx)
	if err != nil {
		return err
	}
	agents, err := t.agents.LoadAll(ctx)
	if err != nil {
		return err
	}

	for i := range agents {
		agent := &agents[i]
		owner, err := t.wallet.Address(agent.WalletIndex)
		if err != nil {
			return fmt.Errorf("agent %s: %w", agent.AgentAddress, err)
		}
		balance, err := t.wallet.Balance(ctx, owner)
		if err != nil {
			return fmt.Errorf("agent %s balance: %w", agent.AgentAddress, err)
		}

		amount := new(big.Int).Sub(balance, reserve)
		if amount.Sign() <= 0 {
			t.log.Debug().Str("agent", agent.AgentAddress).Msg("nothing above reserve to wrap")
			continue
		}

		hash, err := t.wallet.Wrap(ctx, agent.WalletIndex, amount, est)
		if err != nil {
			return fmt.Errorf("wrap for %s: %w", agent.AgentAddress, err)
		}
		if err := t.enqueue(ctx, agent, hash, amount, models.TxnWrap); err != nil {
			return err
		}
		t.log.Info().Str("agent", agent.AgentAddress).Str("txn", hash).Str("amount", amount.String()).Msg("wrap submitted")
	}
	return nil
}

// UnwrapAll withdraws each agent's full wrapped balance back to native.
func (t *Treasury) UnwrapAll(ctx context.Context) error {
	est, err := t.admit(ctx)
	if err != nil {
		return err
	}
	agents, err := t.agents.LoadAll(ctx)
	if err != nil {
		return err
	}

	for i := range agents {
		agent := &agents[i]
		owner, err := t.wallet.Address(agent.WalletIndex)
		if err != nil {
			return fmt.Errorf("agent %s: %w", agent.AgentAddress, err)
		}
		wrapped, err := t.wallet.TokenBalance(ctx, chain.WMATIC(), owner)
		if err != nil {
			return fmt.Errorf("agent %s wrapped balance: %w", agent.AgentAddress, err)
		}
		if wrapped.Sign() <= 0 {
			continue
		}

		hash, err := t.wallet.Unwrap(ctx, agent.WalletIndex, wrapped, est)
		if err != nil {
			return fmt.Errorf("unwrap for %s: %w", agent.AgentAddress, err)
		}
		if err := t.enqueue(ctx, agent, hash, wrapped, models.TxnUnwrap); err != nil {
			return err
		}
		t.log.Info().Str("agent", agent.AgentAddress).Str("txn", hash).Str("amount", wrapped.String()).Msg("unwrap submitted")
	}
	return nil
}

// Sweep drains every agent wallet above the reserve to the trusted
// withdrawal address. Transactions are mined serially, the gas gate is
// re-checked per agent, and nothing is enqueued: a native transfer has no
// settlement consequences to reconcile.
func (t *Treasury) Sweep(ctx context.Context) error {
	if !common.IsHexAddress(t.withdrawAddr) {
		return fmt.Errorf("invalid withdrawal address %q", t.withdrawAddr)
	}
	dest := common.HexToAddress(t.withdrawAddr)

	agents, err := t.agents.LoadAll(ctx)
	if err != nil {
		return err
	}

	for i := range agents {
		agent := &agents[i]
		est, err := t.admit(ctx)
		if err != nil {
			return err
		}

		owner, err := t.wallet.Address(agent.WalletIndex)
		if err != nil {
			return fmt.Errorf("agent %s: %w", agent.AgentAddress, err)
		}
		balance, err := t.wallet.Balance(ctx, owner)
		if err != nil {
			return fmt.Errorf("agent %s balance: %w", agent.AgentAddress, err)
		}
		amount := new(big.Int).Sub(balance, reserve)
		if amount.Sign() <= 0 {
			continue
		}

		hash, err := t.wallet.SendNative(ctx, agent.WalletIndex, dest, amount, est)
		if err != nil {
			return fmt.Errorf("sweep %s: %w", agent.AgentAddress, err)
		}
		if _, err := t.wallet.WaitMined(ctx, hash); err != nil {
			return fmt.Errorf("sweep %s mining: %w", agent.AgentAddress, err)
		}
		t.log.Info().Str("agent", agent.AgentAddress).Str("txn", hash).Str("amount", amount.String()).Msg("swept")
	}
	return nil
}

// RefillFanOut splits the treasury wallet's spare balance evenly across the
// fleet as one refill request per agent. Aborts outright when the treasury
// cannot even cover the floor.
func (t *Treasury) RefillFanOut(ctx context.Context) error {
	agents, err := t.agents.LoadAll(ctx)
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		return fmt.Errorf("no agents to refill")
	}

	owner, err := t.wallet.Address(treasuryWallet)
	if err != nil {
		return err
	}
	balance, err := t.wallet.Balance(ctx, owner)
	if err != nil {
		return fmt.Errorf("treasury balance: %w", err)
	}
	if balance.Cmp(refillFloor) < 0 {
		return fmt.Errorf("treasury balance %s below refill floor", balance)
	}

	spare := new(big.Int).Sub(balance, new(big.Int).Mul(refillFloor, big.NewInt(2)))
	if spare.Sign() <= 0 {
		return fmt.Errorf("treasury balance %s leaves nothing to fan out", balance)
	}
	share := new(big.Int).Div(spare, big.NewInt(int64(len(agents))))

	for i := range agents {
		req := models.RefillRequest{
			AgentAddress: agents[i].AgentAddress,
			Amount:       share.String(),
		}
		if err := t.pub.Publish(ctx, bus.ChannelRefills, req); err != nil {
			return fmt.Errorf("publish refill for %s: %w", req.AgentAddress, err)
		}
	}
	t.log.Info().Int("agents", len(agents)).Str("share", share.String()).Msg("refills fanned out")
	return nil
}

// Refill executes one fan-out request: a native transfer from the treasury
// wallet to a known agent.
func (t *Treasury) Refill(ctx context.Context, req models.RefillRequest) error {
	agent, err := t.agents.Load(ctx, req.AgentAddress)
	if err != nil {
		return err
	}
	if agent == nil {
		return fmt.Errorf("refill target %s is not a known agent", req.AgentAddress)
	}

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok || amount.Sign() <= 0 {
		return fmt.Errorf("bad refill amount %q for %s", req.Amount, req.AgentAddress)
	}

	est, err := t.admit(ctx)
	if err != nil {
		return err
	}

	hash, err := t.wallet.SendNative(ctx, treasuryWallet, common.HexToAddress(agent.AgentAddress), amount, est)
	if err != nil {
		return fmt.Errorf("refill %s: %w", agent.AgentAddress, err)
	}
	t.log.Info().Str("agent", agent.AgentAddress).Str("txn", hash).Str("amount", req.Amount).Msg("refill sent")
	return nil
}

// RefreshBalances stores each agent's current native balance in whole
// units, the form the activation floor is checked against.
func (t *Treasury) RefreshBalances(ctx context.Context) error {
	agents, err := t.agents.LoadAll(ctx)
	if err != nil {
		return err
	}
	for i := range agents {
		agent := &agents[i]
		owner, err := t.wallet.Address(agent.WalletIndex)
		if err != nil {
			return fmt.Errorf("agent %s: %w", agent.AgentAddress, err)
		}
		balance, err := t.wallet.Balance(ctx, owner)
		if err != nil {
			return fmt.Errorf("agent %s balance: %w", agent.AgentAddress, err)
		}
		units, _ := new(big.Float).Quo(new(big.Float).SetInt(balance), big.NewFloat(params.Ether)).Float64()
		if err := t.agents.SaveBalance(ctx, agent.AgentAddress, units); err != nil {
			return fmt.Errorf("save balance for %s: %w", agent.AgentAddress, err)
		}
	}
	return nil
}

// SetActivation flips the whole fleet to active, with per-agent overrides.
// Activation is refused for any agent whose recorded balance cannot cover
// fees; deactivation always goes through.
func (t *Treasury) SetActivation(ctx context.Context, active bool, overrides map[string]bool) error {
	agents, err := t.agents.LoadAll(ctx)
	if err != nil {
		return err
	}

	for i := range agents {
		agent := &agents[i]
		want := active
		if ov, ok := overrides[agent.AgentAddress]; ok {
			want = ov
		}

		if want && agent.Balance < 1 {
			t.log.Warn().
				Str("agent", agent.AgentAddress).
				Float64("balance", agent.Balance).
				Msg("activation refused, balance below floor")
			continue
		}
		if err := t.agents.SetActivation(ctx, agent.AgentAddress, want); err != nil {
			return fmt.Errorf("set activation for %s: %w", agent.AgentAddress, err)
		}
	}
	return nil
}

func (t *Treasury) enqueue(ctx context.Context, agent *models.Agent, hash string, amount *big.Int, typ models.TxnType) error {
	err := t.pending.Submit(ctx, &models.PendingTxn{
		TxnHash:      hash,
		AgentAddress: agent.AgentAddress,
		WalletIndex:  agent.WalletIndex,
		Symbol:       chain.WMATIC().Symbol,
		Amount:       amount.String(),
		Type:         typ,
	})
	if err != nil {
		return fmt.Errorf("enqueue %s for %s: %w", typ, agent.AgentAddress, err)
	}
	return nil
}
