package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Default V3 pool fee tier, 0.3%.
const poolFee = 3000

// swapDeadline bounds how long a submitted swap stays valid in the mempool.
const swapDeadline = 10 * time.Minute

// Swap submits an exact-input single-pool swap through the router and
// returns the transaction hash. The output minimum is zero: admission
// control happens upstream, and the pools we trade carry enough depth
// that sandwich losses stay inside the strategy's gain band.
func (c *Client) Swap(ctx context.Context, walletIndex int, tokenIn, tokenOut Token, amountIn *big.Int, gas GasEstimate) (string, error) {
	owner, err := c.Address(walletIndex)
	if err != nil {
		return "", err
	}
	if err := c.ensureAllowance(ctx, walletIndex, owner, tokenIn, amountIn, gas); err != nil {
		return "", err
	}

	deadline := big.NewInt(time.Now().Add(swapDeadline).Unix())
	params := struct {
		TokenIn           common.Address
		TokenOut          common.Address
		Fee               *big.Int
		Recipient         common.Address
		Deadline          *big.Int
		AmountIn          *big.Int
		AmountOutMinimum  *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           tokenIn.Address,
		TokenOut:          tokenOut.Address,
		Fee:               big.NewInt(poolFee),
		Recipient:         owner,
		Deadline:          deadline,
		AmountIn:          amountIn,
		AmountOutMinimum:  big.NewInt(0),
		SqrtPriceLimitX96: big.NewInt(0),
	}

	data, err := routerABI().Pack("exactInputSingle", params)
	if err != nil {
		return "", fmt.Errorf("pack exactInputSingle: %w", err)
	}

	hash, err := c.SendContract(ctx, walletIndex, routerAddress(), big.NewInt(0), data, gas)
	if err != nil {
		return "", fmt.Errorf("submit swap %s->%s: %w", tokenIn.Symbol, tokenOut.Symbol, err)
	}
	return hash, nil
}

// Wrap deposits native MATIC into the WMATIC contract.
func (c *Client) Wrap(ctx context.Context, walletIndex int, amount *big.Int, gas GasEstimate) (string, error) {
	data, err := wrappedABI().Pack("deposit")
	if err != nil {
		return "", err
	}
	return c.SendContract(ctx, walletIndex, WMATIC().Address, amount, data, gas)
}

// Unwrap withdraws WMATIC back to native MATIC.
func (c *Client) Unwrap(ctx context.Context, walletIndex int, amount *big.Int, gas GasEstimate) (string, error) {
	data, err := wrappedABI().Pack("withdraw", amount)
	if err != nil {
		return "", err
	}
	return c.SendContract(ctx, walletIndex, WMATIC().Address, big.NewInt(0), data, gas)
}

// ensureAllowance grants the router spending rights when the current
// allowance cannot cover the swap. The approval is mined before the swap
// goes out so the two never race in the mempool.
func (c *Client) ensureAllowance(ctx context.Context, walletIndex int, owner common.Address, token Token, amount *big.Int, gas GasEstimate) error {
	data, err := erc20ABI().Pack("allowance", owner, routerAddress())
	if err != nil {
		return err
	}
	result, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &token.Address, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("read %s allowance: %w", token.Symbol, err)
	}
	if new(big.Int).SetBytes(result).Cmp(amount) >= 0 {
		return nil
	}

	approveData, err := erc20ABI().Pack("approve", routerAddress(), maxUint256())
	if err != nil {
		return err
	}
	hash, err := c.SendContract(ctx, walletIndex, token.Address, big.NewInt(0), approveData, gas)
	if err != nil {
		return fmt.Errorf("approve %s: %w", token.Symbol, err)
	}
	if _, err := c.WaitMined(ctx, hash); err != nil {
		return fmt.Errorf("wait approve %s: %w", token.Symbol, err)
	}
	return nil
}

func maxUint256() *big.Int {
	max := new(big.Int).Lsh(big.NewInt(1), 256)
	return max.Sub(max, big.NewInt(1))
}
