package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
)

// Client wraps the RPC connection and the fleet's HD wallet. Every agent
// wallet is derived from one mnemonic at m/44'/60'/0'/0/<index>; index 0 is
// the treasury wallet.
type Client struct {
	rpc     *ethclient.Client
	wallet  *hdwallet.Wallet
	chainID *big.Int
}

func NewClient(rpcURL, mnemonic string, chainID int64) (*Client, error) {
	rpc, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial RPC: %w", err)
	}

	wallet, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("derive HD wallet: %w", err)
	}

	return &Client{
		rpc:     rpc,
		wallet:  wallet,
		chainID: big.NewInt(chainID),
	}, nil
}

func (c *Client) Close() { c.rpc.Close() }

// Address returns the wallet address for a derivation index.
func (c *Client) Address(walletIndex int) (common.Address, error) {
	path, err := hdwallet.ParseDerivationPath(derivationPath(walletIndex))
	if err != nil {
		return common.Address{}, err
	}
	account, err := c.wallet.Derive(path, false)
	if err != nil {
		return common.Address{}, fmt.Errorf("derive wallet %d: %w", walletIndex, err)
	}
	return account.Address, nil
}

func derivationPath(index int) string {
	return fmt.Sprintf("m/44'/60'/0'/0/%d", index)
}

func (c *Client) Balance(ctx context.Context, address common.Address) (*big.Int, error) {
	return c.rpc.BalanceAt(ctx, address, nil)
}

// TokenBalance reads an ERC20 balance with a read-only call.
func (c *Client) TokenBalance(ctx context.Context, token Token, owner common.Address) (*big.Int, error) {
	data, err := erc20ABI().Pack("balanceOf", owner)
	if err != nil {
		return nil, err
	}
	result, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &token.Address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", token.Symbol, err)
	}
	return new(big.Int).SetBytes(result), nil
}

// TransactionByHash returns the transaction, its sender, and whether it is
// still unmined.
func (c *Client) TransactionByHash(ctx context.Context, hash string) (*types.Transaction, common.Address, bool, error) {
	tx, pending, err := c.rpc.TransactionByHash(ctx, common.HexToHash(hash))
	if err != nil {
		return nil, common.Address{}, false, err
	}
	from, err := types.Sender(types.LatestSignerForChainID(c.chainID), tx)
	if err != nil {
		return nil, common.Address{}, false, fmt.Errorf("recover sender: %w", err)
	}
	return tx, from, pending, nil
}

func (c *Client) TransactionReceipt(ctx context.Context, hash string) (*types.Receipt, error) {
	return c.rpc.TransactionReceipt(ctx, common.HexToHash(hash))
}

func (c *Client) BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error) {
	return c.rpc.BlockByNumber(ctx, number)
}

// SendNative transfers value from the indexed wallet.
func (c *Client) SendNative(ctx context.Context, walletIndex int, to common.Address, value *big.Int, gas GasEstimate) (string, error) {
	return c.signAndSend(ctx, walletIndex, to, value, nil, gas, 21000)
}

// SendContract submits a contract call, estimating the gas limit and
// padding it 10%.
func (c *Client) SendContract(ctx context.Context, walletIndex int, to common.Address, value *big.Int, data []byte, gas GasEstimate) (string, error) {
	from, err := c.Address(walletIndex)
	if err != nil {
		return "", err
	}
	limit, err := c.rpc.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}
	return c.signAndSend(ctx, walletIndex, to, value, data, gas, limit*110/100)
}

// WaitMined polls until the transaction has a receipt. Only the serial
// treasury paths use this; pipeline stages never block on mining.
func (c *Client) WaitMined(ctx context.Context, hash string) (*types.Receipt, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		receipt, err := c.rpc.TransactionReceipt(ctx, common.HexToHash(hash))
		if err == nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) signAndSend(ctx context.Context, walletIndex int, to common.Address, value *big.Int, data []byte, gas GasEstimate, gasLimit uint64) (string, error) {
	path, err := hdwallet.ParseDerivationPath(derivationPath(walletIndex))
	if err != nil {
		return "", err
	}
	account, err := c.wallet.Derive(path, false)
	if err != nil {
		return "", fmt.Errorf("derive wallet %d: %w", walletIndex, err)
	}
	pk, err := c.wallet.PrivateKey(account)
	if err != nil {
		return "", fmt.Errorf("wallet %d key: %w", walletIndex, err)
	}

	nonce, err := c.rpc.PendingNonceAt(ctx, account.Address)
	if err != nil {
		return "", fmt.Errorf("get nonce: %w", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.chainID,
		Nonce:     nonce,
		GasTipCap: gas.MaxPriorityFeePerGas,
		GasFeeCap: gas.MaxFeePerGas,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), pk)
	if err != nil {
		return "", fmt.Errorf("sign tx: %w", err)
	}

	if err := c.rpc.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send tx: %w", err)
	}

	return signed.Hash().Hex(), nil
}
