package chain

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// PoolQuote is one spot read of a V3 pool.
type PoolQuote struct {
	Price     float64 // base priced in quote units
	Liquidity string  // raw uint128, for observability only
}

var (
	poolCacheMu sync.Mutex
	poolCache   = map[string]common.Address{}
)

// PoolPrice reads slot0 of the base/quote pool and converts sqrtPriceX96
// into a human price of base in quote units.
func (c *Client) PoolPrice(ctx context.Context, base, quote Token) (PoolQuote, error) {
	poolAddr, err := c.poolFor(ctx, base, quote)
	if err != nil {
		return PoolQuote{}, err
	}

	data, err := poolABI().Pack("slot0")
	if err != nil {
		return PoolQuote{}, err
	}
	raw, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &poolAddr, Data: data}, nil)
	if err != nil {
		return PoolQuote{}, fmt.Errorf("slot0 %s/%s: %w", base.Symbol, quote.Symbol, err)
	}
	outs, err := poolABI().Unpack("slot0", raw)
	if err != nil {
		return PoolQuote{}, fmt.Errorf("unpack slot0: %w", err)
	}
	sqrtPriceX96, ok := outs[0].(*big.Int)
	if !ok {
		return PoolQuote{}, fmt.Errorf("slot0 %s/%s: unexpected sqrtPriceX96 type", base.Symbol, quote.Symbol)
	}

	liqData, err := poolABI().Pack("liquidity")
	if err != nil {
		return PoolQuote{}, err
	}
	liqRaw, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &poolAddr, Data: liqData}, nil)
	if err != nil {
		return PoolQuote{}, fmt.Errorf("liquidity %s/%s: %w", base.Symbol, quote.Symbol, err)
	}

	price := sqrtPriceToPrice(sqrtPriceX96, base, quote)
	return PoolQuote{
		Price:     price,
		Liquidity: new(big.Int).SetBytes(liqRaw).String(),
	}, nil
}

func (c *Client) poolFor(ctx context.Context, base, quote Token) (common.Address, error) {
	key := base.Symbol + "/" + quote.Symbol
	poolCacheMu.Lock()
	addr, ok := poolCache[key]
	poolCacheMu.Unlock()
	if ok {
		return addr, nil
	}

	data, err := factoryABI().Pack("getPool", base.Address, quote.Address, big.NewInt(poolFee))
	if err != nil {
		return common.Address{}, err
	}
	factoryAddr := common.HexToAddress(PoolFactoryAddr)
	raw, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &factoryAddr, Data: data}, nil)
	if err != nil {
		return common.Address{}, fmt.Errorf("getPool %s: %w", key, err)
	}
	addr = common.BytesToAddress(raw)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("no pool for %s at fee %d", key, poolFee)
	}

	poolCacheMu.Lock()
	poolCache[key] = addr
	poolCacheMu.Unlock()
	return addr, nil
}

// sqrtPriceToPrice converts the pool's Q64.96 sqrt ratio (token1 per token0
// in raw units) into base priced in quote, adjusting for token ordering and
// decimals.
func sqrtPriceToPrice(sqrtPriceX96 *big.Int, base, quote Token) float64 {
	sqrt, _ := new(big.Float).SetInt(sqrtPriceX96).Float64()
	ratio := sqrt / math.Pow(2, 96)
	ratio *= ratio // token1 raw per token0 raw

	baseIsToken0 := bytes.Compare(base.Address.Bytes(), quote.Address.Bytes()) < 0
	if !baseIsToken0 {
		ratio = 1 / ratio
	}
	return ratio * math.Pow10(base.Decimals-quote.Decimals)
}
