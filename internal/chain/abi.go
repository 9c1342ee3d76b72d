package chain

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Minimal ABIs for the Uniswap V3 router, ERC20, and WMATIC — only the
// methods we call.

var (
	abiOnce   sync.Once
	erc20     abi.ABI
	router    abi.ABI
	wrappedEv abi.ABI
	factory   abi.ABI
	pool      abi.ABI
)

func parseABIs() {
	abiOnce.Do(func() {
		erc20 = mustParse(`[
		{
			"name": "balanceOf",
			"type": "function",
			"stateMutability": "view",
			"inputs": [{"name": "_owner", "type": "address"}],
			"outputs": [{"name": "balance", "type": "uint256"}]
		},
		{
			"name": "approve",
			"type": "function",
			"stateMutability": "nonpayable",
			"inputs": [
				{"name": "_spender", "type": "address"},
				{"name": "_value",   "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		},
		{
			"name": "allowance",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "_owner",   "type": "address"},
				{"name": "_spender", "type": "address"}
			],
			"outputs": [{"name": "", "type": "uint256"}]
		},
		{
			"name": "transfer",
			"type": "function",
			"stateMutability": "nonpayable",
			"inputs": [
				{"name": "_to",    "type": "address"},
				{"name": "_value", "type": "uint256"}
			],
			"outputs": [{"name": "", "type": "bool"}]
		}
	]`)

		router = mustParse(`[
		{
			"name": "exactInputSingle",
			"type": "function",
			"stateMutability": "payable",
			"inputs": [
				{
					"name": "params",
					"type": "tuple",
					"components": [
						{"name": "tokenIn",           "type": "address"},
						{"name": "tokenOut",          "type": "address"},
						{"name": "fee",               "type": "uint24"},
						{"name": "recipient",         "type": "address"},
						{"name": "deadline",          "type": "uint256"},
						{"name": "amountIn",          "type": "uint256"},
						{"name": "amountOutMinimum",  "type": "uint256"},
						{"name": "sqrtPriceLimitX96", "type": "uint160"}
					]
				}
			],
			"outputs": [{"name": "amountOut", "type": "uint256"}]
		}
	]`)

		wrappedEv = mustParse(`[
		{
			"name": "deposit",
			"type": "function",
			"stateMutability": "payable",
			"inputs": [],
			"outputs": []
		},
		{
			"name": "withdraw",
			"type": "function",
			"stateMutability": "nonpayable",
			"inputs": [{"name": "wad", "type": "uint256"}],
			"outputs": []
		}
	]`)

		factory = mustParse(`[
		{
			"name": "getPool",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "tokenA", "type": "address"},
				{"name": "tokenB", "type": "address"},
				{"name": "fee",    "type": "uint24"}
			],
			"outputs": [{"name": "pool", "type": "address"}]
		}
	]`)

		pool = mustParse(`[
		{
			"name": "slot0",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [
				{"name": "sqrtPriceX96",               "type": "uint160"},
				{"name": "tick",                       "type": "int24"},
				{"name": "observationIndex",           "type": "uint16"},
				{"name": "observationCardinality",     "type": "uint16"},
				{"name": "observationCardinalityNext", "type": "uint16"},
				{"name": "feeProtocol",                "type": "uint8"},
				{"name": "unlocked",                   "type": "bool"}
			]
		},
		{
			"name": "liquidity",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [{"name": "", "type": "uint128"}]
		}
	]`)
	})
}

func mustParse(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("chain: bad ABI literal: " + err.Error())
	}
	return parsed
}

func erc20ABI() abi.ABI   { parseABIs(); return erc20 }
func routerABI() abi.ABI  { parseABIs(); return router }
func wrappedABI() abi.ABI { parseABIs(); return wrappedEv }
func factoryABI() abi.ABI { parseABIs(); return factory }
func poolABI() abi.ABI    { parseABIs(); return pool }
