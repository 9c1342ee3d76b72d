package chain

import "github.com/ethereum/go-ethereum/common"

// Polygon mainnet contract addresses.
const (
	SwapRouterAddr  = "0x68b3465833fb72A70ecDF485E0e4C7bD8665Fc45"
	PoolFactoryAddr = "0x1F98431c8aD98523631AE4a59f267346ea31F984"
	WMATICAddr      = "0x0d500B1d8E8eF31E21C99d1Db9A6444d3ADf1270"
	WETHAddr        = "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619"
	USDCAddr        = "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"
)

type Token struct {
	Symbol   string
	Address  common.Address
	Decimals int
}

func WMATIC() Token {
	return Token{Symbol: "WMATIC", Address: common.HexToAddress(WMATICAddr), Decimals: 18}
}

func WETH() Token {
	return Token{Symbol: "WETH", Address: common.HexToAddress(WETHAddr), Decimals: 18}
}

func USDC() Token {
	return Token{Symbol: "USDC", Address: common.HexToAddress(USDCAddr), Decimals: 6}
}

func routerAddress() common.Address {
	return common.HexToAddress(SwapRouterAddr)
}

// TokenBySymbol resolves the fleet's known tokens.
func TokenBySymbol(symbol string) (Token, bool) {
	switch symbol {
	case "WMATIC":
		return WMATIC(), true
	case "WETH":
		return WETH(), true
	case "USDC":
		return USDC(), true
	}
	return Token{}, false
}
