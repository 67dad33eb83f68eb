package dex

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"rangekeeper/internal/chain"
)

// ClientSource yields the current live chain client. Contract callers
// fetch the client per call instead of holding one across suspension
// points, so endpoint rotation needs no rebinding here.
type ClientSource interface {
	Client() *chain.Client
}

// TokenRef describes one side of a pool.
type TokenRef struct {
	Address  common.Address
	Decimals uint8
	Symbol   string
}

// PoolSnapshot is an immutable sample of pool state.
type PoolSnapshot struct {
	SqrtPriceX96 *big.Int
	Tick         int32
	Liquidity    *big.Int
	TickSpacing  int32
	Fee          uint32
	Token0       TokenRef
	Token1       TokenRef
}

var q192 = new(big.Int).Lsh(big.NewInt(1), 192)

// Token0Price returns the human-scaled price of token0 denominated in
// token1 (e.g. USDC per WETH when WETH is token0).
func (s PoolSnapshot) Token0Price() decimal.Decimal {
	if s.SqrtPriceX96 == nil || s.SqrtPriceX96.Sign() == 0 {
		return decimal.Zero
	}
	num := new(big.Int).Mul(s.SqrtPriceX96, s.SqrtPriceX96)
	raw := decimal.NewFromBigInt(num, int32(s.Token0.Decimals)-int32(s.Token1.Decimals))
	return raw.DivRound(decimal.NewFromBigInt(q192, 0), 18)
}

// Position is the on-chain liquidity position tracked by the NFT manager.
type Position struct {
	TokenID     *big.Int
	TickLower   int32
	TickUpper   int32
	Liquidity   *big.Int
	TokensOwed0 *big.Int
	TokensOwed1 *big.Int
}

// MaxUint128 is the max collect amount sentinel.
var MaxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
