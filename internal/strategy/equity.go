package strategy

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"rangekeeper/internal/dex"
	"rangekeeper/internal/univ3"
)

// Equity is the block-time valuation of everything the agent controls:
// wallet balances, position principal at the current tick, and pending
// fees. All amounts are human-scaled; Total is in token1 (stable) units.
type Equity struct {
	Wallet0   decimal.Decimal
	Wallet1   decimal.Decimal
	Position0 decimal.Decimal
	Position1 decimal.Decimal
	Fees0     decimal.Decimal
	Fees1     decimal.Decimal
	Price0    decimal.Decimal
	Total     decimal.Decimal
}

// ComputeEquity values the wallet and the position (when present).
// Pending fees come from static-calling collect with max amounts; the
// stale tokensOwed fields on the position are not consulted.
func ComputeEquity(ctx context.Context, src dex.ClientSource, npm *dex.PositionManager, owner common.Address, snap dex.PoolSnapshot, position *dex.Position) (Equity, error) {
	bal0, err := dex.NewERC20(snap.Token0.Address, src).BalanceOf(ctx, owner)
	if err != nil {
		return Equity{}, fmt.Errorf("wallet balance %s: %w", snap.Token0.Symbol, err)
	}
	bal1, err := dex.NewERC20(snap.Token1.Address, src).BalanceOf(ctx, owner)
	if err != nil {
		return Equity{}, fmt.Errorf("wallet balance %s: %w", snap.Token1.Symbol, err)
	}

	eq := Equity{
		Wallet0: decimal.NewFromBigInt(bal0, -int32(snap.Token0.Decimals)),
		Wallet1: decimal.NewFromBigInt(bal1, -int32(snap.Token1.Decimals)),
		Price0:  snap.Token0Price(),
	}

	if position != nil && position.Liquidity != nil && position.Liquidity.Sign() > 0 {
		sqrtA := univ3.SqrtRatioAtTick(position.TickLower)
		sqrtB := univ3.SqrtRatioAtTick(position.TickUpper)
		amount0, amount1 := univ3.AmountsForLiquidity(snap.SqrtPriceX96, sqrtA, sqrtB, position.Liquidity)
		eq.Position0 = decimal.NewFromBigInt(amount0, -int32(snap.Token0.Decimals))
		eq.Position1 = decimal.NewFromBigInt(amount1, -int32(snap.Token1.Decimals))

		fees0, fees1, err := npm.StaticCollect(ctx, owner, position.TokenID, owner)
		if err != nil {
			return Equity{}, fmt.Errorf("pending fees: %w", err)
		}
		eq.Fees0 = decimal.NewFromBigInt(fees0, -int32(snap.Token0.Decimals))
		eq.Fees1 = decimal.NewFromBigInt(fees1, -int32(snap.Token1.Decimals))
	}

	eq.Total = totalValue(eq)
	return eq, nil
}

// totalValue sums all holdings in token1 units at the current price.
func totalValue(eq Equity) decimal.Decimal {
	side0 := eq.Wallet0.Add(eq.Position0).Add(eq.Fees0).Mul(eq.Price0)
	side1 := eq.Wallet1.Add(eq.Position1).Add(eq.Fees1)
	return side0.Add(side1)
}
