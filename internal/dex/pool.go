package dex

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Pool calls a Uniswap v3 style pool contract. Immutable attributes
// (tokens, fee, tick spacing) are read once at construction; Snapshot
// re-samples the mutable state every time.
type Pool struct {
	Address common.Address

	src         ClientSource
	token0      TokenRef
	token1      TokenRef
	fee         uint32
	tickSpacing int32
}

// NewPool reads the pool's immutable attributes and the metadata of both
// tokens.
func NewPool(ctx context.Context, src ClientSource, address common.Address) (*Pool, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}

	values, err := contractCall(ctx, src, address, poolABI, "token0")
	if err != nil {
		return nil, err
	}
	token0Addr, err := asAddress(values[0])
	if err != nil {
		return nil, fmt.Errorf("token0: %w", err)
	}

	values, err = contractCall(ctx, src, address, poolABI, "token1")
	if err != nil {
		return nil, err
	}
	token1Addr, err := asAddress(values[0])
	if err != nil {
		return nil, fmt.Errorf("token1: %w", err)
	}

	values, err = contractCall(ctx, src, address, poolABI, "fee")
	if err != nil {
		return nil, err
	}
	feeInt, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("fee: %w", err)
	}

	values, err = contractCall(ctx, src, address, poolABI, "tickSpacing")
	if err != nil {
		return nil, err
	}
	spacingInt, err := asBigInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("tick spacing: %w", err)
	}
	tickSpacing, err := int24FromBig(spacingInt)
	if err != nil {
		return nil, fmt.Errorf("tick spacing: %w", err)
	}

	token0, err := fetchTokenRef(ctx, src, token0Addr)
	if err != nil {
		return nil, fmt.Errorf("token0 meta: %w", err)
	}
	token1, err := fetchTokenRef(ctx, src, token1Addr)
	if err != nil {
		return nil, fmt.Errorf("token1 meta: %w", err)
	}

	return &Pool{
		Address:     address,
		src:         src,
		token0:      token0,
		token1:      token1,
		fee:         uint32(feeInt.Uint64()),
		tickSpacing: tickSpacing,
	}, nil
}

func (p *Pool) Token0() TokenRef { return p.token0 }
func (p *Pool) Token1() TokenRef { return p.token1 }
func (p *Pool) Fee() uint32      { return p.fee }

// Snapshot samples slot0 and liquidity concurrently.
func (p *Pool) Snapshot(ctx context.Context) (PoolSnapshot, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return PoolSnapshot{}, fmt.Errorf("parse pool abi: %w", err)
	}

	type slot0Result struct {
		sqrtPrice *big.Int
		tick      int32
		err       error
	}
	type liquidityResult struct {
		liquidity *big.Int
		err       error
	}

	slot0Ch := make(chan slot0Result, 1)
	liqCh := make(chan liquidityResult, 1)

	go func() {
		values, err := contractCall(ctx, p.src, p.Address, poolABI, "slot0")
		if err != nil {
			slot0Ch <- slot0Result{err: err}
			return
		}
		sqrtPrice, err := asBigInt(values[0])
		if err != nil {
			slot0Ch <- slot0Result{err: fmt.Errorf("sqrtPriceX96: %w", err)}
			return
		}
		tickInt, err := asBigInt(values[1])
		if err != nil {
			slot0Ch <- slot0Result{err: fmt.Errorf("tick: %w", err)}
			return
		}
		tick, err := int24FromBig(tickInt)
		if err != nil {
			slot0Ch <- slot0Result{err: fmt.Errorf("tick: %w", err)}
			return
		}
		slot0Ch <- slot0Result{sqrtPrice: sqrtPrice, tick: tick}
	}()

	go func() {
		values, err := contractCall(ctx, p.src, p.Address, poolABI, "liquidity")
		if err != nil {
			liqCh <- liquidityResult{err: err}
			return
		}
		liquidity, err := asBigInt(values[0])
		if err != nil {
			liqCh <- liquidityResult{err: fmt.Errorf("liquidity: %w", err)}
			return
		}
		liqCh <- liquidityResult{liquidity: liquidity}
	}()

	slot0 := <-slot0Ch
	liq := <-liqCh
	if slot0.err != nil {
		return PoolSnapshot{}, fmt.Errorf("slot0: %w", slot0.err)
	}
	if liq.err != nil {
		return PoolSnapshot{}, fmt.Errorf("liquidity: %w", liq.err)
	}

	return PoolSnapshot{
		SqrtPriceX96: slot0.sqrtPrice,
		Tick:         slot0.tick,
		Liquidity:    liq.liquidity,
		TickSpacing:  p.tickSpacing,
		Fee:          p.fee,
		Token0:       p.token0,
		Token1:       p.token1,
	}, nil
}

// TwapTick computes the time-weighted average tick over the window from
// pool observations: floor((cumulative[1] - cumulative[0]) / seconds).
// Floor division keeps negative deltas from biasing the average by one
// tick.
func (p *Pool) TwapTick(ctx context.Context, window time.Duration) (int32, error) {
	poolABI, err := V3PoolABI()
	if err != nil {
		return 0, fmt.Errorf("parse pool abi: %w", err)
	}

	seconds := int64(window / time.Second)
	if seconds <= 0 {
		return 0, fmt.Errorf("twap window must be positive")
	}

	secondsAgos := []uint32{uint32(seconds), 0}
	values, err := contractCall(ctx, p.src, p.Address, poolABI, "observe", secondsAgos)
	if err != nil {
		return 0, err
	}

	cumulatives, ok := values[0].([]*big.Int)
	if !ok || len(cumulatives) != 2 {
		return 0, fmt.Errorf("unexpected observe result %T", values[0])
	}

	delta := new(big.Int).Sub(cumulatives[1], cumulatives[0])
	avg := FloorDivTick(delta, seconds)
	return int24FromBig(avg)
}

// FloorDivTick divides a tick-cumulative delta by a positive window,
// rounding toward negative infinity.
func FloorDivTick(delta *big.Int, seconds int64) *big.Int {
	return new(big.Int).Div(delta, big.NewInt(seconds))
}

func fetchTokenRef(ctx context.Context, src ClientSource, address common.Address) (TokenRef, error) {
	token := NewERC20(address, src)
	decimals, err := token.Decimals(ctx)
	if err != nil {
		return TokenRef{}, err
	}
	symbol, err := token.Symbol(ctx)
	if err != nil {
		symbol = ""
	}
	return TokenRef{Address: address, Decimals: decimals, Symbol: symbol}, nil
}
