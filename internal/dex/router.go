package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// ExactInputSingleParams mirrors the swap router exactInputSingle tuple.
type ExactInputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountIn          *big.Int
	AmountOutMinimum  *big.Int
	SqrtPriceLimitX96 *big.Int
}

// ExactOutputSingleParams mirrors the swap router exactOutputSingle tuple.
type ExactOutputSingleParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	Fee               *big.Int
	Recipient         common.Address
	Deadline          *big.Int
	AmountOut         *big.Int
	AmountInMaximum   *big.Int
	SqrtPriceLimitX96 *big.Int
}

// Router builds calldata for the swap router.
type Router struct {
	Address common.Address
	src     ClientSource
}

func NewRouter(address common.Address, src ClientSource) *Router {
	return &Router{Address: address, src: src}
}

// ExactInputSingleData builds exactInputSingle calldata.
func (r *Router) ExactInputSingleData(params ExactInputSingleParams) ([]byte, error) {
	parsed, err := SwapRouterABI()
	if err != nil {
		return nil, fmt.Errorf("parse router abi: %w", err)
	}
	data, err := parsed.Pack("exactInputSingle", params)
	if err != nil {
		return nil, fmt.Errorf("pack exactInputSingle: %w", err)
	}
	return data, nil
}

// ExactOutputSingleData builds exactOutputSingle calldata.
func (r *Router) ExactOutputSingleData(params ExactOutputSingleParams) ([]byte, error) {
	parsed, err := SwapRouterABI()
	if err != nil {
		return nil, fmt.Errorf("parse router abi: %w", err)
	}
	data, err := parsed.Pack("exactOutputSingle", params)
	if err != nil {
		return nil, fmt.Errorf("pack exactOutputSingle: %w", err)
	}
	return data, nil
}

// Quoter static-calls the quoter contract for swap quotes.
type Quoter struct {
	Address common.Address
	src     ClientSource
}

func NewQuoter(address common.Address, src ClientSource) *Quoter {
	return &Quoter{Address: address, src: src}
}

// QuoteExactInputSingle returns the expected output for an exact input.
func (q *Quoter) QuoteExactInputSingle(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*big.Int, error) {
	parsed, err := QuoterABI()
	if err != nil {
		return nil, fmt.Errorf("parse quoter abi: %w", err)
	}
	values, err := contractCall(ctx, q.src, q.Address, parsed, "quoteExactInputSingle",
		tokenIn, tokenOut, new(big.Int).SetUint64(uint64(fee)), amountIn, big.NewInt(0))
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// QuoteExactOutputSingle returns the required input for an exact output.
func (q *Quoter) QuoteExactOutputSingle(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountOut *big.Int) (*big.Int, error) {
	parsed, err := QuoterABI()
	if err != nil {
		return nil, fmt.Errorf("parse quoter abi: %w", err)
	}
	values, err := contractCall(ctx, q.src, q.Address, parsed, "quoteExactOutputSingle",
		tokenIn, tokenOut, new(big.Int).SetUint64(uint64(fee)), amountOut, big.NewInt(0))
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}
