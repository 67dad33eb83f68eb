package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// MintParams mirrors the position manager mint tuple.
type MintParams struct {
	Token0         common.Address
	Token1         common.Address
	Fee            *big.Int
	TickLower      *big.Int
	TickUpper      *big.Int
	Amount0Desired *big.Int
	Amount1Desired *big.Int
	Amount0Min     *big.Int
	Amount1Min     *big.Int
	Recipient      common.Address
	Deadline       *big.Int
}

type decreaseLiquidityParams struct {
	TokenId    *big.Int
	Liquidity  *big.Int
	Amount0Min *big.Int
	Amount1Min *big.Int
	Deadline   *big.Int
}

type collectParams struct {
	TokenId    *big.Int
	Recipient  common.Address
	Amount0Max *big.Int
	Amount1Max *big.Int
}

// PositionManager calls the NFT position manager contract.
type PositionManager struct {
	Address common.Address
	src     ClientSource
}

func NewPositionManager(address common.Address, src ClientSource) *PositionManager {
	return &PositionManager{Address: address, src: src}
}

// Positions reads the on-chain position for a token id.
func (m *PositionManager) Positions(ctx context.Context, tokenID *big.Int) (Position, error) {
	parsed, err := PositionManagerABI()
	if err != nil {
		return Position{}, fmt.Errorf("parse npm abi: %w", err)
	}
	values, err := contractCall(ctx, m.src, m.Address, parsed, "positions", tokenID)
	if err != nil {
		return Position{}, err
	}
	if len(values) != 12 {
		return Position{}, fmt.Errorf("unexpected positions values: %d", len(values))
	}

	lowerInt, err := asBigInt(values[5])
	if err != nil {
		return Position{}, fmt.Errorf("tickLower: %w", err)
	}
	upperInt, err := asBigInt(values[6])
	if err != nil {
		return Position{}, fmt.Errorf("tickUpper: %w", err)
	}
	tickLower, err := int24FromBig(lowerInt)
	if err != nil {
		return Position{}, fmt.Errorf("tickLower: %w", err)
	}
	tickUpper, err := int24FromBig(upperInt)
	if err != nil {
		return Position{}, fmt.Errorf("tickUpper: %w", err)
	}
	liquidity, err := asBigInt(values[7])
	if err != nil {
		return Position{}, fmt.Errorf("liquidity: %w", err)
	}
	owed0, err := asBigInt(values[10])
	if err != nil {
		return Position{}, fmt.Errorf("tokensOwed0: %w", err)
	}
	owed1, err := asBigInt(values[11])
	if err != nil {
		return Position{}, fmt.Errorf("tokensOwed1: %w", err)
	}

	return Position{
		TokenID:     new(big.Int).Set(tokenID),
		TickLower:   tickLower,
		TickUpper:   tickUpper,
		Liquidity:   liquidity,
		TokensOwed0: owed0,
		TokensOwed1: owed1,
	}, nil
}

// BalanceOf returns the number of position NFTs the owner holds.
func (m *PositionManager) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	parsed, err := PositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse npm abi: %w", err)
	}
	values, err := contractCall(ctx, m.src, m.Address, parsed, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// TokenOfOwnerByIndex enumerates the owner's position NFTs.
func (m *PositionManager) TokenOfOwnerByIndex(ctx context.Context, owner common.Address, index *big.Int) (*big.Int, error) {
	parsed, err := PositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse npm abi: %w", err)
	}
	values, err := contractCall(ctx, m.src, m.Address, parsed, "tokenOfOwnerByIndex", owner, index)
	if err != nil {
		return nil, err
	}
	return asBigInt(values[0])
}

// DecreaseLiquidityData builds decreaseLiquidity calldata.
func (m *PositionManager) DecreaseLiquidityData(tokenID, liquidity, deadline *big.Int) ([]byte, error) {
	parsed, err := PositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse npm abi: %w", err)
	}
	data, err := parsed.Pack("decreaseLiquidity", decreaseLiquidityParams{
		TokenId:    tokenID,
		Liquidity:  liquidity,
		Amount0Min: big.NewInt(0),
		Amount1Min: big.NewInt(0),
		Deadline:   deadline,
	})
	if err != nil {
		return nil, fmt.Errorf("pack decreaseLiquidity: %w", err)
	}
	return data, nil
}

// CollectData builds collect calldata with max amounts.
func (m *PositionManager) CollectData(tokenID *big.Int, recipient common.Address) ([]byte, error) {
	parsed, err := PositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse npm abi: %w", err)
	}
	data, err := parsed.Pack("collect", collectParams{
		TokenId:    tokenID,
		Recipient:  recipient,
		Amount0Max: MaxUint128,
		Amount1Max: MaxUint128,
	})
	if err != nil {
		return nil, fmt.Errorf("pack collect: %w", err)
	}
	return data, nil
}

// BurnData builds burn calldata.
func (m *PositionManager) BurnData(tokenID *big.Int) ([]byte, error) {
	parsed, err := PositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse npm abi: %w", err)
	}
	data, err := parsed.Pack("burn", tokenID)
	if err != nil {
		return nil, fmt.Errorf("pack burn: %w", err)
	}
	return data, nil
}

// MintData builds mint calldata.
func (m *PositionManager) MintData(params MintParams) ([]byte, error) {
	parsed, err := PositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse npm abi: %w", err)
	}
	data, err := parsed.Pack("mint", params)
	if err != nil {
		return nil, fmt.Errorf("pack mint: %w", err)
	}
	return data, nil
}

// MulticallData wraps encoded calls into one multicall.
func (m *PositionManager) MulticallData(calls [][]byte) ([]byte, error) {
	parsed, err := PositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse npm abi: %w", err)
	}
	data, err := parsed.Pack("multicall", calls)
	if err != nil {
		return nil, fmt.Errorf("pack multicall: %w", err)
	}
	return data, nil
}

// StaticCollect simulates collect(max, max) via eth_call to read pending
// fees without mutating state. The stale tokensOwed fields on the
// position are not a substitute.
func (m *PositionManager) StaticCollect(ctx context.Context, from common.Address, tokenID *big.Int, recipient common.Address) (*big.Int, *big.Int, error) {
	parsed, err := PositionManagerABI()
	if err != nil {
		return nil, nil, fmt.Errorf("parse npm abi: %w", err)
	}
	values, err := contractCallFrom(ctx, m.src, from, m.Address, parsed, "collect", collectParams{
		TokenId:    tokenID,
		Recipient:  recipient,
		Amount0Max: MaxUint128,
		Amount1Max: MaxUint128,
	})
	if err != nil {
		return nil, nil, err
	}
	if len(values) != 2 {
		return nil, nil, fmt.Errorf("unexpected collect values: %d", len(values))
	}
	amount0, err := asBigInt(values[0])
	if err != nil {
		return nil, nil, err
	}
	amount1, err := asBigInt(values[1])
	if err != nil {
		return nil, nil, err
	}
	return amount0, amount1, nil
}

// ParseCollect extracts the collected amounts from the Collect event in
// the receipt.
func (m *PositionManager) ParseCollect(receipt *types.Receipt) (*big.Int, *big.Int, error) {
	parsed, err := PositionManagerABI()
	if err != nil {
		return nil, nil, fmt.Errorf("parse npm abi: %w", err)
	}
	collectID := parsed.Events["Collect"].ID

	for _, log := range receipt.Logs {
		if log.Address != m.Address || len(log.Topics) == 0 || log.Topics[0] != collectID {
			continue
		}
		values, err := parsed.Events["Collect"].Inputs.NonIndexed().Unpack(log.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("unpack Collect: %w", err)
		}
		if len(values) != 3 {
			return nil, nil, fmt.Errorf("unexpected Collect values: %d", len(values))
		}
		amount0, err := asBigInt(values[1])
		if err != nil {
			return nil, nil, err
		}
		amount1, err := asBigInt(values[2])
		if err != nil {
			return nil, nil, err
		}
		return amount0, amount1, nil
	}
	return nil, nil, fmt.Errorf("no Collect event in receipt %s", receipt.TxHash.Hex())
}

// ParseMintedTokenID extracts the token id from the Transfer event that
// minted a position NFT to the owner.
func (m *PositionManager) ParseMintedTokenID(receipt *types.Receipt, owner common.Address) (*big.Int, error) {
	parsed, err := PositionManagerABI()
	if err != nil {
		return nil, fmt.Errorf("parse npm abi: %w", err)
	}
	transferID := parsed.Events["Transfer"].ID
	ownerTopic := common.BytesToHash(owner.Bytes())

	for _, log := range receipt.Logs {
		if log.Address != m.Address || len(log.Topics) != 4 || log.Topics[0] != transferID {
			continue
		}
		if log.Topics[1] != (common.Hash{}) || log.Topics[2] != ownerTopic {
			continue
		}
		return new(big.Int).SetBytes(log.Topics[3].Bytes()), nil
	}
	return nil, fmt.Errorf("no mint Transfer event in receipt %s", receipt.TxHash.Hex())
}
