package dex

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

func TestFloorDivTickNegativeDelta(t *testing.T) {
	// -301 / 300 must floor to -2, not truncate to -1.
	got := FloorDivTick(big.NewInt(-301), 300)
	if got.Int64() != -2 {
		t.Fatalf("FloorDivTick(-301, 300) = %d, want -2", got.Int64())
	}

	got = FloorDivTick(big.NewInt(301), 300)
	if got.Int64() != 1 {
		t.Fatalf("FloorDivTick(301, 300) = %d, want 1", got.Int64())
	}

	got = FloorDivTick(big.NewInt(-600), 300)
	if got.Int64() != -2 {
		t.Fatalf("FloorDivTick(-600, 300) = %d, want -2", got.Int64())
	}
}

func TestToken0Price(t *testing.T) {
	q96 := new(big.Int).Lsh(big.NewInt(1), 96)

	// sqrtPriceX96 = 2^96 means a raw price of exactly 1 wei token1 per
	// wei token0; with 18/6 decimals that is 1e12 human units.
	snap := PoolSnapshot{
		SqrtPriceX96: q96,
		Token0:       TokenRef{Decimals: 18, Symbol: "WETH"},
		Token1:       TokenRef{Decimals: 6, Symbol: "USDC"},
	}

	want := decimal.New(1, 12)
	if !snap.Token0Price().Equal(want) {
		t.Fatalf("Token0Price = %s, want %s", snap.Token0Price(), want)
	}

	// Halving the sqrt ratio quarters the price.
	snap.SqrtPriceX96 = new(big.Int).Rsh(q96, 1)
	want = decimal.New(25, 10)
	if !snap.Token0Price().Equal(want) {
		t.Fatalf("Token0Price = %s, want %s", snap.Token0Price(), want)
	}
}

func TestParseMintedTokenID(t *testing.T) {
	npmAddr := common.HexToAddress("0xC36442b4a4522E871399CD717aBDD847Ab11FE88")
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	manager := NewPositionManager(npmAddr, nil)

	parsed, err := PositionManagerABI()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}

	tokenID := big.NewInt(987654)
	receipt := &types.Receipt{
		TxHash: common.HexToHash("0x01"),
		Logs: []*types.Log{
			{
				Address: npmAddr,
				Topics: []common.Hash{
					parsed.Events["Transfer"].ID,
					{},
					common.BytesToHash(owner.Bytes()),
					common.BigToHash(tokenID),
				},
			},
		},
	}

	got, err := manager.ParseMintedTokenID(receipt, owner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Cmp(tokenID) != 0 {
		t.Fatalf("tokenID = %s, want %s", got, tokenID)
	}
}

func TestParseMintedTokenIDMissing(t *testing.T) {
	manager := NewPositionManager(common.HexToAddress("0x02"), nil)
	receipt := &types.Receipt{TxHash: common.HexToHash("0x03")}
	if _, err := manager.ParseMintedTokenID(receipt, common.Address{}); err == nil {
		t.Fatalf("expected error for receipt without Transfer event")
	}
}

func TestParseCollect(t *testing.T) {
	npmAddr := common.HexToAddress("0xC36442b4a4522E871399CD717aBDD847Ab11FE88")
	manager := NewPositionManager(npmAddr, nil)

	parsed, err := PositionManagerABI()
	if err != nil {
		t.Fatalf("parse abi: %v", err)
	}

	recipient := common.HexToAddress("0x2222222222222222222222222222222222222222")
	amount0 := big.NewInt(1_500_000)
	amount1 := big.NewInt(42)
	data, err := parsed.Events["Collect"].Inputs.NonIndexed().Pack(recipient, amount0, amount1)
	if err != nil {
		t.Fatalf("pack event data: %v", err)
	}

	receipt := &types.Receipt{
		TxHash: common.HexToHash("0x04"),
		Logs: []*types.Log{
			{
				Address: npmAddr,
				Topics: []common.Hash{
					parsed.Events["Collect"].ID,
					common.BigToHash(big.NewInt(7)),
				},
				Data: data,
			},
		},
	}

	got0, got1, err := manager.ParseCollect(receipt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got0.Cmp(amount0) != 0 || got1.Cmp(amount1) != 0 {
		t.Fatalf("collected (%s, %s), want (%s, %s)", got0, got1, amount0, amount1)
	}
}
