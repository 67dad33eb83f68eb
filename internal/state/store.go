// Package state persists the agent's position record across restarts.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NoPosition is the token id recorded when no position is held.
const NoPosition = "0"

// State is the persisted record. It is rewritten only after the on-chain
// effect is confirmed and may lag reality; ScanOrphans reconciles.
type State struct {
	TokenID   string `json:"tokenId"`
	LastCheck int64  `json:"lastCheck"`
}

// Store persists State to a single JSON file.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the persisted state. An absent or malformed file reads as
// no position.
func (s *Store) Load() State {
	empty := State{TokenID: NoPosition, LastCheck: 0}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return empty
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return empty
	}
	if st.TokenID == "" {
		return empty
	}
	if _, ok := new(big.Int).SetString(st.TokenID, 10); !ok {
		return empty
	}
	return st
}

// Save atomically writes the token id with the current timestamp.
func (s *Store) Save(tokenID string) error {
	if tokenID == "" {
		tokenID = NoPosition
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	st := State{
		TokenID:   tokenID,
		LastCheck: time.Now().UnixMilli(),
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}
	return nil
}

// Reset records that no position is held.
func (s *Store) Reset() error {
	return s.Save(NoPosition)
}

// PositionReader is the NFT enumeration surface the orphan scan needs.
type PositionReader interface {
	BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error)
	TokenOfOwnerByIndex(ctx context.Context, owner common.Address, index *big.Int) (*big.Int, error)
	PositionLiquidity(ctx context.Context, tokenID *big.Int) (*big.Int, error)
}

// ScanOrphans adopts an on-chain position whose local record was lost:
// if the wallet holds position NFTs while the store says none, the
// highest-indexed NFT with positive liquidity is persisted. Ties break
// toward the highest index (the last mint).
func (s *Store) ScanOrphans(ctx context.Context, reader PositionReader, owner common.Address) (string, bool, error) {
	if s.Load().TokenID != NoPosition {
		return "", false, nil
	}

	balance, err := reader.BalanceOf(ctx, owner)
	if err != nil {
		return "", false, fmt.Errorf("nft balance: %w", err)
	}
	if balance.Sign() == 0 {
		return "", false, nil
	}

	for i := new(big.Int).Sub(balance, big.NewInt(1)); i.Sign() >= 0; i.Sub(i, big.NewInt(1)) {
		tokenID, err := reader.TokenOfOwnerByIndex(ctx, owner, i)
		if err != nil {
			return "", false, fmt.Errorf("token of owner by index %s: %w", i, err)
		}
		liquidity, err := reader.PositionLiquidity(ctx, tokenID)
		if err != nil {
			return "", false, fmt.Errorf("position %s liquidity: %w", tokenID, err)
		}
		if liquidity.Sign() > 0 {
			if err := s.Save(tokenID.String()); err != nil {
				return "", false, fmt.Errorf("persist orphan: %w", err)
			}
			return tokenID.String(), true, nil
		}
	}
	return "", false, nil
}
