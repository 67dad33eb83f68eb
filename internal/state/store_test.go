package state

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "state.json"))
}

func TestLoadAbsentFile(t *testing.T) {
	store := tempStore(t)
	st := store.Load()
	if st.TokenID != NoPosition || st.LastCheck != 0 {
		t.Fatalf("absent file should read as no position, got %+v", st)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	store := tempStore(t)
	if err := os.WriteFile(store.path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	st := store.Load()
	if st.TokenID != NoPosition {
		t.Fatalf("corrupt file should read as no position, got %+v", st)
	}
}

func TestLoadNonDecimalTokenID(t *testing.T) {
	store := tempStore(t)
	if err := os.WriteFile(store.path, []byte(`{"tokenId":"0xbeef","lastCheck":5}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	st := store.Load()
	if st.TokenID != NoPosition {
		t.Fatalf("non-decimal token id should read as no position, got %+v", st)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	store := tempStore(t)
	if err := store.Save("123456"); err != nil {
		t.Fatalf("save: %v", err)
	}
	st := store.Load()
	if st.TokenID != "123456" {
		t.Fatalf("token id = %s, want 123456", st.TokenID)
	}
	if st.LastCheck == 0 {
		t.Fatalf("lastCheck not stamped")
	}

	if err := store.Reset(); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got := store.Load().TokenID; got != NoPosition {
		t.Fatalf("after reset token id = %s", got)
	}
}

type fakeReader struct {
	tokens    []*big.Int
	liquidity map[string]*big.Int
}

func (r *fakeReader) BalanceOf(context.Context, common.Address) (*big.Int, error) {
	return big.NewInt(int64(len(r.tokens))), nil
}

func (r *fakeReader) TokenOfOwnerByIndex(_ context.Context, _ common.Address, index *big.Int) (*big.Int, error) {
	i := index.Int64()
	if i < 0 || i >= int64(len(r.tokens)) {
		return nil, fmt.Errorf("index out of range")
	}
	return r.tokens[i], nil
}

func (r *fakeReader) PositionLiquidity(_ context.Context, tokenID *big.Int) (*big.Int, error) {
	liq, ok := r.liquidity[tokenID.String()]
	if !ok {
		return big.NewInt(0), nil
	}
	return liq, nil
}

func TestScanOrphansAdoptsHighestIndex(t *testing.T) {
	store := tempStore(t)
	reader := &fakeReader{
		tokens: []*big.Int{big.NewInt(11), big.NewInt(22), big.NewInt(33)},
		liquidity: map[string]*big.Int{
			"11": big.NewInt(500),
			"22": big.NewInt(900),
			"33": big.NewInt(0), // burned but still enumerated
		},
	}

	tokenID, found, err := store.ScanOrphans(context.Background(), reader, common.Address{})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !found || tokenID != "22" {
		t.Fatalf("adopted %q (found=%v), want 22", tokenID, found)
	}
	if got := store.Load().TokenID; got != "22" {
		t.Fatalf("persisted %s, want 22", got)
	}
}

func TestScanOrphansNoTokens(t *testing.T) {
	store := tempStore(t)
	reader := &fakeReader{}

	_, found, err := store.ScanOrphans(context.Background(), reader, common.Address{})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if found {
		t.Fatalf("nothing to adopt, but found reported")
	}
}

func TestScanOrphansSkipsWhenPositionRecorded(t *testing.T) {
	store := tempStore(t)
	if err := store.Save("77"); err != nil {
		t.Fatalf("save: %v", err)
	}
	reader := &fakeReader{
		tokens:    []*big.Int{big.NewInt(99)},
		liquidity: map[string]*big.Int{"99": big.NewInt(1)},
	}

	_, found, err := store.ScanOrphans(context.Background(), reader, common.Address{})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if found {
		t.Fatalf("scan must not run while a position is recorded")
	}
}
