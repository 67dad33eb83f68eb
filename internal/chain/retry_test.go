package chain

import (
	"context"
	"errors"
	"testing"
)

func TestWithRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 3, func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestWithRetrySurfacesLastError(t *testing.T) {
	wantErr := errors.New("boom")
	calls := 0
	err := WithRetry(context.Background(), 0, func(context.Context) error {
		calls++
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestWithRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, 3, func(context.Context) error {
		return errors.New("always fails")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestIsUnstable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("HTTP 429 Too Many Requests"), true},
		{errors.New("context deadline exceeded (timeout)"), true},
		{errors.New("bad_data from upstream"), true},
		{errors.New("execution reverted: STF"), false},
		{nil, false},
	}

	for _, tc := range cases {
		if got := IsUnstable(tc.err); got != tc.want {
			t.Fatalf("IsUnstable(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
