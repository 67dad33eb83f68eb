package chain

import (
	"context"
	"errors"
	"testing"
	"time"
)

// http endpoints dial lazily, so ring mechanics are testable without a
// live node.
func TestSupervisorRotation(t *testing.T) {
	ctx := context.Background()
	endpoints := []string{"http://127.0.0.1:18545", "http://127.0.0.1:28545", "http://127.0.0.1:38545"}

	s, err := NewSupervisor(ctx, endpoints, nil, nil)
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}
	if got := s.CurrentIndex(); got != 0 {
		t.Fatalf("initial index = %d", got)
	}

	switched := make(chan struct{}, 1)
	s.OnSwitch(func() { switched <- struct{}{} })

	s.TriggerRotate(ctx, "test")

	select {
	case <-switched:
	case <-time.After(10 * time.Second):
		t.Fatalf("rotation did not complete")
	}

	if got := s.CurrentIndex(); got != 1 {
		t.Fatalf("index after rotation = %d, want 1", got)
	}
	if got := s.Client().Endpoint(); got != endpoints[1] {
		t.Fatalf("client endpoint = %s, want %s", got, endpoints[1])
	}
}

func TestSupervisorConcurrentTriggersCollapse(t *testing.T) {
	ctx := context.Background()
	endpoints := []string{"http://127.0.0.1:18545", "http://127.0.0.1:28545"}

	s, err := NewSupervisor(ctx, endpoints, nil, nil)
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}

	switched := make(chan struct{}, 8)
	s.OnSwitch(func() { switched <- struct{}{} })

	for i := 0; i < 5; i++ {
		s.TriggerRotate(ctx, "burst")
	}

	select {
	case <-switched:
	case <-time.After(10 * time.Second):
		t.Fatalf("rotation did not complete")
	}

	// A burst of triggers while one rotation is in flight must advance
	// the ring exactly once.
	time.Sleep(100 * time.Millisecond)
	if got := len(switched); got != 0 {
		t.Fatalf("expected a single rotation, saw %d extra", got)
	}
	if got := s.CurrentIndex(); got != 1 {
		t.Fatalf("index = %d, want 1", got)
	}
}

func TestSupervisorRequiresEndpoints(t *testing.T) {
	if _, err := NewSupervisor(context.Background(), nil, nil, nil); err == nil {
		t.Fatalf("expected error for empty endpoint list")
	}
}

func TestReportInstabilityIgnoresOtherErrors(t *testing.T) {
	ctx := context.Background()
	s, err := NewSupervisor(ctx, []string{"http://127.0.0.1:18545", "http://127.0.0.1:28545"}, nil, nil)
	if err != nil {
		t.Fatalf("new supervisor: %v", err)
	}

	// A revert is not endpoint instability; the ring must not move.
	s.ReportInstability(ctx, errors.New("execution reverted: STF"))
	time.Sleep(50 * time.Millisecond)
	if got := s.CurrentIndex(); got != 0 {
		t.Fatalf("index moved to %d on a non-transient error", got)
	}
}
