package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	heartbeatInterval = 30 * time.Second
	heartbeatTimeout  = 10 * time.Second
	rotateDebounce    = 2 * time.Second
)

// Alerter receives out-of-band notifications for significant events.
type Alerter interface {
	Send(subject, body string)
}

// Supervisor holds an ordered ring of RPC endpoints and exposes a single
// live client. Unhealthy endpoints are detected by a websocket heartbeat
// or by callers reporting instability, and the ring rotates to the next
// endpoint. Dependents rebind through OnSwitch.
type Supervisor struct {
	endpoints []string
	logger    *zap.Logger
	alerts    Alerter

	mu       sync.Mutex
	idx      int
	client   *Client
	rotating bool
	onSwitch []func()

	hbCancel context.CancelFunc
}

// NewSupervisor dials the first endpoint and starts the heartbeat if it
// is a websocket endpoint.
func NewSupervisor(ctx context.Context, endpoints []string, logger *zap.Logger, alerts Alerter) (*Supervisor, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("at least one rpc endpoint is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := NewClient(ctx, endpoints[0])
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoints[0], err)
	}

	s := &Supervisor{
		endpoints: endpoints,
		logger:    logger,
		alerts:    alerts,
		client:    client,
	}
	s.startHeartbeat(ctx)

	return s, nil
}

// Client returns the current live client. Callers must re-fetch after a
// switch notification rather than holding the value across suspensions.
func (s *Supervisor) Client() *Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// CurrentIndex returns the position of the live endpoint in the ring.
func (s *Supervisor) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx
}

// OnSwitch registers a callback invoked after each successful rotation.
// Any subscription held against the previous client is dead once the
// callback fires; dependents must re-subscribe.
func (s *Supervisor) OnSwitch(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSwitch = append(s.onSwitch, fn)
}

// ReportInstability rotates the ring when the error matches the known
// transient patterns (rate limits, bad data, timeouts).
func (s *Supervisor) ReportInstability(ctx context.Context, err error) {
	if err == nil || !IsUnstable(err) {
		return
	}
	s.TriggerRotate(ctx, err.Error())
}

// IsUnstable reports whether the error message matches the patterns that
// justify endpoint rotation.
func IsUnstable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"too many requests", "429", "bad_data", "timeout"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// TriggerRotate requests a rotation to the next endpoint. Concurrent
// triggers collapse into the rotation already in flight.
func (s *Supervisor) TriggerRotate(ctx context.Context, reason string) {
	s.mu.Lock()
	if s.rotating {
		s.mu.Unlock()
		return
	}
	s.rotating = true
	old := s.client
	s.mu.Unlock()

	go s.rotate(ctx, old, reason)
}

func (s *Supervisor) rotate(ctx context.Context, old *Client, reason string) {
	defer func() {
		s.mu.Lock()
		s.rotating = false
		s.mu.Unlock()
	}()

	if s.hbCancel != nil {
		s.hbCancel()
		s.hbCancel = nil
	}
	if old != nil {
		old.Close()
	}

	timer := time.NewTimer(rotateDebounce)
	select {
	case <-ctx.Done():
		timer.Stop()
		return
	case <-timer.C:
	}

	s.mu.Lock()
	next := (s.idx + 1) % len(s.endpoints)
	endpoint := s.endpoints[next]
	s.mu.Unlock()

	client, err := NewClient(ctx, endpoint)
	if err != nil {
		s.logger.Error("endpoint dial failed",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		// Leave the ring pointing at the dead endpoint; the next
		// trigger advances again.
		s.mu.Lock()
		s.idx = next
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.idx = next
	s.client = client
	callbacks := make([]func(), len(s.onSwitch))
	copy(callbacks, s.onSwitch)
	s.mu.Unlock()

	s.logger.Warn("rpc endpoint rotated",
		zap.Int("index", next),
		zap.String("endpoint", endpoint),
		zap.String("reason", reason),
	)
	if s.alerts != nil {
		s.alerts.Send("RPC endpoint rotated",
			fmt.Sprintf("Switched to endpoint #%d (%s). Reason: %s", next, endpoint, reason))
	}

	s.startHeartbeat(ctx)

	for _, fn := range callbacks {
		fn()
	}
}

// startHeartbeat probes a websocket endpoint every 30 seconds with a
// cheap read. Any probe error triggers rotation. HTTP endpoints have no
// heartbeat; rotation is caller-driven.
func (s *Supervisor) startHeartbeat(ctx context.Context) {
	s.mu.Lock()
	client := s.client
	s.mu.Unlock()

	if client == nil || !client.IsWebSocket() {
		return
	}

	hbCtx, cancel := context.WithCancel(ctx)
	s.hbCancel = cancel

	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				probeCtx, probeCancel := context.WithTimeout(hbCtx, heartbeatTimeout)
				_, err := client.LatestBlockNumber(probeCtx)
				probeCancel()
				if err != nil {
					s.logger.Warn("heartbeat probe failed",
						zap.String("endpoint", client.Endpoint()),
						zap.Error(err),
					)
					s.TriggerRotate(ctx, fmt.Sprintf("heartbeat: %v", err))
					return
				}
			}
		}
	}()
}
