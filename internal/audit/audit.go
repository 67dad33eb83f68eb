// Package audit records every decision of consequence to an append-only
// CSV log and, optionally, a Postgres mirror.
package audit

import (
	"context"
	"strings"
	"time"
)

// EventType classifies an audit row.
type EventType string

const (
	TypeEntry     EventType = "ENTRY"
	TypeRebalance EventType = "REBALANCE"
	TypeStopLoss  EventType = "STOP_LOSS"
	TypeError     EventType = "ERROR"
	TypeInfo      EventType = "INFO"
	TypeMetrics   EventType = "STRATEGY_METRICS"
)

// Event is one decision row.
type Event struct {
	Time    time.Time
	Block   uint64
	Type    EventType
	Price   float64
	Tick    int32
	RunID   string
	Details string
}

// Sink records audit events.
type Sink interface {
	Record(ctx context.Context, event Event) error
	Close() error
}

// SanitizeDetails strips the CSV-hostile characters from a details
// field: commas become semicolons, double quotes become single quotes.
func SanitizeDetails(details string) string {
	details = strings.ReplaceAll(details, ",", ";")
	details = strings.ReplaceAll(details, `"`, "'")
	return details
}

// MultiSink fans one event out to several sinks; the first error wins
// but all sinks are attempted.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Record(ctx context.Context, event Event) error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Record(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m *MultiSink) Close() error {
	var firstErr error
	for _, sink := range m.sinks {
		if err := sink.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
