package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSink mirrors audit events into a queryable history table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

// NewPostgresSink connects to the DSN and ensures the table exists.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS audit_events (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			block BIGINT NOT NULL,
			event_type TEXT NOT NULL,
			price DOUBLE PRECISION NOT NULL,
			tick INTEGER NOT NULL,
			run_id TEXT NOT NULL DEFAULT '',
			details TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure audit table: %w", err)
	}

	return &PostgresSink{pool: pool}, nil
}

// Record inserts one audit row.
func (s *PostgresSink) Record(ctx context.Context, event Event) error {
	ts := event.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_events (ts, block, event_type, price, tick, run_id, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		ts.UTC(),
		int64(event.Block),
		string(event.Type),
		event.Price,
		int32(event.Tick),
		event.RunID,
		event.Details,
	)
	if err != nil {
		return fmt.Errorf("insert audit row: %w", err)
	}
	return nil
}

func (s *PostgresSink) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
