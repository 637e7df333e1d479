package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lloyd-blog/edge/internal/db"
)

// SQL is a sliding-window limiter whose events live in the database, so
// every instance pointed at the same database shares one counter per key.
type SQL struct {
	db     *db.DB
	limit  int
	window time.Duration
	now    func() time.Time
}

var _ Limiter = (*SQL)(nil)

// NewSQL creates a database-backed limiter.
func NewSQL(database *db.DB, limit int, window time.Duration) *SQL {
	return &SQL{db: database, limit: limit, window: window, now: time.Now}
}

// SetClock replaces the time source, for tests.
func (s *SQL) SetClock(now func() time.Time) { s.now = now }

// Check has the same semantics as Memory.Check, executed in one transaction.
func (s *SQL) Check(ctx context.Context, key string) (bool, error) {
	now := s.now()
	cutoff := now.Add(-s.window).UnixMilli()

	var allowed bool
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM rate_limit_events WHERE key = ? AND at <= ?`, key, cutoff); err != nil {
			return fmt.Errorf("pruning rate limit events: %w", err)
		}

		var count int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM rate_limit_events WHERE key = ?`, key).Scan(&count); err != nil {
			return fmt.Errorf("counting rate limit events: %w", err)
		}
		if count >= s.limit {
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rate_limit_events (key, at) VALUES (?, ?)`, key, now.UnixMilli()); err != nil {
			return fmt.Errorf("recording rate limit event: %w", err)
		}
		allowed = true
		return nil
	})
	return allowed, err
}

// Sweep deletes every event older than the window, for all keys.
func (s *SQL) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.window).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_events WHERE at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweeping rate limit events: %w", err)
	}
	return res.RowsAffected()
}
