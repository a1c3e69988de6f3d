package ratelimit

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MySQLLimiter keeps one rate_limits row per (identifier, endpoint).
type MySQLLimiter struct {
	db  *sql.DB
	now func() time.Time
}

func NewMySQLLimiter(db *sql.DB) *MySQLLimiter {
	return &MySQLLimiter{db: db, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (l *MySQLLimiter) WithClock(now func() time.Time) *MySQLLimiter {
	return &MySQLLimiter{db: l.db, now: now}
}

func (l *MySQLLimiter) CheckAndConsume(ctx context.Context, identifier, endpoint string, limit int, window time.Duration) (Result, error) {
	now := l.now().UTC()
	cutoff := now.Add(-window)
	reset := now.Add(window)

	// Lapsed windows are purged for every key, not just this one.
	if _, err := l.db.ExecContext(ctx, "DELETE FROM rate_limits WHERE window_start < ?", cutoff); err != nil {
		return Result{}, errors.Wrap(err, "purge rate limits")
	}

	var count int
	err := l.db.QueryRowContext(ctx,
		"SELECT request_count FROM rate_limits WHERE identifier = ? AND endpoint = ? AND window_start >= ?",
		identifier, endpoint, cutoff).Scan(&count)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		count = 0
	case err != nil:
		return Result{}, errors.Wrap(err, "read rate limit")
	}

	if count >= limit {
		return Result{Allowed: false, Remaining: 0, ResetTime: reset}, nil
	}

	const upsert = `INSERT INTO rate_limits (id, identifier, endpoint, request_count, window_start, created_at)
		VALUES (?, ?, ?, 1, ?, ?)
		ON DUPLICATE KEY UPDATE request_count = request_count + 1`
	if _, err := l.db.ExecContext(ctx, upsert, uuid.NewString(), identifier, endpoint, now, now); err != nil {
		return Result{}, errors.Wrap(err, "record request")
	}

	remaining := limit - (count + 1)
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining, ResetTime: reset}, nil
}
