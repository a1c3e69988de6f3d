// Package ratelimit implements fixed-window request counting keyed by
// (identifier, endpoint).  The window starts at the first request and lasts
// the configured duration; once it lapses the counter starts over.
package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of one CheckAndConsume call.
type Result struct {
	Allowed   bool
	Remaining int
	ResetTime time.Time
}

// Limiter decides whether a request may proceed and records it when it does.
// Storage failures are returned to the caller; a limiter never silently
// fails open or closed.
type Limiter interface {
	CheckAndConsume(ctx context.Context, identifier, endpoint string, limit int, window time.Duration) (Result, error)
}
