package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory is a process-local Limiter with the same fixed-window behaviour as
// the MySQL backend.  Counters are not shared between instances, so it is
// only suitable for a single process (development, tests).
type Memory struct {
	mu      sync.Mutex
	windows map[string]memWindow
	now     func() time.Time
}

type memWindow struct {
	start time.Time
	count int
}

func NewMemory() *Memory {
	return &Memory{windows: map[string]memWindow{}, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) CheckAndConsume(_ context.Context, identifier, endpoint string, limit int, window time.Duration) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	cutoff := now.Add(-window)
	for k, w := range m.windows {
		if w.start.Before(cutoff) {
			delete(m.windows, k)
		}
	}

	key := identifier + "|" + endpoint
	w, ok := m.windows[key]
	reset := now.Add(window)
	if ok && w.count >= limit {
		return Result{Allowed: false, Remaining: 0, ResetTime: reset}, nil
	}
	if !ok {
		w = memWindow{start: now}
	}
	w.count++
	m.windows[key] = w
	return Result{Allowed: true, Remaining: limit - w.count, ResetTime: reset}, nil
}
