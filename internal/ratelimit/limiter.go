// Package ratelimit implements the sliding-window submission limiter used by
// the contact endpoint.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Default policy: five accepted submissions per client per hour.
const (
	DefaultLimit  = 5
	DefaultWindow = 60 * time.Minute
)

// Limiter decides whether one more event for key is allowed now. An allowed
// check is recorded; a rejected one is not.
type Limiter interface {
	Check(ctx context.Context, key string) (bool, error)
}

// Memory is an in-process sliding-window limiter. State is per process: it
// is not shared between instances and is lost on restart.
type Memory struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	events map[string][]time.Time
}

var _ Limiter = (*Memory)(nil)

// NewMemory creates a limiter allowing limit events per window per key.
func NewMemory(limit int, window time.Duration) *Memory {
	return &Memory{
		limit:  limit,
		window: window,
		now:    time.Now,
		events: make(map[string][]time.Time),
	}
}

// SetClock replaces the time source, for tests.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Check prunes key's events older than the window, rejects if the remaining
// count has reached the limit, and otherwise records now and accepts.
func (m *Memory) Check(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	recent := prune(m.events[key], now, m.window)
	if len(recent) >= m.limit {
		m.events[key] = recent
		return false, nil
	}
	m.events[key] = append(recent, now)
	return true, nil
}

// Sweep drops keys with no event inside the window and returns how many
// were removed. Without it the map keeps one entry per client ever seen.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, ts := range m.events {
		recent := prune(ts, now, m.window)
		if len(recent) == 0 {
			delete(m.events, key)
			removed++
			continue
		}
		m.events[key] = recent
	}
	return removed
}

// Len returns the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// Run sweeps every interval until ctx is done.
func (m *Memory) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// prune keeps the events younger than window. ts is in ascending order, so
// the result is a suffix of it.
func prune(ts []time.Time, now time.Time, window time.Duration) []time.Time {
	i := 0
	for i < len(ts) && now.Sub(ts[i]) >= window {
		i++
	}
	return ts[i:]
}
