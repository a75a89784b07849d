// Package rate implements the fixed-window limiter behind the per-identity
// request gate. Counters live in their own expiring window, independent of
// any other scheduling in the process.
package rate

import (
	"context"
	"sync"
	"time"
)

// Result describes a single Allow decision.
type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	CurrentHits int64
}

// Limiter counts hits per key within a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

type window struct {
	start time.Time
	hits  int64
}

// MemoryLimiter is an in-process fixed-window limiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	max     int64
	size    time.Duration
	now     func() time.Time
}

// NewMemoryLimiter allows max hits per key within each window of the given size.
func NewMemoryLimiter(max int, size time.Duration) *MemoryLimiter {
	if max <= 0 {
		max = 1
	}
	if size <= 0 {
		size = time.Minute
	}
	return &MemoryLimiter{
		windows: make(map[string]*window),
		max:     int64(max),
		size:    size,
		now:     time.Now,
	}
}

// Allow increments the counter for key and reports whether the hit fits the budget.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.now().UTC()
	start := now.Truncate(l.size)

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !w.start.Equal(start) {
		w = &window{start: start}
		l.windows[key] = w
	}
	w.hits++

	// Opportunistic sweep of stale windows keeps the map bounded.
	if len(l.windows) > 4096 {
		for k, old := range l.windows {
			if !old.start.Equal(start) {
				delete(l.windows, k)
			}
		}
	}

	remaining := l.max - w.hits
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:     w.hits <= l.max,
		Remaining:   remaining,
		CurrentHits: w.hits,
	}
	if !res.Allowed {
		res.RetryAfter = start.Add(l.size).Sub(now)
		if res.RetryAfter < time.Second {
			res.RetryAfter = time.Second
		}
	}
	return res, nil
}
