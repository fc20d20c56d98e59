package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is a single-process sliding-window limiter.
// Used when no Redis is configured, and in tests. Counts are per process,
// so multi-instance deployments should use the Redis limiter instead.
type MemoryLimiter struct {
	max    int
	window time.Duration

	mu      sync.Mutex
	windows map[string][]time.Time

	clock func() time.Time
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		max:     max,
		window:  window,
		windows: make(map[string][]time.Time),
		clock:   time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.clock()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	hits := l.windows[key]
	kept := hits[:0]
	for _, h := range hits {
		if h.After(cutoff) {
			kept = append(kept, h)
		}
	}

	if len(kept) >= l.max {
		l.windows[key] = kept
		return Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: kept[0].Add(l.window).Sub(now),
		}, nil
	}

	kept = append(kept, now)
	l.windows[key] = kept
	return Decision{Allowed: true, Remaining: l.max - len(kept)}, nil
}
