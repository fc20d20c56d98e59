package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Remaining int

	// RetryAfter is how long the caller should wait before the window has
	// room again. Zero when Allowed.
	RetryAfter time.Duration
}

// Limiter admits a bounded number of events per key over a sliding window.
// Keys are client addresses at the gateway, but the limiter does not care.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}
