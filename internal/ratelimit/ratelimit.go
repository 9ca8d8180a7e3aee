// Package ratelimit implements fixed-window admission control keyed
// by client identity, backed by a pluggable counter store.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Store is a counter store with atomic increment-with-expiry
// semantics. Increment bumps the counter for key, creating it with
// the given window as TTL when absent, and returns the new count and
// the remaining time until the window resets. Concurrent increments
// on the same key must never lose updates.
type Store interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Limiter admits at most maxRequests per identity per fixed window.
type Limiter struct {
	store       Store
	maxRequests int
	window      time.Duration
}

func NewLimiter(store Store, maxRequests int, window time.Duration) *Limiter {
	return &Limiter{
		store:       store,
		maxRequests: maxRequests,
		window:      window,
	}
}

// Allow performs one admission check for the given client identity.
// A store failure is returned as an error and must not be treated as
// an admit.
func (l *Limiter) Allow(ctx context.Context, identity string) (Decision, error) {
	count, ttl, err := l.store.Increment(ctx, counterKey(identity), l.window)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit store: %w", err)
	}

	remaining := l.maxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Allowed:   count <= int64(l.maxRequests),
		Limit:     l.maxRequests,
		Remaining: remaining,
		Reset:     time.Now().Add(ttl),
	}, nil
}

func counterKey(identity string) string {
	return "ratelimit:" + identity
}
