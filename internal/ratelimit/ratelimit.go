// Package ratelimit implements per-client fixed-window request limiting for the
// inbound webhook. The in-memory limiter suits a single process; RedisLimiter
// shares counters between instances behind the same interface.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter decides whether a request from key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type bucket struct {
	count       int
	windowStart time.Time
}

// FixedWindow counts requests per key in fixed windows. The first request of a
// window resets the bucket to a count of one, so the (limit+1)-th request inside
// a window is the first one denied.
type FixedWindow struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   int
	window  time.Duration
	now     func() time.Time
}

// NewFixedWindow creates an in-memory limiter allowing limit requests per window
func NewFixedWindow(limit int, window time.Duration) *FixedWindow {
	return &FixedWindow{
		buckets: make(map[string]*bucket),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Allow reports whether the request is within the limit
func (l *FixedWindow) Allow(_ context.Context, key string) (bool, error) {
	return l.Check(key), nil
}

// Check counts a request for key and reports whether it is allowed
func (l *FixedWindow) Check(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || now.Sub(b.windowStart) > l.window {
		l.buckets[key] = &bucket{count: 1, windowStart: now}
		return true
	}

	b.count++
	return b.count <= l.limit
}

// Sweep removes buckets idle for more than two windows
func (l *FixedWindow) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, b := range l.buckets {
		if now.Sub(b.windowStart) > 2*l.window {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys
func (l *FixedWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Run sweeps stale buckets once per window until ctx is done
func (l *FixedWindow) Run(ctx context.Context) {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}
