package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Counter increments a shared fixed-window counter and returns its new value
type Counter interface {
	IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisLimiter enforces the fixed-window limit on a counter shared between
// instances, typically *database.RedisClient.
type RedisLimiter struct {
	counter Counter
	limit   int
	window  time.Duration
}

// NewRedisLimiter creates a limiter backed by counter
func NewRedisLimiter(counter Counter, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{counter: counter, limit: limit, window: window}
}

// Allow reports whether the request is within the limit
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := l.counter.IncrementRateLimit(ctx, "webhook:"+key, l.window)
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}
	return count <= int64(l.limit), nil
}
