package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alexnthnz/notification-relay/internal/config"
	"github.com/alexnthnz/notification-relay/internal/notification"
)

// RedisClient wraps redis.Client for caching and shared counters
type RedisClient struct {
	*redis.Client
}

// NewRedisClient creates a new Redis client
func NewRedisClient(cfg config.RedisConfig) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{Client: rdb}, nil
}

func preferenceKey(userID string, channel notification.Channel) string {
	return fmt.Sprintf("user_preferences:%s:%s", userID, channel)
}

// CachePreference caches a user's channel preference
func (r *RedisClient) CachePreference(ctx context.Context, userID string, channel notification.Channel, enabled bool, ttl time.Duration) error {
	value := "0"
	if enabled {
		value = "1"
	}
	return r.Set(ctx, preferenceKey(userID, channel), value, ttl).Err()
}

// GetCachedPreference returns a cached preference; found is false on a cache miss
func (r *RedisClient) GetCachedPreference(ctx context.Context, userID string, channel notification.Channel) (enabled, found bool, err error) {
	value, err := r.Get(ctx, preferenceKey(userID, channel)).Result()
	if err == redis.Nil {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return value == "1", true, nil
}

func templateKey(name string, channel notification.Channel) string {
	return fmt.Sprintf("template:%s:%s", name, channel)
}

// CacheNotificationTemplate caches a notification template
func (r *RedisClient) CacheNotificationTemplate(ctx context.Context, tmpl *notification.Template, ttl time.Duration) error {
	data, err := json.Marshal(tmpl)
	if err != nil {
		return fmt.Errorf("failed to marshal template: %w", err)
	}
	return r.Set(ctx, templateKey(tmpl.Name, tmpl.Channel), data, ttl).Err()
}

// GetNotificationTemplate retrieves a cached notification template; nil on a cache miss
func (r *RedisClient) GetNotificationTemplate(ctx context.Context, name string, channel notification.Channel) (*notification.Template, error) {
	data, err := r.Get(ctx, templateKey(name, channel)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var tmpl notification.Template
	if err := json.Unmarshal(data, &tmpl); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached template: %w", err)
	}
	return &tmpl, nil
}

// IncrementRateLimit increments the fixed-window counter for key and returns the
// new count. The expiry is only set by the first increment of a window.
func (r *RedisClient) IncrementRateLimit(ctx context.Context, key string, window time.Duration) (int64, error) {
	key = "rate_limit:" + key
	pipe := r.TxPipeline()

	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	return incr.Val(), nil
}

// Close closes the Redis connection
func (r *RedisClient) Close() error {
	return r.Client.Close()
}
