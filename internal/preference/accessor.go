package preference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alexnthnz/notification-relay/internal/notification"
)

// Cache is a read-through cache for channel preferences
type Cache interface {
	GetCachedPreference(ctx context.Context, userID string, channel notification.Channel) (enabled, found bool, err error)
	CachePreference(ctx context.Context, userID string, channel notification.Channel, enabled bool, ttl time.Duration) error
}

// Accessor answers whether a user accepts notifications on a channel. It only
// reads preferences; the settings screen owns them.
type Accessor struct {
	store  notification.PreferenceStore
	cache  Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewAccessor creates an accessor. cache may be nil.
func NewAccessor(store notification.PreferenceStore, cache Cache, ttl time.Duration, logger *zap.Logger) *Accessor {
	return &Accessor{store: store, cache: cache, ttl: ttl, logger: logger}
}

// Enabled returns the user's preference for channel. Users without a stored
// preference are opted in.
func (a *Accessor) Enabled(ctx context.Context, userID string, channel notification.Channel) (bool, error) {
	if a.cache != nil {
		enabled, found, err := a.cache.GetCachedPreference(ctx, userID, channel)
		if err != nil {
			a.logger.Warn("Preference cache read failed", zap.Error(err), zap.String("user_id", userID))
		} else if found {
			return enabled, nil
		}
	}

	enabled := true
	pref, err := a.store.GetPreference(ctx, userID, channel)
	switch {
	case errors.Is(err, notification.ErrNotFound):
	case err != nil:
		return false, fmt.Errorf("failed to get user preference: %w", err)
	default:
		enabled = pref.Enabled
	}

	if a.cache != nil {
		if err := a.cache.CachePreference(ctx, userID, channel, enabled, a.ttl); err != nil {
			a.logger.Warn("Preference cache write failed", zap.Error(err), zap.String("user_id", userID))
		}
	}
	return enabled, nil
}
