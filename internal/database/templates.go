package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alexnthnz/notification-relay/internal/notification"
)

// TemplateStore reads notification templates, optionally through a Redis cache
type TemplateStore struct {
	db     *PostgresDB
	cache  *RedisClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewTemplateStore creates a template store. cache may be nil.
func NewTemplateStore(db *PostgresDB, cache *RedisClient, ttl time.Duration, logger *zap.Logger) *TemplateStore {
	return &TemplateStore{db: db, cache: cache, ttl: ttl, logger: logger}
}

// GetTemplate retrieves the template for a notification type and channel
func (s *TemplateStore) GetTemplate(ctx context.Context, name string, channel notification.Channel) (*notification.Template, error) {
	if s.cache != nil {
		tmpl, err := s.cache.GetNotificationTemplate(ctx, name, channel)
		if err != nil {
			s.logger.Warn("Template cache read failed", zap.Error(err), zap.String("name", name))
		} else if tmpl != nil {
			return tmpl, nil
		}
	}

	query := `
		SELECT name, channel, subject_template, body_template, updated_at
		FROM notification_templates
		WHERE name = $1 AND channel = $2
	`
	var tmpl notification.Template
	if err := s.db.GetContext(ctx, &tmpl, query, name, string(channel)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notification.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.CacheNotificationTemplate(ctx, &tmpl, s.ttl); err != nil {
			s.logger.Warn("Template cache write failed", zap.Error(err), zap.String("name", name))
		}
	}
	return &tmpl, nil
}
