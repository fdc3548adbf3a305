package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alexnthnz/notification-relay/internal/notification"
)

// NotificationStore persists originating notifications and reads user contacts
type NotificationStore struct {
	db *PostgresDB
}

// NewNotificationStore creates a notification store on top of db
func NewNotificationStore(db *PostgresDB) *NotificationStore {
	return &NotificationStore{db: db}
}

// CreateNotification inserts the originating notification record
func (s *NotificationStore) CreateNotification(ctx context.Context, n *notification.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO notifications (id, user_id, type, channel, recipient, message, variables, metadata, created_at)
		VALUES (:id, :user_id, :type, :channel, :recipient, :message, :variables, :metadata, :created_at)
	`
	if _, err := s.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// GetNotification retrieves a notification by ID
func (s *NotificationStore) GetNotification(ctx context.Context, id string) (*notification.Notification, error) {
	query := `
		SELECT id, user_id, type, channel, recipient, message, variables, metadata, created_at
		FROM notifications WHERE id = $1
	`
	var n notification.Notification
	if err := s.db.GetContext(ctx, &n, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notification.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return &n, nil
}

// GetContact retrieves the channel addresses of a user
func (s *NotificationStore) GetContact(ctx context.Context, userID string) (*notification.Contact, error) {
	var c notification.Contact
	err := s.db.GetContext(ctx, &c, `SELECT id, email, phone, push_token FROM users WHERE id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notification.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get contact: %w", err)
	}
	return &c, nil
}
