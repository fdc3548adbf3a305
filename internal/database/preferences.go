package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alexnthnz/notification-relay/internal/notification"
)

// PreferenceStore reads user channel preferences
type PreferenceStore struct {
	db *PostgresDB
}

// NewPreferenceStore creates a preference store on top of db
func NewPreferenceStore(db *PostgresDB) *PreferenceStore {
	return &PreferenceStore{db: db}
}

// GetPreference retrieves the preference of a user for one channel
func (s *PreferenceStore) GetPreference(ctx context.Context, userID string, channel notification.Channel) (*notification.UserPreference, error) {
	query := `
		SELECT user_id, channel, enabled, updated_at
		FROM user_preferences
		WHERE user_id = $1 AND channel = $2
	`
	var pref notification.UserPreference
	if err := s.db.GetContext(ctx, &pref, query, userID, string(channel)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notification.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user preference: %w", err)
	}
	return &pref, nil
}
