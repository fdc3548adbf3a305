package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/alexnthnz/notification-relay/internal/notification"
)

const logColumns = `id, notification_id, user_id, type, channel, status, retry_count,
	fallback_channel, fallback_from, audit_message, external_id, recipient, content,
	error_message, metadata, created_at`

// LogStore is the Postgres-backed append-only notification log
type LogStore struct {
	db *PostgresDB
}

// NewLogStore creates a log store on top of db
func NewLogStore(db *PostgresDB) *LogStore {
	return &LogStore{db: db}
}

// Append inserts a new log entry. The partial unique index on received entries
// turns a replayed external id into notification.ErrDuplicateMessage.
func (s *LogStore) Append(ctx context.Context, entry *notification.NotificationLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO notification_logs (` + logColumns + `)
		VALUES (:id, :notification_id, :user_id, :type, :channel, :status, :retry_count,
			:fallback_channel, :fallback_from, :audit_message, :external_id, :recipient, :content,
			:error_message, :metadata, :created_at)
	`
	if _, err := s.db.NamedExecContext(ctx, query, entry); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == receivedExternalIDIndex {
			return notification.ErrDuplicateMessage
		}
		return fmt.Errorf("failed to append notification log: %w", err)
	}
	return nil
}

// Query returns log entries matching filter in append order
func (s *LogStore) Query(ctx context.Context, filter notification.LogFilter) ([]notification.NotificationLog, error) {
	source := "notification_logs"
	if filter.LatestOnly {
		source = `(
			SELECT DISTINCT ON (notification_id) * FROM notification_logs
			WHERE notification_id <> ''
			ORDER BY notification_id, seq DESC
		) latest`
	}

	var where []string
	var args []interface{}
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		add("status = ANY($%d)", pq.Array(statuses))
	}
	if len(filter.Channels) > 0 {
		channels := make([]string, len(filter.Channels))
		for i, ch := range filter.Channels {
			channels[i] = string(ch)
		}
		add("channel = ANY($%d)", pq.Array(channels))
	}
	if filter.NotificationID != "" {
		add("notification_id = $%d", filter.NotificationID)
	}
	if filter.ExternalID != "" {
		add("external_id = $%d", filter.ExternalID)
	}
	if !filter.CreatedBefore.IsZero() {
		add("created_at < $%d", filter.CreatedBefore)
	}

	query := "SELECT " + logColumns + " FROM " + source
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var logs []notification.NotificationLog
	if err := s.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query notification logs: %w", err)
	}
	return logs, nil
}
