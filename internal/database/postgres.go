package database

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/alexnthnz/notification-relay/internal/config"
)

// receivedExternalIDIndex enforces at most one received entry per external message id
const receivedExternalIDIndex = "ux_notification_logs_received_external_id"

// PostgresDB wraps sqlx.DB for PostgreSQL operations
type PostgresDB struct {
	*sqlx.DB
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(cfg config.DatabaseConfig) (*PostgresDB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{DB: db}, nil
}

// InitSchema initializes the database schema
func (db *PostgresDB) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email VARCHAR(255) NOT NULL DEFAULT '',
		phone VARCHAR(20) NOT NULL DEFAULT '',
		push_token VARCHAR(500) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	-- Owned by the settings screen; read-only here
	CREATE TABLE IF NOT EXISTS user_preferences (
		user_id TEXT NOT NULL,
		channel VARCHAR(50) NOT NULL,
		enabled BOOLEAN NOT NULL DEFAULT true,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, channel)
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		type VARCHAR(100) NOT NULL DEFAULT '',
		channel VARCHAR(50) NOT NULL,
		recipient VARCHAR(500) NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		variables JSONB NOT NULL DEFAULT '{}',
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS notification_logs (
		seq BIGSERIAL PRIMARY KEY,
		id UUID NOT NULL UNIQUE,
		notification_id TEXT NOT NULL DEFAULT '',
		user_id TEXT NOT NULL DEFAULT '',
		type VARCHAR(100) NOT NULL DEFAULT '',
		channel VARCHAR(50) NOT NULL,
		status VARCHAR(50) NOT NULL,
		retry_count INTEGER NOT NULL DEFAULT 0 CHECK (retry_count >= 0),
		fallback_channel VARCHAR(50) NOT NULL DEFAULT '',
		fallback_from VARCHAR(50) NOT NULL DEFAULT '',
		audit_message TEXT NOT NULL DEFAULT '',
		external_id VARCHAR(255) NOT NULL DEFAULT '',
		recipient VARCHAR(500) NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		metadata JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS notification_templates (
		name VARCHAR(255) NOT NULL,
		channel VARCHAR(50) NOT NULL,
		subject_template VARCHAR(255) NOT NULL DEFAULT '',
		body_template TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (name, channel)
	);

	CREATE UNIQUE INDEX IF NOT EXISTS ` + receivedExternalIDIndex + `
		ON notification_logs(external_id) WHERE status = 'received';
	CREATE INDEX IF NOT EXISTS idx_notification_logs_notification_id ON notification_logs(notification_id, seq DESC);
	CREATE INDEX IF NOT EXISTS idx_notification_logs_status ON notification_logs(status);
	CREATE INDEX IF NOT EXISTS idx_notification_logs_created_at ON notification_logs(created_at);
	CREATE INDEX IF NOT EXISTS idx_notifications_user_id ON notifications(user_id);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *PostgresDB) Close() error {
	return db.DB.Close()
}
