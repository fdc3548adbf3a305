package notification

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Channel is a delivery mechanism a notification can travel through
type Channel string

const (
	ChannelEmail   Channel = "email"
	ChannelSMS     Channel = "sms"
	ChannelPush    Channel = "push"
	ChannelWebhook Channel = "webhook"
)

// LogStatus is the outcome recorded by a single notification log entry
type LogStatus string

const (
	StatusReceived            LogStatus = "received"
	StatusSent                LogStatus = "sent"
	StatusFailed              LogStatus = "failed"
	StatusPreferenceSkipped   LogStatus = "preference_skipped"
	StatusNotSentPrefDisabled LogStatus = "not_sent_pref_disabled"
	StatusFallbackSent        LogStatus = "fallback_sent"
	StatusRejected            LogStatus = "rejected"
	StatusConfirmed           LogStatus = "confirmed"
)

// Metadata is free-form string metadata stored as JSONB
type Metadata map[string]string

// Value implements driver.Valuer
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner
func (m *Metadata) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}
	return json.Unmarshal(data, m)
}

// Notification is the originating notification every log entry of a lineage points at
type Notification struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Type      string    `json:"type" db:"type"`
	Channel   Channel   `json:"channel" db:"channel"`
	Recipient string    `json:"recipient" db:"recipient"`
	Message   string    `json:"message" db:"message"`
	Variables Metadata  `json:"variables,omitempty" db:"variables"`
	Metadata  Metadata  `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NotificationRequest represents a request to send a notification through one channel.
// RetryCount and FallbackFrom are set by the retry scheduler when escalating.
type NotificationRequest struct {
	NotificationID string            `json:"notification_id,omitempty"`
	Type           string            `json:"type" validate:"required"`
	Channel        Channel           `json:"channel" validate:"required,oneof=email sms push"`
	Recipient      string            `json:"recipient" validate:"required"`
	UserID         string            `json:"user_id,omitempty"`
	Variables      map[string]string `json:"variables,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	RetryCount     int               `json:"retry_count,omitempty" validate:"gte=0"`
	FallbackFrom   Channel           `json:"fallback_from,omitempty"`
}

// WithoutEscalation clears the fields only the retry scheduler may set, for
// requests arriving from application callers.
func (r NotificationRequest) WithoutEscalation() NotificationRequest {
	r.RetryCount = 0
	r.FallbackFrom = ""
	return r
}

// Result is the outcome of a dispatch attempt
type Result struct {
	Success        bool   `json:"success"`
	Error          string `json:"error,omitempty"`
	NotificationID string `json:"notification_id,omitempty"`
	LogID          string `json:"log_id,omitempty"`
}

// NotificationLog is one append-only audit entry. Entries are never updated in place.
type NotificationLog struct {
	ID              string    `json:"id" db:"id"`
	NotificationID  string    `json:"notification_id,omitempty" db:"notification_id"`
	UserID          string    `json:"user_id,omitempty" db:"user_id"`
	Type            string    `json:"type,omitempty" db:"type"`
	Channel         Channel   `json:"channel" db:"channel"`
	Status          LogStatus `json:"status" db:"status"`
	RetryCount      int       `json:"retry_count" db:"retry_count"`
	FallbackChannel Channel   `json:"fallback_channel,omitempty" db:"fallback_channel"`
	FallbackFrom    Channel   `json:"fallback_from,omitempty" db:"fallback_from"`
	AuditMessage    string    `json:"audit_message,omitempty" db:"audit_message"`
	ExternalID      string    `json:"external_id,omitempty" db:"external_id"`
	Recipient       string    `json:"recipient,omitempty" db:"recipient"`
	Content         string    `json:"content,omitempty" db:"content"`
	ErrorMessage    string    `json:"error_message,omitempty" db:"error_message"`
	Metadata        Metadata  `json:"metadata,omitempty" db:"metadata"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// LogFilter selects log entries. Zero fields do not constrain the query.
type LogFilter struct {
	Statuses       []LogStatus
	Channels       []Channel
	NotificationID string
	ExternalID     string
	// LatestOnly restricts the result to the newest entry of each notification
	// lineage before the other constraints are applied.
	LatestOnly    bool
	CreatedBefore time.Time
	Limit         int
}

// UserPreference represents a user's opt-in for one channel
type UserPreference struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Channel   Channel   `json:"channel" db:"channel"`
	Enabled   bool      `json:"enabled" db:"enabled"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Contact holds the per-channel addresses of a user
type Contact struct {
	UserID    string `json:"user_id" db:"id"`
	Email     string `json:"email" db:"email"`
	Phone     string `json:"phone" db:"phone"`
	PushToken string `json:"push_token" db:"push_token"`
}

// AddressFor returns the contact address used on the given channel
func (c Contact) AddressFor(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return c.Email
	case ChannelSMS:
		return c.Phone
	case ChannelPush:
		return c.PushToken
	default:
		return ""
	}
}

// Template is a renderable message body for one notification type and channel
type Template struct {
	Name            string    `json:"name" db:"name"`
	Channel         Channel   `json:"channel" db:"channel"`
	SubjectTemplate string    `json:"subject_template,omitempty" db:"subject_template"`
	BodyTemplate    string    `json:"body_template" db:"body_template"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}
