package notification

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by stores when the requested record does not exist
	ErrNotFound = errors.New("not found")
	// ErrDuplicateMessage is returned by LogStore.Append when a received entry
	// already exists for the same external message id
	ErrDuplicateMessage = errors.New("duplicate external message id")
	// ErrChannelDisabled is reported when the user opted out of the channel
	ErrChannelDisabled = errors.New("channel disabled")
	// ErrUnsupportedChannel is reported when no transport serves the channel
	ErrUnsupportedChannel = errors.New("unsupported channel")
)

// LogStore is the append-only notification log. Implementations must reject a
// second received entry for the same ExternalID with ErrDuplicateMessage.
type LogStore interface {
	Append(ctx context.Context, entry *NotificationLog) error
	Query(ctx context.Context, filter LogFilter) ([]NotificationLog, error)
}

// NotificationStore persists originating notifications and resolves user contacts
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *Notification) error
	GetNotification(ctx context.Context, id string) (*Notification, error)
	GetContact(ctx context.Context, userID string) (*Contact, error)
}

// PreferenceStore reads stored channel preferences. Missing rows yield ErrNotFound.
type PreferenceStore interface {
	GetPreference(ctx context.Context, userID string, channel Channel) (*UserPreference, error)
}

// PreferenceAccessor answers whether a user currently accepts a channel
type PreferenceAccessor interface {
	Enabled(ctx context.Context, userID string, channel Channel) (bool, error)
}

// TemplateStore looks up message templates by notification type and channel
type TemplateStore interface {
	GetTemplate(ctx context.Context, name string, channel Channel) (*Template, error)
}

// Dispatcher sends one notification request through one channel
type Dispatcher interface {
	Send(ctx context.Context, req NotificationRequest) (*Result, error)
}
