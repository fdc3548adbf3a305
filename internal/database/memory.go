package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alexnthnz/notification-relay/internal/notification"
)

// MemoryStore is an in-process implementation of every store interface. It keeps
// the same uniqueness and lineage semantics as the Postgres stores.
type MemoryStore struct {
	mu            sync.Mutex
	now           func() time.Time
	seq           int64
	logs          []memoryLog
	notifications map[string]notification.Notification
	contacts      map[string]notification.Contact
	preferences   map[string]bool
	templates     map[string]notification.Template
}

type memoryLog struct {
	seq   int64
	entry notification.NotificationLog
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:           time.Now,
		notifications: make(map[string]notification.Notification),
		contacts:      make(map[string]notification.Contact),
		preferences:   make(map[string]bool),
		templates:     make(map[string]notification.Template),
	}
}

// SetClock replaces the clock used to stamp entries without a CreatedAt
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Append adds a log entry
func (m *MemoryStore) Append(_ context.Context, entry *notification.NotificationLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.Status == notification.StatusReceived && entry.ExternalID != "" {
		for _, l := range m.logs {
			if l.entry.Status == notification.StatusReceived && l.entry.ExternalID == entry.ExternalID {
				return notification.ErrDuplicateMessage
			}
		}
	}

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.now().UTC()
	}
	m.seq++
	m.logs = append(m.logs, memoryLog{seq: m.seq, entry: *entry})
	return nil
}

// Query returns entries matching filter in append order
func (m *MemoryStore) Query(_ context.Context, filter notification.LogFilter) ([]notification.NotificationLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := m.logs
	if filter.LatestOnly {
		latest := make(map[string]memoryLog)
		for _, l := range m.logs {
			if l.entry.NotificationID == "" {
				continue
			}
			if cur, ok := latest[l.entry.NotificationID]; !ok || l.seq > cur.seq {
				latest[l.entry.NotificationID] = l
			}
		}
		candidates = make([]memoryLog, 0, len(latest))
		for _, l := range latest {
			candidates = append(candidates, l)
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].seq < candidates[j].seq })
	}

	var out []notification.NotificationLog
	for _, l := range candidates {
		if !matches(l.entry, filter) {
			continue
		}
		out = append(out, l.entry)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func matches(e notification.NotificationLog, f notification.LogFilter) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, e.Status) {
		return false
	}
	if len(f.Channels) > 0 && !containsChannel(f.Channels, e.Channel) {
		return false
	}
	if f.NotificationID != "" && e.NotificationID != f.NotificationID {
		return false
	}
	if f.ExternalID != "" && e.ExternalID != f.ExternalID {
		return false
	}
	if !f.CreatedBefore.IsZero() && !e.CreatedAt.Before(f.CreatedBefore) {
		return false
	}
	return true
}

func containsStatus(list []notification.LogStatus, s notification.LogStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsChannel(list []notification.Channel, c notification.Channel) bool {
	for _, v := range list {
		if v == c {
			return true
		}
	}
	return false
}

// Logs returns a snapshot of every entry in append order
func (m *MemoryStore) Logs() []notification.NotificationLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]notification.NotificationLog, len(m.logs))
	for i, l := range m.logs {
		out[i] = l.entry
	}
	return out
}

// CreateNotification stores an originating notification
func (m *MemoryStore) CreateNotification(_ context.Context, n *notification.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = m.now().UTC()
	}
	m.notifications[n.ID] = *n
	return nil
}

// GetNotification retrieves a notification by ID
func (m *MemoryStore) GetNotification(_ context.Context, id string) (*notification.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok {
		return nil, notification.ErrNotFound
	}
	return &n, nil
}

// SetContact stores the channel addresses of a user
func (m *MemoryStore) SetContact(c notification.Contact) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts[c.UserID] = c
}

// GetContact retrieves the channel addresses of a user
func (m *MemoryStore) GetContact(_ context.Context, userID string) (*notification.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[userID]
	if !ok {
		return nil, notification.ErrNotFound
	}
	return &c, nil
}

// SetPreference stores a user's channel preference
func (m *MemoryStore) SetPreference(userID string, channel notification.Channel, enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preferences[userID+"|"+string(channel)] = enabled
}

// GetPreference retrieves a user's channel preference
func (m *MemoryStore) GetPreference(_ context.Context, userID string, channel notification.Channel) (*notification.UserPreference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	enabled, ok := m.preferences[userID+"|"+string(channel)]
	if !ok {
		return nil, notification.ErrNotFound
	}
	return &notification.UserPreference{UserID: userID, Channel: channel, Enabled: enabled}, nil
}

// SetTemplate stores a template
func (m *MemoryStore) SetTemplate(t notification.Template) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t.Name+"|"+string(t.Channel)] = t
}

// GetTemplate retrieves a template by name and channel
func (m *MemoryStore) GetTemplate(_ context.Context, name string, channel notification.Channel) (*notification.Template, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[name+"|"+string(channel)]
	if !ok {
		return nil, notification.ErrNotFound
	}
	return &t, nil
}
