package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexnthnz/notification-relay/internal/notification"
)

func TestMemoryStore_AppendRejectsDuplicateReceived(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := &notification.NotificationLog{Channel: notification.ChannelWebhook, Status: notification.StatusReceived, ExternalID: "SM-1"}
	require.NoError(t, store.Append(ctx, first))
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	err := store.Append(ctx, &notification.NotificationLog{Channel: notification.ChannelWebhook, Status: notification.StatusReceived, ExternalID: "SM-1"})
	assert.ErrorIs(t, err, notification.ErrDuplicateMessage)

	// audit entries for the same id are not constrained
	require.NoError(t, store.Append(ctx, &notification.NotificationLog{Channel: notification.ChannelWebhook, Status: notification.StatusRejected, ExternalID: "SM-1"}))
	assert.Len(t, store.Logs(), 2)
}

func TestMemoryStore_ConcurrentReceivedAppend(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Append(ctx, &notification.NotificationLog{Status: notification.StatusReceived, ExternalID: "SM-race"})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)
}

func TestMemoryStore_QueryLatestOnly(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	entries := []notification.NotificationLog{
		{NotificationID: "n1", Channel: notification.ChannelPush, Status: notification.StatusFailed, RetryCount: 0},
		{NotificationID: "n2", Channel: notification.ChannelPush, Status: notification.StatusFailed, RetryCount: 0},
		{NotificationID: "n1", Channel: notification.ChannelSMS, Status: notification.StatusFallbackSent, RetryCount: 1},
		{NotificationID: "", Channel: notification.ChannelWebhook, Status: notification.StatusFailed},
	}
	for i := range entries {
		require.NoError(t, store.Append(ctx, &entries[i]))
	}

	all, err := store.Query(ctx, notification.LogFilter{Statuses: []notification.LogStatus{notification.StatusFailed}})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	latest, err := store.Query(ctx, notification.LogFilter{Statuses: []notification.LogStatus{notification.StatusFailed}, LatestOnly: true})
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "n2", latest[0].NotificationID)
}

func TestMemoryStore_QueryFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, &notification.NotificationLog{NotificationID: "a", Channel: notification.ChannelPush, Status: notification.StatusSent, CreatedAt: base}))
	require.NoError(t, store.Append(ctx, &notification.NotificationLog{NotificationID: "b", Channel: notification.ChannelSMS, Status: notification.StatusSent, CreatedAt: base.Add(time.Hour)}))

	logs, err := store.Query(ctx, notification.LogFilter{Channels: []notification.Channel{notification.ChannelPush}})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "a", logs[0].NotificationID)

	logs, err = store.Query(ctx, notification.LogFilter{CreatedBefore: base.Add(30 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "a", logs[0].NotificationID)

	logs, err = store.Query(ctx, notification.LogFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestMemoryStore_Lookups(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.GetNotification(ctx, "missing")
	assert.ErrorIs(t, err, notification.ErrNotFound)
	_, err = store.GetPreference(ctx, "u1", notification.ChannelSMS)
	assert.ErrorIs(t, err, notification.ErrNotFound)
	_, err = store.GetContact(ctx, "u1")
	assert.ErrorIs(t, err, notification.ErrNotFound)

	n := &notification.Notification{UserID: "u1", Channel: notification.ChannelPush}
	require.NoError(t, store.CreateNotification(ctx, n))
	got, err := store.GetNotification(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)

	store.SetPreference("u1", notification.ChannelSMS, false)
	pref, err := store.GetPreference(ctx, "u1", notification.ChannelSMS)
	require.NoError(t, err)
	assert.False(t, pref.Enabled)
}
