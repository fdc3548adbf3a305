package notification_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alexnthnz/notification-relay/internal/database"
	"github.com/alexnthnz/notification-relay/internal/notification"
)

type recordingPublisher struct {
	msgs []notification.QueuedRequest
	err  error
}

func (p *recordingPublisher) PublishRequest(_ context.Context, msg notification.QueuedRequest) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func TestService_Enqueue(t *testing.T) {
	store := database.NewMemoryStore()
	pub := &recordingPublisher{}
	svc := notification.NewService(store, store, pub, zap.NewNop())
	ctx := context.Background()

	req := notification.NotificationRequest{
		Type:      "welcome",
		Channel:   notification.ChannelEmail,
		Recipient: "ana@example.com",
	}
	msg, err := svc.Enqueue(ctx, req)
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, req, pub.msgs[0].Request)

	escalated := req
	escalated.RetryCount = 3
	escalated.FallbackFrom = notification.ChannelSMS
	_, err = svc.Enqueue(ctx, escalated)
	require.NoError(t, err)
	require.Len(t, pub.msgs, 2)
	assert.Equal(t, req, pub.msgs[1].Request)

	_, err = svc.Enqueue(ctx, notification.NotificationRequest{Type: "welcome", Channel: "fax", Recipient: "x"})
	var verr *notification.ValidationError
	assert.ErrorAs(t, err, &verr)

	pub.err = errors.New("broker down")
	_, err = svc.Enqueue(ctx, req)
	require.Error(t, err)
	assert.False(t, errors.As(err, &verr))
}

func TestService_ConfirmStopsEscalation(t *testing.T) {
	store := database.NewMemoryStore()
	svc := notification.NewService(store, store, &recordingPublisher{}, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, store.CreateNotification(ctx, &notification.Notification{
		ID: "n1", UserID: "u1", Type: "driver_arrived", Channel: notification.ChannelPush,
	}))
	require.NoError(t, store.Append(ctx, &notification.NotificationLog{
		NotificationID: "n1", Channel: notification.ChannelSMS, Status: notification.StatusFallbackSent, RetryCount: 2,
	}))

	entry, err := svc.Confirm(ctx, "n1", "u1")
	require.NoError(t, err)
	assert.Equal(t, notification.StatusConfirmed, entry.Status)
	assert.Equal(t, notification.ChannelSMS, entry.Channel)
	assert.Equal(t, 2, entry.RetryCount)

	// confirming twice is idempotent
	again, err := svc.Confirm(ctx, "n1", "u1")
	require.NoError(t, err)
	assert.Equal(t, entry.ID, again.ID)

	logs, err := svc.Logs(ctx, "n1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, notification.StatusConfirmed, logs[1].Status)
}

func TestService_ConfirmUnknownOrForeign(t *testing.T) {
	store := database.NewMemoryStore()
	svc := notification.NewService(store, store, &recordingPublisher{}, zap.NewNop())
	ctx := context.Background()
	require.NoError(t, store.CreateNotification(ctx, &notification.Notification{ID: "n1", UserID: "u1"}))

	_, err := svc.Confirm(ctx, "missing", "u1")
	assert.ErrorIs(t, err, notification.ErrNotFound)

	_, err = svc.Confirm(ctx, "n1", "someone-else")
	assert.ErrorIs(t, err, notification.ErrNotFound)

	_, err = svc.Logs(ctx, "missing")
	assert.ErrorIs(t, err, notification.ErrNotFound)
}
