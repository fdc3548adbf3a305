package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alexnthnz/notification-relay/internal/channels"
	"github.com/alexnthnz/notification-relay/internal/database"
	"github.com/alexnthnz/notification-relay/internal/monitoring"
	"github.com/alexnthnz/notification-relay/internal/notification"
	"github.com/alexnthnz/notification-relay/internal/preference"
	"github.com/alexnthnz/notification-relay/internal/render"
	"github.com/alexnthnz/notification-relay/internal/testutil"
)

type fixture struct {
	svc    *Service
	store  *database.MemoryStore
	sender *testutil.FakeSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := database.NewMemoryStore()
	store.SetTemplate(notification.Template{
		Name:         "welcome",
		Channel:      notification.ChannelSMS,
		BodyTemplate: "Hi {{name}}",
	})
	sender := testutil.NewFakeSender()
	svc := NewService(Dependencies{
		Logs:          store,
		Notifications: store,
		Preferences:   preference.NewAccessor(store, nil, 0, zap.NewNop()),
		Renderer:      render.NewRenderer(store),
		Sender:        sender,
		Metrics:       monitoring.NewMetrics(prometheus.NewRegistry()),
		Logger:        zap.NewNop(),
	}, time.Second)
	return &fixture{svc: svc, store: store, sender: sender}
}

func smsRequest() notification.NotificationRequest {
	return notification.NotificationRequest{
		Type:      "welcome",
		Channel:   notification.ChannelSMS,
		Recipient: "+15550001111",
		UserID:    "u1",
		Variables: map[string]string{"name": "Ana"},
	}
}

func TestSend_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Send(ctx, smsRequest())
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.NotEmpty(t, res.NotificationID)
	assert.NotEmpty(t, res.LogID)

	n, err := f.store.GetNotification(ctx, res.NotificationID)
	require.NoError(t, err)
	assert.Equal(t, "Hi Ana", n.Message)

	sent := f.sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, notification.ChannelSMS, sent[0].Channel)
	assert.Equal(t, res.NotificationID, sent[0].Message.IdempotencyKey)
	assert.Equal(t, "Hi Ana", sent[0].Message.Body)

	logs := f.store.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, notification.StatusSent, logs[0].Status)
	assert.Equal(t, res.NotificationID, logs[0].NotificationID)
	assert.Equal(t, "fake-1", logs[0].ExternalID)
	assert.Equal(t, 0, logs[0].RetryCount)
}

func TestSend_ChannelDisabledMakesNoTransportCall(t *testing.T) {
	f := newFixture(t)
	f.store.SetPreference("u1", notification.ChannelSMS, false)

	res, err := f.svc.Send(context.Background(), smsRequest())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonChannelDisabled, res.Error)
	assert.Empty(t, f.sender.Sent())
	assert.Empty(t, f.store.Logs())
}

func TestSend_NoUserSkipsPreferenceCheck(t *testing.T) {
	f := newFixture(t)
	f.store.SetPreference("u1", notification.ChannelSMS, false)
	req := smsRequest()
	req.UserID = ""

	res, err := f.svc.Send(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, f.sender.Sent(), 1)
}

func TestSend_TransportFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.sender.FailChannel(notification.ChannelSMS, errors.New("carrier rejected"))

	res, err := f.svc.Send(context.Background(), smsRequest())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "carrier rejected", res.Error)

	logs := f.store.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, notification.StatusFailed, logs[0].Status)
	assert.Equal(t, "carrier rejected", logs[0].ErrorMessage)
	assert.Equal(t, "Hi Ana", logs[0].Content)
}

func TestSend_EscalationRecordsFallbackSent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := smsRequest()
	req.NotificationID = "n-1"
	req.Channel = notification.ChannelEmail
	req.Recipient = "ana@example.com"
	req.RetryCount = 4
	req.FallbackFrom = notification.ChannelSMS

	res, err := f.svc.Send(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "n-1", res.NotificationID)

	// continuing a lineage never creates a new notification
	_, err = f.store.GetNotification(ctx, "n-1")
	assert.ErrorIs(t, err, notification.ErrNotFound)

	logs := f.store.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, notification.StatusFallbackSent, logs[0].Status)
	assert.Equal(t, 4, logs[0].RetryCount)
	assert.Equal(t, notification.ChannelSMS, logs[0].FallbackFrom)
	// no email template: the default body wraps the content variable
	assert.Equal(t, "Notification: ", logs[0].Content)
}

func TestSend_RetryCountNeverBelowLineageHead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Append(ctx, &notification.NotificationLog{
		NotificationID: "n-1", Channel: notification.ChannelSMS,
		Status: notification.StatusFailed, RetryCount: 3,
	}))

	req := smsRequest()
	req.NotificationID = "n-1"
	res, err := f.svc.Send(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Success)

	logs := f.store.Logs()
	require.Len(t, logs, 2)
	assert.Equal(t, notification.StatusSent, logs[1].Status)
	assert.Equal(t, 3, logs[1].RetryCount)

	// a higher count from the scheduler is kept
	req.RetryCount = 5
	_, err = f.svc.Send(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 5, f.store.Logs()[2].RetryCount)
}

func TestSend_LineageReadFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	f.svc.logs = failingLogStore{}

	req := smsRequest()
	req.NotificationID = "n-1"
	res, err := f.svc.Send(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Empty(t, f.sender.Sent())
}

func TestSend_InvalidRequest(t *testing.T) {
	f := newFixture(t)
	req := smsRequest()
	req.Recipient = ""

	res, err := f.svc.Send(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "invalid request")
	assert.Empty(t, f.sender.Sent())

	req = smsRequest()
	req.Channel = notification.ChannelWebhook
	res, err = f.svc.Send(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Success)
}

type blockingSender struct{}

func (blockingSender) SendNotification(ctx context.Context, _ notification.Channel, _ channels.Message) (*channels.DeliveryReport, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestSend_TransportTimeout(t *testing.T) {
	f := newFixture(t)
	f.svc.sender = blockingSender{}
	f.svc.timeout = 20 * time.Millisecond

	res, err := f.svc.Send(context.Background(), smsRequest())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "deadline exceeded")

	logs := f.store.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, notification.StatusFailed, logs[0].Status)
}

type failingAccessor struct{}

func (failingAccessor) Enabled(context.Context, string, notification.Channel) (bool, error) {
	return false, errors.New("db down")
}

func TestSend_PreferenceErrorRecordsFailureWithoutSending(t *testing.T) {
	f := newFixture(t)
	f.svc.preferences = failingAccessor{}

	res, err := f.svc.Send(context.Background(), smsRequest())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, f.sender.Sent())

	logs := f.store.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, notification.StatusFailed, logs[0].Status)
	assert.Contains(t, logs[0].ErrorMessage, "db down")
}

type failingLogStore struct{}

func (failingLogStore) Append(context.Context, *notification.NotificationLog) error {
	return errors.New("disk full")
}

func (failingLogStore) Query(context.Context, notification.LogFilter) ([]notification.NotificationLog, error) {
	return nil, errors.New("disk full")
}

func TestSend_LogStoreFailureIsReturned(t *testing.T) {
	f := newFixture(t)
	f.svc.logs = failingLogStore{}

	res, err := f.svc.Send(context.Background(), smsRequest())
	require.Error(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Success)
	assert.Len(t, f.sender.Sent(), 1)
}

func TestErrorType(t *testing.T) {
	assert.Equal(t, "unsupported_channel", errorType(notification.ErrUnsupportedChannel))
	assert.Equal(t, "timeout", errorType(context.DeadlineExceeded))
	assert.Equal(t, "transport", errorType(errors.New("x")))
}
