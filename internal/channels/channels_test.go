package channels

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alexnthnz/notification-relay/internal/config"
	"github.com/alexnthnz/notification-relay/internal/notification"
)

func TestSMSChannel_SendNotification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)
		assert.Equal(t, "secret", pass)
		assert.Equal(t, "n-1", r.Header.Get("I-Twilio-Idempotency-Token"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+15550001111", r.PostForm.Get("To"))
		assert.Equal(t, "+15559990000", r.PostForm.Get("From"))
		assert.Equal(t, "hello", r.PostForm.Get("Body"))
		assert.Equal(t, "https://relay.example.com/webhooks/twilio", r.PostForm.Get("StatusCallback"))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM100","status":"queued"}`))
	}))
	defer srv.Close()

	ch := NewSMSChannel(config.TwilioConfig{
		BaseURL:        srv.URL,
		AccountSID:     "AC123",
		AuthToken:      "secret",
		From:           "+15559990000",
		StatusCallback: "https://relay.example.com/webhooks/twilio",
	}, srv.Client(), zap.NewNop())

	report, err := ch.SendNotification(context.Background(), Message{
		IdempotencyKey: "n-1",
		Recipient:      "+15550001111",
		Body:           "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "SM100", report.ExternalID)
	assert.Equal(t, "twilio", report.Provider)
	assert.Equal(t, notification.ChannelSMS, ch.GetChannelType())
}

func TestSMSChannel_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":21211,"message":"The 'To' number is not a valid phone number."}`))
	}))
	defer srv.Close()

	ch := NewSMSChannel(config.TwilioConfig{BaseURL: srv.URL, AccountSID: "AC123"}, srv.Client(), zap.NewNop())
	_, err := ch.SendNotification(context.Background(), Message{Recipient: "bogus", Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a valid phone number")
}

func TestSMSChannel_ContextTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	ch := NewSMSChannel(config.TwilioConfig{BaseURL: srv.URL, AccountSID: "AC123"}, srv.Client(), zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := ch.SendNotification(ctx, Message{Recipient: "+1", Body: "x"})
	assert.Error(t, err)
}

type scriptedChannel struct {
	errs  []error
	calls int
}

func (s *scriptedChannel) SendNotification(context.Context, Message) (*DeliveryReport, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return &DeliveryReport{ExternalID: "ok"}, nil
}

func (s *scriptedChannel) GetChannelType() notification.Channel { return notification.ChannelSMS }

func TestBreakerChannel_OpensAfterConsecutiveFailures(t *testing.T) {
	boom := errors.New("provider down")
	inner := &scriptedChannel{errs: []error{boom, boom}}
	b := NewBreakerChannel(inner, 2, time.Hour, zap.NewNop())
	ctx := context.Background()

	_, err := b.SendNotification(ctx, Message{})
	assert.ErrorIs(t, err, boom)
	_, err = b.SendNotification(ctx, Message{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, gobreaker.StateOpen, b.State())

	// open breaker short-circuits without calling the provider
	_, err = b.SendNotification(ctx, Message{})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.calls)
}

func TestBreakerChannel_PassesThroughSuccess(t *testing.T) {
	b := NewBreakerChannel(&scriptedChannel{}, 2, time.Hour, zap.NewNop())
	report, err := b.SendNotification(context.Background(), Message{})
	require.NoError(t, err)
	assert.Equal(t, "ok", report.ExternalID)
	assert.Equal(t, notification.ChannelSMS, b.GetChannelType())
}

func TestChannelManager_UnsupportedChannel(t *testing.T) {
	cm := NewChannelManager()
	cm.RegisterChannel(&scriptedChannel{})

	_, err := cm.SendNotification(context.Background(), notification.ChannelEmail, Message{})
	assert.ErrorIs(t, err, notification.ErrUnsupportedChannel)

	_, err = cm.SendNotification(context.Background(), notification.ChannelSMS, Message{})
	assert.NoError(t, err)
	assert.Equal(t, []notification.Channel{notification.ChannelSMS}, cm.Types())
}

func TestBuildPushMessage(t *testing.T) {
	m := buildPushMessage(Message{
		IdempotencyKey: "n-1",
		UserID:         "u-1",
		Recipient:      "token",
		Subject:        "Title",
		Body:           "Body",
		Metadata:       map[string]string{"k": "v"},
	})
	assert.Equal(t, "token", m.Token)
	assert.Equal(t, "Title", m.Notification.Title)
	assert.Equal(t, map[string]string{"k": "v", "notification_id": "n-1", "user_id": "u-1"}, m.Data)
}

func TestNewFromConfig(t *testing.T) {
	cm, err := NewFromConfig(context.Background(), config.ChannelsConfig{
		Twilio: config.TwilioConfig{AccountSID: "AC1"},
		SMTP:   config.SMTPConfig{Host: "localhost", Port: 25},
		// selects SMTP even though a SendGrid key is present
		EmailProvider: "smtp",
		SendGrid:      config.SendGridConfig{APIKey: "k"},
		Firebase:      config.FirebaseConfig{CredentialsPath: "/nonexistent/creds.json"},
		Breaker:       config.BreakerConfig{Enabled: true, ConsecutiveFailures: 3, OpenTimeout: time.Minute},
	}, zap.NewNop())
	require.NoError(t, err)

	sms, ok := cm.GetChannel(notification.ChannelSMS)
	require.True(t, ok)
	assert.IsType(t, &BreakerChannel{}, sms)
	email, ok := cm.GetChannel(notification.ChannelEmail)
	require.True(t, ok)
	assert.IsType(t, &SMTPChannel{}, email.(*BreakerChannel).next)
	_, ok = cm.GetChannel(notification.ChannelPush)
	assert.False(t, ok)

	_, err = NewFromConfig(context.Background(), config.ChannelsConfig{EmailProvider: "pigeon"}, zap.NewNop())
	assert.Error(t, err)
}
