package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alexnthnz/notification-relay/internal/config"
	"github.com/alexnthnz/notification-relay/internal/database"
	"github.com/alexnthnz/notification-relay/internal/monitoring"
	"github.com/alexnthnz/notification-relay/internal/notification"
	"github.com/alexnthnz/notification-relay/internal/ratelimit"
	"github.com/alexnthnz/notification-relay/internal/webhook"
)

type stubPublisher struct {
	msgs []notification.QueuedRequest
	err  error
}

func (p *stubPublisher) PublishRequest(_ context.Context, msg notification.QueuedRequest) error {
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

type testServer struct {
	router    http.Handler
	store     *database.MemoryStore
	publisher *stubPublisher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := database.NewMemoryStore()
	pub := &stubPublisher{}
	metrics := monitoring.NewMetrics(prometheus.NewRegistry())
	gateway := webhook.NewGateway(
		config.WebhookConfig{URL: "https://relay.example.com/webhooks/twilio", AuthToken: "tok"},
		store, ratelimit.NewFixedWindow(60, time.Minute), metrics, zap.NewNop())
	svc := notification.NewService(store, store, pub, zap.NewNop())
	h := NewHandler(svc, gateway, "/webhooks/twilio", metrics, zap.NewNop())
	return &testServer{router: h.SetupRoutes(), store: store, publisher: pub}
}

func (s *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestCreateNotification(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/v1/notifications",
		`{"type":"welcome","channel":"sms","recipient":"+15550001111","user_id":"u1","variables":{"name":"Ana"}}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var resp CreateNotificationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp.Status)
	require.Len(t, s.publisher.msgs, 1)
	assert.Equal(t, resp.RequestID, s.publisher.msgs[0].ID)
	assert.Equal(t, "Ana", s.publisher.msgs[0].Request.Variables["name"])
}

func TestCreateNotification_Errors(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/api/v1/notifications", `{`).Code)
	assert.Equal(t, http.StatusBadRequest,
		s.do(http.MethodPost, "/api/v1/notifications", `{"type":"welcome","channel":"pigeon","recipient":"x"}`).Code)

	s.publisher.err = errors.New("broker down")
	assert.Equal(t, http.StatusInternalServerError,
		s.do(http.MethodPost, "/api/v1/notifications", `{"type":"welcome","channel":"sms","recipient":"+1"}`).Code)
}

func TestNotificationLogsAndConfirm(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.store.CreateNotification(ctx, &notification.Notification{
		ID: "n1", UserID: "u1", Channel: notification.ChannelPush,
	}))
	require.NoError(t, s.store.Append(ctx, &notification.NotificationLog{
		NotificationID: "n1", Channel: notification.ChannelPush, Status: notification.StatusSent,
	}))

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/v1/notifications/nope/logs", "").Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPost, "/api/v1/notifications/nope/confirm", "").Code)

	rec := s.do(http.MethodPost, "/api/v1/notifications/n1/confirm", `{"user_id":"u1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/notifications/n1/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		NotificationID string                         `json:"notification_id"`
		Logs           []notification.NotificationLog `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Logs, 2)
	assert.Equal(t, notification.StatusConfirmed, resp.Logs[1].Status)
}

func TestWebhookRoute(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/webhooks/twilio", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = s.do(http.MethodPost, "/webhooks/twilio", `{"MessageSid":"SM1"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	s.do(http.MethodGet, "/webhooks/twilio", "")
	rec = s.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `webhook_requests_total{outcome="method_not_allowed"} 1`)
}
