// Package webhook accepts signed inbound message callbacks from the SMS provider
// and records them in the notification log.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/alexnthnz/notification-relay/internal/config"
	"github.com/alexnthnz/notification-relay/internal/monitoring"
	"github.com/alexnthnz/notification-relay/internal/notification"
	"github.com/alexnthnz/notification-relay/internal/ratelimit"
)

const (
	defaultMaxBodyBytes = 64 << 10
	logType             = "twilio"
	ackBody             = "<Response></Response>"
	outcomeAccepted     = "accepted"
)

// Gateway is the http.Handler for provider callbacks. Each stage short-circuits
// on failure; signature, payload and replay rejections are audit-logged.
type Gateway struct {
	cfg      config.WebhookConfig
	logs     notification.LogStore
	limiter  ratelimit.Limiter
	validate *validator.Validate
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewGateway creates a webhook gateway
func NewGateway(cfg config.WebhookConfig, logs notification.LogStore, limiter ratelimit.Limiter, metrics *monitoring.Metrics, logger *zap.Logger) *Gateway {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Gateway{
		cfg:      cfg,
		logs:     logs,
		limiter:  limiter,
		validate: validator.New(),
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// ServeHTTP implements http.Handler
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if rej := g.Process(r); rej != nil {
		g.metrics.RecordWebhook(string(rej.Kind))
		if rej.Kind == KindMethodNotAllowed {
			w.Header().Set("Allow", http.MethodPost)
		}
		writeRejection(w, rej)
		return
	}

	g.metrics.RecordWebhook(outcomeAccepted)
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ackBody)
}

// Process runs the request through every gateway stage and returns the
// rejection, or nil once the message has been recorded as received.
func (g *Gateway) Process(r *http.Request) *RejectionError {
	if r.Method != http.MethodPost {
		return reject(KindMethodNotAllowed)
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || (mediaType != mediaTypeJSON && mediaType != mediaTypeForm) {
		return reject(KindUnsupportedContentType)
	}

	ctx := r.Context()
	clientIP := ClientIP(r)
	logger := g.logger.With(zap.String("client_ip", clientIP))

	allowed, err := g.limiter.Allow(ctx, clientIP)
	if err != nil {
		logger.Warn("Rate limiter unavailable, allowing request", zap.Error(err))
		allowed = true
	}
	if !allowed {
		g.metrics.RecordRateLimited()
		logger.Debug("Webhook request rate limited")
		return reject(KindRateLimited)
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, g.cfg.MaxBodyBytes+1))
	if err != nil {
		return reject(KindInvalidBody)
	}
	if int64(len(raw)) > g.cfg.MaxBodyBytes {
		return reject(KindPayloadTooLarge)
	}
	params, err := parseBody(mediaType, raw)
	if err != nil {
		logger.Debug("Webhook body could not be parsed", zap.Error(err))
		return reject(KindInvalidBody)
	}

	signed := stringParams(params)
	sid := signed["MessageSid"]
	logger = logger.With(zap.String("message_sid", sid))

	if !VerifySignature(g.cfg.AuthToken, g.callbackURL(r), signed, r.Header.Get(SignatureHeader)) {
		logger.Warn("Webhook signature mismatch")
		return g.rejectAudited(ctx, logger, reject(KindInvalidSignature), "invalid signature", signed, clientIP)
	}

	payload, issues := toPayload(g.validate, params, g.cfg.AccountID)
	if len(issues) > 0 {
		logger.Warn("Webhook payload invalid", zap.Strings("issues", issues))
		return g.rejectAudited(ctx, logger, reject(KindInvalidPayload, issues...), "invalid payload", signed, clientIP)
	}

	existing, err := g.logs.Query(ctx, notification.LogFilter{
		Statuses:   []notification.LogStatus{notification.StatusReceived},
		ExternalID: payload.MessageSid,
		Limit:      1,
	})
	if err != nil {
		logger.Error("Replay lookup failed", zap.Error(err))
		return reject(KindInternal)
	}
	if len(existing) > 0 {
		return g.rejectReplay(ctx, logger, signed, clientIP)
	}

	entry := &notification.NotificationLog{
		Type:         logType,
		Channel:      notification.ChannelWebhook,
		Status:       notification.StatusReceived,
		ExternalID:   payload.MessageSid,
		Recipient:    payload.To,
		Content:      payload.Body,
		AuditMessage: "message received",
		Metadata: notification.Metadata{
			"from":        payload.From,
			"to":          payload.To,
			"account_sid": payload.AccountSid,
			"client_ip":   clientIP,
		},
		CreatedAt: g.now().UTC(),
	}
	if payload.MessageStatus != "" {
		entry.Metadata["message_status"] = payload.MessageStatus
	}
	if err := g.logs.Append(ctx, entry); err != nil {
		if errors.Is(err, notification.ErrDuplicateMessage) {
			// lost the race against a concurrent delivery of the same message
			return g.rejectReplay(ctx, logger, signed, clientIP)
		}
		logger.Error("Failed to record received message", zap.Error(err))
		return reject(KindInternal)
	}

	logger.Info("Webhook message received", zap.String("log_id", entry.ID))
	return nil
}

func (g *Gateway) rejectReplay(ctx context.Context, logger *zap.Logger, params map[string]string, clientIP string) *RejectionError {
	logger.Warn("Webhook replay attempt")
	return g.rejectAudited(ctx, logger, reject(KindDuplicate), "replay attempt", params, clientIP)
}

// rejectAudited records the rejection before returning it. A failed audit write
// turns the rejection into an internal error.
func (g *Gateway) rejectAudited(ctx context.Context, logger *zap.Logger, rej *RejectionError, reason string, params map[string]string, clientIP string) *RejectionError {
	content, _ := json.Marshal(params)
	meta := notification.Metadata{
		"reason":    string(rej.Kind),
		"client_ip": clientIP,
	}
	if len(rej.Issues) > 0 {
		meta["issues"] = strings.Join(rej.Issues, "; ")
	}

	entry := &notification.NotificationLog{
		Type:         logType,
		Channel:      notification.ChannelWebhook,
		Status:       notification.StatusRejected,
		ExternalID:   params["MessageSid"],
		Recipient:    params["To"],
		Content:      string(content),
		AuditMessage: reason,
		ErrorMessage: rej.Message,
		Metadata:     meta,
		CreatedAt:    g.now().UTC(),
	}
	if err := g.logs.Append(ctx, entry); err != nil {
		logger.Error("Failed to record webhook rejection", zap.Error(err), zap.String("reason", reason))
		return reject(KindInternal)
	}
	return rej
}

func (g *Gateway) callbackURL(r *http.Request) string {
	if g.cfg.URL != "" {
		return g.cfg.URL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

// ClientIP returns the first X-Forwarded-For hop, or the remote address host
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return "unknown"
		}
		return r.RemoteAddr
	}
	return host
}

type errorResponse struct {
	Error  string   `json:"error"`
	Issues []string `json:"issues,omitempty"`
}

func writeRejection(w http.ResponseWriter, rej *RejectionError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rej.Status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: rej.Message, Issues: rej.Issues})
}
