// Package dispatch sends one notification through one channel and records the
// attempt in the notification log.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/alexnthnz/notification-relay/internal/channels"
	"github.com/alexnthnz/notification-relay/internal/monitoring"
	"github.com/alexnthnz/notification-relay/internal/notification"
)

// ReasonChannelDisabled is the Result error for users who opted out of a channel
var ReasonChannelDisabled = notification.ErrChannelDisabled.Error()

// Renderer produces the subject and body of a notification
type Renderer interface {
	Render(ctx context.Context, notificationType string, channel notification.Channel, vars map[string]string) (string, string, error)
}

// Sender hands a rendered message to the transport of a channel
type Sender interface {
	SendNotification(ctx context.Context, channel notification.Channel, msg channels.Message) (*channels.DeliveryReport, error)
}

// Dependencies groups the collaborators of the dispatch service
type Dependencies struct {
	Logs          notification.LogStore
	Notifications notification.NotificationStore
	Preferences   notification.PreferenceAccessor
	Renderer      Renderer
	Sender        Sender
	Metrics       *monitoring.Metrics
	Logger        *zap.Logger
}

// Service implements notification.Dispatcher
type Service struct {
	logs          notification.LogStore
	notifications notification.NotificationStore
	preferences   notification.PreferenceAccessor
	renderer      Renderer
	sender        Sender
	metrics       *monitoring.Metrics
	logger        *zap.Logger
	validate      *validator.Validate
	timeout       time.Duration
	now           func() time.Time
}

// NewService creates a dispatch service. timeout bounds each transport call; zero disables it.
func NewService(deps Dependencies, timeout time.Duration) *Service {
	return &Service{
		logs:          deps.Logs,
		notifications: deps.Notifications,
		preferences:   deps.Preferences,
		renderer:      deps.Renderer,
		sender:        deps.Sender,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		validate:      validator.New(),
		timeout:       timeout,
		now:           time.Now,
	}
}

// Send delivers req through its channel. Transport failures are reported in the
// Result and recorded as failed log entries; the returned error is reserved for
// store failures, in which case the Result still describes the delivery outcome
// when one was reached.
func (s *Service) Send(ctx context.Context, req notification.NotificationRequest) (*notification.Result, error) {
	if err := s.validate.Struct(req); err != nil {
		s.metrics.RecordNotificationFailed(string(req.Channel), "invalid_request")
		return &notification.Result{Success: false, Error: fmt.Sprintf("invalid request: %v", err)}, nil
	}

	if req.NotificationID != "" {
		head, err := s.lineageHead(ctx, req.NotificationID)
		if err != nil {
			return nil, err
		}
		if head != nil && req.RetryCount < head.RetryCount {
			s.logger.Debug("Raising retry count to the lineage head",
				zap.String("notification_id", req.NotificationID),
				zap.Int("requested", req.RetryCount),
				zap.Int("head", head.RetryCount))
			req.RetryCount = head.RetryCount
		}
	}

	logger := s.logger.With(
		zap.String("channel", string(req.Channel)),
		zap.Int("retry_count", req.RetryCount))

	if req.UserID != "" {
		enabled, err := s.preferences.Enabled(ctx, req.UserID, req.Channel)
		if err != nil {
			logger.Error("Preference lookup failed", zap.String("user_id", req.UserID), zap.Error(err))
			s.metrics.RecordNotificationFailed(string(req.Channel), "preference")
			return s.recordFailure(ctx, req, "", fmt.Sprintf("preference lookup failed: %v", err))
		}
		if !enabled {
			logger.Info("Channel disabled by user preference",
				zap.String("notification_id", req.NotificationID),
				zap.String("user_id", req.UserID))
			s.metrics.RecordNotificationFailed(string(req.Channel), "disabled")
			return &notification.Result{
				Success:        false,
				Error:          ReasonChannelDisabled,
				NotificationID: req.NotificationID,
			}, nil
		}
	}

	subject, body, err := s.renderer.Render(ctx, req.Type, req.Channel, req.Variables)
	if err != nil {
		logger.Warn("Template rendering failed, using raw content", zap.Error(err))
		subject, body = "", req.Variables["content"]
	}

	if err := s.ensureNotification(ctx, &req, body); err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("notification_id", req.NotificationID))

	sendCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := s.now()
	report, sendErr := s.sender.SendNotification(sendCtx, req.Channel, channels.Message{
		IdempotencyKey: req.NotificationID,
		UserID:         req.UserID,
		Recipient:      req.Recipient,
		Subject:        subject,
		Body:           body,
		Metadata:       req.Metadata,
	})
	s.metrics.RecordChannelDuration(string(req.Channel), s.now().Sub(start).Seconds())

	if sendErr != nil {
		logger.Warn("Transport failed", zap.Error(sendErr))
		s.metrics.RecordNotificationFailed(string(req.Channel), errorType(sendErr))
		return s.recordFailure(ctx, req, body, sendErr.Error())
	}

	status := notification.StatusSent
	if req.FallbackFrom != "" {
		status = notification.StatusFallbackSent
	}
	entry := s.newEntry(req, status, body)
	if report != nil {
		entry.ExternalID = report.ExternalID
	}
	if err := s.logs.Append(ctx, entry); err != nil {
		logger.Error("Failed to record sent notification", zap.Error(err))
		return &notification.Result{Success: true, NotificationID: req.NotificationID},
			fmt.Errorf("failed to append %s log entry: %w", status, err)
	}

	s.metrics.RecordNotificationSent(string(req.Channel), string(status))
	logger.Info("Notification sent", zap.String("status", string(status)), zap.String("log_id", entry.ID))
	return &notification.Result{Success: true, NotificationID: req.NotificationID, LogID: entry.ID}, nil
}

func (s *Service) recordFailure(ctx context.Context, req notification.NotificationRequest, body, reason string) (*notification.Result, error) {
	if err := s.ensureNotification(ctx, &req, body); err != nil {
		return nil, err
	}
	entry := s.newEntry(req, notification.StatusFailed, body)
	entry.ErrorMessage = reason

	result := &notification.Result{Success: false, Error: reason, NotificationID: req.NotificationID}
	if err := s.logs.Append(ctx, entry); err != nil {
		s.logger.Error("Failed to record failed notification",
			zap.String("notification_id", req.NotificationID), zap.Error(err))
		return result, fmt.Errorf("failed to append failed log entry: %w", err)
	}
	result.LogID = entry.ID
	return result, nil
}

// lineageHead returns the latest log entry of a notification, or nil for a
// lineage with no entries yet.
func (s *Service) lineageHead(ctx context.Context, notificationID string) (*notification.NotificationLog, error) {
	logs, err := s.logs.Query(ctx, notification.LogFilter{NotificationID: notificationID, LatestOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read notification lineage: %w", err)
	}
	if len(logs) == 0 {
		return nil, nil
	}
	return &logs[0], nil
}

// ensureNotification creates the originating notification for requests that
// do not continue an existing lineage.
func (s *Service) ensureNotification(ctx context.Context, req *notification.NotificationRequest, body string) error {
	if req.NotificationID != "" {
		return nil
	}
	n := &notification.Notification{
		ID:        uuid.New().String(),
		UserID:    req.UserID,
		Type:      req.Type,
		Channel:   req.Channel,
		Recipient: req.Recipient,
		Message:   body,
		Variables: req.Variables,
		Metadata:  req.Metadata,
		CreatedAt: s.now().UTC(),
	}
	if err := s.notifications.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	req.NotificationID = n.ID
	return nil
}

func (s *Service) newEntry(req notification.NotificationRequest, status notification.LogStatus, body string) *notification.NotificationLog {
	var fallbackChannel notification.Channel
	if req.FallbackFrom != "" {
		fallbackChannel = req.Channel
	}
	return &notification.NotificationLog{
		ID:              uuid.New().String(),
		NotificationID:  req.NotificationID,
		UserID:          req.UserID,
		Type:            req.Type,
		Channel:         req.Channel,
		Status:          status,
		RetryCount:      req.RetryCount,
		FallbackFrom:    req.FallbackFrom,
		FallbackChannel: fallbackChannel,
		Recipient:       req.Recipient,
		Content:         body,
		Metadata:        req.Metadata,
		CreatedAt:       s.now().UTC(),
	}
}

func errorType(err error) string {
	switch {
	case errors.Is(err, notification.ErrUnsupportedChannel):
		return "unsupported_channel"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return "circuit_open"
	default:
		return "transport"
	}
}
