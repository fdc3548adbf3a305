package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QueuedRequest is a notification request waiting on the request queue
type QueuedRequest struct {
	ID         string              `json:"id"`
	Request    NotificationRequest `json:"request"`
	EnqueuedAt time.Time           `json:"enqueued_at"`
}

// RequestPublisher puts requests on the queue consumed by the dispatcher
type RequestPublisher interface {
	PublishRequest(ctx context.Context, msg QueuedRequest) error
}

// Service is the application-facing entry point: it queues requests, records
// read confirmations and exposes the audit trail of a notification.
type Service struct {
	logs          LogStore
	notifications NotificationStore
	publisher     RequestPublisher
	validate      *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
}

// NewService creates a new notification service
func NewService(logs LogStore, notifications NotificationStore, publisher RequestPublisher, logger *zap.Logger) *Service {
	return &Service{
		logs:          logs,
		notifications: notifications,
		publisher:     publisher,
		validate:      validator.New(),
		logger:        logger,
		now:           time.Now,
	}
}

// ValidationError reports an invalid notification request
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid notification request: %v", e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Enqueue validates req and publishes it for asynchronous dispatch
func (s *Service) Enqueue(ctx context.Context, req NotificationRequest) (*QueuedRequest, error) {
	req = req.WithoutEscalation()
	if err := s.validate.Struct(req); err != nil {
		return nil, &ValidationError{Err: err}
	}

	msg := QueuedRequest{
		ID:         uuid.New().String(),
		Request:    req,
		EnqueuedAt: s.now().UTC(),
	}
	if err := s.publisher.PublishRequest(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to enqueue notification request: %w", err)
	}

	s.logger.Info("Queued notification request",
		zap.String("request_id", msg.ID),
		zap.String("channel", string(req.Channel)),
		zap.String("type", req.Type))
	return &msg, nil
}

// Confirm records that the user read a notification. The confirmation becomes
// the head of the lineage, so the notification is no longer escalated.
func (s *Service) Confirm(ctx context.Context, notificationID, userID string) (*NotificationLog, error) {
	n, err := s.notifications.GetNotification(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if userID != "" && n.UserID != "" && userID != n.UserID {
		return nil, ErrNotFound
	}

	entry := &NotificationLog{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Type:           n.Type,
		Channel:        n.Channel,
		Status:         StatusConfirmed,
		AuditMessage:   "read by user",
		CreatedAt:      s.now().UTC(),
	}
	if latest, err := s.latest(ctx, n.ID); err != nil {
		return nil, err
	} else if latest != nil {
		entry.Channel = latest.Channel
		entry.RetryCount = latest.RetryCount
		if latest.Status == StatusConfirmed {
			return latest, nil
		}
	}

	if err := s.logs.Append(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to record confirmation: %w", err)
	}
	s.logger.Info("Notification confirmed", zap.String("notification_id", n.ID))
	return entry, nil
}

// Logs returns the audit trail of a notification in append order
func (s *Service) Logs(ctx context.Context, notificationID string) ([]NotificationLog, error) {
	if _, err := s.notifications.GetNotification(ctx, notificationID); err != nil {
		return nil, err
	}
	logs, err := s.logs.Query(ctx, LogFilter{NotificationID: notificationID})
	if err != nil {
		return nil, fmt.Errorf("failed to query notification logs: %w", err)
	}
	return logs, nil
}

func (s *Service) latest(ctx context.Context, notificationID string) (*NotificationLog, error) {
	logs, err := s.logs.Query(ctx, LogFilter{NotificationID: notificationID, LatestOnly: true})
	if err != nil {
		return nil, fmt.Errorf("failed to query notification logs: %w", err)
	}
	if len(logs) == 0 {
		return nil, nil
	}
	return &logs[0], nil
}
