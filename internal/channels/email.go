package channels

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"github.com/alexnthnz/notification-relay/internal/config"
	"github.com/alexnthnz/notification-relay/internal/notification"
)

// EmailChannel handles email notifications using SendGrid
type EmailChannel struct {
	client *sendgrid.Client
	config config.SendGridConfig
	logger *zap.Logger
}

// NewEmailChannel creates a new email channel
func NewEmailChannel(cfg config.SendGridConfig, logger *zap.Logger) *EmailChannel {
	return &EmailChannel{
		client: sendgrid.NewSendClient(cfg.APIKey),
		config: cfg,
		logger: logger,
	}
}

// SendNotification sends an email notification
func (e *EmailChannel) SendNotification(ctx context.Context, msg Message) (*DeliveryReport, error) {
	from := mail.NewEmail(e.config.FromName, e.config.FromEmail)
	to := mail.NewEmail("", msg.Recipient)
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, msg.Body)

	// tracking headers let bounces be tied back to the log
	message.SetHeader("X-Notification-ID", msg.IdempotencyKey)
	if msg.UserID != "" {
		message.SetHeader("X-User-ID", msg.UserID)
	}

	response, err := e.client.SendWithContext(ctx, message)
	if err != nil {
		return nil, fmt.Errorf("sendgrid request failed: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, fmt.Errorf("sendgrid returned status %d: %s", response.StatusCode, response.Body)
	}

	var messageID string
	if ids, ok := response.Headers["X-Message-Id"]; ok && len(ids) > 0 {
		messageID = ids[0]
	}
	e.logger.Info("Email notification accepted",
		zap.String("notification_id", msg.IdempotencyKey),
		zap.String("sendgrid_id", messageID))
	return &DeliveryReport{ExternalID: messageID, Provider: "sendgrid"}, nil
}

// GetChannelType returns the channel type
func (e *EmailChannel) GetChannelType() notification.Channel {
	return notification.ChannelEmail
}
