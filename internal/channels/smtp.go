package channels

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/alexnthnz/notification-relay/internal/config"
	"github.com/alexnthnz/notification-relay/internal/notification"
)

// SMTPChannel sends email through a plain SMTP relay
type SMTPChannel struct {
	dialer *gomail.Dialer
	from   string
	logger *zap.Logger
}

// NewSMTPChannel creates an SMTP email channel
func NewSMTPChannel(cfg config.SMTPConfig, logger *zap.Logger) *SMTPChannel {
	return &SMTPChannel{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: logger,
	}
}

func (s *SMTPChannel) buildMessage(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.Recipient)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("X-Notification-ID", msg.IdempotencyKey)
	m.SetBody("text/plain", msg.Body)
	return m
}

// SendNotification sends an email notification. gomail has no context support,
// so the send runs in its own goroutine and is abandoned when ctx ends.
func (s *SMTPChannel) SendNotification(ctx context.Context, msg Message) (*DeliveryReport, error) {
	m := s.buildMessage(msg)

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("smtp send aborted: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("smtp send failed: %w", err)
		}
	}

	s.logger.Info("Email notification sent over SMTP", zap.String("notification_id", msg.IdempotencyKey))
	return &DeliveryReport{Provider: "smtp"}, nil
}

// GetChannelType returns the channel type
func (s *SMTPChannel) GetChannelType() notification.Channel {
	return notification.ChannelEmail
}
