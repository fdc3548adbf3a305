package channels

import (
	"context"
	"fmt"
	"os"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/alexnthnz/notification-relay/internal/config"
	"github.com/alexnthnz/notification-relay/internal/notification"
)

// PushChannel handles push notifications using Firebase Cloud Messaging
type PushChannel struct {
	client *messaging.Client
	logger *zap.Logger
}

// NewPushChannel creates a new push notification channel
func NewPushChannel(ctx context.Context, cfg config.FirebaseConfig, logger *zap.Logger) (*PushChannel, error) {
	if _, err := os.Stat(cfg.CredentialsPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("firebase credentials file not found at %s", cfg.CredentialsPath)
	}

	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(cfg.CredentialsPath))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get firebase messaging client: %w", err)
	}

	return &PushChannel{client: client, logger: logger}, nil
}

func buildPushMessage(msg Message) *messaging.Message {
	data := make(map[string]string, len(msg.Metadata)+2)
	for k, v := range msg.Metadata {
		data[k] = v
	}
	data["notification_id"] = msg.IdempotencyKey
	if msg.UserID != "" {
		data["user_id"] = msg.UserID
	}

	return &messaging.Message{
		Token: msg.Recipient,
		Notification: &messaging.Notification{
			Title: msg.Subject,
			Body:  msg.Body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Priority: messaging.PriorityHigh,
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority": "10",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: msg.Subject,
						Body:  msg.Body,
					},
					Sound: "default",
				},
			},
		},
	}
}

// SendNotification sends a push notification
func (p *PushChannel) SendNotification(ctx context.Context, msg Message) (*DeliveryReport, error) {
	response, err := p.client.Send(ctx, buildPushMessage(msg))
	if err != nil {
		return nil, fmt.Errorf("fcm send failed: %w", err)
	}

	p.logger.Info("Push notification accepted",
		zap.String("notification_id", msg.IdempotencyKey),
		zap.String("fcm_id", response))
	return &DeliveryReport{ExternalID: response, Provider: "fcm"}, nil
}

// GetChannelType returns the channel type
func (p *PushChannel) GetChannelType() notification.Channel {
	return notification.ChannelPush
}
