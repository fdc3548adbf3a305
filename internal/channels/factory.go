package channels

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/alexnthnz/notification-relay/internal/config"
)

// NewFromConfig registers every channel whose provider is configured. A push
// channel whose credentials cannot be loaded is skipped with a warning.
func NewFromConfig(ctx context.Context, cfg config.ChannelsConfig, logger *zap.Logger) (*ChannelManager, error) {
	manager := NewChannelManager()
	register := func(ch Channel) {
		if cfg.Breaker.Enabled {
			ch = NewBreakerChannel(ch, cfg.Breaker.ConsecutiveFailures, cfg.Breaker.OpenTimeout, logger)
		}
		manager.RegisterChannel(ch)
		logger.Info("Registered channel", zap.String("channel", string(ch.GetChannelType())))
	}

	if cfg.Twilio.AccountSID != "" {
		register(NewSMSChannel(cfg.Twilio, nil, logger))
	}

	switch cfg.EmailProvider {
	case "", "sendgrid":
		if cfg.SendGrid.APIKey != "" {
			register(NewEmailChannel(cfg.SendGrid, logger))
		}
	case "smtp":
		if cfg.SMTP.Host != "" {
			register(NewSMTPChannel(cfg.SMTP, logger))
		}
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.EmailProvider)
	}

	if cfg.Firebase.CredentialsPath != "" {
		push, err := NewPushChannel(ctx, cfg.Firebase, logger)
		if err != nil {
			logger.Warn("Push channel disabled", zap.Error(err))
		} else {
			register(push)
		}
	}

	return manager, nil
}
