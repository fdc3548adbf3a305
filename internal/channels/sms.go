package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/alexnthnz/notification-relay/internal/config"
	"github.com/alexnthnz/notification-relay/internal/notification"
)

const defaultTwilioBaseURL = "https://api.twilio.com"

// SMSChannel handles SMS notifications using the Twilio REST API
type SMSChannel struct {
	config config.TwilioConfig
	client *http.Client
	logger *zap.Logger
}

// NewSMSChannel creates a new SMS channel. client may be nil.
func NewSMSChannel(cfg config.TwilioConfig, client *http.Client, logger *zap.Logger) *SMSChannel {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTwilioBaseURL
	}
	if client == nil {
		client = &http.Client{}
	}
	return &SMSChannel{
		config: cfg,
		client: client,
		logger: logger,
	}
}

// TwilioResponse represents the response from Twilio API
type TwilioResponse struct {
	SID          string  `json:"sid"`
	Status       string  `json:"status"`
	Code         *int    `json:"code,omitempty"`
	Message      *string `json:"message,omitempty"`
	ErrorCode    *int    `json:"error_code,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
}

func (r TwilioResponse) errorText() string {
	switch {
	case r.Message != nil:
		return *r.Message
	case r.ErrorMessage != nil:
		return *r.ErrorMessage
	default:
		return "unknown Twilio error"
	}
}

// SendNotification sends an SMS notification
func (s *SMSChannel) SendNotification(ctx context.Context, msg Message) (*DeliveryReport, error) {
	s.logger.Debug("Sending SMS notification",
		zap.String("notification_id", msg.IdempotencyKey),
		zap.String("recipient", msg.Recipient))

	data := url.Values{}
	data.Set("To", msg.Recipient)
	data.Set("From", s.config.From)
	data.Set("Body", msg.Body)
	if s.config.StatusCallback != "" {
		data.Set("StatusCallback", s.config.StatusCallback)
	}

	twilioURL := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(s.config.BaseURL, "/"), s.config.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, twilioURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build twilio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if msg.IdempotencyKey != "" {
		req.Header.Set("I-Twilio-Idempotency-Token", msg.IdempotencyKey)
	}
	req.SetBasicAuth(s.config.AccountSID, s.config.AuthToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	var twilioResp TwilioResponse
	if err := json.NewDecoder(resp.Body).Decode(&twilioResp); err != nil {
		return nil, fmt.Errorf("failed to parse twilio response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("twilio error (status %d): %s", resp.StatusCode, twilioResp.errorText())
	}

	s.logger.Info("SMS notification accepted",
		zap.String("notification_id", msg.IdempotencyKey),
		zap.String("message_sid", twilioResp.SID))
	return &DeliveryReport{ExternalID: twilioResp.SID, Provider: "twilio"}, nil
}

// GetChannelType returns the channel type
func (s *SMSChannel) GetChannelType() notification.Channel {
	return notification.ChannelSMS
}
