package channels

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/alexnthnz/notification-relay/internal/notification"
)

// BreakerChannel wraps a channel with a circuit breaker so a failing provider
// is not hammered by retries while it is down.
type BreakerChannel struct {
	next Channel
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerChannel wraps next. The breaker opens after consecutiveFailures
// failed sends and lets a trial send through after openTimeout.
func NewBreakerChannel(next Channel, consecutiveFailures uint32, openTimeout time.Duration, logger *zap.Logger) *BreakerChannel {
	if consecutiveFailures == 0 {
		consecutiveFailures = 5
	}
	settings := gobreaker.Settings{
		Name:        string(next.GetChannelType()),
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Channel circuit breaker state changed",
				zap.String("channel", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &BreakerChannel{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

// SendNotification sends through the wrapped channel unless the breaker is open
func (b *BreakerChannel) SendNotification(ctx context.Context, msg Message) (*DeliveryReport, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.SendNotification(ctx, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("%s channel: %w", b.next.GetChannelType(), err)
	}
	return out.(*DeliveryReport), nil
}

// GetChannelType returns the wrapped channel type
func (b *BreakerChannel) GetChannelType() notification.Channel {
	return b.next.GetChannelType()
}

// State returns the current breaker state
func (b *BreakerChannel) State() gobreaker.State {
	return b.cb.State()
}
