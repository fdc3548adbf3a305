package channels

import (
	"context"
	"fmt"
	"sync"

	"github.com/alexnthnz/notification-relay/internal/notification"
)

// Message is a rendered notification ready for a transport
type Message struct {
	// IdempotencyKey is forwarded to providers that deduplicate retried sends
	IdempotencyKey string
	UserID         string
	Recipient      string
	Subject        string
	Body           string
	Metadata       map[string]string
}

// DeliveryReport is what a provider returned for an accepted message
type DeliveryReport struct {
	ExternalID string
	Provider   string
}

// Channel represents a notification transport
type Channel interface {
	SendNotification(ctx context.Context, msg Message) (*DeliveryReport, error)
	GetChannelType() notification.Channel
}

// ChannelManager manages all notification channels
type ChannelManager struct {
	mu       sync.RWMutex
	channels map[notification.Channel]Channel
}

// NewChannelManager creates a new channel manager
func NewChannelManager() *ChannelManager {
	return &ChannelManager{
		channels: make(map[notification.Channel]Channel),
	}
}

// RegisterChannel registers a channel with the manager, replacing any channel of the same type
func (cm *ChannelManager) RegisterChannel(channel Channel) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.channels[channel.GetChannelType()] = channel
}

// GetChannel retrieves a channel by type
func (cm *ChannelManager) GetChannel(channelType notification.Channel) (Channel, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	channel, exists := cm.channels[channelType]
	return channel, exists
}

// Types returns the registered channel types
func (cm *ChannelManager) Types() []notification.Channel {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	types := make([]notification.Channel, 0, len(cm.channels))
	for t := range cm.channels {
		types = append(types, t)
	}
	return types
}

// SendNotification sends a message through the channel of the given type
func (cm *ChannelManager) SendNotification(ctx context.Context, channelType notification.Channel, msg Message) (*DeliveryReport, error) {
	channel, exists := cm.GetChannel(channelType)
	if !exists {
		return nil, fmt.Errorf("%w: %s", notification.ErrUnsupportedChannel, channelType)
	}
	return channel.SendNotification(ctx, msg)
}
