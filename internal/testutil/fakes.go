// Package testutil provides fakes shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/alexnthnz/notification-relay/internal/channels"
	"github.com/alexnthnz/notification-relay/internal/notification"
)

// SentMessage is one call recorded by FakeSender
type SentMessage struct {
	Channel notification.Channel
	Message channels.Message
}

// FakeSender records every send and fails the channels it is told to fail
type FakeSender struct {
	mu       sync.Mutex
	sent     []SentMessage
	failures map[notification.Channel]error
	seq      int
}

// NewFakeSender creates a sender that accepts every message
func NewFakeSender() *FakeSender {
	return &FakeSender{failures: make(map[notification.Channel]error)}
}

// FailChannel makes sends on ch return err until cleared with a nil err
func (f *FakeSender) FailChannel(ch notification.Channel, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, ch)
		return
	}
	f.failures[ch] = err
}

// SendNotification records the call
func (f *FakeSender) SendNotification(_ context.Context, ch notification.Channel, msg channels.Message) (*channels.DeliveryReport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, SentMessage{Channel: ch, Message: msg})
	if err, ok := f.failures[ch]; ok {
		return nil, err
	}
	f.seq++
	return &channels.DeliveryReport{ExternalID: fmt.Sprintf("fake-%d", f.seq), Provider: "fake"}, nil
}

// Sent returns a copy of every recorded call
func (f *FakeSender) Sent() []SentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SentMessage, len(f.sent))
	copy(out, f.sent)
	return out
}

// FakeChannel is a channels.Channel that records messages
type FakeChannel struct {
	Type notification.Channel
	Err  error

	mu   sync.Mutex
	msgs []channels.Message
}

// SendNotification records msg and returns Err
func (c *FakeChannel) SendNotification(_ context.Context, msg channels.Message) (*channels.DeliveryReport, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	if c.Err != nil {
		return nil, c.Err
	}
	return &channels.DeliveryReport{ExternalID: msg.IdempotencyKey, Provider: "fake"}, nil
}

// GetChannelType returns Type
func (c *FakeChannel) GetChannelType() notification.Channel {
	return c.Type
}

// Messages returns a copy of the recorded messages
func (c *FakeChannel) Messages() []channels.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]channels.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// RecordingDispatcher records requests and answers with Respond, or success when nil
type RecordingDispatcher struct {
	Respond func(req notification.NotificationRequest) (*notification.Result, error)

	mu       sync.Mutex
	requests []notification.NotificationRequest
}

// Send records req
func (d *RecordingDispatcher) Send(_ context.Context, req notification.NotificationRequest) (*notification.Result, error) {
	d.mu.Lock()
	d.requests = append(d.requests, req)
	d.mu.Unlock()
	if d.Respond != nil {
		return d.Respond(req)
	}
	return &notification.Result{Success: true, NotificationID: req.NotificationID}, nil
}

// Requests returns a copy of the recorded requests
func (d *RecordingDispatcher) Requests() []notification.NotificationRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]notification.NotificationRequest, len(d.requests))
	copy(out, d.requests)
	return out
}
