package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/alexnthnz/notification-relay/internal/config"
	"github.com/alexnthnz/notification-relay/internal/notification"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer handles publishing messages to Kafka
type Producer struct {
	writer messageWriter
	logger *zap.Logger
}

// Consumer handles consuming messages from Kafka
type Consumer struct {
	reader   messageReader
	logger   *zap.Logger
	backoff  time.Duration
	attempts int
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg config.KafkaConfig, logger *zap.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
		RequiredAcks: kafka.RequireAll,
	}
	return &Producer{writer: writer, logger: logger}
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg config.KafkaConfig, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    10e3, // 10KB
		MaxBytes:    10e6, // 10MB
		MaxWait:     1 * time.Second,
		StartOffset: kafka.LastOffset,
	})
	return &Consumer{reader: reader, logger: logger, backoff: time.Second, attempts: 3}
}

// PublishRequest publishes a notification request. Messages are keyed by
// recipient so one recipient's requests stay ordered within a partition.
func (p *Producer) PublishRequest(ctx context.Context, msg notification.QueuedRequest) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal request message: %w", err)
	}

	kafkaMsg := kafka.Message{
		Key:   []byte(msg.Request.Recipient),
		Value: data,
		Headers: []kafka.Header{
			{Key: "request_id", Value: []byte(msg.ID)},
			{Key: "channel", Value: []byte(msg.Request.Channel)},
		},
		Time: msg.EnqueuedAt,
	}
	if err := p.writer.WriteMessages(ctx, kafkaMsg); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	p.logger.Debug("Published notification request",
		zap.String("request_id", msg.ID),
		zap.String("channel", string(msg.Request.Channel)))
	return nil
}

// ConsumeRequests hands every queued request to handler until ctx is done.
// The offset is committed once the handler succeeds. A handler that keeps
// failing stops the consumer with the offset uncommitted, so the request is
// redelivered after a restart instead of being lost.
func (c *Consumer) ConsumeRequests(ctx context.Context, handler func(context.Context, notification.QueuedRequest) error) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return err
			}
			c.logger.Error("Error reading message from Kafka", zap.Error(err))
			if err := c.wait(ctx, 1); err != nil {
				return err
			}
			continue
		}

		var req notification.QueuedRequest
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			c.logger.Error("Dropping undecodable request message",
				zap.Error(err), zap.Int64("offset", msg.Offset))
		} else if err := c.handle(ctx, handler, req); err != nil {
			return fmt.Errorf("request %s at offset %d left uncommitted: %w", req.ID, msg.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("Failed to commit offset", zap.Error(err), zap.Int64("offset", msg.Offset))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, handler func(context.Context, notification.QueuedRequest) error, req notification.QueuedRequest) error {
	attempts := c.attempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 1; ; attempt++ {
		err := handler(ctx, req)
		if err == nil {
			return nil
		}
		c.logger.Error("Error processing request",
			zap.String("request_id", req.ID), zap.Int("attempt", attempt), zap.Error(err))
		if attempt >= attempts {
			return err
		}
		if err := c.wait(ctx, attempt); err != nil {
			return err
		}
	}
}

// wait sleeps for a linearly growing backoff unless ctx ends first
func (c *Consumer) wait(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.backoff * time.Duration(attempt)):
		return nil
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Close closes the consumer
func (c *Consumer) Close() error {
	return c.reader.Close()
}
