package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/alexnthnz/notification-relay/internal/app"
	"github.com/alexnthnz/notification-relay/internal/config"
	"github.com/alexnthnz/notification-relay/internal/logging"
	"github.com/alexnthnz/notification-relay/internal/notification"
	"github.com/alexnthnz/notification-relay/internal/queue"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Dispatcher service stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("Dispatcher service exited")
	_ = logger.Sync()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting Dispatcher Service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	dispatcher, err := a.Dispatcher(ctx)
	if err != nil {
		return err
	}

	consumer := queue.NewConsumer(cfg.Kafka, logger)
	defer consumer.Close()
	logger.Info("Kafka consumer initialized",
		zap.String("topic", cfg.Kafka.Topic),
		zap.String("group_id", cfg.Kafka.GroupID),
	)

	go a.ServeMetrics(ctx)

	err = consumer.ConsumeRequests(ctx, func(ctx context.Context, msg notification.QueuedRequest) error {
		return process(ctx, dispatcher, msg, logger)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// process dispatches one queued request. An error means no transport call was
// made and nothing was logged, so the message must be redelivered. Store
// failures after the transport call are only logged: the idempotency key
// covers a resend, and the delivery outcome is already known.
func process(ctx context.Context, dispatcher notification.Dispatcher, msg notification.QueuedRequest, logger *zap.Logger) error {
	logger = logger.With(
		zap.String("request_id", msg.ID),
		zap.String("channel", string(msg.Request.Channel)),
		zap.Duration("queue_latency", time.Since(msg.EnqueuedAt)),
	)

	result, err := dispatcher.Send(ctx, msg.Request.WithoutEscalation())
	if result == nil {
		if err == nil {
			err = errors.New("dispatcher returned no result")
		}
		return err
	}
	if err != nil {
		logger.Error("Delivery outcome not recorded", zap.Bool("success", result.Success), zap.Error(err))
		return nil
	}
	if !result.Success {
		logger.Info("Queued notification not delivered", zap.String("error", result.Error))
		return nil
	}
	logger.Info("Queued notification delivered", zap.String("notification_id", result.NotificationID))
	return nil
}
