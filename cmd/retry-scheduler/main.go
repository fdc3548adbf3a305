package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/alexnthnz/notification-relay/internal/app"
	"github.com/alexnthnz/notification-relay/internal/config"
	"github.com/alexnthnz/notification-relay/internal/logging"
	"github.com/alexnthnz/notification-relay/internal/retry"
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
	defer logger.Sync()

	logger.Info("Starting Retry Scheduler")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize dependencies", zap.Error(err))
	}
	defer a.Close()

	dispatcher, err := a.Dispatcher(ctx)
	if err != nil {
		logger.Fatal("Failed to initialize channels", zap.Error(err))
	}

	settings := retry.SettingsFromConfig(cfg.Retry)
	scheduler := retry.NewScheduler(a.Logs, a.Notifications, a.Preferences, dispatcher, settings, a.Metrics, logger)

	logger.Info("Retry scheduler running",
		zap.Duration("interval", settings.Interval),
		zap.Int("workers", settings.Workers),
	)
	go a.ServeMetrics(ctx)
	scheduler.Start(ctx)

	logger.Info("Retry scheduler exited")
}
