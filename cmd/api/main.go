package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	grpcapi "github.com/alexnthnz/notification-relay/api/grpc"
	"github.com/alexnthnz/notification-relay/api/rest"
	"github.com/alexnthnz/notification-relay/internal/app"
	"github.com/alexnthnz/notification-relay/internal/config"
	"github.com/alexnthnz/notification-relay/internal/logging"
	"github.com/alexnthnz/notification-relay/internal/notification"
	"github.com/alexnthnz/notification-relay/internal/queue"
	"github.com/alexnthnz/notification-relay/internal/ratelimit"
	"github.com/alexnthnz/notification-relay/internal/webhook"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting Notification API Service")

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

	g, ctx := errgroup.WithContext(ctx)

	// Webhook rate limiter
	var limiter ratelimit.Limiter
	switch cfg.RateLimit.Backend {
	case "redis":
		if a.Redis == nil {
			logger.Fatal("ratelimit.backend is redis but redis is disabled")
		}
		limiter = ratelimit.NewRedisLimiter(a.Redis, cfg.RateLimit.Limit, cfg.RateLimit.Window)
	default:
		fw := ratelimit.NewFixedWindow(cfg.RateLimit.Limit, cfg.RateLimit.Window)
		g.Go(func() error {
			fw.Run(ctx)
			return nil
		})
		limiter = fw
	}
	logger.Info("Rate limiter initialized",
		zap.String("backend", cfg.RateLimit.Backend),
		zap.Int("limit", cfg.RateLimit.Limit),
		zap.Duration("window", cfg.RateLimit.Window),
	)

	gateway := webhook.NewGateway(cfg.Webhook, a.Logs, limiter, a.Metrics, logger)

	// Initialize Kafka producer
	producer := queue.NewProducer(cfg.Kafka, logger)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.Topic))

	notificationService := notification.NewService(a.Logs, a.Notifications, producer, logger)

	handler := rest.NewHandler(notificationService, gateway, cfg.Webhook.Path, a.Metrics, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
		Handler:      handler.SetupRoutes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(grpcapi.LoggingInterceptor(logger)))
	grpcapi.Register(grpcServer, grpcapi.NewServer(dispatcher, notificationService, logger))

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.GRPCPort)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		logger.Info("Starting gRPC server", zap.String("addr", addr))
		return grpcServer.Serve(lis)
	})

	g.Go(func() error {
		a.ServeMetrics(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", zap.Error(err))
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Service stopped with error", zap.Error(err))
	}
	logger.Info("Server exited")
}
