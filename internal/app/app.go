// Package app wires the stores, caches and dispatcher shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/alexnthnz/notification-relay/internal/channels"
	"github.com/alexnthnz/notification-relay/internal/config"
	"github.com/alexnthnz/notification-relay/internal/database"
	"github.com/alexnthnz/notification-relay/internal/dispatch"
	"github.com/alexnthnz/notification-relay/internal/monitoring"
	"github.com/alexnthnz/notification-relay/internal/preference"
	"github.com/alexnthnz/notification-relay/internal/render"
)

// App holds the long-lived dependencies of a process
type App struct {
	Config        *config.Config
	Logger        *zap.Logger
	Metrics       *monitoring.Metrics
	DB            *database.PostgresDB
	Redis         *database.RedisClient
	Logs          *database.LogStore
	Notifications *database.NotificationStore
	Preferences   *preference.Accessor
}

// New connects to PostgreSQL, and to Redis when enabled, and builds the stores
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.NewPostgresDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.InitSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}
	logger.Info("Database connected and schema initialized")

	a := &App{
		Config:        cfg,
		Logger:        logger,
		Metrics:       monitoring.NewMetrics(prometheus.NewRegistry()),
		DB:            db,
		Logs:          database.NewLogStore(db),
		Notifications: database.NewNotificationStore(db),
	}

	var cache preference.Cache
	if cfg.Redis.Enabled {
		a.Redis, err = database.NewRedisClient(cfg.Redis)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		cache = a.Redis
		logger.Info("Redis connected", zap.String("addr", cfg.Redis.Addr))
	}
	a.Preferences = preference.NewAccessor(database.NewPreferenceStore(db), cache, cfg.Redis.CacheTTL, logger)

	return a, nil
}

// Dispatcher builds the channel transports and the dispatch service on top of them
func (a *App) Dispatcher(ctx context.Context) (*dispatch.Service, error) {
	manager, err := channels.NewFromConfig(ctx, a.Config.Channels, a.Logger)
	if err != nil {
		return nil, err
	}
	a.Logger.Info("Channels registered", zap.Any("channels", manager.Types()))

	templates := database.NewTemplateStore(a.DB, a.Redis, a.Config.Redis.CacheTTL, a.Logger)
	return dispatch.NewService(dispatch.Dependencies{
		Logs:          a.Logs,
		Notifications: a.Notifications,
		Preferences:   a.Preferences,
		Renderer:      render.NewRenderer(templates),
		Sender:        manager,
		Metrics:       a.Metrics,
		Logger:        a.Logger,
	}, a.Config.Dispatch.TransportTimeout), nil
}

// ServeMetrics exposes the Prometheus registry on the metrics port until ctx is done.
// It returns immediately when metrics are disabled.
func (a *App) ServeMetrics(ctx context.Context) {
	if !a.Config.Metrics.Enabled {
		return
	}
	mux := http.NewServeMux()
	mux.Handle(a.Config.Metrics.Path, a.Metrics.Handler())
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.Config.Metrics.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	a.Logger.Info("Starting metrics server", zap.Int("port", a.Config.Metrics.Port))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.Logger.Error("Metrics server error", zap.Error(err))
	}
}

// Close releases the database connections
func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("Failed to close Redis", zap.Error(err))
		}
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.Warn("Failed to close PostgreSQL", zap.Error(err))
	}
}
