package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the notification relay
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	API       APIConfig       `mapstructure:"api"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Retry     RetryConfig     `mapstructure:"retry"`
	Channels  ChannelsConfig  `mapstructure:"channels"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// DSN returns the lib/pq connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

// APIConfig holds API server configuration
type APIConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	GRPCPort int    `mapstructure:"grpc_port"`
}

// WebhookConfig holds the inbound delivery-status callback settings
type WebhookConfig struct {
	Path string `mapstructure:"path"`
	// URL is the public callback URL the provider signs
	URL          string `mapstructure:"url"`
	AuthToken    string `mapstructure:"auth_token"`
	AccountID    string `mapstructure:"account_id"`
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
}

// RateLimitConfig holds webhook rate limiting configuration
type RateLimitConfig struct {
	// Backend is "memory" or "redis"
	Backend string        `mapstructure:"backend"`
	Limit   int           `mapstructure:"limit"`
	Window  time.Duration `mapstructure:"window"`
}

// DispatchConfig holds dispatch settings
type DispatchConfig struct {
	TransportTimeout time.Duration `mapstructure:"transport_timeout"`
}

// RetryConfig holds retry/escalation scheduler settings
type RetryConfig struct {
	Interval            time.Duration `mapstructure:"interval"`
	PrimaryFallback     string        `mapstructure:"primary_fallback"`
	SecondaryFallback   string        `mapstructure:"secondary_fallback"`
	EscalationThreshold int           `mapstructure:"escalation_threshold"`
	UnconfirmedDelay    time.Duration `mapstructure:"unconfirmed_delay"`
	UnconfirmedChannels []string      `mapstructure:"unconfirmed_channels"`
	Workers             int           `mapstructure:"workers"`
	RatePerSecond       float64       `mapstructure:"rate_per_second"`
	Burst               int           `mapstructure:"burst"`
}

// ChannelsConfig holds third-party provider configurations
type ChannelsConfig struct {
	EmailProvider string         `mapstructure:"email_provider"`
	SendGrid      SendGridConfig `mapstructure:"sendgrid"`
	SMTP          SMTPConfig     `mapstructure:"smtp"`
	Twilio        TwilioConfig   `mapstructure:"twilio"`
	Firebase      FirebaseConfig `mapstructure:"firebase"`
	Breaker       BreakerConfig  `mapstructure:"breaker"`
}

// SendGridConfig holds SendGrid email configuration
type SendGridConfig struct {
	APIKey    string `mapstructure:"api_key"`
	FromName  string `mapstructure:"from_name"`
	FromEmail string `mapstructure:"from_email"`
}

// SMTPConfig holds plain SMTP email configuration
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// TwilioConfig holds Twilio SMS configuration
type TwilioConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	AccountSID     string `mapstructure:"account_sid"`
	AuthToken      string `mapstructure:"auth_token"`
	From           string `mapstructure:"from"`
	StatusCallback string `mapstructure:"status_callback"`
}

// FirebaseConfig holds Firebase push notification configuration
type FirebaseConfig struct {
	CredentialsPath string `mapstructure:"credentials_path"`
}

// BreakerConfig configures the per-channel circuit breaker
type BreakerConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	ConsecutiveFailures uint32        `mapstructure:"consecutive_failures"`
	OpenTimeout         time.Duration `mapstructure:"open_timeout"`
}

// MetricsConfig holds monitoring configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// LoadConfig loads configuration from environment variables and config files
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the services cannot run with
func (c *Config) Validate() error {
	if c.RateLimit.Limit <= 0 {
		return fmt.Errorf("ratelimit.limit must be greater than 0")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("ratelimit.window must be greater than 0")
	}
	if c.Retry.Interval <= 0 {
		return fmt.Errorf("retry.interval must be greater than 0")
	}
	if c.Retry.PrimaryFallback == "" || c.Retry.SecondaryFallback == "" {
		return fmt.Errorf("retry fallback channels must be set")
	}
	if c.Retry.Workers <= 0 {
		return fmt.Errorf("retry.workers must be greater than 0")
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "notifications")
	v.SetDefault("database.ssl_mode", "disable")

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cache_ttl", time.Hour)

	// Kafka defaults
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "notifications")
	v.SetDefault("kafka.group_id", "dispatcher")

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.grpc_port", 9090)

	v.SetDefault("webhook.path", "/webhooks/twilio")
	v.SetDefault("webhook.max_body_bytes", 1<<20)

	v.SetDefault("ratelimit.backend", "memory")
	v.SetDefault("ratelimit.limit", 60)
	v.SetDefault("ratelimit.window", time.Minute)

	v.SetDefault("dispatch.transport_timeout", 10*time.Second)

	v.SetDefault("retry.interval", 5*time.Minute)
	v.SetDefault("retry.primary_fallback", "sms")
	v.SetDefault("retry.secondary_fallback", "email")
	v.SetDefault("retry.escalation_threshold", 3)
	v.SetDefault("retry.unconfirmed_delay", 10*time.Minute)
	v.SetDefault("retry.unconfirmed_channels", []string{"push"})
	v.SetDefault("retry.workers", 4)
	v.SetDefault("retry.rate_per_second", 10.0)
	v.SetDefault("retry.burst", 5)

	v.SetDefault("channels.email_provider", "sendgrid")
	v.SetDefault("channels.sendgrid.from_name", "Notification Service")
	v.SetDefault("channels.sendgrid.from_email", "noreply@yourcompany.com")
	v.SetDefault("channels.smtp.port", 587)
	v.SetDefault("channels.twilio.base_url", "https://api.twilio.com")
	v.SetDefault("channels.breaker.enabled", true)
	v.SetDefault("channels.breaker.consecutive_failures", 5)
	v.SetDefault("channels.breaker.open_timeout", 30*time.Second)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9091)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)

	// Map environment variables
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.database", "DB_NAME")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("kafka.brokers", "KAFKA_BROKERS")
	v.BindEnv("webhook.url", "TWILIO_WEBHOOK_URL")
	v.BindEnv("webhook.auth_token", "TWILIO_AUTH_TOKEN")
	v.BindEnv("webhook.account_id", "TWILIO_ACCOUNT_SID")
	v.BindEnv("channels.sendgrid.api_key", "SENDGRID_API_KEY")
	v.BindEnv("channels.smtp.password", "SMTP_PASSWORD")
	v.BindEnv("channels.twilio.account_sid", "TWILIO_ACCOUNT_SID")
	v.BindEnv("channels.twilio.auth_token", "TWILIO_AUTH_TOKEN")
	v.BindEnv("channels.twilio.from", "TWILIO_SMS_FROM")
	v.BindEnv("channels.firebase.credentials_path", "FIREBASE_CREDENTIALS_PATH")
	v.BindEnv("log.level", "LOG_LEVEL")
}
