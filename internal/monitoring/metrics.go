package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the notification relay
type Metrics struct {
	WebhookRequests           *prometheus.CounterVec
	RateLimited               prometheus.Counter
	NotificationsSent         *prometheus.CounterVec
	NotificationsFailed       *prometheus.CounterVec
	ChannelProcessingDuration *prometheus.HistogramVec
	RetryActions              *prometheus.CounterVec
	RetryRunDuration          prometheus.Histogram
	RetryRunCandidates        prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg *prometheus.Registry) *Metrics {
	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	factory := promauto.With(registerer)

	return &Metrics{
		WebhookRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webhook_requests_total",
				Help: "Inbound webhook requests by outcome",
			},
			[]string{"outcome"},
		),
		RateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "webhook_rate_limited_total",
				Help: "Inbound webhook requests denied by the rate limiter",
			},
		),
		NotificationsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_sent_total",
				Help: "Total number of notifications sent",
			},
			[]string{"channel", "status"},
		),
		NotificationsFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notifications_failed_total",
				Help: "Total number of failed notifications",
			},
			[]string{"channel", "error_type"},
		),
		ChannelProcessingDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "channel_processing_duration_seconds",
				Help:    "Time taken by channels to send notifications",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel"},
		),
		RetryActions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notification_retries_total",
				Help: "Retry scheduler actions by channel and outcome",
			},
			[]string{"channel", "action"},
		),
		RetryRunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "retry_run_duration_seconds",
				Help:    "Duration of a retry scheduler run",
				Buckets: prometheus.DefBuckets,
			},
		),
		RetryRunCandidates: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "retry_run_candidates",
				Help: "Log entries selected by the last retry scheduler run",
			},
		),
		gatherer: gatherer,
	}
}

// RecordWebhook records the outcome of an inbound webhook request
func (m *Metrics) RecordWebhook(outcome string) {
	m.WebhookRequests.WithLabelValues(outcome).Inc()
}

// RecordRateLimited records a rate limited request
func (m *Metrics) RecordRateLimited() {
	m.RateLimited.Inc()
}

// RecordNotificationSent records a sent notification
func (m *Metrics) RecordNotificationSent(channel, status string) {
	m.NotificationsSent.WithLabelValues(channel, status).Inc()
}

// RecordNotificationFailed records a failed notification
func (m *Metrics) RecordNotificationFailed(channel, errorType string) {
	m.NotificationsFailed.WithLabelValues(channel, errorType).Inc()
}

// RecordChannelDuration records channel processing duration
func (m *Metrics) RecordChannelDuration(channel string, duration float64) {
	m.ChannelProcessingDuration.WithLabelValues(channel).Observe(duration)
}

// RecordRetry records a retry scheduler action
func (m *Metrics) RecordRetry(channel, action string) {
	m.RetryActions.WithLabelValues(channel, action).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
