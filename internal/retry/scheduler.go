// Package retry re-sends failed and unconfirmed notifications through fallback
// channels. Each run replays the head of every notification lineage in the log.
package retry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/alexnthnz/notification-relay/internal/config"
	"github.com/alexnthnz/notification-relay/internal/monitoring"
	"github.com/alexnthnz/notification-relay/internal/notification"
)

// Settings controls channel selection and pacing of a run
type Settings struct {
	Interval            time.Duration
	PrimaryFallback     notification.Channel
	SecondaryFallback   notification.Channel
	EscalationThreshold int
	UnconfirmedDelay    time.Duration
	UnconfirmedChannels []notification.Channel
	Workers             int
	RatePerSecond       float64
	Burst               int
}

// SettingsFromConfig converts the retry configuration section
func SettingsFromConfig(cfg config.RetryConfig) Settings {
	s := Settings{
		Interval:            cfg.Interval,
		PrimaryFallback:     notification.Channel(cfg.PrimaryFallback),
		SecondaryFallback:   notification.Channel(cfg.SecondaryFallback),
		EscalationThreshold: cfg.EscalationThreshold,
		UnconfirmedDelay:    cfg.UnconfirmedDelay,
		Workers:             cfg.Workers,
		RatePerSecond:       cfg.RatePerSecond,
		Burst:               cfg.Burst,
	}
	for _, ch := range cfg.UnconfirmedChannels {
		s.UnconfirmedChannels = append(s.UnconfirmedChannels, notification.Channel(ch))
	}
	return s
}

// Summary counts what a run did
type Summary struct {
	Candidates        int `json:"candidates"`
	Dispatched        int `json:"dispatched"`
	Succeeded         int `json:"succeeded"`
	Failed            int `json:"failed"`
	PreferenceSkipped int `json:"preference_skipped"`
	Missing           int `json:"missing"`
	Errors            int `json:"errors"`
}

type candidate struct {
	entry       notification.NotificationLog
	unconfirmed bool
}

// Scheduler escalates notifications whose latest attempt failed or went unconfirmed
type Scheduler struct {
	logs          notification.LogStore
	notifications notification.NotificationStore
	preferences   notification.PreferenceAccessor
	dispatcher    notification.Dispatcher
	settings      Settings
	limiter       *rate.Limiter
	metrics       *monitoring.Metrics
	logger        *zap.Logger
	now           func() time.Time
}

// NewScheduler creates a scheduler
func NewScheduler(
	logs notification.LogStore,
	notifications notification.NotificationStore,
	preferences notification.PreferenceAccessor,
	dispatcher notification.Dispatcher,
	settings Settings,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Scheduler {
	if settings.Workers <= 0 {
		settings.Workers = 1
	}
	limit := rate.Inf
	if settings.RatePerSecond > 0 {
		limit = rate.Limit(settings.RatePerSecond)
	}
	if settings.Burst <= 0 {
		settings.Burst = 1
	}
	return &Scheduler{
		logs:          logs,
		notifications: notifications,
		preferences:   preferences,
		dispatcher:    dispatcher,
		settings:      settings,
		limiter:       rate.NewLimiter(limit, settings.Burst),
		metrics:       metrics,
		logger:        logger,
		now:           time.Now,
	}
}

// Start runs the scheduler immediately and then once per interval until ctx is done
func (s *Scheduler) Start(ctx context.Context) {
	interval := s.settings.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		summary, err := s.RunOnce(ctx)
		if err != nil {
			s.logger.Error("Retry run failed", zap.Error(err))
		} else {
			s.logger.Info("Retry run completed",
				zap.Int("candidates", summary.Candidates),
				zap.Int("succeeded", summary.Succeeded),
				zap.Int("failed", summary.Failed),
				zap.Int("preference_skipped", summary.PreferenceSkipped),
				zap.Int("errors", summary.Errors))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single scheduler run. A log query failure aborts the run
// and is returned; failures processing one entry never affect the others.
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, error) {
	start := s.now()
	defer func() {
		s.metrics.RetryRunDuration.Observe(s.now().Sub(start).Seconds())
	}()

	candidates, err := s.collect(ctx, start)
	if err != nil {
		return Summary{}, err
	}
	s.metrics.RetryRunCandidates.Set(float64(len(candidates)))

	var (
		mu      sync.Mutex
		summary = Summary{Candidates: len(candidates)}
	)
	tally := func(f func(*Summary)) {
		mu.Lock()
		f(&summary)
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(s.settings.Workers)
	for _, c := range candidates {
		c := c
		g.Go(func() error {
			s.process(ctx, c, tally)
			return nil
		})
	}
	_ = g.Wait()

	return summary, nil
}

func (s *Scheduler) collect(ctx context.Context, now time.Time) ([]candidate, error) {
	failed, err := s.logs.Query(ctx, notification.LogFilter{
		Statuses:   []notification.LogStatus{notification.StatusFailed},
		LatestOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query failed notifications: %w", err)
	}

	candidates := make([]candidate, 0, len(failed))
	for _, e := range failed {
		candidates = append(candidates, candidate{entry: e})
	}

	if len(s.settings.UnconfirmedChannels) == 0 || s.settings.UnconfirmedDelay <= 0 {
		return candidates, nil
	}

	unconfirmed, err := s.logs.Query(ctx, notification.LogFilter{
		Statuses:      []notification.LogStatus{notification.StatusSent},
		Channels:      s.settings.UnconfirmedChannels,
		LatestOnly:    true,
		CreatedBefore: now.Add(-s.settings.UnconfirmedDelay),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query unconfirmed notifications: %w", err)
	}
	for _, e := range unconfirmed {
		candidates = append(candidates, candidate{entry: e, unconfirmed: true})
	}
	return candidates, nil
}

// TargetChannel picks the escalation channel for an entry with the given retry count
func (s *Scheduler) TargetChannel(retryCount int) notification.Channel {
	if retryCount < s.settings.EscalationThreshold {
		return s.settings.PrimaryFallback
	}
	return s.settings.SecondaryFallback
}

func (s *Scheduler) process(ctx context.Context, c candidate, tally func(func(*Summary))) {
	entry := c.entry
	target := s.TargetChannel(entry.RetryCount)
	nextRetry := entry.RetryCount + 1
	logger := s.logger.With(
		zap.String("notification_id", entry.NotificationID),
		zap.String("channel", string(target)),
		zap.String("fallback_from", string(entry.Channel)),
		zap.Int("retry_count", nextRetry),
		zap.Bool("unconfirmed", c.unconfirmed))

	n, err := s.notifications.GetNotification(ctx, entry.NotificationID)
	if errors.Is(err, notification.ErrNotFound) {
		logger.Debug("Originating notification missing, skipping")
		s.metrics.RecordRetry(string(target), "missing")
		tally(func(sum *Summary) { sum.Missing++ })
		return
	}
	if err != nil {
		logger.Error("Failed to load originating notification", zap.Error(err))
		s.metrics.RecordRetry(string(target), "error")
		tally(func(sum *Summary) { sum.Errors++ })
		return
	}

	if n.UserID != "" {
		enabled, err := s.preferences.Enabled(ctx, n.UserID, target)
		if err != nil {
			logger.Error("Preference lookup failed", zap.Error(err))
			s.metrics.RecordRetry(string(target), "error")
			tally(func(sum *Summary) { sum.Errors++ })
			return
		}
		if !enabled {
			s.skip(ctx, logger, c, n, target, nextRetry, tally)
			return
		}
	}

	recipient, err := s.recipientFor(ctx, n, target)
	if err != nil {
		logger.Error("Failed to resolve recipient", zap.Error(err))
		s.metrics.RecordRetry(string(target), "error")
		tally(func(sum *Summary) { sum.Errors++ })
		return
	}
	if recipient == "" {
		s.recordNoAddress(ctx, logger, c, n, target, nextRetry, tally)
		return
	}

	if err := s.limiter.Wait(ctx); err != nil {
		logger.Warn("Retry pacing interrupted", zap.Error(err))
		tally(func(sum *Summary) { sum.Errors++ })
		return
	}

	tally(func(sum *Summary) { sum.Dispatched++ })
	res, err := s.dispatcher.Send(ctx, notification.NotificationRequest{
		NotificationID: n.ID,
		Type:           n.Type,
		Channel:        target,
		Recipient:      recipient,
		UserID:         n.UserID,
		Variables:      escalationVariables(n),
		Metadata:       n.Metadata,
		RetryCount:     nextRetry,
		FallbackFrom:   entry.Channel,
	})
	switch {
	case err != nil:
		logger.Error("Escalation dispatch failed", zap.Error(err))
		s.metrics.RecordRetry(string(target), "error")
		tally(func(sum *Summary) { sum.Errors++ })
	case res.Success:
		logger.Info("Notification escalated")
		s.metrics.RecordRetry(string(target), "succeeded")
		tally(func(sum *Summary) { sum.Succeeded++ })
	case res.Error == notification.ErrChannelDisabled.Error():
		// preference changed between our check and dispatch; dispatch logs nothing for it
		s.skip(ctx, logger, c, n, target, nextRetry, tally)
	default:
		logger.Warn("Escalation attempt failed", zap.String("reason", res.Error))
		s.metrics.RecordRetry(string(target), "failed")
		tally(func(sum *Summary) { sum.Failed++ })
	}
}

func (s *Scheduler) skip(ctx context.Context, logger *zap.Logger, c candidate, n *notification.Notification, target notification.Channel, nextRetry int, tally func(func(*Summary))) {
	status := notification.StatusPreferenceSkipped
	audit := fmt.Sprintf("%s channel disabled, retry cancelled", target)
	if c.unconfirmed {
		status = notification.StatusNotSentPrefDisabled
		audit = fmt.Sprintf("%s channel disabled, resend cancelled", target)
	}

	err := s.logs.Append(ctx, &notification.NotificationLog{
		NotificationID:  n.ID,
		UserID:          n.UserID,
		Type:            n.Type,
		Channel:         target,
		Status:          status,
		RetryCount:      nextRetry,
		FallbackChannel: target,
		FallbackFrom:    c.entry.Channel,
		AuditMessage:    audit,
		CreatedAt:       s.now().UTC(),
	})
	if err != nil {
		logger.Error("Failed to record skipped escalation", zap.Error(err))
		s.metrics.RecordRetry(string(target), "error")
		tally(func(sum *Summary) { sum.Errors++ })
		return
	}

	logger.Info("Escalation skipped by user preference", zap.String("status", string(status)))
	s.metrics.RecordRetry(string(target), string(status))
	tally(func(sum *Summary) { sum.PreferenceSkipped++ })
}

func (s *Scheduler) recordNoAddress(ctx context.Context, logger *zap.Logger, c candidate, n *notification.Notification, target notification.Channel, nextRetry int, tally func(func(*Summary))) {
	reason := fmt.Sprintf("no %s address for user %s", target, n.UserID)
	err := s.logs.Append(ctx, &notification.NotificationLog{
		NotificationID:  n.ID,
		UserID:          n.UserID,
		Type:            n.Type,
		Channel:         target,
		Status:          notification.StatusFailed,
		RetryCount:      nextRetry,
		FallbackChannel: target,
		FallbackFrom:    c.entry.Channel,
		ErrorMessage:    reason,
		CreatedAt:       s.now().UTC(),
	})
	if err != nil {
		logger.Error("Failed to record unaddressable escalation", zap.Error(err))
		tally(func(sum *Summary) { sum.Errors++ })
		return
	}
	logger.Warn("Escalation has no recipient", zap.String("reason", reason))
	s.metrics.RecordRetry(string(target), "failed")
	tally(func(sum *Summary) { sum.Failed++ })
}

// recipientFor resolves the address used on target. The notification's own
// recipient is used when the target is the notification's original channel.
func (s *Scheduler) recipientFor(ctx context.Context, n *notification.Notification, target notification.Channel) (string, error) {
	if n.UserID != "" {
		contact, err := s.notifications.GetContact(ctx, n.UserID)
		switch {
		case err == nil:
			if addr := contact.AddressFor(target); addr != "" {
				return addr, nil
			}
		case !errors.Is(err, notification.ErrNotFound):
			return "", fmt.Errorf("failed to get contact: %w", err)
		}
	}
	if target == n.Channel {
		return n.Recipient, nil
	}
	return "", nil
}

func escalationVariables(n *notification.Notification) map[string]string {
	vars := make(map[string]string, len(n.Variables)+2)
	for k, v := range n.Variables {
		vars[k] = v
	}
	if _, ok := vars["message"]; !ok {
		vars["message"] = n.Message
	}
	if _, ok := vars["content"]; !ok {
		vars["content"] = n.Message
	}
	return vars
}
