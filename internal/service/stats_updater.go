package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// summaryMaintainer is the part of MonitoringService the updater drives.
type summaryMaintainer interface {
	UpdatePublicationSummary(ctx context.Context) error
	CleanupOldData(ctx context.Context, daysToKeep int) error
}

// StatsUpdater refreshes the dashboard summary on an interval and prunes
// monitoring rows older than the retention window once a day.
type StatsUpdater struct {
	monitoring    summaryMaintainer
	logger        *zap.Logger
	interval      time.Duration
	retentionDays int
	now           func() time.Time

	lastCleanup time.Time
	stop        chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewStatsUpdater(monitoring summaryMaintainer, logger *zap.Logger, interval time.Duration, retentionDays int) *StatsUpdater {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &StatsUpdater{
		monitoring:    monitoring,
		logger:        logger,
		interval:      interval,
		retentionDays: retentionDays,
		now:           time.Now,
		stop:          make(chan struct{}),
	}
}

// Start refreshes once right away, then on every interval until Stop or ctx ends.
func (s *StatsUpdater) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("Starting stats updater", zap.Duration("interval", s.interval))

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.Refresh(ctx)
		for {
			select {
			case <-s.stop:
				s.logger.Info("Stats updater stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Stats updater stopped due to context cancellation")
				return
			case <-ticker.C:
				s.Refresh(ctx)
			}
		}
	}()
}

// Stop ends the loop and waits for a running refresh. It is safe to call more than once.
func (s *StatsUpdater) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// Refresh recomputes the summary and prunes old rows when a day has passed
// since the last pruning. Failures are logged; the next interval retries.
func (s *StatsUpdater) Refresh(ctx context.Context) {
	if err := s.monitoring.UpdatePublicationSummary(ctx); err != nil {
		s.logger.Error("Failed to update publication summary", zap.Error(err))
	}

	if s.retentionDays <= 0 {
		return
	}
	now := s.now()
	if !s.lastCleanup.IsZero() && now.Sub(s.lastCleanup) < 24*time.Hour {
		return
	}
	if err := s.monitoring.CleanupOldData(ctx, s.retentionDays); err != nil {
		s.logger.Error("Failed to cleanup old monitoring data",
			zap.Int("retention_days", s.retentionDays),
			zap.Error(err))
		return
	}
	s.lastCleanup = now
	s.logger.Debug("Old monitoring data pruned", zap.Int("retention_days", s.retentionDays))
}
