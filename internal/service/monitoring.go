package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/ifuryst/quill/internal/models"
	"github.com/ifuryst/quill/internal/publication"
	"github.com/ifuryst/quill/internal/store"
)

// Metric names recorded by the reconciliation tick.
const (
	MetricTick          = "reconcile.tick_duration_ms"
	MetricPublished     = "reconcile.published"
	MetricUnpublished   = "reconcile.unpublished"
	MetricFailed        = "reconcile.failed"
	MetricMalformed     = "reconcile.malformed"
	MetricPassAbandoned = "reconcile.pass_abandoned"
)

// Recorder is the part of MonitoringService the scheduler writes to.
type Recorder interface {
	RecordError(level, source, title, message string, options ...ErrorLogOption) error
	RecordMetric(name, metricType string, value float64, tags map[string]interface{}) error
}

type MonitoringService struct {
	db     *gorm.DB
	stores store.Stores
	logger *zap.Logger
	now    func() time.Time
}

func NewMonitoringService(db *gorm.DB, stores store.Stores, logger *zap.Logger) *MonitoringService {
	return &MonitoringService{
		db:     db,
		stores: stores,
		logger: logger,
		now:    time.Now,
	}
}

// RecordError stores an error log row
func (m *MonitoringService) RecordError(level, source, title, message string, options ...ErrorLogOption) error {
	errorLog := &models.ErrorLog{
		Level:   level,
		Source:  source,
		Title:   title,
		Message: message,
	}

	for _, option := range options {
		option(errorLog)
	}

	// a record failing on every tick keeps one open row
	if errorLog.ArticleID != "" {
		res := m.db.Model(&models.ErrorLog{}).
			Where("source = ? AND article_id = ? AND action = ? AND title = ? AND resolved = ?",
				errorLog.Source, errorLog.ArticleID, errorLog.Action, errorLog.Title, false).
			Updates(map[string]interface{}{
				"level":       errorLog.Level,
				"message":     errorLog.Message,
				"stack_trace": errorLog.StackTrace,
				"occurrences": gorm.Expr("occurrences + 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
	}

	errorLog.Occurrences = 1
	return m.db.Create(errorLog).Error
}

// ErrorLogOption sets optional error log fields
type ErrorLogOption func(*models.ErrorLog)

// WithArticle sets the article the error is about
func WithArticle(ref publication.ArticleRef) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.ArticleID = ref.ObjectID()
	}
}

// WithAction sets the attempted action
func WithAction(action publication.Action) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.Action = string(action)
	}
}

// WithStackTrace sets the stack trace
func WithStackTrace(stackTrace string) ErrorLogOption {
	return func(e *models.ErrorLog) {
		e.StackTrace = stackTrace
	}
}

// WithContext attaches a JSON context
func WithContext(context map[string]interface{}) ErrorLogOption {
	return func(e *models.ErrorLog) {
		if contextBytes, err := json.Marshal(context); err == nil {
			e.Context = string(contextBytes)
		}
	}
}

// RecordMetric stores one metric sample
func (m *MonitoringService) RecordMetric(name, metricType string, value float64, tags map[string]interface{}) error {
	var tagsJSON string
	if tags != nil {
		if tagsBytes, err := json.Marshal(tags); err == nil {
			tagsJSON = string(tagsBytes)
		}
	}

	metric := &models.MetricsSample{
		MetricName: name,
		MetricType: metricType,
		Value:      value,
		Tags:       tagsJSON,
		Timestamp:  m.now(),
	}

	return m.db.Create(metric).Error
}

// UpdatePublicationSummary refreshes the single dashboard summary row
func (m *MonitoringService) UpdatePublicationSummary(ctx context.Context) error {
	now := m.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	byState, err := m.stores.Articles.CountByState(ctx)
	if err != nil {
		return fmt.Errorf("failed to count articles: %w", err)
	}
	staged, err := m.stores.Properties.Count(ctx, publication.ObjectTypeArticle, publication.PropPublicationState, string(publication.StateStaged))
	if err != nil {
		return fmt.Errorf("failed to count scheduled articles: %w", err)
	}
	pendingUnpublish, err := m.stores.Properties.Count(ctx, publication.ObjectTypeArticle, publication.PropUnpublishScheduled, publication.UnpublishScheduledTrue)
	if err != nil {
		return fmt.Errorf("failed to count unpublish schedules: %w", err)
	}

	db := m.db.WithContext(ctx)

	var publishedToday float64
	if err := db.Model(&models.MetricsSample{}).
		Select("COALESCE(SUM(value), 0)").
		Where("metric_name = ? AND timestamp >= ?", MetricPublished, today).
		Scan(&publishedToday).Error; err != nil {
		return fmt.Errorf("failed to sum published metrics: %w", err)
	}

	var failedToday, unresolved int64
	if err := db.Model(&models.ErrorLog{}).
		Where("source = ? AND updated_at >= ?", "scheduler", today).
		Count(&failedToday).Error; err != nil {
		return err
	}
	if err := db.Model(&models.ErrorLog{}).Where("resolved = ?", false).Count(&unresolved).Error; err != nil {
		return err
	}

	summaryData := models.PublicationSummary{
		ID:                     1,
		DraftCount:             int(byState[publication.StateDraft]),
		StagedCount:            int(staged),
		PublishedCount:         int(byState[publication.StatePublished]),
		UnpublishedCount:       int(byState[publication.StateUnpublished]),
		PendingUnpublishCount:  int(pendingUnpublish),
		PublishedToday:         int(publishedToday),
		FailedTransitionsToday: int(failedToday),
		UnresolvedErrorsCount:  int(unresolved),
		LastTickTime:           m.lastSample(ctx, MetricTick, false),
		LastPublishTime:        m.lastSample(ctx, MetricPublished, true),
	}

	return db.Save(&summaryData).Error
}

// lastSample returns the time of the latest sample of name, optionally only
// counting positive values.
func (m *MonitoringService) lastSample(ctx context.Context, name string, positive bool) *time.Time {
	q := m.db.WithContext(ctx).Where("metric_name = ?", name)
	if positive {
		q = q.Where("value > 0")
	}
	var sample models.MetricsSample
	if err := q.Order("timestamp desc").First(&sample).Error; err != nil {
		return nil
	}
	return &sample.Timestamp
}

// GetPublicationSummary returns the dashboard summary, computing it on first use
func (m *MonitoringService) GetPublicationSummary(ctx context.Context) (*models.PublicationSummary, error) {
	var summary models.PublicationSummary
	err := m.db.WithContext(ctx).First(&summary).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := m.UpdatePublicationSummary(ctx); err != nil {
			return nil, err
		}
		err = m.db.WithContext(ctx).First(&summary).Error
	}
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// GetRecentErrors returns the latest error logs, optionally only unresolved ones
func (m *MonitoringService) GetRecentErrors(ctx context.Context, limit int, unresolvedOnly bool) ([]models.ErrorLog, error) {
	if limit <= 0 {
		limit = 50
	}
	q := m.db.WithContext(ctx).Order("updated_at desc, id desc").Limit(limit)
	if unresolvedOnly {
		q = q.Where("resolved = ?", false)
	}
	var logs []models.ErrorLog
	err := q.Find(&logs).Error
	return logs, err
}

// ResolveError marks an error log as handled
func (m *MonitoringService) ResolveError(ctx context.Context, id uint) error {
	now := m.now()
	res := m.db.WithContext(ctx).Model(&models.ErrorLog{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"resolved": true, "resolved_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("error log %d: %w", id, publication.ErrNotFound)
	}
	return nil
}

// CleanupOldData drops metric samples and resolved errors older than daysToKeep
func (m *MonitoringService) CleanupOldData(ctx context.Context, daysToKeep int) error {
	cutoffDate := m.now().AddDate(0, 0, -daysToKeep)
	db := m.db.WithContext(ctx)

	if err := db.Where("timestamp < ?", cutoffDate).Delete(&models.MetricsSample{}).Error; err != nil {
		return fmt.Errorf("failed to cleanup metrics samples: %w", err)
	}

	if err := db.Where("created_at < ? AND resolved = ?", cutoffDate, true).Delete(&models.ErrorLog{}).Error; err != nil {
		return fmt.Errorf("failed to cleanup resolved errors: %w", err)
	}

	return nil
}
