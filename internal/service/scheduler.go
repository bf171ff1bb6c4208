package service

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ifuryst/quill/internal/config"
	"github.com/ifuryst/quill/internal/models"
	"github.com/ifuryst/quill/internal/publication"
	"github.com/ifuryst/quill/internal/store"
)

// Reconciler is what the scheduler drives. PublicationService implements it.
type Reconciler interface {
	GetArticle(ctx context.Context, ref publication.ArticleRef) (*models.Article, error)
	PostNews(ctx context.Context, ref publication.ArticleRef, actor publication.Actor) (*models.Article, error)
	UnpublishNews(ctx context.Context, ref publication.ArticleRef, actor publication.Actor) (*models.Article, error)
}

// PassReport summarizes one pass of a tick.
type PassReport struct {
	Scanned   int    `json:"scanned"`
	Due       int    `json:"due"`
	Malformed int    `json:"malformed"`
	Applied   int    `json:"applied"`
	Failed    int    `json:"failed"`
	Truncated bool   `json:"truncated"`
	Abandoned string `json:"abandoned,omitempty"`
}

// TickReport summarizes one reconciliation tick.
type TickReport struct {
	Now        time.Time  `json:"now"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Skipped    bool       `json:"skipped"`
	Publish    PassReport `json:"publish"`
	Unpublish  PassReport `json:"unpublish"`
}

// Scheduler is the reconciliation job. Each tick scans the property records
// for due publish and unpublish schedules and applies them through the
// Reconciler. It holds no state between ticks besides the last report, so a
// missed or repeated tick only delays or re-evaluates settled records.
type Scheduler struct {
	config        *config.SchedulerConfig
	systemActorID string
	logger        *zap.Logger
	properties    store.PropertyStore
	reconciler    Reconciler
	recorder      Recorder
	clock         func() time.Time

	cron    *cron.Cron
	running atomic.Bool

	mu   sync.RWMutex
	last *TickReport
}

type SchedulerOption func(*Scheduler)

func WithSchedulerClock(clock func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.clock = clock
	}
}

// WithRecorder records per-record failures and tick metrics.
func WithRecorder(recorder Recorder) SchedulerOption {
	return func(s *Scheduler) {
		s.recorder = recorder
	}
}

func NewScheduler(
	cfg *config.SchedulerConfig,
	systemActorID string,
	properties store.PropertyStore,
	reconciler Reconciler,
	logger *zap.Logger,
	options ...SchedulerOption,
) *Scheduler {
	s := &Scheduler{
		config:        cfg,
		systemActorID: systemActorID,
		logger:        logger,
		properties:    properties,
		reconciler:    reconciler,
		clock:         time.Now,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.IsEnabled() {
		s.logger.Info("Scheduler is disabled")
		return nil
	}

	cronLog := cronLogger{logger: s.logger.Named("cron")}
	s.cron = cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	if _, err := s.cron.AddFunc(s.config.Cron, func() {
		s.Tick(ctx, s.clock())
	}); err != nil {
		s.logger.Error("Invalid scheduler cron expression", zap.String("cron", s.config.Cron), zap.Error(err))
		return fmt.Errorf("invalid cron expression %q: %w", s.config.Cron, err)
	}

	s.logger.Info("Starting scheduler", zap.String("cron", s.config.Cron))
	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler shutdown completed")
}

// NextRun returns the next planned tick, zero when the scheduler is not running.
func (s *Scheduler) NextRun() time.Time {
	if s.cron == nil {
		return time.Time{}
	}
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Running reports whether a tick is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// LastReport returns the report of the last completed tick, if any.
func (s *Scheduler) LastReport() *TickReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return nil
	}
	r := *s.last
	return &r
}

// Tick runs both passes once with now as the reference instant. A tick
// started while another is still running returns immediately with Skipped set.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) TickReport {
	report := TickReport{Now: now.UTC(), StartedAt: time.Now()}

	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("Previous reconciliation tick still running, skipping")
		report.Skipped = true
		report.FinishedAt = time.Now()
		return report
	}
	defer s.running.Store(false)

	if s.config.TickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.TickTimeout)
		defer cancel()
	}

	s.logger.Debug("Running reconciliation tick", zap.Time("now", report.Now))

	// The passes are independent; neither outcome affects the other.
	report.Publish = s.runPass(ctx, publishPass(s.reconciler), report.Now)
	report.Unpublish = s.runPass(ctx, unpublishPass(s.reconciler), report.Now)
	report.FinishedAt = time.Now()

	duration := report.FinishedAt.Sub(report.StartedAt)
	s.logger.Info("Reconciliation tick completed",
		zap.Duration("duration", duration),
		zap.Int("published", report.Publish.Applied),
		zap.Int("unpublished", report.Unpublish.Applied),
		zap.Int("failed", report.Publish.Failed+report.Unpublish.Failed))
	s.recordTick(report, duration)

	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()

	return report
}

// pass describes one kind of due transition.
type pass struct {
	name       string
	action     publication.Action
	filterName string
	filterVal  string
	dateName   string
	apply      func(ctx context.Context, ref publication.ArticleRef, actor publication.Actor) (*models.Article, error)
}

func publishPass(r Reconciler) pass {
	return pass{
		name:       "publish",
		action:     publication.ActionPublish,
		filterName: publication.PropPublicationState,
		filterVal:  string(publication.StateStaged),
		dateName:   publication.PropSchedulePostDate,
		apply:      r.PostNews,
	}
}

func unpublishPass(r Reconciler) pass {
	return pass{
		name:       "unpublish",
		action:     publication.ActionUnpublish,
		filterName: publication.PropUnpublishScheduled,
		filterVal:  publication.UnpublishScheduledTrue,
		dateName:   publication.PropUnpublishScheduledDate,
		apply:      r.UnpublishNews,
	}
}

func (s *Scheduler) runPass(ctx context.Context, p pass, now time.Time) PassReport {
	var report PassReport

	due, err := s.collect(ctx, p, now, &report)
	if err != nil {
		// retried on the next tick
		report.Abandoned = err.Error()
		s.logger.Error("Reconciliation pass abandoned",
			zap.String("pass", p.name),
			zap.Error(err))
		s.recordError("Reconciliation pass abandoned", err, publication.ArticleRef{}, p.action)
		return report
	}
	report.Due = len(due)

	for _, record := range due {
		if ctx.Err() != nil {
			s.logger.Warn("Reconciliation tick timed out, leaving remaining records to the next tick",
				zap.String("pass", p.name))
			break
		}
		if err := s.process(ctx, p, record); err != nil {
			report.Failed++
			continue
		}
		report.Applied++
	}

	return report
}

// collect pages through the matching records in windows of batch_size and
// keeps only the due ones. Records that are not due yet are walked past, so
// max_records bounds the work of one pass and never hides a due record
// behind future ones.
func (s *Scheduler) collect(ctx context.Context, p pass, now time.Time, report *PassReport) ([]store.PropertyRecord, error) {
	batch := s.config.BatchSize
	if batch <= 0 {
		batch = 100
	}
	limit := s.config.MaxRecords
	if limit <= 0 {
		limit = batch
	}

	var due []store.PropertyRecord
	for offset := 0; ; offset += batch {
		page, err := s.properties.Find(ctx, store.PropertyQuery{
			ObjectType: publication.ObjectTypeArticle,
			Name:       p.filterName,
			Value:      p.filterVal,
			Page:       store.Window(offset, batch),
		})
		if err != nil {
			return nil, err
		}

		for _, record := range page {
			report.Scanned++
			value, _ := record.Get(p.dateName)
			ok, err := publication.IsDueValue(value, now)
			if err != nil {
				report.Malformed++
				s.logger.Warn("Skipping record with unreadable schedule date",
					zap.String("pass", p.name),
					zap.String("object_id", record.ObjectID),
					zap.String("value", value),
					zap.Error(err))
				continue
			}
			if !ok {
				continue
			}
			due = append(due, record)
			if len(due) >= limit {
				report.Truncated = true
				s.logger.Warn("Reconciliation pass hit the record cap, the rest waits for the next tick",
					zap.String("pass", p.name),
					zap.Int("max_records", limit))
				return due, nil
			}
		}
		if len(page) < batch {
			return due, nil
		}
	}
}

// process applies one due record. Any failure, panics included, stays with
// the record.
func (s *Scheduler) process(ctx context.Context, p pass, record store.PropertyRecord) (err error) {
	ref, err := publication.ParseArticleRef(record.ObjectID)
	if err != nil {
		s.failRecord(p, ref, record.ObjectID, err)
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while reconciling %s: %v", record.ObjectID, r)
			s.logger.Error("Recovered from panic during reconciliation",
				zap.String("pass", p.name),
				zap.String("object_id", record.ObjectID),
				zap.Any("panic", r))
			s.recordError("Reconciliation panic", err, ref, p.action, WithStackTrace(string(debug.Stack())))
		}
	}()

	article, err := s.reconciler.GetArticle(ctx, ref)
	if err != nil {
		s.failRecord(p, ref, record.ObjectID, err)
		return err
	}

	actor := publication.SystemActor(article.Author)
	if actor.ID == "" {
		actor.ID = s.systemActorID
	}

	if _, err := p.apply(ctx, ref, actor); err != nil {
		s.failRecord(p, ref, record.ObjectID, err)
		return err
	}

	s.logger.Info("Scheduled transition applied",
		zap.String("pass", p.name),
		zap.String("object_id", record.ObjectID),
		zap.String("actor", actor.ID))
	return nil
}

func (s *Scheduler) failRecord(p pass, ref publication.ArticleRef, objectID string, err error) {
	level := zap.ErrorLevel
	// already settled by someone else, usually a manual action racing the tick
	if errors.Is(err, publication.ErrInvalidStateTransition) || errors.Is(err, publication.ErrNotFound) {
		level = zap.WarnLevel
	}
	s.logger.Log(level, "Failed to apply scheduled transition",
		zap.String("pass", p.name),
		zap.String("object_id", objectID),
		zap.Error(err))
	s.recordError("Scheduled transition failed", err, ref, p.action)
}

func (s *Scheduler) recordError(title string, err error, ref publication.ArticleRef, action publication.Action, options ...ErrorLogOption) {
	if s.recorder == nil {
		return
	}
	options = append(options, WithAction(action))
	if ref.ID != "" {
		options = append(options, WithArticle(ref))
	}
	if recErr := s.recorder.RecordError("ERROR", "scheduler", title, err.Error(), options...); recErr != nil {
		s.logger.Warn("Failed to record error log", zap.Error(recErr))
	}
}

func (s *Scheduler) recordTick(report TickReport, duration time.Duration) {
	if s.recorder == nil {
		return
	}
	samples := []struct {
		name  string
		value float64
	}{
		{MetricTick, float64(duration.Milliseconds())},
		{MetricPublished, float64(report.Publish.Applied)},
		{MetricUnpublished, float64(report.Unpublish.Applied)},
		{MetricFailed, float64(report.Publish.Failed + report.Unpublish.Failed)},
		{MetricMalformed, float64(report.Publish.Malformed + report.Unpublish.Malformed)},
	}
	for _, sample := range samples {
		if err := s.recorder.RecordMetric(sample.name, "gauge", sample.value, nil); err != nil {
			s.logger.Warn("Failed to record metric", zap.String("metric", sample.name), zap.Error(err))
			return
		}
	}
	for name, p := range map[string]PassReport{"publish": report.Publish, "unpublish": report.Unpublish} {
		if p.Abandoned != "" {
			_ = s.recorder.RecordMetric(MetricPassAbandoned, "counter", 1, map[string]interface{}{"pass": name})
		}
	}
}

// cronLogger routes the cron engine's logs to zap.
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
