package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ifuryst/quill/internal/config"
	"github.com/ifuryst/quill/internal/publication"
	"github.com/ifuryst/quill/internal/service/publisher"
	"github.com/ifuryst/quill/internal/service/publisher/webhook"
)

// Emitter accepts domain events without waiting for their consumers.
type Emitter interface {
	Emit(ctx context.Context, event publication.Event)
}

// EventBus queues events on a bounded buffer and lets a few workers hand them
// to the publish manager. When the buffer is full the event is dropped and
// logged rather than blocking the transition that produced it.
type EventBus struct {
	logger  *zap.Logger
	manager *publisher.Manager
	workers int

	mu      sync.RWMutex
	queue   chan publication.Event
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Int64
}

func NewEventBus(cfg *config.EventsConfig, manager *publisher.Manager, logger *zap.Logger) *EventBus {
	size := cfg.BufferSize
	if size <= 0 {
		size = 256
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	return &EventBus{
		logger:  logger,
		manager: manager,
		workers: workers,
		queue:   make(chan publication.Event, size),
	}
}

// NewPublishManager registers one webhook publisher per configured webhook.
func NewPublishManager(cfg *config.EventsConfig, logger *zap.Logger) (*publisher.Manager, error) {
	manager := publisher.NewPublishManager(logger)
	for _, hook := range cfg.Webhooks {
		if err := manager.RegisterPublisher(webhook.NewWebhookPublisher(hook, logger)); err != nil {
			return nil, err
		}
	}
	return manager, nil
}

func (b *EventBus) Emit(_ context.Context, event publication.Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("Event bus stopped, dropping event",
			zap.String("event", string(event.Kind)),
			zap.String("article_id", event.ArticleID))
		return
	}

	select {
	case b.queue <- event:
	default:
		b.dropped.Add(1)
		b.logger.Warn("Event buffer full, dropping event",
			zap.String("event", string(event.Kind)),
			zap.String("article_id", event.ArticleID))
	}
}

// Start launches the workers. They stop once Stop has drained the queue.
func (b *EventBus) Start(ctx context.Context) {
	b.logger.Info("Starting event bus", zap.Int("workers", b.workers))
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			for event := range b.queue {
				b.dispatch(ctx, event)
			}
		}()
	}
}

// Stop refuses new events and waits for queued ones to be delivered.
func (b *EventBus) Stop() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	b.wg.Wait()
	b.logger.Info("Event bus stopped")
}

func (b *EventBus) dispatch(ctx context.Context, event publication.Event) {
	// a cancelled service context must not cancel deliveries already queued
	deliverCtx := context.WithoutCancel(ctx)
	results := b.manager.PublishToAll(deliverCtx, event)

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	if failed > 0 {
		b.logger.Warn("Event delivery incomplete",
			zap.String("event", string(event.Kind)),
			zap.String("event_id", event.ID),
			zap.Int("failed", failed),
			zap.Int("publishers", len(results)))
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (b *EventBus) Dropped() int64 {
	return b.dropped.Load()
}
