package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/quill/internal/config"
	"github.com/ifuryst/quill/internal/publication"
	"github.com/ifuryst/quill/internal/service/publisher"
)

type fakePublisher struct {
	name   string
	config publisher.PublishConfig
	err    error
	block  chan struct{}

	mu       sync.Mutex
	received []publication.Event
}

func (p *fakePublisher) GetName() string { return p.name }

func (p *fakePublisher) Config() publisher.PublishConfig { return p.config }

func (p *fakePublisher) Publish(_ context.Context, event publication.Event) (*publisher.PublishResult, error) {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	p.received = append(p.received, event)
	p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	return &publisher.PublishResult{Success: true, PublishedAt: time.Now()}, nil
}

func (p *fakePublisher) events() []publication.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publication.Event(nil), p.received...)
}

func TestEventBus_DeliversToEveryPublisher(t *testing.T) {
	manager := publisher.NewPublishManager(zap.NewNop())
	all := &fakePublisher{name: "all", config: publisher.PublishConfig{Enabled: true}}
	published := &fakePublisher{name: "published", config: publisher.PublishConfig{Enabled: true, Events: []string{"ArticlePublished"}}}
	broken := &fakePublisher{name: "broken", config: publisher.PublishConfig{Enabled: true}, err: errors.New("down")}
	disabled := &fakePublisher{name: "disabled", config: publisher.PublishConfig{}}
	for _, p := range []*fakePublisher{all, published, broken, disabled} {
		require.NoError(t, manager.RegisterPublisher(p))
	}
	assert.Error(t, manager.RegisterPublisher(all))

	bus := NewEventBus(&config.EventsConfig{BufferSize: 8, Workers: 1}, manager, zap.NewNop())
	bus.Start(context.Background())

	bus.Emit(context.Background(), publication.Event{Kind: publication.EventArticleScheduled, ArticleID: "A1"})
	bus.Emit(context.Background(), publication.Event{Kind: publication.EventArticlePublished, ArticleID: "A1"})
	bus.Stop()

	got := all.events()
	require.Len(t, got, 2)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].OccurredAt.IsZero())
	assert.Equal(t, publication.EventArticlePublished, got[1].Kind)

	require.Len(t, published.events(), 1)
	assert.Equal(t, publication.EventArticlePublished, published.events()[0].Kind)
	assert.Len(t, broken.events(), 2)
	assert.Empty(t, disabled.events())

	// stopped bus drops silently
	bus.Emit(context.Background(), publication.Event{Kind: publication.EventArticleDeleted})
	assert.Len(t, all.events(), 2)
}

func TestEventBus_DropsWhenFull(t *testing.T) {
	manager := publisher.NewPublishManager(zap.NewNop())
	slow := &fakePublisher{name: "slow", config: publisher.PublishConfig{Enabled: true}, block: make(chan struct{})}
	require.NoError(t, manager.RegisterPublisher(slow))

	bus := NewEventBus(&config.EventsConfig{BufferSize: 1, Workers: 1}, manager, zap.NewNop())

	// nothing consumes yet, so the second event overflows the buffer
	bus.Emit(context.Background(), publication.Event{Kind: publication.EventArticleCreated, ArticleID: "A1"})
	bus.Emit(context.Background(), publication.Event{Kind: publication.EventArticleCreated, ArticleID: "A2"})
	assert.Equal(t, int64(1), bus.Dropped())

	bus.Start(context.Background())
	close(slow.block)
	bus.Stop()

	got := slow.events()
	require.Len(t, got, 1)
	assert.Equal(t, "A1", got[0].ArticleID)
}

func TestNewPublishManager_RegistersWebhooks(t *testing.T) {
	var (
		mu   sync.Mutex
		hits int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &config.EventsConfig{
		BufferSize: 4,
		Workers:    2,
		Webhooks: []config.WebhookConfig{
			{Name: "feed", URL: srv.URL, Timeout: time.Second},
			{Name: "search", URL: srv.URL, Timeout: time.Second, Events: []string{"ArticleDeleted"}},
		},
	}
	manager, err := NewPublishManager(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, manager.GetAvailablePublishers(), 2)

	bus := NewEventBus(cfg, manager, zap.NewNop())
	bus.Start(context.Background())
	bus.Emit(context.Background(), publication.Event{Kind: publication.EventArticlePublished, ArticleID: "A1"})
	bus.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, hits)

	_, err = NewPublishManager(&config.EventsConfig{Webhooks: []config.WebhookConfig{{Name: "x", URL: srv.URL}, {Name: "x", URL: srv.URL}}}, zap.NewNop())
	assert.Error(t, err)
}
