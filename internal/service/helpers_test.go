package service

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/quill/internal/config"
	"github.com/ifuryst/quill/internal/models"
	"github.com/ifuryst/quill/internal/publication"
	"github.com/ifuryst/quill/internal/store"
)

var (
	testNow = time.Date(2024, 1, 1, 0, 2, 0, 0, time.UTC)

	publisherActor = publication.Actor{ID: "paula", Groups: []string{"/platform/publishers"}}
	managerActor   = publication.Actor{ID: "max", Groups: []string{"/platform/managers"}}
	authorActor    = publication.Actor{ID: "alice", Groups: []string{"/spaces/news"}}
)

func testAuthorization() config.AuthorizationConfig {
	return config.AuthorizationConfig{
		PublisherGroups: []string{"/platform/publishers"},
		ManagerGroups:   []string{"/platform/managers"},
		SystemActorID:   "quill",
	}
}

// recordingEmitter keeps emitted events in order.
type recordingEmitter struct {
	mu     sync.Mutex
	events []publication.Event
}

func (e *recordingEmitter) Emit(_ context.Context, event publication.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, event)
}

func (e *recordingEmitter) kinds() []publication.EventKind {
	e.mu.Lock()
	defer e.mu.Unlock()
	kinds := make([]publication.EventKind, 0, len(e.events))
	for _, ev := range e.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func (e *recordingEmitter) last(kind publication.EventKind) (publication.Event, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.events) - 1; i >= 0; i-- {
		if e.events[i].Kind == kind {
			return e.events[i], true
		}
	}
	return publication.Event{}, false
}

type fixture struct {
	stores  store.Stores
	events  *recordingEmitter
	service *PublicationService
	clock   *testClock
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	stores := store.NewMemoryStores()
	events := &recordingEmitter{}
	clock := &testClock{now: testNow}
	ids := 0
	svc := NewPublicationService(
		config.PublicationConfig{BaseURL: "https://intranet.example.com", Portal: "portal/intranet"},
		stores,
		NewCapabilities(testAuthorization()),
		events,
		zap.NewNop(),
		WithClock(clock.Now),
		WithIDGenerator(func() string {
			ids++
			return "gen-" + strconv.Itoa(ids)
		}),
	)
	return &fixture{stores: stores, events: events, service: svc, clock: clock}
}

// draft creates a DRAFT article authored by actor.
func (f *fixture) draft(t *testing.T, id, lang string, actor publication.Actor, targets ...string) *models.Article {
	t.Helper()
	a, err := f.service.CreateDraft(context.Background(), DraftInput{
		ID:      id,
		Lang:    lang,
		SpaceID: "news",
		Title:   "Title of " + id,
		Body:    "body",
		Targets: targets,
	}, actor)
	require.NoError(t, err)
	return a
}

func (f *fixture) target(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, f.stores.Targets.CreateTarget(context.Background(), &models.Target{Name: name}))
}

func (f *fixture) props(t *testing.T, ref publication.ArticleRef) store.PropertyRecord {
	t.Helper()
	rec, err := f.stores.Properties.Get(context.Background(), publication.ObjectTypeArticle, ref.ObjectID())
	require.NoError(t, err)
	return rec
}
