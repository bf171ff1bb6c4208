package publisher

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/quill/internal/publication"
)

// Manager keeps the registered publishers and fans events out to them
type Manager struct {
	mu         sync.RWMutex
	publishers map[string]Publisher
	logger     *zap.Logger
}

func NewPublishManager(logger *zap.Logger) *Manager {
	return &Manager{
		publishers: make(map[string]Publisher),
		logger:     logger,
	}
}

func (m *Manager) RegisterPublisher(p Publisher) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := p.GetName()
	if _, exists := m.publishers[name]; exists {
		return fmt.Errorf("publisher %s already registered", name)
	}

	m.publishers[name] = p
	m.logger.Info("Publisher registered", zap.String("publisher", name))
	return nil
}

func (m *Manager) GetPublisher(name string) (Publisher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, exists := m.publishers[name]
	if !exists {
		return nil, fmt.Errorf("publisher %s not found", name)
	}
	return p, nil
}

// GetAvailablePublishers returns the publishers ordered by name
func (m *Manager) GetAvailablePublishers() []Publisher {
	m.mu.RLock()
	defer m.mu.RUnlock()

	publishers := make([]Publisher, 0, len(m.publishers))
	for _, p := range m.publishers {
		publishers = append(publishers, p)
	}
	sort.Slice(publishers, func(i, j int) bool {
		return publishers[i].GetName() < publishers[j].GetName()
	})
	return publishers
}

// PublishToAll delivers event to every enabled publisher accepting its kind.
// A failing publisher never stops the others.
func (m *Manager) PublishToAll(ctx context.Context, event publication.Event) map[string]*PublishResult {
	results := make(map[string]*PublishResult)

	for _, p := range m.GetAvailablePublishers() {
		name := p.GetName()
		cfg := p.Config()

		if !cfg.Enabled {
			m.logger.Debug("Publisher disabled, skipping", zap.String("publisher", name))
			continue
		}
		if !cfg.Accepts(event.Kind) {
			continue
		}

		result, err := p.Publish(ctx, event)
		if err != nil {
			m.logger.Error("Failed to publish event",
				zap.String("publisher", name),
				zap.String("event", string(event.Kind)),
				zap.String("article_id", event.ArticleID),
				zap.Error(err))
			results[name] = &PublishResult{
				Success:     false,
				Error:       err,
				PublishedAt: time.Now(),
			}
			continue
		}

		results[name] = result

		m.logger.Debug("Event published",
			zap.String("publisher", name),
			zap.String("event", string(event.Kind)),
			zap.Bool("success", result.Success))
	}

	return results
}
