package publisher

import (
	"context"
	"time"

	"github.com/ifuryst/quill/internal/publication"
)

// PublishResult represents the result of delivering one event
type PublishResult struct {
	Success     bool      `json:"success"`
	StatusCode  int       `json:"status_code,omitempty"`
	Error       error     `json:"-"`
	PublishedAt time.Time `json:"published_at"`
}

// PublishConfig represents publisher specific configuration
type PublishConfig struct {
	Name    string            `json:"name"`
	Enabled bool              `json:"enabled"`
	Events  []string          `json:"events"`
	Config  map[string]string `json:"config"`
}

// Accepts reports whether events of kind should reach the publisher. An empty
// filter accepts every kind.
func (c PublishConfig) Accepts(kind publication.EventKind) bool {
	if len(c.Events) == 0 {
		return true
	}
	for _, e := range c.Events {
		if e == string(kind) {
			return true
		}
	}
	return false
}

// Publisher delivers domain events to one downstream collaborator, such as a
// feed, a notification sender or a search indexer.
type Publisher interface {
	GetName() string
	Config() PublishConfig
	Publish(ctx context.Context, event publication.Event) (*PublishResult, error)
}
