package publication

import "time"

// EventKind names a domain event.
type EventKind string

const (
	EventArticleCreated            EventKind = "ArticleCreated"
	EventArticleUpdated            EventKind = "ArticleUpdated"
	EventArticleScheduled          EventKind = "ArticleScheduled"
	EventArticleUnscheduled        EventKind = "ArticleUnscheduled"
	EventArticlePublished          EventKind = "ArticlePublished"
	EventArticleUnpublished        EventKind = "ArticleUnpublished"
	EventArticleUnpublishScheduled EventKind = "ArticleUnpublishScheduled"
	EventArticleDeleted            EventKind = "ArticleDeleted"
)

// Event is emitted after a transition has been persisted. Consumers receive it
// asynchronously; the emitter never waits for them.
type Event struct {
	ID        string    `json:"id"`
	Kind      EventKind `json:"kind"`
	ArticleID string    `json:"article_id"`
	Lang      string    `json:"lang,omitempty"`
	// Actor is the author for ArticlePublished and the acting user otherwise.
	Actor      string    `json:"actor"`
	URL        string    `json:"url,omitempty"`
	Date       time.Time `json:"date,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
