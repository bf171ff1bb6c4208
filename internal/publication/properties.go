package publication

import (
	"fmt"
	"strings"
	"time"
)

// Property record scheme. Records live under ObjectTypeArticle keyed by ArticleRef.ObjectID.
const (
	ObjectTypeArticle = "newsPage"

	PropPublicationState       = "PUBLICATION_STATE"
	PropSchedulePostDate       = "SCHEDULE_POST_DATE"
	PropUnpublishScheduled     = "UNPUBLISH_SCHEDULED"
	PropUnpublishScheduledDate = "UNPUBLISH_SCHEDULED_DATE"

	UnpublishScheduledTrue = "true"
)

// ScheduleProperties are written when an article is staged.
func ScheduleProperties(at time.Time) map[string]string {
	return map[string]string{
		PropPublicationState: string(StateStaged),
		PropSchedulePostDate: FormatTimestamp(at),
	}
}

// UnpublishProperties are written when an unpublish is scheduled.
func UnpublishProperties(at time.Time) map[string]string {
	return map[string]string{
		PropUnpublishScheduled:     UnpublishScheduledTrue,
		PropUnpublishScheduledDate: FormatTimestamp(at),
	}
}

var (
	ScheduleKeys  = []string{PropPublicationState, PropSchedulePostDate}
	UnpublishKeys = []string{PropUnpublishScheduled, PropUnpublishScheduledDate}
)

// ArticleRef identifies one language variant of an article. An empty Lang is
// the base variant.
type ArticleRef struct {
	ID   string
	Lang string
}

func (r ArticleRef) String() string {
	return r.ObjectID()
}

// ObjectID is the property record object id of the variant.
func (r ArticleRef) ObjectID() string {
	if r.Lang == "" {
		return r.ID
	}
	return r.ID + "/" + r.Lang
}

// ParseArticleRef reverses ObjectID.
func ParseArticleRef(objectID string) (ArticleRef, error) {
	id, lang, _ := strings.Cut(objectID, "/")
	if strings.TrimSpace(id) == "" {
		return ArticleRef{}, fmt.Errorf("%w: empty article reference %q", ErrNotFound, objectID)
	}
	return ArticleRef{ID: id, Lang: lang}, nil
}
