package publication

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArticleRef(t *testing.T) {
	tests := []struct {
		objectID string
		want     ArticleRef
	}{
		{"a1", ArticleRef{ID: "a1"}},
		{"a1/fr", ArticleRef{ID: "a1", Lang: "fr"}},
	}

	for _, tt := range tests {
		t.Run(tt.objectID, func(t *testing.T) {
			ref, err := ParseArticleRef(tt.objectID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ref)
			assert.Equal(t, tt.objectID, ref.ObjectID())
		})
	}

	_, err := ParseArticleRef("/fr")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestScheduleProperties(t *testing.T) {
	at := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)

	assert.Equal(t, map[string]string{
		PropPublicationState: "staged",
		PropSchedulePostDate: "2024-01-01T00:01:00.000Z",
	}, ScheduleProperties(at))

	assert.Equal(t, map[string]string{
		PropUnpublishScheduled:     "true",
		PropUnpublishScheduledDate: "2024-01-01T00:01:00.000Z",
	}, UnpublishProperties(at))
}

func TestActor(t *testing.T) {
	a := Actor{ID: "alice", Groups: []string{"/editors", "publisher:/spaces/news"}}
	assert.True(t, a.MemberOf("/editors"))
	assert.False(t, a.MemberOf("/admins"))

	sys := SystemActor("bob")
	assert.True(t, sys.System)
	assert.Equal(t, "bob", sys.ID)
}

func TestPermissionError(t *testing.T) {
	err := error(&PermissionError{Actor: "alice", Action: ActionPublish})
	assert.True(t, errors.Is(err, ErrPermissionDenied))
	assert.Equal(t, `permission denied: actor "alice" may not publish`, err.Error())
}
