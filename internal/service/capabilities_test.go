package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ifuryst/quill/internal/models"
	"github.com/ifuryst/quill/internal/publication"
)

func TestCapabilities_CanTransition(t *testing.T) {
	caps := NewCapabilities(testAuthorization())
	draft := &models.Article{ID: "A1", Author: "alice", SpaceID: "news", PublicationState: publication.StateDraft}
	live := &models.Article{ID: "A2", Author: "alice", SpaceID: "news", PublicationState: publication.StatePublished}
	spacePublisher := publication.Actor{ID: "sam", Groups: []string{"publisher:/spaces/news"}}
	otherSpace := publication.Actor{ID: "olga", Groups: []string{"publisher:/spaces/sports"}}

	tests := []struct {
		name    string
		actor   publication.Actor
		article *models.Article
		action  publication.Action
		want    bool
	}{
		{"AnyoneMayCreate", authorActor, nil, publication.ActionCreate, true},
		{"AnonymousMayNotCreate", publication.Actor{}, nil, publication.ActionCreate, false},
		{"AuthorMayEdit", authorActor, live, publication.ActionEdit, true},
		{"StrangerMayNotEdit", otherSpace, live, publication.ActionEdit, false},
		{"AuthorMayNotPublish", authorActor, draft, publication.ActionPublish, false},
		{"PublisherMayPublish", publisherActor, draft, publication.ActionPublish, true},
		{"SpacePublisherMayPublishInSpace", spacePublisher, draft, publication.ActionSchedule, true},
		{"SpacePublisherMayNotPublishElsewhere", otherSpace, draft, publication.ActionSchedule, false},
		{"AuthorMayDeleteOwnDraft", authorActor, draft, publication.ActionDelete, true},
		{"AuthorMayNotDeletePublished", authorActor, live, publication.ActionDelete, false},
		{"PublisherMayUnpublish", publisherActor, live, publication.ActionUnpublish, true},
		{"SystemActorMayDoAnything", publication.SystemActor(""), live, publication.ActionUnpublish, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, caps.CanTransition(context.Background(), tt.actor, tt.article, tt.action))
		})
	}
}

func TestCapabilities_CanManageTargets(t *testing.T) {
	caps := NewCapabilities(testAuthorization())
	ctx := context.Background()

	assert.True(t, caps.CanManageTargets(ctx, managerActor))
	assert.True(t, caps.CanManageTargets(ctx, publication.SystemActor("quill")))
	assert.False(t, caps.CanManageTargets(ctx, publisherActor))
	assert.False(t, caps.CanPublish(authorActor, ""))
}
