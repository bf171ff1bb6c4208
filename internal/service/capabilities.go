package service

import (
	"context"

	"github.com/ifuryst/quill/internal/config"
	"github.com/ifuryst/quill/internal/models"
	"github.com/ifuryst/quill/internal/publication"
)

// CapabilityCheck decides whether an actor may act on an article. Membership
// resolution happens upstream; the actor arrives with its groups.
type CapabilityCheck interface {
	CanTransition(ctx context.Context, actor publication.Actor, article *models.Article, action publication.Action) bool
	CanManageTargets(ctx context.Context, actor publication.Actor) bool
}

// Capabilities grants rights from configured groups. A group may also be
// scoped to a space as "publisher:/spaces/<id>".
type Capabilities struct {
	publisherGroups []string
	managerGroups   []string
}

func NewCapabilities(cfg config.AuthorizationConfig) *Capabilities {
	return &Capabilities{
		publisherGroups: cfg.PublisherGroups,
		managerGroups:   cfg.ManagerGroups,
	}
}

// CanPublish reports whether actor may publish in spaceScope. An empty scope
// only checks the global publisher groups.
func (c *Capabilities) CanPublish(actor publication.Actor, spaceScope string) bool {
	if actor.System {
		return true
	}
	if memberOfAny(actor, c.publisherGroups) {
		return true
	}
	return spaceScope != "" && actor.MemberOf("publisher:/spaces/"+spaceScope)
}

func (c *Capabilities) CanTransition(_ context.Context, actor publication.Actor, article *models.Article, action publication.Action) bool {
	if actor.System {
		return true
	}
	if actor.ID == "" {
		return false
	}

	isAuthor := article != nil && article.Author == actor.ID
	space := ""
	if article != nil {
		space = article.SpaceID
	}

	switch action {
	case publication.ActionCreate:
		return true
	case publication.ActionEdit:
		return isAuthor || c.CanPublish(actor, space)
	case publication.ActionDelete:
		// authors may drop their own unpublished work
		if isAuthor && article.PublicationState == publication.StateDraft {
			return true
		}
		return c.CanPublish(actor, space)
	default:
		return c.CanPublish(actor, space)
	}
}

func (c *Capabilities) CanManageTargets(_ context.Context, actor publication.Actor) bool {
	return actor.System || memberOfAny(actor, c.managerGroups)
}

func memberOfAny(actor publication.Actor, groups []string) bool {
	for _, g := range groups {
		if actor.MemberOf(g) {
			return true
		}
	}
	return false
}
