// Package store holds the persistence contracts the publication service and the
// reconciliation scheduler depend on, with gorm and in-memory implementations.
package store

import (
	"context"
	"fmt"

	"github.com/ifuryst/quill/internal/models"
	"github.com/ifuryst/quill/internal/publication"
)

// Page is a pagination window. A zero Limit is only valid together with
// Unbounded, so "no limit" is always explicit.
type Page struct {
	Offset    int
	Limit     int
	Unbounded bool
}

// Window returns a bounded page.
func Window(offset, limit int) Page {
	return Page{Offset: offset, Limit: limit}
}

// Unbounded returns a page without limit.
func Unbounded() Page {
	return Page{Unbounded: true}
}

func (p Page) Validate() error {
	if p.Offset < 0 {
		return fmt.Errorf("%w: negative offset %d", publication.ErrInvalidPage, p.Offset)
	}
	if !p.Unbounded && p.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive or the page explicitly unbounded", publication.ErrInvalidPage)
	}
	return nil
}

// PropertyRecord is the set of named values attached to one object.
type PropertyRecord struct {
	ObjectType string
	ObjectID   string
	Properties map[string]string
}

func (r PropertyRecord) Get(name string) (string, bool) {
	v, ok := r.Properties[name]
	return v, ok
}

func (r PropertyRecord) Empty() bool {
	return len(r.Properties) == 0
}

// PropertyQuery selects records of ObjectType having Name == Value.
type PropertyQuery struct {
	ObjectType string
	Name       string
	Value      string
	Page       Page
}

// PropertyStore persists property records. Records are returned ordered by object id.
type PropertyStore interface {
	Find(ctx context.Context, q PropertyQuery) ([]PropertyRecord, error)
	// Get returns an empty record when the object has no properties.
	Get(ctx context.Context, objectType, objectID string) (PropertyRecord, error)
	// Set upserts the given names, leaving other names of the record untouched.
	Set(ctx context.Context, objectType, objectID string, props map[string]string) error
	// Remove deletes the given names, or the whole record when no name is given.
	Remove(ctx context.Context, objectType, objectID string, names ...string) error
	Count(ctx context.Context, objectType, name, value string) (int64, error)
}

// ArticleRepository loads and saves article variants.
type ArticleRepository interface {
	GetByID(ctx context.Context, ref publication.ArticleRef) (*models.Article, error)
	Create(ctx context.Context, article *models.Article) error
	// Update saves article if its Version still matches the stored one and
	// increments Version. A mismatch is publication.ErrConflict.
	Update(ctx context.Context, article *models.Article) error
	// Drafts lists the edit-in-place drafts pointing at articleID.
	Drafts(ctx context.Context, articleID string) ([]*models.Article, error)
	// Variants lists every language variant of articleID.
	Variants(ctx context.Context, articleID string) ([]*models.Article, error)
	// Delete soft-deletes one variant.
	Delete(ctx context.Context, ref publication.ArticleRef) error
	CountByState(ctx context.Context) (map[publication.State]int64, error)
}

// TargetStore persists targets and their article links.
type TargetStore interface {
	CreateTarget(ctx context.Context, target *models.Target) error
	UpdateTarget(ctx context.Context, originalName string, target *models.Target) error
	DeleteTarget(ctx context.Context, name string) error
	GetTarget(ctx context.Context, name string) (*models.Target, error)
	ListTargets(ctx context.Context) ([]models.Target, error)
	// LinkArticle replaces the links of articleID with names.
	LinkArticle(ctx context.Context, articleID string, names []string, displayed bool, linkedBy string) error
	UnlinkArticle(ctx context.Context, articleID string) error
	ArticleTargets(ctx context.Context, articleID string) ([]models.ArticleTarget, error)
	ArticlesByTarget(ctx context.Context, name string, page Page) ([]models.ArticleTarget, error)
}

// Stores bundles the three stores a deployment runs on.
type Stores struct {
	Properties PropertyStore
	Articles   ArticleRepository
	Targets    TargetStore
}
