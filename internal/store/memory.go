package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ifuryst/quill/internal/models"
	"github.com/ifuryst/quill/internal/publication"
	"github.com/ifuryst/quill/pkg/util"
)

// NewMemoryStores builds process-local stores, used when database.type is
// "memory" and throughout the tests.
func NewMemoryStores() Stores {
	return Stores{
		Properties: NewMemoryPropertyStore(),
		Articles:   NewMemoryArticleRepository(),
		Targets:    NewMemoryTargetStore(),
	}
}

type propertyKey struct {
	objectType string
	objectID   string
}

type MemoryPropertyStore struct {
	mu      sync.RWMutex
	records map[propertyKey]map[string]string
}

func NewMemoryPropertyStore() *MemoryPropertyStore {
	return &MemoryPropertyStore{records: make(map[propertyKey]map[string]string)}
}

func (s *MemoryPropertyStore) Find(ctx context.Context, q PropertyQuery) ([]PropertyRecord, error) {
	if err := q.Page.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for key, props := range s.records {
		if v, ok := props[q.Name]; ok && key.objectType == q.ObjectType && v == q.Value {
			ids = append(ids, key.objectID)
		}
	}
	sort.Strings(ids)
	ids = pageSlice(ids, q.Page)

	records := make([]PropertyRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, PropertyRecord{
			ObjectType: q.ObjectType,
			ObjectID:   id,
			Properties: copyProps(s.records[propertyKey{q.ObjectType, id}]),
		})
	}
	return records, nil
}

func (s *MemoryPropertyStore) Get(ctx context.Context, objectType, objectID string) (PropertyRecord, error) {
	if err := ctx.Err(); err != nil {
		return PropertyRecord{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	props := copyProps(s.records[propertyKey{objectType, objectID}])
	if props == nil {
		props = map[string]string{}
	}
	return PropertyRecord{ObjectType: objectType, ObjectID: objectID, Properties: props}, nil
}

func (s *MemoryPropertyStore) Set(ctx context.Context, objectType, objectID string, props map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(props) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := propertyKey{objectType, objectID}
	current, ok := s.records[key]
	if !ok {
		current = make(map[string]string, len(props))
		s.records[key] = current
	}
	for name, value := range props {
		current[name] = value
	}
	return nil
}

func (s *MemoryPropertyStore) Remove(ctx context.Context, objectType, objectID string, names ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := propertyKey{objectType, objectID}
	if len(names) == 0 {
		delete(s.records, key)
		return nil
	}
	current, ok := s.records[key]
	if !ok {
		return nil
	}
	for _, name := range names {
		delete(current, name)
	}
	if len(current) == 0 {
		delete(s.records, key)
	}
	return nil
}

func (s *MemoryPropertyStore) Count(ctx context.Context, objectType, name, value string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for key, props := range s.records {
		if v, ok := props[name]; ok && key.objectType == objectType && v == value {
			n++
		}
	}
	return n, nil
}

type articleKey struct {
	id   string
	lang string
}

// MemoryArticleRepository keeps soft-deleted articles out of every read, like
// the gorm repository does through gorm.DeletedAt.
type MemoryArticleRepository struct {
	mu       sync.RWMutex
	articles map[articleKey]*models.Article
	now      func() time.Time
}

func NewMemoryArticleRepository() *MemoryArticleRepository {
	return &MemoryArticleRepository{
		articles: make(map[articleKey]*models.Article),
		now:      time.Now,
	}
}

func (r *MemoryArticleRepository) GetByID(ctx context.Context, ref publication.ArticleRef) (*models.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.articles[articleKey{ref.ID, ref.Lang}]
	if !ok || a.DeletedAt.Valid {
		return nil, fmt.Errorf("get article %s: %w", ref, publication.ErrNotFound)
	}
	return a.Clone(), nil
}

func (r *MemoryArticleRepository) Create(ctx context.Context, article *models.Article) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := articleKey{article.ID, article.Lang}
	if existing, ok := r.articles[key]; ok && !existing.DeletedAt.Valid {
		return fmt.Errorf("create article %s: %w", article.Ref(), publication.ErrConflict)
	}
	if article.Version == 0 {
		article.Version = 1
	}
	now := r.now()
	article.CreatedAt = now
	article.UpdatedAt = now
	r.articles[key] = article.Clone()
	return nil
}

func (r *MemoryArticleRepository) Update(ctx context.Context, article *models.Article) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := articleKey{article.ID, article.Lang}
	stored, ok := r.articles[key]
	if !ok || stored.DeletedAt.Valid {
		return fmt.Errorf("update article %s: %w", article.Ref(), publication.ErrNotFound)
	}
	if stored.Version != article.Version {
		return fmt.Errorf("update article %s: version %d is stale: %w", article.Ref(), article.Version, publication.ErrConflict)
	}
	article.Version++
	article.CreatedAt = stored.CreatedAt
	article.UpdatedAt = r.now()
	r.articles[key] = article.Clone()
	return nil
}

func (r *MemoryArticleRepository) Drafts(ctx context.Context, articleID string) ([]*models.Article, error) {
	return r.filter(ctx, func(a *models.Article) bool { return a.TargetPageID == articleID })
}

func (r *MemoryArticleRepository) Variants(ctx context.Context, articleID string) ([]*models.Article, error) {
	return r.filter(ctx, func(a *models.Article) bool { return a.ID == articleID })
}

func (r *MemoryArticleRepository) filter(ctx context.Context, keep func(*models.Article) bool) ([]*models.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Article
	for _, a := range r.articles {
		if !a.DeletedAt.Valid && keep(a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ID != out[j].ID {
			return out[i].ID < out[j].ID
		}
		return out[i].Lang < out[j].Lang
	})
	return out, nil
}

func (r *MemoryArticleRepository) Delete(ctx context.Context, ref publication.ArticleRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.articles[articleKey{ref.ID, ref.Lang}]
	if !ok || a.DeletedAt.Valid {
		return fmt.Errorf("delete article %s: %w", ref, publication.ErrNotFound)
	}
	a.DeletedAt.Time = r.now()
	a.DeletedAt.Valid = true
	return nil
}

func (r *MemoryArticleRepository) CountByState(ctx context.Context) (map[publication.State]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[publication.State]int64)
	for _, a := range r.articles {
		if !a.DeletedAt.Valid && !a.IsLatestDraft() {
			counts[a.PublicationState]++
		}
	}
	return counts, nil
}

type MemoryTargetStore struct {
	mu      sync.RWMutex
	nextID  uint
	targets map[string]*models.Target
	links   map[string][]models.ArticleTarget
}

func NewMemoryTargetStore() *MemoryTargetStore {
	return &MemoryTargetStore{
		targets: make(map[string]*models.Target),
		links:   make(map[string][]models.ArticleTarget),
	}
}

func (s *MemoryTargetStore) CreateTarget(ctx context.Context, target *models.Target) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.targets[target.Name]; ok {
		return fmt.Errorf("create target %q: %w", target.Name, publication.ErrConflict)
	}
	s.nextID++
	target.ID = s.nextID
	target.CreatedAt = time.Now()
	target.UpdatedAt = target.CreatedAt
	c := *target
	s.targets[target.Name] = &c
	return nil
}

func (s *MemoryTargetStore) UpdateTarget(ctx context.Context, originalName string, target *models.Target) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.targets[originalName]
	if !ok {
		return fmt.Errorf("update target %q: %w", originalName, publication.ErrNotFound)
	}
	if target.Name != originalName {
		if _, taken := s.targets[target.Name]; taken {
			return fmt.Errorf("rename target to %q: %w", target.Name, publication.ErrConflict)
		}
		delete(s.targets, originalName)
		for articleID, links := range s.links {
			for i := range links {
				if links[i].TargetName == originalName {
					links[i].TargetName = target.Name
				}
			}
			s.links[articleID] = links
		}
	}
	target.ID = existing.ID
	target.CreatedBy = existing.CreatedBy
	target.CreatedAt = existing.CreatedAt
	target.UpdatedAt = time.Now()
	c := *target
	s.targets[target.Name] = &c
	return nil
}

func (s *MemoryTargetStore) DeleteTarget(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.targets[name]; !ok {
		return fmt.Errorf("delete target %q: %w", name, publication.ErrNotFound)
	}
	delete(s.targets, name)
	for articleID, links := range s.links {
		kept := links[:0]
		for _, l := range links {
			if l.TargetName != name {
				kept = append(kept, l)
			}
		}
		if len(kept) == 0 {
			delete(s.links, articleID)
		} else {
			s.links[articleID] = kept
		}
	}
	return nil
}

func (s *MemoryTargetStore) GetTarget(ctx context.Context, name string) (*models.Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.targets[name]
	if !ok {
		return nil, fmt.Errorf("get target %q: %w", name, publication.ErrNotFound)
	}
	c := *t
	return &c, nil
}

func (s *MemoryTargetStore) ListTargets(ctx context.Context) ([]models.Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Target, 0, len(s.targets))
	for _, t := range s.targets {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryTargetStore) LinkArticle(ctx context.Context, articleID string, names []string, displayed bool, linkedBy string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	names = util.Unique(names)
	if len(names) == 0 {
		delete(s.links, articleID)
		return nil
	}
	now := time.Now()
	links := make([]models.ArticleTarget, 0, len(names))
	for _, name := range names {
		s.nextID++
		links = append(links, models.ArticleTarget{
			ID:         s.nextID,
			ArticleID:  articleID,
			TargetName: name,
			Displayed:  displayed,
			LinkedBy:   linkedBy,
			CreatedAt:  now,
		})
	}
	s.links[articleID] = links
	return nil
}

func (s *MemoryTargetStore) UnlinkArticle(ctx context.Context, articleID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, articleID)
	return nil
}

func (s *MemoryTargetStore) ArticleTargets(ctx context.Context, articleID string) ([]models.ArticleTarget, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]models.ArticleTarget(nil), s.links[articleID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].TargetName < out[j].TargetName })
	return out, nil
}

func (s *MemoryTargetStore) ArticlesByTarget(ctx context.Context, name string, page Page) ([]models.ArticleTarget, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.ArticleTarget
	for _, links := range s.links {
		for _, l := range links {
			if l.TargetName == name {
				out = append(out, l)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return pageSlice(out, page), nil
}

func pageSlice[T any](items []T, p Page) []T {
	if p.Offset >= len(items) {
		return nil
	}
	items = items[p.Offset:]
	if !p.Unbounded && p.Limit < len(items) {
		items = items[:p.Limit]
	}
	return items
}

func copyProps(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
