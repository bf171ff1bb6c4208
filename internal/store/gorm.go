package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ifuryst/quill/internal/models"
	"github.com/ifuryst/quill/internal/publication"
	"github.com/ifuryst/quill/pkg/util"
)

// NewGormStores builds the gorm backed stores on db.
func NewGormStores(db *gorm.DB) Stores {
	return Stores{
		Properties: NewGormPropertyStore(db),
		Articles:   NewGormArticleRepository(db),
		Targets:    NewGormTargetStore(db),
	}
}

// translate maps gorm errors onto the publication error kinds.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s: %w", op, publication.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s: %w", op, publication.ErrConflict)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, publication.ErrStoreUnavailable, err)
}

func applyPage(q *gorm.DB, p Page) *gorm.DB {
	if p.Offset > 0 {
		q = q.Offset(p.Offset)
	}
	if !p.Unbounded {
		q = q.Limit(p.Limit)
	}
	return q
}

type GormPropertyStore struct {
	db *gorm.DB
}

func NewGormPropertyStore(db *gorm.DB) *GormPropertyStore {
	return &GormPropertyStore{db: db}
}

func (s *GormPropertyStore) Find(ctx context.Context, q PropertyQuery) ([]PropertyRecord, error) {
	if err := q.Page.Validate(); err != nil {
		return nil, err
	}

	var objectIDs []string
	query := s.db.WithContext(ctx).
		Model(&models.PropertyEntry{}).
		Where("object_type = ? AND name = ? AND value = ?", q.ObjectType, q.Name, q.Value).
		Order("object_id")
	if err := applyPage(query, q.Page).Pluck("object_id", &objectIDs).Error; err != nil {
		return nil, translate("find property records", err)
	}
	if len(objectIDs) == 0 {
		return nil, nil
	}

	var entries []models.PropertyEntry
	if err := s.db.WithContext(ctx).
		Where("object_type = ? AND object_id IN ?", q.ObjectType, objectIDs).
		Find(&entries).Error; err != nil {
		return nil, translate("load property records", err)
	}

	byObject := make(map[string]map[string]string, len(objectIDs))
	for _, e := range entries {
		props, ok := byObject[e.ObjectID]
		if !ok {
			props = make(map[string]string)
			byObject[e.ObjectID] = props
		}
		props[e.Name] = e.Value
	}

	records := make([]PropertyRecord, 0, len(objectIDs))
	for _, id := range objectIDs {
		records = append(records, PropertyRecord{
			ObjectType: q.ObjectType,
			ObjectID:   id,
			Properties: byObject[id],
		})
	}
	return records, nil
}

func (s *GormPropertyStore) Get(ctx context.Context, objectType, objectID string) (PropertyRecord, error) {
	var entries []models.PropertyEntry
	if err := s.db.WithContext(ctx).
		Where("object_type = ? AND object_id = ?", objectType, objectID).
		Find(&entries).Error; err != nil {
		return PropertyRecord{}, translate("get property record", err)
	}

	record := PropertyRecord{ObjectType: objectType, ObjectID: objectID, Properties: make(map[string]string, len(entries))}
	for _, e := range entries {
		record.Properties[e.Name] = e.Value
	}
	return record, nil
}

func (s *GormPropertyStore) Set(ctx context.Context, objectType, objectID string, props map[string]string) error {
	if len(props) == 0 {
		return nil
	}
	entries := make([]models.PropertyEntry, 0, len(props))
	for name, value := range props {
		entries = append(entries, models.PropertyEntry{
			ObjectType: objectType,
			ObjectID:   objectID,
			Name:       name,
			Value:      value,
		})
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "object_type"}, {Name: "object_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entries).Error
	return translate("set property record", err)
}

func (s *GormPropertyStore) Remove(ctx context.Context, objectType, objectID string, names ...string) error {
	q := s.db.WithContext(ctx).Where("object_type = ? AND object_id = ?", objectType, objectID)
	if len(names) > 0 {
		q = q.Where("name IN ?", names)
	}
	return translate("remove property record", q.Delete(&models.PropertyEntry{}).Error)
}

func (s *GormPropertyStore) Count(ctx context.Context, objectType, name, value string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.PropertyEntry{}).
		Where("object_type = ? AND name = ? AND value = ?", objectType, name, value).
		Count(&n).Error
	return n, translate("count property records", err)
}

type GormArticleRepository struct {
	db *gorm.DB
}

func NewGormArticleRepository(db *gorm.DB) *GormArticleRepository {
	return &GormArticleRepository{db: db}
}

func (r *GormArticleRepository) GetByID(ctx context.Context, ref publication.ArticleRef) (*models.Article, error) {
	var article models.Article
	err := r.db.WithContext(ctx).
		Where("id = ? AND lang = ?", ref.ID, ref.Lang).
		First(&article).Error
	if err != nil {
		return nil, translate(fmt.Sprintf("get article %s", ref), err)
	}
	return &article, nil
}

func (r *GormArticleRepository) Create(ctx context.Context, article *models.Article) error {
	if article.Version == 0 {
		article.Version = 1
	}
	return translate("create article", r.db.WithContext(ctx).Create(article).Error)
}

func (r *GormArticleRepository) Update(ctx context.Context, article *models.Article) error {
	expected := article.Version
	article.Version = expected + 1

	res := r.db.WithContext(ctx).
		Model(&models.Article{}).
		Where("id = ? AND lang = ? AND version = ?", article.ID, article.Lang, expected).
		Select("*").
		Omit("id", "lang", "created_at", "deleted_at").
		Updates(article)
	if res.Error != nil {
		article.Version = expected
		return translate("update article", res.Error)
	}
	if res.RowsAffected == 0 {
		article.Version = expected
		if _, err := r.GetByID(ctx, article.Ref()); err != nil {
			return err
		}
		return fmt.Errorf("update article %s: version %d is stale: %w", article.Ref(), expected, publication.ErrConflict)
	}
	return nil
}

func (r *GormArticleRepository) Drafts(ctx context.Context, articleID string) ([]*models.Article, error) {
	var drafts []*models.Article
	err := r.db.WithContext(ctx).
		Where("target_page_id = ?", articleID).
		Order("created_at").
		Find(&drafts).Error
	return drafts, translate("list drafts", err)
}

func (r *GormArticleRepository) Variants(ctx context.Context, articleID string) ([]*models.Article, error) {
	var variants []*models.Article
	err := r.db.WithContext(ctx).
		Where("id = ?", articleID).
		Order("lang").
		Find(&variants).Error
	return variants, translate("list variants", err)
}

func (r *GormArticleRepository) Delete(ctx context.Context, ref publication.ArticleRef) error {
	res := r.db.WithContext(ctx).
		Where("id = ? AND lang = ?", ref.ID, ref.Lang).
		Delete(&models.Article{})
	if res.Error != nil {
		return translate("delete article", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("delete article %s: %w", ref, publication.ErrNotFound)
	}
	return nil
}

func (r *GormArticleRepository) CountByState(ctx context.Context) (map[publication.State]int64, error) {
	var rows []struct {
		PublicationState publication.State
		Count            int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Article{}).
		Select("publication_state, count(*) as count").
		Where("target_page_id = ''").
		Group("publication_state").
		Scan(&rows).Error
	if err != nil {
		return nil, translate("count articles", err)
	}

	counts := make(map[publication.State]int64, len(rows))
	for _, row := range rows {
		counts[row.PublicationState] = row.Count
	}
	return counts, nil
}

type GormTargetStore struct {
	db *gorm.DB
}

func NewGormTargetStore(db *gorm.DB) *GormTargetStore {
	return &GormTargetStore{db: db}
}

func (s *GormTargetStore) CreateTarget(ctx context.Context, target *models.Target) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Target{}).Where("name = ?", target.Name).Count(&n).Error; err != nil {
		return translate("create target", err)
	}
	if n > 0 {
		return fmt.Errorf("create target %q: %w", target.Name, publication.ErrConflict)
	}
	return translate("create target", s.db.WithContext(ctx).Create(target).Error)
}

func (s *GormTargetStore) UpdateTarget(ctx context.Context, originalName string, target *models.Target) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Target
		if err := tx.Where("name = ?", originalName).First(&existing).Error; err != nil {
			return translate("update target", err)
		}
		if target.Name != originalName {
			var n int64
			if err := tx.Model(&models.Target{}).Where("name = ?", target.Name).Count(&n).Error; err != nil {
				return translate("update target", err)
			}
			if n > 0 {
				return fmt.Errorf("rename target to %q: %w", target.Name, publication.ErrConflict)
			}
			if err := tx.Model(&models.ArticleTarget{}).
				Where("target_name = ?", originalName).
				Update("target_name", target.Name).Error; err != nil {
				return translate("rename target links", err)
			}
		}
		target.ID = existing.ID
		target.CreatedBy = existing.CreatedBy
		target.CreatedAt = existing.CreatedAt
		return translate("update target", tx.Save(target).Error)
	})
}

func (s *GormTargetStore) DeleteTarget(ctx context.Context, name string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("name = ?", name).Delete(&models.Target{})
		if res.Error != nil {
			return translate("delete target", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("delete target %q: %w", name, publication.ErrNotFound)
		}
		return translate("delete target links", tx.Where("target_name = ?", name).Delete(&models.ArticleTarget{}).Error)
	})
}

func (s *GormTargetStore) GetTarget(ctx context.Context, name string) (*models.Target, error) {
	var target models.Target
	if err := s.db.WithContext(ctx).Where("name = ?", name).First(&target).Error; err != nil {
		return nil, translate(fmt.Sprintf("get target %q", name), err)
	}
	return &target, nil
}

func (s *GormTargetStore) ListTargets(ctx context.Context) ([]models.Target, error) {
	var targets []models.Target
	err := s.db.WithContext(ctx).Order("name").Find(&targets).Error
	return targets, translate("list targets", err)
}

func (s *GormTargetStore) LinkArticle(ctx context.Context, articleID string, names []string, displayed bool, linkedBy string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("article_id = ?", articleID).Delete(&models.ArticleTarget{}).Error; err != nil {
			return translate("unlink article", err)
		}
		names = util.Unique(names)
		if len(names) == 0 {
			return nil
		}
		links := make([]models.ArticleTarget, 0, len(names))
		for _, name := range names {
			links = append(links, models.ArticleTarget{
				ArticleID:  articleID,
				TargetName: name,
				Displayed:  displayed,
				LinkedBy:   linkedBy,
			})
		}
		return translate("link article", tx.Create(&links).Error)
	})
}

func (s *GormTargetStore) UnlinkArticle(ctx context.Context, articleID string) error {
	return translate("unlink article", s.db.WithContext(ctx).Where("article_id = ?", articleID).Delete(&models.ArticleTarget{}).Error)
}

func (s *GormTargetStore) ArticleTargets(ctx context.Context, articleID string) ([]models.ArticleTarget, error) {
	var links []models.ArticleTarget
	err := s.db.WithContext(ctx).Where("article_id = ?", articleID).Order("target_name").Find(&links).Error
	return links, translate("list article targets", err)
}

func (s *GormTargetStore) ArticlesByTarget(ctx context.Context, name string, page Page) ([]models.ArticleTarget, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	var links []models.ArticleTarget
	q := s.db.WithContext(ctx).Where("target_name = ?", name).Order("created_at DESC, id DESC")
	err := applyPage(q, page).Find(&links).Error
	return links, translate("list target articles", err)
}
