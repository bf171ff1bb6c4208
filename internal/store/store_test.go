package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ifuryst/quill/internal/models"
	"github.com/ifuryst/quill/internal/publication"
)

func newSQLiteStores(t *testing.T) Stores {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "quill.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Article{},
		&models.PropertyEntry{},
		&models.Target{},
		&models.ArticleTarget{},
	))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewGormStores(db)
}

// backends runs fn against every store implementation.
func backends(t *testing.T, fn func(t *testing.T, s Stores)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStores()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteStores(t)) })
}

func TestPage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		page    Page
		wantErr bool
	}{
		{name: "bounded", page: Window(0, 10)},
		{name: "unbounded", page: Unbounded()},
		{name: "offset with unbounded", page: Page{Offset: 5, Unbounded: true}},
		{name: "zero limit", page: Page{}, wantErr: true},
		{name: "negative limit", page: Window(0, -1), wantErr: true},
		{name: "negative offset", page: Window(-1, 10), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.page.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, publication.ErrInvalidPage)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPropertyStore_FindOrdersAndPages(t *testing.T) {
	backends(t, func(t *testing.T, s Stores) {
		ctx := context.Background()
		at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

		for _, id := range []string{"c", "a", "d", "b"} {
			require.NoError(t, s.Properties.Set(ctx, publication.ObjectTypeArticle, id, publication.ScheduleProperties(at)))
		}
		require.NoError(t, s.Properties.Set(ctx, publication.ObjectTypeArticle, "e", publication.UnpublishProperties(at)))
		require.NoError(t, s.Properties.Set(ctx, "otherType", "f", publication.ScheduleProperties(at)))

		query := PropertyQuery{
			ObjectType: publication.ObjectTypeArticle,
			Name:       publication.PropPublicationState,
			Value:      string(publication.StateStaged),
		}

		query.Page = Unbounded()
		all, err := s.Properties.Find(ctx, query)
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, []string{"a", "b", "c", "d"}, objectIDs(all))
		v, ok := all[0].Get(publication.PropSchedulePostDate)
		assert.True(t, ok)
		assert.Equal(t, "2024-05-01T10:00:00.000Z", v)

		query.Page = Window(1, 2)
		page, err := s.Properties.Find(ctx, query)
		require.NoError(t, err)
		assert.Equal(t, []string{"b", "c"}, objectIDs(page))

		query.Page = Window(10, 2)
		empty, err := s.Properties.Find(ctx, query)
		require.NoError(t, err)
		assert.Empty(t, empty)

		query.Page = Page{}
		_, err = s.Properties.Find(ctx, query)
		assert.ErrorIs(t, err, publication.ErrInvalidPage)

		n, err := s.Properties.Count(ctx, publication.ObjectTypeArticle, publication.PropUnpublishScheduled, publication.UnpublishScheduledTrue)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})
}

func TestPropertyStore_SetRemove(t *testing.T) {
	backends(t, func(t *testing.T, s Stores) {
		ctx := context.Background()
		typ := publication.ObjectTypeArticle
		at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

		rec, err := s.Properties.Get(ctx, typ, "missing")
		require.NoError(t, err)
		assert.True(t, rec.Empty())

		require.NoError(t, s.Properties.Set(ctx, typ, "a", publication.ScheduleProperties(at)))
		require.NoError(t, s.Properties.Set(ctx, typ, "a", publication.UnpublishProperties(at)))
		require.NoError(t, s.Properties.Set(ctx, typ, "a", publication.ScheduleProperties(at.Add(time.Hour))))

		rec, err = s.Properties.Get(ctx, typ, "a")
		require.NoError(t, err)
		assert.Len(t, rec.Properties, 4)
		assert.Equal(t, "2024-05-01T11:00:00.000Z", rec.Properties[publication.PropSchedulePostDate])

		require.NoError(t, s.Properties.Remove(ctx, typ, "a", publication.ScheduleKeys...))
		rec, err = s.Properties.Get(ctx, typ, "a")
		require.NoError(t, err)
		assert.Len(t, rec.Properties, 2)
		_, ok := rec.Get(publication.PropPublicationState)
		assert.False(t, ok)

		require.NoError(t, s.Properties.Remove(ctx, typ, "a"))
		rec, err = s.Properties.Get(ctx, typ, "a")
		require.NoError(t, err)
		assert.True(t, rec.Empty())

		// removing from an absent record is a no-op
		assert.NoError(t, s.Properties.Remove(ctx, typ, "a", publication.UnpublishKeys...))
	})
}

func TestArticleRepository_Lifecycle(t *testing.T) {
	backends(t, func(t *testing.T, s Stores) {
		ctx := context.Background()
		ref := publication.ArticleRef{ID: "news-1"}

		_, err := s.Articles.GetByID(ctx, ref)
		assert.ErrorIs(t, err, publication.ErrNotFound)

		article := &models.Article{
			ID:               ref.ID,
			Title:            "Quarterly results",
			PublicationState: publication.StateDraft,
			Targets:          models.StringArray{"/sales"},
		}
		require.NoError(t, s.Articles.Create(ctx, article))
		assert.Equal(t, 1, article.Version)

		loaded, err := s.Articles.GetByID(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, "Quarterly results", loaded.Title)
		assert.Equal(t, []string{"/sales"}, []string(loaded.Targets))

		loaded.PublicationState = publication.StatePublished
		require.NoError(t, s.Articles.Update(ctx, loaded))
		assert.Equal(t, 2, loaded.Version)

		// a writer still holding version 1 loses
		stale, _ := s.Articles.GetByID(ctx, ref)
		stale.Version = 1
		stale.Title = "stale"
		err = s.Articles.Update(ctx, stale)
		assert.ErrorIs(t, err, publication.ErrConflict)

		current, err := s.Articles.GetByID(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, publication.StatePublished, current.PublicationState)
		assert.Equal(t, "Quarterly results", current.Title)

		require.NoError(t, s.Articles.Delete(ctx, ref))
		_, err = s.Articles.GetByID(ctx, ref)
		assert.ErrorIs(t, err, publication.ErrNotFound)
		assert.ErrorIs(t, s.Articles.Delete(ctx, ref), publication.ErrNotFound)
	})
}

func TestArticleRepository_VariantsDraftsAndCounts(t *testing.T) {
	backends(t, func(t *testing.T, s Stores) {
		ctx := context.Background()
		for _, a := range []*models.Article{
			{ID: "n1", Title: "base", PublicationState: publication.StatePublished},
			{ID: "n1", Lang: "fr", Title: "fr", PublicationState: publication.StatePublished},
			{ID: "n1", Lang: "de", Title: "de", PublicationState: publication.StateDraft},
			{ID: "d1", TargetPageID: "n1", Title: "edit", PublicationState: publication.StateDraft},
			{ID: "n2", Title: "other", PublicationState: publication.StateStaged},
		} {
			require.NoError(t, s.Articles.Create(ctx, a))
		}

		variants, err := s.Articles.Variants(ctx, "n1")
		require.NoError(t, err)
		require.Len(t, variants, 3)
		assert.Equal(t, "", variants[0].Lang)
		assert.Equal(t, "de", variants[1].Lang)
		assert.Equal(t, "fr", variants[2].Lang)

		drafts, err := s.Articles.Drafts(ctx, "n1")
		require.NoError(t, err)
		require.Len(t, drafts, 1)
		assert.Equal(t, "d1", drafts[0].ID)
		assert.True(t, drafts[0].IsLatestDraft())

		counts, err := s.Articles.CountByState(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 2, counts[publication.StatePublished])
		assert.EqualValues(t, 1, counts[publication.StateDraft])
		assert.EqualValues(t, 1, counts[publication.StateStaged])
	})
}

func TestTargetStore(t *testing.T) {
	backends(t, func(t *testing.T, s Stores) {
		ctx := context.Background()

		require.NoError(t, s.Targets.CreateTarget(ctx, &models.Target{Name: "sales", Permissions: models.StringArray{"/sales"}}))
		require.NoError(t, s.Targets.CreateTarget(ctx, &models.Target{Name: "all"}))
		err := s.Targets.CreateTarget(ctx, &models.Target{Name: "sales"})
		assert.ErrorIs(t, err, publication.ErrConflict)

		targets, err := s.Targets.ListTargets(ctx)
		require.NoError(t, err)
		require.Len(t, targets, 2)
		assert.Equal(t, "all", targets[0].Name)

		require.NoError(t, s.Targets.LinkArticle(ctx, "n1", []string{"sales", "all"}, false, "alice"))
		require.NoError(t, s.Targets.LinkArticle(ctx, "n2", []string{"sales"}, true, "bob"))

		links, err := s.Targets.ArticleTargets(ctx, "n1")
		require.NoError(t, err)
		require.Len(t, links, 2)
		assert.False(t, links[0].Displayed)

		// relinking replaces
		require.NoError(t, s.Targets.LinkArticle(ctx, "n1", []string{"all"}, true, "alice"))
		links, err = s.Targets.ArticleTargets(ctx, "n1")
		require.NoError(t, err)
		require.Len(t, links, 1)
		assert.Equal(t, "all", links[0].TargetName)

		require.NoError(t, s.Targets.UpdateTarget(ctx, "sales", &models.Target{Name: "sales-emea", Label: "Sales EMEA"}))
		_, err = s.Targets.GetTarget(ctx, "sales")
		assert.ErrorIs(t, err, publication.ErrNotFound)
		byTarget, err := s.Targets.ArticlesByTarget(ctx, "sales-emea", Unbounded())
		require.NoError(t, err)
		require.Len(t, byTarget, 1)
		assert.Equal(t, "n2", byTarget[0].ArticleID)

		err = s.Targets.UpdateTarget(ctx, "sales-emea", &models.Target{Name: "all"})
		assert.ErrorIs(t, err, publication.ErrConflict)

		_, err = s.Targets.ArticlesByTarget(ctx, "all", Page{})
		assert.ErrorIs(t, err, publication.ErrInvalidPage)

		require.NoError(t, s.Targets.DeleteTarget(ctx, "sales-emea"))
		byTarget, err = s.Targets.ArticlesByTarget(ctx, "sales-emea", Window(0, 10))
		require.NoError(t, err)
		assert.Empty(t, byTarget)
		assert.ErrorIs(t, s.Targets.DeleteTarget(ctx, "sales-emea"), publication.ErrNotFound)

		require.NoError(t, s.Targets.UnlinkArticle(ctx, "n1"))
		links, err = s.Targets.ArticleTargets(ctx, "n1")
		require.NoError(t, err)
		assert.Empty(t, links)
	})
}

func objectIDs(records []PropertyRecord) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ObjectID)
	}
	return ids
}

func TestTargetStore_LinkArticleIgnoresRepeatedNames(t *testing.T) {
	backends(t, func(t *testing.T, s Stores) {
		ctx := context.Background()
		require.NoError(t, s.Targets.CreateTarget(ctx, &models.Target{Name: "intranet"}))

		require.NoError(t, s.Targets.LinkArticle(ctx, "A1", []string{"intranet", "intranet"}, true, "paula"))
		links, err := s.Targets.ArticleTargets(ctx, "A1")
		require.NoError(t, err)
		require.Len(t, links, 1)
		assert.Equal(t, "intranet", links[0].TargetName)
	})
}
