package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ifuryst/quill/internal/config"
	"github.com/ifuryst/quill/internal/models"
	"github.com/ifuryst/quill/internal/publication"
	"github.com/ifuryst/quill/internal/store"
	"github.com/ifuryst/quill/pkg/util"
)

// DraftInput carries the editable fields of an article.
type DraftInput struct {
	// ID is optional on create; a random id is used when empty.
	ID              string
	Lang            string
	SpaceID         string
	Title           string
	Summary         string
	Body            string
	Audience        string
	Targets         []string
	IllustrationURL string
}

// PublicationService is the only writer of an article's publication state.
// Every operation loads the article, checks the actor, runs the state machine,
// persists the article and then applies the remaining effects.
type PublicationService struct {
	cfg        config.PublicationConfig
	articles   store.ArticleRepository
	properties store.PropertyStore
	targets    store.TargetStore
	caps       CapabilityCheck
	events     Emitter
	logger     *zap.Logger
	now        func() time.Time
	newID      func() string
}

type PublicationOption func(*PublicationService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) PublicationOption {
	return func(s *PublicationService) {
		s.now = now
	}
}

// WithIDGenerator replaces the random article id generator.
func WithIDGenerator(newID func() string) PublicationOption {
	return func(s *PublicationService) {
		s.newID = newID
	}
}

func NewPublicationService(
	cfg config.PublicationConfig,
	stores store.Stores,
	caps CapabilityCheck,
	events Emitter,
	logger *zap.Logger,
	options ...PublicationOption,
) *PublicationService {
	s := &PublicationService{
		cfg:        cfg,
		articles:   stores.Articles,
		properties: stores.Properties,
		targets:    stores.Targets,
		caps:       caps,
		events:     events,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

func (s *PublicationService) GetArticle(ctx context.Context, ref publication.ArticleRef) (*models.Article, error) {
	return s.articles.GetByID(ctx, ref)
}

func (s *PublicationService) CreateDraft(ctx context.Context, input DraftInput, actor publication.Actor) (*models.Article, error) {
	if strings.TrimSpace(input.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", publication.ErrInvalidInput)
	}

	id := input.ID
	if id == "" {
		id = s.newID()
	}
	article := &models.Article{
		ID:               id,
		Lang:             input.Lang,
		PublicationState: publication.InitialState,
		Author:           actor.ID,
		Updater:          actor.ID,
	}
	applyDraftInput(article, input)

	if !s.caps.CanTransition(ctx, actor, article, publication.ActionCreate) {
		return nil, &publication.PermissionError{Actor: actor.ID, Action: publication.ActionCreate}
	}
	if err := s.articles.Create(ctx, article); err != nil {
		return nil, err
	}

	s.logger.Info("Article draft created",
		zap.String("article_id", article.Ref().String()),
		zap.String("author", actor.ID))
	s.emit(ctx, article, publication.EventArticleCreated, actor.ID, time.Time{})
	return article, nil
}

// UpdateDraft edits an article. DRAFT and STAGED articles are changed in
// place; a PUBLISHED or UNPUBLISHED one gets a linked latest draft instead so
// the live version stays untouched until the draft is posted.
func (s *PublicationService) UpdateDraft(ctx context.Context, ref publication.ArticleRef, input DraftInput, actor publication.Actor) (*models.Article, error) {
	article, t, err := s.prepare(ctx, ref, actor, publication.Command{Action: publication.ActionEdit})
	if err != nil {
		return nil, err
	}

	switch article.PublicationState {
	case publication.StateDraft, publication.StateStaged:
		applyDraftInput(article, input)
		article.Updater = actor.ID
		if err := s.articles.Update(ctx, article); err != nil {
			return nil, err
		}
		return article, s.finish(ctx, article, t, actor)
	}

	draft, err := s.latestDraft(ctx, article)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		draft = &models.Article{
			ID:               s.newID(),
			Lang:             article.Lang,
			TargetPageID:     article.ID,
			SpaceID:          article.SpaceID,
			Author:           article.Author,
			PublicationState: publication.StateDraft,
		}
		applyDraftInput(draft, draftInputOf(article))
		applyDraftInput(draft, input)
		draft.Updater = actor.ID
		if err := s.articles.Create(ctx, draft); err != nil {
			return nil, err
		}
	} else {
		applyDraftInput(draft, input)
		draft.Updater = actor.ID
		if err := s.articles.Update(ctx, draft); err != nil {
			return nil, err
		}
	}

	s.logger.Info("Latest draft saved",
		zap.String("article_id", article.Ref().String()),
		zap.String("draft_id", draft.ID))
	return draft, s.finish(ctx, article, t, actor)
}

// ScheduleNews stages a DRAFT for publication at date. date may use any
// accepted input layout; layouts without offset are read in timeZone.
func (s *PublicationService) ScheduleNews(ctx context.Context, ref publication.ArticleRef, date, timeZone string, actor publication.Actor) (*models.Article, error) {
	at, err := publication.NormalizeScheduleDate(date, timeZone)
	if err != nil {
		return nil, err
	}

	article, t, err := s.prepare(ctx, ref, actor, publication.Command{Action: publication.ActionSchedule, Date: at})
	if err != nil {
		return nil, err
	}
	article.TimeZoneID = timeZone
	return article, s.commit(ctx, article, t, actor)
}

// PostNews publishes an article now. Posting a latest draft merges it into the
// article it edits instead.
func (s *PublicationService) PostNews(ctx context.Context, ref publication.ArticleRef, actor publication.Actor) (*models.Article, error) {
	article, err := s.articles.GetByID(ctx, ref)
	if err != nil {
		return nil, err
	}
	if article.IsLatestDraft() {
		return s.mergeLatestDraft(ctx, article, actor)
	}

	article, t, err := s.decide(ctx, article, actor, publication.Command{Action: publication.ActionPublish})
	if err != nil {
		return nil, err
	}
	if article.Author == "" {
		article.Author = actor.ID
	}
	article.URL = util.ArticleURL(s.cfg.BaseURL, s.cfg.Portal, article.ID, article.Lang)
	return article, s.commit(ctx, article, t, actor)
}

func (s *PublicationService) UnpublishNews(ctx context.Context, ref publication.ArticleRef, actor publication.Actor) (*models.Article, error) {
	return s.run(ctx, ref, actor, publication.Command{Action: publication.ActionUnpublish})
}

func (s *PublicationService) UnscheduleNews(ctx context.Context, ref publication.ArticleRef, actor publication.Actor) (*models.Article, error) {
	return s.run(ctx, ref, actor, publication.Command{Action: publication.ActionUnschedule})
}

// ScheduleUnpublish keeps a PUBLISHED article live until date.
func (s *PublicationService) ScheduleUnpublish(ctx context.Context, ref publication.ArticleRef, date, timeZone string, actor publication.Actor) (*models.Article, error) {
	at, err := publication.NormalizeScheduleDate(date, timeZone)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, ref, actor, publication.Command{Action: publication.ActionScheduleUnpublish, Date: at})
}

func (s *PublicationService) CancelUnpublishSchedule(ctx context.Context, ref publication.ArticleRef, actor publication.Actor) (*models.Article, error) {
	return s.run(ctx, ref, actor, publication.Command{Action: publication.ActionCancelUnpublishSchedule})
}

// DeleteArticle soft-deletes the variant with its drafts and schedules.
// Deleting the base variant takes every language variant and the target
// links with it.
func (s *PublicationService) DeleteArticle(ctx context.Context, ref publication.ArticleRef, actor publication.Actor) error {
	_, err := s.run(ctx, ref, actor, publication.Command{Action: publication.ActionDelete})
	return err
}

func (s *PublicationService) run(ctx context.Context, ref publication.ArticleRef, actor publication.Actor, cmd publication.Command) (*models.Article, error) {
	article, t, err := s.prepare(ctx, ref, actor, cmd)
	if err != nil {
		return nil, err
	}
	return article, s.commit(ctx, article, t, actor)
}

// prepare loads the article and decides the transition.
func (s *PublicationService) prepare(ctx context.Context, ref publication.ArticleRef, actor publication.Actor, cmd publication.Command) (*models.Article, publication.Transition, error) {
	article, err := s.articles.GetByID(ctx, ref)
	if err != nil {
		return nil, publication.Transition{}, err
	}
	return s.decide(ctx, article, actor, cmd)
}

func (s *PublicationService) decide(ctx context.Context, article *models.Article, actor publication.Actor, cmd publication.Command) (*models.Article, publication.Transition, error) {
	if !s.caps.CanTransition(ctx, actor, article, cmd.Action) {
		return nil, publication.Transition{}, &publication.PermissionError{Actor: actor.ID, Action: cmd.Action}
	}
	t, err := publication.Apply(article.Snapshot(), cmd, s.now())
	if err != nil {
		return nil, publication.Transition{}, err
	}
	return article, t, nil
}

// commit mutates the article for t, saves it and applies the remaining effects.
func (s *PublicationService) commit(ctx context.Context, article *models.Article, t publication.Transition, actor publication.Actor) error {
	article.PublicationState = t.To
	article.Updater = actor.ID
	for _, e := range t.Effects {
		switch e.Kind {
		case publication.EffectSetSchedule:
			at := e.At
			article.SchedulePostDate = &at
		case publication.EffectClearSchedule:
			article.SchedulePostDate = nil
		case publication.EffectSetPublicationDate:
			at := e.At
			article.PublicationDate = &at
			article.PublishDate = &at
		case publication.EffectSetUnpublishSchedule:
			at := e.At
			article.UnpublishDate = &at
		case publication.EffectClearUnpublishSchedule:
			article.UnpublishDate = nil
		}
	}

	if err := s.articles.Update(ctx, article); err != nil {
		return err
	}

	s.logger.Info("Article transition applied",
		zap.String("article_id", article.Ref().String()),
		zap.String("action", t.Action.String()),
		zap.String("from", t.From.String()),
		zap.String("to", t.To.String()),
		zap.String("actor", actor.ID),
		zap.Bool("system", actor.System))

	return s.finish(ctx, article, t, actor)
}

// finish applies the effects that live outside the article row. The article
// is already saved, so every effect is attempted and failures are joined.
func (s *PublicationService) finish(ctx context.Context, article *models.Article, t publication.Transition, actor publication.Actor) error {
	objectID := article.Ref().ObjectID()
	var errs []error

	for _, e := range t.Effects {
		var err error
		switch e.Kind {
		case publication.EffectSetSchedule:
			err = s.properties.Set(ctx, publication.ObjectTypeArticle, objectID, publication.ScheduleProperties(e.At))
		case publication.EffectClearSchedule:
			err = s.properties.Remove(ctx, publication.ObjectTypeArticle, objectID, publication.ScheduleKeys...)
		case publication.EffectSetUnpublishSchedule:
			err = s.properties.Set(ctx, publication.ObjectTypeArticle, objectID, publication.UnpublishProperties(e.At))
		case publication.EffectClearUnpublishSchedule:
			err = s.properties.Remove(ctx, publication.ObjectTypeArticle, objectID, publication.UnpublishKeys...)
		// target links belong to the article id, so only the base variant manages them
		case publication.EffectLinkTargets:
			if article.Lang == "" {
				err = s.linkTargets(ctx, article, t.To == publication.StatePublished, actor)
			}
		case publication.EffectUnlinkTargets:
			if article.Lang == "" {
				err = s.targets.UnlinkArticle(ctx, article.ID)
			}
		case publication.EffectCascadeDelete:
			err = s.cascadeDelete(ctx, article)
		case publication.EffectEmit:
			who := actor.ID
			if e.Event == publication.EventArticlePublished {
				who = article.Author
			}
			s.emit(ctx, article, e.Event, who, e.At)
		}
		if err != nil {
			s.logger.Error("Failed to apply transition effect",
				zap.String("article_id", objectID),
				zap.String("action", t.Action.String()),
				zap.Int("effect", int(e.Kind)),
				zap.Error(err))
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// linkTargets links the article to the requested targets that exist.
func (s *PublicationService) linkTargets(ctx context.Context, article *models.Article, displayed bool, actor publication.Actor) error {
	names := make([]string, 0, len(article.Targets))
	for _, name := range article.Targets {
		if _, err := s.targets.GetTarget(ctx, name); err != nil {
			if errors.Is(err, publication.ErrNotFound) {
				s.logger.Warn("Unknown target requested, skipping",
					zap.String("article_id", article.ID),
					zap.String("target", name))
				continue
			}
			return err
		}
		names = append(names, name)
	}
	return s.targets.LinkArticle(ctx, article.ID, names, displayed, actor.ID)
}

func (s *PublicationService) cascadeDelete(ctx context.Context, article *models.Article) error {
	victims := []*models.Article{article}
	if article.Lang == "" && !article.IsLatestDraft() {
		variants, err := s.articles.Variants(ctx, article.ID)
		if err != nil {
			return err
		}
		for _, v := range variants {
			if v.Lang != "" {
				victims = append(victims, v)
			}
		}
	}

	var errs []error
	for _, v := range victims {
		drafts, err := s.articles.Drafts(ctx, v.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, d := range drafts {
			if d.Lang != v.Lang {
				continue
			}
			errs = append(errs, s.dropArticle(ctx, d))
		}
		errs = append(errs, s.dropArticle(ctx, v))
	}
	return errors.Join(errs...)
}

// dropArticle removes the property records of a and soft-deletes it.
func (s *PublicationService) dropArticle(ctx context.Context, a *models.Article) error {
	if err := s.properties.Remove(ctx, publication.ObjectTypeArticle, a.Ref().ObjectID()); err != nil {
		return err
	}
	if err := s.articles.Delete(ctx, a.Ref()); err != nil && !errors.Is(err, publication.ErrNotFound) {
		return err
	}
	return nil
}

func (s *PublicationService) latestDraft(ctx context.Context, article *models.Article) (*models.Article, error) {
	drafts, err := s.articles.Drafts(ctx, article.ID)
	if err != nil {
		return nil, err
	}
	for _, d := range drafts {
		if d.Lang == article.Lang {
			return d, nil
		}
	}
	return nil, nil
}

// mergeLatestDraft copies a posted latest draft into the article it edits. The
// article keeps its publication state.
func (s *PublicationService) mergeLatestDraft(ctx context.Context, draft *models.Article, actor publication.Actor) (*models.Article, error) {
	target, err := s.articles.GetByID(ctx, publication.ArticleRef{ID: draft.TargetPageID, Lang: draft.Lang})
	if err != nil {
		return nil, fmt.Errorf("latest draft %s: %w", draft.Ref(), err)
	}
	if !s.caps.CanTransition(ctx, actor, target, publication.ActionPublish) {
		return nil, &publication.PermissionError{Actor: actor.ID, Action: publication.ActionPublish}
	}
	t, err := publication.Apply(target.Snapshot(), publication.Command{Action: publication.ActionEdit}, s.now())
	if err != nil {
		return nil, err
	}

	applyDraftInput(target, draftInputOf(draft))
	target.Updater = actor.ID
	if err := s.articles.Update(ctx, target); err != nil {
		return nil, err
	}
	if err := s.dropArticle(ctx, draft); err != nil {
		return target, err
	}
	if target.PublicationState == publication.StatePublished && target.Lang == "" {
		if err := s.linkTargets(ctx, target, true, actor); err != nil {
			return target, err
		}
	}

	s.logger.Info("Latest draft merged",
		zap.String("article_id", target.Ref().String()),
		zap.String("draft_id", draft.ID),
		zap.String("actor", actor.ID))
	return target, s.finish(ctx, target, t, actor)
}

func (s *PublicationService) emit(ctx context.Context, article *models.Article, kind publication.EventKind, actorID string, date time.Time) {
	if s.events == nil {
		return
	}
	s.events.Emit(ctx, publication.Event{
		Kind:       kind,
		ArticleID:  article.ID,
		Lang:       article.Lang,
		Actor:      actorID,
		URL:        article.URL,
		Date:       date,
		OccurredAt: s.now().UTC(),
	})
}

func applyDraftInput(a *models.Article, in DraftInput) {
	if in.SpaceID != "" {
		a.SpaceID = in.SpaceID
	}
	if in.Title != "" {
		a.Title = in.Title
		a.Name = util.GenerateSlug(in.Title)
	}
	if in.Summary != "" {
		a.Summary = in.Summary
	}
	if in.Body != "" {
		a.Body = in.Body
	}
	if in.Audience != "" {
		a.Audience = in.Audience
	}
	if in.Targets != nil {
		a.Targets = models.StringArray(util.Unique(in.Targets))
	}
	if in.IllustrationURL != "" {
		a.IllustrationURL = in.IllustrationURL
	}
}

func draftInputOf(a *models.Article) DraftInput {
	return DraftInput{
		SpaceID:         a.SpaceID,
		Title:           a.Title,
		Summary:         a.Summary,
		Body:            a.Body,
		Audience:        a.Audience,
		Targets:         append([]string(nil), a.Targets...),
		IllustrationURL: a.IllustrationURL,
	}
}
