package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ifuryst/quill/internal/models"
	"github.com/ifuryst/quill/internal/publication"
	"github.com/ifuryst/quill/internal/store"
)

type TargetInput struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// TargetService manages the named groups articles are published into.
type TargetService struct {
	targets store.TargetStore
	caps    CapabilityCheck
	logger  *zap.Logger
}

func NewTargetService(targets store.TargetStore, caps CapabilityCheck, logger *zap.Logger) *TargetService {
	return &TargetService{
		targets: targets,
		caps:    caps,
		logger:  logger,
	}
}

func (s *TargetService) List(ctx context.Context) ([]models.Target, error) {
	return s.targets.ListTargets(ctx)
}

// Allowed lists the targets actor may publish into. A target without
// permissions is open to everyone.
func (s *TargetService) Allowed(ctx context.Context, actor publication.Actor) ([]models.Target, error) {
	all, err := s.targets.ListTargets(ctx)
	if err != nil {
		return nil, err
	}
	if actor.System {
		return all, nil
	}

	allowed := make([]models.Target, 0, len(all))
	for _, t := range all {
		if len(t.Permissions) == 0 || memberOfAny(actor, t.Permissions) {
			allowed = append(allowed, t)
		}
	}
	return allowed, nil
}

func (s *TargetService) Create(ctx context.Context, input TargetInput, actor publication.Actor) (*models.Target, error) {
	if err := s.authorize(ctx, actor, "create"); err != nil {
		return nil, err
	}
	name, err := targetName(input.Name)
	if err != nil {
		return nil, err
	}

	target := &models.Target{
		Name:        name,
		Label:       input.Label,
		Description: input.Description,
		Permissions: models.StringArray(input.Permissions),
		CreatedBy:   actor.ID,
	}
	if err := s.targets.CreateTarget(ctx, target); err != nil {
		return nil, err
	}

	s.logger.Info("Target created", zap.String("target", name), zap.String("actor", actor.ID))
	return target, nil
}

func (s *TargetService) Update(ctx context.Context, originalName string, input TargetInput, actor publication.Actor) (*models.Target, error) {
	if err := s.authorize(ctx, actor, "update"); err != nil {
		return nil, err
	}
	name := originalName
	if strings.TrimSpace(input.Name) != "" {
		var err error
		if name, err = targetName(input.Name); err != nil {
			return nil, err
		}
	}

	target := &models.Target{
		Name:        name,
		Label:       input.Label,
		Description: input.Description,
		Permissions: models.StringArray(input.Permissions),
	}
	if err := s.targets.UpdateTarget(ctx, originalName, target); err != nil {
		return nil, err
	}

	s.logger.Info("Target updated",
		zap.String("target", originalName),
		zap.String("name", name),
		zap.String("actor", actor.ID))
	return target, nil
}

func (s *TargetService) Delete(ctx context.Context, name string, actor publication.Actor) error {
	if err := s.authorize(ctx, actor, "delete"); err != nil {
		return err
	}
	if err := s.targets.DeleteTarget(ctx, name); err != nil {
		return err
	}
	s.logger.Info("Target deleted", zap.String("target", name), zap.String("actor", actor.ID))
	return nil
}

func (s *TargetService) ArticleTargets(ctx context.Context, articleID string) ([]models.ArticleTarget, error) {
	return s.targets.ArticleTargets(ctx, articleID)
}

func (s *TargetService) Articles(ctx context.Context, name string, page store.Page) ([]models.ArticleTarget, error) {
	if _, err := s.targets.GetTarget(ctx, name); err != nil {
		return nil, err
	}
	return s.targets.ArticlesByTarget(ctx, name, page)
}

func (s *TargetService) authorize(ctx context.Context, actor publication.Actor, op string) error {
	if !s.caps.CanManageTargets(ctx, actor) {
		return fmt.Errorf("%s target: %w", op, &publication.PermissionError{Actor: actor.ID, Action: "manage_targets"})
	}
	return nil
}

func targetName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("%w: target name is required", publication.ErrInvalidInput)
	}
	if len(name) > 255 {
		return "", fmt.Errorf("%w: target name is too long", publication.ErrInvalidInput)
	}
	return name, nil
}
