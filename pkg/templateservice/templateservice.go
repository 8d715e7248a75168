// Package templateservice implements Template CRUD, versioning and
// publishing for the Template entity, plus a search-by-tag operation
// resolved as a case-insensitive substring match over name and tags.
package templateservice

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hodei/orchestrator/pkg/domain"
	"github.com/hodei/orchestrator/pkg/hodeierr"
	"github.com/hodei/orchestrator/pkg/log"
	"github.com/hodei/orchestrator/pkg/storage"
)

// Service implements template lifecycle management backed by a
// storage.TemplateRepository.
type Service struct {
	templates	storage.TemplateRepository
	logger	zerolog.Logger
}

func New(templates storage.TemplateRepository) *Service {
	return &Service{templates: templates, logger: log.WithComponent("templateservice")}
}

// Create persists a new Draft template. (name, version) must be unique.
func (s *Service) Create(ctx context.Context, tpl *domain.Template) (string, error) {
	if tpl.Name == "" || tpl.Version == "" {
		return "", hodeierr.Validation("template name and version are required")
	}
	exists, err := s.templates.ExistsByNameAndVersion(ctx, tpl.Name, tpl.Version)
	if err != nil {
		return "", hodeierr.Wrap(hodeierr.KindRepository, "check template uniqueness", err)
	}
	if	exists {
		return "", hodeierr.Conflict("template %s@%s already exists", tpl.Name, tpl.Version)
	}
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}
	now := time.Now()
	tpl.Status = domain.TemplateDraft
	tpl.CreatedAt = now
	tpl.UpdatedAt = now
	if err := s.templates.Save(ctx, tpl); err != nil {
		return "", hodeierr.Wrap(hodeierr.KindRepository, "save template", err)
	}
	return	tpl.ID, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Template, error) {
	tpl, err := s.templates.FindByID(ctx, id)
	if err != nil {
		return nil, hodeierr.Wrap(hodeierr.KindRepository, "find template", err)
	}
	if tpl == nil {
		return nil, hodeierr.NotFound("template", id)
	}
	return	tpl, nil
}

func (s *Service) GetByNameAndVersion(ctx context.Context, name, version string) (*domain.Template, error) {
	tpl, err := s.templates.FindByNameAndVersion(ctx, name, version)
	if err != nil {
		return nil, hodeierr.Wrap(hodeierr.KindRepository, "find template by name/version", err)
	}
	if tpl == nil {
		return nil, hodeierr.NotFound("template", name+"@"+version)
	}
	return	tpl, nil
}

func (s *Service) Versions(ctx context.Context, name string) ([]*domain.Template, error) {
	return s.templates.FindByName(ctx, name)
}

func (s *Service) List(ctx context.Context, page storage.Page) ([]*domain.Template, error) {
	return s.templates.List(ctx, page)
}

// Search delegates to the repository's substring match over name and
// tags, kept identical across every storage backend rather than
// re-derived per backend (SQL ILIKE vs. bbolt scan).
func (s *Service) Search(ctx context.Context, query storage.TemplateSearchQuery) ([]*domain.Template, error) {
	return s.templates.Search(ctx, query)
}

// Validate transitions a Draft template to Validating, the gate before
// Publish.
func (s *Service) Validate(ctx context.Context, id string) error {
	tpl, err := s.Get(ctx, id)
	if err != nil {
		return	err
	}
	if err := tpl.UpdateStatus(domain.TemplateValidating); err != nil {
		return	err
	}
	return s.save(ctx, tpl)
}

// Publish makes a Validating template Instantiable by Job creation.
func (s *Service) Publish(ctx context.Context, id string) error {
	tpl, err := s.Get(ctx, id)
	if err != nil {
		return	err
	}
	if err := tpl.UpdateStatus(domain.TemplatePublished); err != nil {
		return	err
	}
	return s.save(ctx, tpl)
}

// Deprecate marks a Published template as no longer recommended for new
// jobs, without revoking already-pinned TemplateRefs.
func (s *Service) Deprecate(ctx context.Context, id string) error {
	tpl, err := s.Get(ctx, id)
	if err != nil {
		return	err
	}
	if err := tpl.UpdateStatus(domain.TemplateDeprecated); err != nil {
		return	err
	}
	return s.save(ctx, tpl)
}

// Archive retires a Deprecated template permanently.
func (s *Service) Archive(ctx context.Context, id string) error {
	tpl, err := s.Get(ctx, id)
	if err != nil {
		return	err
	}
	if err := tpl.UpdateStatus(domain.TemplateArchived); err != nil {
		return	err
	}
	return s.save(ctx, tpl)
}

// RecordUsage increments a template's usage counter whenever a Job is
// instantiated from it.
func (s *Service) RecordUsage(ctx context.Context, id string) error {
	return s.templates.UpdateStatistics(ctx, id, 1)
}

func (s *Service) save(ctx context.Context, tpl *domain.Template) error {
	if err := s.templates.Save(ctx, tpl); err != nil {
		return hodeierr.Wrap(hodeierr.KindRepository, "save template", err)
	}
	return	nil
}
