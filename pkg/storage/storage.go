// Package storage defines the five repository interfaces the core consumes
//: JobRepository, ResourcePoolRepository, WorkerRepository,
// TemplateRepository and ArtifactRepository. The core never assumes a
// backing store; pkg/storage/{memory,bolt,postgres} are the collaborators
// that implement these against concrete engines.
package storage

import (
	"context"
	"time"

	"github.com/hodei/orchestrator/pkg/domain"
)

// Page is the cursor a paginated list call is requested with.
type Page struct {
	Number int
	Size int
}

// JobFilter narrows JobRepository.List; a nil/empty field means "no filter".
type JobFilter struct {
	Status domain.JobStatus
	Namespace string
}

type JobRepository interface {
	Save(ctx context.Context, job *domain.Job) error
	FindByID(ctx context.Context, id string) (*domain.Job, error)
	FindByName(ctx context.Context, name, namespace string) (*domain.Job, error)
	List(ctx context.Context, page Page, filter JobFilter) ([]*domain.Job, error)
	Update(ctx context.Context, job *domain.Job) error
	Delete(ctx context.Context, id string) error
	ExistsByName(ctx context.Context, name, namespace string) (bool, error)
	CountByStatus(ctx context.Context, status domain.JobStatus) (int64, error)
	FindByTemplateID(ctx context.Context, templateID string) ([]*domain.Job, error)
}

type ResourcePoolRepository interface {
	Save(ctx context.Context, pool *domain.ResourcePool) error
	FindByID(ctx context.Context, id string) (*domain.ResourcePool, error)
	FindActive(ctx context.Context) ([]*domain.ResourcePool, error)
	FindAll(ctx context.Context) ([]*domain.ResourcePool, error)
	Delete(ctx context.Context, id string) error
}

type WorkerRepository interface {
	Save(ctx context.Context, worker *domain.Worker) error
	FindByID(ctx context.Context, id string) (*domain.Worker, error)
	FindAvailable(ctx context.Context, poolID string) ([]*domain.Worker, error)
	FindByPool(ctx context.Context, poolID string) ([]*domain.Worker, error)
	Delete(ctx context.Context, id string) error
}

// TemplateSearchQuery drives Search: a case-insensitive substring match
// over name and tags.
type TemplateSearchQuery struct {
	Text string
	Page Page
}

type TemplateRepository interface {
	Save(ctx context.Context, tpl *domain.Template) error
	FindByID(ctx context.Context, id string) (*domain.Template, error)
	FindByNameAndVersion(ctx context.Context, name, version string) (*domain.Template, error)
	FindByName(ctx context.Context, name string) ([]*domain.Template, error)
	List(ctx context.Context, page Page) ([]*domain.Template, error)
	Search(ctx context.Context, query TemplateSearchQuery) ([]*domain.Template, error)
	ExistsByNameAndVersion(ctx context.Context, name, version string) (bool, error)
	UpdateStatistics(ctx context.Context, id string, usageDelta int64) error
	Exists(ctx context.Context, id string) (bool, error)
}

type ArtifactRepository interface {
	Save(ctx context.Context, artifact *domain.Artifact) error
	FindByID(ctx context.Context, id string) (*domain.Artifact, error)
	FindByJobID(ctx context.Context, jobID string) ([]*domain.Artifact, error)
	FindByExecutionID(ctx context.Context, executionID string) ([]*domain.Artifact, error)
	FindByPoolID(ctx context.Context, poolID string) ([]*domain.Artifact, error)
	FindByNameAndVersion(ctx context.Context, name, version string) (*domain.Artifact, error)
	FindVersionsByName(ctx context.Context, name string) ([]*domain.Artifact, error)
	FindByStatus(ctx context.Context, status domain.ArtifactStatus) ([]*domain.Artifact, error)
	FindExpiredArtifacts(ctx context.Context, asOf time.Time) ([]*domain.Artifact, error)
	FindByType(ctx context.Context, kind domain.ArtifactType) ([]*domain.Artifact, error)
	DeleteByID(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id string, status domain.ArtifactStatus) error
	CountByPool(ctx context.Context, poolID string) (int64, error)
	GetTotalSizeByPool(ctx context.Context, poolID string) (int64, error)
}
