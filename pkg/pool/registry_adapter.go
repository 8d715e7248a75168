package pool

import (
	"context"

	"github.com/hodei/orchestrator/pkg/domain"
	"github.com/hodei/orchestrator/pkg/storage"
)

// storageRegistry adapts a storage.ResourcePoolRepository to Registry. Create
// and Update both map onto the repository's single Save, which is an upsert
// in every backend (memory, bolt, postgres).
type storageRegistry struct {
	repo storage.ResourcePoolRepository
}

// NewStorageRegistry builds the Registry every deployment wires its chosen
// storage backend's ResourcePoolRepository through
func NewStorageRegistry(repo storage.ResourcePoolRepository) Registry {
	return &storageRegistry{repo: repo}
}

func (r *storageRegistry) Get(ctx context.Context, id string) (*domain.ResourcePool, error) {
	return r.repo.FindByID(ctx, id)
}

func (r *storageRegistry) Create(ctx context.Context, p *domain.ResourcePool) error {
	return r.repo.Save(ctx, p)
}

func (r *storageRegistry) Update(ctx context.Context, p *domain.ResourcePool) error {
	return r.repo.Save(ctx, p)
}

func (r *storageRegistry) Delete(ctx context.Context, id string) error {
	return r.repo.Delete(ctx, id)
}

func (r *storageRegistry) ListActive(ctx context.Context) ([]*domain.ResourcePool, error) {
	return r.repo.FindActive(ctx)
}
