// Package pool implements the resource-pool registry and utilization
// monitor
package pool

import (
	"context"
	"sync"
	"time"

	"github.com/hodei/orchestrator/pkg/domain"
	"github.com/hodei/orchestrator/pkg/hodeierr"
)

// Utilization is the fresh-or-cached snapshot the Scheduler treats as
// advisory
type Utilization struct {
	PoolID string
	TotalCPU float64
	UsedCPU float64
	TotalMemoryBytes int64
	UsedMemoryBytes int64
	TotalDiskBytes int64
	UsedDiskBytes int64
	RunningJobs int
	QueuedJobs int
	Timestamp time.Time
}

func (u Utilization) AvailableCPU() float64 { return u.TotalCPU - u.UsedCPU }
func (u Utilization) AvailableMemoryBytes() int64 { return u.TotalMemoryBytes - u.UsedMemoryBytes }

func (u Utilization) CPUUtil() float64 {
	if u.TotalCPU <= 0 {
		return 0
	}
	return u.UsedCPU / u.TotalCPU
}

func (u Utilization) MemUtil() float64 {
	if u.TotalMemoryBytes <= 0 {
		return 0
	}
	return float64(u.UsedMemoryBytes) / float64(u.TotalMemoryBytes)
}

// ResourceMonitor produces a fresh Utilization snapshot for one pool, keyed
// by provider kind. Concrete monitors live alongside their provider
// adapter; this package only consumes the interface.
type ResourceMonitor interface {
	Snapshot(ctx context.Context, p *domain.ResourcePool) (Utilization, error)
}

// UtilizationCache lets the Service serve a recent snapshot without calling
// the ResourceMonitor on every request. Both the redis-backed and the
// in-process TTL implementation satisfy this interface
// so the Scheduler never knows which is active.
type UtilizationCache interface {
	Get(ctx context.Context, poolID string) (Utilization, bool)
	Set(ctx context.Context, poolID string, u Utilization, ttl time.Duration)
}

// Registry is the pool CRUD surface; backed by pkg/storage.ResourcePoolRepository.
type Registry interface {
	Get(ctx context.Context, id string) (*domain.ResourcePool, error)
	Create(ctx context.Context, p *domain.ResourcePool) error
	Update(ctx context.Context, p *domain.ResourcePool) error
	Delete(ctx context.Context, id string) error
	ListActive(ctx context.Context) ([]*domain.ResourcePool, error)
}

// Service maintains the pool registry and hands out utilization snapshots,
// exactly
type Service struct {
	mu sync.RWMutex
	registry Registry
	monitors map[domain.ProviderKind]ResourceMonitor
	cache UtilizationCache
	cacheTTL time.Duration
}

const DefaultCacheTTL = 3 * time.Second

func NewService(registry Registry, monitors map[domain.ProviderKind]ResourceMonitor, cache UtilizationCache) *Service {
	return &Service{registry: registry, monitors: monitors, cache: cache, cacheTTL: DefaultCacheTTL}
}

func (s *Service) CreatePool(ctx context.Context, p *domain.ResourcePool) error {
	return s.registry.Create(ctx, p)
}

func (s *Service) GetPool(ctx context.Context, id string) (*domain.ResourcePool, error) {
	return s.registry.Get(ctx, id)
}

func (s *Service) UpdatePool(ctx context.Context, p *domain.ResourcePool) error {
	return s.registry.Update(ctx, p)
}

func (s *Service) DeletePool(ctx context.Context, id string) error {
	return s.registry.Delete(ctx, id)
}

func (s *Service) ActivePools(ctx context.Context) ([]*domain.ResourcePool, error) {
	return s.registry.ListActive(ctx)
}

// Utilization returns a fresh-or-cached snapshot for the given pool. A
// cache hit is returned verbatim, including its original Timestamp, so
// callers can see how stale it is.
func (s *Service) Utilization(ctx context.Context, p *domain.ResourcePool) (Utilization, error) {
	if s.cache != nil {
		if u, ok := s.cache.Get(ctx, p.ID); ok {
			return u, nil
		}
	}

	s.mu.RLock()
	monitor, ok := s.monitors[p.Provider]
	s.mu.RUnlock()
	if !ok {
		return Utilization{}, hodeierr.NotFound("resource_monitor", string(p.Provider))
	}

	snap, err := monitor.Snapshot(ctx, p)
	if err != nil {
		return Utilization{}, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, p.ID, snap, s.cacheTTL)
	}
	return snap, nil
}
