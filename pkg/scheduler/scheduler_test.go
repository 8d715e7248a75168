package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/hodei/orchestrator/pkg/domain"
	"github.com/hodei/orchestrator/pkg/hodeierr"
	"github.com/hodei/orchestrator/pkg/placement"
	"github.com/hodei/orchestrator/pkg/pool"
	"github.com/hodei/orchestrator/pkg/quota"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRegistry struct {
	pools map[string]*domain.ResourcePool
}

func (f *fakeRegistry) Get(ctx context.Context, id string) (*domain.ResourcePool, error) {
	return f.pools[id], nil
}
func (f *fakeRegistry) Create(ctx context.Context, p *domain.ResourcePool) error { return nil }
func (f *fakeRegistry) Update(ctx context.Context, p *domain.ResourcePool) error { return nil }
func (f *fakeRegistry) Delete(ctx context.Context, id string) error              { return nil }
func (f *fakeRegistry) ListActive(ctx context.Context) ([]*domain.ResourcePool, error) {
	var out []*domain.ResourcePool
	for _, p := range f.pools {
		if p.Status == domain.PoolActive {
			out = append(out, p)
		}
	}
	return out, nil
}

type fixedMonitor struct {
	byPool map[string]pool.Utilization
}

func (m *fixedMonitor) Snapshot(ctx context.Context, p *domain.ResourcePool) (pool.Utilization, error) {
	return m.byPool[p.ID], nil
}

func newScheduler(pools map[string]*domain.ResourcePool, utils map[string]pool.Utilization) *Scheduler {
	svc := pool.NewService(&fakeRegistry{pools: pools},
		map[domain.ProviderKind]pool.ResourceMonitor{domain.ProviderLocal: &fixedMonitor{byPool: utils}},
		pool.NewMemoryCache())
	rr := placement.NewRoundRobin()
	return New(svc, func(string) (*quota.Quota, bool) { return nil, false }, placement.Registry(rr))
}

func TestSchedule_NoActivePools(t *testing.T) {
	s := newScheduler(map[string]*domain.ResourcePool{}, nil)
	_, err := s.Schedule(context.Background(), &domain.Job{}, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, hodeierr.InsufficientResources("", "")))
}

func TestSchedule_NoEligiblePool_AllTooSmall(t *testing.T) {
	pools := map[string]*domain.ResourcePool{
		"a": {ID: "a", Provider: domain.ProviderLocal, Status: domain.PoolActive},
	}
	utils := map[string]pool.Utilization{
		"a": {TotalCPU: 1, UsedCPU: 1},
	}
	s := newScheduler(pools, utils)
	job := &domain.Job{Resources: domain.ResourceRequirements{CPUCores: 2}}
	_, err := s.Schedule(context.Background(), job, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, hodeierr.InsufficientResources("", "")))
}

func TestSchedule_LeastLoaded_PicksLowestCombinedScore(t *testing.T) {
	pools := map[string]*domain.ResourcePool{
		"a": {ID: "a", Provider: domain.ProviderLocal, Status: domain.PoolActive},
		"b": {ID: "b", Provider: domain.ProviderLocal, Status: domain.PoolActive},
	}
	utils := map[string]pool.Utilization{
		"a": {TotalCPU: 10, UsedCPU: 8, TotalMemoryBytes: 100, UsedMemoryBytes: 80},
		"b": {TotalCPU: 10, UsedCPU: 2, TotalMemoryBytes: 100, UsedMemoryBytes: 20},
	}
	s := newScheduler(pools, utils)
	job := &domain.Job{Resources: domain.ResourceRequirements{CPUCores: 1}}
	chosen, err := s.Schedule(context.Background(), job, "leastloaded")
	require.NoError(t, err)
	assert.Equal(t, "b", chosen.ID)
}

func TestSchedule_ExplicitPool_RejectedWhenInsufficient(t *testing.T) {
	pools := map[string]*domain.ResourcePool{
		"a": {ID: "a", Provider: domain.ProviderLocal, Status: domain.PoolActive},
	}
	utils := map[string]pool.Utilization{
		"a": {TotalCPU: 1, UsedCPU: 1},
	}
	s := newScheduler(pools, utils)
	job := &domain.Job{PoolID: "a", Resources: domain.ResourceRequirements{CPUCores: 1}}
	_, err := s.Schedule(context.Background(), job, "")
	require.Error(t, err)
}

func TestSchedule_AffinitySelector_ExcludesNonMatchingPool(t *testing.T) {
	pools := map[string]*domain.ResourcePool{
		"a": {ID: "a", Provider: domain.ProviderLocal, Status: domain.PoolActive,
			Policies: domain.PoolPolicies{Selectors: map[string]string{"zone": "us-east"}}},
		"b": {ID: "b", Provider: domain.ProviderLocal, Status: domain.PoolActive,
			Policies: domain.PoolPolicies{Selectors: map[string]string{"zone": "us-west"}}},
	}
	utils := map[string]pool.Utilization{
		"a": {TotalCPU: 10}, "b": {TotalCPU: 10},
	}
	s := newScheduler(pools, utils)
	job := &domain.Job{
		Annotations: map[string]string{"hodei.io/selector/zone": "us-west"},
	}
	chosen, err := s.Schedule(context.Background(), job, "leastloaded")
	require.NoError(t, err)
	assert.Equal(t, "b", chosen.ID)
}

func TestSchedule_RoundRobin_RotatesDeterministically(t *testing.T) {
	pools := map[string]*domain.ResourcePool{
		"a": {ID: "a", Provider: domain.ProviderLocal, Status: domain.PoolActive},
		"b": {ID: "b", Provider: domain.ProviderLocal, Status: domain.PoolActive},
	}
	utils := map[string]pool.Utilization{
		"a": {TotalCPU: 10}, "b": {TotalCPU: 10},
	}
	s := newScheduler(pools, utils)
	job := &domain.Job{}
	first, err := s.Schedule(context.Background(), job, "roundrobin")
	require.NoError(t, err)
	second, err := s.Schedule(context.Background(), job, "roundrobin")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestSchedule_ValidatesResourceRequirements(t *testing.T) {
	s := newScheduler(map[string]*domain.ResourcePool{
		"a": {ID: "a", Provider: domain.ProviderLocal, Status: domain.PoolActive},
	}, map[string]pool.Utilization{"a": {TotalCPU: 10}})
	job := &domain.Job{Resources: domain.ResourceRequirements{CPUCores: -1}}
	_, err := s.Schedule(context.Background(), job, "")
	require.Error(t, err)
}
