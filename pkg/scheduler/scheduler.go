// Package scheduler implements the placement algorithm:
// fetch active pools, narrow to eligible candidates, then apply a named
// strategy deterministically.
package scheduler

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hodei/orchestrator/pkg/domain"
	"github.com/hodei/orchestrator/pkg/hodeierr"
	"github.com/hodei/orchestrator/pkg/metrics"
	"github.com/hodei/orchestrator/pkg/placement"
	"github.com/hodei/orchestrator/pkg/pool"
	"github.com/hodei/orchestrator/pkg/quota"
)

const selectorAnnotationPrefix = "hodei.io/selector/"

const DefaultStrategy = "leastloaded"

// QuotaLookup resolves the live *quota.Quota for a pool. The Scheduler holds
// it but does not consult it when choosing a pool: the quota check and
// allocation both happen later, in pkg/engine, once a pool has been chosen.
type QuotaLookup func(poolID string) (*quota.Quota, bool)

// Scheduler combines the pool registry, utilization and strategies into the
// Schedule algorithm.
type Scheduler struct {
	pools *pool.Service
	quotas QuotaLookup
	strategies map[string]placement.Strategy
	validate *validator.Validate
}

func New(pools *pool.Service, quotas QuotaLookup, strategies map[string]placement.Strategy) *Scheduler {
	return &Scheduler{pools: pools, quotas: quotas, strategies: strategies, validate: validator.New()}
}

func (s *Scheduler) AvailableStrategies() []string {
	names := make([]string, 0, len(s.strategies))
	for name := range s.strategies {
		names = append(names, name)
	}
	return names
}

// Schedule implements four-step algorithm.
func (s *Scheduler) Schedule(ctx context.Context, job *domain.Job, strategyName string) (*domain.ResourcePool, error) {
	if strategyName == "" {
		strategyName = DefaultStrategy
	}
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.SchedulingLatency, strategyName)

	chosen, err := s.schedule(ctx, job, strategyName)
	if err != nil {
		metrics.SchedulingFailuresTotal.WithLabelValues(failureReason(err)).Inc()
	}
	return chosen, err
}

func failureReason(err error) string {
	var herr *hodeierr.Error
	if errors.As(err, &herr) {
		return string(herr.Kind)
	}
	return "unknown"
}

func (s *Scheduler) schedule(ctx context.Context, job *domain.Job, strategyName string) (*domain.ResourcePool, error) {
	if err := s.validate.Struct(job.Resources); err != nil {
		return nil, hodeierr.Validation("invalid resource requirements: %v", err)
	}

	pools, err := s.pools.ActivePools(ctx)
	if err != nil {
		return nil, hodeierr.Wrap(hodeierr.KindRepository, "list active pools", err)
	}
	if len(pools) == 0 {
		return nil, hodeierr.InsufficientResources("no active pool can host job %q", job.ID)
	}

	if job.PoolID != "" {
		return s.scheduleToRequestedPool(ctx, job)
	}

	candidates, err := s.eligibleCandidates(ctx, job, pools)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, hodeierr.InsufficientResources("no eligible pool can host job %q", job.ID)
	}

	strategy, ok := s.strategies[strategyName]
	if !ok {
		return nil, hodeierr.Validation("unknown placement strategy %q", strategyName)
	}
	chosen := strategy(candidates)
	if chosen == nil {
		return nil, hodeierr.InsufficientResources("no eligible pool can host job %q", job.ID)
	}
	return chosen, nil
}

func (s *Scheduler) scheduleToRequestedPool(ctx context.Context, job *domain.Job) (*domain.ResourcePool, error) {
	p, err := s.pools.GetPool(ctx, job.PoolID)
	if err != nil || p == nil {
		return nil, hodeierr.BusinessRule("requested_pool_insufficient: pool %q not found", job.PoolID)
	}
	u, err := s.pools.Utilization(ctx, p)
	if err != nil {
		return nil, hodeierr.BusinessRule("requested_pool_insufficient: %v", err)
	}
	if !satisfiesRequirements(u, p, job.Resources) {
		return nil, hodeierr.BusinessRule("requested_pool_insufficient: pool %q lacks remaining capacity", job.PoolID)
	}
	return p, nil
}

func (s *Scheduler) eligibleCandidates(ctx context.Context, job *domain.Job, pools []*domain.ResourcePool) ([]placement.Candidate, error) {
	requestedSelectors := jobSelectors(job)
	var candidates []placement.Candidate
	for _, p := range pools {
		if !p.MatchesSelectors(requestedSelectors) {
			continue
		}
		u, err := s.pools.Utilization(ctx, p)
		if err != nil {
			continue
		}
		if !satisfiesRequirements(u, p, job.Resources) {
			continue
		}
		candidates = append(candidates, placement.Candidate{Pool: p, Utilization: u})
	}
	return candidates, nil
}

func satisfiesRequirements(u pool.Utilization, p *domain.ResourcePool, req domain.ResourceRequirements) bool {
	if u.AvailableCPU() < req.CPUCores {
		return false
	}
	if u.AvailableMemoryBytes() < req.MemoryBytes {
		return false
	}
	if p.Policies.MaxJobs > 0 && u.RunningJobs >= p.Policies.MaxJobs {
		return false
	}
	return true
}

func jobSelectors(job *domain.Job) map[string]string {
	out := map[string]string{}
	for k, v := range job.Annotations {
		if strings.HasPrefix(k, selectorAnnotationPrefix) {
			out[strings.TrimPrefix(k, selectorAnnotationPrefix)] = v
		}
	}
	return out
}
