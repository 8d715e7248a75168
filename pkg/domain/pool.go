package domain

import (
	"time"

	"github.com/hodei/orchestrator/pkg/hodeierr"
)

// ProviderKind is the closed sum type over compute backends a ResourcePool
// can be served by.
type ProviderKind string

const (
	ProviderContainerDaemon ProviderKind = "container_daemon"
	ProviderClusterAPI ProviderKind = "cluster_api"
	ProviderCloudVendors ProviderKind = "cloud_vendors"
	ProviderLocal ProviderKind = "local"
)

// PoolStatus is the closed sum type driving ResourcePool's lifecycle.
type PoolStatus string

const (
	PoolProvisioning PoolStatus = "provisioning"
	PoolActive PoolStatus = "active"
	PoolDraining PoolStatus = "draining"
	PoolMaintenance PoolStatus = "maintenance"
	PoolError PoolStatus = "error"
)

var poolTransitions = map[PoolStatus][]PoolStatus{
	PoolProvisioning: {PoolActive, PoolError},
	PoolActive: {PoolDraining, PoolMaintenance, PoolError},
	PoolDraining: {PoolActive, PoolMaintenance},
	PoolMaintenance: {PoolActive},
	PoolError: {PoolActive},
}

func (s PoolStatus) CanTransitionTo(target PoolStatus) bool {
	for _, allowed := range poolTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// PoolPolicies bounds how a pool may scale, which jobs it accepts by
// affinity selector, and what it may cost.
type PoolPolicies struct {
	MinWorkers int
	MaxWorkers int
	Selectors map[string]string
	CostCapPerHour float64
	MaxJobs int // 0 = unbounded
}

// CapacitySnapshot is the pool's self-reported capacity, distinct from the
// live Utilization the monitor produces (pkg/pool).
type CapacitySnapshot struct {
	TotalCPU float64
	AvailableCPU float64
	TotalMemory int64
	AvailableMemory int64
	WorkerCount int
	IdleWorkers int
}

// ResourcePool is a named set of compute resources served by one provider
// adapter.
type ResourcePool struct {
	ID string
	Name string
	Provider ProviderKind
	ProviderConfig []byte // opaque, provider-specific (kubeconfig ref, containerd socket,...)
	Policies PoolPolicies
	Status PoolStatus
	Capacity CapacitySnapshot
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *ResourcePool) UpdateStatus(target PoolStatus) error {
	if p.Status == target {
		return nil
	}
	if !p.Status.CanTransitionTo(target) {
		return hodeierr.BusinessRule("pool %s: cannot transition %s -> %s", p.ID, p.Status, target)
	}
	p.Status = target
	p.UpdatedAt = time.Now()
	return nil
}

// CanAcceptJobs is the sole admission predicate on pool status.
func (p *ResourcePool) CanAcceptJobs() bool {
	return p.Status == PoolActive
}

// MatchesSelectors reports whether the pool's affinity selectors are a
// subset-match of job's requested selectors (every key the job asks for
// must be present with an equal value on the pool).
func (p *ResourcePool) MatchesSelectors(requested map[string]string) bool {
	for k, v := range requested {
		if p.Policies.Selectors[k] != v {
			return false
		}
	}
	return true
}
