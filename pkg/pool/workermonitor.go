package pool

import (
	"context"
	"time"

	"github.com/hodei/orchestrator/pkg/domain"
	"github.com/hodei/orchestrator/pkg/storage"
)

// WorkerMonitor is the default ResourceMonitor: it derives a pool's live
// utilization from the workers currently registered against it rather than
// querying the provider backend directly. One instance is shared across
// every ProviderKind since the computation only depends on
// storage.WorkerRepository, not on provider-specific APIs.
type WorkerMonitor struct {
	workers storage.WorkerRepository
}

func NewWorkerMonitor(workers storage.WorkerRepository) *WorkerMonitor {
	return &WorkerMonitor{workers: workers}
}

func (m *WorkerMonitor) Snapshot(ctx context.Context, p *domain.ResourcePool) (Utilization, error) {
	workers, err := m.workers.FindByPool(ctx, p.ID)
	if err != nil {
		return Utilization{}, err
	}

	u := Utilization{PoolID: p.ID, Timestamp: time.Now()}
	for _, w := range workers {
		if w.Status == domain.WorkerTerminated || w.Status == domain.WorkerTerminating {
			continue
		}
		u.TotalCPU += w.Capabilities.CPUCores
		u.TotalMemoryBytes += w.Capabilities.MemoryBytes
		u.TotalDiskBytes += w.Capabilities.StorageBytes
		u.UsedCPU += w.Allocation.CPUCores
		u.UsedMemoryBytes += w.Allocation.MemoryBytes
		if w.IsBusy() {
			u.RunningJobs++
		}
	}
	return u, nil
}
