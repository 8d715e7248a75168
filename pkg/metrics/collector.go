package metrics

import (
	"context"
	"time"

	"github.com/hodei/orchestrator/pkg/domain"
	"github.com/hodei/orchestrator/pkg/pool"
	"github.com/hodei/orchestrator/pkg/storage"
)

var allJobStatuses = []domain.JobStatus{
	domain.JobPending, domain.JobQueued, domain.JobScheduled,
	domain.JobRunning, domain.JobCompleted, domain.JobFailed, domain.JobCancelled,
}

var allPoolStatuses = []domain.PoolStatus{
	domain.PoolProvisioning, domain.PoolActive, domain.PoolDraining,
	domain.PoolMaintenance, domain.PoolError,
}

// Collector periodically samples the repositories and pool service to keep
// the gauge-shaped metrics (counts, utilization) current between the
// counter-shaped metrics the engine updates inline as events happen.
type Collector struct {
	jobs   storage.JobRepository
	pools  storage.ResourcePoolRepository
	worker storage.WorkerRepository
	svc    *pool.Service
	stopCh chan struct{}
}

func NewCollector(jobs storage.JobRepository, pools storage.ResourcePoolRepository, workers storage.WorkerRepository, svc *pool.Service) *Collector {
	return &Collector{jobs: jobs, pools: pools, worker: workers, svc: svc, stopCh: make(chan struct{})}
}

// Start begins collecting metrics on a fixed interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c.collectJobMetrics(ctx)
	c.collectPoolMetrics(ctx)
}

func (c *Collector) collectJobMetrics(ctx context.Context) {
	for _, status := range allJobStatuses {
		count, err := c.jobs.CountByStatus(ctx, status)
		if err != nil {
			continue
		}
		JobsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}

func (c *Collector) collectPoolMetrics(ctx context.Context) {
	pools, err := c.pools.FindAll(ctx)
	if err != nil {
		return
	}

	poolStatusCounts := make(map[domain.PoolStatus]int)
	for _, status := range allPoolStatuses {
		poolStatusCounts[status] = 0
	}
	for _, p := range pools {
		poolStatusCounts[p.Status]++

		workers, err := c.worker.FindByPool(ctx, p.ID)
		if err == nil {
			workerStatusCounts := make(map[domain.WorkerStatus]int)
			for _, w := range workers {
				workerStatusCounts[w.Status]++
			}
			for status, count := range workerStatusCounts {
				WorkersTotal.WithLabelValues(p.ID, string(status)).Set(float64(count))
			}
		}

		if c.svc == nil {
			continue
		}
		util, err := c.svc.Utilization(ctx, p)
		if err != nil {
			continue
		}
		PoolCPUUtilization.WithLabelValues(p.ID).Set(util.CPUUtil())
		PoolMemoryUtilization.WithLabelValues(p.ID).Set(util.MemUtil())
	}

	for status, count := range poolStatusCounts {
		PoolsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}
