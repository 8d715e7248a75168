package domain

import (
	"time"

	"github.com/hodei/orchestrator/pkg/hodeierr"
)

// WorkerStatus is the closed sum type driving Worker's lifecycle.
type WorkerStatus string

const (
	WorkerProvisioning WorkerStatus = "provisioning"
	WorkerIdle WorkerStatus = "idle"
	WorkerBusy WorkerStatus = "busy"
	WorkerDraining WorkerStatus = "draining"
	WorkerMaintenance WorkerStatus = "maintenance"
	WorkerTerminating WorkerStatus = "terminating"
	WorkerTerminated WorkerStatus = "terminated"
	WorkerError WorkerStatus = "error"
)

var workerTransitions = map[WorkerStatus][]WorkerStatus{
	WorkerProvisioning: {WorkerIdle, WorkerError, WorkerTerminating},
	WorkerIdle: {WorkerBusy, WorkerDraining, WorkerMaintenance, WorkerTerminating, WorkerError},
	WorkerBusy: {WorkerIdle, WorkerDraining, WorkerError},
	WorkerDraining: {WorkerTerminating, WorkerIdle, WorkerError},
	WorkerMaintenance: {WorkerIdle, WorkerTerminating, WorkerError},
	WorkerTerminating: {WorkerTerminated, WorkerError},
	WorkerTerminated: {},
	WorkerError: {},
}

func (s WorkerStatus) CanTransitionTo(target WorkerStatus) bool {
	for _, allowed := range workerTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (s WorkerStatus) IsTerminal() bool {
	return s == WorkerTerminated || s == WorkerError
}

// WorkerCapabilities is what a worker advertises at registration time.
type WorkerCapabilities struct {
	CPUCores float64
	MemoryBytes int64
	StorageBytes int64
	Platforms []string
	Runtimes []string
	MaxConcurrentJobs int
	FeatureFlags map[string]bool
	Labels map[string]string
}

// ResourceAllocation is what has actually been reserved on the worker for
// its current execution, if any.
type ResourceAllocation struct {
	CPUCores float64
	MemoryBytes int64
}

// Worker (a ComputeInstance) is one unit of execution capacity within a
// pool, addressable by id.
type Worker struct {
	ID string
	PoolID string
	ExecutionID string // empty when idle
	Status WorkerStatus
	Capabilities WorkerCapabilities
	Allocation ResourceAllocation
	LastHeartbeat time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
	Ephemeral bool // torn down after one execution vs. pooled/durable
	InstanceRef string // provider-native handle (container id, pod name); empty for Local workers
}

func (w *Worker) UpdateStatus(target WorkerStatus) error {
	if w.Status == target {
		return nil
	}
	if !w.Status.CanTransitionTo(target) {
		return hodeierr.BusinessRule("worker %s: cannot transition %s -> %s", w.ID, w.Status, target)
	}
	w.Status = target
	w.UpdatedAt = time.Now()
	return nil
}

// AssignExecution requires Idle->Busy; no other transition assigns work.
func (w *Worker) AssignExecution(executionID string) error {
	if w.Status != WorkerIdle {
		return hodeierr.BusinessRule("worker %s: assignExecution requires Idle, have %s", w.ID, w.Status)
	}
	if err := w.UpdateStatus(WorkerBusy); err != nil {
		return err
	}
	w.ExecutionID = executionID
	return nil
}

// ReleaseExecution requires Busy->Idle.
func (w *Worker) ReleaseExecution() error {
	if w.Status != WorkerBusy {
		return hodeierr.BusinessRule("worker %s: releaseExecution requires Busy, have %s", w.ID, w.Status)
	}
	if err := w.UpdateStatus(WorkerIdle); err != nil {
		return err
	}
	w.ExecutionID = ""
	w.Allocation = ResourceAllocation{}
	return nil
}

func (w *Worker) IsBusy() bool {
	return w.ExecutionID != ""
}

// IsHealthy reports liveness against timeout. A worker is unhealthy only once
// elapsed time strictly exceeds timeout, so a heartbeat landing exactly on
// the boundary still counts as healthy.
func (w *Worker) IsHealthy(now time.Time, timeout time.Duration) bool {
	return now.Sub(w.LastHeartbeat) <= timeout
}

const DefaultHeartbeatTimeout = 300 * time.Second
