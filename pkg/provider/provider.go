// Package provider defines the contract every compute backend adapter
// implements. Concrete adapters live in subpackages:
// containerdprovider, clusterprovider, and the in-package Local adapter.
package provider

import (
	"context"
	"time"

	"github.com/hodei/orchestrator/pkg/domain"
)

// InstanceType describes one provisionable worker shape a provider can
// offer, surfaced to the scheduler for bin-packing/capacity decisions.
type InstanceType struct {
	Name string
	CPUCores float64
	MemoryBytes int64
	CostPerHour float64
}

// ProvisionRequest is everything an adapter needs to bring up a new worker.
type ProvisionRequest struct {
	PoolID string
	ProviderConfig []byte
	Capabilities domain.WorkerCapabilities
	Labels map[string]string
}

// ProvisionResult is the adapter's handle on the new worker instance. The
// WorkerID is provider-assigned and becomes domain.Worker.ID once the
// worker's first Register message arrives over the wire protocol.
type ProvisionResult struct {
	WorkerID string
	InstanceRef string // provider-native identifier (container id, pod name, instance id)
}

// Status is a point-in-time provider-observed health for one worker
// instance, independent of the heartbeat-based domain.Worker.Status the
// orchestrator tracks itself.
type Status struct {
	InstanceRef string
	Running bool
	Message string
}

// Provider is implemented once per ProviderKind. Every method
// must return *hodeierr.ProvisioningError on failure. 60s/30s deadlines on
// Provision/Terminate are enforced by the caller via ctx, not the adapter.
type Provider interface {
	Provision(ctx context.Context, req ProvisionRequest) (ProvisionResult, error)
	Terminate(ctx context.Context, instanceRef string) error
	Status(ctx context.Context, instanceRef string) (Status, error)
	List(ctx context.Context, poolID string) ([]Status, error)
	Scale(ctx context.Context, poolID string, targetCount int) error
	AvailableInstanceTypes(ctx context.Context) ([]InstanceType, error)
}

// Deadlines: provider calls are bounded so a single
// unresponsive backend cannot stall the engine indefinitely.
const (
	ProvisionDeadline = 60 * time.Second
	TerminateDeadline = 30 * time.Second
)
