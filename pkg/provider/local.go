package provider

import (
	"context"

	"github.com/hodei/orchestrator/pkg/hodeierr"
)

// Local is the no-op provider for pools whose workers are already
// connected: if the pool's provider is Local, the engine skips
// provisioning and uses the already-registered worker directly. It never
// creates or destroys anything; Terminate/Status/List are queries against
// the worker set the caller already tracks via pkg/workermanager.
type Local struct{}

func NewLocal() *Local { return &Local{} }

func (l *Local) Provision(ctx context.Context, req ProvisionRequest) (ProvisionResult, error) {
	return ProvisionResult{}, hodeierr.NewProvisioningError(hodeierr.ProvisioningInvalidSpec,
		"local pools do not provision; the worker must already be connected", nil)
}

func (l *Local) Terminate(ctx context.Context, instanceRef string) error {
	return nil
}

func (l *Local) Status(ctx context.Context, instanceRef string) (Status, error) {
	return Status{InstanceRef: instanceRef, Running: true}, nil
}

func (l *Local) List(ctx context.Context, poolID string) ([]Status, error) {
	return nil, nil
}

func (l *Local) Scale(ctx context.Context, poolID string, targetCount int) error {
	return nil
}

func (l *Local) AvailableInstanceTypes(ctx context.Context) ([]InstanceType, error) {
	return nil, nil
}
