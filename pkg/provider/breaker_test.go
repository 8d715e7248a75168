package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyProvider struct {
	failures int
	calls    int
}

func (f *flakyProvider) Provision(ctx context.Context, req ProvisionRequest) (ProvisionResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return ProvisionResult{}, errors.New("backend unavailable")
	}
	return ProvisionResult{WorkerID: "w1"}, nil
}
func (f *flakyProvider) Terminate(ctx context.Context, instanceRef string) error { return nil }
func (f *flakyProvider) Status(ctx context.Context, instanceRef string) (Status, error) {
	return Status{}, nil
}
func (f *flakyProvider) List(ctx context.Context, poolID string) ([]Status, error) { return nil, nil }
func (f *flakyProvider) Scale(ctx context.Context, poolID string, targetCount int) error {
	return nil
}
func (f *flakyProvider) AvailableInstanceTypes(ctx context.Context) ([]InstanceType, error) {
	return nil, nil
}

func TestBreakerProvider_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyProvider{failures: 100}
	b := WrapWithBreaker("pool-1", inner)

	for i := 0; i < 5; i++ {
		_, err := b.Provision(context.Background(), ProvisionRequest{})
		require.Error(t, err)
	}

	callsBeforeOpen := inner.calls
	_, err := b.Provision(context.Background(), ProvisionRequest{})
	require.Error(t, err)
	assert.Equal(t, callsBeforeOpen, inner.calls, "breaker must short-circuit without calling inner provider")
}

func TestBreakerProvider_PassesThroughOnSuccess(t *testing.T) {
	inner := &flakyProvider{failures: 0}
	b := WrapWithBreaker("pool-2", inner)
	res, err := b.Provision(context.Background(), ProvisionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "w1", res.WorkerID)
}
