package provider

import (
	"context"
	"time"

	"github.com/sony/gobreaker"

	"github.com/hodei/orchestrator/pkg/hodeierr"
)

// BreakerProvider wraps a Provider with one circuit breaker, shared by every
// call made through it, so a backend returning repeated failures is shed
// instead of hammered with retries, bounding retry behavior rather than
// leaving it unbounded.
type BreakerProvider struct {
	inner	Provider
	breaker	*gobreaker.CircuitBreaker
}

// WrapWithBreaker builds one breaker named "pool-"+poolID around inner,
// tripping after 5 consecutive failures, half-opening after 30s. Every pool
// served by the same wrapped provider shares that breaker; cmd/hodei wraps
// its single configured provider once, keyed by the infrastructure kind.
func WrapWithBreaker(poolID string, inner Provider) *BreakerProvider {
	settings := gobreaker.Settings{
		Name: "pool-" + poolID,
		MaxRequests: 1,
		Interval: time.Minute,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &BreakerProvider{inner: inner, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func run[T any](b *BreakerProvider, fn func() (T, error)) (T, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var	zero T
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return zero, hodeierr.NewProvisioningError(hodeierr.ProvisioningFailed, "circuit breaker open", err)
		}
		if v, ok := result.(T); ok {
			return	v, err
		}
		return	zero, err
	}
	return result.(T), nil
}

func (b *BreakerProvider) Provision(ctx context.Context, req ProvisionRequest) (ProvisionResult, error) {
	return run(b, func() (ProvisionResult, error) { return b.inner.Provision(ctx, req) })
}

func (b *BreakerProvider) Terminate(ctx context.Context, instanceRef string) error {
	_, err := run(b, func() (struct{}, error) { return struct{}{}, b.inner.Terminate(ctx, instanceRef) })
	return	err
}

func (b *BreakerProvider) Status(ctx context.Context, instanceRef string) (Status, error) {
	return run(b, func() (Status, error) { return b.inner.Status(ctx, instanceRef) })
}

func (b *BreakerProvider) List(ctx context.Context, poolID string) ([]Status, error) {
	return run(b, func() ([]Status, error) { return b.inner.List(ctx, poolID) })
}

func (b *BreakerProvider) Scale(ctx context.Context, poolID string, targetCount int) error {
	_, err := run(b, func() (struct{}, error) { return struct{}{}, b.inner.Scale(ctx, poolID, targetCount) })
	return	err
}

func (b *BreakerProvider) AvailableInstanceTypes(ctx context.Context) ([]InstanceType, error) {
	return run(b, func() ([]InstanceType, error) { return b.inner.AvailableInstanceTypes(ctx) })
}
