package engine

import (
	"context"
	"sync"
	"time"

	"github.com/hodei/orchestrator/pkg/domain"
	"github.com/hodei/orchestrator/pkg/hodeierr"
	"github.com/hodei/orchestrator/pkg/provider"
	"github.com/hodei/orchestrator/pkg/storage"
)

// WorkerFactory is the strategy-per-pool-kind dispatch: one implementation
// per domain.ProviderKind, chosen by the pool the scheduler picked.
type WorkerFactory interface {
	// Acquire returns a worker ready to receive an ExecutionAssignment,
	// provisioning one if the pool kind requires it.
	Acquire(ctx context.Context, p *domain.ResourcePool, caps domain.WorkerCapabilities) (*domain.Worker, error)
	// Release tears down an ephemeral worker or returns a pooled one to
	// service once its execution finishes.
	Release(ctx context.Context, w *domain.Worker) error
}

// RegistrationWaiter lets a WorkerFactory block until a specific worker id
// has completed its RegisterRequest handshake over the wire protocol,
// without polling storage. The engine signals it from its RegisterHandler
// (see engine.go's handleWorkerRegister).
type RegistrationWaiter struct {
	mu sync.Mutex
	pending map[string]chan *domain.Worker
}

func NewRegistrationWaiter() *RegistrationWaiter {
	return &RegistrationWaiter{pending: make(map[string]chan *domain.Worker)}
}

func (r *RegistrationWaiter) channel(workerID string) chan *domain.Worker {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.pending[workerID]
	if !ok {
		ch = make(chan *domain.Worker, 1)
		r.pending[workerID] = ch
	}
	return ch
}

// Wait blocks until workerID registers or ctx is done. The pending entry is
// removed on timeout so a worker that registers late doesn't leak a stale
// channel forever.
func (r *RegistrationWaiter) Wait(ctx context.Context, workerID string) (*domain.Worker, error) {
	ch := r.channel(workerID)
	select {
	case w := <-ch:
		return w, nil
	case <-ctx.Done():
		r.mu.Lock()
		delete(r.pending, workerID)
		r.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Signal wakes any Wait call for workerID. Safe to call even if nobody is
// waiting yet (e.g. a local worker registering before any job needs it).
func (r *RegistrationWaiter) Signal(workerID string, w *domain.Worker) {
	ch := r.channel(workerID)
	select {
	case ch <- w:
	default:
	}
}

// EphemeralFactory provisions one worker per execution via a provider
// adapter and tears it down when the execution finishes — the
// ContainerDaemon and ClusterAPI/CloudVendors path
type EphemeralFactory struct {
	Provider provider.Provider
	Waiter *RegistrationWaiter
	RegistrationTimeout time.Duration
}

func NewEphemeralFactory(p provider.Provider, waiter *RegistrationWaiter, registrationTimeout time.Duration) *EphemeralFactory {
	if registrationTimeout <= 0 {
		registrationTimeout = DefaultRegistrationTimeout
	}
	return &EphemeralFactory{Provider: p, Waiter: waiter, RegistrationTimeout: registrationTimeout}
}

func (f *EphemeralFactory) Acquire(ctx context.Context, p *domain.ResourcePool, caps domain.WorkerCapabilities) (*domain.Worker, error) {
	provisionCtx, cancel := context.WithTimeout(ctx, provider.ProvisionDeadline)
	defer cancel()
	result, err := f.Provider.Provision(provisionCtx, provider.ProvisionRequest{
		PoolID: p.ID,
		ProviderConfig: p.ProviderConfig,
		Capabilities: caps,
	})
	if err != nil {
		return nil, err
	}

	waitCtx, cancel2 := context.WithTimeout(ctx, f.RegistrationTimeout)
	defer cancel2()
	worker, err := f.Waiter.Wait(waitCtx, result.WorkerID)
	if err != nil {
		_ = f.Provider.Terminate(context.Background(), result.InstanceRef)
		return nil, hodeierr.NewProvisioningError(hodeierr.ProvisioningTimeout, "worker did not register before deadline", err)
	}
	return worker, nil
}

func (f *EphemeralFactory) Release(ctx context.Context, w *domain.Worker) error {
	termCtx, cancel := context.WithTimeout(ctx, provider.TerminateDeadline)
	defer cancel()
	return f.Provider.Terminate(termCtx, w.InstanceRef)
}

// LocalFactory reuses an already-connected worker from the pool instead of
// provisioning one, for the Local provider kind.
type LocalFactory struct {
	Workers storage.WorkerRepository
}

func NewLocalFactory(workers storage.WorkerRepository) *LocalFactory {
	return &LocalFactory{Workers: workers}
}

func (f *LocalFactory) Acquire(ctx context.Context, p *domain.ResourcePool, caps domain.WorkerCapabilities) (*domain.Worker, error) {
	candidates, err := f.Workers.FindAvailable(ctx, p.ID)
	if err != nil {
		return nil, hodeierr.Wrap(hodeierr.KindRepository, "find available local workers", err)
	}
	for _, w := range candidates {
		if w.Status == domain.WorkerIdle {
			return w, nil
		}
	}
	return nil, hodeierr.InsufficientResources("no idle local worker registered in pool %q", p.ID)
}

// Release is a no-op: Local workers are durable and stay registered between
// executions.
func (f *LocalFactory) Release(ctx context.Context, w *domain.Worker) error {
	return nil
}
