// Package engine implements the execution engine: the
// component that turns a submitted Job into a running Execution bound to a
// worker, tracks it to completion or cancellation, and fans out its events
// and logs.
package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hodei/orchestrator/pkg/domain"
	"github.com/hodei/orchestrator/pkg/eventbus"
	"github.com/hodei/orchestrator/pkg/hodeierr"
	"github.com/hodei/orchestrator/pkg/log"
	"github.com/hodei/orchestrator/pkg/metrics"
	"github.com/hodei/orchestrator/pkg/pool"
	"github.com/hodei/orchestrator/pkg/quota"
	"github.com/hodei/orchestrator/pkg/scheduler"
	"github.com/hodei/orchestrator/pkg/storage"
	"github.com/hodei/orchestrator/pkg/wireproto"
	"github.com/hodei/orchestrator/pkg/workermanager"
)

const (
	DefaultCancelGracePeriod = 30 * time.Second
	DefaultRegistrationTimeout = 60 * time.Second
	DefaultLogBufferBytes = 10 * 1024 * 1024
)

// Config bounds the engine's timing behavior; zero values fall back to
// sensible defaults.
type Config struct {
	CancelGracePeriod time.Duration
	RegistrationTimeout time.Duration
	LogBufferBytes int
}

func (c Config) withDefaults() Config {
	if c.CancelGracePeriod <= 0 {
		c.CancelGracePeriod = DefaultCancelGracePeriod
	}
	if c.RegistrationTimeout <= 0 {
		c.RegistrationTimeout = DefaultRegistrationTimeout
	}
	if c.LogBufferBytes <= 0 {
		c.LogBufferBytes = DefaultLogBufferBytes
	}
	return c
}

// ContextSummary is the list-view the engine returns from
// GetActiveExecutions, cheaper than handing out full ExecutionContexts.
type ContextSummary struct {
	ExecutionID string
	JobID string
	WorkerID string
	PoolID string
	Status domain.ExecutionStatus
	StartedAt time.Time
}

// CancelResult reports what Cancel actually did: either the execution is
// already terminal (Pending=false), or the grace period is still running
// in the background (Pending=true).
type CancelResult struct {
	Status domain.ExecutionStatus
	Pending bool
}

// activeExecution is the engine's private bookkeeping for one in-flight
// execution: everything needed to deallocate and release on any of its
// exit paths (completion, failure, cancellation, worker loss).
type activeExecution struct {
	job *domain.Job
	pool *domain.ResourcePool
	worker *domain.Worker
	usage domain.ResourceUsage
	quota *quota.Quota
	ephemeral bool

	doneOnce sync.Once
	done chan struct{}

	cancelMu sync.Mutex
	cancelRequested bool
}

func (a *activeExecution) markDone() {
	a.doneOnce.Do(func() { close(a.done) })
}

// markCancelRequested records that Cancel sent a CancelSignal for this
// execution, so a later ExecutionResult (even one reporting success=false)
// resolves as Cancelled rather than Failed.
func (a *activeExecution) markCancelRequested() {
	a.cancelMu.Lock()
	a.cancelRequested = true
	a.cancelMu.Unlock()
}

func (a *activeExecution) wasCancelRequested() bool {
	a.cancelMu.Lock()
	defer a.cancelMu.Unlock()
	return a.cancelRequested
}

// Engine wires together every collaborator needed to run a job. It never
// blocks its own dispatch: message handlers registered with the
// WorkerManager run on that manager's demultiplex path, and every call that
// might suspend (repository writes, provider calls) happens without
// holding e.mu.
type Engine struct {
	jobs storage.JobRepository
	workers storage.WorkerRepository
	pools *pool.Service
	sched *scheduler.Scheduler
	quotas *quota.Manager
	wm *workermanager.Manager
	waiter *RegistrationWaiter

	factories map[domain.ProviderKind]WorkerFactory
	bus *eventbus.Bus
	cfg Config
	logger zerolog.Logger

	mu sync.RWMutex
	byExecution map[string]*activeExecution
	byWorker map[string]string // workerId -> executionId, for heartbeat-loss lookup
	contexts map[string]*domain.ExecutionContext
}

// New builds an Engine and wires its inbound message handlers onto wm. wm
// must not yet be serving traffic (ReapLoop/grpc registration come after).
func New(
	jobs storage.JobRepository,
	workers storage.WorkerRepository,
	pools *pool.Service,
	sched *scheduler.Scheduler,
	quotas *quota.Manager,
	wm *workermanager.Manager,
	waiter *RegistrationWaiter,
	factories map[domain.ProviderKind]WorkerFactory,
	bus *eventbus.Bus,
	cfg Config,
) *Engine {
	e := &Engine{
		jobs: jobs,
		workers: workers,
		pools: pools,
		sched: sched,
		quotas: quotas,
		wm: wm,
		waiter: waiter,
		factories: factories,
		bus: bus,
		cfg: cfg.withDefaults(),
		logger: log.WithComponent("engine"),
		byExecution: make(map[string]*activeExecution),
		byWorker: make(map[string]string),
		contexts: make(map[string]*domain.ExecutionContext),
	}
	wm.OnMessage(wireproto.KindStatusUpdate, e.handleStatusUpdate)
	wm.OnMessage(wireproto.KindLogChunk, e.handleLogChunk)
	wm.OnMessage(wireproto.KindExecutionResult, e.handleExecutionResult)
	wm.SetOnLost(e.handleWorkerLost)
	wm.SetOnRegister(e.handleWorkerRegister)
	return e
}

func definitionFromSpec(spec []byte) (domain.ExecutionDefinition, error) {
	var def domain.ExecutionDefinition
	if len(spec) == 0 {
		return def, hodeierr.Validation("job spec is empty")
	}
	if err := json.Unmarshal(spec, &def); err != nil {
		return def, hodeierr.Validation("invalid job spec: %v", err)
	}
	return def, nil
}

func jobUsage(job *domain.Job) domain.ResourceUsage {
	return domain.ResourceUsage{
		CPUCores: job.Resources.CPUCores,
		MemoryBytes: job.Resources.MemoryBytes,
		DiskBytes: job.Resources.DiskBytes,
		ConcurrentJobs: 1,
	}
}

func poolLimits(p *domain.ResourcePool) domain.ResourceLimits {
	return domain.ResourceLimits{
		CPUCores: p.Capacity.TotalCPU,
		MemoryBytes: p.Capacity.TotalMemory,
		ConcurrentJobs: p.Policies.MaxJobs,
	}
}

// Submit implements the execution lifecycle's steps 1-7. Steps 8-9
// (completion and cancellation) are driven by the message handlers and
// Cancel below, since they happen asynchronously from the worker side.
func (e *Engine) Submit(ctx context.Context, job *domain.Job, strategy string) (string, error) {
	definition, err := definitionFromSpec(job.Spec)
	if err != nil {
		return "", err
	}

	exec := &domain.Execution{
		ID: uuid.NewString(),
		JobID: job.ID,
		Definition: definition,
		Status: domain.ExecutionPending,
	}
	ec := domain.NewExecutionContext(exec, e.cfg.LogBufferBytes)

	if err := job.UpdateStatus(domain.JobQueued); err != nil {
		return "", err
	}
	if err := e.jobs.Update(ctx, job); err != nil {
		return "", hodeierr.Wrap(hodeierr.KindRepository, "persist queued job", err)
	}

	chosenPool, err := e.sched.Schedule(ctx, job, strategy)
	if err != nil {
		e.failSubmission(ctx, job, ec, err)
		return "", err
	}

	limits := poolLimits(chosenPool)
	q := e.quotas.Register(chosenPool.ID, limits)
	usage := jobUsage(job)
	if err := q.TryAllocate(usage); err != nil {
		metrics.QuotaViolationsTotal.WithLabelValues(chosenPool.ID).Inc()
		e.failSubmission(ctx, job, ec, err)
		return "", err
	}

	factory, ok := e.factories[chosenPool.Provider]
	if !ok {
		q.Deallocate(usage)
		err := hodeierr.BusinessRule("no worker factory registered for provider %q", chosenPool.Provider)
		e.failSubmission(ctx, job, ec, err)
		return "", err
	}

	caps := domain.WorkerCapabilities{CPUCores: job.Resources.CPUCores, MemoryBytes: job.Resources.MemoryBytes}
	provisionTimer := metrics.NewTimer()
	worker, err := factory.Acquire(ctx, chosenPool, caps)
	provisionTimer.ObserveDurationVec(metrics.ProvisioningDuration, string(chosenPool.Provider))
	if err != nil {
		q.Deallocate(usage)
		e.failSubmission(ctx, job, ec, err)
		return "", err
	}

	if err := worker.AssignExecution(exec.ID); err != nil {
		q.Deallocate(usage)
		_ = factory.Release(ctx, worker)
		e.failSubmission(ctx, job, ec, err)
		return "", err
	}
	if err := e.workers.Save(ctx, worker); err != nil {
		e.logger.Error().Err(err).Str("worker_id", worker.ID).Msg("failed to persist worker assignment")
	}

	exec.WorkerID = worker.ID
	exec.PoolID = chosenPool.ID
	exec.StartedAt = time.Now()
	_ = exec.UpdateStatus(domain.ExecutionRunning)

	job.LatestExecutionID = exec.ID
	if err := job.UpdateStatus(domain.JobRunning); err != nil {
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("unexpected job transition failure entering running")
	}
	if err := e.jobs.Update(ctx, job); err != nil {
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to persist running job")
	}

	ae := &activeExecution{
		job: job,
		pool: chosenPool,
		worker: worker,
		usage: usage,
		quota: q,
		ephemeral: worker.Ephemeral,
		done: make(chan struct{}),
	}

	e.mu.Lock()
	e.byExecution[exec.ID] = ae
	e.byWorker[worker.ID] = exec.ID
	e.contexts[exec.ID] = ec
	e.mu.Unlock()

	sent := e.wm.SendTo(worker.ID, &wireproto.OrchestratorMessage{
		Kind: wireproto.KindExecutionAssignment,
		ExecutionAssignment: &wireproto.ExecutionAssignment{
			ExecutionID: exec.ID,
			Definition: definition,
		},
	})
	if !sent {
		e.handleWorkerLost(worker.ID)
		return "", hodeierr.WorkerLost(worker.ID)
	}

	e.bus.PublishEvent(&eventbus.ExecutionEvent{
		ExecutionID: exec.ID,
		Type: string(domain.EventStageStarted),
		Message: "execution assigned to worker " + worker.ID,
	})

	return exec.ID, nil
}

func (e *Engine) failSubmission(ctx context.Context, job *domain.Job, ec *domain.ExecutionContext, cause error) {
	_ = ec.Resolve(domain.ExecutionFailed, 0, cause.Error())
	if err := job.UpdateStatus(domain.JobFailed); err != nil {
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("unexpected job transition failure")
	}
	if err := e.jobs.Update(ctx, job); err != nil {
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to persist failed job")
	}
}

// Cancel implements the lifecycle's cancellation step. A non-force cancel returns
// immediately reporting the cancellation as pending; a background grace
// timer force-cancels if no ExecutionResult arrives in time.
func (e *Engine) Cancel(ctx context.Context, executionID, reason string, force bool) (CancelResult, error) {
	e.mu.RLock()
	ae, ok := e.byExecution[executionID]
	e.mu.RUnlock()
	if !ok {
		return CancelResult{}, hodeierr.NotFound("execution", executionID)
	}

	sent := e.wm.SendTo(ae.worker.ID, &wireproto.OrchestratorMessage{
		Kind: wireproto.KindCancelSignal,
		CancelSignal: &wireproto.CancelSignal{
			ExecutionID: executionID,
			Reason: reason,
			GracePeriodSeconds: int(e.cfg.CancelGracePeriod.Seconds()),
		},
	})
	if !sent || force {
		e.forceCancel(executionID, ae, reason)
		return CancelResult{Status: domain.ExecutionCancelled}, nil
	}

	ae.markCancelRequested()
	go func() {
		select {
		case <-ae.done:
		case <-time.After(e.cfg.CancelGracePeriod):
			e.forceCancel(executionID, ae, "grace period expired: "+reason)
		}
	}()
	return CancelResult{Status: domain.ExecutionRunning, Pending: true}, nil
}

func (e *Engine) forceCancel(executionID string, ae *activeExecution, reason string) {
	ae.markDone()

	e.mu.Lock()
	if _, ok := e.byExecution[executionID]; !ok {
		e.mu.Unlock()
		return // already resolved by handleExecutionResult racing in
	}
	delete(e.byExecution, executionID)
	delete(e.byWorker, ae.worker.ID)
	e.mu.Unlock()

	if ec, ok := e.getContext(executionID); ok {
		_ = ec.Resolve(domain.ExecutionCancelled, 0, "cancelled")
	}
	_ = ae.job.Cancel()
	if err := e.jobs.Update(context.Background(), ae.job); err != nil {
		e.logger.Error().Err(err).Str("job_id", ae.job.ID).Msg("failed to persist cancelled job")
	}

	_ = ae.worker.UpdateStatus(domain.WorkerDraining)
	if err := e.workers.Save(context.Background(), ae.worker); err != nil {
		e.logger.Error().Err(err).Str("worker_id", ae.worker.ID).Msg("failed to persist worker draining")
	}

	ae.quota.Deallocate(ae.usage)
	e.releaseWorker(ae)

	e.bus.PublishEvent(&eventbus.ExecutionEvent{
		ExecutionID: executionID,
		Type: string(domain.EventStepFailed),
		Message: "execution cancelled: " + reason,
	})
}

func (e *Engine) releaseWorker(ae *activeExecution) {
	if !ae.ephemeral {
		return
	}
	factory, ok := e.factories[ae.pool.Provider]
	if !ok {
		return
	}
	if err := factory.Release(context.Background(), ae.worker); err != nil {
		e.logger.Warn().Err(err).Str("worker_id", ae.worker.ID).Msg("failed to release ephemeral worker")
	}
}

func (e *Engine) handleStatusUpdate(workerID string, msg *wireproto.WorkerMessage) {
	su := msg.StatusUpdate
	ec, ok := e.getContext(su.ExecutionID)
	if !ok {
		return
	}
	ec.AppendEvent(&domain.Event{
		ExecutionID: su.ExecutionID,
		Type: su.EventType,
		Timestamp: time.Now(),
		Message: su.Message,
		Metadata: su.Metadata,
		Percentage: su.Percentage,
	})
	e.bus.PublishEvent(&eventbus.ExecutionEvent{
		ExecutionID: su.ExecutionID,
		Type: string(su.EventType),
		Message: su.Message,
		Metadata: su.Metadata,
		Percentage: su.Percentage,
	})
}

func (e *Engine) handleLogChunk(workerID string, msg *wireproto.WorkerMessage) {
	lc := msg.LogChunk
	ec, ok := e.getContext(lc.ExecutionID)
	if !ok {
		return
	}
	ec.AppendLog(&domain.LogChunk{
		ExecutionID: lc.ExecutionID,
		Stream: lc.Stream,
		Bytes: lc.Bytes,
		Timestamp: time.Now(),
		Sequence: lc.Sequence,
	})
	e.bus.PublishLog(&eventbus.LogEvent{
		ExecutionID: lc.ExecutionID,
		Stream: string(lc.Stream),
		Bytes: lc.Bytes,
		Sequence: lc.Sequence,
	})
}

// handleExecutionResult implements the lifecycle's completion step.
func (e *Engine) handleExecutionResult(workerID string, msg *wireproto.WorkerMessage) {
	res := msg.ExecutionResult

	e.mu.Lock()
	ae, ok := e.byExecution[res.ExecutionID]
	if ok {
		delete(e.byExecution, res.ExecutionID)
		delete(e.byWorker, workerID)
	}
	e.mu.Unlock()
	if !ok {
		return // already force-cancelled or reclaimed
	}
	ae.markDone()

	targetStatus := domain.ExecutionCompleted
	jobTarget := domain.JobCompleted
	switch {
	case ae.wasCancelRequested():
		// A CancelSignal is outstanding: the worker's reply (success or
		// not) settles the cancellation rather than a failure, matching
		// the cancel-with-grace scenario.
		targetStatus = domain.ExecutionCancelled
		jobTarget = domain.JobCancelled
	case !res.Success:
		targetStatus = domain.ExecutionFailed
		jobTarget = domain.JobFailed
	}
	if ec, ok := e.getContext(res.ExecutionID); ok {
		_ = ec.Resolve(targetStatus, res.ExitCode, res.Details)
		if !ec.Execution.StartedAt.IsZero() {
			metrics.ExecutionDuration.Observe(time.Since(ec.Execution.StartedAt).Seconds())
		}
	}
	metrics.ExecutionsTotal.WithLabelValues(string(targetStatus)).Inc()

	_ = ae.job.UpdateStatus(jobTarget)
	if err := e.jobs.Update(context.Background(), ae.job); err != nil {
		e.logger.Error().Err(err).Str("job_id", ae.job.ID).Msg("failed to persist job completion")
	}

	_ = ae.worker.ReleaseExecution()
	if err := e.workers.Save(context.Background(), ae.worker); err != nil {
		e.logger.Error().Err(err).Str("worker_id", ae.worker.ID).Msg("failed to persist worker release")
	}

	ae.quota.Deallocate(ae.usage)
	e.releaseWorker(ae)

	eventType := domain.EventStepCompleted
	if !res.Success {
		eventType = domain.EventStepFailed
	}
	e.bus.PublishEvent(&eventbus.ExecutionEvent{
		ExecutionID: res.ExecutionID,
		Type: string(eventType),
		Message: res.Details,
	})
}

// handleWorkerLost implements the heartbeat-reclaim half of worker loss
// handling: the worker's execution, if any, fails with WorkerLost. If the
// resulting job is retryable (hodeierr.Retryable reports WorkerLost as
// retryable, and the job itself has retries remaining), a fresh execution
// is submitted immediately instead of waiting on a manual retry call.
func (e *Engine) handleWorkerLost(workerID string) {
	e.mu.Lock()
	executionID, ok := e.byWorker[workerID]
	if !ok {
		e.mu.Unlock()
		return
	}
	ae := e.byExecution[executionID]
	delete(e.byExecution, executionID)
	delete(e.byWorker, workerID)
	e.mu.Unlock()
	if ae == nil {
		return
	}
	ae.markDone()

	lostErr := hodeierr.WorkerLost(workerID)
	if ec, ok := e.getContext(executionID); ok {
		_ = ec.Resolve(domain.ExecutionFailed, 0, "worker_lost")
	}
	metrics.ExecutionsTotal.WithLabelValues(string(domain.ExecutionFailed)).Inc()
	_ = ae.job.UpdateStatus(domain.JobFailed)
	if err := e.jobs.Update(context.Background(), ae.job); err != nil {
		e.logger.Error().Err(err).Str("job_id", ae.job.ID).Msg("failed to persist job failure after worker loss")
	}

	ae.quota.Deallocate(ae.usage)

	_ = ae.worker.UpdateStatus(domain.WorkerError)
	if err := e.workers.Save(context.Background(), ae.worker); err != nil {
		e.logger.Error().Err(err).Str("worker_id", ae.worker.ID).Msg("failed to persist worker error status")
	}

	e.bus.PublishEvent(&eventbus.ExecutionEvent{
		ExecutionID: executionID,
		Type: string(domain.EventStepFailed),
		Message: "worker lost: heartbeat timeout or disconnect",
	})

	if hodeierr.Retryable(lostErr) && ae.job.CanRetry() {
		e.retryAfterWorkerLoss(ae.job)
	}
}

// retryAfterWorkerLoss clones job into a fresh Pending job and resubmits it,
// mirroring pkg/jobservice.Retry but invoked automatically from the
// worker-loss path rather than by a user-initiated call.
func (e *Engine) retryAfterWorkerLoss(job *domain.Job) {
	ctx := context.Background()
	clone, err := job.Retry()
	if err != nil {
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("automatic retry after worker loss rejected")
		return
	}
	clone.ID = uuid.NewString()
	if err := e.jobs.Save(ctx, clone); err != nil {
		e.logger.Error().Err(err).Str("job_id", clone.ID).Msg("failed to persist retried job after worker loss")
		return
	}
	metrics.JobRetriesTotal.Inc()
	if _, err := e.Submit(ctx, clone, ""); err != nil {
		e.logger.Warn().Err(err).Str("job_id", clone.ID).Msg("automatic resubmission after worker loss failed")
	}
}

// handleWorkerRegister is the workermanager.RegisterHandler: it persists
// the newly-connecting worker as a domain.Worker and wakes any
// EphemeralFactory.Acquire waiting on this worker id.
func (e *Engine) handleWorkerRegister(workerID, poolID string, caps domain.WorkerCapabilities) (bool, string) {
	ctx := context.Background()
	p, err := e.pools.GetPool(ctx, poolID)
	if err != nil || p == nil {
		return false, "unknown pool"
	}
	if !p.CanAcceptJobs() {
		return false, "pool not accepting workers"
	}

	now := time.Now()
	w := &domain.Worker{
		ID: workerID,
		PoolID: poolID,
		Status: domain.WorkerProvisioning,
		Capabilities: caps,
		LastHeartbeat: now,
		CreatedAt: now,
		UpdatedAt: now,
		Ephemeral: p.Provider != domain.ProviderLocal,
	}
	if err := w.UpdateStatus(domain.WorkerIdle); err != nil {
		return false, err.Error()
	}
	if err := e.workers.Save(ctx, w); err != nil {
		e.logger.Error().Err(err).Str("worker_id", workerID).Msg("failed to persist registered worker")
		return false, "storage error"
	}
	e.waiter.Signal(workerID, w)
	return true, ""
}

func (e *Engine) getContext(executionID string) (*domain.ExecutionContext, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ec, ok := e.contexts[executionID]
	return ec, ok
}

// GetExecutionContext returns the live ExecutionContext for executionID, or
// false if it was never submitted through this engine instance.
func (e *Engine) GetExecutionContext(executionID string) (*domain.ExecutionContext, bool) {
	return e.getContext(executionID)
}

// GetActiveExecutions summarizes every execution this engine currently
// tracks as non-terminal.
func (e *Engine) GetActiveExecutions() []ContextSummary {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]ContextSummary, 0, len(e.byExecution))
	for id, ae := range e.byExecution {
		ec, ok := e.contexts[id]
		if !ok {
			continue
		}
		exec, _, _ := ec.Snapshot()
		out = append(out, ContextSummary{
			ExecutionID: id,
			JobID: ae.job.ID,
			WorkerID: ae.worker.ID,
			PoolID: ae.pool.ID,
			Status: exec.Status,
			StartedAt: exec.StartedAt,
		})
	}
	return out
}

// Events returns a lazy, infinite subscription to every execution's events,
// fanned out from the shared bus. Callers must Unsubscribe when done.
func (e *Engine) Events() eventbus.EventSubscriber {
	return e.bus.SubscribeEvents()
}

func (e *Engine) UnsubscribeEvents(sub eventbus.EventSubscriber) {
	e.bus.UnsubscribeEvents(sub)
}

// Logs returns a lazy, infinite subscription to every execution's log
// chunks, fanned out from the shared bus. Callers must Unsubscribe when
// done.
func (e *Engine) Logs() eventbus.LogSubscriber {
	return e.bus.SubscribeLogs()
}

func (e *Engine) UnsubscribeLogs(sub eventbus.LogSubscriber) {
	e.bus.UnsubscribeLogs(sub)
}
