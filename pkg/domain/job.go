package domain

import (
	"time"

	"github.com/hodei/orchestrator/pkg/hodeierr"
)

// JobStatus is the closed sum type driving Job's lifecycle.
type JobStatus string

const (
	JobPending	JobStatus = "pending"
	JobQueued	JobStatus = "queued"
	JobScheduled	JobStatus = "scheduled"
	JobRunning	JobStatus = "running"
	JobCompleted	JobStatus = "completed"
	JobFailed	JobStatus = "failed"
	JobCancelled	JobStatus = "cancelled"
)

// jobTransitions is the allowed-transition table
var jobTransitions = map[JobStatus][]JobStatus{
	JobPending: {JobQueued, JobCancelled},
	JobQueued: {JobScheduled, JobRunning, JobCancelled},
	JobScheduled: {JobRunning, JobCancelled},
	JobRunning: {JobCompleted, JobFailed, JobCancelled},
	JobFailed: {JobPending},
	JobCompleted: {},
	JobCancelled: {},
}

// CanTransitionTo is exhaustive over JobStatus; it is the sole gating
// mechanism for job status mutation.
func (s JobStatus) CanTransitionTo(target JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == target {
			return	true
		}
	}
	return	false
}

func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobCancelled
}

// JobPriority is an ordered enum; higher values schedule first.
type JobPriority int

const (
	PriorityLow	JobPriority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// TemplateRef pins a Job to a specific published Template version.
type TemplateRef struct {
	ID	string
	Version	string
}

// Job is the admitted unit of work submitted for scheduling and execution.
type Job struct {
	ID	string
	Name	string
	Namespace	string
	Template	*TemplateRef
	Spec []byte // opaque payload handed verbatim to the worker
	Parameters	map[string]string
	Status	JobStatus
	Priority	JobPriority
	RetryCount	int
	MaxRetries	int
	LatestExecutionID	string
	Resources	ResourceRequirements
	PoolID string // optional explicit pool request
	Tags	[]string
	Annotations	map[string]string
	CreatedAt	time.Time
	UpdatedAt	time.Time
	CreatedBy	string
	ScheduledAt	*time.Time
	CompletedAt	*time.Time
}

// ResourceRequirements is what a Job asks of a ResourcePool.
type ResourceRequirements struct {
	CPUCores	float64	`validate:"gte=0"`
	MemoryBytes	int64	`validate:"gte=0"`
	DiskBytes	int64	`validate:"gte=0"`
}

// UpdateStatus is the sole guarded mutator for Job.Status. A same-state
// transition ("no-op") is permitted and leaves every other field untouched,
// so repeating the same status update is always safe.
func (j *Job) UpdateStatus(target JobStatus) error {
	if j.Status == target {
		return	nil
	}
	if !j.Status.CanTransitionTo(target) {
		return hodeierr.BusinessRule("job %s: cannot transition %s -> %s", j.ID, j.Status, target)
	}
	j.Status = target
	j.UpdatedAt = time.Now()
	if target == JobCompleted || target == JobFailed || target == JobCancelled {
		now := time.Now()
		j.CompletedAt = &now
	}
	return	nil
}

// CanRetry reports whether Retry is legal for this job: only from Failed
// with RetryCount < MaxRetries, never from Cancelled.
func (j *Job) CanRetry() bool {
	return j.Status == JobFailed && j.RetryCount < j.MaxRetries
}

// Retry produces a new Pending job that supersedes a Failed one.
func (j *Job) Retry() (*Job, error) {
	if !j.CanRetry() {
		return nil, hodeierr.BusinessRule("job %s: retry not allowed (status=%s retryCount=%d maxRetries=%d)", j.ID, j.Status, j.RetryCount, j.MaxRetries)
	}
	clone := *j
	clone.Status = JobPending
	clone.RetryCount = j.RetryCount + 1
	clone.LatestExecutionID = ""
	clone.CompletedAt = nil
	clone.CreatedAt = time.Now()
	clone.UpdatedAt = clone.CreatedAt
	return &clone, nil
}

// Cancel is allowed in every non-terminal state; forced cancel is the
// caller's business (it skips the worker grace period, handled in
// pkg/engine, not here).
func (j *Job) Cancel() error {
	if j.Status.IsTerminal() {
		return hodeierr.BusinessRule("job %s: cannot cancel terminal status %s", j.ID, j.Status)
	}
	return j.UpdateStatus(JobCancelled)
}
