package domain

import (
	"sync"
	"time"

	"github.com/hodei/orchestrator/pkg/hodeierr"
)

// ExecutionStatus is the closed sum type driving Execution's lifecycle.
type ExecutionStatus string

const (
	ExecutionPending ExecutionStatus = "pending"
	ExecutionRunning ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

var executionTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionPending: {ExecutionRunning, ExecutionFailed, ExecutionCancelled},
	ExecutionRunning: {ExecutionCompleted, ExecutionFailed, ExecutionCancelled},
	ExecutionCompleted: {},
	ExecutionFailed: {},
	ExecutionCancelled: {},
}

func (s ExecutionStatus) CanTransitionTo(target ExecutionStatus) bool {
	for _, allowed := range executionTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled:
		return true
	default:
		return false
	}
}

// ExecutionDefinition is the sum type over what a worker is asked to run.
type ExecutionDefinition struct {
	Kind ExecutionKind
	Shell *ShellTask
	KotlinScript *ScriptTask
	Pipeline *PipelineTask
}

type ExecutionKind string

const (
	ExecutionKindShell ExecutionKind = "shell"
	ExecutionKindScript ExecutionKind = "script"
	ExecutionKindPipeline ExecutionKind = "pipeline"
)

type ShellTask struct {
	Commands []string
	AllowFailure bool
}

type ScriptTask struct {
	ScriptContent string
	Parameters map[string]string
}

type PipelineStage struct {
	Name string
	Commands []string
}

type PipelineTask struct {
	Stages []PipelineStage
}

// Execution is one run of a job on one worker.
type Execution struct {
	ID string
	JobID string
	WorkerID string
	PoolID string
	Definition ExecutionDefinition
	Status ExecutionStatus
	StartedAt time.Time
	CompletedAt time.Time
	ExitCode int
	FailureCause string // e.g. "worker_lost", "cancelled", empty otherwise
}

func (e *Execution) UpdateStatus(target ExecutionStatus) error {
	if e.Status == target {
		return nil
	}
	if !e.Status.CanTransitionTo(target) {
		return hodeierr.BusinessRule("execution %s: cannot transition %s -> %s", e.ID, e.Status, target)
	}
	e.Status = target
	if target.IsTerminal() {
		e.CompletedAt = time.Now()
	}
	return nil
}

// ExecutionContext is the in-memory aggregate of an execution plus its
// events and logs, owned exclusively by the engine while the execution is
// active. Contexts for terminal executions may be evicted.
type ExecutionContext struct {
	mu sync.RWMutex
	Execution *Execution
	Events []*Event
	Logs []*LogChunk
	logBytes int
	logCap int
}

func NewExecutionContext(exec *Execution, logCapBytes int) *ExecutionContext {
	return &ExecutionContext{Execution: exec, logCap: logCapBytes}
}

func (c *ExecutionContext) AppendEvent(ev *Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Events = append(c.Events, ev)
}

// AppendLog enforces the per-execution buffer cap (default 10MB) by
// evicting the oldest chunks first
func (c *ExecutionContext) AppendLog(chunk *LogChunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Logs = append(c.Logs, chunk)
	c.logBytes += len(chunk.Bytes)
	for c.logCap > 0 && c.logBytes > c.logCap && len(c.Logs) > 0 {
		evicted := c.Logs[0]
		c.Logs = c.Logs[1:]
		c.logBytes -= len(evicted.Bytes)
	}
}

// Resolve transitions the execution to a terminal status, recording an
// optional exit code and failure cause in the same locked section so a
// concurrent Snapshot never observes a half-updated Execution (the engine
// reaches this from worker messages, cancellation grace timers, and
// heartbeat-loss reclaim, all of which can race on one executionId).
func (c *ExecutionContext) Resolve(status ExecutionStatus, exitCode int, failureCause string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.Execution.UpdateStatus(status); err != nil {
		return err
	}
	c.Execution.ExitCode = exitCode
	if failureCause != "" {
		c.Execution.FailureCause = failureCause
	}
	return nil
}

func (c *ExecutionContext) Snapshot() (*Execution, []*Event, []*LogChunk) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	execCopy := *c.Execution
	events := make([]*Event, len(c.Events))
	for i, ev := range c.Events {
		evCopy := *ev
		events[i] = &evCopy
	}
	logs := make([]*LogChunk, len(c.Logs))
	for i, chunk := range c.Logs {
		chunkCopy := *chunk
		logs[i] = &chunkCopy
	}
	return &execCopy, events, logs
}
