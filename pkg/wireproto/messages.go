// Package wireproto defines the bidirectional worker-communication protocol
// as Go tagged unions, and carries them over a single
// gRPC streaming RPC using a JSON codec (see codec.go and service.go) rather
// than protoc-generated bindings.
package wireproto

import "github.com/hodei/orchestrator/pkg/domain"

// WorkerMessageKind tags the WorkerMessage union.
type WorkerMessageKind string

const (
	KindRegisterRequest WorkerMessageKind = "register_request"
	KindHeartbeat WorkerMessageKind = "heartbeat"
	KindStatusUpdate WorkerMessageKind = "status_update"
	KindLogChunk WorkerMessageKind = "log_chunk"
	KindExecutionResult WorkerMessageKind = "execution_result"
)

// WorkerMessage is the tagged union a worker sends to the orchestrator.
// Exactly one of the payload fields matching Kind is populated.
type WorkerMessage struct {
	Kind WorkerMessageKind `json:"kind"`
	RegisterRequest *RegisterRequest `json:"register_request,omitempty"`
	Heartbeat *Heartbeat `json:"heartbeat,omitempty"`
	StatusUpdate *StatusUpdate `json:"status_update,omitempty"`
	LogChunk *LogChunkMsg `json:"log_chunk,omitempty"`
	ExecutionResult *ExecutionResult `json:"execution_result,omitempty"`
}

// RegisterRequest MUST be the first WorkerMessage on any stream.
type RegisterRequest struct {
	WorkerID string `json:"worker_id"`
	PoolID string `json:"pool_id"`
	Capabilities domain.WorkerCapabilities `json:"capabilities"`
}

// Heartbeat is sent every 30s by the worker.
type Heartbeat struct {
	WorkerID string `json:"worker_id"`
}

// StatusUpdate carries an Event, mirroring taxonomy.
type StatusUpdate struct {
	ExecutionID string `json:"execution_id"`
	EventType domain.EventType `json:"event_type"`
	Message string `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Percentage float64 `json:"percentage,omitempty"`
}

// LogChunkMsg carries one ordered slice of an execution's output.
type LogChunkMsg struct {
	ExecutionID string `json:"execution_id"`
	Stream domain.StreamTag `json:"stream"`
	Bytes []byte `json:"bytes"`
	Sequence uint64 `json:"sequence"`
}

// ExecutionResult is terminal for an executionId; no further WorkerMessage
// may reference that executionId afterward.
type ExecutionResult struct {
	ExecutionID string `json:"execution_id"`
	Success bool `json:"success"`
	ExitCode int `json:"exit_code"`
	Details string `json:"details,omitempty"`
}

// OrchestratorMessageKind tags the OrchestratorMessage union.
type OrchestratorMessageKind string

const (
	KindRegisterAck OrchestratorMessageKind = "register_ack"
	KindExecutionAssignment OrchestratorMessageKind = "execution_assignment"
	KindCancelSignal OrchestratorMessageKind = "cancel_signal"
	KindShutdownSignal OrchestratorMessageKind = "shutdown_signal"
)

// OrchestratorMessage is the tagged union the orchestrator sends to a
// worker.
type OrchestratorMessage struct {
	Kind OrchestratorMessageKind `json:"kind"`
	RegisterAck *RegisterAck `json:"register_ack,omitempty"`
	ExecutionAssignment *ExecutionAssignment `json:"execution_assignment,omitempty"`
	CancelSignal *CancelSignal `json:"cancel_signal,omitempty"`
	ShutdownSignal *ShutdownSignal `json:"shutdown_signal,omitempty"`
}

// RegisterAck confirms or rejects a RegisterRequest.
type RegisterAck struct {
	Accepted bool `json:"accepted"`
	Reason string `json:"reason,omitempty"`
}

// ExecutionAssignment carries the unit of work; Definition is itself a sum
// type (see domain.ExecutionDefinition).
type ExecutionAssignment struct {
	ExecutionID string `json:"execution_id"`
	Definition domain.ExecutionDefinition `json:"definition"`
}

// CancelSignal is the only out-of-band message that may interrupt an active
// execution. GracePeriodSeconds defaults to 30
type CancelSignal struct {
	ExecutionID string `json:"execution_id"`
	Reason string `json:"reason"`
	GracePeriodSeconds int `json:"grace_period_seconds"`
}

const DefaultCancelGracePeriodSeconds = 30

// ShutdownSignal asks a worker to disconnect gracefully (e.g. pool
// draining).
type ShutdownSignal struct {
	Reason string `json:"reason"`
}
