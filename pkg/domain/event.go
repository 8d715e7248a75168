package domain

import "time"

// EventType mirrors the taxonomy used for job and execution status updates.
type EventType string

const (
	EventStageStarted	EventType = "stage_started"
	EventStageCompleted	EventType = "stage_completed"
	EventStageFailed	EventType = "stage_failed"
	EventStepStarted	EventType = "step_started"
	EventStepCompleted	EventType = "step_completed"
	EventStepFailed	EventType = "step_failed"
	EventArtifactGenerated	EventType = "artifact_generated"
	EventCheckpointCreated	EventType = "checkpoint_created"
	EventRecoveryInitiated	EventType = "recovery_initiated"
	EventProgressUpdate	EventType = "progress_update"
	EventCustom	EventType = "custom"
)

// Event is a timestamped fact attached to an execution. Timestamp is
// assigned by the engine at append time, not by the worker, to give a
// stable server-side total order per subscriber.
type Event struct {
	ExecutionID	string
	Type	EventType
	Timestamp	time.Time
	Message	string
	Metadata	map[string]string
	// Percentage is advisory display data only (computed step/total on the
	// worker side, never validated by the core).
	Percentage	float64
}

// StreamTag distinguishes stdout/stderr for LogChunk.
type StreamTag string

const (
	StreamStdout	StreamTag = "stdout"
	StreamStderr	StreamTag = "stderr"
)

// LogChunk is an ordered slice of a single execution's output on one
// stream.
type LogChunk struct {
	ExecutionID	string
	Stream	StreamTag
	Bytes	[]byte
	Timestamp	time.Time
	Sequence uint64 // monotonic per (executionId, stream), assigned by the worker and carried in wireproto.LogChunkMsg
}
