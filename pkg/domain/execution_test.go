package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecution_UpdateStatus_TerminalSetsCompletedAt(t *testing.T) {
	e := &Execution{ID: "exec-1", Status: ExecutionRunning}
	require.NoError(t, e.UpdateStatus(ExecutionCompleted))
	assert.False(t, e.CompletedAt.IsZero())
}

func TestExecution_UpdateStatus_TerminalIsAbsorbing(t *testing.T) {
	for _, s := range []ExecutionStatus{ExecutionCompleted, ExecutionFailed, ExecutionCancelled} {
		e := &Execution{ID: "exec-1", Status: s}
		err := e.UpdateStatus(ExecutionRunning)
		require.Error(t, err)
		assert.Equal(t, s, e.Status)
	}
}

func TestExecutionContext_AppendLog_EvictsOldestWhenOverCap(t *testing.T) {
	ctx := NewExecutionContext(&Execution{ID: "exec-1"}, 10)
	ctx.AppendLog(&LogChunk{Sequence: 1, Bytes: []byte("01234")})
	ctx.AppendLog(&LogChunk{Sequence: 2, Bytes: []byte("56789")})
	// exactly at cap, nothing evicted yet
	_, _, logs := ctx.Snapshot()
	require.Len(t, logs, 2)

	ctx.AppendLog(&LogChunk{Sequence: 3, Bytes: []byte("abcde")})
	_, _, logs = ctx.Snapshot()
	require.Len(t, logs, 2)
	assert.Equal(t, uint64(2), logs[0].Sequence, "oldest chunks must be dropped first")
}

func TestExecutionContext_AppendLog_UnboundedWhenCapZero(t *testing.T) {
	ctx := NewExecutionContext(&Execution{ID: "exec-1"}, 0)
	for i := 0; i < 100; i++ {
		ctx.AppendLog(&LogChunk{Sequence: uint64(i), Bytes: make([]byte, 1024)})
	}
	_, _, logs := ctx.Snapshot()
	assert.Len(t, logs, 100)
}

func TestExecutionContext_Snapshot_IsIndependentCopy(t *testing.T) {
	ctx := NewExecutionContext(&Execution{ID: "exec-1", Status: ExecutionPending}, 1<<20)
	ctx.AppendEvent(&Event{Type: EventStepStarted, Timestamp: time.Now()})
	execCopy, events, _ := ctx.Snapshot()
	execCopy.Status = ExecutionRunning
	events[0].Message = "mutated"

	execCopy2, events2, _ := ctx.Snapshot()
	assert.Equal(t, ExecutionPending, execCopy2.Status)
	assert.Empty(t, events2[0].Message)
}
