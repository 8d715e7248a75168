package domain

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_AssignRelease_RequireIdleBusy(t *testing.T) {
	w := &Worker{ID: "w1", Status: WorkerIdle}
	require.NoError(t, w.AssignExecution("exec-1"))
	assert.Equal(t, WorkerBusy, w.Status)
	assert.True(t, w.IsBusy())

	require.NoError(t, w.ReleaseExecution())
	assert.Equal(t, WorkerIdle, w.Status)
	assert.False(t, w.IsBusy())
}

func TestWorker_AssignExecution_RejectedWhenNotIdle(t *testing.T) {
	w := &Worker{ID: "w1", Status: WorkerBusy, ExecutionID: "exec-1"}
	err := w.AssignExecution("exec-2")
	require.Error(t, err)
	assert.Equal(t, "exec-1", w.ExecutionID)
}

func TestWorker_IsBusy_InvariantUnderRandomInterleaving(t *testing.T) {
	w := &Worker{ID: "w1", Status: WorkerIdle}
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		if w.Status == WorkerIdle && r.Intn(2) == 0 {
			require.NoError(t, w.AssignExecution("exec"))
		} else if w.Status == WorkerBusy && r.Intn(2) == 0 {
			require.NoError(t, w.ReleaseExecution())
		}
		assert.Equal(t, w.IsBusy(), w.ExecutionID != "")
	}
}

func TestWorker_IsHealthy_BoundaryIsInclusive(t *testing.T) {
	now := time.Now()
	w := &Worker{LastHeartbeat: now.Add(-90 * time.Second)}
	assert.True(t, w.IsHealthy(now, 90*time.Second), "exactly-at-timeout must still count as healthy")

	w2 := &Worker{LastHeartbeat: now.Add(-91 * time.Second)}
	assert.False(t, w2.IsHealthy(now, 90*time.Second))
}

func TestWorker_TerminatedIsAbsorbing(t *testing.T) {
	assert.True(t, WorkerTerminated.IsTerminal())
	assert.False(t, WorkerTerminated.CanTransitionTo(WorkerIdle))
	assert.False(t, WorkerTerminated.CanTransitionTo(WorkerProvisioning))
}

func TestWorker_ErrorIsAbsorbing(t *testing.T) {
	assert.True(t, WorkerError.IsTerminal())
	assert.False(t, WorkerError.CanTransitionTo(WorkerIdle))
	assert.False(t, WorkerError.CanTransitionTo(WorkerTerminating))
}
