package domain

import (
	"testing"

	"github.com/hodei/orchestrator/pkg/hodeierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJob(status JobStatus) *Job {
	return &Job{ID: "job-1", Status: status, MaxRetries: 3}
}

func TestJob_UpdateStatus_AllowedTransitions(t *testing.T) {
	cases := []struct {
		from, to JobStatus
	}{
		{JobPending, JobQueued},
		{JobQueued, JobScheduled},
		{JobQueued, JobRunning},
		{JobScheduled, JobRunning},
		{JobRunning, JobCompleted},
		{JobRunning, JobFailed},
		{JobFailed, JobPending},
	}
	for _, c := range cases {
		j := newJob(c.from)
		require.NoError(t, j.UpdateStatus(c.to))
		assert.Equal(t, c.to, j.Status)
	}
}

func TestJob_UpdateStatus_ForbiddenLeavesStateUnchanged(t *testing.T) {
	j := newJob(JobCompleted)
	err := j.UpdateStatus(JobRunning)
	require.Error(t, err)
	assert.ErrorIs(t, err, hodeierr.New(hodeierr.KindBusinessRule, ""))
	assert.Equal(t, JobCompleted, j.Status)
}

func TestJob_UpdateStatus_NoOpIdempotent(t *testing.T) {
	j1 := newJob(JobQueued)
	j2 := newJob(JobQueued)
	require.NoError(t, j1.UpdateStatus(JobQueued))
	require.NoError(t, j2.UpdateStatus(JobQueued))
	assert.Equal(t, j1.Status, j2.Status)
}

func TestJob_Retry_RejectedAtMaxRetries(t *testing.T) {
	j := newJob(JobFailed)
	j.RetryCount = 3
	_, err := j.Retry()
	require.Error(t, err)
	assert.ErrorIs(t, err, hodeierr.New(hodeierr.KindBusinessRule, ""))
}

func TestJob_Retry_ProducesIncrementedPendingJob(t *testing.T) {
	j := newJob(JobFailed)
	j.RetryCount = 1
	retried, err := j.Retry()
	require.NoError(t, err)
	assert.Equal(t, JobPending, retried.Status)
	assert.Equal(t, 2, retried.RetryCount)
}

func TestJob_Retry_DisallowedAfterCancelled(t *testing.T) {
	j := newJob(JobCancelled)
	_, err := j.Retry()
	require.Error(t, err)
}

func TestJob_Cancel_NonTerminalAllowed(t *testing.T) {
	j := newJob(JobRunning)
	require.NoError(t, j.Cancel())
	assert.Equal(t, JobCancelled, j.Status)
}

func TestJob_Cancel_TerminalRejected(t *testing.T) {
	for _, s := range []JobStatus{JobCompleted, JobCancelled} {
		j := newJob(s)
		err := j.Cancel()
		require.Error(t, err)
	}
}
