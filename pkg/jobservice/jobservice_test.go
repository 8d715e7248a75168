package jobservice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hodei/orchestrator/pkg/domain"
	"github.com/hodei/orchestrator/pkg/engine"
	"github.com/hodei/orchestrator/pkg/hodeierr"
	"github.com/hodei/orchestrator/pkg/storage/memory"
)

// fakeEngine satisfies Submitter without standing up a real engine.Engine.
type fakeEngine struct {
	submitCalls int
	nextExecID string
	submitErr error
	cancelResult engine.CancelResult
	cancelErr error
	lastCancelExecID string
}

func (f *fakeEngine) Submit(ctx context.Context, job *domain.Job, strategy string) (string, error) {
	f.submitCalls++
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.nextExecID, nil
}

func (f *fakeEngine) Cancel(ctx context.Context, executionID, reason string, force bool) (engine.CancelResult, error) {
	f.lastCancelExecID = executionID
	return f.cancelResult, f.cancelErr
}

func newService() (*Service, *memory.Jobs, *fakeEngine) {
	jobs := memory.NewJobs()
	fe := &fakeEngine{nextExecID: "exec-1"}
	return New(jobs, fe), jobs, fe
}

func TestSubmit_AssignsIDAndDelegatesToEngine(t *testing.T) {
	s, jobs, fe := newService()
	job := &domain.Job{Name: "build", Namespace: "default", Resources: domain.ResourceRequirements{CPUCores: 1}}

	execID, err := s.Submit(context.Background(), job, "leastloaded")
	require.NoError(t, err)
	assert.Equal(t, "exec-1", execID)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, 1, fe.submitCalls)

	persisted, err := jobs.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, "build", persisted.Name)
}

func TestSubmit_RejectsBlankName(t *testing.T) {
	s, _, _ := newService()
	_, err := s.Submit(context.Background(), &domain.Job{}, "")
	require.Error(t, err)
	var herr *hodeierr.Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, hodeierr.KindValidation, herr.Kind)
}

func TestSubmit_RejectsDuplicateName(t *testing.T) {
	s, _, _ := newService()
	job1 := &domain.Job{Name: "build", Namespace: "default"}
	_, err := s.Submit(context.Background(), job1, "")
	require.NoError(t, err)

	job2 := &domain.Job{Name: "build", Namespace: "default"}
	_, err = s.Submit(context.Background(), job2, "")
	require.Error(t, err)
	var herr *hodeierr.Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, hodeierr.KindConflict, herr.Kind)
}

func TestSubmit_EngineFailureStillPropagates(t *testing.T) {
	s, jobs, fe := newService()
	fe.submitErr = hodeierr.InsufficientResources("no pool")
	job := &domain.Job{Name: "build", Namespace: "default"}

	_, err := s.Submit(context.Background(), job, "")
	require.Error(t, err)

	// The job is still persisted even though the engine rejected it — the
	// admission record survives for history/retry, per spec.md §3.
	persisted, err := jobs.FindByID(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, persisted.ID)
}

func TestRetry_OnlyAllowedFromFailedWithRetriesRemaining(t *testing.T) {
	s, jobs, fe := newService()
	job := &domain.Job{ID: "j1", Name: "build", Namespace: "default", Status: domain.JobFailed, RetryCount: 0, MaxRetries: 2}
	require.NoError(t, jobs.Save(context.Background(), job))

	newID, execID, err := s.Retry(context.Background(), "j1", "")
	require.NoError(t, err)
	assert.NotEqual(t, "j1", newID)
	assert.Equal(t, "exec-1", execID)
	assert.Equal(t, 1, fe.submitCalls)
}

func TestRetry_RejectsAtMaxRetries(t *testing.T) {
	s, jobs, _ := newService()
	job := &domain.Job{ID: "j1", Name: "build", Namespace: "default", Status: domain.JobFailed, RetryCount: 2, MaxRetries: 2}
	require.NoError(t, jobs.Save(context.Background(), job))

	_, _, err := s.Retry(context.Background(), "j1", "")
	require.Error(t, err)
	var herr *hodeierr.Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, hodeierr.KindBusinessRule, herr.Kind)
}

func TestRetry_RejectsFromCancelled(t *testing.T) {
	s, jobs, _ := newService()
	job := &domain.Job{ID: "j1", Name: "build", Namespace: "default", Status: domain.JobCancelled, RetryCount: 0, MaxRetries: 2}
	require.NoError(t, jobs.Save(context.Background(), job))

	_, _, err := s.Retry(context.Background(), "j1", "")
	require.Error(t, err)
}

func TestCancel_TerminalJobRejected(t *testing.T) {
	s, jobs, _ := newService()
	job := &domain.Job{ID: "j1", Name: "build", Namespace: "default", Status: domain.JobCompleted}
	require.NoError(t, jobs.Save(context.Background(), job))

	err := s.Cancel(context.Background(), "j1", "because", false)
	require.Error(t, err)
	var herr *hodeierr.Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, hodeierr.KindBusinessRule, herr.Kind)
}

func TestCancel_RunningJobDelegatesToEngine(t *testing.T) {
	s, jobs, fe := newService()
	job := &domain.Job{ID: "j1", Name: "build", Namespace: "default", Status: domain.JobRunning, LatestExecutionID: "exec-9"}
	require.NoError(t, jobs.Save(context.Background(), job))

	err := s.Cancel(context.Background(), "j1", "because", false)
	require.NoError(t, err)
	assert.Equal(t, "exec-9", fe.lastCancelExecID)

	// The engine owns persisting the terminal status on this path; the
	// service itself must not have overwritten it back to Running.
	persisted, err := jobs.FindByID(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobRunning, persisted.Status)
}

func TestCancel_PendingJobTransitionsDirectly(t *testing.T) {
	s, jobs, fe := newService()
	job := &domain.Job{ID: "j1", Name: "build", Namespace: "default", Status: domain.JobPending}
	require.NoError(t, jobs.Save(context.Background(), job))

	err := s.Cancel(context.Background(), "j1", "because", false)
	require.NoError(t, err)
	assert.Equal(t, 0, fe.submitCalls)

	persisted, err := jobs.FindByID(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobCancelled, persisted.Status)
}

func TestGet_NotFound(t *testing.T) {
	s, _, _ := newService()
	_, err := s.Get(context.Background(), "ghost")
	require.Error(t, err)
}
