// Package jobservice implements Job CRUD and the status-transition/retry
// policy, delegating actual placement and execution to
// pkg/engine.
package jobservice

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hodei/orchestrator/pkg/domain"
	"github.com/hodei/orchestrator/pkg/engine"
	"github.com/hodei/orchestrator/pkg/hodeierr"
	"github.com/hodei/orchestrator/pkg/log"
	"github.com/hodei/orchestrator/pkg/metrics"
	"github.com/hodei/orchestrator/pkg/storage"
)

// Submitter is the slice of *engine.Engine this service drives: narrowed to
// an interface so tests can substitute a fake without standing up a full
// engine.
type Submitter interface {
	Submit(ctx context.Context, job *domain.Job, strategy string) (string, error)
	Cancel(ctx context.Context, executionID, reason string, force bool) (engine.CancelResult, error)
}

// Service implements job admission, retry and cancellation; the
// allowed-transition table itself lives on domain.Job.
type Service struct {
	jobs storage.JobRepository
	engine Submitter
	validate *validator.Validate
	logger zerolog.Logger
}

func New(jobs storage.JobRepository, eng Submitter) *Service {
	return &Service{jobs: jobs, engine: eng, validate: validator.New(), logger: log.WithComponent("jobservice")}
}

// Submit validates and persists a new Pending job, then immediately hands
// it to the engine for scheduling and execution.
func (s *Service) Submit(ctx context.Context, job *domain.Job, strategy string) (string, error) {
	if err := s.validate.Struct(job.Resources); err != nil {
		return "", hodeierr.Validation("invalid resource requirements: %v", err)
	}
	if job.Name == "" {
		return "", hodeierr.Validation("job name is required")
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	now := time.Now()
	job.Status = domain.JobPending
	job.CreatedAt = now
	job.UpdatedAt = now

	exists, err := s.jobs.ExistsByName(ctx, job.Name, job.Namespace)
	if err != nil {
		return "", hodeierr.Wrap(hodeierr.KindRepository, "check job name uniqueness", err)
	}
	if exists {
		return "", hodeierr.Conflict("job %q already exists in namespace %q", job.Name, job.Namespace)
	}

	if err := s.jobs.Save(ctx, job); err != nil {
		return "", hodeierr.Wrap(hodeierr.KindRepository, "save job", err)
	}

	metrics.JobsSubmittedTotal.Inc()
	execID, err := s.engine.Submit(ctx, job, strategy)
	if err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("submission failed at or after admission")
		return "", err
	}
	return execID, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Job, error) {
	job, err := s.jobs.FindByID(ctx, id)
	if err != nil {
		return nil, hodeierr.Wrap(hodeierr.KindRepository, "find job", err)
	}
	if job == nil {
		return nil, hodeierr.NotFound("job", id)
	}
	return job, nil
}

func (s *Service) List(ctx context.Context, page storage.Page, filter storage.JobFilter) ([]*domain.Job, error) {
	return s.jobs.List(ctx, page, filter)
}

// Retry is allowed only from Failed with retryCount < maxRetries,
// producing a new Pending job that is immediately resubmitted.
func (s *Service) Retry(ctx context.Context, jobID, strategy string) (string, string, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return "", "", err
	}
	clone, err := job.Retry()
	if err != nil {
		return "", "", err
	}
	clone.ID = uuid.NewString()
	if err := s.jobs.Save(ctx, clone); err != nil {
		return "", "", hodeierr.Wrap(hodeierr.KindRepository, "save retried job", err)
	}
	metrics.JobRetriesTotal.Inc()
	execID, err := s.engine.Submit(ctx, clone, strategy)
	if err != nil {
		return clone.ID, "", err
	}
	return clone.ID, execID, nil
}

// Cancel implements cancel(job, force): allowed in every
// non-terminal job state. If the job has an active execution, the engine
// is asked to cancel it; otherwise the job transitions directly.
func (s *Service) Cancel(ctx context.Context, jobID, reason string, force bool) error {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return hodeierr.BusinessRule("job %s: cannot cancel terminal status %s", job.ID, job.Status)
	}

	if job.LatestExecutionID != "" && (job.Status == domain.JobRunning || job.Status == domain.JobScheduled) {
		if _, err := s.engine.Cancel(ctx, job.LatestExecutionID, reason, force); err != nil {
			return err
		}
		return nil // the engine's Cancel path persists the job's terminal status itself
	}

	if err := job.Cancel(); err != nil {
		return err
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		return hodeierr.Wrap(hodeierr.KindRepository, "persist cancelled job", err)
	}
	return nil
}
