package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hodei/orchestrator/pkg/log"
	"github.com/hodei/orchestrator/pkg/metrics"
	"github.com/hodei/orchestrator/pkg/storage"
)

// Reconciler periodically sweeps storage.ArtifactRepository for artifacts
// past their retention window and deletes them, filling the one piece of
// Artifact surface nothing else in the system ever drives:
// nobody calls FindExpiredArtifacts/DeleteByID on a request path, so
// without a background sweep expired artifacts never actually leave the
// store.
type Reconciler struct {
	artifacts storage.ArtifactRepository
	logger zerolog.Logger
	mu sync.Mutex
	stopCh chan struct{}
}

// NewReconciler creates a new reconciler
func NewReconciler(artifacts storage.ArtifactRepository) *Reconciler {
	return &Reconciler{
		artifacts: artifacts,
		logger: log.WithComponent("reconciler"),
		stopCh: make(chan struct{}),
	}
}

// Start begins the reconciliation loop
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the reconciler
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

const sweepInterval = 10 * time.Minute

// run is the main reconciliation loop
func (r *Reconciler) run() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	r.logger.Info().Msg("reconciler started")

	for {
		select {
		case <-ticker.C:
			if err := r.reconcile(context.Background()); err != nil {
				r.logger.Error().Err(err).Msg("reconciliation cycle failed")
			}
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

// reconcile performs one reconciliation cycle: find every artifact whose
// retention window has elapsed and remove it.
func (r *Reconciler) reconcile(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.reconcileExpiredArtifacts(ctx)
}

func (r *Reconciler) reconcileExpiredArtifacts(ctx context.Context) error {
	expired, err := r.artifacts.FindExpiredArtifacts(ctx, time.Now())
	if err != nil {
		return err
	}

	for _, a := range expired {
		r.logger.Info().
			Str("artifact_id", a.ID).
			Str("name", a.Name).
			Str("version", a.Version).
			Msg("artifact expired, deleting")

		if err := r.artifacts.DeleteByID(ctx, a.ID); err != nil {
			r.logger.Error().
				Err(err).
				Str("artifact_id", a.ID).
				Msg("failed to delete expired artifact")
			continue
		}
		metrics.ArtifactsExpiredTotal.Inc()
	}

	return nil
}
