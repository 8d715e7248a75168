/*
Package reconciler sweeps expired artifacts out of storage on a fixed
interval.

Node and worker failure detection live elsewhere: pkg/workermanager's
ReapLoop already reclaims workers that miss their heartbeat deadline, and
pkg/engine's WorkerLost handling already fails the affected execution. This
package exists for the one piece of Artifact surface nothing
else drives — FindExpiredArtifacts/DeleteByID are never called from a
request path, so without a background sweep an artifact past its
ExpiresAt timestamp would simply sit in storage forever.

# Architecture

	┌──────────────────────────────────────────┐
	│ Reconciliation Loop │
	│ (Every 10 minutes) │
	└───────────────────┬────────────────────────┘
	 │
	 ▼
	 FindExpiredArtifacts(now)
	 │
	 ▼
	 DeleteByID for each

# Usage

	rec := reconciler.NewReconciler(store.Artifacts())
	rec.Start()
	defer rec.Stop()

Like the scheduler, the reconciler is stateless between cycles: every run
re-derives its work set from storage rather than remembering what it did
last time, so a missed cycle is simply caught up on the next one.

# Metrics

	hodei_artifacts_expired_total - total artifacts deleted by the sweep

# See Also

 - pkg/workermanager - worker heartbeat reclaim (a separate concern)
 - pkg/storage - ArtifactRepository.FindExpiredArtifacts/DeleteByID
*/
package reconciler
