/*
Package metrics provides Prometheus metrics collection and exposition for
the orchestrator.

All metrics are registered at package init() and are exposed via the
standard promhttp handler for scraping. Component instrumentation updates
the package-level variables directly (job/execution/quota counters from
pkg/jobservice and pkg/engine, pool/worker gauges from the periodic
Collector in collector.go).

# Metrics Catalog

Job metrics:

hodei_jobs_total{status}:
  - Type: Gauge
  - Description: Jobs by status (pending/queued/scheduled/running/completed/failed/cancelled)

hodei_jobs_submitted_total:
  - Type: Counter
  - Description: Total jobs accepted by Submit

hodei_job_retries_total:
  - Type: Counter
  - Description: Total retry attempts triggered by the failed->pending transition

Scheduler metrics:

hodei_scheduling_latency_seconds{strategy}:
  - Type: Histogram
  - Description: Time to pick a resource pool, by placement strategy

hodei_scheduling_failures_total{reason}:
  - Type: Counter
  - Description: Scheduling attempts that found no eligible pool

Execution metrics:

hodei_executions_total{status}:
  - Type: Counter
  - Description: Executions reaching a terminal status

hodei_execution_duration_seconds:
  - Type: Histogram
  - Description: Wall-clock duration from worker assignment to terminal status

hodei_provisioning_duration_seconds{provider}:
  - Type: Histogram
  - Description: Time to acquire a worker via a WorkerFactory, by provider kind

Quota metrics:

hodei_quota_violations_total{pool}:
  - Type: Counter
  - Description: Hard quota rejections

hodei_quota_alerts_total{pool}:
  - Type: Counter
  - Description: Soft-threshold alerts raised by the quota sweep

Pool/worker metrics:

hodei_pools_total{status}, hodei_workers_total{pool,status}:
  - Type: Gauge
  - Description: Live counts refreshed by the Collector every 15s

hodei_pool_cpu_utilization_ratio{pool}, hodei_pool_memory_utilization_ratio{pool}:
  - Type: Gauge
  - Description: pool.Service.Utilization snapshots, sampled the same cadence

Worker session metrics:

hodei_worker_sessions_active:
  - Type: Gauge
  - Description: Worker sessions currently connected over the wire protocol

hodei_worker_sessions_reaped_total:
  - Type: Counter
  - Description: Sessions closed by heartbeat-timeout reclaim (workermanager.ReapLoop)

Artifact metrics:

hodei_artifacts_expired_total:
  - Type: Counter
  - Description: Artifacts deleted by the expiry sweep (pkg/reconciler)

# Usage

	import "github.com/hodei/orchestrator/pkg/metrics"

	timer := metrics.NewTimer()
	pool, err := scheduler.Schedule(ctx, job, strategy)
	timer.ObserveDurationVec(metrics.SchedulingLatency, strategy)

	http.Handle("/metrics", metrics.Handler())

# See Also

  - Prometheus client library: https://github.com/prometheus/client_golang
*/
package metrics
