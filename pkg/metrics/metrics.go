package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Job metrics
	JobsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hodei_jobs_total",
			Help: "Total number of jobs by status",
		},
		[]string{"status"},
	)

	JobsSubmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hodei_jobs_submitted_total",
			Help: "Total number of jobs submitted",
		},
	)

	JobRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hodei_job_retries_total",
			Help: "Total number of job retry attempts",
		},
	)

	// Scheduler metrics
	SchedulingLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hodei_scheduling_latency_seconds",
			Help:    "Time taken to pick a resource pool for a job, by placement strategy",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	SchedulingFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hodei_scheduling_failures_total",
			Help: "Total number of scheduling attempts that found no eligible pool, by reason",
		},
		[]string{"reason"},
	)

	// Execution metrics
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hodei_executions_total",
			Help: "Total number of executions completed, by terminal status",
		},
		[]string{"status"},
	)

	ExecutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hodei_execution_duration_seconds",
			Help:    "Wall-clock duration of an execution from assignment to terminal status",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
		},
	)

	ProvisioningDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hodei_provisioning_duration_seconds",
			Help:    "Time taken to acquire a worker for an execution, by provider kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// Quota metrics
	QuotaViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hodei_quota_violations_total",
			Help: "Total number of hard quota rejections, by pool",
		},
		[]string{"pool"},
	)

	QuotaAlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hodei_quota_alerts_total",
			Help: "Total number of soft-threshold quota alerts raised, by pool",
		},
		[]string{"pool"},
	)

	// Pool/worker metrics
	PoolsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hodei_pools_total",
			Help: "Total number of resource pools by status",
		},
		[]string{"status"},
	)

	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hodei_workers_total",
			Help: "Total number of workers by pool and status",
		},
		[]string{"pool", "status"},
	)

	PoolCPUUtilization = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hodei_pool_cpu_utilization_ratio",
			Help: "Fraction of pool CPU capacity in use",
		},
		[]string{"pool"},
	)

	PoolMemoryUtilization = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hodei_pool_memory_utilization_ratio",
			Help: "Fraction of pool memory capacity in use",
		},
		[]string{"pool"},
	)

	// Worker session / wire protocol metrics
	WorkerSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hodei_worker_sessions_active",
			Help: "Number of worker sessions currently connected over the wire protocol",
		},
	)

	WorkerSessionsReapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hodei_worker_sessions_reaped_total",
			Help: "Total number of worker sessions closed by heartbeat-timeout reclaim",
		},
	)

	// Artifact metrics
	ArtifactsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hodei_artifacts_expired_total",
			Help: "Total number of artifacts deleted by the expiry sweep",
		},
	)
)

func init() {
	prometheus.MustRegister(
		JobsTotal,
		JobsSubmittedTotal,
		JobRetriesTotal,
		SchedulingLatency,
		SchedulingFailuresTotal,
		ExecutionsTotal,
		ExecutionDuration,
		ProvisioningDuration,
		QuotaViolationsTotal,
		QuotaAlertsTotal,
		PoolsTotal,
		WorkersTotal,
		PoolCPUUtilization,
		PoolMemoryUtilization,
		WorkerSessionsActive,
		WorkerSessionsReapedTotal,
		ArtifactsExpiredTotal,
	)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
