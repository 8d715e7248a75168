// Package quota implements the per-pool resource-limit checking invoked in
// the admission path. Allocation is monotonic and
// deallocation never drives a counter below zero.
package quota

import (
	"sync"

	"github.com/hodei/orchestrator/pkg/domain"
	"github.com/hodei/orchestrator/pkg/hodeierr"
)

// CanAllocate is the sole admission predicate: usage + request <= limits,
// field by field.
func CanAllocate(usage domain.ResourceUsage, request domain.ResourceUsage, limits domain.ResourceLimits) bool {
	if limits.CPUCores > 0 && usage.CPUCores+request.CPUCores > limits.CPUCores {
		return false
	}
	if limits.MemoryBytes > 0 && usage.MemoryBytes+request.MemoryBytes > limits.MemoryBytes {
		return false
	}
	if limits.DiskBytes > 0 && usage.DiskBytes+request.DiskBytes > limits.DiskBytes {
		return false
	}
	if limits.ConcurrentJobs > 0 && usage.ConcurrentJobs+request.ConcurrentJobs > limits.ConcurrentJobs {
		return false
	}
	return true
}

// Allocate returns the post-allocation usage. Callers must have already
// checked CanAllocate; Allocate does not re-check (the check-and-apply pair
// is held under the caller's Quota mutex, see Quota.TryAllocate below).
func Allocate(usage domain.ResourceUsage, request domain.ResourceUsage) domain.ResourceUsage {
	usage.CPUCores += request.CPUCores
	usage.MemoryBytes += request.MemoryBytes
	usage.DiskBytes += request.DiskBytes
	usage.ConcurrentJobs += request.ConcurrentJobs
	return usage
}

// Deallocate reverses an allocation; counters are floored at zero so an
// unmatched deallocate can never drive usage negative.
func Deallocate(usage domain.ResourceUsage, request domain.ResourceUsage) domain.ResourceUsage {
	usage.CPUCores = floor0(usage.CPUCores - request.CPUCores)
	usage.MemoryBytes = floor0i64(usage.MemoryBytes - request.MemoryBytes)
	usage.DiskBytes = floor0i64(usage.DiskBytes - request.DiskBytes)
	usage.ConcurrentJobs = floor0int(usage.ConcurrentJobs - request.ConcurrentJobs)
	return usage
}

func floor0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
func floor0i64(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
func floor0int(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// Severity classifies how far a resource is over its limit.
type Severity string

const (
	SeverityLow Severity = "low" // <10%
	SeverityMedium Severity = "medium" // 10-20%
	SeverityHigh Severity = "high" // 20-50%
	SeverityCritical Severity = "critical" // >50%
)

func classify(excessPct float64) Severity {
	switch {
	case excessPct > 50:
		return SeverityCritical
	case excessPct > 20:
		return SeverityHigh
	case excessPct > 10:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Violations reports every resource currently over its limit.
func Violations(usage domain.ResourceUsage, limits domain.ResourceLimits) []hodeierr.Violation {
	var out []hodeierr.Violation
	check := func(resource string, current, limit float64) {
		if limit <= 0 || current <= limit {
			return
		}
		excess := (current - limit) / limit * 100
		out = append(out, hodeierr.Violation{Resource: resource, Limit: limit, Current: current, ExcessPct: excess})
	}
	check("cpu_cores", usage.CPUCores, limits.CPUCores)
	check("memory_bytes", float64(usage.MemoryBytes), float64(limits.MemoryBytes))
	check("disk_bytes", float64(usage.DiskBytes), float64(limits.DiskBytes))
	check("concurrent_jobs", float64(usage.ConcurrentJobs), float64(limits.ConcurrentJobs))
	return out
}

// Action is the enforcement decision attached to an Alert.
type Action string

const (
	ActionBlocked Action = "blocked"
	ActionAllowedWithWarning Action = "allowed_with_warning"
	ActionQueued Action = "queued"
	ActionScaledUp Action = "scaled_up"
	ActionNotificationSent Action = "notification_sent"
	ActionNoAction Action = "no_action"
)

// Thresholds configures when a soft/threshold alert fires, as distinct from
// the hard limits in ResourceLimits.
type Thresholds struct {
	WarnAtPct float64 // e.g. 80: alert once usage crosses 80% of limit
}

// Alert is the tagged enforcement record callers must not bypass.
type Alert struct {
	Resource string
	Severity Severity
	Action Action
	Message string
}

// Alerts evaluates usage against both hard limits (producing Blocked) and
// soft thresholds (producing NotificationSent/NoAction)
func Alerts(usage domain.ResourceUsage, limits domain.ResourceLimits, thresholds Thresholds) []Alert {
	var alerts []Alert
	for _, v := range Violations(usage, limits) {
		alerts = append(alerts, Alert{
			Resource: v.Resource,
			Severity: classify(v.ExcessPct),
			Action: ActionBlocked,
			Message: "hard limit exceeded",
		})
	}
	if thresholds.WarnAtPct <= 0 {
		return alerts
	}
	warn := func(resource string, current, limit float64) {
		if limit <= 0 {
			return
		}
		pct := current / limit * 100
		if pct >= thresholds.WarnAtPct && pct <= 100 {
			alerts = append(alerts, Alert{
				Resource: resource,
				Severity: SeverityLow,
				Action: ActionNotificationSent,
				Message: "approaching soft threshold",
			})
		}
	}
	warn("cpu_cores", usage.CPUCores, limits.CPUCores)
	warn("memory_bytes", float64(usage.MemoryBytes), float64(limits.MemoryBytes))
	warn("disk_bytes", float64(usage.DiskBytes), float64(limits.DiskBytes))
	warn("concurrent_jobs", float64(usage.ConcurrentJobs), float64(limits.ConcurrentJobs))
	return alerts
}

// Quota wraps a domain.PoolQuota with a mutex: every
// allocate/deallocate holds it across the whole check-and-apply pair, so
// admission cannot be decomposed into a separate check then a separate
// write.
type Quota struct {
	mu sync.Mutex
	data domain.PoolQuota
}

func New(data domain.PoolQuota) *Quota {
	return &Quota{data: data}
}

func (q *Quota) Snapshot() domain.PoolQuota {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.data
}

// TryAllocate is the only path by which usage grows. It returns
// QuotaExceededError (carrying the violations the request would have
// caused) without mutating usage if the request cannot be admitted.
func (q *Quota) TryAllocate(request domain.ResourceUsage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !CanAllocate(q.data.Usage, request, q.data.Limits) {
		hypothetical := Allocate(q.data.Usage, request)
		return &hodeierr.QuotaExceededError{Violations: Violations(hypothetical, q.data.Limits)}
	}
	q.data.Usage = Allocate(q.data.Usage, request)
	return nil
}

func (q *Quota) Deallocate(request domain.ResourceUsage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.data.Usage = Deallocate(q.data.Usage, request)
}

func (q *Quota) Violations() []hodeierr.Violation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Violations(q.data.Usage, q.data.Limits)
}

func (q *Quota) Alerts(thresholds Thresholds) []Alert {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Alerts(q.data.Usage, q.data.Limits, thresholds)
}
