package quota

import (
	"errors"
	"testing"

	"github.com/hodei/orchestrator/pkg/domain"
	"github.com/hodei/orchestrator/pkg/hodeierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanAllocate_WithinLimits(t *testing.T) {
	limits := domain.ResourceLimits{CPUCores: 4, MemoryBytes: 1 << 30, ConcurrentJobs: 2}
	usage := domain.ResourceUsage{CPUCores: 1, MemoryBytes: 1 << 20, ConcurrentJobs: 1}
	request := domain.ResourceUsage{CPUCores: 1, MemoryBytes: 1 << 20, ConcurrentJobs: 1}
	assert.True(t, CanAllocate(usage, request, limits))
}

func TestCanAllocate_ExceedsOneDimension(t *testing.T) {
	limits := domain.ResourceLimits{CPUCores: 2, ConcurrentJobs: 10}
	usage := domain.ResourceUsage{CPUCores: 1.5, ConcurrentJobs: 0}
	request := domain.ResourceUsage{CPUCores: 1, ConcurrentJobs: 1}
	assert.False(t, CanAllocate(usage, request, limits))
}

func TestCanAllocate_ZeroLimitMeansUnbounded(t *testing.T) {
	limits := domain.ResourceLimits{}
	usage := domain.ResourceUsage{CPUCores: 1000}
	request := domain.ResourceUsage{CPUCores: 1000}
	assert.True(t, CanAllocate(usage, request, limits))
}

func TestAllocateDeallocate_RoundTrip(t *testing.T) {
	usage := domain.ResourceUsage{CPUCores: 1, MemoryBytes: 100, DiskBytes: 50, ConcurrentJobs: 1}
	request := domain.ResourceUsage{CPUCores: 2, MemoryBytes: 200, DiskBytes: 100, ConcurrentJobs: 1}
	allocated := Allocate(usage, request)
	assert.Equal(t, domain.ResourceUsage{CPUCores: 3, MemoryBytes: 300, DiskBytes: 150, ConcurrentJobs: 2}, allocated)

	back := Deallocate(allocated, request)
	assert.Equal(t, usage, back)
}

func TestDeallocate_FlooredAtZero(t *testing.T) {
	usage := domain.ResourceUsage{CPUCores: 1, MemoryBytes: 10, DiskBytes: 10, ConcurrentJobs: 1}
	over := domain.ResourceUsage{CPUCores: 5, MemoryBytes: 100, DiskBytes: 100, ConcurrentJobs: 5}
	result := Deallocate(usage, over)
	assert.Equal(t, domain.ResourceUsage{}, result)
}

func TestViolations_ReportsOnlyBreached(t *testing.T) {
	limits := domain.ResourceLimits{CPUCores: 2, MemoryBytes: 100, ConcurrentJobs: 5}
	usage := domain.ResourceUsage{CPUCores: 3, MemoryBytes: 50, ConcurrentJobs: 10}
	v := Violations(usage, limits)
	require.Len(t, v, 2)
	resources := map[string]bool{}
	for _, viol := range v {
		resources[viol.Resource] = true
	}
	assert.True(t, resources["cpu_cores"])
	assert.True(t, resources["concurrent_jobs"])
}

func TestAlerts_SeverityClassification(t *testing.T) {
	cases := []struct {
		excessPct float64
		want      Severity
	}{
		{5, SeverityLow},
		{15, SeverityMedium},
		{30, SeverityHigh},
		{60, SeverityCritical},
	}
	for _, c := range cases {
		limits := domain.ResourceLimits{CPUCores: 100}
		usage := domain.ResourceUsage{CPUCores: 100 + 100*c.excessPct/100}
		alerts := Alerts(usage, limits, Thresholds{})
		require.Len(t, alerts, 1)
		assert.Equal(t, c.want, alerts[0].Severity)
		assert.Equal(t, ActionBlocked, alerts[0].Action)
	}
}

func TestAlerts_SoftThresholdWarnsWithoutBlocking(t *testing.T) {
	limits := domain.ResourceLimits{CPUCores: 10}
	usage := domain.ResourceUsage{CPUCores: 9}
	alerts := Alerts(usage, limits, Thresholds{WarnAtPct: 80})
	require.Len(t, alerts, 1)
	assert.Equal(t, ActionNotificationSent, alerts[0].Action)
}

func TestQuota_TryAllocate_BlocksAndLeavesUsageUnchanged(t *testing.T) {
	q := New(domain.PoolQuota{
		PoolID: "pool-1",
		Limits: domain.ResourceLimits{CPUCores: 2, ConcurrentJobs: 1},
	})
	require.NoError(t, q.TryAllocate(domain.ResourceUsage{CPUCores: 1, ConcurrentJobs: 1}))

	err := q.TryAllocate(domain.ResourceUsage{CPUCores: 1, ConcurrentJobs: 1})
	require.Error(t, err)
	var qe *hodeierr.QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.NotEmpty(t, qe.Violations)

	// rejected allocation must not have mutated usage
	assert.Equal(t, domain.ResourceUsage{CPUCores: 1, ConcurrentJobs: 1}, q.Snapshot().Usage)
}

func TestQuota_AllocateDeallocate_ConcurrentSafe(t *testing.T) {
	q := New(domain.PoolQuota{Limits: domain.ResourceLimits{CPUCores: 1000, ConcurrentJobs: 1000}})
	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		go func() {
			_ = q.TryAllocate(domain.ResourceUsage{CPUCores: 1, ConcurrentJobs: 1})
			q.Deallocate(domain.ResourceUsage{CPUCores: 1, ConcurrentJobs: 1})
			done <- struct{}{}
		}()
	}
	for i := 0; i < 50; i++ {
		<-done
	}
	assert.Equal(t, domain.ResourceUsage{}, q.Snapshot().Usage)
}
