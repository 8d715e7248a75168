package sweep

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hodei/orchestrator/pkg/domain"
	"github.com/hodei/orchestrator/pkg/quota"
)

func TestSweepOnce_ForwardsAlertsFromEveryPool(t *testing.T) {
	manager := quota.NewManager()
	q1 := manager.Register("p1", domain.ResourceLimits{CPUCores: 10})
	require.NoError(t, q1.TryAllocate(domain.ResourceUsage{CPUCores: 9}))
	manager.Register("p2", domain.ResourceLimits{CPUCores: 10})

	var seen []string
	s := New(manager, quota.Thresholds{WarnAtPct: 80}, func(poolID string, alert quota.Alert) {
		seen = append(seen, poolID+":"+string(alert.Action))
	})

	s.sweepOnce(context.Background())

	assert.Contains(t, seen, "p1:notification_sent")
	assert.NotContains(t, seen, "p2:notification_sent")
}

func TestSweepOnce_NoSinkDoesNotPanic(t *testing.T) {
	manager := quota.NewManager()
	manager.Register("p1", domain.ResourceLimits{CPUCores: 10})

	s := New(manager, quota.Thresholds{WarnAtPct: 80}, nil)
	assert.NotPanics(t, func() { s.sweepOnce(context.Background()) })
}
