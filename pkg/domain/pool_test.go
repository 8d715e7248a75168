package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResourcePool_UpdateStatus_AllowedTransitions(t *testing.T) {
	cases := []struct{ from, to PoolStatus }{
		{PoolProvisioning, PoolActive},
		{PoolActive, PoolDraining},
		{PoolActive, PoolMaintenance},
		{PoolDraining, PoolActive},
		{PoolMaintenance, PoolActive},
		{PoolError, PoolActive},
	}
	for _, c := range cases {
		p := &ResourcePool{ID: "pool-1", Status: c.from}
		require.NoError(t, p.UpdateStatus(c.to))
		assert.Equal(t, c.to, p.Status)
	}
}

func TestResourcePool_UpdateStatus_ForbiddenRejected(t *testing.T) {
	p := &ResourcePool{ID: "pool-1", Status: PoolDraining}
	err := p.UpdateStatus(PoolError)
	require.Error(t, err)
	assert.Equal(t, PoolDraining, p.Status)
}

func TestResourcePool_CanAcceptJobs_OnlyWhenActive(t *testing.T) {
	for _, s := range []PoolStatus{PoolProvisioning, PoolDraining, PoolMaintenance, PoolError} {
		p := &ResourcePool{Status: s}
		assert.False(t, p.CanAcceptJobs(), "status %s must not accept jobs", s)
	}
	assert.True(t, (&ResourcePool{Status: PoolActive}).CanAcceptJobs())
}

func TestResourcePool_MatchesSelectors_SubsetMatch(t *testing.T) {
	p := &ResourcePool{Policies: PoolPolicies{Selectors: map[string]string{
		"zone": "us-east", "gpu": "true",
	}}}
	assert.True(t, p.MatchesSelectors(map[string]string{"zone": "us-east"}))
	assert.True(t, p.MatchesSelectors(nil))
	assert.False(t, p.MatchesSelectors(map[string]string{"zone": "us-west"}))
	assert.False(t, p.MatchesSelectors(map[string]string{"missing": "x"}))
}
