package quota

import (
	"sync"

	"github.com/hodei/orchestrator/pkg/domain"
)

// Manager owns one *Quota per pool ("Each PoolQuota has its own
// mutex"). Quotas are created lazily on first Register and never replaced,
// so a *Quota handed to a caller stays valid for the pool's lifetime.
type Manager struct {
	mu sync.RWMutex
	quotas map[string]*Quota
}

func NewManager() *Manager {
	return &Manager{quotas: make(map[string]*Quota)}
}

// Register returns the pool's Quota, creating it from limits if this is the
// first call for poolID. Subsequent calls ignore limits and return the
// existing instance, since usage must never be reset out from under a live
// pool.
func (m *Manager) Register(poolID string, limits domain.ResourceLimits) *Quota {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.quotas[poolID]; ok {
		return q
	}
	q := New(domain.PoolQuota{PoolID: poolID, Limits: limits})
	m.quotas[poolID] = q
	return q
}

// Lookup satisfies scheduler.QuotaLookup.
func (m *Manager) Lookup(poolID string) (*Quota, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quotas[poolID]
	return q, ok
}

// All returns a snapshot of every registered pool id, for the periodic
// alert sweep (pkg/quota/sweep).
func (m *Manager) All() map[string]*Quota {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*Quota, len(m.quotas))
	for k, v := range m.quotas {
		out[k] = v
	}
	return out
}
