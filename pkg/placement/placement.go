// Package placement implements the pure candidate-selection strategies the
// scheduler chooses among. Every strategy is a deterministic function of
// its inputs; none owns mutable state except roundrobin's counter.
package placement

import (
	"sort"

	"github.com/hodei/orchestrator/pkg/domain"
	"github.com/hodei/orchestrator/pkg/pool"
)

// Candidate pairs a pool with its utilization snapshot, already filtered by
// the scheduler's eligibility predicate before reaching a strategy.
type Candidate struct {
	Pool *domain.ResourcePool
	Utilization pool.Utilization
}

// Strategy picks one candidate deterministically. Ties are always broken by
// pool ID lexicographic order.
type Strategy func(candidates []Candidate) *domain.ResourcePool

func sortedByID(candidates []Candidate) []Candidate {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)
	sort.Slice(out, func(i, j int) bool { return out[i].Pool.ID < out[j].Pool.ID })
	return out
}

// RoundRobin rotates deterministically over the sorted-by-id candidate
// list. The counter is owned by the returned closure's receiver, not by the
// package, so concurrent schedulers can each hold an independent cursor.
type RoundRobin struct {
	counter uint64
}

func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (r *RoundRobin) Select(candidates []Candidate) *domain.ResourcePool {
	if len(candidates) == 0 {
		return nil
	}
	sorted := sortedByID(candidates)
	idx := r.counter % uint64(len(sorted))
	r.counter++
	return sorted[idx].Pool
}

// Greedy picks the pool with the lowest max(cpuUtil, memUtil).
func Greedy(candidates []Candidate) *domain.ResourcePool {
	sorted := sortedByID(candidates)
	var best *Candidate
	var bestScore float64
	for i := range sorted {
		score := max(sorted[i].Utilization.CPUUtil(), sorted[i].Utilization.MemUtil())
		if best == nil || score < bestScore {
			best = &sorted[i]
			bestScore = score
		}
	}
	if best == nil {
		return nil
	}
	return best.Pool
}

// LeastLoaded picks the pool minimizing (cpuUtil + memUtil + jobCount/maxJobs)/3.
func LeastLoaded(candidates []Candidate) *domain.ResourcePool {
	sorted := sortedByID(candidates)
	var best *Candidate
	var bestScore float64
	for i := range sorted {
		c := &sorted[i]
		jobRatio := 0.0
		if c.Pool.Policies.MaxJobs > 0 {
			jobRatio = float64(c.Utilization.RunningJobs) / float64(c.Pool.Policies.MaxJobs)
		}
		score := (c.Utilization.CPUUtil() + c.Utilization.MemUtil() + jobRatio) / 3
		if best == nil || score < bestScore {
			best = c
			bestScore = score
		}
	}
	if best == nil {
		return nil
	}
	return best.Pool
}

// BinPacking prefers pools already in [0.4, 0.7] utilization to consolidate
// load onto fewer pools; it never picks a pool at or above 0.8.
func BinPacking(candidates []Candidate) *domain.ResourcePool {
	sorted := sortedByID(candidates)
	var best *Candidate
	var bestScore float64
	for i := range sorted {
		c := &sorted[i]
		util := max(c.Utilization.CPUUtil(), c.Utilization.MemUtil())
		if util >= 0.8 {
			continue
		}
		score := binPackingPenalty(util)
		if best == nil || score < bestScore || (score == bestScore && util > max(best.Utilization.CPUUtil(), best.Utilization.MemUtil())) {
			best = c
			bestScore = score
		}
	}
	if best == nil {
		return nil
	}
	return best.Pool
}

// binPackingPenalty is lowest (best) for utilization inside [0.4, 0.7] and
// grows the further utilization strays from that band in either direction.
func binPackingPenalty(util float64) float64 {
	switch {
	case util >= 0.4 && util <= 0.7:
		return 0
	case util < 0.4:
		return 0.4 - util
	default: // 0.7 < util < 0.8
		return util - 0.7
	}
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Registry exposes every strategy by name, for Scheduler.AvailableStrategies().
func Registry(rr *RoundRobin) map[string]Strategy {
	return map[string]Strategy{
		"roundrobin": rr.Select,
		"greedy": Greedy,
		"leastloaded": LeastLoaded,
		"binpacking": BinPacking,
	}
}
