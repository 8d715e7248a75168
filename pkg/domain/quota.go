package domain

// ResourceUsage and ResourceLimits share a shape so arithmetic between them
// (usage+request<=limits) is a direct field-by-field comparison.
type ResourceUsage struct {
	CPUCores float64
	MemoryBytes int64
	DiskBytes int64
	ConcurrentJobs int
}

type ResourceLimits struct {
	CPUCores float64
	MemoryBytes int64
	DiskBytes int64
	ConcurrentJobs int
}

// PoolQuota is a per-pool resource ceiling plus current usage counters.
// Mutation lives in pkg/quota; this type is the data the engine holds a
// mutex around ("Each PoolQuota has its own mutex").
type PoolQuota struct {
	PoolID string
	Limits ResourceLimits
	Usage ResourceUsage
}
