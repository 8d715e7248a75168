// Package memory implements every pkg/storage repository interface as
// in-process maps guarded by a mutex each, for unit tests and the
// single-process quick-start deployment (storage.backend=memory).
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hodei/orchestrator/pkg/domain"
	"github.com/hodei/orchestrator/pkg/hodeierr"
	"github.com/hodei/orchestrator/pkg/storage"
)

// Jobs is an in-memory storage.JobRepository.
type Jobs struct {
	mu   sync.RWMutex
	byID map[string]*domain.Job
}

func NewJobs() *Jobs {
	return &Jobs{byID: make(map[string]*domain.Job)}
}

func (r *Jobs) Save(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.byID[job.ID] = &cp
	return nil
}

func (r *Jobs) FindByID(_ context.Context, id string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.byID[id]
	if !ok {
		return nil, hodeierr.NotFound("job", id)
	}
	cp := *j
	return &cp, nil
}

func (r *Jobs) FindByName(_ context.Context, name, namespace string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, j := range r.byID {
		if j.Name == name && j.Namespace == namespace {
			cp := *j
			return &cp, nil
		}
	}
	return nil, hodeierr.NotFound("job", name)
}

func (r *Jobs) List(_ context.Context, page storage.Page, filter storage.JobFilter) ([]*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []*domain.Job
	for _, j := range r.byID {
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		if filter.Namespace != "" && j.Namespace != filter.Namespace {
			continue
		}
		cp := *j
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, k int) bool { return matched[i].ID < matched[k].ID })
	return paginate(matched, page), nil
}

func (r *Jobs) Update(ctx context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[job.ID]; !ok {
		return hodeierr.NotFound("job", job.ID)
	}
	cp := *job
	r.byID[job.ID] = &cp
	return nil
}

func (r *Jobs) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	return nil
}

func (r *Jobs) ExistsByName(_ context.Context, name, namespace string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, j := range r.byID {
		if j.Name == name && j.Namespace == namespace {
			return true, nil
		}
	}
	return false, nil
}

func (r *Jobs) CountByStatus(_ context.Context, status domain.JobStatus) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, j := range r.byID {
		if j.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *Jobs) FindByTemplateID(_ context.Context, templateID string) ([]*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Job
	for _, j := range r.byID {
		if j.Template != nil && j.Template.ID == templateID {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func paginate[T any](items []T, page storage.Page) []T {
	if page.Size <= 0 {
		return items
	}
	start := page.Number * page.Size
	if start >= len(items) {
		return nil
	}
	end := start + page.Size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

// Pools is an in-memory storage.ResourcePoolRepository.
type Pools struct {
	mu   sync.RWMutex
	byID map[string]*domain.ResourcePool
}

func NewPools() *Pools { return &Pools{byID: make(map[string]*domain.ResourcePool)} }

func (r *Pools) Save(_ context.Context, p *domain.ResourcePool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.byID[p.ID] = &cp
	return nil
}

func (r *Pools) FindByID(_ context.Context, id string) (*domain.ResourcePool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, hodeierr.NotFound("pool", id)
	}
	cp := *p
	return &cp, nil
}

func (r *Pools) FindActive(_ context.Context) ([]*domain.ResourcePool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.ResourcePool
	for _, p := range r.byID {
		if p.Status == domain.PoolActive {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (r *Pools) FindAll(_ context.Context) ([]*domain.ResourcePool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.ResourcePool, 0, len(r.byID))
	for _, p := range r.byID {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (r *Pools) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	return nil
}

// Workers is an in-memory storage.WorkerRepository.
type Workers struct {
	mu   sync.RWMutex
	byID map[string]*domain.Worker
}

func NewWorkers() *Workers { return &Workers{byID: make(map[string]*domain.Worker)} }

func (r *Workers) Save(_ context.Context, w *domain.Worker) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *w
	r.byID[w.ID] = &cp
	return nil
}

func (r *Workers) FindByID(_ context.Context, id string) (*domain.Worker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.byID[id]
	if !ok {
		return nil, hodeierr.NotFound("worker", id)
	}
	cp := *w
	return &cp, nil
}

func (r *Workers) FindAvailable(_ context.Context, poolID string) ([]*domain.Worker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Worker
	for _, w := range r.byID {
		if w.PoolID == poolID && w.Status == domain.WorkerIdle {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (r *Workers) FindByPool(_ context.Context, poolID string) ([]*domain.Worker, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Worker
	for _, w := range r.byID {
		if w.PoolID == poolID {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (r *Workers) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	return nil
}

// Templates is an in-memory storage.TemplateRepository.
type Templates struct {
	mu   sync.RWMutex
	byID map[string]*domain.Template
}

func NewTemplates() *Templates { return &Templates{byID: make(map[string]*domain.Template)} }

func (r *Templates) Save(_ context.Context, t *domain.Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.byID[t.ID] = &cp
	return nil
}

func (r *Templates) FindByID(_ context.Context, id string) (*domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, hodeierr.NotFound("template", id)
	}
	cp := *t
	return &cp, nil
}

func (r *Templates) FindByNameAndVersion(_ context.Context, name, version string) (*domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.byID {
		if t.Name == name && t.Version == version {
			cp := *t
			return &cp, nil
		}
	}
	return nil, hodeierr.NotFound("template", name+"@"+version)
}

func (r *Templates) FindByName(_ context.Context, name string) ([]*domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Template
	for _, t := range r.byID {
		if t.Name == name {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Version < out[k].Version })
	return out, nil
}

func (r *Templates) List(_ context.Context, page storage.Page) ([]*domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Template, 0, len(r.byID))
	for _, t := range r.byID {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return paginate(out, page), nil
}

// Search performs a case-insensitive substring match over name and tags.
func (r *Templates) Search(_ context.Context, query storage.TemplateSearchQuery) ([]*domain.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	needle := strings.ToLower(query.Text)
	var matched []*domain.Template
	for _, t := range r.byID {
		if strings.Contains(strings.ToLower(t.Name), needle) || tagsMatch(t.Tags, needle) {
			cp := *t
			matched = append(matched, &cp)
		}
	}
	sort.Slice(matched, func(i, k int) bool { return matched[i].ID < matched[k].ID })
	return paginate(matched, query.Page), nil
}

func tagsMatch(tags []string, needle string) bool {
	for _, tag := range tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

func (r *Templates) ExistsByNameAndVersion(_ context.Context, name, version string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.byID {
		if t.Name == name && t.Version == version {
			return true, nil
		}
	}
	return false, nil
}

func (r *Templates) UpdateStatistics(_ context.Context, id string, usageDelta int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return hodeierr.NotFound("template", id)
	}
	t.UsageCount += usageDelta
	t.UpdatedAt = time.Now()
	return nil
}

func (r *Templates) Exists(_ context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok, nil
}

// Artifacts is an in-memory storage.ArtifactRepository.
type Artifacts struct {
	mu   sync.RWMutex
	byID map[string]*domain.Artifact
}

func NewArtifacts() *Artifacts { return &Artifacts{byID: make(map[string]*domain.Artifact)} }

func (r *Artifacts) Save(_ context.Context, a *domain.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.byID[a.ID] = &cp
	return nil
}

func (r *Artifacts) FindByID(_ context.Context, id string) (*domain.Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, hodeierr.NotFound("artifact", id)
	}
	cp := *a
	return &cp, nil
}

func (r *Artifacts) findWhere(pred func(*domain.Artifact) bool) []*domain.Artifact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Artifact
	for _, a := range r.byID {
		if pred(a) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out
}

func (r *Artifacts) FindByJobID(_ context.Context, jobID string) ([]*domain.Artifact, error) {
	return r.findWhere(func(a *domain.Artifact) bool { return a.JobID == jobID }), nil
}

func (r *Artifacts) FindByExecutionID(_ context.Context, executionID string) ([]*domain.Artifact, error) {
	return r.findWhere(func(a *domain.Artifact) bool { return a.ExecutionID == executionID }), nil
}

func (r *Artifacts) FindByPoolID(_ context.Context, poolID string) ([]*domain.Artifact, error) {
	return r.findWhere(func(a *domain.Artifact) bool { return a.PoolID == poolID }), nil
}

func (r *Artifacts) FindByNameAndVersion(_ context.Context, name, version string) (*domain.Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.byID {
		if a.Name == name && a.Version == version {
			cp := *a
			return &cp, nil
		}
	}
	return nil, hodeierr.NotFound("artifact", name+"@"+version)
}

func (r *Artifacts) FindVersionsByName(_ context.Context, name string) ([]*domain.Artifact, error) {
	return r.findWhere(func(a *domain.Artifact) bool { return a.Name == name }), nil
}

func (r *Artifacts) FindByStatus(_ context.Context, status domain.ArtifactStatus) ([]*domain.Artifact, error) {
	return r.findWhere(func(a *domain.Artifact) bool { return a.Status == status }), nil
}

func (r *Artifacts) FindExpiredArtifacts(_ context.Context, asOf time.Time) ([]*domain.Artifact, error) {
	return r.findWhere(func(a *domain.Artifact) bool { return a.IsExpired(asOf) }), nil
}

func (r *Artifacts) FindByType(_ context.Context, kind domain.ArtifactType) ([]*domain.Artifact, error) {
	return r.findWhere(func(a *domain.Artifact) bool { return a.Type == kind }), nil
}

func (r *Artifacts) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	return nil
}

func (r *Artifacts) UpdateStatus(_ context.Context, id string, status domain.ArtifactStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return hodeierr.NotFound("artifact", id)
	}
	a.Status = status
	return nil
}

func (r *Artifacts) CountByPool(_ context.Context, poolID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, a := range r.byID {
		if a.PoolID == poolID {
			n++
		}
	}
	return n, nil
}

func (r *Artifacts) GetTotalSizeByPool(_ context.Context, poolID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total int64
	for _, a := range r.byID {
		if a.PoolID == poolID {
			total += a.SizeBytes
		}
	}
	return total, nil
}
