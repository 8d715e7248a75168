// Package bolt implements the pkg/storage repositories on top of
// go.etcd.io/bbolt: one bucket per entity kind, JSON-encoded values keyed
// by entity id, the same bucket-per-entity layout (JSON marshal/unmarshal,
// Put/Get/ForEach) swept across Hodei's five repository kinds.
package bolt

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sort"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/hodei/orchestrator/pkg/domain"
	"github.com/hodei/orchestrator/pkg/hodeierr"
	"github.com/hodei/orchestrator/pkg/storage"
)

var (
	bucketJobs      = []byte("jobs")
	bucketPools     = []byte("pools")
	bucketWorkers   = []byte("workers")
	bucketTemplates = []byte("templates")
	bucketArtifacts = []byte("artifacts")
)

// Store opens one bbolt file and serves all five repositories from it.
type Store struct {
	db *bolt.DB
}

func Open(dataDir string) (*Store, error) {
	db, err := bolt.Open(filepath.Join(dataDir, "hodei.db"), 0600, nil)
	if err != nil {
		return nil, hodeierr.OperationFailed("open", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketJobs, bucketPools, bucketWorkers, bucketTemplates, bucketArtifacts} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, hodeierr.OperationFailed("create_buckets", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Jobs() storage.JobRepository           { return &jobs{db: s.db} }
func (s *Store) Pools() storage.ResourcePoolRepository { return &pools{db: s.db} }
func (s *Store) Workers() storage.WorkerRepository     { return &workers{db: s.db} }
func (s *Store) Templates() storage.TemplateRepository { return &templates{db: s.db} }
func (s *Store) Artifacts() storage.ArtifactRepository { return &artifacts{db: s.db} }

func put(db *bolt.DB, bucket, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return hodeierr.OperationFailed("marshal", err)
	}
	return db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Put(key, data)
	})
}

func get(db *bolt.DB, bucket, key []byte, out interface{}, entity string) error {
	return db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucket).Get(key)
		if data == nil {
			return hodeierr.NotFound(entity, string(key))
		}
		return json.Unmarshal(data, out)
	})
}

func del(db *bolt.DB, bucket, key []byte) error {
	return db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).Delete(key)
	})
}

type jobs struct{ db *bolt.DB }

func (r *jobs) Save(_ context.Context, job *domain.Job) error {
	return put(r.db, bucketJobs, []byte(job.ID), job)
}

func (r *jobs) FindByID(_ context.Context, id string) (*domain.Job, error) {
	var j domain.Job
	if err := get(r.db, bucketJobs, []byte(id), &j, "job"); err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *jobs) FindByName(_ context.Context, name, namespace string) (*domain.Job, error) {
	var found *domain.Job
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).ForEach(func(_, v []byte) error {
			var j domain.Job
			if err := json.Unmarshal(v, &j); err != nil {
				return err
			}
			if j.Name == name && j.Namespace == namespace {
				found = &j
			}
			return nil
		})
	})
	if err != nil {
		return nil, hodeierr.OperationFailed("find_by_name", err)
	}
	if found == nil {
		return nil, hodeierr.NotFound("job", name)
	}
	return found, nil
}

func (r *jobs) List(_ context.Context, page storage.Page, filter storage.JobFilter) ([]*domain.Job, error) {
	var all []*domain.Job
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).ForEach(func(_, v []byte) error {
			var j domain.Job
			if err := json.Unmarshal(v, &j); err != nil {
				return err
			}
			if filter.Status != "" && j.Status != filter.Status {
				return nil
			}
			if filter.Namespace != "" && j.Namespace != filter.Namespace {
				return nil
			}
			all = append(all, &j)
			return nil
		})
	})
	if err != nil {
		return nil, hodeierr.OperationFailed("list", err)
	}
	sort.Slice(all, func(i, k int) bool { return all[i].ID < all[k].ID })
	return applyPage(all, page), nil
}

func applyPage[T any](items []T, page storage.Page) []T {
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

func (r *jobs) Update(_ context.Context, job *domain.Job) error {
	var existing domain.Job
	if err := get(r.db, bucketJobs, []byte(job.ID), &existing, "job"); err != nil {
		return err
	}
	return put(r.db, bucketJobs, []byte(job.ID), job)
}

func (r *jobs) Delete(_ context.Context, id string) error {
	return del(r.db, bucketJobs, []byte(id))
}

func (r *jobs) ExistsByName(_ context.Context, name, namespace string) (bool, error) {
	_, err := r.FindByName(context.Background(), name, namespace)
	if err != nil {
		if errors.Is(err, hodeierr.New(hodeierr.KindNotFound, "")) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *jobs) CountByStatus(_ context.Context, status domain.JobStatus) (int64, error) {
	var n int64
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).ForEach(func(_, v []byte) error {
			var j domain.Job
			if err := json.Unmarshal(v, &j); err != nil {
				return err
			}
			if j.Status == status {
				n++
			}
			return nil
		})
	})
	if err != nil {
		return 0, hodeierr.OperationFailed("count_by_status", err)
	}
	return n, nil
}

func (r *jobs) FindByTemplateID(_ context.Context, templateID string) ([]*domain.Job, error) {
	var out []*domain.Job
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).ForEach(func(_, v []byte) error {
			var j domain.Job
			if err := json.Unmarshal(v, &j); err != nil {
				return err
			}
			if j.Template != nil && j.Template.ID == templateID {
				out = append(out, &j)
			}
			return nil
		})
	})
	if err != nil {
		return nil, hodeierr.OperationFailed("find_by_template_id", err)
	}
	return out, nil
}

type pools struct{ db *bolt.DB }

func (r *pools) Save(_ context.Context, p *domain.ResourcePool) error {
	return put(r.db, bucketPools, []byte(p.ID), p)
}

func (r *pools) FindByID(_ context.Context, id string) (*domain.ResourcePool, error) {
	var p domain.ResourcePool
	if err := get(r.db, bucketPools, []byte(id), &p, "pool"); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *pools) FindActive(_ context.Context) ([]*domain.ResourcePool, error) {
	var out []*domain.ResourcePool
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPools).ForEach(func(_, v []byte) error {
			var p domain.ResourcePool
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			if p.Status == domain.PoolActive {
				out = append(out, &p)
			}
			return nil
		})
	})
	if err != nil {
		return nil, hodeierr.OperationFailed("find_active", err)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (r *pools) FindAll(_ context.Context) ([]*domain.ResourcePool, error) {
	var out []*domain.ResourcePool
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPools).ForEach(func(_, v []byte) error {
			var p domain.ResourcePool
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			out = append(out, &p)
			return nil
		})
	})
	if err != nil {
		return nil, hodeierr.OperationFailed("find_all", err)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (r *pools) Delete(_ context.Context, id string) error {
	return del(r.db, bucketPools, []byte(id))
}

type workers struct{ db *bolt.DB }

func (r *workers) Save(_ context.Context, w *domain.Worker) error {
	return put(r.db, bucketWorkers, []byte(w.ID), w)
}

func (r *workers) FindByID(_ context.Context, id string) (*domain.Worker, error) {
	var w domain.Worker
	if err := get(r.db, bucketWorkers, []byte(id), &w, "worker"); err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *workers) findWhere(pred func(*domain.Worker) bool) ([]*domain.Worker, error) {
	var out []*domain.Worker
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWorkers).ForEach(func(_, v []byte) error {
			var w domain.Worker
			if err := json.Unmarshal(v, &w); err != nil {
				return err
			}
			if pred(&w) {
				out = append(out, &w)
			}
			return nil
		})
	})
	if err != nil {
		return nil, hodeierr.OperationFailed("find", err)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (r *workers) FindAvailable(_ context.Context, poolID string) ([]*domain.Worker, error) {
	return r.findWhere(func(w *domain.Worker) bool { return w.PoolID == poolID && w.Status == domain.WorkerIdle })
}

func (r *workers) FindByPool(_ context.Context, poolID string) ([]*domain.Worker, error) {
	return r.findWhere(func(w *domain.Worker) bool { return w.PoolID == poolID })
}

func (r *workers) Delete(_ context.Context, id string) error {
	return del(r.db, bucketWorkers, []byte(id))
}

type templates struct{ db *bolt.DB }

func (r *templates) Save(_ context.Context, t *domain.Template) error {
	return put(r.db, bucketTemplates, []byte(t.ID), t)
}

func (r *templates) FindByID(_ context.Context, id string) (*domain.Template, error) {
	var t domain.Template
	if err := get(r.db, bucketTemplates, []byte(id), &t, "template"); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *templates) findWhere(pred func(*domain.Template) bool) ([]*domain.Template, error) {
	var out []*domain.Template
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTemplates).ForEach(func(_, v []byte) error {
			var t domain.Template
			if err := json.Unmarshal(v, &t); err != nil {
				return err
			}
			if pred(&t) {
				out = append(out, &t)
			}
			return nil
		})
	})
	if err != nil {
		return nil, hodeierr.OperationFailed("find", err)
	}
	return out, nil
}

func (r *templates) FindByNameAndVersion(_ context.Context, name, version string) (*domain.Template, error) {
	out, err := r.findWhere(func(t *domain.Template) bool { return t.Name == name && t.Version == version })
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, hodeierr.NotFound("template", name+"@"+version)
	}
	return out[0], nil
}

func (r *templates) FindByName(_ context.Context, name string) ([]*domain.Template, error) {
	out, err := r.findWhere(func(t *domain.Template) bool { return t.Name == name })
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Version < out[k].Version })
	return out, nil
}

func (r *templates) List(_ context.Context, page storage.Page) ([]*domain.Template, error) {
	out, err := r.findWhere(func(*domain.Template) bool { return true })
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return applyPage(out, page), nil
}

func (r *templates) Search(_ context.Context, query storage.TemplateSearchQuery) ([]*domain.Template, error) {
	needle := strings.ToLower(query.Text)
	out, err := r.findWhere(func(t *domain.Template) bool {
		if strings.Contains(strings.ToLower(t.Name), needle) {
			return true
		}
		for _, tag := range t.Tags {
			if strings.Contains(strings.ToLower(tag), needle) {
				return true
			}
		}
		return false
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return applyPage(out, query.Page), nil
}

func (r *templates) ExistsByNameAndVersion(ctx context.Context, name, version string) (bool, error) {
	_, err := r.FindByNameAndVersion(ctx, name, version)
	if err != nil {
		if errors.Is(err, hodeierr.New(hodeierr.KindNotFound, "")) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *templates) UpdateStatistics(_ context.Context, id string, usageDelta int64) error {
	var t domain.Template
	if err := get(r.db, bucketTemplates, []byte(id), &t, "template"); err != nil {
		return err
	}
	t.UsageCount += usageDelta
	t.UpdatedAt = time.Now()
	return put(r.db, bucketTemplates, []byte(id), &t)
}

func (r *templates) Exists(_ context.Context, id string) (bool, error) {
	var t domain.Template
	err := get(r.db, bucketTemplates, []byte(id), &t, "template")
	if err != nil {
		if errors.Is(err, hodeierr.New(hodeierr.KindNotFound, "")) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type artifacts struct{ db *bolt.DB }

func (r *artifacts) Save(_ context.Context, a *domain.Artifact) error {
	return put(r.db, bucketArtifacts, []byte(a.ID), a)
}

func (r *artifacts) FindByID(_ context.Context, id string) (*domain.Artifact, error) {
	var a domain.Artifact
	if err := get(r.db, bucketArtifacts, []byte(id), &a, "artifact"); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *artifacts) findWhere(pred func(*domain.Artifact) bool) ([]*domain.Artifact, error) {
	var out []*domain.Artifact
	err := r.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketArtifacts).ForEach(func(_, v []byte) error {
			var a domain.Artifact
			if err := json.Unmarshal(v, &a); err != nil {
				return err
			}
			if pred(&a) {
				out = append(out, &a)
			}
			return nil
		})
	})
	if err != nil {
		return nil, hodeierr.OperationFailed("find", err)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (r *artifacts) FindByJobID(_ context.Context, jobID string) ([]*domain.Artifact, error) {
	return r.findWhere(func(a *domain.Artifact) bool { return a.JobID == jobID })
}

func (r *artifacts) FindByExecutionID(_ context.Context, executionID string) ([]*domain.Artifact, error) {
	return r.findWhere(func(a *domain.Artifact) bool { return a.ExecutionID == executionID })
}

func (r *artifacts) FindByPoolID(_ context.Context, poolID string) ([]*domain.Artifact, error) {
	return r.findWhere(func(a *domain.Artifact) bool { return a.PoolID == poolID })
}

func (r *artifacts) FindByNameAndVersion(_ context.Context, name, version string) (*domain.Artifact, error) {
	out, err := r.findWhere(func(a *domain.Artifact) bool { return a.Name == name && a.Version == version })
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, hodeierr.NotFound("artifact", name+"@"+version)
	}
	return out[0], nil
}

func (r *artifacts) FindVersionsByName(_ context.Context, name string) ([]*domain.Artifact, error) {
	return r.findWhere(func(a *domain.Artifact) bool { return a.Name == name })
}

func (r *artifacts) FindByStatus(_ context.Context, status domain.ArtifactStatus) ([]*domain.Artifact, error) {
	return r.findWhere(func(a *domain.Artifact) bool { return a.Status == status })
}

func (r *artifacts) FindExpiredArtifacts(_ context.Context, asOf time.Time) ([]*domain.Artifact, error) {
	return r.findWhere(func(a *domain.Artifact) bool { return a.IsExpired(asOf) })
}

func (r *artifacts) FindByType(_ context.Context, kind domain.ArtifactType) ([]*domain.Artifact, error) {
	return r.findWhere(func(a *domain.Artifact) bool { return a.Type == kind })
}

func (r *artifacts) DeleteByID(_ context.Context, id string) error {
	return del(r.db, bucketArtifacts, []byte(id))
}

func (r *artifacts) UpdateStatus(_ context.Context, id string, status domain.ArtifactStatus) error {
	var a domain.Artifact
	if err := get(r.db, bucketArtifacts, []byte(id), &a, "artifact"); err != nil {
		return err
	}
	a.Status = status
	return put(r.db, bucketArtifacts, []byte(id), &a)
}

func (r *artifacts) CountByPool(_ context.Context, poolID string) (int64, error) {
	out, err := r.findWhere(func(a *domain.Artifact) bool { return a.PoolID == poolID })
	if err != nil {
		return 0, err
	}
	return int64(len(out)), nil
}

func (r *artifacts) GetTotalSizeByPool(_ context.Context, poolID string) (int64, error) {
	out, err := r.findWhere(func(a *domain.Artifact) bool { return a.PoolID == poolID })
	if err != nil {
		return 0, err
	}
	var total int64
	for _, a := range out {
		total += a.SizeBytes
	}
	return total, nil
}
