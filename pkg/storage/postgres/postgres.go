// Package postgres implements the pkg/storage repositories on
// github.com/jmoiron/sqlx over github.com/lib/pq, for deployments needing
// query/index support bbolt doesn't offer (storage.backend=postgres).
// Schema is managed by cmd/hodei-migrate via golang-migrate/migrate/v4, not
// by this package.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/hodei/orchestrator/pkg/domain"
	"github.com/hodei/orchestrator/pkg/hodeierr"
	"github.com/hodei/orchestrator/pkg/storage"
)

// Store holds the shared *sqlx.DB every repository queries against.
type Store struct {
	db *sqlx.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, hodeierr.OperationFailed("connect", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Jobs() storage.JobRepository           { return &jobs{db: s.db} }
func (s *Store) Pools() storage.ResourcePoolRepository { return &pools{db: s.db} }
func (s *Store) Workers() storage.WorkerRepository     { return &workers{db: s.db} }
func (s *Store) Templates() storage.TemplateRepository { return &templates{db: s.db} }
func (s *Store) Artifacts() storage.ArtifactRepository { return &artifacts{db: s.db} }

type jobRow struct {
	ID                string         `db:"id"`
	Name              string         `db:"name"`
	Namespace         string         `db:"namespace"`
	TemplateID        sql.NullString `db:"template_id"`
	TemplateVersion   sql.NullString `db:"template_version"`
	Spec              []byte         `db:"spec"`
	Parameters        []byte         `db:"parameters"`
	Status            string         `db:"status"`
	Priority          int            `db:"priority"`
	RetryCount        int            `db:"retry_count"`
	MaxRetries        int            `db:"max_retries"`
	LatestExecutionID string         `db:"latest_execution_id"`
	Resources         []byte         `db:"resources"`
	PoolID            string         `db:"pool_id"`
	Tags              []byte         `db:"tags"`
	Annotations       []byte         `db:"annotations"`
	CreatedAt         time.Time      `db:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at"`
	CreatedBy         string         `db:"created_by"`
	ScheduledAt       sql.NullTime   `db:"scheduled_at"`
	CompletedAt       sql.NullTime   `db:"completed_at"`
}

func jobToRow(j *domain.Job) (*jobRow, error) {
	params, err := json.Marshal(j.Parameters)
	if err != nil {
		return nil, err
	}
	resources, err := json.Marshal(j.Resources)
	if err != nil {
		return nil, err
	}
	tags, err := json.Marshal(j.Tags)
	if err != nil {
		return nil, err
	}
	annotations, err := json.Marshal(j.Annotations)
	if err != nil {
		return nil, err
	}
	row := &jobRow{
		ID: j.ID, Name: j.Name, Namespace: j.Namespace, Spec: j.Spec,
		Parameters: params, Status: string(j.Status), Priority: int(j.Priority),
		RetryCount: j.RetryCount, MaxRetries: j.MaxRetries,
		LatestExecutionID: j.LatestExecutionID, Resources: resources, PoolID: j.PoolID,
		Tags: tags, Annotations: annotations, CreatedAt: j.CreatedAt, UpdatedAt: j.UpdatedAt,
		CreatedBy: j.CreatedBy,
	}
	if j.Template != nil {
		row.TemplateID = sql.NullString{String: j.Template.ID, Valid: true}
		row.TemplateVersion = sql.NullString{String: j.Template.Version, Valid: true}
	}
	if j.ScheduledAt != nil {
		row.ScheduledAt = sql.NullTime{Time: *j.ScheduledAt, Valid: true}
	}
	if j.CompletedAt != nil {
		row.CompletedAt = sql.NullTime{Time: *j.CompletedAt, Valid: true}
	}
	return row, nil
}

func (r *jobRow) toDomain() (*domain.Job, error) {
	j := &domain.Job{
		ID: r.ID, Name: r.Name, Namespace: r.Namespace, Spec: r.Spec,
		Status: domain.JobStatus(r.Status), Priority: domain.JobPriority(r.Priority),
		RetryCount: r.RetryCount, MaxRetries: r.MaxRetries,
		LatestExecutionID: r.LatestExecutionID, PoolID: r.PoolID,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, CreatedBy: r.CreatedBy,
	}
	if r.TemplateID.Valid {
		j.Template = &domain.TemplateRef{ID: r.TemplateID.String, Version: r.TemplateVersion.String}
	}
	if r.ScheduledAt.Valid {
		j.ScheduledAt = &r.ScheduledAt.Time
	}
	if r.CompletedAt.Valid {
		j.CompletedAt = &r.CompletedAt.Time
	}
	if err := json.Unmarshal(r.Parameters, &j.Parameters); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(r.Resources, &j.Resources); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(r.Tags, &j.Tags); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(r.Annotations, &j.Annotations); err != nil {
		return nil, err
	}
	return j, nil
}

type jobs struct{ db *sqlx.DB }

func (r *jobs) Save(ctx context.Context, job *domain.Job) error {
	row, err := jobToRow(job)
	if err != nil {
		return hodeierr.OperationFailed("marshal_job", err)
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO jobs (id, name, namespace, template_id, template_version, spec, parameters,
			status, priority, retry_count, max_retries, latest_execution_id, resources, pool_id,
			tags, annotations, created_at, updated_at, created_by, scheduled_at, completed_at)
		VALUES (:id, :name, :namespace, :template_id, :template_version, :spec, :parameters,
			:status, :priority, :retry_count, :max_retries, :latest_execution_id, :resources, :pool_id,
			:tags, :annotations, :created_at, :updated_at, :created_by, :scheduled_at, :completed_at)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status, retry_count = EXCLUDED.retry_count,
			latest_execution_id = EXCLUDED.latest_execution_id, pool_id = EXCLUDED.pool_id,
			updated_at = EXCLUDED.updated_at, scheduled_at = EXCLUDED.scheduled_at,
			completed_at = EXCLUDED.completed_at`, row)
	if err != nil {
		return hodeierr.OperationFailed("save_job", err)
	}
	return nil
}

func (r *jobs) FindByID(ctx context.Context, id string) (*domain.Job, error) {
	var row jobRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM jobs WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hodeierr.NotFound("job", id)
	}
	if err != nil {
		return nil, hodeierr.OperationFailed("find_job", err)
	}
	return row.toDomain()
}

func (r *jobs) FindByName(ctx context.Context, name, namespace string) (*domain.Job, error) {
	var row jobRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM jobs WHERE name = $1 AND namespace = $2`, name, namespace)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hodeierr.NotFound("job", name)
	}
	if err != nil {
		return nil, hodeierr.OperationFailed("find_job_by_name", err)
	}
	return row.toDomain()
}

func (r *jobs) List(ctx context.Context, page storage.Page, filter storage.JobFilter) ([]*domain.Job, error) {
	query := `SELECT * FROM jobs WHERE ($1 = '' OR status = $1) AND ($2 = '' OR namespace = $2) ORDER BY id`
	args := []interface{}{string(filter.Status), filter.Namespace}
	if page.Size > 0 {
		query += ` LIMIT $3 OFFSET $4`
		args = append(args, page.Size, page.Number*page.Size)
	}
	var rows []jobRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, hodeierr.OperationFailed("list_jobs", err)
	}
	out := make([]*domain.Job, 0, len(rows))
	for i := range rows {
		j, err := rows[i].toDomain()
		if err != nil {
			return nil, hodeierr.OperationFailed("decode_job", err)
		}
		out = append(out, j)
	}
	return out, nil
}

func (r *jobs) Update(ctx context.Context, job *domain.Job) error {
	if _, err := r.FindByID(ctx, job.ID); err != nil {
		return err
	}
	return r.Save(ctx, job)
}

func (r *jobs) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id); err != nil {
		return hodeierr.OperationFailed("delete_job", err)
	}
	return nil
}

func (r *jobs) ExistsByName(ctx context.Context, name, namespace string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM jobs WHERE name = $1 AND namespace = $2)`, name, namespace)
	if err != nil {
		return false, hodeierr.OperationFailed("exists_job_by_name", err)
	}
	return exists, nil
}

func (r *jobs) CountByStatus(ctx context.Context, status domain.JobStatus) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM jobs WHERE status = $1`, string(status))
	if err != nil {
		return 0, hodeierr.OperationFailed("count_jobs_by_status", err)
	}
	return n, nil
}

func (r *jobs) FindByTemplateID(ctx context.Context, templateID string) ([]*domain.Job, error) {
	var rows []jobRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT * FROM jobs WHERE template_id = $1 ORDER BY id`, templateID); err != nil {
		return nil, hodeierr.OperationFailed("find_jobs_by_template", err)
	}
	out := make([]*domain.Job, 0, len(rows))
	for i := range rows {
		j, err := rows[i].toDomain()
		if err != nil {
			return nil, hodeierr.OperationFailed("decode_job", err)
		}
		out = append(out, j)
	}
	return out, nil
}

type poolRow struct {
	ID             string    `db:"id"`
	Name           string    `db:"name"`
	Provider       string    `db:"provider"`
	ProviderConfig []byte    `db:"provider_config"`
	Policies       []byte    `db:"policies"`
	Status         string    `db:"status"`
	Capacity       []byte    `db:"capacity"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func poolToRow(p *domain.ResourcePool) (*poolRow, error) {
	policies, err := json.Marshal(p.Policies)
	if err != nil {
		return nil, err
	}
	capacity, err := json.Marshal(p.Capacity)
	if err != nil {
		return nil, err
	}
	return &poolRow{
		ID: p.ID, Name: p.Name, Provider: string(p.Provider), ProviderConfig: p.ProviderConfig,
		Policies: policies, Status: string(p.Status), Capacity: capacity,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}, nil
}

func (r *poolRow) toDomain() (*domain.ResourcePool, error) {
	p := &domain.ResourcePool{
		ID: r.ID, Name: r.Name, Provider: domain.ProviderKind(r.Provider),
		ProviderConfig: r.ProviderConfig, Status: domain.PoolStatus(r.Status),
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
	if err := json.Unmarshal(r.Policies, &p.Policies); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(r.Capacity, &p.Capacity); err != nil {
		return nil, err
	}
	return p, nil
}

type pools struct{ db *sqlx.DB }

func (r *pools) Save(ctx context.Context, p *domain.ResourcePool) error {
	row, err := poolToRow(p)
	if err != nil {
		return hodeierr.OperationFailed("marshal_pool", err)
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO pools (id, name, provider, provider_config, policies, status, capacity, created_at, updated_at)
		VALUES (:id, :name, :provider, :provider_config, :policies, :status, :capacity, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, capacity = EXCLUDED.capacity,
			policies = EXCLUDED.policies, updated_at = EXCLUDED.updated_at`, row)
	if err != nil {
		return hodeierr.OperationFailed("save_pool", err)
	}
	return nil
}

func (r *pools) FindByID(ctx context.Context, id string) (*domain.ResourcePool, error) {
	var row poolRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM pools WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hodeierr.NotFound("pool", id)
	}
	if err != nil {
		return nil, hodeierr.OperationFailed("find_pool", err)
	}
	return row.toDomain()
}

func (r *pools) FindActive(ctx context.Context) ([]*domain.ResourcePool, error) {
	return r.query(ctx, `SELECT * FROM pools WHERE status = $1 ORDER BY id`, string(domain.PoolActive))
}

func (r *pools) FindAll(ctx context.Context) ([]*domain.ResourcePool, error) {
	return r.query(ctx, `SELECT * FROM pools ORDER BY id`)
}

func (r *pools) query(ctx context.Context, query string, args ...interface{}) ([]*domain.ResourcePool, error) {
	var rows []poolRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, hodeierr.OperationFailed("query_pools", err)
	}
	out := make([]*domain.ResourcePool, 0, len(rows))
	for i := range rows {
		p, err := rows[i].toDomain()
		if err != nil {
			return nil, hodeierr.OperationFailed("decode_pool", err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *pools) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM pools WHERE id = $1`, id); err != nil {
		return hodeierr.OperationFailed("delete_pool", err)
	}
	return nil
}

type workerRow struct {
	ID            string    `db:"id"`
	PoolID        string    `db:"pool_id"`
	ExecutionID   string    `db:"execution_id"`
	Status        string    `db:"status"`
	Capabilities  []byte    `db:"capabilities"`
	Allocation    []byte    `db:"allocation"`
	LastHeartbeat time.Time `db:"last_heartbeat"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
	Ephemeral     bool      `db:"ephemeral"`
}

func workerToRow(w *domain.Worker) (*workerRow, error) {
	caps, err := json.Marshal(w.Capabilities)
	if err != nil {
		return nil, err
	}
	alloc, err := json.Marshal(w.Allocation)
	if err != nil {
		return nil, err
	}
	return &workerRow{
		ID: w.ID, PoolID: w.PoolID, ExecutionID: w.ExecutionID, Status: string(w.Status),
		Capabilities: caps, Allocation: alloc, LastHeartbeat: w.LastHeartbeat,
		CreatedAt: w.CreatedAt, UpdatedAt: w.UpdatedAt, Ephemeral: w.Ephemeral,
	}, nil
}

func (r *workerRow) toDomain() (*domain.Worker, error) {
	w := &domain.Worker{
		ID: r.ID, PoolID: r.PoolID, ExecutionID: r.ExecutionID, Status: domain.WorkerStatus(r.Status),
		LastHeartbeat: r.LastHeartbeat, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, Ephemeral: r.Ephemeral,
	}
	if err := json.Unmarshal(r.Capabilities, &w.Capabilities); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(r.Allocation, &w.Allocation); err != nil {
		return nil, err
	}
	return w, nil
}

type workers struct{ db *sqlx.DB }

func (r *workers) Save(ctx context.Context, w *domain.Worker) error {
	row, err := workerToRow(w)
	if err != nil {
		return hodeierr.OperationFailed("marshal_worker", err)
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO workers (id, pool_id, execution_id, status, capabilities, allocation,
			last_heartbeat, created_at, updated_at, ephemeral)
		VALUES (:id, :pool_id, :execution_id, :status, :capabilities, :allocation,
			:last_heartbeat, :created_at, :updated_at, :ephemeral)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, execution_id = EXCLUDED.execution_id,
			allocation = EXCLUDED.allocation, last_heartbeat = EXCLUDED.last_heartbeat,
			updated_at = EXCLUDED.updated_at`, row)
	if err != nil {
		return hodeierr.OperationFailed("save_worker", err)
	}
	return nil
}

func (r *workers) FindByID(ctx context.Context, id string) (*domain.Worker, error) {
	var row workerRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM workers WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hodeierr.NotFound("worker", id)
	}
	if err != nil {
		return nil, hodeierr.OperationFailed("find_worker", err)
	}
	return row.toDomain()
}

func (r *workers) query(ctx context.Context, query string, args ...interface{}) ([]*domain.Worker, error) {
	var rows []workerRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, hodeierr.OperationFailed("query_workers", err)
	}
	out := make([]*domain.Worker, 0, len(rows))
	for i := range rows {
		w, err := rows[i].toDomain()
		if err != nil {
			return nil, hodeierr.OperationFailed("decode_worker", err)
		}
		out = append(out, w)
	}
	return out, nil
}

func (r *workers) FindAvailable(ctx context.Context, poolID string) ([]*domain.Worker, error) {
	return r.query(ctx, `SELECT * FROM workers WHERE pool_id = $1 AND status = $2 ORDER BY id`, poolID, string(domain.WorkerIdle))
}

func (r *workers) FindByPool(ctx context.Context, poolID string) ([]*domain.Worker, error) {
	return r.query(ctx, `SELECT * FROM workers WHERE pool_id = $1 ORDER BY id`, poolID)
}

func (r *workers) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM workers WHERE id = $1`, id); err != nil {
		return hodeierr.OperationFailed("delete_worker", err)
	}
	return nil
}

type templateRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Version     string    `db:"version"`
	Description string    `db:"description"`
	Tags        []byte    `db:"tags"`
	Spec        []byte    `db:"spec"`
	Status      string    `db:"status"`
	UsageCount  int64     `db:"usage_count"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
	CreatedBy   string    `db:"created_by"`
}

func templateToRow(t *domain.Template) (*templateRow, error) {
	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return nil, err
	}
	return &templateRow{
		ID: t.ID, Name: t.Name, Version: t.Version, Description: t.Description, Tags: tags,
		Spec: t.Spec, Status: string(t.Status), UsageCount: t.UsageCount,
		CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt, CreatedBy: t.CreatedBy,
	}, nil
}

func (r *templateRow) toDomain() (*domain.Template, error) {
	t := &domain.Template{
		ID: r.ID, Name: r.Name, Version: r.Version, Description: r.Description, Spec: r.Spec,
		Status: domain.TemplateStatus(r.Status), UsageCount: r.UsageCount,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, CreatedBy: r.CreatedBy,
	}
	if err := json.Unmarshal(r.Tags, &t.Tags); err != nil {
		return nil, err
	}
	return t, nil
}

type templates struct{ db *sqlx.DB }

func (r *templates) Save(ctx context.Context, t *domain.Template) error {
	row, err := templateToRow(t)
	if err != nil {
		return hodeierr.OperationFailed("marshal_template", err)
	}
	_, err = r.db.NamedExecContext(ctx, `
		INSERT INTO templates (id, name, version, description, tags, spec, status, usage_count,
			created_at, updated_at, created_by)
		VALUES (:id, :name, :version, :description, :tags, :spec, :status, :usage_count,
			:created_at, :updated_at, :created_by)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, usage_count = EXCLUDED.usage_count,
			updated_at = EXCLUDED.updated_at`, row)
	if err != nil {
		return hodeierr.OperationFailed("save_template", err)
	}
	return nil
}

func (r *templates) FindByID(ctx context.Context, id string) (*domain.Template, error) {
	var row templateRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM templates WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hodeierr.NotFound("template", id)
	}
	if err != nil {
		return nil, hodeierr.OperationFailed("find_template", err)
	}
	return row.toDomain()
}

func (r *templates) FindByNameAndVersion(ctx context.Context, name, version string) (*domain.Template, error) {
	var row templateRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM templates WHERE name = $1 AND version = $2`, name, version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hodeierr.NotFound("template", name+"@"+version)
	}
	if err != nil {
		return nil, hodeierr.OperationFailed("find_template_by_name_version", err)
	}
	return row.toDomain()
}

func (r *templates) query(ctx context.Context, query string, args ...interface{}) ([]*domain.Template, error) {
	var rows []templateRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, hodeierr.OperationFailed("query_templates", err)
	}
	out := make([]*domain.Template, 0, len(rows))
	for i := range rows {
		t, err := rows[i].toDomain()
		if err != nil {
			return nil, hodeierr.OperationFailed("decode_template", err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *templates) FindByName(ctx context.Context, name string) ([]*domain.Template, error) {
	return r.query(ctx, `SELECT * FROM templates WHERE name = $1 ORDER BY version`, name)
}

func (r *templates) List(ctx context.Context, page storage.Page) ([]*domain.Template, error) {
	query := `SELECT * FROM templates ORDER BY id`
	var args []interface{}
	if page.Size > 0 {
		query += ` LIMIT $1 OFFSET $2`
		args = append(args, page.Size, page.Number*page.Size)
	}
	return r.query(ctx, query, args...)
}

// Search performs a case-insensitive substring match over name and the
// JSON-serialized tags array, pushed down to Postgres via ILIKE.
func (r *templates) Search(ctx context.Context, query storage.TemplateSearchQuery) ([]*domain.Template, error) {
	sqlQuery := `SELECT * FROM templates WHERE name ILIKE $1 OR tags::text ILIKE $1 ORDER BY id`
	args := []interface{}{"%" + query.Text + "%"}
	if query.Page.Size > 0 {
		sqlQuery += ` LIMIT $2 OFFSET $3`
		args = append(args, query.Page.Size, query.Page.Number*query.Page.Size)
	}
	return r.query(ctx, sqlQuery, args...)
}

func (r *templates) ExistsByNameAndVersion(ctx context.Context, name, version string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM templates WHERE name = $1 AND version = $2)`, name, version)
	if err != nil {
		return false, hodeierr.OperationFailed("exists_template", err)
	}
	return exists, nil
}

func (r *templates) UpdateStatistics(ctx context.Context, id string, usageDelta int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE templates SET usage_count = usage_count + $1, updated_at = now() WHERE id = $2`, usageDelta, id)
	if err != nil {
		return hodeierr.OperationFailed("update_template_statistics", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return hodeierr.OperationFailed("update_template_statistics", err)
	}
	if n == 0 {
		return hodeierr.NotFound("template", id)
	}
	return nil
}

func (r *templates) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM templates WHERE id = $1)`, id)
	if err != nil {
		return false, hodeierr.OperationFailed("exists_template_by_id", err)
	}
	return exists, nil
}

type artifactRow struct {
	ID          string       `db:"id"`
	JobID       string       `db:"job_id"`
	ExecutionID string       `db:"execution_id"`
	PoolID      string       `db:"pool_id"`
	Name        string       `db:"name"`
	Version     string       `db:"version"`
	Type        string       `db:"type"`
	Status      string       `db:"status"`
	URI         string       `db:"uri"`
	SizeBytes   int64        `db:"size_bytes"`
	CreatedAt   time.Time    `db:"created_at"`
	ExpiresAt   sql.NullTime `db:"expires_at"`
}

func artifactToRow(a *domain.Artifact) *artifactRow {
	row := &artifactRow{
		ID: a.ID, JobID: a.JobID, ExecutionID: a.ExecutionID, PoolID: a.PoolID, Name: a.Name,
		Version: a.Version, Type: string(a.Type), Status: string(a.Status), URI: a.URI,
		SizeBytes: a.SizeBytes, CreatedAt: a.CreatedAt,
	}
	if a.ExpiresAt != nil {
		row.ExpiresAt = sql.NullTime{Time: *a.ExpiresAt, Valid: true}
	}
	return row
}

func (r *artifactRow) toDomain() *domain.Artifact {
	a := &domain.Artifact{
		ID: r.ID, JobID: r.JobID, ExecutionID: r.ExecutionID, PoolID: r.PoolID, Name: r.Name,
		Version: r.Version, Type: domain.ArtifactType(r.Type), Status: domain.ArtifactStatus(r.Status),
		URI: r.URI, SizeBytes: r.SizeBytes, CreatedAt: r.CreatedAt,
	}
	if r.ExpiresAt.Valid {
		a.ExpiresAt = &r.ExpiresAt.Time
	}
	return a
}

type artifacts struct{ db *sqlx.DB }

func (r *artifacts) Save(ctx context.Context, a *domain.Artifact) error {
	row := artifactToRow(a)
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO artifacts (id, job_id, execution_id, pool_id, name, version, type, status,
			uri, size_bytes, created_at, expires_at)
		VALUES (:id, :job_id, :execution_id, :pool_id, :name, :version, :type, :status,
			:uri, :size_bytes, :created_at, :expires_at)
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, uri = EXCLUDED.uri`, row)
	if err != nil {
		return hodeierr.OperationFailed("save_artifact", err)
	}
	return nil
}

func (r *artifacts) FindByID(ctx context.Context, id string) (*domain.Artifact, error) {
	var row artifactRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM artifacts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hodeierr.NotFound("artifact", id)
	}
	if err != nil {
		return nil, hodeierr.OperationFailed("find_artifact", err)
	}
	return row.toDomain(), nil
}

func (r *artifacts) query(ctx context.Context, query string, args ...interface{}) ([]*domain.Artifact, error) {
	var rows []artifactRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, hodeierr.OperationFailed("query_artifacts", err)
	}
	out := make([]*domain.Artifact, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (r *artifacts) FindByJobID(ctx context.Context, jobID string) ([]*domain.Artifact, error) {
	return r.query(ctx, `SELECT * FROM artifacts WHERE job_id = $1 ORDER BY id`, jobID)
}

func (r *artifacts) FindByExecutionID(ctx context.Context, executionID string) ([]*domain.Artifact, error) {
	return r.query(ctx, `SELECT * FROM artifacts WHERE execution_id = $1 ORDER BY id`, executionID)
}

func (r *artifacts) FindByPoolID(ctx context.Context, poolID string) ([]*domain.Artifact, error) {
	return r.query(ctx, `SELECT * FROM artifacts WHERE pool_id = $1 ORDER BY id`, poolID)
}

func (r *artifacts) FindByNameAndVersion(ctx context.Context, name, version string) (*domain.Artifact, error) {
	var row artifactRow
	err := r.db.GetContext(ctx, &row, `SELECT * FROM artifacts WHERE name = $1 AND version = $2`, name, version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, hodeierr.NotFound("artifact", name+"@"+version)
	}
	if err != nil {
		return nil, hodeierr.OperationFailed("find_artifact_by_name_version", err)
	}
	return row.toDomain(), nil
}

func (r *artifacts) FindVersionsByName(ctx context.Context, name string) ([]*domain.Artifact, error) {
	return r.query(ctx, `SELECT * FROM artifacts WHERE name = $1 ORDER BY version`, name)
}

func (r *artifacts) FindByStatus(ctx context.Context, status domain.ArtifactStatus) ([]*domain.Artifact, error) {
	return r.query(ctx, `SELECT * FROM artifacts WHERE status = $1 ORDER BY id`, string(status))
}

func (r *artifacts) FindExpiredArtifacts(ctx context.Context, asOf time.Time) ([]*domain.Artifact, error) {
	return r.query(ctx, `SELECT * FROM artifacts WHERE expires_at IS NOT NULL AND expires_at <= $1 ORDER BY id`, asOf)
}

func (r *artifacts) FindByType(ctx context.Context, kind domain.ArtifactType) ([]*domain.Artifact, error) {
	return r.query(ctx, `SELECT * FROM artifacts WHERE type = $1 ORDER BY id`, string(kind))
}

func (r *artifacts) DeleteByID(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM artifacts WHERE id = $1`, id); err != nil {
		return hodeierr.OperationFailed("delete_artifact", err)
	}
	return nil
}

func (r *artifacts) UpdateStatus(ctx context.Context, id string, status domain.ArtifactStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE artifacts SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return hodeierr.OperationFailed("update_artifact_status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return hodeierr.OperationFailed("update_artifact_status", err)
	}
	if n == 0 {
		return hodeierr.NotFound("artifact", id)
	}
	return nil
}

func (r *artifacts) CountByPool(ctx context.Context, poolID string) (int64, error) {
	var n int64
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM artifacts WHERE pool_id = $1`, poolID)
	if err != nil {
		return 0, hodeierr.OperationFailed("count_artifacts_by_pool", err)
	}
	return n, nil
}

func (r *artifacts) GetTotalSizeByPool(ctx context.Context, poolID string) (int64, error) {
	var total sql.NullInt64
	err := r.db.GetContext(ctx, &total, `SELECT SUM(size_bytes) FROM artifacts WHERE pool_id = $1`, poolID)
	if err != nil {
		return 0, hodeierr.OperationFailed("sum_artifacts_size_by_pool", err)
	}
	return total.Int64, nil
}
