package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kylewilkins/lifesync/internal/domain/model"
	"github.com/kylewilkins/lifesync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.JobStore = (*JobRepo)(nil)

// JobRepo is the SQLite implementation of the JobStore port. The job log is
// append-only: rows are inserted as running and updated exactly once by
// Finalize (or the stale sweep); no other mutation path exists.
type JobRepo struct {
	db *DB
}

// NewJobRepo creates a new JobRepo backed by the given DB.
func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db}
}

// Create writes a new job row with its initial running status.
func (r *JobRepo) Create(ctx context.Context, job model.SyncJob) error {
	const query = `
		INSERT INTO sync_jobs (id, platform, credential_id, status, started_at, errors)
		VALUES (?, ?, ?, ?, ?, '[]')
	`
	_, err := r.db.Writer.ExecContext(ctx, query,
		job.ID, string(job.Platform), job.CredentialID, string(job.Status),
		formatTime(job.StartedAt))
	if err != nil {
		return fmt.Errorf("create sync job: %w", err)
	}
	return nil
}

// Finalize writes the terminal status, counts, duration, and errors. The
// status guard keeps already-finalized rows immutable.
func (r *JobRepo) Finalize(ctx context.Context, job model.SyncJob) error {
	errs := job.Errors
	if errs == nil {
		errs = []string{}
	}
	errsJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("marshal job errors: %w", err)
	}

	const query = `
		UPDATE sync_jobs
		SET status = ?, items_total = ?, items_success = ?, items_failed = ?,
		    duration_ms = ?, errors = ?
		WHERE id = ? AND status = ?
	`
	res, err := r.db.Writer.ExecContext(ctx, query,
		string(job.Status), job.ItemsTotal, job.ItemsSuccess, job.ItemsFailed,
		job.Duration.Milliseconds(), string(errsJSON), job.ID, string(model.JobStatusRunning))
	if err != nil {
		return fmt.Errorf("finalize sync job %q: %w", job.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize sync job %q: %w", job.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("finalize sync job %q: job not running", job.ID)
	}
	return nil
}

// GetRunning returns the currently running job for a platform, or nil.
func (r *JobRepo) GetRunning(ctx context.Context, platform model.Platform) (*model.SyncJob, error) {
	const query = jobSelect + `
		WHERE platform = ? AND status = ?
		ORDER BY started_at DESC
		LIMIT 1
	`
	job, err := scanJob(r.db.Reader.QueryRowContext(ctx, query, string(platform), string(model.JobStatusRunning)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get running job for %s: %w", platform, err)
	}
	return &job, nil
}

// MarkStaleRunning finalizes as failed every running job started before the
// cutoff, returning the number of rows swept.
func (r *JobRepo) MarkStaleRunning(ctx context.Context, before time.Time) (int, error) {
	const query = `
		UPDATE sync_jobs
		SET status = ?, errors = ?
		WHERE status = ? AND started_at < ?
	`
	msg, _ := json.Marshal([]string{"job abandoned: process exited mid-run"})
	res, err := r.db.Writer.ExecContext(ctx, query,
		string(model.JobStatusFailed), string(msg),
		string(model.JobStatusRunning), formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("mark stale running jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mark stale running jobs: %w", err)
	}
	return int(n), nil
}

// History returns jobs matching the filter, newest first.
func (r *JobRepo) History(ctx context.Context, filter driven.JobFilter, limit, offset int) ([]model.SyncJob, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	where, args := jobFilterClause(filter)
	query := jobSelect + where + " ORDER BY started_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("job history: %w", err)
	}
	defer rows.Close()

	var jobs []model.SyncJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// CountByStatus returns per-status totals for jobs matching the filter.
func (r *JobRepo) CountByStatus(ctx context.Context, filter driven.JobFilter) (map[model.JobStatus]int, error) {
	where, args := jobFilterClause(filter)
	query := `SELECT status, COUNT(*) FROM sync_jobs` + where + ` GROUP BY status`

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count jobs by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.JobStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan job count: %w", err)
		}
		counts[model.JobStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job counts: %w", err)
	}
	return counts, nil
}

// StatusSummary returns per-status totals plus the most recent job per platform.
func (r *JobRepo) StatusSummary(ctx context.Context) (driven.StatusSummary, error) {
	counts, err := r.CountByStatus(ctx, driven.JobFilter{})
	if err != nil {
		return driven.StatusSummary{}, err
	}

	// Window over started_at picks the latest row per platform.
	const query = `
		SELECT id, platform, credential_id, status, items_total, items_success,
		       items_failed, duration_ms, started_at, errors
		FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY platform ORDER BY started_at DESC) AS rn
			FROM sync_jobs
		)
		WHERE rn = 1
	`
	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return driven.StatusSummary{}, fmt.Errorf("status summary: %w", err)
	}
	defer rows.Close()

	last := make(map[model.Platform]model.SyncJob)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return driven.StatusSummary{}, fmt.Errorf("scan last job: %w", err)
		}
		last[job.Platform] = job
	}
	if err := rows.Err(); err != nil {
		return driven.StatusSummary{}, fmt.Errorf("iterate last jobs: %w", err)
	}

	return driven.StatusSummary{Counts: counts, LastPerPlatform: last}, nil
}

const jobSelect = `
	SELECT id, platform, credential_id, status, items_total, items_success,
	       items_failed, duration_ms, started_at, errors
	FROM sync_jobs
`

func jobFilterClause(filter driven.JobFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.Platform != "" {
		where = append(where, "platform = ?")
		args = append(args, string(filter.Platform))
	}
	if filter.CredentialID != "" {
		where = append(where, "credential_id = ?")
		args = append(args, filter.CredentialID)
	}
	if len(where) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(where, " AND "), args
}

func scanJob(row rowScanner) (model.SyncJob, error) {
	var (
		job        model.SyncJob
		platform   string
		status     string
		durationMS int64
		startedAt  string
		errsJSON   string
	)
	err := row.Scan(&job.ID, &platform, &job.CredentialID, &status, &job.ItemsTotal,
		&job.ItemsSuccess, &job.ItemsFailed, &durationMS, &startedAt, &errsJSON)
	if err != nil {
		return model.SyncJob{}, err
	}

	job.Platform = model.Platform(platform)
	job.Status = model.JobStatus(status)
	job.Duration = time.Duration(durationMS) * time.Millisecond

	if job.StartedAt, err = parseTime(startedAt); err != nil {
		return model.SyncJob{}, err
	}
	if err := json.Unmarshal([]byte(errsJSON), &job.Errors); err != nil {
		return model.SyncJob{}, fmt.Errorf("unmarshal job errors: %w", err)
	}
	return job, nil
}
