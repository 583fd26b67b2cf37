package driven

import (
	"context"
	"time"

	"github.com/kylewilkins/lifesync/internal/domain/model"
)

// JobFilter narrows a job history query. Zero fields are ignored.
type JobFilter struct {
	Platform     model.Platform
	CredentialID string
}

// StatusSummary aggregates the job log for dashboards.
type StatusSummary struct {
	Counts          map[model.JobStatus]int
	LastPerPlatform map[model.Platform]model.SyncJob
}

// JobStore defines the driven port for the append-only sync job log.
type JobStore interface {
	// Create writes a new job row with StatusRunning.
	Create(ctx context.Context, job model.SyncJob) error

	// Finalize writes the terminal status, item counts, duration, and
	// collected errors. It must be called at most once per job; finalized
	// rows are never mutated afterward.
	Finalize(ctx context.Context, job model.SyncJob) error

	// GetRunning returns the currently running job for a platform, or nil.
	GetRunning(ctx context.Context, platform model.Platform) (*model.SyncJob, error)

	// MarkStaleRunning finalizes as failed every running job started before
	// the cutoff. It is the reconciliation sweep for rows orphaned by a
	// process crash mid-job, and returns the number of rows swept.
	MarkStaleRunning(ctx context.Context, before time.Time) (int, error)

	// History returns finished and running jobs matching the filter, newest
	// first, with limit/offset pagination.
	History(ctx context.Context, filter JobFilter, limit, offset int) ([]model.SyncJob, error)

	// CountByStatus returns per-status totals for jobs matching the filter.
	CountByStatus(ctx context.Context, filter JobFilter) (map[model.JobStatus]int, error)

	// StatusSummary returns per-status totals plus the most recent job per
	// platform.
	StatusSummary(ctx context.Context) (StatusSummary, error)
}
