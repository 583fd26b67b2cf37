package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kylewilkins/lifesync/internal/crypto"
	"github.com/kylewilkins/lifesync/internal/domain/model"
	"github.com/kylewilkins/lifesync/internal/domain/port/driven"
)

// SyncService orchestrates one fetch/normalize/persist job per platform with
// partial-failure isolation. It never retries in process: eventual
// correctness relies on the next scheduled invocation.
type SyncService struct {
	registry   *Registry
	creds      driven.CredentialStore
	jobs       driven.JobStore
	activities driven.ActivityStore
	vault      *crypto.Vault
	cache      *StatsCache
	now        func() time.Time

	// mu guards running: two jobs for the same platform must not run
	// concurrently or they would double-count credential counters.
	mu      sync.Mutex
	running map[model.Platform]bool
}

// NewSyncService creates a SyncService with all required dependencies.
// cache may be nil when no read-side caching is wired (tests).
func NewSyncService(
	registry *Registry,
	creds driven.CredentialStore,
	jobs driven.JobStore,
	activities driven.ActivityStore,
	vault *crypto.Vault,
	cache *StatsCache,
) *SyncService {
	return &SyncService{
		registry:   registry,
		creds:      creds,
		jobs:       jobs,
		activities: activities,
		vault:      vault,
		cache:      cache,
		now:        time.Now,
		running:    make(map[model.Platform]bool),
	}
}

// RunPlatform resolves the newest valid credential for the platform and runs
// one sync job with it. It returns model.ErrNoCredential when none is
// configured and model.ErrSyncInProgress when a job for the platform is
// already running.
func (s *SyncService) RunPlatform(ctx context.Context, platform model.Platform) (model.SyncJob, error) {
	cred, err := s.resolveCredential(ctx, platform)
	if err != nil {
		return model.SyncJob{}, err
	}
	return s.RunCredential(ctx, cred)
}

// RunCredential runs one sync job for a specific credential.
func (s *SyncService) RunCredential(ctx context.Context, cred model.Credential) (model.SyncJob, error) {
	client, err := s.registry.Get(cred.Platform)
	if err != nil {
		return model.SyncJob{}, err
	}

	if err := s.acquire(ctx, cred.Platform); err != nil {
		return model.SyncJob{}, err
	}
	defer s.release(cred.Platform)

	job := model.SyncJob{
		ID:           uuid.NewString(),
		Platform:     cred.Platform,
		CredentialID: cred.ID,
		Status:       model.JobStatusRunning,
		StartedAt:    s.now().UTC(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return model.SyncJob{}, fmt.Errorf("create job log: %w", err)
	}

	records, fetchErr := s.fetchRecords(ctx, client, cred)

	fetchFailed := fetchErr != nil
	if fetchFailed {
		job.Errors = append(job.Errors, fetchErr.Error())
	} else {
		job.ItemsTotal = len(records)
		for _, record := range records {
			if err := s.activities.Upsert(ctx, record); err != nil {
				// Per-item isolation: count and continue, never abort the batch.
				job.ItemsFailed++
				job.Errors = append(job.Errors, fmt.Sprintf("upsert %s: %v", record.ExternalID, err))
				slog.Error("activity upsert failed",
					"platform", cred.Platform,
					"external_id", record.ExternalID,
					"error", err,
				)
				continue
			}
			job.ItemsSuccess++
		}
	}

	job.Status = model.FinalStatus(job.ItemsTotal, job.ItemsSuccess, job.ItemsFailed, fetchFailed)
	job.Duration = s.now().UTC().Sub(job.StartedAt)
	if err := s.jobs.Finalize(ctx, job); err != nil {
		return job, fmt.Errorf("finalize job %s: %w", job.ID, err)
	}

	s.settleCredential(ctx, cred, job.Status, fetchErr)

	if job.Status == model.JobStatusSuccess || job.Status == model.JobStatusPartial {
		// Read-side aggregates derive from the records just written.
		if s.cache != nil {
			s.cache.Invalidate()
		}
	}

	slog.Info("sync job finished",
		"platform", cred.Platform,
		"job_id", job.ID,
		"status", job.Status,
		"items_total", job.ItemsTotal,
		"items_success", job.ItemsSuccess,
		"items_failed", job.ItemsFailed,
		"duration", job.Duration.Round(time.Millisecond),
	)
	return job, nil
}

// PlatformResult is one platform's outcome within a RunAll sweep.
type PlatformResult struct {
	Platform model.Platform
	Job      *model.SyncJob
	Err      error
}

// RunAll runs one job per registered platform. Platforms are isolated: one
// platform's total failure never prevents the others from running or being
// reported independently.
func (s *SyncService) RunAll(ctx context.Context) []PlatformResult {
	platforms := s.registry.Platforms()
	results := make([]PlatformResult, 0, len(platforms))

	for _, platform := range platforms {
		job, err := s.RunPlatform(ctx, platform)
		result := PlatformResult{Platform: platform, Err: err}
		if err == nil {
			jobCopy := job
			result.Job = &jobCopy
		} else {
			slog.Error("platform sync skipped or failed", "platform", platform, "error", err)
		}
		results = append(results, result)
	}
	return results
}

// ReconcileStale finalizes as failed every job left running longer than
// olderThan, recovering rows orphaned by a process crash mid-job.
func (s *SyncService) ReconcileStale(ctx context.Context, olderThan time.Duration) (int, error) {
	swept, err := s.jobs.MarkStaleRunning(ctx, s.now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("reconcile stale jobs: %w", err)
	}
	if swept > 0 {
		slog.Warn("swept orphaned running jobs", "count", swept)
		if s.cache != nil {
			s.cache.Invalidate()
		}
	}
	return swept, nil
}

// fetchRecords decrypts the secret and runs the adapter's fetch + normalize.
// The plaintext secret's lifetime is bounded by this call; it is never
// attached to a long-lived object or logged.
func (s *SyncService) fetchRecords(ctx context.Context, client driven.PlatformClient, cred model.Credential) ([]model.Activity, error) {
	secret, err := s.vault.Decrypt(cred.EncryptedValue)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential %s: %w", cred.ID, err)
	}

	raw, err := client.Fetch(ctx, secret, cred.Metadata)
	if err != nil {
		return nil, err
	}
	return client.Normalize(raw)
}

// settleCredential updates the credential's counters and next check time
// after a job, and flips validity on an explicit auth rejection. A transient
// network failure is not proof the credential is bad and leaves validity
// untouched.
func (s *SyncService) settleCredential(ctx context.Context, cred model.Credential, status model.JobStatus, fetchErr error) {
	success := status != model.JobStatusFailed
	next := cred.SyncFrequency.NextCheckAfter(s.now().UTC())
	if err := s.creds.RecordUsage(ctx, cred.ID, success, next); err != nil {
		slog.Error("record credential usage failed", "credential_id", cred.ID, "error", err)
	}

	if fetchErr != nil && model.IsAuthRejected(fetchErr) {
		if err := s.creds.UpdateValidation(ctx, cred.ID, false, fetchErr.Error(), s.now().UTC()); err != nil {
			slog.Error("invalidate credential failed", "credential_id", cred.ID, "error", err)
		}
	}
}

// resolveCredential picks the newest valid credential for a platform.
func (s *SyncService) resolveCredential(ctx context.Context, platform model.Platform) (model.Credential, error) {
	valid := true
	creds, err := s.creds.List(ctx, driven.CredentialFilter{Platform: platform, Valid: &valid})
	if err != nil {
		return model.Credential{}, fmt.Errorf("list credentials for %s: %w", platform, err)
	}
	if len(creds) == 0 {
		return model.Credential{}, fmt.Errorf("%w: %s", model.ErrNoCredential, platform)
	}
	return creds[0], nil
}

// acquire takes the per-platform run slot, checking both the in-process
// guard and the job log for a concurrent run.
func (s *SyncService) acquire(ctx context.Context, platform model.Platform) error {
	s.mu.Lock()
	if s.running[platform] {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", model.ErrSyncInProgress, platform)
	}
	s.running[platform] = true
	s.mu.Unlock()

	// A RUNNING row from another process (or an unswept crash) also blocks.
	running, err := s.jobs.GetRunning(ctx, platform)
	if err != nil {
		s.release(platform)
		return fmt.Errorf("check running job for %s: %w", platform, err)
	}
	if running != nil {
		s.release(platform)
		return fmt.Errorf("%w: %s (job %s)", model.ErrSyncInProgress, platform, running.ID)
	}
	return nil
}

func (s *SyncService) release(platform model.Platform) {
	s.mu.Lock()
	delete(s.running, platform)
	s.mu.Unlock()
}
