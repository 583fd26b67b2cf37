package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/kylewilkins/lifesync/internal/domain/model"
	"github.com/kylewilkins/lifesync/internal/domain/port/driven"
)

// SchedulerService is the glue behind the scheduled entrypoint: it iterates
// every valid auto-sync credential that is due and runs the appropriate
// routine per credential. The engine has no internal timer; an external
// cron-style caller invokes Run. At-least-once delivery is safe because the
// per-day snapshot uniqueness makes a same-day re-run compute a near-zero
// delta instead of doubling it.
type SchedulerService struct {
	creds     driven.CredentialStore
	sync      *SyncService
	snapshots *SnapshotService
	now       func() time.Time
}

// NewSchedulerService creates a SchedulerService with all required dependencies.
func NewSchedulerService(creds driven.CredentialStore, sync *SyncService, snapshots *SnapshotService) *SchedulerService {
	return &SchedulerService{
		creds:     creds,
		sync:      sync,
		snapshots: snapshots,
		now:       time.Now,
	}
}

// CredentialOutcome is one credential's result within a scheduled run.
type CredentialOutcome struct {
	CredentialID string
	Platform     model.Platform
	Job          *model.SyncJob
	Snapshot     *SnapshotRun
	Err          error
}

// Report summarizes one scheduled run.
type Report struct {
	Due      int
	Ran      int
	Failed   int
	Outcomes []CredentialOutcome
}

// Run processes every due credential, isolating failures per credential so a
// broken platform never starves the rest of the schedule.
func (s *SchedulerService) Run(ctx context.Context) (Report, error) {
	due, err := s.creds.ListDue(ctx, s.now().UTC())
	if err != nil {
		return Report{}, err
	}

	report := Report{Due: len(due)}
	for _, cred := range due {
		outcome := CredentialOutcome{CredentialID: cred.ID, Platform: cred.Platform}

		job, err := s.sync.RunCredential(ctx, cred)
		if err != nil {
			outcome.Err = err
			report.Failed++
			slog.Error("scheduled sync failed", "credential_id", cred.ID, "platform", cred.Platform, "error", err)
			report.Outcomes = append(report.Outcomes, outcome)
			continue
		}
		jobCopy := job
		outcome.Job = &jobCopy
		report.Ran++

		// Cumulative-counter platforms also get their daily snapshot sweep.
		if cred.Platform == model.PlatformSteam && s.snapshots != nil {
			run, err := s.snapshots.CreateSnapshots(ctx, cred.ID)
			if err != nil {
				slog.Error("scheduled snapshot sweep failed", "credential_id", cred.ID, "error", err)
			} else {
				runCopy := run
				outcome.Snapshot = &runCopy
			}
		}

		report.Outcomes = append(report.Outcomes, outcome)
	}

	slog.Info("scheduled run complete", "due", report.Due, "ran", report.Ran, "failed", report.Failed)
	return report, nil
}
