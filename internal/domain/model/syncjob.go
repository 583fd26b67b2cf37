package model

import "time"

// SyncJob is one fetch/normalize/persist execution for a platform, recorded
// as an append-only log entry. A job is created with StatusRunning and
// finalized exactly once; finalized rows are never mutated again.
type SyncJob struct {
	ID           string
	Platform     Platform
	CredentialID string
	Status       JobStatus
	ItemsTotal   int
	ItemsSuccess int
	ItemsFailed  int
	Duration     time.Duration
	StartedAt    time.Time
	Errors       []string
}

// Finalized reports whether the job has reached a terminal status.
func (j SyncJob) Finalized() bool {
	switch j.Status {
	case JobStatusSuccess, JobStatusFailed, JobStatusPartial:
		return true
	}
	return false
}
