package model

import (
	"fmt"
	"time"
)

// Platform identifies an external platform the engine can synchronize with.
// The set is closed: each value is bound to exactly one adapter implementation
// through the application registry.
type Platform string

const (
	PlatformSteam  Platform = "steam"
	PlatformGitHub Platform = "github"
	PlatformLastFM Platform = "lastfm"
)

// Platforms lists every known platform in stable order.
func Platforms() []Platform {
	return []Platform{PlatformGitHub, PlatformLastFM, PlatformSteam}
}

// ParsePlatform validates a platform name from external input.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(s) {
	case PlatformSteam, PlatformGitHub, PlatformLastFM:
		return Platform(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
}

// CredentialType classifies how a stored secret authenticates against a platform.
type CredentialType string

const (
	CredentialTypeAPIKey     CredentialType = "api_key"
	CredentialTypeCookie     CredentialType = "cookie"
	CredentialTypeOAuthToken CredentialType = "oauth_token"
)

// ParseCredentialType validates a credential type from external input.
func ParseCredentialType(s string) (CredentialType, error) {
	switch CredentialType(s) {
	case CredentialTypeAPIKey, CredentialTypeCookie, CredentialTypeOAuthToken:
		return CredentialType(s), nil
	}
	return "", fmt.Errorf("unknown credential type %q", s)
}

// SyncFrequency is the scheduling tier for automatic credential syncs.
type SyncFrequency string

const (
	FrequencyDaily         SyncFrequency = "daily"
	FrequencyTwiceDaily    SyncFrequency = "twice_daily"
	FrequencyThreeTimesDay SyncFrequency = "three_times_daily"
	FrequencyFourTimesDay  SyncFrequency = "four_times_daily"
	FrequencySixTimesDay   SyncFrequency = "six_times_daily"
)

// Interval returns the fixed hour offset for a frequency tier. Unknown tiers
// fall back to daily. No jitter is applied; the cadence belongs to the
// external scheduler.
func (f SyncFrequency) Interval() time.Duration {
	switch f {
	case FrequencyTwiceDaily:
		return 12 * time.Hour
	case FrequencyThreeTimesDay:
		return 8 * time.Hour
	case FrequencyFourTimesDay:
		return 6 * time.Hour
	case FrequencySixTimesDay:
		return 4 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// NextCheckAfter computes the next scheduled check time from a reference instant.
func (f SyncFrequency) NextCheckAfter(now time.Time) time.Time {
	return now.Add(f.Interval())
}

// JobStatus represents the lifecycle state of a sync job.
// Jobs move PENDING -> RUNNING -> {SUCCESS | PARTIAL | FAILED}; the
// finalized states are terminal.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusSuccess JobStatus = "success"
	JobStatusFailed  JobStatus = "failed"
	JobStatusPartial JobStatus = "partial"
)

// FinalStatus resolves the terminal status for a finished batch.
// fetchFailed marks a job whose fetch or normalize step threw before any
// item was attempted.
func FinalStatus(total, success, failed int, fetchFailed bool) JobStatus {
	switch {
	case fetchFailed:
		return JobStatusFailed
	case total > 0 && success == 0:
		return JobStatusFailed
	case failed > 0:
		return JobStatusPartial
	default:
		return JobStatusSuccess
	}
}
