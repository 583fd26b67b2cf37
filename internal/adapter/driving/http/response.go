package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kylewilkins/lifesync/internal/application"
	"github.com/kylewilkins/lifesync/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// CreateCredentialRequest is the JSON body for the create credential endpoint.
type CreateCredentialRequest struct {
	Platform      string            `json:"platform"`
	Type          string            `json:"type"`
	Secret        string            `json:"secret"`
	Metadata      map[string]string `json:"metadata"`
	AutoSync      bool              `json:"auto_sync"`
	SyncFrequency string            `json:"sync_frequency"`
}

// CredentialResponse is the JSON representation of a credential. The secret
// only ever appears as a masked preview.
type CredentialResponse struct {
	ID              string            `json:"id"`
	Platform        string            `json:"platform"`
	Type            string            `json:"type"`
	MaskedValue     string            `json:"masked_value"`
	Metadata        map[string]string `json:"metadata"`
	IsValid         bool              `json:"is_valid"`
	LastValidatedAt string            `json:"last_validated_at,omitempty"`
	LastError       string            `json:"last_error,omitempty"`
	UsageCount      int               `json:"usage_count"`
	FailureCount    int               `json:"failure_count"`
	AutoSync        bool              `json:"auto_sync"`
	SyncFrequency   string            `json:"sync_frequency"`
	NextCheckAt     string            `json:"next_check_at"`
}

// ValidationResponse is the JSON body of the validate endpoint.
type ValidationResponse struct {
	IsValid bool   `json:"is_valid"`
	Error   string `json:"error,omitempty"`
}

// JobResponse is the JSON representation of a sync job.
type JobResponse struct {
	ID           string   `json:"id"`
	Platform     string   `json:"platform"`
	CredentialID string   `json:"credential_id"`
	Status       string   `json:"status"`
	ItemsTotal   int      `json:"items_total"`
	ItemsSuccess int      `json:"items_success"`
	ItemsFailed  int      `json:"items_failed"`
	DurationMS   int64    `json:"duration_ms"`
	StartedAt    string   `json:"started_at"`
	Errors       []string `json:"errors"`
}

// PlatformSyncResponse is one platform's outcome within a sync-all fan-out.
// A platform that could not start a job carries the error instead.
type PlatformSyncResponse struct {
	Platform string       `json:"platform"`
	Job      *JobResponse `json:"job,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// StatusResponse is the aggregate job view.
type StatusResponse struct {
	Counts     map[string]int         `json:"counts"`
	LastJobs   map[string]JobResponse `json:"last_jobs"`
	Activities map[string]int         `json:"activities"`
}

// ActivityResponse is the JSON representation of a normalized record.
type ActivityResponse struct {
	Platform   string            `json:"platform"`
	ExternalID string            `json:"external_id"`
	Type       string            `json:"type"`
	Title      string            `json:"title"`
	Cover      string            `json:"cover,omitempty"`
	URL        string            `json:"url,omitempty"`
	OccurredAt string            `json:"occurred_at"`
	Progress   int               `json:"progress"`
	Rating     float64           `json:"rating"`
	Duration   int               `json:"duration"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// HistoryResponse is a page of finalized jobs plus per-status counts for the
// same filter.
type HistoryResponse struct {
	Jobs   []JobResponse  `json:"jobs"`
	Counts map[string]int `json:"counts"`
}

// SnapshotResponse is the JSON representation of one daily playtime snapshot.
type SnapshotResponse struct {
	GameID     string `json:"game_id"`
	Date       string `json:"date"`
	GameName   string `json:"game_name"`
	Playtime   int    `json:"playtime_minutes"`
	DailyDelta int    `json:"daily_delta_minutes"`
	SnapshotAt string `json:"snapshot_at"`
}

// DailyGameResponse is one game's share of a day.
type DailyGameResponse struct {
	GameID     string `json:"game_id"`
	GameName   string `json:"game_name"`
	DailyDelta int    `json:"daily_delta_minutes"`
	Playtime   int    `json:"playtime_minutes"`
}

// DailySummaryResponse is the per-day playtime breakdown.
type DailySummaryResponse struct {
	Date  string              `json:"date"`
	Total int                 `json:"total_minutes"`
	Games []DailyGameResponse `json:"games"`
}

// TotalResponse is the summed playtime over a date range.
type TotalResponse struct {
	Start        string `json:"start"`
	End          string `json:"end"`
	TotalMinutes int    `json:"total_minutes"`
}

// CronOutcomeResponse is one credential's result within a scheduled run.
type CronOutcomeResponse struct {
	CredentialID     string       `json:"credential_id"`
	Platform         string       `json:"platform"`
	Job              *JobResponse `json:"job,omitempty"`
	SnapshotsWritten *int         `json:"snapshots_written,omitempty"`
	Error            string       `json:"error,omitempty"`
}

// CronResponse summarizes a scheduled run.
type CronResponse struct {
	Due      int                   `json:"due"`
	Ran      int                   `json:"ran"`
	Failed   int                   `json:"failed"`
	Outcomes []CronOutcomeResponse `json:"outcomes"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// toCredentialResponse converts a masked credential to its JSON representation.
func toCredentialResponse(m application.MaskedCredential) CredentialResponse {
	resp := CredentialResponse{
		ID:            m.ID,
		Platform:      string(m.Platform),
		Type:          string(m.Type),
		MaskedValue:   m.MaskedValue,
		Metadata:      m.Metadata,
		IsValid:       m.IsValid,
		LastError:     m.LastError,
		UsageCount:    m.UsageCount,
		FailureCount:  m.FailureCount,
		AutoSync:      m.AutoSync,
		SyncFrequency: string(m.SyncFrequency),
		NextCheckAt:   m.NextCheckAt.UTC().Format(time.RFC3339),
	}
	if resp.Metadata == nil {
		resp.Metadata = map[string]string{}
	}
	if m.LastValidatedAt != nil {
		resp.LastValidatedAt = m.LastValidatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// toJobResponse converts a domain SyncJob to its JSON representation.
func toJobResponse(job model.SyncJob) JobResponse {
	errs := job.Errors
	if errs == nil {
		errs = []string{}
	}
	return JobResponse{
		ID:           job.ID,
		Platform:     string(job.Platform),
		CredentialID: job.CredentialID,
		Status:       string(job.Status),
		ItemsTotal:   job.ItemsTotal,
		ItemsSuccess: job.ItemsSuccess,
		ItemsFailed:  job.ItemsFailed,
		DurationMS:   job.Duration.Milliseconds(),
		StartedAt:    job.StartedAt.UTC().Format(time.RFC3339),
		Errors:       errs,
	}
}

// toPlatformSyncResponse converts one RunAll outcome to its JSON representation.
func toPlatformSyncResponse(res application.PlatformResult) PlatformSyncResponse {
	resp := PlatformSyncResponse{Platform: string(res.Platform)}
	if res.Err != nil {
		resp.Error = res.Err.Error()
		return resp
	}
	if res.Job != nil {
		job := toJobResponse(*res.Job)
		resp.Job = &job
	}
	return resp
}

// toActivityResponse converts a domain Activity to its JSON representation.
func toActivityResponse(a model.Activity) ActivityResponse {
	return ActivityResponse{
		Platform:   string(a.Platform),
		ExternalID: a.ExternalID,
		Type:       a.Type,
		Title:      a.Title,
		Cover:      a.Cover,
		URL:        a.URL,
		OccurredAt: a.OccurredAt.UTC().Format(time.RFC3339),
		Progress:   a.Progress,
		Rating:     a.Rating,
		Duration:   a.Duration,
		Metadata:   a.Metadata,
	}
}

// toSnapshotResponse converts a domain snapshot to its JSON representation.
func toSnapshotResponse(s model.PlaytimeSnapshot) SnapshotResponse {
	return SnapshotResponse{
		GameID:     s.GameID,
		Date:       s.Date,
		GameName:   s.GameName,
		Playtime:   s.Playtime,
		DailyDelta: s.DailyDelta,
		SnapshotAt: s.SnapshotAt.UTC().Format(time.RFC3339),
	}
}

// toCronResponse converts a scheduler report to its JSON representation.
func toCronResponse(report application.Report) CronResponse {
	resp := CronResponse{
		Due:      report.Due,
		Ran:      report.Ran,
		Failed:   report.Failed,
		Outcomes: make([]CronOutcomeResponse, 0, len(report.Outcomes)),
	}
	for _, o := range report.Outcomes {
		outcome := CronOutcomeResponse{
			CredentialID: o.CredentialID,
			Platform:     string(o.Platform),
		}
		if o.Err != nil {
			outcome.Error = o.Err.Error()
		}
		if o.Job != nil {
			job := toJobResponse(*o.Job)
			outcome.Job = &job
		}
		if o.Snapshot != nil {
			written := o.Snapshot.Written
			outcome.SnapshotsWritten = &written
		}
		resp.Outcomes = append(resp.Outcomes, outcome)
	}
	return resp
}
