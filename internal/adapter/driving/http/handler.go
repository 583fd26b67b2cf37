package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kylewilkins/lifesync/internal/application"
	"github.com/kylewilkins/lifesync/internal/domain/model"
	"github.com/kylewilkins/lifesync/internal/domain/port/driven"
)

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	creds      *application.CredentialService
	sync       *application.SyncService
	snapshots  *application.SnapshotService
	scheduler  *application.SchedulerService
	cache      *application.StatsCache
	jobs       driven.JobStore
	activities driven.ActivityStore
	logger     *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	creds *application.CredentialService,
	sync *application.SyncService,
	snapshots *application.SnapshotService,
	scheduler *application.SchedulerService,
	cache *application.StatsCache,
	jobs driven.JobStore,
	activities driven.ActivityStore,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		creds:      creds,
		sync:       sync,
		snapshots:  snapshots,
		scheduler:  scheduler,
		cache:      cache,
		jobs:       jobs,
		activities: activities,
		logger:     logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware. Administrative routes require the
// admin bearer token; the cron route carries its own secret so a scheduler
// invoker never holds admin rights.
func NewServeMux(h *Handler, adminToken, cronSecret string, logger *slog.Logger) http.Handler {
	admin := http.NewServeMux()
	admin.HandleFunc("POST /api/v1/credentials", h.CreateCredential)
	admin.HandleFunc("GET /api/v1/credentials", h.ListCredentials)
	admin.HandleFunc("GET /api/v1/credentials/{id}", h.GetCredential)
	admin.HandleFunc("DELETE /api/v1/credentials/{id}", h.DeleteCredential)
	admin.HandleFunc("POST /api/v1/credentials/{id}/validate", h.ValidateCredential)
	admin.HandleFunc("POST /api/v1/sync/{platform}", h.TriggerSync)
	admin.HandleFunc("GET /api/v1/sync/status", h.SyncStatus)
	admin.HandleFunc("GET /api/v1/sync/history", h.SyncHistory)
	admin.HandleFunc("GET /api/v1/activities/{platform}", h.ListActivities)
	admin.HandleFunc("GET /api/v1/playtime/{gameID}/history", h.PlaytimeHistory)
	admin.HandleFunc("GET /api/v1/playtime/daily", h.PlaytimeDaily)
	admin.HandleFunc("GET /api/v1/playtime/total", h.PlaytimeTotal)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", bearerAuth(adminToken, admin))
	mux.Handle("POST /api/v1/cron", bearerAuth(cronSecret, http.HandlerFunc(h.Cron)))
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// CreateCredential stores a new encrypted credential.
func (h *Handler) CreateCredential(w http.ResponseWriter, r *http.Request) {
	var req CreateCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	platform, err := model.ParsePlatform(req.Platform)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown platform: "+req.Platform)
		return
	}
	credType, err := model.ParseCredentialType(req.Type)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown credential type: "+req.Type)
		return
	}

	created, err := h.creds.Create(r.Context(), application.CreateInput{
		Platform:      platform,
		Type:          credType,
		Secret:        req.Secret,
		Metadata:      req.Metadata,
		AutoSync:      req.AutoSync,
		SyncFrequency: model.SyncFrequency(req.SyncFrequency),
	})
	if err != nil {
		h.logger.Error("failed to create credential", "platform", platform, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	masked, err := h.creds.Get(r.Context(), created.ID)
	if err != nil {
		h.logger.Error("failed to reload credential", "credential_id", created.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusCreated, toCredentialResponse(masked))
}

// ListCredentials returns all credentials with masked secrets.
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	filter := driven.CredentialFilter{}
	if p := r.URL.Query().Get("platform"); p != "" {
		platform, err := model.ParsePlatform(p)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown platform: "+p)
			return
		}
		filter.Platform = platform
	}

	masked, err := h.creds.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list credentials", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]CredentialResponse, 0, len(masked))
	for _, m := range masked {
		resp = append(resp, toCredentialResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetCredential returns a single credential with its secret masked.
func (h *Handler) GetCredential(w http.ResponseWriter, r *http.Request) {
	masked, err := h.creds.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, model.ErrCredentialNotFound) {
			writeError(w, http.StatusNotFound, "credential not found")
			return
		}
		h.logger.Error("failed to get credential", "credential_id", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toCredentialResponse(masked))
}

// DeleteCredential removes a credential.
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	if err := h.creds.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, model.ErrCredentialNotFound) {
			writeError(w, http.StatusNotFound, "credential not found")
			return
		}
		h.logger.Error("failed to delete credential", "credential_id", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ValidateCredential re-probes a credential and reports the verdict.
func (h *Handler) ValidateCredential(w http.ResponseWriter, r *http.Request) {
	result, err := h.creds.Validate(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, model.ErrCredentialNotFound) {
			writeError(w, http.StatusNotFound, "credential not found")
			return
		}
		h.logger.Error("failed to validate credential", "credential_id", r.PathValue("id"), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, ValidationResponse{IsValid: result.IsValid, Error: result.Error})
}

// TriggerSync runs one sync job for a platform, or one per platform when the
// path segment is "all". A job that finishes FAILED or PARTIAL is still an
// HTTP 200: the outcome is data in the job body, not a transport error.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("platform")
	if name == "all" {
		results := h.sync.RunAll(r.Context())
		resp := make([]PlatformSyncResponse, 0, len(results))
		for _, res := range results {
			resp = append(resp, toPlatformSyncResponse(res))
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	platform, err := model.ParsePlatform(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown platform: "+name)
		return
	}

	job, err := h.sync.RunPlatform(r.Context(), platform)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrSyncInProgress):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, model.ErrNoCredential):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			h.logger.Error("sync trigger failed", "platform", platform, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

// ListActivities returns a platform's most recent normalized records.
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	platform, err := model.ParsePlatform(r.PathValue("platform"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown platform: "+r.PathValue("platform"))
		return
	}
	limit := intQuery(r.URL.Query().Get("limit"), 50)

	records, err := h.activities.ListByPlatform(r.Context(), platform, limit)
	if err != nil {
		h.logger.Error("failed to list activities", "platform", platform, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]ActivityResponse, 0, len(records))
	for _, record := range records {
		resp = append(resp, toActivityResponse(record))
	}
	writeJSON(w, http.StatusOK, resp)
}

// SyncStatus returns the cached aggregate job view plus per-platform record
// counts.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := h.cache.Summary(r.Context())
	if err != nil {
		h.logger.Error("failed to load sync status", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	activityCounts, err := h.activities.CountByPlatform(r.Context())
	if err != nil {
		h.logger.Error("failed to count activities", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := StatusResponse{
		Counts:     make(map[string]int, len(summary.Counts)),
		LastJobs:   make(map[string]JobResponse, len(summary.LastPerPlatform)),
		Activities: make(map[string]int, len(activityCounts)),
	}
	for status, n := range summary.Counts {
		resp.Counts[string(status)] = n
	}
	for platform, job := range summary.LastPerPlatform {
		resp.LastJobs[string(platform)] = toJobResponse(job)
	}
	for platform, n := range activityCounts {
		resp.Activities[string(platform)] = n
	}
	writeJSON(w, http.StatusOK, resp)
}

// SyncHistory returns finalized jobs newest first with per-status counts for
// the same filter.
func (h *Handler) SyncHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := driven.JobFilter{CredentialID: q.Get("credential_id")}
	if p := q.Get("platform"); p != "" {
		platform, err := model.ParsePlatform(p)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown platform: "+p)
			return
		}
		filter.Platform = platform
	}
	limit := intQuery(q.Get("limit"), 20)
	offset := intQuery(q.Get("offset"), 0)

	jobs, err := h.jobs.History(r.Context(), filter, limit, offset)
	if err != nil {
		h.logger.Error("failed to load sync history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	counts, err := h.jobs.CountByStatus(r.Context(), filter)
	if err != nil {
		h.logger.Error("failed to count jobs", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := HistoryResponse{
		Jobs:   make([]JobResponse, 0, len(jobs)),
		Counts: make(map[string]int, len(counts)),
	}
	for _, job := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(job))
	}
	for status, n := range counts {
		resp.Counts[string(status)] = n
	}
	writeJSON(w, http.StatusOK, resp)
}

// PlaytimeHistory returns one game's daily snapshots within a date range.
func (h *Handler) PlaytimeHistory(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("gameID")
	q := r.URL.Query()

	snaps, err := h.snapshots.History(r.Context(), gameID, q.Get("from"), q.Get("to"))
	if err != nil {
		h.logger.Error("failed to load playtime history", "game_id", gameID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]SnapshotResponse, 0, len(snaps))
	for _, s := range snaps {
		resp = append(resp, toSnapshotResponse(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

// PlaytimeDaily returns the games played on a day with their deltas.
func (h *Handler) PlaytimeDaily(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = model.DateOf(time.Now().UTC())
	}
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		writeError(w, http.StatusBadRequest, "invalid date: expected YYYY-MM-DD")
		return
	}

	rows, err := h.snapshots.DailySummary(r.Context(), date)
	if err != nil {
		h.logger.Error("failed to load daily summary", "date", date, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := DailySummaryResponse{Date: date, Games: make([]DailyGameResponse, 0, len(rows))}
	for _, row := range rows {
		resp.Total += row.DailyDelta
		resp.Games = append(resp.Games, DailyGameResponse{
			GameID:     row.GameID,
			GameName:   row.GameName,
			DailyDelta: row.DailyDelta,
			Playtime:   row.Playtime,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// PlaytimeTotal sums daily deltas across all games within a date range.
func (h *Handler) PlaytimeTotal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	start, end := q.Get("start"), q.Get("end")
	for _, d := range []string{start, end} {
		if _, err := time.Parse(model.DateLayout, d); err != nil {
			writeError(w, http.StatusBadRequest, "invalid range: expected start=YYYY-MM-DD&end=YYYY-MM-DD")
			return
		}
	}

	total, err := h.snapshots.TotalInRange(r.Context(), start, end)
	if err != nil {
		h.logger.Error("failed to total playtime", "start", start, "end", end, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, TotalResponse{Start: start, End: end, TotalMinutes: total})
}

// Cron runs every due credential. Safe to re-deliver: a duplicate trigger in
// the same window either finds nothing due or recomputes the same snapshots.
func (h *Handler) Cron(w http.ResponseWriter, r *http.Request) {
	report, err := h.scheduler.Run(r.Context())
	if err != nil {
		h.logger.Error("scheduled run failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, toCronResponse(report))
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// intQuery parses a non-negative integer query parameter, falling back to
// def when absent or malformed.
func intQuery(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
