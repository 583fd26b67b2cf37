package application_test

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kylewilkins/lifesync/internal/crypto"
	"github.com/kylewilkins/lifesync/internal/domain/model"
	"github.com/kylewilkins/lifesync/internal/domain/port/driven"
)

// --- Shared test fixtures ---

func testVault() *crypto.Vault {
	v, err := crypto.NewVault([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		panic(err)
	}
	return v
}

func encrypted(v *crypto.Vault, secret string) string {
	ct, err := v.Encrypt(secret)
	if err != nil {
		panic(err)
	}
	return ct
}

func validCredential(v *crypto.Vault, id string, platform model.Platform, secret string) model.Credential {
	now := time.Now().UTC()
	return model.Credential{
		ID:             id,
		Platform:       platform,
		Type:           model.CredentialTypeAPIKey,
		EncryptedValue: encrypted(v, secret),
		Metadata:       map[string]string{"steam_id": "7656119"},
		IsValid:        true,
		AutoSync:       true,
		SyncFrequency:  model.FrequencyTwiceDaily,
		NextCheckAt:    now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// --- Mock credential store ---

type usageCall struct {
	ID          string
	Success     bool
	NextCheckAt time.Time
}

type validationCall struct {
	ID        string
	IsValid   bool
	LastError string
}

type mockCredentialStore struct {
	mu          sync.Mutex
	creds       map[string]model.Credential
	usage       []usageCall
	validations []validationCall
	listErr     error
}

func newMockCredentialStore(creds ...model.Credential) *mockCredentialStore {
	m := &mockCredentialStore{creds: make(map[string]model.Credential)}
	for _, c := range creds {
		m.creds[c.ID] = c
	}
	return m
}

func (m *mockCredentialStore) Create(_ context.Context, cred model.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[cred.ID] = cred
	return nil
}

func (m *mockCredentialStore) GetByID(_ context.Context, id string) (model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[id]
	if !ok {
		return model.Credential{}, model.ErrCredentialNotFound
	}
	return cred, nil
}

func (m *mockCredentialStore) List(_ context.Context, filter driven.CredentialFilter) ([]model.Credential, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.Credential
	for _, cred := range m.creds {
		if filter.Platform != "" && cred.Platform != filter.Platform {
			continue
		}
		if filter.Type != "" && cred.Type != filter.Type {
			continue
		}
		if filter.Valid != nil && cred.IsValid != *filter.Valid {
			continue
		}
		out = append(out, cred)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockCredentialStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.creds[id]; !ok {
		return model.ErrCredentialNotFound
	}
	delete(m.creds, id)
	return nil
}

func (m *mockCredentialStore) UpdateValidation(_ context.Context, id string, isValid bool, lastError string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[id]
	if !ok {
		return model.ErrCredentialNotFound
	}
	cred.IsValid = isValid
	cred.LastError = lastError
	cred.LastValidatedAt = &now
	m.creds[id] = cred
	m.validations = append(m.validations, validationCall{ID: id, IsValid: isValid, LastError: lastError})
	return nil
}

func (m *mockCredentialStore) RecordUsage(_ context.Context, id string, success bool, nextCheckAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cred, ok := m.creds[id]
	if !ok {
		return model.ErrCredentialNotFound
	}
	cred.UsageCount++
	if !success {
		cred.FailureCount++
	}
	cred.NextCheckAt = nextCheckAt
	m.creds[id] = cred
	m.usage = append(m.usage, usageCall{ID: id, Success: success, NextCheckAt: nextCheckAt})
	return nil
}

func (m *mockCredentialStore) ListDue(_ context.Context, now time.Time) ([]model.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var due []model.Credential
	for _, cred := range m.creds {
		if cred.IsValid && cred.AutoSync && !cred.NextCheckAt.After(now) {
			due = append(due, cred)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	return due, nil
}

// --- Mock job store ---

type mockJobStore struct {
	mu        sync.Mutex
	created   []model.SyncJob
	finalized []model.SyncJob
	running   map[model.Platform]*model.SyncJob
	swept     int
}

func newMockJobStore() *mockJobStore {
	return &mockJobStore{running: make(map[model.Platform]*model.SyncJob)}
}

func (m *mockJobStore) Create(_ context.Context, job model.SyncJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, job)
	return nil
}

func (m *mockJobStore) Finalize(_ context.Context, job model.SyncJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized = append(m.finalized, job)
	return nil
}

func (m *mockJobStore) GetRunning(_ context.Context, platform model.Platform) (*model.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running[platform], nil
}

func (m *mockJobStore) MarkStaleRunning(_ context.Context, _ time.Time) (int, error) {
	return m.swept, nil
}

func (m *mockJobStore) History(_ context.Context, _ driven.JobFilter, _, _ int) ([]model.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalized, nil
}

func (m *mockJobStore) CountByStatus(_ context.Context, _ driven.JobFilter) (map[model.JobStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[model.JobStatus]int)
	for _, job := range m.finalized {
		counts[job.Status]++
	}
	return counts, nil
}

func (m *mockJobStore) StatusSummary(_ context.Context) (driven.StatusSummary, error) {
	counts, _ := m.CountByStatus(context.Background(), driven.JobFilter{})
	m.mu.Lock()
	defer m.mu.Unlock()
	last := make(map[model.Platform]model.SyncJob)
	for _, job := range m.finalized {
		last[job.Platform] = job
	}
	return driven.StatusSummary{Counts: counts, LastPerPlatform: last}, nil
}

// --- Mock activity store ---

type mockActivityStore struct {
	mu      sync.Mutex
	upserts []model.Activity
	failOn  map[string]error
}

func newMockActivityStore() *mockActivityStore {
	return &mockActivityStore{failOn: make(map[string]error)}
}

func (m *mockActivityStore) Upsert(_ context.Context, a model.Activity) error {
	if err := m.failOn[a.ExternalID]; err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts = append(m.upserts, a)
	return nil
}

func (m *mockActivityStore) ListByPlatform(_ context.Context, platform model.Platform, _ int) ([]model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Activity
	for _, a := range m.upserts {
		if a.Platform == platform {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockActivityStore) CountByPlatform(_ context.Context) (map[model.Platform]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[model.Platform]int)
	for _, a := range m.upserts {
		counts[a.Platform]++
	}
	return counts, nil
}

// --- Mock snapshot store ---

type mockSnapshotStore struct {
	mu         sync.Mutex
	snaps      map[string]model.PlaytimeSnapshot // key: gameID + "@" + date
	upsertErrs map[string]error                  // key: gameID
}

func newMockSnapshotStore() *mockSnapshotStore {
	return &mockSnapshotStore{
		snaps:      make(map[string]model.PlaytimeSnapshot),
		upsertErrs: make(map[string]error),
	}
}

func (m *mockSnapshotStore) Upsert(_ context.Context, s model.PlaytimeSnapshot) error {
	if err := m.upsertErrs[s.GameID]; err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[s.GameID+"@"+s.Date] = s
	return nil
}

func (m *mockSnapshotStore) LatestBefore(_ context.Context, gameID, date string) (*model.PlaytimeSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *model.PlaytimeSnapshot
	for _, s := range m.snaps {
		if s.GameID != gameID || s.Date >= date {
			continue
		}
		if best == nil || s.Date > best.Date {
			snap := s
			best = &snap
		}
	}
	return best, nil
}

func (m *mockSnapshotStore) History(_ context.Context, gameID, from, to string) ([]model.PlaytimeSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.PlaytimeSnapshot
	for _, s := range m.snaps {
		if s.GameID != gameID {
			continue
		}
		if from != "" && s.Date < from {
			continue
		}
		if to != "" && s.Date > to {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (m *mockSnapshotStore) DailySummary(_ context.Context, date string) ([]model.DailySummaryRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.DailySummaryRow
	for _, s := range m.snaps {
		if s.Date == date {
			out = append(out, model.DailySummaryRow{
				GameID: s.GameID, GameName: s.GameName, DailyDelta: s.DailyDelta, Playtime: s.Playtime,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DailyDelta > out[j].DailyDelta })
	return out, nil
}

func (m *mockSnapshotStore) TotalInRange(_ context.Context, start, end string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, s := range m.snaps {
		if s.Date >= start && s.Date <= end {
			total += s.DailyDelta
		}
	}
	return total, nil
}

// --- Mock platform client ---

type mockPlatformClient struct {
	platform   model.Platform
	probeErr   error
	fetchRaw   driven.RawPayload
	fetchErr   error
	normalized []model.Activity
	normErr    error

	mu           sync.Mutex
	fetchSecrets []string
}

func (m *mockPlatformClient) Platform() model.Platform { return m.platform }

func (m *mockPlatformClient) Probe(_ context.Context, _ string, _ map[string]string) error {
	return m.probeErr
}

func (m *mockPlatformClient) Fetch(_ context.Context, secret string, _ map[string]string) (driven.RawPayload, error) {
	m.mu.Lock()
	m.fetchSecrets = append(m.fetchSecrets, secret)
	m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.fetchRaw, nil
}

func (m *mockPlatformClient) Normalize(_ driven.RawPayload) ([]model.Activity, error) {
	if m.normErr != nil {
		return nil, m.normErr
	}
	return m.normalized, nil
}

// --- Mock playtime source ---

type mockPlaytimeSource struct {
	games []driven.OwnedGame
	err   error
}

func (m *mockPlaytimeSource) FetchOwnedGames(_ context.Context, _ string, _ string) ([]driven.OwnedGame, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.games, nil
}
