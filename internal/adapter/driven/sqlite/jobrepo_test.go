package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylewilkins/lifesync/internal/domain/model"
	"github.com/kylewilkins/lifesync/internal/domain/port/driven"
)

func runningJob(id string, platform model.Platform, startedAt time.Time) model.SyncJob {
	return model.SyncJob{
		ID:           id,
		Platform:     platform,
		CredentialID: "cred-1",
		Status:       model.JobStatusRunning,
		StartedAt:    startedAt,
	}
}

func TestJobRepo_CreateAndFinalize(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepo(db)
	ctx := context.Background()
	started := time.Now().UTC().Truncate(time.Second)

	job := runningJob("job-1", model.PlatformSteam, started)
	require.NoError(t, repo.Create(ctx, job))

	running, err := repo.GetRunning(ctx, model.PlatformSteam)
	require.NoError(t, err)
	require.NotNil(t, running)
	assert.Equal(t, "job-1", running.ID)

	job.Status = model.JobStatusPartial
	job.ItemsTotal = 10
	job.ItemsSuccess = 7
	job.ItemsFailed = 3
	job.Duration = 1500 * time.Millisecond
	job.Errors = []string{"upsert item-3: disk full"}
	require.NoError(t, repo.Finalize(ctx, job))

	running, err = repo.GetRunning(ctx, model.PlatformSteam)
	require.NoError(t, err)
	assert.Nil(t, running)

	history, err := repo.History(ctx, driven.JobFilter{Platform: model.PlatformSteam}, 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	got := history[0]
	assert.Equal(t, model.JobStatusPartial, got.Status)
	assert.Equal(t, 10, got.ItemsTotal)
	assert.Equal(t, 7, got.ItemsSuccess)
	assert.Equal(t, 3, got.ItemsFailed)
	assert.Equal(t, got.ItemsTotal, got.ItemsSuccess+got.ItemsFailed)
	assert.Equal(t, 1500*time.Millisecond, got.Duration)
	assert.Equal(t, []string{"upsert item-3: disk full"}, got.Errors)
}

func TestJobRepo_FinalizeTwice(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepo(db)
	ctx := context.Background()

	job := runningJob("job-1", model.PlatformSteam, time.Now().UTC())
	require.NoError(t, repo.Create(ctx, job))

	job.Status = model.JobStatusSuccess
	require.NoError(t, repo.Finalize(ctx, job))

	// Finalized rows are immutable; a second finalize must fail.
	job.Status = model.JobStatusFailed
	assert.Error(t, repo.Finalize(ctx, job))

	history, err := repo.History(ctx, driven.JobFilter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, model.JobStatusSuccess, history[0].Status)
}

func TestJobRepo_GetRunningPerPlatform(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, runningJob("job-a", model.PlatformSteam, time.Now().UTC())))

	other, err := repo.GetRunning(ctx, model.PlatformGitHub)
	require.NoError(t, err)
	assert.Nil(t, other, "running job on one platform must not block another")
}

func TestJobRepo_MarkStaleRunning(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, runningJob("stale", model.PlatformSteam, now.Add(-2*time.Hour))))
	require.NoError(t, repo.Create(ctx, runningJob("fresh", model.PlatformGitHub, now)))

	swept, err := repo.MarkStaleRunning(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	steam, err := repo.GetRunning(ctx, model.PlatformSteam)
	require.NoError(t, err)
	assert.Nil(t, steam)

	github, err := repo.GetRunning(ctx, model.PlatformGitHub)
	require.NoError(t, err)
	require.NotNil(t, github)
	assert.Equal(t, "fresh", github.ID)
}

func TestJobRepo_HistoryPagination(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepo(db)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		job := runningJob("job-"+string(rune('a'+i)), model.PlatformSteam, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(ctx, job))
		job.Status = model.JobStatusSuccess
		require.NoError(t, repo.Finalize(ctx, job))
	}

	page1, err := repo.History(ctx, driven.JobFilter{}, 2, 0)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	assert.Equal(t, "job-e", page1[0].ID, "newest first")

	page2, err := repo.History(ctx, driven.JobFilter{}, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, "job-c", page2[0].ID)
}

func TestJobRepo_HistoryByCredential(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepo(db)
	ctx := context.Background()

	jobA := runningJob("a", model.PlatformSteam, time.Now().UTC())
	jobA.CredentialID = "cred-a"
	require.NoError(t, repo.Create(ctx, jobA))

	jobB := runningJob("b", model.PlatformSteam, time.Now().UTC())
	jobB.CredentialID = "cred-b"
	require.NoError(t, repo.Create(ctx, jobB))

	got, err := repo.History(ctx, driven.JobFilter{CredentialID: "cred-a"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
}

func TestJobRepo_StatusSummary(t *testing.T) {
	db := setupTestDB(t)
	repo := NewJobRepo(db)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	finalize := func(id string, platform model.Platform, status model.JobStatus, at time.Time) {
		job := runningJob(id, platform, at)
		require.NoError(t, repo.Create(ctx, job))
		job.Status = status
		require.NoError(t, repo.Finalize(ctx, job))
	}

	finalize("s1", model.PlatformSteam, model.JobStatusSuccess, base)
	finalize("s2", model.PlatformSteam, model.JobStatusFailed, base.Add(time.Minute))
	finalize("g1", model.PlatformGitHub, model.JobStatusPartial, base)

	summary, err := repo.StatusSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Counts[model.JobStatusSuccess])
	assert.Equal(t, 1, summary.Counts[model.JobStatusFailed])
	assert.Equal(t, 1, summary.Counts[model.JobStatusPartial])

	require.Contains(t, summary.LastPerPlatform, model.PlatformSteam)
	assert.Equal(t, "s2", summary.LastPerPlatform[model.PlatformSteam].ID)
	assert.Equal(t, "g1", summary.LastPerPlatform[model.PlatformGitHub].ID)
}
