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

func testCredential(id string, platform model.Platform) model.Credential {
	now := time.Now().UTC().Truncate(time.Second)
	return model.Credential{
		ID:             id,
		Platform:       platform,
		Type:           model.CredentialTypeAPIKey,
		EncryptedValue: "lsv1:dGVzdA==",
		Metadata:       map[string]string{"steam_id": "7656119"},
		IsValid:        true,
		AutoSync:       true,
		SyncFrequency:  model.FrequencyTwiceDaily,
		NextCheckAt:    now.Add(12 * time.Hour),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func TestCredentialRepo_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	cred := testCredential("cred-1", model.PlatformSteam)
	require.NoError(t, repo.Create(ctx, cred))

	got, err := repo.GetByID(ctx, "cred-1")
	require.NoError(t, err)
	assert.Equal(t, cred.Platform, got.Platform)
	assert.Equal(t, cred.Type, got.Type)
	assert.Equal(t, cred.EncryptedValue, got.EncryptedValue)
	assert.Equal(t, "7656119", got.Meta("steam_id"))
	assert.True(t, got.IsValid)
	assert.True(t, got.AutoSync)
	assert.Equal(t, model.FrequencyTwiceDaily, got.SyncFrequency)
	assert.True(t, got.NextCheckAt.Equal(cred.NextCheckAt))
	assert.Nil(t, got.LastValidatedAt)
}

func TestCredentialRepo_GetMissing(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)

	_, err := repo.GetByID(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrCredentialNotFound)
}

func TestCredentialRepo_ListFilter(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testCredential("a", model.PlatformSteam)))
	require.NoError(t, repo.Create(ctx, testCredential("b", model.PlatformGitHub)))
	invalid := testCredential("c", model.PlatformGitHub)
	invalid.IsValid = false
	require.NoError(t, repo.Create(ctx, invalid))

	all, err := repo.List(ctx, driven.CredentialFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	githubOnly, err := repo.List(ctx, driven.CredentialFilter{Platform: model.PlatformGitHub})
	require.NoError(t, err)
	assert.Len(t, githubOnly, 2)

	valid := true
	validGitHub, err := repo.List(ctx, driven.CredentialFilter{Platform: model.PlatformGitHub, Valid: &valid})
	require.NoError(t, err)
	require.Len(t, validGitHub, 1)
	assert.Equal(t, "b", validGitHub[0].ID)
}

func TestCredentialRepo_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testCredential("a", model.PlatformSteam)))
	require.NoError(t, repo.Delete(ctx, "a"))

	_, err := repo.GetByID(ctx, "a")
	assert.ErrorIs(t, err, model.ErrCredentialNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, "a"), model.ErrCredentialNotFound)
}

func TestCredentialRepo_UpdateValidation(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testCredential("a", model.PlatformLastFM)))

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.UpdateValidation(ctx, "a", false, "invalid api key", now))

	got, err := repo.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.False(t, got.IsValid)
	assert.Equal(t, "invalid api key", got.LastError)
	require.NotNil(t, got.LastValidatedAt)
	assert.True(t, got.LastValidatedAt.Equal(now))

	// A later successful probe clears the error.
	require.NoError(t, repo.UpdateValidation(ctx, "a", true, "", now.Add(time.Hour)))
	got, err = repo.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.True(t, got.IsValid)
	assert.Empty(t, got.LastError)
}

func TestCredentialRepo_RecordUsage(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, testCredential("a", model.PlatformSteam)))

	next := time.Now().UTC().Add(12 * time.Hour).Truncate(time.Second)
	require.NoError(t, repo.RecordUsage(ctx, "a", true, next))
	require.NoError(t, repo.RecordUsage(ctx, "a", false, next))

	got, err := repo.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, got.UsageCount)
	assert.Equal(t, 1, got.FailureCount)
	assert.True(t, got.NextCheckAt.Equal(next))
}

func TestCredentialRepo_ListDue(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	due := testCredential("due", model.PlatformSteam)
	due.NextCheckAt = now.Add(-time.Hour)
	require.NoError(t, repo.Create(ctx, due))

	future := testCredential("future", model.PlatformGitHub)
	future.NextCheckAt = now.Add(time.Hour)
	require.NoError(t, repo.Create(ctx, future))

	invalid := testCredential("invalid", model.PlatformLastFM)
	invalid.IsValid = false
	invalid.NextCheckAt = now.Add(-time.Hour)
	require.NoError(t, repo.Create(ctx, invalid))

	manual := testCredential("manual", model.PlatformLastFM)
	manual.AutoSync = false
	manual.NextCheckAt = now.Add(-time.Hour)
	require.NoError(t, repo.Create(ctx, manual))

	got, err := repo.ListDue(ctx, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "due", got[0].ID)
}
