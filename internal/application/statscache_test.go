package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kylewilkins/lifesync/internal/application"
	"github.com/kylewilkins/lifesync/internal/domain/model"
)

func TestStatsCacheServesCachedEntry(t *testing.T) {
	jobs := newMockJobStore()
	require.NoError(t, jobs.Finalize(context.Background(), model.SyncJob{
		ID: "job-1", Platform: model.PlatformSteam, Status: model.JobStatusSuccess,
	}))
	cache := application.NewStatsCache(jobs, time.Hour)

	first, err := cache.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Counts[model.JobStatusSuccess])

	// A write that does not invalidate stays invisible until the TTL lapses.
	require.NoError(t, jobs.Finalize(context.Background(), model.SyncJob{
		ID: "job-2", Platform: model.PlatformSteam, Status: model.JobStatusFailed,
	}))

	second, err := cache.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Counts[model.JobStatusFailed])
}

func TestStatsCacheInvalidate(t *testing.T) {
	jobs := newMockJobStore()
	cache := application.NewStatsCache(jobs, time.Hour)

	_, err := cache.Summary(context.Background())
	require.NoError(t, err)

	require.NoError(t, jobs.Finalize(context.Background(), model.SyncJob{
		ID: "job-1", Platform: model.PlatformLastFM, Status: model.JobStatusPartial,
	}))
	cache.Invalidate()

	summary, err := cache.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Counts[model.JobStatusPartial])
	assert.Equal(t, "job-1", summary.LastPerPlatform[model.PlatformLastFM].ID)
}

func TestStatsCacheZeroTTLAlwaysReloads(t *testing.T) {
	jobs := newMockJobStore()
	cache := application.NewStatsCache(jobs, 0)

	_, err := cache.Summary(context.Background())
	require.NoError(t, err)

	require.NoError(t, jobs.Finalize(context.Background(), model.SyncJob{
		ID: "job-1", Platform: model.PlatformSteam, Status: model.JobStatusSuccess,
	}))

	summary, err := cache.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Counts[model.JobStatusSuccess])
}
