package application

import (
	"context"
	"sync"
	"time"

	"github.com/kylewilkins/lifesync/internal/domain/port/driven"
)

// StatsCache serves the dashboard's aggregate job view from memory, reloading
// from the job log when the entry expires or a completed job invalidates it.
// The TTL bounds staleness for readers that race an invalidation.
type StatsCache struct {
	jobs driven.JobStore
	ttl  time.Duration
	now  func() time.Time

	mu        sync.Mutex
	summary   driven.StatusSummary
	loadedAt  time.Time
	haveEntry bool
}

// NewStatsCache creates a StatsCache over the job store with the given TTL.
func NewStatsCache(jobs driven.JobStore, ttl time.Duration) *StatsCache {
	return &StatsCache{jobs: jobs, ttl: ttl, now: time.Now}
}

// Summary returns the cached aggregate, loading it on a miss.
func (c *StatsCache) Summary(ctx context.Context) (driven.StatusSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.haveEntry && c.now().Sub(c.loadedAt) < c.ttl {
		return c.summary, nil
	}

	summary, err := c.jobs.StatusSummary(ctx)
	if err != nil {
		return driven.StatusSummary{}, err
	}
	c.summary = summary
	c.loadedAt = c.now()
	c.haveEntry = true
	return summary, nil
}

// Invalidate drops the cached entry so the next read observes fresh data.
// Called whenever a job completes with at least one changed record.
func (c *StatsCache) Invalidate() {
	c.mu.Lock()
	c.haveEntry = false
	c.mu.Unlock()
}
