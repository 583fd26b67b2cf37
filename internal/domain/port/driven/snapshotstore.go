package driven

import (
	"context"

	"github.com/kylewilkins/lifesync/internal/domain/model"
)

// SnapshotStore defines the driven port for playtime snapshot persistence.
type SnapshotStore interface {
	// Upsert inserts or replaces the snapshot for (game id, date). The
	// uniqueness of that pair is what makes same-day re-runs idempotent.
	Upsert(ctx context.Context, s model.PlaytimeSnapshot) error

	// LatestBefore returns the most recent snapshot for a game with a date
	// strictly before the given day, or nil when none exists. A same-day row
	// written earlier in the run must never be returned as "previous".
	LatestBefore(ctx context.Context, gameID, date string) (*model.PlaytimeSnapshot, error)

	// History returns snapshots for a game within [from, to], oldest first.
	// Empty bounds are open-ended.
	History(ctx context.Context, gameID, from, to string) ([]model.PlaytimeSnapshot, error)

	// DailySummary returns the entities touched on a day with their deltas.
	DailySummary(ctx context.Context, date string) ([]model.DailySummaryRow, error)

	// TotalInRange sums daily deltas (never raw cumulative values, which
	// would double count) across all games within [start, end].
	TotalInRange(ctx context.Context, start, end string) (int, error)
}
