package driven

import (
	"context"

	"github.com/kylewilkins/lifesync/internal/domain/model"
)

// ActivityStore defines the driven port for normalized activity records.
type ActivityStore interface {
	// Upsert inserts or updates a record keyed by (platform, external id).
	// Re-ingesting the same external id updates in place.
	Upsert(ctx context.Context, a model.Activity) error

	// ListByPlatform returns records for a platform, most recent first.
	ListByPlatform(ctx context.Context, platform model.Platform, limit int) ([]model.Activity, error)

	// CountByPlatform returns the number of stored records per platform.
	CountByPlatform(ctx context.Context) (map[model.Platform]int, error)
}
