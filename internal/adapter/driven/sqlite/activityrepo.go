package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kylewilkins/lifesync/internal/domain/model"
	"github.com/kylewilkins/lifesync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ActivityStore = (*ActivityRepo)(nil)

// ActivityRepo is the SQLite implementation of the ActivityStore port.
type ActivityRepo struct {
	db *DB
}

// NewActivityRepo creates a new ActivityRepo backed by the given DB.
func NewActivityRepo(db *DB) *ActivityRepo {
	return &ActivityRepo{db: db}
}

// Upsert inserts or updates a record keyed by (platform, external id).
func (r *ActivityRepo) Upsert(ctx context.Context, a model.Activity) error {
	if a.ExternalID == "" {
		return fmt.Errorf("upsert activity: empty external id")
	}

	metadata := a.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal activity metadata: %w", err)
	}

	const query = `
		INSERT INTO activities (
			platform, external_id, type, title, cover, url, occurred_at,
			progress, rating, duration, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(platform, external_id) DO UPDATE SET
			type = excluded.type,
			title = excluded.title,
			cover = excluded.cover,
			url = excluded.url,
			occurred_at = excluded.occurred_at,
			progress = excluded.progress,
			rating = excluded.rating,
			duration = excluded.duration,
			metadata = excluded.metadata
	`
	_, err = r.db.Writer.ExecContext(ctx, query,
		string(a.Platform), a.ExternalID, a.Type, a.Title, a.Cover, a.URL,
		formatTime(a.OccurredAt), a.Progress, a.Rating, a.Duration, string(metaJSON))
	if err != nil {
		return fmt.Errorf("upsert activity %s/%s: %w", a.Platform, a.ExternalID, err)
	}
	return nil
}

// ListByPlatform returns records for a platform, most recent first.
func (r *ActivityRepo) ListByPlatform(ctx context.Context, platform model.Platform, limit int) ([]model.Activity, error) {
	if limit <= 0 {
		limit = 50
	}

	const query = `
		SELECT platform, external_id, type, title, cover, url, occurred_at,
		       progress, rating, duration, metadata
		FROM activities
		WHERE platform = ?
		ORDER BY occurred_at DESC
		LIMIT ?
	`
	rows, err := r.db.Reader.QueryContext(ctx, query, string(platform), limit)
	if err != nil {
		return nil, fmt.Errorf("list activities for %s: %w", platform, err)
	}
	defer rows.Close()

	var activities []model.Activity
	for rows.Next() {
		var (
			a          model.Activity
			platformS  string
			occurredAt string
			metaJSON   string
		)
		err := rows.Scan(&platformS, &a.ExternalID, &a.Type, &a.Title, &a.Cover,
			&a.URL, &occurredAt, &a.Progress, &a.Rating, &a.Duration, &metaJSON)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		a.Platform = model.Platform(platformS)
		if a.OccurredAt, err = parseTime(occurredAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metaJSON), &a.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal activity metadata: %w", err)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return activities, nil
}

// CountByPlatform returns the number of stored records per platform.
func (r *ActivityRepo) CountByPlatform(ctx context.Context) (map[model.Platform]int, error) {
	const query = `SELECT platform, COUNT(*) FROM activities GROUP BY platform`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count activities: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Platform]int)
	for rows.Next() {
		var platform string
		var n int
		if err := rows.Scan(&platform, &n); err != nil {
			return nil, fmt.Errorf("scan activity count: %w", err)
		}
		counts[model.Platform(platform)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity counts: %w", err)
	}
	return counts, nil
}
