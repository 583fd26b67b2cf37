package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kylewilkins/lifesync/internal/domain/model"
	"github.com/kylewilkins/lifesync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SnapshotStore = (*SnapshotRepo)(nil)

// SnapshotRepo is the SQLite implementation of the SnapshotStore port.
// The (game_id, date) primary key carries the one-snapshot-per-day invariant.
type SnapshotRepo struct {
	db *DB
}

// NewSnapshotRepo creates a new SnapshotRepo backed by the given DB.
func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

// Upsert inserts or replaces the snapshot for (game id, date).
func (r *SnapshotRepo) Upsert(ctx context.Context, s model.PlaytimeSnapshot) error {
	const query = `
		INSERT INTO playtime_snapshots (
			game_id, date, platform_user_id, game_name, playtime, daily_delta, snapshot_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(game_id, date) DO UPDATE SET
			platform_user_id = excluded.platform_user_id,
			game_name = excluded.game_name,
			playtime = excluded.playtime,
			daily_delta = excluded.daily_delta,
			snapshot_at = excluded.snapshot_at
	`
	_, err := r.db.Writer.ExecContext(ctx, query,
		s.GameID, s.Date, s.PlatformUserID, s.GameName, s.Playtime, s.DailyDelta,
		formatTime(s.SnapshotAt))
	if err != nil {
		return fmt.Errorf("upsert snapshot %s@%s: %w", s.GameID, s.Date, err)
	}
	return nil
}

// LatestBefore returns the most recent snapshot for a game strictly before
// the given day, or nil. Same-day rows are excluded so that re-running a
// day's snapshot job computes its delta against the prior day, not against
// the value the first run just wrote.
func (r *SnapshotRepo) LatestBefore(ctx context.Context, gameID, date string) (*model.PlaytimeSnapshot, error) {
	const query = snapshotSelect + `
		WHERE game_id = ? AND date < ?
		ORDER BY date DESC
		LIMIT 1
	`
	snap, err := scanSnapshot(r.db.Reader.QueryRowContext(ctx, query, gameID, date))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot before %s for %s: %w", date, gameID, err)
	}
	return &snap, nil
}

// History returns snapshots for a game within [from, to], oldest first.
func (r *SnapshotRepo) History(ctx context.Context, gameID, from, to string) ([]model.PlaytimeSnapshot, error) {
	query := snapshotSelect + ` WHERE game_id = ?`
	args := []any{gameID}
	if from != "" {
		query += " AND date >= ?"
		args = append(args, from)
	}
	if to != "" {
		query += " AND date <= ?"
		args = append(args, to)
	}
	query += " ORDER BY date"

	rows, err := r.db.Reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("snapshot history for %s: %w", gameID, err)
	}
	defer rows.Close()

	var snaps []model.PlaytimeSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return snaps, nil
}

// DailySummary returns the entities touched on a day with their deltas,
// largest delta first.
func (r *SnapshotRepo) DailySummary(ctx context.Context, date string) ([]model.DailySummaryRow, error) {
	const query = `
		SELECT game_id, game_name, daily_delta, playtime
		FROM playtime_snapshots
		WHERE date = ?
		ORDER BY daily_delta DESC, game_id
	`
	rows, err := r.db.Reader.QueryContext(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("daily summary %s: %w", date, err)
	}
	defer rows.Close()

	var summary []model.DailySummaryRow
	for rows.Next() {
		var row model.DailySummaryRow
		if err := rows.Scan(&row.GameID, &row.GameName, &row.DailyDelta, &row.Playtime); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		summary = append(summary, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary rows: %w", err)
	}
	return summary, nil
}

// TotalInRange sums daily deltas across all games within [start, end].
// Summing deltas rather than cumulative counters avoids double counting.
func (r *SnapshotRepo) TotalInRange(ctx context.Context, start, end string) (int, error) {
	const query = `
		SELECT COALESCE(SUM(daily_delta), 0)
		FROM playtime_snapshots
		WHERE date >= ? AND date <= ?
	`
	var total int
	if err := r.db.Reader.QueryRowContext(ctx, query, start, end).Scan(&total); err != nil {
		return 0, fmt.Errorf("total in range [%s, %s]: %w", start, end, err)
	}
	return total, nil
}

const snapshotSelect = `
	SELECT game_id, date, platform_user_id, game_name, playtime, daily_delta, snapshot_at
	FROM playtime_snapshots
`

func scanSnapshot(row rowScanner) (model.PlaytimeSnapshot, error) {
	var (
		snap       model.PlaytimeSnapshot
		snapshotAt string
	)
	err := row.Scan(&snap.GameID, &snap.Date, &snap.PlatformUserID, &snap.GameName,
		&snap.Playtime, &snap.DailyDelta, &snapshotAt)
	if err != nil {
		return model.PlaytimeSnapshot{}, err
	}
	if snap.SnapshotAt, err = parseTime(snapshotAt); err != nil {
		return model.PlaytimeSnapshot{}, err
	}
	return snap, nil
}
