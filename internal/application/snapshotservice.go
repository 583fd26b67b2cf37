package application

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/kylewilkins/lifesync/internal/crypto"
	"github.com/kylewilkins/lifesync/internal/domain/model"
	"github.com/kylewilkins/lifesync/internal/domain/port/driven"
)

// SnapshotService maintains per-day snapshots of cumulative playtime
// counters and derives clamped non-negative daily deltas from them.
type SnapshotService struct {
	source    driven.PlaytimeSource
	snapshots driven.SnapshotStore
	creds     driven.CredentialStore
	vault     *crypto.Vault
	now       func() time.Time
}

// NewSnapshotService creates a SnapshotService with all required dependencies.
func NewSnapshotService(
	source driven.PlaytimeSource,
	snapshots driven.SnapshotStore,
	creds driven.CredentialStore,
	vault *crypto.Vault,
) *SnapshotService {
	return &SnapshotService{
		source:    source,
		snapshots: snapshots,
		creds:     creds,
		vault:     vault,
		now:       time.Now,
	}
}

// SnapshotRun reports one snapshot sweep.
type SnapshotRun struct {
	Date     string
	Games    int
	Written  int
	Failed   int
	Errors   []string
	Duration time.Duration
}

// CreateSnapshots fetches the current cumulative counters for every game of
// the credential's platform user and upserts today's snapshot per game. The
// delta is computed against the most recent snapshot strictly before today,
// so re-running within the same day cannot re-baseline or double-count.
// Per-game failures are isolated; the sweep always attempts every entity.
func (s *SnapshotService) CreateSnapshots(ctx context.Context, credentialID string) (SnapshotRun, error) {
	start := s.now().UTC()
	run := SnapshotRun{Date: model.DateOf(start)}

	cred, err := s.creds.GetByID(ctx, credentialID)
	if err != nil {
		return run, err
	}
	platformUserID := cred.Meta("steam_id")
	if platformUserID == "" {
		return run, fmt.Errorf("credential %s has no platform user id", credentialID)
	}

	games, err := s.fetchGames(ctx, cred, platformUserID)
	if err != nil {
		return run, err
	}
	run.Games = len(games)

	for _, game := range games {
		if err := s.snapshotGame(ctx, game, platformUserID, run.Date, start); err != nil {
			run.Failed++
			run.Errors = append(run.Errors, err.Error())
			slog.Error("snapshot failed", "game_id", game.AppID, "error", err)
			continue
		}
		run.Written++
	}

	run.Duration = s.now().UTC().Sub(start)
	slog.Info("snapshot sweep finished",
		"date", run.Date,
		"games", run.Games,
		"written", run.Written,
		"failed", run.Failed,
		"duration", run.Duration.Round(time.Millisecond),
	)
	return run, nil
}

// fetchGames bounds the plaintext secret's lifetime to the fetch call.
func (s *SnapshotService) fetchGames(ctx context.Context, cred model.Credential, platformUserID string) ([]driven.OwnedGame, error) {
	secret, err := s.vault.Decrypt(cred.EncryptedValue)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential %s: %w", cred.ID, err)
	}
	return s.source.FetchOwnedGames(ctx, secret, platformUserID)
}

func (s *SnapshotService) snapshotGame(ctx context.Context, game driven.OwnedGame, platformUserID, date string, at time.Time) error {
	gameID := strconv.FormatInt(game.AppID, 10)

	prev, err := s.snapshots.LatestBefore(ctx, gameID, date)
	if err != nil {
		return fmt.Errorf("load previous snapshot for %s: %w", gameID, err)
	}

	prevPlaytime := -1
	if prev != nil {
		prevPlaytime = prev.Playtime
	}

	snap := model.PlaytimeSnapshot{
		GameID:         gameID,
		Date:           date,
		PlatformUserID: platformUserID,
		GameName:       game.Name,
		Playtime:       game.PlaytimeForever,
		DailyDelta:     model.DeltaFrom(game.PlaytimeForever, prevPlaytime),
		SnapshotAt:     at,
	}
	if err := s.snapshots.Upsert(ctx, snap); err != nil {
		return fmt.Errorf("upsert snapshot for %s: %w", gameID, err)
	}
	return nil
}

// History returns a game's snapshots within [from, to], oldest first.
func (s *SnapshotService) History(ctx context.Context, gameID, from, to string) ([]model.PlaytimeSnapshot, error) {
	return s.snapshots.History(ctx, gameID, from, to)
}

// DailySummary returns the games touched on a day with their deltas.
func (s *SnapshotService) DailySummary(ctx context.Context, date string) ([]model.DailySummaryRow, error) {
	return s.snapshots.DailySummary(ctx, date)
}

// TotalInRange sums daily deltas across all games within [start, end].
func (s *SnapshotService) TotalInRange(ctx context.Context, start, end string) (int, error) {
	return s.snapshots.TotalInRange(ctx, start, end)
}
