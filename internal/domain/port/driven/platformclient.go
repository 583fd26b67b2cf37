package driven

import (
	"context"

	"github.com/kylewilkins/lifesync/internal/domain/model"
)

// RawPayload is the opaque bytes a platform fetch produces. Keeping it raw
// lets Normalize stay pure: parsing and mapping with no I/O.
type RawPayload []byte

// PlatformClient is the adapter contract for one external platform. One
// implementation exists per platform variant; the application registry binds
// each model.Platform value to its client.
//
// The decrypted secret is passed per call and must not be retained beyond
// the call's scope.
type PlatformClient interface {
	// Platform returns the platform this client serves.
	Platform() model.Platform

	// Probe performs a lightweight validation of the secret. It returns nil
	// on success, *model.AuthRejectedError when the platform explicitly
	// rejects the credential, and *model.NetworkError for transport
	// failures (which are not proof of invalidity).
	Probe(ctx context.Context, secret string, meta map[string]string) error

	// Fetch retrieves the platform's raw payload using the decrypted secret.
	// Errors follow the same taxonomy as Probe.
	Fetch(ctx context.Context, secret string, meta map[string]string) (RawPayload, error)

	// Normalize maps a raw payload to canonical activity records. It is pure
	// and performs no I/O.
	Normalize(raw RawPayload) ([]model.Activity, error)
}

// OwnedGame is one entry of a cumulative playtime feed.
type OwnedGame struct {
	AppID           int64
	Name            string
	PlaytimeForever int // Cumulative minutes.
	PlaytimeRecent  int // Minutes in the trailing two-week window.
	LastPlayedUnix  int64
	IconHash        string
}

// PlaytimeSource is the narrower feed the snapshot pipeline consumes. The
// steam client implements it by parsing the same payload its Fetch produces.
type PlaytimeSource interface {
	FetchOwnedGames(ctx context.Context, secret, platformUserID string) ([]OwnedGame, error)
}
