// Package steam implements the PlatformClient port against the Steam Web API.
package steam

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kylewilkins/lifesync/internal/domain/model"
	"github.com/kylewilkins/lifesync/internal/domain/port/driven"
)

const (
	defaultBaseURL = "https://api.steampowered.com"
	userAgent      = "lifesync/1.0"

	// MetaSteamID is the credential metadata key carrying the 64-bit Steam id.
	MetaSteamID = "steam_id"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.PlatformClient = (*Client)(nil)
	_ driven.PlaytimeSource = (*Client)(nil)
)

// Client fetches owned games (with cumulative playtime) for a Steam user.
// The API key is the decrypted credential secret, passed per call.
type Client struct {
	httpClient *http.Client
	baseURL    string
	now        func() time.Time
}

// NewClient creates a Steam client with a 15 second request timeout.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    defaultBaseURL,
		now:        time.Now,
	}
}

// NewClientWithBaseURL creates a Client against a custom base URL and clock,
// for httptest servers.
func NewClientWithBaseURL(httpClient *http.Client, baseURL string, now func() time.Time) *Client {
	return &Client{httpClient: httpClient, baseURL: baseURL, now: now}
}

// Platform returns model.PlatformSteam.
func (c *Client) Platform() model.Platform { return model.PlatformSteam }

// ownedGamesResponse mirrors IPlayerService/GetOwnedGames.
type ownedGamesResponse struct {
	Response struct {
		GameCount int         `json:"game_count"`
		Games     []ownedGame `json:"games"`
	} `json:"response"`
}

type ownedGame struct {
	AppID           int64  `json:"appid"`
	Name            string `json:"name"`
	PlaytimeForever int    `json:"playtime_forever"`
	Playtime2Weeks  int    `json:"playtime_2weeks"`
	RTimeLastPlayed int64  `json:"rtime_last_played"`
	ImgIconURL      string `json:"img_icon_url"`
}

// Probe validates an API key with a minimal GetOwnedGames call.
func (c *Client) Probe(ctx context.Context, secret string, meta map[string]string) error {
	_, err := c.Fetch(ctx, secret, meta)
	return err
}

// Fetch retrieves the raw owned-games payload for the credential's Steam id.
func (c *Client) Fetch(ctx context.Context, secret string, meta map[string]string) (driven.RawPayload, error) {
	steamID := meta[MetaSteamID]
	if steamID == "" {
		return nil, fmt.Errorf("steam credential metadata missing %q", MetaSteamID)
	}

	params := url.Values{
		"key":                       {secret},
		"steamid":                   {steamID},
		"include_appinfo":           {"1"},
		"include_played_free_games": {"1"},
		"format":                    {"json"},
	}
	reqURL := c.baseURL + "/IPlayerService/GetOwnedGames/v0001/?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &model.NetworkError{Platform: model.PlatformSteam, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &model.AuthRejectedError{
			Platform: model.PlatformSteam,
			Reason:   fmt.Sprintf("steam api returned %d", resp.StatusCode),
		}
	case resp.StatusCode != http.StatusOK:
		return nil, &model.NetworkError{
			Platform: model.PlatformSteam,
			Err:      fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, &model.NetworkError{Platform: model.PlatformSteam, Err: err}
	}
	return driven.RawPayload(body), nil
}

// Normalize maps the owned-games payload to canonical activity records.
// Games never played are skipped.
func (c *Client) Normalize(raw driven.RawPayload) ([]model.Activity, error) {
	var parsed ownedGamesResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse owned games payload: %w", err)
	}

	activities := make([]model.Activity, 0, len(parsed.Response.Games))
	for _, g := range parsed.Response.Games {
		if g.PlaytimeForever == 0 {
			continue
		}
		appID := strconv.FormatInt(g.AppID, 10)
		activities = append(activities, model.Activity{
			Platform:   model.PlatformSteam,
			ExternalID: appID,
			Type:       "game",
			Title:      g.Name,
			Cover:      iconURL(g.AppID, g.ImgIconURL),
			URL:        "https://store.steampowered.com/app/" + appID,
			OccurredAt: c.lastPlayed(g.RTimeLastPlayed),
			Progress:   ActivityPercent(g.PlaytimeForever, g.Playtime2Weeks),
			Duration:   g.PlaytimeForever,
			Metadata: map[string]string{
				"playtime_2weeks": strconv.Itoa(g.Playtime2Weeks),
			},
		})
	}
	return activities, nil
}

// FetchOwnedGames is the cumulative-counter feed for the snapshot pipeline.
// It parses the same payload Fetch produces.
func (c *Client) FetchOwnedGames(ctx context.Context, secret, platformUserID string) ([]driven.OwnedGame, error) {
	raw, err := c.Fetch(ctx, secret, map[string]string{MetaSteamID: platformUserID})
	if err != nil {
		return nil, err
	}

	var parsed ownedGamesResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse owned games payload: %w", err)
	}

	games := make([]driven.OwnedGame, 0, len(parsed.Response.Games))
	for _, g := range parsed.Response.Games {
		games = append(games, driven.OwnedGame{
			AppID:           g.AppID,
			Name:            g.Name,
			PlaytimeForever: g.PlaytimeForever,
			PlaytimeRecent:  g.Playtime2Weeks,
			LastPlayedUnix:  g.RTimeLastPlayed,
			IconHash:        g.ImgIconURL,
		})
	}
	return games, nil
}

// ActivityPercent is the share of lifetime playtime accrued in the trailing
// two-week window: min(100, round(recent/forever*100)), 0 when forever is 0.
func ActivityPercent(forever, recent int) int {
	if forever <= 0 {
		return 0
	}
	pct := int(math.Round(float64(recent) / float64(forever) * 100))
	if pct > 100 {
		return 100
	}
	return pct
}

// lastPlayed converts the upstream epoch, treating zero or negative values as
// missing rather than as epoch zero.
func (c *Client) lastPlayed(epoch int64) time.Time {
	if epoch <= 0 {
		return c.now().UTC()
	}
	return time.Unix(epoch, 0).UTC()
}

func iconURL(appID int64, hash string) string {
	if hash == "" {
		return ""
	}
	return fmt.Sprintf("https://media.steampowered.com/steamcommunity/public/images/apps/%d/%s.jpg", appID, hash)
}
