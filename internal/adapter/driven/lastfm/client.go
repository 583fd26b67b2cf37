// Package lastfm implements the PlatformClient port against the Last.fm API.
package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kylewilkins/lifesync/internal/domain/model"
	"github.com/kylewilkins/lifesync/internal/domain/port/driven"
)

const (
	defaultBaseURL = "https://ws.audioscrobbler.com/2.0/"
	userAgent      = "lifesync/1.0"

	// MetaUsername is the credential metadata key carrying the Last.fm user.
	MetaUsername = "username"
)

// Last.fm API error codes that prove the credential itself is bad.
const (
	errCodeInvalidParams = 6
	errCodeInvalidAPIKey = 10
	errCodeSuspendedKey  = 26
)

// Compile-time interface satisfaction check.
var _ driven.PlatformClient = (*Client)(nil)

// Client fetches recently played tracks for a Last.fm user. The API key is
// the decrypted credential secret, passed per call.
type Client struct {
	httpClient *http.Client
	baseURL    string
	now        func() time.Time
}

// NewClient creates a Last.fm client with a 10 second request timeout.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    defaultBaseURL,
		now:        time.Now,
	}
}

// NewClientWithBaseURL creates a Client against a custom base URL and clock,
// for httptest servers.
func NewClientWithBaseURL(httpClient *http.Client, baseURL string, now func() time.Time) *Client {
	return &Client{httpClient: httpClient, baseURL: baseURL, now: now}
}

// Platform returns model.PlatformLastFM.
func (c *Client) Platform() model.Platform { return model.PlatformLastFM }

type recentTracksResponse struct {
	RecentTracks struct {
		Track []recentTrack `json:"track"`
	} `json:"recenttracks"`
	// Error fields are present on failure responses.
	Error   int    `json:"error"`
	Message string `json:"message"`
}

type recentTrack struct {
	Name   string `json:"name"`
	MBID   string `json:"mbid"`
	URL    string `json:"url"`
	Artist struct {
		Text string `json:"#text"`
	} `json:"artist"`
	Album struct {
		Text string `json:"#text"`
	} `json:"album"`
	Image []struct {
		Size string `json:"size"`
		Text string `json:"#text"`
	} `json:"image"`
	Date *struct {
		UTS string `json:"uts"`
	} `json:"date"`
}

// Probe validates the API key with a one-track fetch.
func (c *Client) Probe(ctx context.Context, secret string, meta map[string]string) error {
	_, err := c.fetch(ctx, secret, meta, 1)
	return err
}

// Fetch retrieves the raw recent-tracks payload for the credential's user.
func (c *Client) Fetch(ctx context.Context, secret string, meta map[string]string) (driven.RawPayload, error) {
	return c.fetch(ctx, secret, meta, 50)
}

func (c *Client) fetch(ctx context.Context, secret string, meta map[string]string, limit int) (driven.RawPayload, error) {
	username := meta[MetaUsername]
	if username == "" {
		return nil, fmt.Errorf("lastfm credential metadata missing %q", MetaUsername)
	}

	params := url.Values{
		"method":  {"user.getrecenttracks"},
		"user":    {username},
		"api_key": {secret},
		"format":  {"json"},
		"limit":   {strconv.Itoa(limit)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &model.NetworkError{Platform: model.PlatformLastFM, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, &model.NetworkError{Platform: model.PlatformLastFM, Err: err}
	}

	// Last.fm reports failures in the body with an error code, typically
	// alongside a non-200 status.
	var probe struct {
		Error   int    `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &probe); err == nil && probe.Error != 0 {
		switch probe.Error {
		case errCodeInvalidAPIKey, errCodeSuspendedKey, errCodeInvalidParams:
			return nil, &model.AuthRejectedError{Platform: model.PlatformLastFM, Reason: probe.Message}
		default:
			return nil, &model.NetworkError{
				Platform: model.PlatformLastFM,
				Err:      fmt.Errorf("lastfm error %d: %s", probe.Error, probe.Message),
			}
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &model.NetworkError{
			Platform: model.PlatformLastFM,
			Err:      fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	return driven.RawPayload(body), nil
}

// Normalize maps the recent-tracks payload to canonical activity records.
// A now-playing track has no date and falls back to the current instant.
func (c *Client) Normalize(raw driven.RawPayload) ([]model.Activity, error) {
	var parsed recentTracksResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse recent tracks payload: %w", err)
	}

	activities := make([]model.Activity, 0, len(parsed.RecentTracks.Track))
	for _, tr := range parsed.RecentTracks.Track {
		occurredAt := c.now().UTC()
		if tr.Date != nil {
			if uts, err := strconv.ParseInt(tr.Date.UTS, 10, 64); err == nil && uts > 0 {
				occurredAt = time.Unix(uts, 0).UTC()
			}
		}

		externalID := tr.MBID
		if externalID == "" {
			externalID = tr.Artist.Text + " - " + tr.Name
		}

		activities = append(activities, model.Activity{
			Platform:   model.PlatformLastFM,
			ExternalID: externalID,
			Type:       "track",
			Title:      tr.Artist.Text + " - " + tr.Name,
			Cover:      largestImage(tr),
			URL:        tr.URL,
			OccurredAt: occurredAt,
			Metadata: map[string]string{
				"artist": tr.Artist.Text,
				"album":  tr.Album.Text,
			},
		})
	}
	return activities, nil
}

func largestImage(tr recentTrack) string {
	var fallback string
	for _, img := range tr.Image {
		if img.Text == "" {
			continue
		}
		if img.Size == "extralarge" {
			return img.Text
		}
		fallback = img.Text
	}
	return fallback
}
