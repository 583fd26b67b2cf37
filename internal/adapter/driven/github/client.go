// Package github implements the PlatformClient port using the go-github library.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/kylewilkins/lifesync/internal/domain/model"
	"github.com/kylewilkins/lifesync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PlatformClient = (*Client)(nil)

// Client fetches the authenticated user's recently pushed repositories.
//
// Transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client)
//
// The OAuth token is the decrypted credential secret and is applied per call,
// never stored on the client.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	now        func() time.Time
}

// NewClient creates a GitHub client with the caching/rate-limit transport stack.
func NewClient() *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	return &Client{
		httpClient: github_ratelimit.NewClient(cacheTransport),
		now:        time.Now,
	}
}

// NewClientWithBaseURL creates a Client against a custom base URL and clock,
// allowing injection of an httptest server.
func NewClientWithBaseURL(httpClient *http.Client, baseURL string, now func() time.Time) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	return &Client{httpClient: httpClient, baseURL: u, now: now}, nil
}

// Platform returns model.PlatformGitHub.
func (c *Client) Platform() model.Platform { return model.PlatformGitHub }

// apiClient builds a go-github client authenticated with the given token.
func (c *Client) apiClient(token string) *gh.Client {
	client := gh.NewClient(c.httpClient).WithAuthToken(token)
	if c.baseURL != nil {
		client.BaseURL = c.baseURL
	}
	return client
}

// repoItem is the reduced payload Fetch emits, keeping Normalize independent
// of go-github types.
type repoItem struct {
	ID       int64     `json:"id"`
	FullName string    `json:"full_name"`
	HTMLURL  string    `json:"html_url"`
	Language string    `json:"language"`
	Stars    int       `json:"stars"`
	Fork     bool      `json:"fork"`
	PushedAt time.Time `json:"pushed_at"`
}

// Probe validates the token by resolving the authenticated user.
func (c *Client) Probe(ctx context.Context, secret string, _ map[string]string) error {
	_, _, err := c.apiClient(secret).Users.Get(ctx, "")
	return c.classify(err)
}

// Fetch retrieves the authenticated user's repositories ordered by last push
// and emits them as a reduced JSON payload.
func (c *Client) Fetch(ctx context.Context, secret string, _ map[string]string) (driven.RawPayload, error) {
	opts := &gh.RepositoryListByAuthenticatedUserOptions{
		Sort:        "pushed",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: 100},
	}

	client := c.apiClient(secret)
	var items []repoItem
	for {
		repos, resp, err := client.Repositories.ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			return nil, c.classify(err)
		}

		for _, repo := range repos {
			items = append(items, repoItem{
				ID:       repo.GetID(),
				FullName: repo.GetFullName(),
				HTMLURL:  repo.GetHTMLURL(),
				Language: repo.GetLanguage(),
				Stars:    repo.GetStargazersCount(),
				Fork:     repo.GetFork(),
				PushedAt: repo.GetPushedAt().Time,
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal repo payload: %w", err)
	}
	return driven.RawPayload(raw), nil
}

// Normalize maps the reduced repo payload to canonical activity records.
// Forks are skipped.
func (c *Client) Normalize(raw driven.RawPayload) ([]model.Activity, error) {
	var items []repoItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("parse repo payload: %w", err)
	}

	activities := make([]model.Activity, 0, len(items))
	for _, item := range items {
		if item.Fork {
			continue
		}

		occurredAt := item.PushedAt
		if occurredAt.IsZero() {
			occurredAt = c.now().UTC()
		}

		activities = append(activities, model.Activity{
			Platform:   model.PlatformGitHub,
			ExternalID: strconv.FormatInt(item.ID, 10),
			Type:       "repository",
			Title:      item.FullName,
			URL:        item.HTMLURL,
			OccurredAt: occurredAt.UTC(),
			Rating:     float64(item.Stars),
			Metadata: map[string]string{
				"language": item.Language,
				"stars":    strconv.Itoa(item.Stars),
			},
		})
	}
	return activities, nil
}

// classify maps go-github errors onto the engine's error taxonomy.
func (c *Client) classify(err error) error {
	if err == nil {
		return nil
	}

	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return &model.AuthRejectedError{
				Platform: model.PlatformGitHub,
				Reason:   fmt.Sprintf("github returned %d: %s", ghErr.Response.StatusCode, ghErr.Message),
			}
		}
	}
	return &model.NetworkError{Platform: model.PlatformGitHub, Err: err}
}
