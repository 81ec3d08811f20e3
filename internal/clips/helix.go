package clips

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MimeLyc/clipreel/pkg/log"
)

const (
	DefaultBaseURL = "https://api.twitch.tv/helix"
	// maxPageSize is the largest "first" value the clips endpoint accepts.
	maxPageSize = 100
)

var (
	ErrUnavailable = errors.New("clip source unavailable")
	ErrNotFound    = errors.New("not found")
)

// Client queries the Twitch Helix API for top clips.
type Client struct {
	clientID   string
	token      string
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

type Option func(*Client)

// WithToken sets the OAuth bearer token sent alongside the client id.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func NewClient(clientID string, opts ...Option) *Client {
	c := &Client{
		clientID: clientID,
		baseURL:  DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type helixClip struct {
	ID              string  `json:"id"`
	URL             string  `json:"url"`
	BroadcasterID   string  `json:"broadcaster_id"`
	BroadcasterName string  `json:"broadcaster_name"`
	GameID          string  `json:"game_id"`
	Title           string  `json:"title"`
	ViewCount       int     `json:"view_count"`
	CreatedAt       string  `json:"created_at"`
	ThumbnailURL    string  `json:"thumbnail_url"`
	Duration        float64 `json:"duration"`
}

type clipsResponse struct {
	Data       []helixClip `json:"data"`
	Pagination struct {
		Cursor string `json:"cursor"`
	} `json:"pagination"`
}

type idResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// GameID resolves an exact game name to its id.
func (c *Client) GameID(ctx context.Context, name string) (string, error) {
	return c.lookupID(ctx, "/games", url.Values{"name": {name}}, "game", name)
}

// UserID resolves an exact login to the broadcaster id.
func (c *Client) UserID(ctx context.Context, login string) (string, error) {
	return c.lookupID(ctx, "/users", url.Values{"login": {strings.ToLower(login)}}, "user", login)
}

// Resolve turns a scope kind and a human name into a Scope.
func (c *Client) Resolve(ctx context.Context, kind ScopeKind, name string) (Scope, error) {
	var (
		id  string
		err error
	)
	switch kind {
	case ScopeGame:
		id, err = c.GameID(ctx, name)
	case ScopeBroadcaster:
		id, err = c.UserID(ctx, name)
	default:
		return Scope{}, fmt.Errorf("unknown scope kind %q", kind)
	}
	if err != nil {
		return Scope{}, err
	}
	return Scope{Kind: kind, ID: id, Name: name}, nil
}

func (c *Client) lookupID(ctx context.Context, path string, query url.Values, what, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%s name is required", what)
	}
	var resp idResponse
	if err := c.get(ctx, path, query, &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 || resp.Data[0].ID == "" {
		return "", fmt.Errorf("%s %q: %w", what, name, ErrNotFound)
	}
	return resp.Data[0].ID, nil
}

// TopClips fetches up to amount clips for scope created within the last
// window, in the platform's rank order. A window of zero means no lower bound.
// A well-formed query without results yields an empty batch.
func (c *Client) TopClips(ctx context.Context, scope Scope, amount int, window time.Duration) (Batch, error) {
	if scope.ID == "" {
		return nil, fmt.Errorf("scope id is required")
	}
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %d", amount)
	}

	now := c.now().UTC()
	batch := make(Batch, 0, amount)
	cursor := ""
	for len(batch) < amount {
		query := url.Values{}
		query.Set(scope.queryKey(), scope.ID)
		query.Set("first", fmt.Sprintf("%d", min(amount-len(batch), maxPageSize)))
		if window > 0 {
			query.Set("started_at", now.Add(-window).Format(time.RFC3339))
			query.Set("ended_at", now.Format(time.RFC3339))
		}
		if cursor != "" {
			query.Set("after", cursor)
		}

		var page clipsResponse
		if err := c.get(ctx, "/clips", query, &page); err != nil {
			return nil, err
		}
		for _, raw := range page.Data {
			if len(batch) == amount {
				break
			}
			batch = append(batch, toDescriptor(raw, len(batch)))
		}

		cursor = page.Pagination.Cursor
		if cursor == "" || len(page.Data) == 0 {
			break
		}
	}

	log.Info("Fetched %d clips for %s", len(batch), scope)
	return batch, nil
}

func toDescriptor(raw helixClip, index int) Descriptor {
	d := Descriptor{
		ID:              raw.ID,
		Title:           raw.Title,
		BroadcasterName: raw.BroadcasterName,
		SourceMediaURL:  MediaURL(raw.ThumbnailURL),
		Index:           index,
		URL:             raw.URL,
		GameID:          raw.GameID,
		ViewCount:       raw.ViewCount,
		ThumbnailURL:    raw.ThumbnailURL,
		Duration:        time.Duration(raw.Duration * float64(time.Second)),
	}
	if t, err := time.Parse(time.RFC3339, raw.CreatedAt); err == nil {
		d.CreatedAt = t
	}
	return d
}

// MediaURL derives the downloadable mp4 location from a clip thumbnail URL,
// e.g. ".../AT-cm%7C123-preview-480x272.jpg" -> ".../AT-cm%7C123.mp4".
// It returns "" when the thumbnail does not follow that layout.
func MediaURL(thumbnailURL string) string {
	base, _, ok := strings.Cut(thumbnailURL, "-preview-")
	if !ok || base == "" {
		return ""
	}
	return base + ".mp4"
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Client-ID", c.clientID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: request %s: %v", ErrUnavailable, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", ErrUnavailable, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned status %d: %s", ErrUnavailable, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrUnavailable, path, err)
	}
	return nil
}
