// Package youtube finds a playable video for a song with the YouTube Data
// API search endpoint.
package youtube

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/piwi3910/trackcache/internal/provider"
)

const name = "youtube"

// EmbedBase prefixes video ids to form the stored link.
const EmbedBase = "https://www.youtube.com/embed/"

// Config configures the client. FallbackURL is not used by the client
// itself; it is what callers store when a lookup fails.
type Config struct {
	APIKey      string `mapstructure:"api_key" yaml:"api_key"`
	APIBase     string `mapstructure:"api_base" yaml:"api_base"`
	FallbackURL string `mapstructure:"fallback_url" yaml:"fallback_url"`
}

// DefaultConfig returns the public endpoint and fallback video.
func DefaultConfig() Config {
	return Config{
		APIBase:     "https://www.googleapis.com/youtube/v3",
		FallbackURL: EmbedBase + "dQw4w9WgXcQ",
	}
}

// Client searches YouTube.
type Client struct {
	http *http.Client
	base string
	key  string
}

// New creates a client.
func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultConfig().APIBase
	}
	return &Client{
		http: httpClient,
		base: strings.TrimRight(cfg.APIBase, "/"),
		key:  cfg.APIKey,
	}
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
	} `json:"items"`
}

// FindVideo returns the embed link of the top search result for the song.
func (c *Client) FindVideo(ctx context.Context, title, artist string) (link string, err error) {
	defer func() { provider.Observe(name, err) }()

	q := url.Values{
		"part":       {"snippet"},
		"q":          {title + " " + artist},
		"key":        {c.key},
		"type":       {"video"},
		"maxResults": {"1"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/search?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("youtube: %w", err)
	}

	var resp searchResponse
	if err := provider.DoJSON(c.http, name, req, &resp); err != nil {
		return "", err
	}
	if len(resp.Items) == 0 || resp.Items[0].ID.VideoID == "" {
		return "", fmt.Errorf("youtube: %q by %q: %w", title, artist, provider.ErrNotFound)
	}
	return EmbedBase + resp.Items[0].ID.VideoID, nil
}
