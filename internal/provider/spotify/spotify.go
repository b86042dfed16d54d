// Package spotify resolves track and playlist metadata from the Spotify Web
// API.
//
// Requests carry the caller's bearer token when one is given. Without one
// the client falls back to an application token obtained with the OAuth2
// client credentials flow, which is enough for public tracks and playlists.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/piwi3910/trackcache/internal/provider"
	"github.com/piwi3910/trackcache/internal/track"
)

const name = "spotify"

// ErrNoCredentials is returned when neither a caller token nor application
// credentials are available.
var ErrNoCredentials = errors.New("spotify: no bearer token and no client credentials")

// Config configures the client.
type Config struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
	TokenURL     string `mapstructure:"token_url" yaml:"token_url"`
	APIBase      string `mapstructure:"api_base" yaml:"api_base"`
}

// DefaultConfig returns the public Spotify endpoints.
func DefaultConfig() Config {
	return Config{
		TokenURL: "https://accounts.spotify.com/api/token",
		APIBase:  "https://api.spotify.com/v1",
	}
}

// Client talks to the Spotify Web API.
type Client struct {
	http *http.Client
	base string
	app  oauth2.TokenSource
}

// New creates a client. httpClient is used for both API and token
// requests.
func New(cfg Config, httpClient *http.Client) *Client {
	def := DefaultConfig()
	if cfg.APIBase == "" {
		cfg.APIBase = def.APIBase
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = def.TokenURL
	}

	c := &Client{
		http: httpClient,
		base: strings.TrimRight(cfg.APIBase, "/"),
	}
	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		c.app = cc.TokenSource(ctx)
	}
	return c
}

func (c *Client) token(bearer string) (string, error) {
	if bearer != "" {
		return bearer, nil
	}
	if c.app == nil {
		return "", ErrNoCredentials
	}
	tok, err := c.app.Token()
	if err != nil {
		return "", fmt.Errorf("spotify: failed to obtain app token: %w", err)
	}
	return tok.AccessToken, nil
}

func (c *Client) get(ctx context.Context, bearer, rawURL string, out any) error {
	token, err := c.token(bearer)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("spotify: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	return provider.DoJSON(c.http, name, req, out)
}

type apiArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type apiImage struct {
	URL string `json:"url"`
}

type apiTrack struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Artists []apiArtist `json:"artists"`
	Album   struct {
		ID     string     `json:"id"`
		Images []apiImage `json:"images"`
	} `json:"album"`
}

func (t *apiTrack) metadata() (track.Metadata, bool) {
	if t == nil || t.ID == "" {
		return track.Metadata{}, false
	}
	md := track.Metadata{
		TrackID: t.ID,
		Title:   t.Name,
		AlbumID: t.Album.ID,
	}
	if len(t.Artists) > 0 {
		md.ArtistName = t.Artists[0].Name
		md.ArtistID = t.Artists[0].ID
	}
	if len(t.Album.Images) > 0 {
		md.ImageURL = t.Album.Images[0].URL
	}
	return md, true
}

// Track returns the metadata of one track. Unknown ids return
// provider.ErrNotFound.
func (c *Client) Track(ctx context.Context, bearer, trackID string) (md track.Metadata, err error) {
	defer func() { provider.Observe(name, err) }()

	var t apiTrack
	if err := c.get(ctx, bearer, c.base+"/tracks/"+url.PathEscape(trackID), &t); err != nil {
		return track.Metadata{}, err
	}
	md, ok := t.metadata()
	if !ok {
		return track.Metadata{}, fmt.Errorf("spotify: track %s: %w", trackID, provider.ErrNotFound)
	}
	return md, nil
}

type playlistPage struct {
	Items []struct {
		Track *apiTrack `json:"track"`
	} `json:"items"`
	Next string `json:"next"`
}

// PlaylistTracks returns the metadata of every track in a playlist,
// following pagination. Local files and removed tracks are skipped.
func (c *Client) PlaylistTracks(ctx context.Context, bearer, playlistID string) (out []track.Metadata, err error) {
	defer func() { provider.Observe(name, err) }()

	next := c.base + "/playlists/" + url.PathEscape(playlistID) + "/tracks?limit=100"
	for next != "" {
		var page playlistPage
		if err := c.get(ctx, bearer, next, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			if md, ok := item.Track.metadata(); ok {
				out = append(out, md)
			}
		}
		next = page.Next
	}
	return out, nil
}
