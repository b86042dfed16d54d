// Package genius finds song lyrics on Genius.
//
// The API only offers search; the lyrics themselves are scraped from the
// song page, where they are split across one or more lyrics containers.
package genius

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/cases"

	"github.com/piwi3910/trackcache/internal/provider"
)

const name = "genius"

// Config configures the client.
type Config struct {
	AccessToken string `mapstructure:"access_token" yaml:"access_token"`
	APIBase     string `mapstructure:"api_base" yaml:"api_base"`
}

// DefaultConfig returns the public Genius endpoint.
func DefaultConfig() Config {
	return Config{APIBase: "https://api.genius.com"}
}

// Client searches Genius and scrapes lyrics pages.
type Client struct {
	http  *http.Client
	base  string
	token string
}

// New creates a client.
func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = DefaultConfig().APIBase
	}
	return &Client{
		http:  httpClient,
		base:  strings.TrimRight(cfg.APIBase, "/"),
		token: cfg.AccessToken,
	}
}

type hit struct {
	Result struct {
		ID            int    `json:"id"`
		Title         string `json:"title"`
		URL           string `json:"url"`
		PrimaryArtist struct {
			Name string `json:"name"`
		} `json:"primary_artist"`
	} `json:"result"`
}

type searchResponse struct {
	Response struct {
		Hits []hit `json:"hits"`
	} `json:"response"`
}

// FetchLyrics returns the raw lyrics of the best match for title and
// artist. Candidates are tried shortest title first and must contain both
// the requested title and artist. No usable match returns
// provider.ErrNotFound.
func (c *Client) FetchLyrics(ctx context.Context, title, artist string) (lyrics string, err error) {
	defer func() { provider.Observe(name, err) }()

	hits, err := c.search(ctx, title+" "+artist)
	if err != nil {
		return "", err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return len(hits[i].Result.Title) < len(hits[j].Result.Title)
	})

	// Casers keep state and are not shared between calls.
	fold := cases.Fold()
	wantTitle, wantArtist := fold.String(title), fold.String(artist)
	for _, h := range hits {
		if !strings.Contains(fold.String(h.Result.PrimaryArtist.Name), wantArtist) ||
			!strings.Contains(fold.String(h.Result.Title), wantTitle) {
			continue
		}
		if h.Result.URL == "" {
			continue
		}

		text, err := c.scrape(ctx, h.Result.URL)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) != "" {
			return text, nil
		}
	}
	return "", fmt.Errorf("genius: %q by %q: %w", title, artist, provider.ErrNotFound)
}

func (c *Client) search(ctx context.Context, query string) ([]hit, error) {
	u := c.base + "/search?" + url.Values{"q": {query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("genius: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	var resp searchResponse
	if err := provider.DoJSON(c.http, name, req, &resp); err != nil {
		return nil, err
	}
	return resp.Response.Hits, nil
}

func (c *Client) scrape(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("genius: %w", err)
	}
	body, err := provider.Do(c.http, name, req)
	if err != nil {
		return "", err
	}
	return ExtractLyrics(body)
}

// ExtractLyrics returns the text of every lyrics container in a Genius song
// page, containers separated by a newline. Line breaks become newlines and
// excluded annotations are dropped.
func ExtractLyrics(page []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("genius: failed to parse page: %w", err)
	}

	var parts []string
	var find func(n *html.Node)
	find = func(n *html.Node) {
		if n.Type == html.ElementNode && attr(n, "data-lyrics-container") == "true" {
			var b strings.Builder
			writeText(&b, n)
			parts = append(parts, strings.TrimSpace(b.String()))
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			find(child)
		}
	}
	find(doc)

	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if n.DataAtom == atom.Br {
			b.WriteByte('\n')
			return
		}
		if attr(n, "data-exclude-from-selection") == "true" {
			return
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		writeText(b, child)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
