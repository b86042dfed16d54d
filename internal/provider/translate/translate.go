// Package translate translates lyrics with the Google Translate web
// endpoint.
//
// Long texts are split on line boundaries into chunks the endpoint
// accepts and translated chunk by chunk, so line structure survives.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/text/language"

	"github.com/piwi3910/trackcache/internal/provider"
)

const name = "translate"

// MaxChunk is the largest text sent in one request, in bytes.
const MaxChunk = 4500

// Config configures the client.
type Config struct {
	TargetLanguage string `mapstructure:"target_language" yaml:"target_language"`
	APIBase        string `mapstructure:"api_base" yaml:"api_base"`
}

// DefaultConfig translates to English.
func DefaultConfig() Config {
	return Config{
		TargetLanguage: "en",
		APIBase:        "https://translate.googleapis.com",
	}
}

// Client translates text into one target language.
type Client struct {
	http   *http.Client
	base   string
	target language.Tag
}

// New creates a client. The target language must be a valid BCP 47 tag.
func New(cfg Config, httpClient *http.Client) (*Client, error) {
	def := DefaultConfig()
	if cfg.TargetLanguage == "" {
		cfg.TargetLanguage = def.TargetLanguage
	}
	if cfg.APIBase == "" {
		cfg.APIBase = def.APIBase
	}

	tag, err := language.Parse(cfg.TargetLanguage)
	if err != nil {
		return nil, fmt.Errorf("invalid target language %q: %w", cfg.TargetLanguage, err)
	}
	return &Client{
		http:   httpClient,
		base:   strings.TrimRight(cfg.APIBase, "/"),
		target: tag,
	}, nil
}

// Target returns the target language.
func (c *Client) Target() language.Tag {
	return c.target
}

// Translate translates text, detecting the source language.
func (c *Client) Translate(ctx context.Context, text string) (out string, err error) {
	defer func() { provider.Observe(name, err) }()

	if strings.TrimSpace(text) == "" {
		return "", nil
	}

	chunks := Chunk(text, MaxChunk)
	translated := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		t, err := c.translateChunk(ctx, chunk)
		if err != nil {
			return "", err
		}
		translated = append(translated, t)
	}
	return strings.Join(translated, "\n"), nil
}

func (c *Client) translateChunk(ctx context.Context, text string) (string, error) {
	q := url.Values{
		"client": {"gtx"},
		"sl":     {"auto"},
		"tl":     {c.target.String()},
		"dt":     {"t"},
	}
	form := url.Values{"q": {text}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/translate_a/single?"+q.Encode(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	// The response is a positional array; the first element lists the
	// translated segments, each starting with the translated text.
	var resp []json.RawMessage
	if err := provider.DoJSON(c.http, name, req, &resp); err != nil {
		return "", err
	}
	if len(resp) == 0 {
		return "", fmt.Errorf("translate: empty response")
	}

	var segments [][]any
	if err := json.Unmarshal(resp[0], &segments); err != nil {
		return "", fmt.Errorf("translate: unexpected response shape: %w", err)
	}

	var b strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		if s, ok := seg[0].(string); ok {
			b.WriteString(s)
		}
	}
	return b.String(), nil
}

// Chunk splits text on line boundaries into pieces of at most max bytes.
// A single line longer than max is split on its own.
func Chunk(text string, max int) []string {
	if len(text) <= max {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}

	for _, line := range strings.Split(text, "\n") {
		for len(line) > max {
			flush()
			cut := runeBoundary(line, max)
			chunks = append(chunks, line[:cut])
			line = line[cut:]
		}
		if cur.Len() > 0 && cur.Len()+1+len(line) > max {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
	}
	flush()
	return chunks
}

// runeBoundary returns the largest index <= n that does not split a rune.
func runeBoundary(s string, n int) int {
	for n > 0 && n < len(s) && !isRuneStart(s[n]) {
		n--
	}
	return n
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
