package genius_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/trackcache/internal/provider"
	"github.com/piwi3910/trackcache/internal/provider/genius"
)

const songPage = `<html><body>
<div data-lyrics-container="true"><div data-exclude-from-selection="true">12 Contributors</div>First <i>line</i><br/>Second line</div>
<div class="ad">buy things</div>
<div data-lyrics-container="true">Third line<br>Fourth line</div>
</body></html>`

func newServer(t *testing.T, hits string) *httptest.Server {
	t.Helper()

	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		fmt.Fprintf(w, `{"response":{"hits":[%s]}}`, fmt.Sprintf(hits, srv.URL, srv.URL))
	})
	mux.HandleFunc("/songs/short", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(songPage))
	})
	mux.HandleFunc("/songs/long", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<div data-lyrics-container="true">Remix lyrics</div>`))
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchLyricsPicksShortestMatch(t *testing.T) {
	srv := newServer(t, `
		{"result":{"id":2,"title":"Song (Remix)","url":"%s/songs/long","primary_artist":{"name":"The Artist"}}},
		{"result":{"id":1,"title":"Song","url":"%s/songs/short","primary_artist":{"name":"The Artist"}}}`)
	c := genius.New(genius.Config{AccessToken: "token", APIBase: srv.URL}, srv.Client())

	text, err := c.FetchLyrics(context.Background(), "song", "ARTIST")
	require.NoError(t, err)
	assert.Equal(t, "First line\nSecond line\nThird line\nFourth line", text)
}

func TestFetchLyricsRequiresArtistMatch(t *testing.T) {
	srv := newServer(t, `
		{"result":{"id":1,"title":"Song","url":"%s/songs/short","primary_artist":{"name":"Someone Else"}}},
		{"result":{"id":2,"title":"Other","url":"%s/songs/long","primary_artist":{"name":"Artist"}}}`)
	c := genius.New(genius.Config{AccessToken: "token", APIBase: srv.URL}, srv.Client())

	_, err := c.FetchLyrics(context.Background(), "Song", "Artist")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestFetchLyricsNoHits(t *testing.T) {
	srv := newServer(t, `%.0s%.0s`)
	c := genius.New(genius.Config{AccessToken: "token", APIBase: srv.URL}, srv.Client())

	_, err := c.FetchLyrics(context.Background(), "Song", "Artist")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestExtractLyricsWithoutContainers(t *testing.T) {
	text, err := genius.ExtractLyrics([]byte(`<html><body><p>nothing</p></body></html>`))
	require.NoError(t, err)
	assert.Empty(t, text)
}
