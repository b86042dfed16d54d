package spotify_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/trackcache/internal/provider"
	"github.com/piwi3910/trackcache/internal/provider/spotify"
)

const trackJSON = `{
	"id": "t1",
	"name": "Song",
	"artists": [{"id": "a1", "name": "Artist"}, {"id": "a2", "name": "Other"}],
	"album": {"id": "al1", "images": [{"url": "https://img/large"}, {"url": "https://img/small"}]}
}`

func newServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var auth []string

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "id" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"app-token","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v1/tracks/t1", func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(trackJSON))
	})
	mux.HandleFunc("/v1/tracks/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	var srv *httptest.Server
	mux.HandleFunc("/v1/playlists/p1/tracks", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("offset") == "" {
			fmt.Fprintf(w, `{"items":[{"track":%s},{"track":null}],"next":"%s/v1/playlists/p1/tracks?offset=2"}`, trackJSON, srv.URL)
			return
		}
		_, _ = w.Write([]byte(`{"items":[{"track":{"id":"t2","name":"Second","artists":[{"id":"a1","name":"Artist"}],"album":{"id":"al2","images":[]}}}],"next":null}`))
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &auth
}

func TestTrackWithCallerToken(t *testing.T) {
	srv, auth := newServer(t)
	c := spotify.New(spotify.Config{APIBase: srv.URL + "/v1"}, srv.Client())

	md, err := c.Track(context.Background(), "user-token", "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", md.TrackID)
	assert.Equal(t, "Song", md.Title)
	assert.Equal(t, "Artist", md.ArtistName)
	assert.Equal(t, "a1", md.ArtistID)
	assert.Equal(t, "al1", md.AlbumID)
	assert.Equal(t, "https://img/large", md.ImageURL)
	assert.Equal(t, []string{"Bearer user-token"}, *auth)
}

func TestTrackWithAppToken(t *testing.T) {
	srv, auth := newServer(t)
	c := spotify.New(spotify.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		TokenURL:     srv.URL + "/token",
		APIBase:      srv.URL + "/v1",
	}, srv.Client())

	_, err := c.Track(context.Background(), "", "t1")
	require.NoError(t, err)
	_, err = c.Track(context.Background(), "", "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Bearer app-token", "Bearer app-token"}, *auth)
}

func TestTrackWithoutCredentials(t *testing.T) {
	srv, _ := newServer(t)
	c := spotify.New(spotify.Config{APIBase: srv.URL + "/v1"}, srv.Client())

	_, err := c.Track(context.Background(), "", "t1")
	assert.ErrorIs(t, err, spotify.ErrNoCredentials)
}

func TestTrackNotFound(t *testing.T) {
	srv, _ := newServer(t)
	c := spotify.New(spotify.Config{APIBase: srv.URL + "/v1"}, srv.Client())

	_, err := c.Track(context.Background(), "tok", "missing")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestPlaylistTracksFollowsPages(t *testing.T) {
	srv, _ := newServer(t)
	c := spotify.New(spotify.Config{APIBase: srv.URL + "/v1"}, srv.Client())

	tracks, err := c.PlaylistTracks(context.Background(), "tok", "p1")
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, "t1", tracks[0].TrackID)
	assert.Equal(t, "t2", tracks[1].TrackID)
	assert.Empty(t, tracks[1].ImageURL)
}
