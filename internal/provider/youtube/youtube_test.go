package youtube_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/trackcache/internal/provider"
	"github.com/piwi3910/trackcache/internal/provider/youtube"
)

func TestFindVideo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "Song Artist", r.URL.Query().Get("q"))
		assert.Equal(t, "key", r.URL.Query().Get("key"))
		assert.Equal(t, "video", r.URL.Query().Get("type"))
		_, _ = w.Write([]byte(`{"items":[{"id":{"videoId":"abc123"}}]}`))
	}))
	defer srv.Close()

	c := youtube.New(youtube.Config{APIKey: "key", APIBase: srv.URL}, srv.Client())
	link, err := c.FindVideo(context.Background(), "Song", "Artist")
	require.NoError(t, err)
	assert.Equal(t, "https://www.youtube.com/embed/abc123", link)
}

func TestFindVideoNoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"items":[]}`))
	}))
	defer srv.Close()

	c := youtube.New(youtube.Config{APIBase: srv.URL}, srv.Client())
	_, err := c.FindVideo(context.Background(), "Song", "Artist")
	assert.ErrorIs(t, err, provider.ErrNotFound)
}

func TestFindVideoQuotaExceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := youtube.New(youtube.Config{APIBase: srv.URL}, srv.Client())
	_, err := c.FindVideo(context.Background(), "Song", "Artist")
	var se *provider.StatusError
	assert.ErrorAs(t, err, &se)
}
