package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/trackcache/internal/config"
)

func newTestServer(t *testing.T, backendName string) *Server {
	t.Helper()

	opts := config.Options{ListenAddr: "127.0.0.1:0", StorageBackend: backendName}
	if backendName == config.BackendBadger {
		t.Setenv("TRACKCACHE_STORAGE_BADGER_DIR", t.TempDir())
	}
	cfg, err := config.Load("", opts)
	require.NoError(t, err)

	srv, err := New(cfg)
	require.NoError(t, err)
	return srv
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t, config.BackendMemory)
	t.Cleanup(func() { _ = srv.closer.Close() })

	for _, path := range []string{"/health", "/health/live", "/health/ready", "/health/detailed", "/metrics"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRouterServesAPI(t *testing.T) {
	srv := newTestServer(t, config.BackendMemory)
	t.Cleanup(func() { _ = srv.closer.Close() })

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var listing map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Contains(t, listing, "favorites")
	assert.Contains(t, listing, "history")

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/priming/jobs/nope", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"UNKNOWN"`)
}

func TestRouterCORSPreflight(t *testing.T) {
	srv := newTestServer(t, config.BackendMemory)
	t.Cleanup(func() { _ = srv.closer.Close() })

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/cache", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestOpenBadgerBackend(t *testing.T) {
	srv := newTestServer(t, config.BackendBadger)
	t.Cleanup(func() { _ = srv.closer.Close() })

	assert.NoError(t, srv.store.Ping(context.Background()))
}

func TestStartAndShutdown(t *testing.T) {
	srv := newTestServer(t, config.BackendMemory)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
