package httputil_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/trackcache/internal/httputil"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := httputil.DefaultConfig()

	assert.Equal(t, httputil.DefaultTimeout, cfg.Timeout)
	assert.Equal(t, httputil.DefaultMaxIdleConns, cfg.MaxIdleConns)
	assert.Equal(t, httputil.DefaultMaxIdleConnsPerHost, cfg.MaxIdleConnsPerHost)
	assert.Equal(t, httputil.DefaultIdleConnTimeout, cfg.IdleConnTimeout)
	assert.Equal(t, httputil.DefaultUserAgent, cfg.UserAgent)
}

func TestNewClient_WithNilConfig(t *testing.T) {
	t.Parallel()

	client := httputil.NewClient(nil)

	require.NotNil(t, client)
	assert.Equal(t, httputil.DefaultTimeout, client.Timeout)
	assert.NotNil(t, client.Transport)
}

func TestNewClient_AppliesDefaultsForZeroValues(t *testing.T) {
	t.Parallel()

	client := httputil.NewClient(&httputil.ClientConfig{})

	require.NotNil(t, client)
	assert.Equal(t, httputil.DefaultTimeout, client.Timeout)
}

func TestNewClientWithTimeout(t *testing.T) {
	t.Parallel()

	client := httputil.NewClientWithTimeout(3 * time.Second)
	assert.Equal(t, 3*time.Second, client.Timeout)
}

func TestUserAgent(t *testing.T) {
	t.Parallel()

	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = append(got, r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	client := httputil.NewClient(&httputil.ClientConfig{UserAgent: "tests/2"})

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	req.Header.Set("User-Agent", "custom")
	resp, err = client.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, []string{"tests/2", "custom"}, got)
}
