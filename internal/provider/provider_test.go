package provider_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/trackcache/internal/provider"
)

func TestDoJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			_, _ = w.Write([]byte(`{"name":"value"}`))
		case "/bad":
			_, _ = w.Write([]byte(`{`))
		case "/boom":
			w.WriteHeader(http.StatusBadGateway)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	get := func(path string, out any) error {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+path, nil)
		require.NoError(t, err)
		return provider.DoJSON(srv.Client(), "test", req, out)
	}

	var out struct {
		Name string `json:"name"`
	}
	require.NoError(t, get("/ok", &out))
	assert.Equal(t, "value", out.Name)

	assert.Error(t, get("/bad", &out))
	assert.ErrorIs(t, get("/missing", &out), provider.ErrNotFound)

	err := get("/boom", &out)
	var se *provider.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadGateway, se.Status)
	assert.Contains(t, se.Error(), "Bad Gateway")
}
