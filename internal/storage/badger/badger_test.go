package badger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/trackcache/internal/storage/backend"
	"github.com/piwi3910/trackcache/internal/storage/backend/backendtest"
	"github.com/piwi3910/trackcache/internal/storage/badger"
)

func openInMemory(t *testing.T) *badger.Store {
	t.Helper()

	s, err := badger.Open(badger.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore(t *testing.T) {
	backendtest.Run(t, backendtest.Harness{
		New: func(t *testing.T) backend.Backend { return openInMemory(t) },
	})
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := badger.Open(badger.Config{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, s.PutEntry(ctx, "track_a", []byte("a"), time.Hour))
	require.NoError(t, s.AddFavorites(ctx, "track_a"))
	require.NoError(t, s.Close())

	s, err = badger.Open(badger.Config{Dir: dir})
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	got, err := s.GetEntry(ctx, "track_a")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got)

	fav, err := s.IsFavorite(ctx, "track_a")
	require.NoError(t, err)
	assert.True(t, fav)
}

func TestOpenRequiresDir(t *testing.T) {
	_, err := badger.Open(badger.Config{})
	assert.Error(t, err)
}

func TestPingAfterClose(t *testing.T) {
	s, err := badger.Open(badger.Config{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Error(t, s.Ping(context.Background()))
}
