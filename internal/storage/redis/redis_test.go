package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/trackcache/internal/storage/backend"
	"github.com/piwi3910/trackcache/internal/storage/backend/backendtest"
	"github.com/piwi3910/trackcache/internal/storage/redis"
)

func newStore(t *testing.T, mr *miniredis.Miniredis, prefix string) *redis.Store {
	t.Helper()

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := redis.DefaultConfig()
	cfg.KeyPrefix = prefix
	return redis.NewFromClient(client, cfg)
}

func TestStore(t *testing.T) {
	var current *miniredis.Miniredis

	backendtest.Run(t, backendtest.Harness{
		New: func(t *testing.T) backend.Backend {
			current = miniredis.RunT(t)
			return newStore(t, current, "")
		},
		Advance: func(d time.Duration) { current.FastForward(d) },
	})
}

func TestStoreKeyLayout(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newStore(t, mr, "tc:")
	ctx := context.Background()

	require.NoError(t, s.PutEntry(ctx, "track_a", []byte("a"), time.Hour))
	_, err := s.IncrAccess(ctx, "track_a")
	require.NoError(t, err)
	require.NoError(t, s.AddFavorites(ctx, "track_a"))

	assert.True(t, mr.Exists("tc:entry:track_a"))
	assert.False(t, mr.Exists("tc:track_a"))
	assert.Equal(t, time.Hour, mr.TTL("tc:entry:track_a"))

	score, err := mr.ZScore("tc:track_access_counts", "track_a")
	require.NoError(t, err)
	assert.Equal(t, float64(1), score)

	ok, err := mr.SIsMember("tc:favorite_tracks", "track_a")
	require.NoError(t, err)
	assert.True(t, ok)

	existed, err := s.SetExpiry(ctx, "track_a", backend.NoExpiry)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Zero(t, mr.TTL("tc:entry:track_a"))
}

func TestEntryKeysCannotReachSharedStructures(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newStore(t, mr, "")
	ctx := context.Background()

	for _, k := range []string{"track_a", "track_b", "track_c"} {
		require.NoError(t, s.PutEntry(ctx, k, []byte(k), time.Hour))
		require.NoError(t, s.EnsureAccess(ctx, k))
	}
	require.NoError(t, s.AddFavorites(ctx, "track_b"))

	// Entry keys named after the ledger and the favorites set.
	for _, k := range []string{backend.LedgerKey, backend.FavoritesKey} {
		require.NoError(t, s.AddFavorites(ctx, k))
		_, err := s.SetExpiry(ctx, k, time.Hour)
		require.NoError(t, err)
		require.NoError(t, s.DeleteKey(ctx, k))
	}

	size, err := s.LedgerSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)
	assert.Zero(t, mr.TTL(backend.LedgerKey))

	fav, err := s.IsFavorite(ctx, "track_b")
	require.NoError(t, err)
	assert.True(t, fav)
	assert.Zero(t, mr.TTL(backend.FavoritesKey))
}

func TestStorePingFailsWhenDown(t *testing.T) {
	mr := miniredis.RunT(t)
	s := newStore(t, mr, "")
	mr.Close()

	assert.Error(t, s.Ping(context.Background()))
}
