// Package backendtest holds the behaviour suite every backend.Backend
// implementation must pass.
package backendtest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/trackcache/internal/storage/backend"
)

// Harness describes how to build and drive a backend under test.
type Harness struct {
	// New returns a fresh, empty backend.
	New func(t *testing.T) backend.Backend

	// Advance moves the backend's clock forward. Expiry cases are skipped
	// when nil.
	Advance func(d time.Duration)
}

// Run executes the suite.
func Run(t *testing.T, h Harness) {
	t.Run("EntryRoundTrip", func(t *testing.T) { testEntryRoundTrip(t, h) })
	t.Run("GetEntries", func(t *testing.T) { testGetEntries(t, h) })
	t.Run("UpdateEntry", func(t *testing.T) { testUpdateEntry(t, h) })
	t.Run("UpdateEntryConcurrent", func(t *testing.T) { testUpdateEntryConcurrent(t, h) })
	t.Run("Ledger", func(t *testing.T) { testLedger(t, h) })
	t.Run("Favorites", func(t *testing.T) { testFavorites(t, h) })
	t.Run("NonFavoriteCount", func(t *testing.T) { testNonFavoriteCount(t, h) })
	t.Run("DeleteKey", func(t *testing.T) { testDeleteKey(t, h) })
	t.Run("Counters", func(t *testing.T) { testCounters(t, h) })
	t.Run("SetExpiry", func(t *testing.T) { testSetExpiry(t, h) })
	if h.Advance != nil {
		t.Run("Expiry", func(t *testing.T) { testExpiry(t, h) })
	}
}

func testEntryRoundTrip(t *testing.T, h Harness) {
	ctx := context.Background()
	b := h.New(t)

	_, err := b.GetEntry(ctx, "track_a")
	assert.True(t, errors.Is(err, backend.ErrNotFound))

	ok, err := b.Exists(ctx, "track_a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.PutEntry(ctx, "track_a", []byte("v1"), time.Hour))
	got, err := b.GetEntry(ctx, "track_a")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	ok, err = b.Exists(ctx, "track_a")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, b.PutEntry(ctx, "track_a", []byte("v2"), backend.NoExpiry))
	got, err = b.GetEntry(ctx, "track_a")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)

	require.NoError(t, b.Ping(ctx))
}

func testGetEntries(t *testing.T, h Harness) {
	ctx := context.Background()
	b := h.New(t)

	require.NoError(t, b.PutEntry(ctx, "track_a", []byte("a"), time.Hour))
	require.NoError(t, b.PutEntry(ctx, "track_c", []byte("c"), time.Hour))

	got, err := b.GetEntries(ctx, []string{"track_a", "track_b", "track_c"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"track_a": []byte("a"), "track_c": []byte("c")}, got)

	got, err = b.GetEntries(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func testUpdateEntry(t *testing.T, h Harness) {
	ctx := context.Background()
	b := h.New(t)

	err := b.UpdateEntry(ctx, "track_missing", time.Hour, func(cur []byte) ([]byte, error) {
		return cur, nil
	})
	assert.True(t, errors.Is(err, backend.ErrNotFound))

	require.NoError(t, b.PutEntry(ctx, "track_a", []byte("x"), time.Hour))
	err = b.UpdateEntry(ctx, "track_a", time.Hour, func(cur []byte) ([]byte, error) {
		return append(cur, 'y'), nil
	})
	require.NoError(t, err)

	got, err := b.GetEntry(ctx, "track_a")
	require.NoError(t, err)
	assert.Equal(t, []byte("xy"), got)

	boom := errors.New("boom")
	err = b.UpdateEntry(ctx, "track_a", time.Hour, func([]byte) ([]byte, error) {
		return nil, boom
	})
	assert.True(t, errors.Is(err, boom))

	got, err = b.GetEntry(ctx, "track_a")
	require.NoError(t, err)
	assert.Equal(t, []byte("xy"), got)
}

// Concurrent appenders must not lose each other's writes.
func testUpdateEntryConcurrent(t *testing.T, h Harness) {
	ctx := context.Background()
	b := h.New(t)
	require.NoError(t, b.PutEntry(ctx, "track_a", nil, time.Hour))

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- b.UpdateEntry(ctx, "track_a", time.Hour, func(cur []byte) ([]byte, error) {
				return append(cur, byte('a'+i)), nil
			})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	got, err := b.GetEntry(ctx, "track_a")
	require.NoError(t, err)
	assert.Len(t, got, writers)
}

func testLedger(t *testing.T, h Harness) {
	ctx := context.Background()
	b := h.New(t)

	n, err := b.IncrAccess(ctx, "track_a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	for range 2 {
		_, err = b.IncrAccess(ctx, "track_c")
		require.NoError(t, err)
	}
	n, err = b.IncrAccess(ctx, "track_c")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, b.EnsureAccess(ctx, "track_b"))
	_, err = b.IncrAccess(ctx, "track_b")
	require.NoError(t, err)

	// EnsureAccess never lowers an existing count.
	require.NoError(t, b.EnsureAccess(ctx, "track_c"))

	least, err := b.LeastAccessed(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"track_a", "track_b"}, least)

	ranking, err := b.AccessRanking(ctx)
	require.NoError(t, err)
	assert.Equal(t, []backend.AccessCount{
		{Key: "track_c", Count: 3},
		{Key: "track_b", Count: 2},
		{Key: "track_a", Count: 1},
	}, ranking)

	size, err := b.LedgerSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), size)
}

func testFavorites(t *testing.T, h Harness) {
	ctx := context.Background()
	b := h.New(t)

	require.NoError(t, b.AddFavorites(ctx, "track_a", "track_b"))
	require.NoError(t, b.AddFavorites(ctx, "track_a"))

	ok, err := b.IsFavorite(ctx, "track_a")
	require.NoError(t, err)
	assert.True(t, ok)

	count, err := b.FavoriteCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, b.RemoveFavorites(ctx, "track_a", "track_zzz"))
	ok, err = b.IsFavorite(ctx, "track_a")
	require.NoError(t, err)
	assert.False(t, ok)

	favs, err := b.Favorites(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"track_b"}, favs)
}

func testNonFavoriteCount(t *testing.T, h Harness) {
	ctx := context.Background()
	b := h.New(t)

	for _, k := range []string{"track_a", "track_b", "track_c"} {
		require.NoError(t, b.EnsureAccess(ctx, k))
	}
	// track_x and track_y are pinned but were never read or written.
	require.NoError(t, b.AddFavorites(ctx, "track_a", "track_x", "track_y"))

	n, err := b.NonFavoriteCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, b.RemoveAccess(ctx, "track_b", "track_missing"))
	n, err = b.NonFavoriteCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	fav, err := b.IsFavorite(ctx, "track_a")
	require.NoError(t, err)
	assert.True(t, fav, "RemoveAccess leaves favorites alone")
}

func testDeleteKey(t *testing.T, h Harness) {
	ctx := context.Background()
	b := h.New(t)

	require.NoError(t, b.PutEntry(ctx, "track_a", []byte("a"), time.Hour))
	_, err := b.IncrAccess(ctx, "track_a")
	require.NoError(t, err)
	require.NoError(t, b.AddFavorites(ctx, "track_a"))

	require.NoError(t, b.DeleteKey(ctx, "track_a"))

	_, err = b.GetEntry(ctx, "track_a")
	assert.True(t, errors.Is(err, backend.ErrNotFound))
	fav, err := b.IsFavorite(ctx, "track_a")
	require.NoError(t, err)
	assert.False(t, fav)
	size, err := b.LedgerSize(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)

	// Deleting a missing key is not an error.
	require.NoError(t, b.DeleteKey(ctx, "track_a"))
}

func testCounters(t *testing.T, h Harness) {
	ctx := context.Background()
	b := h.New(t)
	key := fmt.Sprintf("priming:job:%d", time.Now().UnixNano())

	_, err := b.IncrCounter(ctx, key)
	assert.True(t, errors.Is(err, backend.ErrNotFound))
	_, err = b.GetCounter(ctx, key)
	assert.True(t, errors.Is(err, backend.ErrNotFound))
	assert.True(t, errors.Is(b.ExpireCounter(ctx, key, time.Minute), backend.ErrNotFound))

	require.NoError(t, b.InitCounter(ctx, key, time.Hour))
	v, err := b.GetCounter(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, v)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.IncrCounter(ctx, key)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	v, err = b.GetCounter(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)

	require.NoError(t, b.ExpireCounter(ctx, key, time.Minute))
	v, err = b.GetCounter(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
}

func testSetExpiry(t *testing.T, h Harness) {
	ctx := context.Background()
	b := h.New(t)

	existed, err := b.SetExpiry(ctx, "track_none", time.Hour)
	require.NoError(t, err)
	assert.False(t, existed)

	require.NoError(t, b.PutEntry(ctx, "track_a", []byte("a"), time.Hour))
	existed, err = b.SetExpiry(ctx, "track_a", backend.NoExpiry)
	require.NoError(t, err)
	assert.True(t, existed)

	// A second persist on a key without expiry still reports the key.
	existed, err = b.SetExpiry(ctx, "track_a", backend.NoExpiry)
	require.NoError(t, err)
	assert.True(t, existed)

	got, err := b.GetEntry(ctx, "track_a")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), got)
}

func testExpiry(t *testing.T, h Harness) {
	ctx := context.Background()
	b := h.New(t)

	require.NoError(t, b.PutEntry(ctx, "track_short", []byte("s"), time.Minute))
	require.NoError(t, b.PutEntry(ctx, "track_pinned", []byte("p"), time.Minute))
	require.NoError(t, b.PutEntry(ctx, "track_forever", []byte("f"), backend.NoExpiry))
	_, err := b.SetExpiry(ctx, "track_pinned", backend.NoExpiry)
	require.NoError(t, err)

	require.NoError(t, b.InitCounter(ctx, "priming:job:x", time.Hour))
	require.NoError(t, b.ExpireCounter(ctx, "priming:job:x", 30*time.Second))

	h.Advance(2 * time.Minute)

	_, err = b.GetEntry(ctx, "track_short")
	assert.True(t, errors.Is(err, backend.ErrNotFound))
	_, err = b.GetEntry(ctx, "track_pinned")
	assert.NoError(t, err)
	_, err = b.GetEntry(ctx, "track_forever")
	assert.NoError(t, err)

	_, err = b.GetCounter(ctx, "priming:job:x")
	assert.True(t, errors.Is(err, backend.ErrNotFound))
	_, err = b.IncrCounter(ctx, "priming:job:x")
	assert.True(t, errors.Is(err, backend.ErrNotFound))
}
