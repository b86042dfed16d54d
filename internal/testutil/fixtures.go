package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/piwi3910/trackcache/internal/cache"
	"github.com/piwi3910/trackcache/internal/storage/compression"
	"github.com/piwi3910/trackcache/internal/storage/memory"
	"github.com/piwi3910/trackcache/internal/track"
)

// Test fixture constants.
const (
	DefaultTestTitle    = "Test Song"
	DefaultTestArtist   = "Test Artist"
	DefaultTestVideoURL = "https://www.youtube.com/embed/test"
	DefaultTestLyrics   = "first line\nsecond line"
)

// NewTestMetadata returns metadata for trackID with test defaults.
func NewTestMetadata(trackID string) track.Metadata {
	return track.Metadata{
		TrackID:    trackID,
		Title:      DefaultTestTitle,
		ArtistName: DefaultTestArtist,
		ArtistID:   "artist-" + trackID,
		AlbumID:    "album-" + trackID,
		ImageURL:   "https://img.test/" + trackID + ".jpg",
	}
}

// NewCompleteEntry returns an entry with every field populated.
func NewCompleteEntry(trackID string) *track.Entry {
	e := track.NewSkeleton(NewTestMetadata(trackID))
	e.Lyrics = DefaultTestLyrics
	e.RomanizedLyrics = DefaultTestLyrics
	e.TranslatedLyrics = "First line\nSecond line"
	e.VideoURL = DefaultTestVideoURL
	return e
}

// NewCoordinator returns a coordinator over a fresh in-memory store that
// shares clock for both expiry and entry timestamps.
func NewCoordinator(t *testing.T, cfg cache.Config, clock *Clock) (*cache.Coordinator, *memory.Store) {
	t.Helper()

	store := memory.New(memory.WithClock(clock.Now))
	t.Cleanup(func() { _ = store.Close() })

	codec, err := compression.NewCodec(compression.DefaultConfig())
	require.NoError(t, err)

	return cache.New(store, codec, cfg, cache.WithClock(clock.Now)), store
}
