package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/trackcache/internal/track"
)

// AssertMetadataEqual asserts that an entry carries md's identity fields.
func AssertMetadataEqual(t *testing.T, md track.Metadata, e *track.Entry) {
	t.Helper()
	require.NotNil(t, e, "entry should not be nil")

	assert.Equal(t, md.TrackID, e.TrackID, "track ids should match")
	assert.Equal(t, md.Title, e.Title, "titles should match")
	assert.Equal(t, md.ArtistName, e.ArtistName, "artist names should match")
	assert.Equal(t, md.ArtistID, e.ArtistID, "artist ids should match")
	assert.Equal(t, md.AlbumID, e.AlbumID, "album ids should match")
	assert.Equal(t, md.ImageURL, e.ImageURL, "image urls should match")
}

// AssertSkeleton asserts that every enrichment field still holds its
// placeholder.
func AssertSkeleton(t *testing.T, e *track.Entry) {
	t.Helper()
	require.NotNil(t, e, "entry should not be nil")

	assert.Equal(t, track.PendingLyrics, e.Lyrics)
	assert.Equal(t, track.Pending, e.RomanizedLyrics)
	assert.Equal(t, track.Pending, e.TranslatedLyrics)
	assert.Empty(t, e.VideoURL)
}
