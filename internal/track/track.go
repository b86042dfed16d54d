// Package track defines the cached track record and the placeholder markers
// that describe how far each enrichment field has been populated.
package track

import (
	"regexp"
	"strings"
	"time"
)

// Placeholder and terminal markers stored in enrichment fields.
const (
	// PendingLyrics marks lyrics that have not been fetched yet.
	PendingLyrics = "Loading lyrics..."
	// Pending marks derived text fields that have not been produced yet.
	Pending = "Loading..."
	// TranslationInProgress marks a translation that has been requested.
	TranslationInProgress = "Translation in progress..."
	// TranslationFailed is written when the translator returned an error.
	TranslationFailed = "Translation failed."
	// TranslationUnavailable is written when there is no text to translate.
	TranslationUnavailable = "Translation unavailable."
	// LyricsNotFound is written when no lyrics exist for the track.
	LyricsNotFound = "Lyrics not found for this track."
	// LyricsError is written to the lyrics field when the lookup failed.
	LyricsError = "An error occurred while fetching lyrics."
	// GenericError is written to the derived fields when the lookup failed.
	GenericError = "An error occurred."
)

const keyPrefix = "track_"

var idPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,64}$`)

// ValidID reports whether id has the shape of a catalogue track id.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// CacheKey returns the cache key for a track id.
func CacheKey(trackID string) string {
	return keyPrefix + trackID
}

// TrackIDFromKey reverses CacheKey. ok is false for foreign keys.
func TrackIDFromKey(key string) (string, bool) {
	id, ok := strings.CutPrefix(key, keyPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Metadata is what the metadata provider returns for a track.
type Metadata struct {
	TrackID    string `json:"track_id"`
	Title      string `json:"song_title"`
	ArtistName string `json:"artist_name"`
	ArtistID   string `json:"artist_id"`
	AlbumID    string `json:"album_id"`
	ImageURL   string `json:"image_url"`
}

// Entry is the cached record for one track.
type Entry struct {
	TrackID    string `msgpack:"track_id" json:"track_id"`
	Title      string `msgpack:"song_title" json:"song_title"`
	ArtistName string `msgpack:"artist_name" json:"artist_name"`
	ArtistID   string `msgpack:"artist_id" json:"artist_id"`
	AlbumID    string `msgpack:"album_id" json:"album_id"`
	ImageURL   string `msgpack:"image_url" json:"image_url"`

	Lyrics           string `msgpack:"original_lyrics" json:"original_lyrics"`
	RomanizedLyrics  string `msgpack:"romanized_lyrics" json:"romanized_lyrics"`
	TranslatedLyrics string `msgpack:"translated_lyrics" json:"translated_lyrics"`
	VideoURL         string `msgpack:"youtube_url" json:"youtube_url"`

	// CreatedAt is stamped by the first write only. CachedAt moves with
	// every write.
	CreatedAt time.Time `msgpack:"created_at" json:"created_at"`
	CachedAt  time.Time `msgpack:"cached_at" json:"cached_at"`
}

// NewSkeleton returns an entry with metadata filled in and every enrichment
// field set to its placeholder.
func NewSkeleton(md Metadata) *Entry {
	return &Entry{
		TrackID:          md.TrackID,
		Title:            md.Title,
		ArtistName:       md.ArtistName,
		ArtistID:         md.ArtistID,
		AlbumID:          md.AlbumID,
		ImageURL:         md.ImageURL,
		Lyrics:           PendingLyrics,
		RomanizedLyrics:  Pending,
		TranslatedLyrics: Pending,
		VideoURL:         "",
	}
}

// Key returns the cache key of the entry.
func (e *Entry) Key() string {
	return CacheKey(e.TrackID)
}

// Clone returns a copy of the entry.
func (e *Entry) Clone() *Entry {
	c := *e
	return &c
}
