package track

// RankedEntry is an entry annotated with its access count.
type RankedEntry struct {
	Key         string `json:"key"`
	TrackID     string `json:"track_id"`
	Title       string `json:"song_title"`
	ArtistName  string `json:"artist_name"`
	ImageURL    string `json:"image_url"`
	AccessCount int64  `json:"access_count"`
	Favorite    bool   `json:"is_favorite"`
}

// Ranked is the cache listing split into pinned and unpinned entries, each
// ordered by descending access count.
type Ranked struct {
	Favorites []RankedEntry `json:"favorites"`
	History   []RankedEntry `json:"history"`
}

// NewRankedEntry builds a listing row for an entry.
func NewRankedEntry(key string, e *Entry, count int64, favorite bool) RankedEntry {
	return RankedEntry{
		Key:         key,
		TrackID:     e.TrackID,
		Title:       e.Title,
		ArtistName:  e.ArtistName,
		ImageURL:    e.ImageURL,
		AccessCount: count,
		Favorite:    favorite,
	}
}
