// Package api serves the trackcache HTTP API.
//
// Routes are mounted under /api/v1 by the server. Requests may carry an
// "Authorization: Bearer <token>" header; the token is passed untouched to
// the metadata provider and never stored.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/piwi3910/trackcache/internal/cache"
	"github.com/piwi3910/trackcache/internal/content"
	"github.com/piwi3910/trackcache/internal/priming"
	"github.com/piwi3910/trackcache/internal/provider"
	"github.com/piwi3910/trackcache/internal/provider/spotify"
	"github.com/piwi3910/trackcache/internal/track"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// MetadataSource resolves tracks and playlists on behalf of a caller.
type MetadataSource interface {
	Track(ctx context.Context, bearer, trackID string) (track.Metadata, error)
	PlaylistTracks(ctx context.Context, bearer, playlistID string) ([]track.Metadata, error)
}

// Handler handles API requests
type Handler struct {
	cache    *cache.Coordinator
	content  *content.Orchestrator
	priming  *priming.Tracker
	metadata MetadataSource
}

// NewHandler creates a new API handler
func NewHandler(c *cache.Coordinator, o *content.Orchestrator, t *priming.Tracker, md MetadataSource) *Handler {
	return &Handler{
		cache:    c,
		content:  o,
		priming:  t,
		metadata: md,
	}
}

// RegisterRoutes registers API routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	// Tracks
	r.Get("/tracks/{id}", h.GetTrack)
	r.Get("/tracks/{id}/status", h.GetTrackStatus)
	r.Delete("/tracks/{id}", h.DeleteTrack)

	// Cache listing
	r.Get("/cache", h.ListCache)
	r.Get("/cache/{id}", h.GetCached)

	// Favorites
	r.Post("/favorites/bulk", h.PinBulk)
	r.Delete("/favorites/bulk", h.UnpinBulk)
	r.Post("/favorites/{id}", h.Pin)
	r.Delete("/favorites/{id}", h.Unpin)

	// Priming
	r.Post("/priming/jobs", h.StartPriming)
	r.Get("/priming/jobs/{jobID}", h.PollPriming)
}

// lookupFor binds the caller's bearer token to the metadata source.
func (h *Handler) lookupFor(r *http.Request) content.MetadataLookup {
	bearer := bearerToken(r)
	return content.MetadataLookupFunc(func(ctx context.Context, trackID string) (track.Metadata, error) {
		return h.metadata.Track(ctx, bearer, trackID)
	})
}

// GetTrack returns the entry for a track, creating it on a miss.
func (h *Handler) GetTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := trackID(w, r)
	if !ok {
		return
	}

	e, err := h.content.Ensure(r.Context(), id, h.lookupFor(r))
	if err != nil {
		writeProviderError(w, id, err)
		return
	}

	writeJSON(w, http.StatusOK, e)
}

// GetCached returns a cached entry, counting the access and healing it, but
// never creates one.
func (h *Handler) GetCached(w http.ResponseWriter, r *http.Request) {
	id, ok := trackID(w, r)
	if !ok {
		return
	}
	e, ok := h.content.Get(r.Context(), id)
	if !ok {
		writeError(w, "Track not cached", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// TrackStatusResponse reports how far an entry has been populated.
type TrackStatusResponse struct {
	TrackID  string            `json:"track_id"`
	State    track.RecordState `json:"state"`
	Complete bool              `json:"complete"`
	Pending  []track.Field     `json:"pending_fields"`
	Entry    *track.Entry      `json:"entry,omitempty"`
}

// GetTrackStatus reports the population state of a cached entry without
// counting an access or submitting work.
func (h *Handler) GetTrackStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := trackID(w, r)
	if !ok {
		return
	}

	e, ok := h.content.Status(r.Context(), id)
	if !ok {
		writeJSON(w, http.StatusOK, TrackStatusResponse{
			TrackID: id,
			State:   track.RecordAbsent,
			Pending: track.Fields(),
		})
		return
	}

	pending := e.PendingFields()
	if pending == nil {
		pending = []track.Field{}
	}
	writeJSON(w, http.StatusOK, TrackStatusResponse{
		TrackID:  id,
		State:    e.RecordState(),
		Complete: e.Complete(),
		Pending:  pending,
		Entry:    e,
	})
}

// DeleteTrack removes a track from the cache.
func (h *Handler) DeleteTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := trackID(w, r)
	if !ok {
		return
	}
	if err := h.cache.Delete(r.Context(), track.CacheKey(id)); err != nil {
		writeError(w, "Cache unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCache returns cached entries split into favorites and history.
func (h *Handler) ListCache(w http.ResponseWriter, r *http.Request) {
	ranked, err := h.cache.ListRanked(r.Context())
	if err != nil {
		writeError(w, "Cache unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, ranked)
}

// FavoriteResponse reports a track's favorite mark.
type FavoriteResponse struct {
	TrackID  string `json:"track_id"`
	Favorite bool   `json:"is_favorite"`
}

// Pin marks a track as favorite.
func (h *Handler) Pin(w http.ResponseWriter, r *http.Request) {
	id, ok := trackID(w, r)
	if !ok {
		return
	}
	if err := h.cache.Pin(r.Context(), track.CacheKey(id)); err != nil {
		writeError(w, "Cache unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, FavoriteResponse{TrackID: id, Favorite: true})
}

// Unpin clears a track's favorite mark.
func (h *Handler) Unpin(w http.ResponseWriter, r *http.Request) {
	id, ok := trackID(w, r)
	if !ok {
		return
	}
	if err := h.cache.Unpin(r.Context(), track.CacheKey(id)); err != nil {
		writeError(w, "Cache unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, FavoriteResponse{TrackID: id, Favorite: false})
}

// BulkFavoritesRequest lists the tracks to pin or unpin.
type BulkFavoritesRequest struct {
	TrackIDs []string `json:"track_ids"`
}

// BulkFavoritesResponse reports how many tracks were changed.
type BulkFavoritesResponse struct {
	Updated  int  `json:"updated"`
	Favorite bool `json:"is_favorite"`
}

// PinBulk marks several tracks as favorites.
func (h *Handler) PinBulk(w http.ResponseWriter, r *http.Request) {
	h.bulkFavorites(w, r, true)
}

// UnpinBulk clears the favorite mark of several tracks.
func (h *Handler) UnpinBulk(w http.ResponseWriter, r *http.Request) {
	h.bulkFavorites(w, r, false)
}

func (h *Handler) bulkFavorites(w http.ResponseWriter, r *http.Request, pin bool) {
	var req BulkFavoritesRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	keys, err := trackKeys(req.TrackIDs)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(keys) == 0 {
		writeError(w, "track_ids is required", http.StatusBadRequest)
		return
	}

	if pin {
		err = h.cache.PinBulk(r.Context(), keys)
	} else {
		err = h.cache.UnpinBulk(r.Context(), keys)
	}
	if err != nil {
		writeError(w, "Cache unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, BulkFavoritesResponse{Updated: len(keys), Favorite: pin})
}

// trackKeys maps ids to cache keys, dropping blanks.
func trackKeys(ids []string) ([]string, error) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if !track.ValidID(id) {
			return nil, fmt.Errorf("invalid track id %q", id)
		}
		keys = append(keys, track.CacheKey(id))
	}
	return keys, nil
}

// trackID returns the {id} route parameter, answering 400 when it is not a
// well-formed track id.
func trackID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if !track.ValidID(id) {
		writeError(w, "Invalid track id", http.StatusBadRequest)
		return "", false
	}
	return id, true
}

// Helper functions

func bearerToken(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// writeProviderError maps a metadata failure to a response.
func writeProviderError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, content.ErrTrackNotFound), errors.Is(err, provider.ErrNotFound):
		writeError(w, "Track not found", http.StatusNotFound)
	case errors.Is(err, spotify.ErrNoCredentials):
		writeError(w, "Missing bearer token", http.StatusUnauthorized)
	default:
		var se *provider.StatusError
		if errors.As(err, &se) && (se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden) {
			writeError(w, "Metadata provider rejected the token", http.StatusUnauthorized)
			return
		}
		log.Error().Err(err).Str("track_id", id).Msg("Metadata lookup failed")
		writeError(w, "Metadata provider unavailable", http.StatusBadGateway)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
