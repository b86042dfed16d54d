package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/piwi3910/trackcache/internal/priming"
	"github.com/piwi3910/trackcache/internal/provider"
	"github.com/piwi3910/trackcache/internal/track"
)

// lookupConcurrency bounds parallel metadata lookups per priming request.
const lookupConcurrency = 8

// StartPrimingRequest names the tracks to prime, either directly or as a
// playlist. playlist_id wins when both are set.
type StartPrimingRequest struct {
	TrackIDs   []string `json:"track_ids"`
	PlaylistID string   `json:"playlist_id"`
}

// StartPriming starts a bulk priming job.
func (h *Handler) StartPriming(w http.ResponseWriter, r *http.Request) {
	var req StartPrimingRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var (
		units []track.Metadata
		err   error
	)
	switch {
	case strings.TrimSpace(req.PlaylistID) != "":
		units, err = h.metadata.PlaylistTracks(r.Context(), bearerToken(r), strings.TrimSpace(req.PlaylistID))
	case len(req.TrackIDs) > 0:
		if limit := h.priming.Config().MaxUnits; limit > 0 && len(req.TrackIDs) > limit {
			writeError(w, fmt.Sprintf("At most %d tracks per request", limit), http.StatusBadRequest)
			return
		}
		if _, err := trackKeys(req.TrackIDs); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		units, err = h.resolveTracks(r.Context(), bearerToken(r), req.TrackIDs)
	default:
		writeError(w, "track_ids or playlist_id is required", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeProviderError(w, req.PlaylistID, err)
		return
	}

	job, err := h.priming.StartJob(r.Context(), units)
	switch {
	case errors.Is(err, priming.ErrTooManyUnits):
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		writeError(w, "Priming unavailable", http.StatusServiceUnavailable)
		return
	}

	if job.ID == "" {
		writeJSON(w, http.StatusOK, job)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

// resolveTracks looks up the metadata of every id that is not cached yet.
// Cached, repeated and unknown ids come back empty so the tracker counts
// them as skipped.
func (h *Handler) resolveTracks(ctx context.Context, bearer string, ids []string) ([]track.Metadata, error) {
	units := make([]track.Metadata, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)

	seen := make(map[string]struct{}, len(ids))
	for i, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		_, dup := seen[id]
		seen[id] = struct{}{}
		if dup || h.cache.Contains(ctx, track.CacheKey(id)) {
			continue
		}

		g.Go(func() error {
			md, err := h.metadata.Track(gctx, bearer, id)
			if errors.Is(err, provider.ErrNotFound) {
				log.Info().Str("track_id", id).Msg("Skipping unknown track in priming request")
				return nil
			}
			if err != nil {
				return err
			}
			md.TrackID = id
			units[i] = md
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return units, nil
}

// PollPriming reports the progress of a priming job.
func (h *Handler) PollPriming(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.priming.Poll(r.Context(), chi.URLParam(r, "jobID")))
}
