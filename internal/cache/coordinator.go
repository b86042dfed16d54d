// Package cache implements the size-bounded track cache on top of a storage
// backend.
//
// Residency follows least-frequently-used eviction over the access ledger.
// Favorited keys are exempt from eviction and never expire. Eviction is a
// best-effort policy: two concurrent inserts may both pass the capacity check
// and briefly overshoot the bound.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/piwi3910/trackcache/internal/metrics"
	"github.com/piwi3910/trackcache/internal/storage/backend"
	"github.com/piwi3910/trackcache/internal/storage/compression"
	"github.com/piwi3910/trackcache/internal/track"
)

var (
	// ErrNotFound is returned when an update targets an entry that no longer
	// exists (expired, evicted or deleted).
	ErrNotFound = errors.New("cache entry not found")

	// ErrUnavailable wraps backend failures the caller can act on.
	ErrUnavailable = errors.New("cache backend unavailable")
)

// Config holds coordinator settings.
type Config struct {
	// MaxEntries bounds the number of non-favorite entries.
	MaxEntries int
	// DefaultTTL is the expiry of non-favorite entries.
	DefaultTTL time.Duration
	// EvictionScanWindow is how many least-used keys are inspected when
	// looking for an eviction victim.
	EvictionScanWindow int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxEntries:         100,
		DefaultTTL:         3 * time.Hour,
		EvictionScanWindow: 10,
	}
}

// Coordinator keeps the entry store, access ledger and favorites set
// consistent with each other.
type Coordinator struct {
	store  backend.Backend
	codec  *compression.Codec
	config Config
	now    func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source used to stamp entries.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates a coordinator.
func New(store backend.Backend, codec *compression.Codec, cfg Config, opts ...Option) *Coordinator {
	def := DefaultConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = def.DefaultTTL
	}
	if cfg.EvictionScanWindow <= 0 {
		cfg.EvictionScanWindow = def.EvictionScanWindow
	}

	c := &Coordinator{
		store:  store,
		codec:  codec,
		config: cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the effective configuration.
func (c *Coordinator) Config() Config {
	return c.config
}

// Ping checks the backend.
func (c *Coordinator) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

// Get returns the entry stored under key and counts the access, including
// on a miss. Backend failures degrade to a miss.
func (c *Coordinator) Get(ctx context.Context, key string) (*track.Entry, bool) {
	if _, err := c.store.IncrAccess(ctx, key); err != nil {
		metrics.RecordBackendError("incr_access")
		log.Error().Err(err).Str("key", key).Msg("Failed to record cache access")
	}

	e, ok := c.read(ctx, key)
	if ok {
		metrics.RecordCacheHit()
	} else {
		metrics.RecordCacheMiss()
	}
	return e, ok
}

// Peek returns the entry without counting the access.
func (c *Coordinator) Peek(ctx context.Context, key string) (*track.Entry, bool) {
	return c.read(ctx, key)
}

// Contains reports whether an entry exists, without counting the access.
func (c *Coordinator) Contains(ctx context.Context, key string) bool {
	ok, err := c.store.Exists(ctx, key)
	if err != nil {
		metrics.RecordBackendError("exists")
		log.Error().Err(err).Str("key", key).Msg("Failed to check cache entry")
		return false
	}
	return ok
}

func (c *Coordinator) read(ctx context.Context, key string) (*track.Entry, bool) {
	data, err := c.store.GetEntry(ctx, key)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		metrics.RecordCacheError()
		metrics.RecordBackendError("get")
		log.Error().Err(err).Str("key", key).Msg("Failed to read cache entry")
		return nil, false
	}

	e, err := c.codec.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Ignoring undecodable cache entry")
		return nil, false
	}
	return e, true
}

// ttlFor returns the expiry for key based on its current favorite status.
func (c *Coordinator) ttlFor(ctx context.Context, key string) (time.Duration, error) {
	fav, err := c.store.IsFavorite(ctx, key)
	if err != nil {
		metrics.RecordBackendError("is_favorite")
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if fav {
		return backend.NoExpiry, nil
	}
	return c.config.DefaultTTL, nil
}

// Set stores entry under key. Storing a key that has no entry yet may evict
// the least-used non-favorite key first.
func (c *Coordinator) Set(ctx context.Context, key string, entry *track.Entry) error {
	exists, err := c.store.Exists(ctx, key)
	if err != nil {
		metrics.RecordBackendError("exists")
		log.Error().Err(err).Str("key", key).Msg("Failed to check cache entry before write")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if !exists {
		c.evictIfFull(ctx, key)
	}

	ttl, err := c.ttlFor(ctx, key)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to read favorite status")
		return err
	}

	stored := entry.Clone()
	stored.CachedAt = c.now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = stored.CachedAt
	}

	data, err := c.codec.Encode(stored)
	if err != nil {
		return fmt.Errorf("failed to encode entry %s: %w", key, err)
	}

	if err := c.store.PutEntry(ctx, key, data, ttl); err != nil {
		metrics.RecordBackendError("put")
		log.Error().Err(err).Str("key", key).Msg("Failed to write cache entry")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.ensureTracked(ctx, key)

	metrics.RecordCacheWrite("create")
	entry.CachedAt = stored.CachedAt
	entry.CreatedAt = stored.CreatedAt
	return nil
}

// Update applies mutate to the currently stored entry and writes it back
// atomically. Favorite status is re-read right before the write so a pin
// made while a job was running is honoured.
func (c *Coordinator) Update(ctx context.Context, key string, mutate func(e *track.Entry)) (*track.Entry, error) {
	ttl, err := c.ttlFor(ctx, key)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("Failed to read favorite status")
		return nil, err
	}

	var updated *track.Entry
	err = c.store.UpdateEntry(ctx, key, ttl, func(cur []byte) ([]byte, error) {
		e, err := c.codec.Decode(cur)
		if err != nil {
			return nil, err
		}
		mutate(e)
		e.CachedAt = c.now().UTC()
		updated = e
		return c.codec.Encode(e)
	})
	if errors.Is(err, backend.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.RecordBackendError("update")
		log.Error().Err(err).Str("key", key).Msg("Failed to update cache entry")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.ensureTracked(ctx, key)

	metrics.RecordCacheWrite("update")
	return updated, nil
}

func (c *Coordinator) ensureTracked(ctx context.Context, key string) {
	if err := c.store.EnsureAccess(ctx, key); err != nil {
		metrics.RecordBackendError("ensure_access")
		log.Warn().Err(err).Str("key", key).Msg("Failed to register key in access ledger")
	}
}

// evictIfFull removes the least-used non-favorite entry when the number of
// tracked non-favorite keys has reached the bound. Ledger keys without an
// entry met on the way are dropped from the ledger, and eviction stops early
// if that alone brings the count under the bound. Failures are logged and
// never block the write.
func (c *Coordinator) evictIfFull(ctx context.Context, incoming string) {
	count, err := c.store.NonFavoriteCount(ctx)
	if err != nil {
		metrics.RecordEviction("error")
		log.Error().Err(err).Msg("Failed to count non-favorite keys")
		return
	}

	limit := int64(c.config.MaxEntries)
	if count < limit {
		return
	}

	candidates, err := c.store.LeastAccessed(ctx, c.config.EvictionScanWindow)
	if err != nil {
		metrics.RecordEviction("error")
		log.Error().Err(err).Msg("Failed to read eviction candidates")
		return
	}

	for _, key := range candidates {
		if key == incoming {
			continue
		}
		fav, err := c.store.IsFavorite(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Skipping eviction candidate with unknown favorite status")
			continue
		}
		if fav {
			continue
		}

		exists, err := c.store.Exists(ctx, key)
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Skipping eviction candidate with unknown entry status")
			continue
		}
		if !exists {
			if err := c.store.RemoveAccess(ctx, key); err != nil {
				metrics.RecordEviction("error")
				log.Error().Err(err).Str("key", key).Msg("Failed to prune access ledger")
				return
			}
			metrics.RecordEviction("pruned")
			if count--; count < limit {
				return
			}
			continue
		}

		if err := c.store.DeleteKey(ctx, key); err != nil {
			metrics.RecordEviction("error")
			log.Error().Err(err).Str("key", key).Msg("Failed to evict cache entry")
			return
		}
		metrics.RecordEviction("evicted")
		log.Info().Str("key", key).Str("incoming", incoming).Msg("Evicted least-used cache entry")
		return
	}

	metrics.RecordEviction("no_candidate")
	log.Warn().
		Int("scan_window", c.config.EvictionScanWindow).
		Str("incoming", incoming).
		Msg("No evictable entry among least-used keys, cache will exceed its bound")
}

// Delete removes key from the entry store, access ledger and favorites.
func (c *Coordinator) Delete(ctx context.Context, key string) error {
	if err := c.store.DeleteKey(ctx, key); err != nil {
		metrics.RecordBackendError("delete")
		log.Error().Err(err).Str("key", key).Msg("Failed to delete cache entry")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	log.Info().Str("key", key).Msg("Deleted cache entry")
	return nil
}

// IsFavorite reports whether key is pinned. Backend failures report false.
func (c *Coordinator) IsFavorite(ctx context.Context, key string) bool {
	fav, err := c.store.IsFavorite(ctx, key)
	if err != nil {
		metrics.RecordBackendError("is_favorite")
		log.Error().Err(err).Str("key", key).Msg("Failed to read favorite status")
		return false
	}
	return fav
}

// Pin marks key as a favorite and removes its expiry.
func (c *Coordinator) Pin(ctx context.Context, key string) error {
	return c.PinBulk(ctx, []string{key})
}

// Unpin clears key's favorite mark and restores the default expiry.
func (c *Coordinator) Unpin(ctx context.Context, key string) error {
	return c.UnpinBulk(ctx, []string{key})
}

// PinBulk pins every key. Membership is changed in one call, then each
// existing entry loses its expiry; missing entries are skipped.
func (c *Coordinator) PinBulk(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.store.AddFavorites(ctx, keys...); err != nil {
		metrics.RecordBackendError("add_favorites")
		log.Error().Err(err).Int("count", len(keys)).Msg("Failed to add favorites")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.applyExpiry(ctx, keys, backend.NoExpiry)
	log.Info().Int("count", len(keys)).Msg("Pinned cache entries")
	return nil
}

// UnpinBulk unpins every key and restores the default expiry.
func (c *Coordinator) UnpinBulk(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.store.RemoveFavorites(ctx, keys...); err != nil {
		metrics.RecordBackendError("remove_favorites")
		log.Error().Err(err).Int("count", len(keys)).Msg("Failed to remove favorites")
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	c.applyExpiry(ctx, keys, c.config.DefaultTTL)
	log.Info().Int("count", len(keys)).Msg("Unpinned cache entries")
	return nil
}

func (c *Coordinator) applyExpiry(ctx context.Context, keys []string, ttl time.Duration) {
	for _, key := range keys {
		existed, err := c.store.SetExpiry(ctx, key, ttl)
		if err != nil {
			metrics.RecordBackendError("set_expiry")
			log.Error().Err(err).Str("key", key).Msg("Failed to change entry expiry")
			continue
		}
		if !existed {
			log.Warn().Str("key", key).Msg("Favorite changed for a key with no cached entry")
		}
	}
}

// ListRanked returns every cached track with its access count, split into
// favorites and history, each ordered by descending count.
func (c *Coordinator) ListRanked(ctx context.Context) (track.Ranked, error) {
	out := track.Ranked{Favorites: []track.RankedEntry{}, History: []track.RankedEntry{}}

	ranking, err := c.store.AccessRanking(ctx)
	if err != nil {
		metrics.RecordBackendError("ranking")
		return out, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	favs, err := c.store.Favorites(ctx)
	if err != nil {
		metrics.RecordBackendError("favorites")
		return out, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	counts := make(map[string]int64, len(ranking))
	keys := make([]string, 0, len(ranking)+len(favs))
	for _, r := range ranking {
		counts[r.Key] = r.Count
		keys = append(keys, r.Key)
	}
	favSet := make(map[string]bool, len(favs))
	for _, k := range favs {
		favSet[k] = true
		if _, ok := counts[k]; !ok {
			keys = append(keys, k)
		}
	}

	values, err := c.store.GetEntries(ctx, keys)
	if err != nil {
		metrics.RecordBackendError("get_entries")
		return out, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var ghosts []string
	for _, key := range keys {
		data, ok := values[key]
		if !ok {
			if !favSet[key] {
				ghosts = append(ghosts, key)
			}
			continue
		}
		e, err := c.codec.Decode(data)
		if err != nil || e.TrackID == "" {
			continue
		}

		row := track.NewRankedEntry(key, e, counts[key], favSet[key])
		if row.Favorite {
			out.Favorites = append(out.Favorites, row)
		} else {
			out.History = append(out.History, row)
		}
	}

	c.pruneGhosts(ctx, ghosts)

	byCount := func(rows []track.RankedEntry) {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].AccessCount > rows[j].AccessCount })
	}
	byCount(out.Favorites)
	byCount(out.History)
	return out, nil
}

// pruneGhosts drops ledger rows of non-favorite keys that have no entry,
// such as misses for ids that were never cached.
func (c *Coordinator) pruneGhosts(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := c.store.RemoveAccess(ctx, keys...); err != nil {
		metrics.RecordBackendError("remove_access")
		log.Warn().Err(err).Int("count", len(keys)).Msg("Failed to prune access ledger")
		return
	}
	log.Debug().Int("count", len(keys)).Msg("Pruned ledger keys without an entry")
}
