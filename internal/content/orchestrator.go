// Package content builds and repairs cached track entries.
//
// A miss produces a skeleton entry immediately and hands the slow lookups
// (lyrics, translation, video) to background jobs that fill the fields in
// as they finish. A hit is checked for fields that are still pending or
// failed, and only those jobs are submitted again.
package content

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/piwi3910/trackcache/internal/cache"
	"github.com/piwi3910/trackcache/internal/jobs"
	"github.com/piwi3910/trackcache/internal/metrics"
	"github.com/piwi3910/trackcache/internal/provider"
	"github.com/piwi3910/trackcache/internal/track"
)

// ErrTrackNotFound is returned when the metadata provider does not know the
// track. No entry is created.
var ErrTrackNotFound = errors.New("track not found")

// LyricsFetcher looks up the lyrics of a song. It returns
// provider.ErrNotFound when there are none.
type LyricsFetcher interface {
	FetchLyrics(ctx context.Context, title, artist string) (string, error)
}

// VideoFinder looks up a playable video link for a song.
type VideoFinder interface {
	FindVideo(ctx context.Context, title, artist string) (string, error)
}

// Translator translates text into the configured language.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// MetadataLookup resolves a track id. It returns provider.ErrNotFound for
// unknown ids.
type MetadataLookup interface {
	Lookup(ctx context.Context, trackID string) (track.Metadata, error)
}

// MetadataLookupFunc adapts a function to MetadataLookup.
type MetadataLookupFunc func(ctx context.Context, trackID string) (track.Metadata, error)

func (f MetadataLookupFunc) Lookup(ctx context.Context, trackID string) (track.Metadata, error) {
	return f(ctx, trackID)
}

// Providers are the collaborators the population jobs call.
type Providers struct {
	Lyrics     LyricsFetcher
	Video      VideoFinder
	Translator Translator
}

// Config holds orchestrator settings.
type Config struct {
	// FallbackVideoURL is stored when the video lookup fails.
	FallbackVideoURL string
	// HealCooldown suppresses resubmitting the same field of the same
	// track more than once per window. Zero disables the guard.
	HealCooldown time.Duration
	// HealStaleAfter is how old an entry with pending lyrics must be before
	// the lyrics job is submitted again.
	HealStaleAfter time.Duration
	// GuardSize bounds the number of (track, field) pairs remembered.
	GuardSize int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		FallbackVideoURL: "https://www.youtube.com/embed/dQw4w9WgXcQ",
		HealCooldown:     30 * time.Second,
		HealStaleAfter:   2 * time.Minute,
		GuardSize:        4096,
	}
}

// Orchestrator creates skeleton entries and drives their population.
type Orchestrator struct {
	cache     *cache.Coordinator
	submitter jobs.Submitter
	providers Providers
	config    Config
	flight    singleflight.Group
	guardMu   sync.Mutex
	guard     *expirable.LRU[string, struct{}]
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source used for staleness checks.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator.
func New(c *cache.Coordinator, s jobs.Submitter, p Providers, cfg Config, opts ...Option) *Orchestrator {
	if cfg.GuardSize <= 0 {
		cfg.GuardSize = DefaultConfig().GuardSize
	}

	o := &Orchestrator{
		cache:     c,
		submitter: s,
		providers: p,
		config:    cfg,
		now:       time.Now,
	}
	if cfg.HealCooldown > 0 {
		o.guard = expirable.NewLRU[string, struct{}](cfg.GuardSize, nil, cfg.HealCooldown)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Get returns the cached entry for trackID, repairing it if needed.
func (o *Orchestrator) Get(ctx context.Context, trackID string) (*track.Entry, bool) {
	e, ok := o.cache.Get(ctx, track.CacheKey(trackID))
	if !ok {
		return nil, false
	}
	o.CheckAndHeal(ctx, e)
	return e, true
}

// Status returns the cached entry without counting the access or
// submitting any work.
func (o *Orchestrator) Status(ctx context.Context, trackID string) (*track.Entry, bool) {
	return o.cache.Peek(ctx, track.CacheKey(trackID))
}

// Ensure returns the entry for trackID. On a miss it resolves the metadata,
// stores a skeleton and submits the population jobs; concurrent misses for
// the same track share one lookup.
func (o *Orchestrator) Ensure(ctx context.Context, trackID string, lookup MetadataLookup) (*track.Entry, error) {
	key := track.CacheKey(trackID)

	if e, ok := o.cache.Get(ctx, key); ok {
		o.CheckAndHeal(ctx, e)
		return e, nil
	}

	v, err, _ := o.flight.Do(key, func() (any, error) {
		if e, ok := o.cache.Peek(ctx, key); ok {
			return e, nil
		}

		md, err := lookup.Lookup(ctx, trackID)
		if errors.Is(err, provider.ErrNotFound) {
			return nil, ErrTrackNotFound
		}
		if err != nil {
			return nil, fmt.Errorf("metadata lookup for %s: %w", trackID, err)
		}
		md.TrackID = trackID

		// Claimed before the write so a concurrent hit on the fresh
		// skeleton does not resubmit the same jobs.
		o.mark(key, track.FieldLyrics)
		o.mark(key, track.FieldVideo)

		e := track.NewSkeleton(md)
		if err := o.cache.Set(ctx, key, e); err != nil {
			o.release(key, track.FieldLyrics)
			o.release(key, track.FieldVideo)
			log.Warn().Err(err).Str("track_id", trackID).Msg("Serving skeleton without caching it")
			return e, nil
		}

		log.Info().Str("track_id", trackID).Msg("Cache miss, created skeleton and dispatching population jobs")
		o.dispatch(e)
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*track.Entry).Clone(), nil
}

// CreateSkeleton stores a skeleton for md if no entry exists and submits
// nothing. It reports whether a skeleton was written.
func (o *Orchestrator) CreateSkeleton(ctx context.Context, md track.Metadata) (*track.Entry, bool, error) {
	key := track.CacheKey(md.TrackID)
	if o.cache.Contains(ctx, key) {
		return nil, false, nil
	}

	e := track.NewSkeleton(md)
	if err := o.cache.Set(ctx, key, e); err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// dispatch submits the lyrics pipeline and the video job for a new entry.
func (o *Orchestrator) dispatch(e *track.Entry) {
	lyrics, video := o.PopulationTasks(e)
	if !o.submit(lyrics) {
		o.ReleaseClaims(e, track.FieldLyrics)
	}
	if !o.submit(video) {
		o.ReleaseClaims(e, track.FieldVideo)
	}
}

// PopulationTasks returns the lyrics pipeline and the video job for a fresh
// skeleton and records both as submitted for the heal cooldown. The caller
// submits them.
func (o *Orchestrator) PopulationTasks(e *track.Entry) (lyrics, video jobs.Task) {
	key := e.Key()
	o.mark(key, track.FieldLyrics)
	o.mark(key, track.FieldVideo)
	return o.LyricsTask(e), o.VideoTask(e)
}

// ReleaseClaims forgets the submissions recorded for fields of e, so the
// next read may resubmit them. Callers use it when a task returned by
// PopulationTasks could not be submitted.
func (o *Orchestrator) ReleaseClaims(e *track.Entry, fields ...track.Field) {
	key := e.Key()
	for _, f := range fields {
		o.release(key, f)
	}
}

// CheckAndHeal inspects e and resubmits the jobs for fields that are still
// pending or failed. It returns the fields it resubmitted. A complete entry
// submits nothing.
func (o *Orchestrator) CheckAndHeal(_ context.Context, e *track.Entry) []track.Field {
	if e == nil || e.TrackID == "" {
		return nil
	}

	key := e.Key()
	var healed []track.Field

	if e.VideoState() == track.StatePending && o.claim(key, track.FieldVideo) {
		if o.submit(o.VideoTask(e)) {
			healed = append(healed, track.FieldVideo)
		} else {
			o.release(key, track.FieldVideo)
		}
	}

	if e.TranslationNeedsRetry() && o.claim(key, track.FieldTranslation) {
		if o.submit(o.TranslationTask(key, e.Lyrics)) {
			healed = append(healed, track.FieldTranslation)
		} else {
			o.release(key, track.FieldTranslation)
		}
	}

	if e.LyricsState() == track.StatePending &&
		e.Age(o.now()) >= o.config.HealStaleAfter &&
		o.claim(key, track.FieldLyrics) {
		if o.submit(o.LyricsTask(e)) {
			healed = append(healed, track.FieldLyrics)
		} else {
			o.release(key, track.FieldLyrics)
		}
	}

	for _, f := range healed {
		metrics.RecordHeal(string(f))
	}
	if len(healed) > 0 {
		log.Info().Str("track_id", e.TrackID).Interface("fields", healed).Msg("Resubmitted jobs for incomplete entry")
	}
	return healed
}

func (o *Orchestrator) submit(t jobs.Task) bool {
	if err := o.submitter.Submit(t); err != nil {
		log.Warn().Err(err).Str("job", t.Name).Str("key", t.Key).Msg("Failed to submit job")
		return false
	}
	return true
}

func guardKey(key string, f track.Field) string {
	return key + "|" + string(f)
}

// claim records a submission for (key, field) and reports whether none was
// recorded within the cooldown.
func (o *Orchestrator) claim(key string, f track.Field) bool {
	if o.guard == nil {
		return true
	}
	o.guardMu.Lock()
	defer o.guardMu.Unlock()

	gk := guardKey(key, f)
	if o.guard.Contains(gk) {
		return false
	}
	o.guard.Add(gk, struct{}{})
	return true
}

func (o *Orchestrator) mark(key string, f track.Field) {
	if o.guard == nil {
		return
	}
	o.guardMu.Lock()
	o.guard.Add(guardKey(key, f), struct{}{})
	o.guardMu.Unlock()
}

func (o *Orchestrator) release(key string, f track.Field) {
	if o.guard == nil {
		return
	}
	o.guardMu.Lock()
	o.guard.Remove(guardKey(key, f))
	o.guardMu.Unlock()
}
