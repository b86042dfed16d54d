package content_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/piwi3910/trackcache/internal/cache"
	"github.com/piwi3910/trackcache/internal/content"
	"github.com/piwi3910/trackcache/internal/jobs"
	"github.com/piwi3910/trackcache/internal/provider"
	"github.com/piwi3910/trackcache/internal/storage/compression"
	"github.com/piwi3910/trackcache/internal/testutil"
	"github.com/piwi3910/trackcache/internal/testutil/mocks"
	"github.com/piwi3910/trackcache/internal/textproc"
	"github.com/piwi3910/trackcache/internal/track"
)

const fallbackURL = "https://www.youtube.com/embed/fallback"

type harness struct {
	clock      *testutil.Clock
	cache      *cache.Coordinator
	jobs       *mocks.Submitter
	lyrics     *mocks.Lyrics
	video      *mocks.Video
	translator *mocks.Translator
	metadata   *mocks.Metadata
	orch       *content.Orchestrator
}

func newHarness(t *testing.T, cooldown time.Duration) *harness {
	t.Helper()

	h := &harness{
		clock:      testutil.NewClock(),
		jobs:       mocks.NewSubmitter(),
		lyrics:     mocks.NewLyrics(testutil.DefaultTestLyrics),
		video:      mocks.NewVideo(testutil.DefaultTestVideoURL),
		translator: mocks.NewTranslator("EN: "),
		metadata:   mocks.NewMetadata(testutil.NewTestMetadata("T1"), testutil.NewTestMetadata("T2")),
	}
	h.cache, _ = testutil.NewCoordinator(t, cache.Config{}, h.clock)

	cfg := content.Config{
		FallbackVideoURL: fallbackURL,
		HealCooldown:     cooldown,
		HealStaleAfter:   2 * time.Minute,
	}
	h.orch = content.New(h.cache, h.jobs, content.Providers{
		Lyrics:     h.lyrics,
		Video:      h.video,
		Translator: h.translator,
	}, cfg, content.WithClock(h.clock.Now))
	return h
}

func (h *harness) stored(t *testing.T, id string) *track.Entry {
	t.Helper()
	e, ok := h.cache.Peek(context.Background(), track.CacheKey(id))
	require.True(t, ok, "entry %s should exist", id)
	return e
}

func TestEnsureMissCreatesSkeletonAndPopulates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Minute)

	e, err := h.orch.Ensure(ctx, "T1", h.metadata)
	require.NoError(t, err)
	testutil.AssertMetadataEqual(t, testutil.NewTestMetadata("T1"), e)
	testutil.AssertSkeleton(t, e)
	assert.Equal(t, []string{content.JobLyrics, content.JobVideo}, h.jobs.Submitted())

	assert.Equal(t, 3, h.jobs.RunAll(ctx))
	assert.Equal(t, 1, h.jobs.Count(content.JobTranslation))

	got := h.stored(t, "T1")
	assert.True(t, got.Complete())
	assert.Equal(t, textproc.CleanLyrics(testutil.DefaultTestLyrics), got.Lyrics)
	assert.Equal(t, textproc.Romanize(got.Lyrics), got.RomanizedLyrics)
	assert.Equal(t, textproc.Format("EN: "+got.Lyrics), got.TranslatedLyrics)
	assert.Equal(t, testutil.DefaultTestVideoURL, got.VideoURL)
	assert.Equal(t, []string{got.Lyrics}, h.translator.Inputs())
}

func TestEnsureHitReturnsStoredEntry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Minute)

	complete := testutil.NewCompleteEntry("T1")
	require.NoError(t, h.cache.Set(ctx, complete.Key(), complete))

	e, err := h.orch.Ensure(ctx, "T1", h.metadata)
	require.NoError(t, err)
	assert.Equal(t, complete.Lyrics, e.Lyrics)
	assert.Zero(t, h.metadata.Calls())
	assert.Empty(t, h.jobs.Submitted())
}

func TestEnsureUnknownTrack(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Minute)

	_, err := h.orch.Ensure(ctx, "nope", h.metadata)
	assert.ErrorIs(t, err, content.ErrTrackNotFound)

	_, ok := h.cache.Peek(ctx, track.CacheKey("nope"))
	assert.False(t, ok)
	assert.Empty(t, h.jobs.Submitted())
}

func TestEnsureMetadataFailure(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.metadata.SetError(errors.New("upstream 500"))

	_, err := h.orch.Ensure(context.Background(), "T1", h.metadata)
	require.Error(t, err)
	assert.NotErrorIs(t, err, content.ErrTrackNotFound)
	assert.Empty(t, h.jobs.Submitted())
}

func TestEnsureConcurrentMissesShareLookup(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Minute)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := h.orch.Ensure(ctx, "T1", h.metadata)
			assert.NoError(t, err)
			assert.Equal(t, "T1", e.TrackID)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.metadata.Calls())
	assert.Equal(t, 1, h.jobs.Count(content.JobLyrics))
	assert.Equal(t, 1, h.jobs.Count(content.JobVideo))
}

func TestEnsureStoresSkeletonOnlyOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Minute)

	_, err := h.orch.Ensure(ctx, "T1", h.metadata)
	require.NoError(t, err)
	_, err = h.orch.Ensure(ctx, "T1", h.metadata)
	require.NoError(t, err)

	assert.Equal(t, 1, h.metadata.Calls())
	assert.Equal(t, 1, h.jobs.Count(content.JobLyrics), "cooldown suppresses a second lyrics job")
}

func TestLyricsFailureMarksTranslationWithoutTranslationJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Minute)
	h.lyrics.SetResult("", errors.New("lyrics site down"))

	_, err := h.orch.Ensure(ctx, "T1", h.metadata)
	require.NoError(t, err)
	h.jobs.RunAll(ctx)

	got := h.stored(t, "T1")
	assert.Equal(t, track.LyricsError, got.Lyrics)
	assert.Equal(t, track.GenericError, got.RomanizedLyrics)
	assert.Equal(t, track.TranslationUnavailable, got.TranslatedLyrics)
	assert.Equal(t, track.StateFailed, got.TranslationState())
	assert.Zero(t, h.jobs.Count(content.JobTranslation))
	assert.Empty(t, h.translator.Inputs())
}

func TestLyricsNotFound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Minute)
	h.lyrics.SetResult("", provider.ErrNotFound)

	_, err := h.orch.Ensure(ctx, "T1", h.metadata)
	require.NoError(t, err)
	h.jobs.RunAll(ctx)

	got := h.stored(t, "T1")
	assert.Equal(t, track.LyricsNotFound, got.Lyrics)
	assert.Equal(t, track.LyricsNotFound, got.RomanizedLyrics)
	assert.Equal(t, track.TranslationUnavailable, got.TranslatedLyrics)
	assert.True(t, got.Complete())
	assert.Zero(t, h.jobs.Count(content.JobTranslation))
}

func TestLyricsEmptyAfterCleaningCountsAsNotFound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Minute)
	h.lyrics.SetResult("[Chorus]\n\n12Embed", nil)

	_, err := h.orch.Ensure(ctx, "T1", h.metadata)
	require.NoError(t, err)
	h.jobs.RunAll(ctx)

	assert.Equal(t, track.LyricsNotFound, h.stored(t, "T1").Lyrics)
	assert.Zero(t, h.jobs.Count(content.JobTranslation))
}

func TestTranslationFailureIsHealedOnNextRead(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	h.translator.SetError(errors.New("quota exceeded"))

	_, err := h.orch.Ensure(ctx, "T1", h.metadata)
	require.NoError(t, err)
	h.jobs.RunAll(ctx)

	got := h.stored(t, "T1")
	assert.Equal(t, track.TranslationFailed, got.TranslatedLyrics)
	assert.True(t, got.TranslationNeedsRetry())

	h.translator.SetError(nil)
	h.jobs.Reset()

	_, ok := h.orch.Get(ctx, "T1")
	require.True(t, ok)
	assert.Equal(t, []string{content.JobTranslation}, h.jobs.Submitted())

	h.jobs.RunAll(ctx)
	assert.Equal(t, track.StateReady, h.stored(t, "T1").TranslationState())
}

func TestVideoFailureStoresFallback(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Minute)
	h.video.SetResult("", errors.New("no results"))

	_, err := h.orch.Ensure(ctx, "T1", h.metadata)
	require.NoError(t, err)
	h.jobs.RunAll(ctx)

	assert.Equal(t, fallbackURL, h.stored(t, "T1").VideoURL)
}

func TestJobResultsDroppedAfterDelete(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Minute)

	_, err := h.orch.Ensure(ctx, "T1", h.metadata)
	require.NoError(t, err)
	require.NoError(t, h.cache.Delete(ctx, track.CacheKey("T1")))

	h.jobs.RunAll(ctx)

	_, ok := h.cache.Peek(ctx, track.CacheKey("T1"))
	assert.False(t, ok, "jobs must not resurrect a deleted entry")
	assert.Zero(t, h.jobs.Count(content.JobTranslation))
}

func TestHealSkipsCompleteEntry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)

	e := testutil.NewCompleteEntry("T1")
	require.NoError(t, h.cache.Set(ctx, e.Key(), e))

	for range 3 {
		got, ok := h.orch.Get(ctx, "T1")
		require.True(t, ok)
		assert.Empty(t, h.orch.CheckAndHeal(ctx, got))
	}
	assert.Empty(t, h.jobs.Submitted())
}

func TestHealResubmitsOnlyMissingFields(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)

	e := testutil.NewCompleteEntry("T1")
	e.VideoURL = ""
	require.NoError(t, h.cache.Set(ctx, e.Key(), e))

	healed := h.orch.CheckAndHeal(ctx, h.stored(t, "T1"))
	assert.Equal(t, []track.Field{track.FieldVideo}, healed)
	assert.Equal(t, []string{content.JobVideo}, h.jobs.Submitted())
}

func TestHealCooldownSuppressesRepeats(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Minute)

	e := testutil.NewCompleteEntry("T1")
	e.VideoURL = ""
	require.NoError(t, h.cache.Set(ctx, e.Key(), e))

	for range 5 {
		_, ok := h.orch.Get(ctx, "T1")
		require.True(t, ok)
	}
	assert.Equal(t, 1, h.jobs.Count(content.JobVideo))
}

func TestHealRetriesStaleLyrics(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)

	e := track.NewSkeleton(testutil.NewTestMetadata("T2"))
	require.NoError(t, h.cache.Set(ctx, e.Key(), e))

	healed := h.orch.CheckAndHeal(ctx, h.stored(t, "T2"))
	assert.Equal(t, []track.Field{track.FieldVideo}, healed, "fresh skeleton lyrics are left alone")

	h.jobs.Reset()
	h.clock.Advance(3 * time.Minute)

	healed = h.orch.CheckAndHeal(ctx, h.stored(t, "T2"))
	assert.ElementsMatch(t, []track.Field{track.FieldVideo, track.FieldLyrics}, healed)
	assert.Equal(t, 1, h.jobs.Count(content.JobLyrics))
}

func TestStaleLyricsTimerSurvivesOtherWrites(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)

	e := track.NewSkeleton(testutil.NewTestMetadata("T2"))
	require.NoError(t, h.cache.Set(ctx, e.Key(), e))

	h.clock.Advance(90 * time.Second)
	_, err := h.cache.Update(ctx, e.Key(), func(e *track.Entry) { e.VideoURL = testutil.DefaultTestVideoURL })
	require.NoError(t, err)

	h.clock.Advance(40 * time.Second)
	healed := h.orch.CheckAndHeal(ctx, h.stored(t, "T2"))
	assert.Equal(t, []track.Field{track.FieldLyrics}, healed)
}

func TestHealReleasesClaimWhenSubmitFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, time.Minute)

	e := testutil.NewCompleteEntry("T1")
	e.VideoURL = ""
	require.NoError(t, h.cache.Set(ctx, e.Key(), e))

	h.jobs.SetError(jobs.ErrQueueFull)
	assert.Empty(t, h.orch.CheckAndHeal(ctx, h.stored(t, "T1")))

	h.jobs.SetError(nil)
	assert.Equal(t, []track.Field{track.FieldVideo}, h.orch.CheckAndHeal(ctx, h.stored(t, "T1")))
}

func TestHealIgnoresNilEntry(t *testing.T) {
	h := newHarness(t, 0)
	assert.Nil(t, h.orch.CheckAndHeal(context.Background(), nil))
}

func TestStatusDoesNotHeal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)

	e := track.NewSkeleton(testutil.NewTestMetadata("T1"))
	require.NoError(t, h.cache.Set(ctx, e.Key(), e))

	got, ok := h.orch.Status(ctx, "T1")
	require.True(t, ok)
	assert.Equal(t, track.RecordSkeleton, got.RecordState())
	assert.Empty(t, h.jobs.Submitted())

	_, ok = h.orch.Status(ctx, "T2")
	assert.False(t, ok)
}

func TestCreateSkeleton(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, 0)
	md := testutil.NewTestMetadata("T1")

	e, created, err := h.orch.CreateSkeleton(ctx, md)
	require.NoError(t, err)
	assert.True(t, created)
	testutil.AssertSkeleton(t, e)

	_, created, err = h.orch.CreateSkeleton(ctx, md)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Empty(t, h.jobs.Submitted())
}

func TestEnsureServesSkeletonWhenBackendDown(t *testing.T) {
	ctx := context.Background()
	b := mocks.NewBackend()
	codec, err := compression.NewCodec(compression.DefaultConfig())
	require.NoError(t, err)
	c := cache.New(b, codec, cache.Config{})

	submitter := mocks.NewSubmitter()
	orch := content.New(c, submitter, content.Providers{
		Lyrics:     mocks.NewLyrics("x"),
		Video:      mocks.NewVideo("y"),
		Translator: mocks.NewTranslator(""),
	}, content.DefaultConfig())

	b.SetError("*", errors.New("connection refused"))

	e, err := orch.Ensure(ctx, "T1", mocks.NewMetadata(testutil.NewTestMetadata("T1")))
	require.NoError(t, err)
	testutil.AssertSkeleton(t, e)
	assert.Empty(t, submitter.Submitted())
}

func TestMetadataLookupFunc(t *testing.T) {
	lookup := content.MetadataLookupFunc(func(_ context.Context, id string) (track.Metadata, error) {
		return testutil.NewTestMetadata(id), nil
	})
	h := newHarness(t, 0)

	e, err := h.orch.Ensure(context.Background(), "X9", lookup)
	require.NoError(t, err)
	assert.Equal(t, "X9", e.TrackID)
}
