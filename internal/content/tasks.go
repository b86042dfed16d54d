package content

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/piwi3910/trackcache/internal/cache"
	"github.com/piwi3910/trackcache/internal/jobs"
	"github.com/piwi3910/trackcache/internal/provider"
	"github.com/piwi3910/trackcache/internal/textproc"
	"github.com/piwi3910/trackcache/internal/track"
)

// Job names.
const (
	JobLyrics      = "lyrics"
	JobTranslation = "translation"
	JobVideo       = "video"
)

// LyricsTask returns the two-stage lyrics pipeline for e: fetch, clean and
// romanize the lyrics, then, only if real lyrics were stored, submit the
// translation job.
func (o *Orchestrator) LyricsTask(e *track.Entry) jobs.Task {
	key, trackID := e.Key(), e.TrackID
	title, artist := e.Title, e.ArtistName

	return jobs.Then(o.submitter, JobLyrics, key,
		func(ctx context.Context) (string, error) {
			return o.populateLyrics(ctx, key, trackID, title, artist)
		},
		func(lyrics string) (jobs.Task, bool) {
			if lyrics == "" {
				return jobs.Task{}, false
			}
			o.mark(key, track.FieldTranslation)
			return o.TranslationTask(key, lyrics), true
		},
	)
}

// populateLyrics writes the lyrics and romanized fields and returns the
// stored lyrics, or "" when there is nothing to translate.
func (o *Orchestrator) populateLyrics(ctx context.Context, key, trackID, title, artist string) (string, error) {
	raw, err := o.providers.Lyrics.FetchLyrics(ctx, title, artist)

	var cleaned string
	if err == nil {
		cleaned = textproc.CleanLyrics(raw)
	}

	switch {
	case errors.Is(err, provider.ErrNotFound) || (err == nil && strings.TrimSpace(cleaned) == ""):
		log.Info().Str("track_id", trackID).Msg("No lyrics found")
		return "", o.write(ctx, key, func(e *track.Entry) {
			e.Lyrics = track.LyricsNotFound
			e.RomanizedLyrics = track.LyricsNotFound
			markTranslationUnavailable(e)
		})

	case err != nil:
		if werr := o.write(ctx, key, func(e *track.Entry) {
			e.Lyrics = track.LyricsError
			e.RomanizedLyrics = track.GenericError
			markTranslationUnavailable(e)
		}); werr != nil {
			log.Error().Err(werr).Str("track_id", trackID).Msg("Failed to store lyrics failure")
		}
		return "", fmt.Errorf("fetch lyrics for %s: %w", trackID, err)
	}

	romanized := textproc.Romanize(cleaned)

	_, err = o.cache.Update(ctx, key, func(e *track.Entry) {
		e.Lyrics = cleaned
		e.RomanizedLyrics = romanized
		if e.TranslationState() == track.StatePending {
			e.TranslatedLyrics = track.TranslationInProgress
		}
	})
	if errors.Is(err, cache.ErrNotFound) {
		log.Info().Str("track_id", trackID).Msg("Entry gone before lyrics were stored, dropping result")
		return "", nil
	}
	if err != nil {
		return "", err
	}

	log.Info().Str("track_id", trackID).Msg("Populated lyrics")
	return cleaned, nil
}

// markTranslationUnavailable closes out a translation that can no longer
// happen because there is no text.
func markTranslationUnavailable(e *track.Entry) {
	if e.TranslationState() == track.StatePending {
		e.TranslatedLyrics = track.TranslationUnavailable
	}
}

// TranslationTask translates text and stores the result under key.
func (o *Orchestrator) TranslationTask(key, text string) jobs.Task {
	return jobs.Task{
		Name: JobTranslation,
		Key:  key,
		Run: func(ctx context.Context) error {
			translated, err := o.providers.Translator.Translate(ctx, text)
			formatted := textproc.Format(translated)
			if err == nil && formatted == "" {
				err = errors.New("empty translation")
			}

			if err != nil {
				if werr := o.write(ctx, key, func(e *track.Entry) {
					e.TranslatedLyrics = track.TranslationFailed
				}); werr != nil {
					log.Error().Err(werr).Str("key", key).Msg("Failed to store translation failure")
				}
				return fmt.Errorf("translate %s: %w", key, err)
			}

			if err := o.write(ctx, key, func(e *track.Entry) {
				e.TranslatedLyrics = formatted
			}); err != nil {
				return err
			}
			log.Info().Str("key", key).Msg("Populated translation")
			return nil
		},
	}
}

// VideoTask looks up the video link for e. A failed lookup stores the
// fallback link.
func (o *Orchestrator) VideoTask(e *track.Entry) jobs.Task {
	key, title, artist := e.Key(), e.Title, e.ArtistName

	return jobs.Task{
		Name: JobVideo,
		Key:  key,
		Run: func(ctx context.Context) error {
			url, err := o.providers.Video.FindVideo(ctx, title, artist)
			if err != nil || url == "" {
				log.Warn().Err(err).Str("key", key).Msg("Video lookup failed, using fallback")
				url = o.config.FallbackVideoURL
			}
			if url == "" {
				return fmt.Errorf("video lookup for %s: no result and no fallback", key)
			}

			if werr := o.write(ctx, key, func(e *track.Entry) {
				e.VideoURL = url
			}); werr != nil {
				return werr
			}
			return err
		},
	}
}

// write applies mutate to the stored entry. A vanished entry is not an
// error: the result is dropped.
func (o *Orchestrator) write(ctx context.Context, key string, mutate func(e *track.Entry)) error {
	_, err := o.cache.Update(ctx, key, mutate)
	if errors.Is(err, cache.ErrNotFound) {
		log.Info().Str("key", key).Msg("Entry gone before job result was stored, dropping result")
		return nil
	}
	return err
}
