package track

import (
	"strings"
	"time"
)

// Field names an enrichment field of an Entry.
type Field string

const (
	FieldLyrics      Field = "lyrics"
	FieldRomanized   Field = "romanized"
	FieldTranslation Field = "translation"
	FieldVideo       Field = "video"
)

// FieldState is the population state of a single field.
type FieldState int

const (
	// StatePending means the field still holds a placeholder.
	StatePending FieldState = iota
	// StateReady means the field holds real content.
	StateReady
	// StateFailed means the field holds a terminal error marker.
	StateFailed
)

func (s FieldState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RecordState summarizes an entry.
type RecordState string

const (
	RecordAbsent   RecordState = "absent"
	RecordSkeleton RecordState = "skeleton"
	RecordPartial  RecordState = "partial"
	RecordComplete RecordState = "complete"
)

// LyricsState reports the state of the primary text field.
func (e *Entry) LyricsState() FieldState {
	return textState(e.Lyrics)
}

// RomanizedState reports the state of the derived text field.
func (e *Entry) RomanizedState() FieldState {
	return textState(e.RomanizedLyrics)
}

// TranslationState reports the state of the translated text field.
func (e *Entry) TranslationState() FieldState {
	switch e.TranslatedLyrics {
	case "", Pending, TranslationInProgress:
		return StatePending
	case TranslationFailed, TranslationUnavailable, LyricsNotFound, LyricsError, GenericError:
		return StateFailed
	}
	return StateReady
}

// VideoState reports the state of the media link.
func (e *Entry) VideoState() FieldState {
	if e.VideoURL == "" {
		return StatePending
	}
	return StateReady
}

// State returns the state of the named field.
func (e *Entry) State(f Field) FieldState {
	switch f {
	case FieldLyrics:
		return e.LyricsState()
	case FieldRomanized:
		return e.RomanizedState()
	case FieldTranslation:
		return e.TranslationState()
	case FieldVideo:
		return e.VideoState()
	}
	return StatePending
}

// Fields lists every enrichment field.
func Fields() []Field {
	return []Field{FieldLyrics, FieldRomanized, FieldTranslation, FieldVideo}
}

// PendingFields lists the fields that still hold a placeholder.
func (e *Entry) PendingFields() []Field {
	var out []Field
	for _, f := range Fields() {
		if e.State(f) == StatePending {
			out = append(out, f)
		}
	}
	return out
}

// RecordState classifies the entry. Failed fields are terminal and count
// towards completion.
func (e *Entry) RecordState() RecordState {
	pending := len(e.PendingFields())
	switch {
	case pending == 0:
		return RecordComplete
	case pending == len(Fields()):
		return RecordSkeleton
	default:
		return RecordPartial
	}
}

// Complete reports whether no field is pending.
func (e *Entry) Complete() bool {
	return e.RecordState() == RecordComplete
}

// TranslationNeedsRetry reports whether the translation should be requested
// again: it is pending, in progress or failed, and there is real text to
// translate.
func (e *Entry) TranslationNeedsRetry() bool {
	if e.LyricsState() != StateReady {
		return false
	}
	switch e.TranslatedLyrics {
	case "", Pending, TranslationInProgress, TranslationFailed:
		return true
	}
	return false
}

// Age returns how long ago the entry was first stored. Entries written
// before CreatedAt existed fall back to their last write.
func (e *Entry) Age(now time.Time) time.Duration {
	since := e.CreatedAt
	if since.IsZero() {
		since = e.CachedAt
	}
	if since.IsZero() {
		return 0
	}
	return now.Sub(since)
}

func textState(s string) FieldState {
	switch strings.TrimSpace(s) {
	case "", PendingLyrics, Pending:
		return StatePending
	case LyricsNotFound, LyricsError, GenericError:
		return StateFailed
	}
	return StateReady
}
