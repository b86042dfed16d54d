package mocks

import (
	"context"
	"sync"

	"github.com/piwi3910/trackcache/internal/provider"
	"github.com/piwi3910/trackcache/internal/track"
)

// Lyrics is a fake lyrics provider.
type Lyrics struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

// NewLyrics returns a provider answering text.
func NewLyrics(text string) *Lyrics {
	return &Lyrics{text: text}
}

// SetResult changes the answer.
func (l *Lyrics) SetResult(text string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.text, l.err = text, err
}

// Calls returns how many lookups were made.
func (l *Lyrics) Calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func (l *Lyrics) FetchLyrics(_ context.Context, _, _ string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.text, l.err
}

// Video is a fake video provider.
type Video struct {
	mu    sync.Mutex
	url   string
	err   error
	calls int
}

// NewVideo returns a provider answering url.
func NewVideo(url string) *Video {
	return &Video{url: url}
}

// SetResult changes the answer.
func (v *Video) SetResult(url string, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.url, v.err = url, err
}

// Calls returns how many lookups were made.
func (v *Video) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

func (v *Video) FindVideo(_ context.Context, _, _ string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	return v.url, v.err
}

// Translator is a fake translator. With no fixed result it echoes the
// input with a prefix.
type Translator struct {
	mu     sync.Mutex
	prefix string
	err    error
	inputs []string
}

// NewTranslator returns a translator that prefixes its input.
func NewTranslator(prefix string) *Translator {
	return &Translator{prefix: prefix}
}

// SetError makes translations fail.
func (tr *Translator) SetError(err error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.err = err
}

// Inputs returns the texts that were translated.
func (tr *Translator) Inputs() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.inputs...)
}

func (tr *Translator) Translate(_ context.Context, text string) (string, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.inputs = append(tr.inputs, text)
	if tr.err != nil {
		return "", tr.err
	}
	return tr.prefix + text, nil
}

// Metadata is a fake metadata provider keyed by track id.
type Metadata struct {
	mu     sync.Mutex
	tracks map[string]track.Metadata
	err    error
	calls  int
}

// NewMetadata returns a provider knowing the given tracks.
func NewMetadata(tracks ...track.Metadata) *Metadata {
	m := &Metadata{tracks: make(map[string]track.Metadata)}
	for _, md := range tracks {
		m.tracks[md.TrackID] = md
	}
	return m
}

// SetError makes every lookup fail with err.
func (m *Metadata) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many lookups were made.
func (m *Metadata) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Lookup returns the known metadata or provider.ErrNotFound.
func (m *Metadata) Lookup(_ context.Context, trackID string) (track.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return track.Metadata{}, m.err
	}
	md, ok := m.tracks[trackID]
	if !ok {
		return track.Metadata{}, provider.ErrNotFound
	}
	return md, nil
}
