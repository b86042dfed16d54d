// Package backend defines the storage interface behind the track cache.
//
// A Backend holds three related structures plus a set of counters:
//
//   - entries: encoded track records with optional expiry
//   - the access ledger: key -> read/write count, used for LFU eviction
//   - the favorites set: keys exempt from eviction and expiry
//   - counters: small integers with expiry, used for priming job progress
//
// Implementations:
//
//   - redis: shared networked store (default)
//   - badger: embedded single-node store
//   - memory: process-local store for development and tests
//
// Entry values are opaque bytes; encoding lives in the compression package.
package backend

import (
	"context"
	"errors"
	"time"
)

// Common backend errors.
var (
	ErrNotFound = errors.New("key not found")
	ErrConflict = errors.New("concurrent update conflict")
)

// Well-known structure names shared by every implementation.
const (
	LedgerKey    = "track_access_counts"
	FavoritesKey = "favorite_tracks"
)

// NoExpiry stores a value without a time-to-live.
const NoExpiry time.Duration = 0

// UpdateFunc receives the currently stored value and returns its replacement.
type UpdateFunc func(current []byte) ([]byte, error)

// EntryStore holds encoded entries.
type EntryStore interface {
	// GetEntry returns ErrNotFound for missing or expired keys
	GetEntry(ctx context.Context, key string) ([]byte, error)

	// GetEntries returns the values that exist; missing keys are omitted
	GetEntries(ctx context.Context, keys []string) (map[string][]byte, error)

	Exists(ctx context.Context, key string) (bool, error)

	// PutEntry stores value. ttl <= 0 means no expiry.
	PutEntry(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// UpdateEntry atomically replaces the stored value with fn(current) and
	// applies ttl. It returns ErrNotFound if the key does not exist and
	// ErrConflict if concurrent writers kept winning.
	UpdateEntry(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error

	// SetExpiry changes the expiry of an existing key. ttl <= 0 removes the
	// expiry. existed is false if there was no such key.
	SetExpiry(ctx context.Context, key string, ttl time.Duration) (existed bool, err error)
}

// AccessCount is one row of the access ledger.
type AccessCount struct {
	Key   string
	Count int64
}

// Ledger counts accesses per key.
type Ledger interface {
	// IncrAccess adds one to key's count, creating it at 1.
	IncrAccess(ctx context.Context, key string) (int64, error)

	// EnsureAccess creates key with count 1 unless it already has a count.
	EnsureAccess(ctx context.Context, key string) error

	// RemoveAccess drops the ledger rows of keys. Entries and favorites are
	// untouched.
	RemoveAccess(ctx context.Context, keys ...string) error

	// LeastAccessed returns up to n keys in ascending count order.
	LeastAccessed(ctx context.Context, n int) ([]string, error)

	// AccessRanking returns every key in descending count order.
	AccessRanking(ctx context.Context) ([]AccessCount, error)

	LedgerSize(ctx context.Context) (int64, error)

	// NonFavoriteCount returns the number of ledger keys that are not
	// favorites. Favorites without a ledger row are not subtracted.
	NonFavoriteCount(ctx context.Context) (int64, error)
}

// FavoriteSet holds pinned keys.
type FavoriteSet interface {
	AddFavorites(ctx context.Context, keys ...string) error
	RemoveFavorites(ctx context.Context, keys ...string) error
	IsFavorite(ctx context.Context, key string) (bool, error)
	Favorites(ctx context.Context) ([]string, error)
	FavoriteCount(ctx context.Context) (int64, error)
}

// Counters are expiring integers.
type Counters interface {
	// InitCounter sets key to 0 with the given ttl.
	InitCounter(ctx context.Context, key string, ttl time.Duration) error

	// IncrCounter atomically increments an existing counter. It returns
	// ErrNotFound if the counter expired or was never created.
	IncrCounter(ctx context.Context, key string) (int64, error)

	GetCounter(ctx context.Context, key string) (int64, error)

	// ExpireCounter resets the counter's ttl.
	ExpireCounter(ctx context.Context, key string, ttl time.Duration) error
}

// Backend is the full storage interface.
type Backend interface {
	EntryStore
	Ledger
	FavoriteSet
	Counters

	// DeleteKey removes the entry, its ledger row and its favorite
	// membership together.
	DeleteKey(ctx context.Context, key string) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Name identifies the implementation in logs and health output.
	Name() string

	Close() error
}
