// Package memory implements the storage backend with process-local maps.
// It is intended for development and tests; contents are lost on restart.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/piwi3910/trackcache/internal/storage/backend"
)

type item struct {
	value   []byte
	expires time.Time
}

func (i item) expired(now time.Time) bool {
	return !i.expires.IsZero() && !now.Before(i.expires)
}

type counter struct {
	value   int64
	expires time.Time
}

// Store is an in-memory backend.Backend.
type Store struct {
	mu        sync.Mutex
	entries   map[string]item
	ledger    map[string]int64
	favorites map[string]struct{}
	counters  map[string]counter
	now       func() time.Time
	closed    bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		entries:   make(map[string]item),
		ledger:    make(map[string]int64),
		favorites: make(map[string]struct{}),
		counters:  make(map[string]counter),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var errClosed = errors.New("memory store closed")

func (s *Store) Name() string { return "memory" }

func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	return ctx.Err()
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *Store) expiryFor(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

// lookup returns a live entry, dropping it if expired. Caller holds mu.
func (s *Store) lookup(key string) (item, bool) {
	it, ok := s.entries[key]
	if !ok {
		return item{}, false
	}
	if it.expired(s.now()) {
		delete(s.entries, key)
		return item{}, false
	}
	return it, true
}

func (s *Store) GetEntry(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.lookup(key)
	if !ok {
		return nil, backend.ErrNotFound
	}
	return append([]byte(nil), it.value...), nil
}

func (s *Store) GetEntries(_ context.Context, keys []string) (map[string][]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if it, ok := s.lookup(k); ok {
			out[k] = append([]byte(nil), it.value...)
		}
	}
	return out, nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.lookup(key)
	return ok, nil
}

func (s *Store) PutEntry(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = item{value: append([]byte(nil), value...), expires: s.expiryFor(ttl)}
	return nil
}

func (s *Store) UpdateEntry(_ context.Context, key string, ttl time.Duration, fn backend.UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.lookup(key)
	if !ok {
		return backend.ErrNotFound
	}
	next, err := fn(append([]byte(nil), it.value...))
	if err != nil {
		return err
	}
	s.entries[key] = item{value: append([]byte(nil), next...), expires: s.expiryFor(ttl)}
	return nil
}

func (s *Store) SetExpiry(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.lookup(key)
	if !ok {
		return false, nil
	}
	it.expires = s.expiryFor(ttl)
	s.entries[key] = it
	return true, nil
}

func (s *Store) IncrAccess(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger[key]++
	return s.ledger[key], nil
}

func (s *Store) EnsureAccess(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ledger[key]; !ok {
		s.ledger[key] = 1
	}
	return nil
}

// ranking returns ledger rows ordered by count, ties broken by key the way a
// sorted set orders members. Caller holds mu.
func (s *Store) ranking(desc bool) []backend.AccessCount {
	rows := make([]backend.AccessCount, 0, len(s.ledger))
	for k, c := range s.ledger {
		rows = append(rows, backend.AccessCount{Key: k, Count: c})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count < rows[j].Count
		}
		return rows[i].Key < rows[j].Key
	})
	if desc {
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
	}
	return rows
}

func (s *Store) LeastAccessed(_ context.Context, n int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.ranking(false)
	if n >= 0 && n < len(rows) {
		rows = rows[:n]
	}
	keys := make([]string, len(rows))
	for i, r := range rows {
		keys[i] = r.Key
	}
	return keys, nil
}

func (s *Store) AccessRanking(_ context.Context) ([]backend.AccessCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ranking(true), nil
}

func (s *Store) LedgerSize(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.ledger)), nil
}

func (s *Store) RemoveAccess(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.ledger, k)
	}
	return nil
}

func (s *Store) NonFavoriteCount(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k := range s.ledger {
		if _, fav := s.favorites[k]; !fav {
			n++
		}
	}
	return n, nil
}

func (s *Store) AddFavorites(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		s.favorites[k] = struct{}{}
	}
	return nil
}

func (s *Store) RemoveFavorites(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.favorites, k)
	}
	return nil
}

func (s *Store) IsFavorite(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.favorites[key]
	return ok, nil
}

func (s *Store) Favorites(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.favorites))
	for k := range s.favorites {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

func (s *Store) FavoriteCount(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.favorites)), nil
}

func (s *Store) DeleteKey(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	delete(s.ledger, key)
	delete(s.favorites, key)
	return nil
}

// liveCounter returns a counter, dropping it if expired. Caller holds mu.
func (s *Store) liveCounter(key string) (counter, bool) {
	c, ok := s.counters[key]
	if !ok {
		return counter{}, false
	}
	if !c.expires.IsZero() && !s.now().Before(c.expires) {
		delete(s.counters, key)
		return counter{}, false
	}
	return c, true
}

func (s *Store) InitCounter(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key] = counter{expires: s.expiryFor(ttl)}
	return nil
}

func (s *Store) IncrCounter(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.liveCounter(key)
	if !ok {
		return 0, backend.ErrNotFound
	}
	c.value++
	s.counters[key] = c
	return c.value, nil
}

func (s *Store) GetCounter(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.liveCounter(key)
	if !ok {
		return 0, backend.ErrNotFound
	}
	return c.value, nil
}

func (s *Store) ExpireCounter(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.liveCounter(key)
	if !ok {
		return backend.ErrNotFound
	}
	c.expires = s.expiryFor(ttl)
	s.counters[key] = c
	return nil
}

var _ backend.Backend = (*Store)(nil)
