// Package badger implements the storage backend on an embedded BadgerDB,
// for single-node deployments that do not run Redis.
//
// Key layout:
//
//	e/<key>  encoded entry (badger TTL)
//	l/<key>  access count, 8-byte big endian
//	f/<key>  favorite marker
//	c/<key>  counter, 8-byte big endian (badger TTL)
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"

	"github.com/piwi3910/trackcache/internal/storage/backend"
)

const (
	prefixEntry    = "e/"
	prefixLedger   = "l/"
	prefixFavorite = "f/"
	prefixCounter  = "c/"
)

// Config holds BadgerDB settings.
type Config struct {
	Dir              string `mapstructure:"dir" yaml:"dir"`
	InMemory         bool   `mapstructure:"in_memory" yaml:"in_memory"`
	MaxUpdateRetries int    `mapstructure:"max_update_retries" yaml:"max_update_retries"`
}

// Store is a BadgerDB-backed backend.Backend.
type Store struct {
	db      *badger.DB
	retries int
}

// Open opens (or creates) the database described by cfg.
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, errors.New("badger dir is required")
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	retries := cfg.MaxUpdateRetries
	if retries <= 0 {
		retries = 50
	}
	return &Store{db: db, retries: retries}, nil
}

func (s *Store) Name() string { return "badger" }

func (s *Store) Ping(ctx context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger is closed")
	}
	return ctx.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	for range s.retries {
		err := s.db.Update(fn)
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		return err
	}
	return backend.ErrConflict
}

func encodeCount(n int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(n))
	return buf
}

func decodeCount(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

func newEntry(key string, value []byte, ttl time.Duration) *badger.Entry {
	e := badger.NewEntry([]byte(key), value)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return e
}

func getValue(txn *badger.Txn, key string) ([]byte, *badger.Item, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil, backend.ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return nil, nil, err
	}
	return val, item, nil
}

func (s *Store) GetEntry(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		val, _, err := getValue(txn, prefixEntry+key)
		out = val
		return err
	})
	return out, err
}

func (s *Store) GetEntries(_ context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, k := range keys {
			val, _, err := getValue(txn, prefixEntry+k)
			if errors.Is(err, backend.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out[k] = val
		}
		return nil
	})
	return out, err
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	var ok bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(prefixEntry + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		ok = err == nil
		return err
	})
	return ok, err
}

func (s *Store) PutEntry(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return s.update(func(txn *badger.Txn) error {
		return txn.SetEntry(newEntry(prefixEntry+key, value, ttl))
	})
}

func (s *Store) UpdateEntry(_ context.Context, key string, ttl time.Duration, fn backend.UpdateFunc) error {
	err := s.update(func(txn *badger.Txn) error {
		cur, _, err := getValue(txn, prefixEntry+key)
		if err != nil {
			return err
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		return txn.SetEntry(newEntry(prefixEntry+key, next, ttl))
	})
	if errors.Is(err, backend.ErrConflict) {
		log.Warn().Str("key", key).Msg("Entry update gave up after repeated conflicts")
	}
	return err
}

func (s *Store) SetExpiry(_ context.Context, key string, ttl time.Duration) (bool, error) {
	existed := false
	err := s.update(func(txn *badger.Txn) error {
		val, _, err := getValue(txn, prefixEntry+key)
		if errors.Is(err, backend.ErrNotFound) {
			existed = false
			return nil
		}
		if err != nil {
			return err
		}
		existed = true
		return txn.SetEntry(newEntry(prefixEntry+key, val, ttl))
	})
	return existed, err
}

func (s *Store) IncrAccess(_ context.Context, key string) (int64, error) {
	var n int64
	err := s.update(func(txn *badger.Txn) error {
		val, _, err := getValue(txn, prefixLedger+key)
		if err != nil && !errors.Is(err, backend.ErrNotFound) {
			return err
		}
		n = decodeCount(val) + 1
		return txn.Set([]byte(prefixLedger+key), encodeCount(n))
	})
	return n, err
}

func (s *Store) EnsureAccess(_ context.Context, key string) error {
	return s.update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(prefixLedger + key))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set([]byte(prefixLedger+key), encodeCount(1))
	})
}

// scanLedger returns every ledger row ascending by count, ties by key.
func (s *Store) scanLedger() ([]backend.AccessCount, error) {
	var rows []backend.AccessCount
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixLedger)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			rows = append(rows, backend.AccessCount{
				Key:   strings.TrimPrefix(string(item.Key()), prefixLedger),
				Count: decodeCount(val),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Count < rows[j].Count
	})
	return rows, nil
}

func (s *Store) LeastAccessed(_ context.Context, n int) ([]string, error) {
	rows, err := s.scanLedger()
	if err != nil {
		return nil, err
	}
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
	rows, err := s.scanLedger()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

func (s *Store) countPrefix(prefix string) (int64, error) {
	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (s *Store) LedgerSize(_ context.Context) (int64, error) {
	return s.countPrefix(prefixLedger)
}

func (s *Store) RemoveAccess(_ context.Context, keys ...string) error {
	return s.update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete([]byte(prefixLedger + k)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) NonFavoriteCount(_ context.Context) (int64, error) {
	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefixLedger)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			key := strings.TrimPrefix(string(it.Item().Key()), prefixLedger)
			_, err := txn.Get([]byte(prefixFavorite + key))
			if errors.Is(err, badger.ErrKeyNotFound) {
				n++
				continue
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	return n, err
}

func (s *Store) AddFavorites(_ context.Context, keys ...string) error {
	return s.update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Set([]byte(prefixFavorite+k), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) RemoveFavorites(_ context.Context, keys ...string) error {
	return s.update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete([]byte(prefixFavorite + k)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) IsFavorite(_ context.Context, key string) (bool, error) {
	var ok bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(prefixFavorite + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		ok = err == nil
		return err
	})
	return ok, err
}

func (s *Store) Favorites(_ context.Context) ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefixFavorite)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, strings.TrimPrefix(string(it.Item().Key()), prefixFavorite))
		}
		return nil
	})
	return keys, err
}

func (s *Store) FavoriteCount(_ context.Context) (int64, error) {
	return s.countPrefix(prefixFavorite)
}

func (s *Store) DeleteKey(_ context.Context, key string) error {
	return s.update(func(txn *badger.Txn) error {
		for _, p := range []string{prefixEntry, prefixLedger, prefixFavorite} {
			if err := txn.Delete([]byte(p + key)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) InitCounter(_ context.Context, key string, ttl time.Duration) error {
	return s.update(func(txn *badger.Txn) error {
		return txn.SetEntry(newEntry(prefixCounter+key, encodeCount(0), ttl))
	})
}

func (s *Store) IncrCounter(_ context.Context, key string) (int64, error) {
	var n int64
	err := s.update(func(txn *badger.Txn) error {
		val, item, err := getValue(txn, prefixCounter+key)
		if err != nil {
			return err
		}
		n = decodeCount(val) + 1

		e := badger.NewEntry([]byte(prefixCounter+key), encodeCount(n))
		e.ExpiresAt = item.ExpiresAt()
		return txn.SetEntry(e)
	})
	return n, err
}

func (s *Store) GetCounter(_ context.Context, key string) (int64, error) {
	var n int64
	err := s.db.View(func(txn *badger.Txn) error {
		val, _, err := getValue(txn, prefixCounter+key)
		n = decodeCount(val)
		return err
	})
	return n, err
}

func (s *Store) ExpireCounter(_ context.Context, key string, ttl time.Duration) error {
	return s.update(func(txn *badger.Txn) error {
		val, _, err := getValue(txn, prefixCounter+key)
		if err != nil {
			return err
		}
		return txn.SetEntry(newEntry(prefixCounter+key, val, ttl))
	})
}

var _ backend.Backend = (*Store)(nil)
