// Package redis implements the storage backend on Redis.
//
// Layout (every name carries the configured key prefix):
//
//	<prefix>entry:track_<id>     string   encoded entry, native TTL
//	<prefix>track_access_counts  zset     access ledger
//	<prefix>favorite_tracks      set      pinned entry keys
//	<prefix>priming:job:<uuid>   string   job progress counter
//
// Entries live under their own sub-namespace so no entry key can name the
// ledger, the favorites set or a counter. Ledger and favorite members are
// the bare entry keys.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/piwi3910/trackcache/internal/storage/backend"
)

// Config holds Redis connection settings.
type Config struct {
	Addr             string        `mapstructure:"addr" yaml:"addr"`
	Password         string        `mapstructure:"password" yaml:"password"`
	DB               int           `mapstructure:"db" yaml:"db"`
	KeyPrefix        string        `mapstructure:"key_prefix" yaml:"key_prefix"`
	PoolSize         int           `mapstructure:"pool_size" yaml:"pool_size"`
	MinIdleConns     int           `mapstructure:"min_idle_conns" yaml:"min_idle_conns"`
	DialTimeout      time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout" yaml:"operation_timeout"`
	MaxUpdateRetries int           `mapstructure:"max_update_retries" yaml:"max_update_retries"`
}

// DefaultConfig returns settings for a local Redis.
func DefaultConfig() Config {
	return Config{
		Addr:             "localhost:6379",
		PoolSize:         20,
		MinIdleConns:     2,
		DialTimeout:      5 * time.Second,
		ReadTimeout:      3 * time.Second,
		WriteTimeout:     3 * time.Second,
		OperationTimeout: 5 * time.Second,
		MaxUpdateRetries: 50,
	}
}

// incrIfExists increments a counter only while it is alive, so completions
// arriving after the counter expired do not resurrect it without a TTL.
var incrIfExists = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return redis.call('INCR', KEYS[1])
end
return -1
`)

// nonFavorites counts ledger members that are not in the favorites set.
// Favorites pinned without ever being cached are not ledger members and so
// do not reduce the count.
var nonFavorites = goredis.NewScript(`
local n = redis.call('ZCARD', KEYS[1])
local favs = redis.call('SMEMBERS', KEYS[2])
for _, m in ipairs(favs) do
  if redis.call('ZSCORE', KEYS[1], m) then
    n = n - 1
  end
end
return n
`)

const entryNamespace = "entry:"

// Store is a Redis-backed backend.Backend.
type Store struct {
	client goredis.UniversalClient
	cfg    Config
	owned  bool
}

// New connects to Redis using cfg. The connection is verified lazily;
// call Ping to check it.
func New(cfg Config) *Store {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	s := NewFromClient(client, cfg)
	s.owned = true
	return s
}

// NewFromClient wraps an existing client. Close does not close it.
func NewFromClient(client goredis.UniversalClient, cfg Config) *Store {
	if cfg.MaxUpdateRetries <= 0 {
		cfg.MaxUpdateRetries = DefaultConfig().MaxUpdateRetries
	}
	return &Store{client: client, cfg: cfg}
}

func (s *Store) Name() string { return "redis" }

func (s *Store) key(k string) string { return s.cfg.KeyPrefix + k }

func (s *Store) entryKey(k string) string { return s.key(entryNamespace + k) }

func (s *Store) ledgerKey() string    { return s.key(backend.LedgerKey) }
func (s *Store) favoritesKey() string { return s.key(backend.FavoritesKey) }

func (s *Store) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.OperationTimeout)
}

func ttlArg(ttl time.Duration) time.Duration {
	if ttl < 0 {
		return 0
	}
	return ttl
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	return s.client.Close()
}

func (s *Store) GetEntry(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	data, err := s.client.Get(ctx, s.entryKey(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, backend.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) GetEntries(ctx context.Context, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.entryKey(k)
	}

	vals, err := s.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	for i, v := range vals {
		if str, ok := v.(string); ok {
			out[keys[i]] = []byte(str)
		}
	}
	return out, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	n, err := s.client.Exists(ctx, s.entryKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *Store) PutEntry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.client.Set(ctx, s.entryKey(key), value, ttlArg(ttl)).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// UpdateEntry runs fn inside WATCH/MULTI and retries when another client
// modified the key between the read and the write.
func (s *Store) UpdateEntry(ctx context.Context, key string, ttl time.Duration, fn backend.UpdateFunc) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	k := s.entryKey(key)
	txf := func(tx *goredis.Tx) error {
		cur, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, goredis.Nil) {
			return backend.ErrNotFound
		}
		if err != nil {
			return err
		}

		next, err := fn(cur)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Set(ctx, k, next, ttlArg(ttl))
			return nil
		})
		return err
	}

	for attempt := range s.cfg.MaxUpdateRetries {
		err := s.client.Watch(ctx, txf, k)
		if errors.Is(err, goredis.TxFailedErr) {
			log.Debug().Str("key", key).Int("attempt", attempt+1).Msg("Entry update raced, retrying")
			continue
		}
		return err
	}
	return fmt.Errorf("redis update %s: %w", key, backend.ErrConflict)
}

func (s *Store) SetExpiry(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	k := s.entryKey(key)
	var exists *goredis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		exists = p.Exists(ctx, k)
		if ttl <= 0 {
			p.Persist(ctx, k)
		} else {
			p.Expire(ctx, k, ttl)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis expire %s: %w", key, err)
	}
	return exists.Val() > 0, nil
}

func (s *Store) IncrAccess(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	score, err := s.client.ZIncrBy(ctx, s.ledgerKey(), 1, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zincrby %s: %w", key, err)
	}
	return int64(score), nil
}

func (s *Store) EnsureAccess(ctx context.Context, key string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	err := s.client.ZAddNX(ctx, s.ledgerKey(), goredis.Z{Score: 1, Member: key}).Err()
	if err != nil {
		return fmt.Errorf("redis zadd nx %s: %w", key, err)
	}
	return nil
}

func (s *Store) LeastAccessed(ctx context.Context, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	keys, err := s.client.ZRange(ctx, s.ledgerKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange: %w", err)
	}
	return keys, nil
}

func (s *Store) AccessRanking(ctx context.Context) ([]backend.AccessCount, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.client.ZRevRangeWithScores(ctx, s.ledgerKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrevrange: %w", err)
	}

	out := make([]backend.AccessCount, 0, len(rows))
	for _, z := range rows {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, backend.AccessCount{Key: member, Count: int64(z.Score)})
	}
	return out, nil
}

func (s *Store) LedgerSize(ctx context.Context) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	n, err := s.client.ZCard(ctx, s.ledgerKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis zcard: %w", err)
	}
	return n, nil
}

func (s *Store) RemoveAccess(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.client.ZRem(ctx, s.ledgerKey(), members(keys)...).Err(); err != nil {
		return fmt.Errorf("redis zrem: %w", err)
	}
	return nil
}

func (s *Store) NonFavoriteCount(ctx context.Context) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	n, err := nonFavorites.Run(ctx, s.client, []string{s.ledgerKey(), s.favoritesKey()}).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis count non-favorites: %w", err)
	}
	return n, nil
}

func members(keys []string) []any {
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}

func (s *Store) AddFavorites(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.client.SAdd(ctx, s.favoritesKey(), members(keys)...).Err(); err != nil {
		return fmt.Errorf("redis sadd: %w", err)
	}
	return nil
}

func (s *Store) RemoveFavorites(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.client.SRem(ctx, s.favoritesKey(), members(keys)...).Err(); err != nil {
		return fmt.Errorf("redis srem: %w", err)
	}
	return nil
}

func (s *Store) IsFavorite(ctx context.Context, key string) (bool, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	ok, err := s.client.SIsMember(ctx, s.favoritesKey(), key).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember %s: %w", key, err)
	}
	return ok, nil
}

func (s *Store) Favorites(ctx context.Context) ([]string, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	keys, err := s.client.SMembers(ctx, s.favoritesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	return keys, nil
}

func (s *Store) FavoriteCount(ctx context.Context) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	n, err := s.client.SCard(ctx, s.favoritesKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("redis scard: %w", err)
	}
	return n, nil
}

// DeleteKey removes the entry, ledger row and favorite membership in one
// MULTI/EXEC transaction.
func (s *Store) DeleteKey(ctx context.Context, key string) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Del(ctx, s.entryKey(key))
		p.ZRem(ctx, s.ledgerKey(), key)
		p.SRem(ctx, s.favoritesKey(), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) InitCounter(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	if err := s.client.Set(ctx, s.key(key), 0, ttlArg(ttl)).Err(); err != nil {
		return fmt.Errorf("redis set counter %s: %w", key, err)
	}
	return nil
}

func (s *Store) IncrCounter(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	n, err := incrIfExists.Run(ctx, s.client, []string{s.key(key)}).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	if n < 0 {
		return 0, backend.ErrNotFound
	}
	return n, nil
}

func (s *Store) GetCounter(ctx context.Context, key string) (int64, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	n, err := s.client.Get(ctx, s.key(key)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, backend.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("redis get counter %s: %w", key, err)
	}
	return n, nil
}

func (s *Store) ExpireCounter(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	ok, err := s.client.Expire(ctx, s.key(key), ttl).Result()
	if err != nil {
		return fmt.Errorf("redis expire counter %s: %w", key, err)
	}
	if !ok {
		return backend.ErrNotFound
	}
	return nil
}

var _ backend.Backend = (*Store)(nil)
