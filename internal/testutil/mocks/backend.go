package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/piwi3910/trackcache/internal/storage/backend"
	"github.com/piwi3910/trackcache/internal/storage/memory"
)

// Backend wraps an in-memory store with per-operation error injection.
type Backend struct {
	*memory.Store

	mu    sync.Mutex
	errs  map[string]error
	after map[string]int
}

// NewBackend creates a healthy backend.
func NewBackend(opts ...memory.Option) *Backend {
	return &Backend{Store: memory.New(opts...), errs: make(map[string]error), after: make(map[string]int)}
}

// SetError makes op fail with err. A nil err clears the injection. op is
// the method name, e.g. "GetEntry", or "*" for every method.
func (b *Backend) SetError(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.errs, op)
		return
	}
	b.errs[op] = err
	delete(b.after, op)
}

// FailAfter lets the next n calls of op succeed and makes every later one
// fail with err.
func (b *Backend) FailAfter(op string, n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs[op] = err
	b.after[op] = n
}

func (b *Backend) fail(op string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.errs[op]; err != nil {
		if b.after[op] > 0 {
			b.after[op]--
			return nil
		}
		return err
	}
	return b.errs["*"]
}

func (b *Backend) Ping(ctx context.Context) error {
	if err := b.fail("Ping"); err != nil {
		return err
	}
	return b.Store.Ping(ctx)
}

func (b *Backend) GetEntry(ctx context.Context, key string) ([]byte, error) {
	if err := b.fail("GetEntry"); err != nil {
		return nil, err
	}
	return b.Store.GetEntry(ctx, key)
}

func (b *Backend) Exists(ctx context.Context, key string) (bool, error) {
	if err := b.fail("Exists"); err != nil {
		return false, err
	}
	return b.Store.Exists(ctx, key)
}

func (b *Backend) PutEntry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := b.fail("PutEntry"); err != nil {
		return err
	}
	return b.Store.PutEntry(ctx, key, value, ttl)
}

func (b *Backend) UpdateEntry(ctx context.Context, key string, ttl time.Duration, fn backend.UpdateFunc) error {
	if err := b.fail("UpdateEntry"); err != nil {
		return err
	}
	return b.Store.UpdateEntry(ctx, key, ttl, fn)
}

func (b *Backend) IncrAccess(ctx context.Context, key string) (int64, error) {
	if err := b.fail("IncrAccess"); err != nil {
		return 0, err
	}
	return b.Store.IncrAccess(ctx, key)
}

func (b *Backend) LedgerSize(ctx context.Context) (int64, error) {
	if err := b.fail("LedgerSize"); err != nil {
		return 0, err
	}
	return b.Store.LedgerSize(ctx)
}

func (b *Backend) RemoveAccess(ctx context.Context, keys ...string) error {
	if err := b.fail("RemoveAccess"); err != nil {
		return err
	}
	return b.Store.RemoveAccess(ctx, keys...)
}

func (b *Backend) NonFavoriteCount(ctx context.Context) (int64, error) {
	if err := b.fail("NonFavoriteCount"); err != nil {
		return 0, err
	}
	return b.Store.NonFavoriteCount(ctx)
}

func (b *Backend) IsFavorite(ctx context.Context, key string) (bool, error) {
	if err := b.fail("IsFavorite"); err != nil {
		return false, err
	}
	return b.Store.IsFavorite(ctx, key)
}

func (b *Backend) AddFavorites(ctx context.Context, keys ...string) error {
	if err := b.fail("AddFavorites"); err != nil {
		return err
	}
	return b.Store.AddFavorites(ctx, keys...)
}

func (b *Backend) DeleteKey(ctx context.Context, key string) error {
	if err := b.fail("DeleteKey"); err != nil {
		return err
	}
	return b.Store.DeleteKey(ctx, key)
}

func (b *Backend) InitCounter(ctx context.Context, key string, ttl time.Duration) error {
	if err := b.fail("InitCounter"); err != nil {
		return err
	}
	return b.Store.InitCounter(ctx, key, ttl)
}

func (b *Backend) GetCounter(ctx context.Context, key string) (int64, error) {
	if err := b.fail("GetCounter"); err != nil {
		return 0, err
	}
	return b.Store.GetCounter(ctx, key)
}

func (b *Backend) AccessRanking(ctx context.Context) ([]backend.AccessCount, error) {
	if err := b.fail("AccessRanking"); err != nil {
		return nil, err
	}
	return b.Store.AccessRanking(ctx)
}

var _ backend.Backend = (*Backend)(nil)
