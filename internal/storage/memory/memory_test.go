package memory_test

import (
	"sync"
	"testing"
	"time"

	"github.com/piwi3910/trackcache/internal/storage/backend"
	"github.com/piwi3910/trackcache/internal/storage/backend/backendtest"
	"github.com/piwi3910/trackcache/internal/storage/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestStore(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}

	backendtest.Run(t, backendtest.Harness{
		New: func(t *testing.T) backend.Backend {
			s := memory.New(memory.WithClock(clock.Now))
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
		Advance: clock.Advance,
	})
}
