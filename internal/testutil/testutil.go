// Package testutil provides testing utilities and fakes for trackcache
// unit tests.
//
// Usage:
//
//	import (
//		"github.com/piwi3910/trackcache/internal/testutil"
//		"github.com/piwi3910/trackcache/internal/testutil/mocks"
//	)
//
//	func TestSomething(t *testing.T) {
//		clock := testutil.NewClock()
//		coord, store := testutil.NewCoordinator(t, cache.Config{MaxEntries: 3}, clock)
//		jobs := mocks.NewSubmitter()
//		...
//		jobs.RunAll(ctx)
//	}
package testutil

import (
	"strings"
	"sync"
	"time"
)

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock fixed at a stable instant.
func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// ContainsStringInsensitive checks if s contains substr, ignoring case.
func ContainsStringInsensitive(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
