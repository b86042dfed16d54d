package jobs

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Then builds a two-stage pipeline task. first runs as the task body; when
// it succeeds, next receives its result and may return a follow-up task,
// which is submitted to s. A failed first stage never triggers the second.
func Then[T any](s Submitter, name, key string, first func(ctx context.Context) (T, error), next func(T) (Task, bool)) Task {
	return Task{
		Name: name,
		Key:  key,
		Run: func(ctx context.Context) error {
			out, err := first(ctx)
			if err != nil {
				return err
			}

			follow, ok := next(out)
			if !ok {
				return nil
			}
			if err := s.Submit(follow); err != nil {
				log.Warn().Err(err).Str("job", follow.Name).Str("key", follow.Key).Msg("Failed to submit follow-up job")
			}
			return nil
		},
	}
}

// Group is a fan-in barrier: after n member tasks have terminated, whether
// they succeeded, failed or could not be submitted, the finalizer is
// submitted exactly once.
type Group struct {
	s         Submitter
	remaining atomic.Int64
	finalizer Task
	fired     atomic.Bool
}

// NewGroup creates a barrier over n tasks. With n <= 0 the finalizer is
// submitted immediately.
func NewGroup(s Submitter, n int, finalizer Task) *Group {
	g := &Group{s: s, finalizer: finalizer}
	g.remaining.Store(int64(n))
	if n <= 0 {
		g.fire()
	}
	return g
}

// Submit submits t as a member of the group. A rejected submission still
// counts as terminated.
func (g *Group) Submit(t Task) error {
	inner := t.Run
	t.Run = func(ctx context.Context) error {
		defer g.done()
		return inner(ctx)
	}

	if err := g.s.Submit(t); err != nil {
		g.done()
		return err
	}
	return nil
}

// Remaining returns the number of members that have not terminated.
func (g *Group) Remaining() int {
	return int(g.remaining.Load())
}

func (g *Group) done() {
	if g.remaining.Add(-1) == 0 {
		g.fire()
	}
}

func (g *Group) fire() {
	if !g.fired.CompareAndSwap(false, true) {
		return
	}
	if err := g.s.Submit(g.finalizer); err != nil {
		// The finalizer only shortens bookkeeping lifetimes, run it here
		// rather than lose it.
		log.Warn().Err(err).Str("job", g.finalizer.Name).Msg("Finalizer rejected, running inline")
		_ = g.finalizer.Run(context.Background())
	}
}
