// Package mocks provides fakes for the job transport and external
// providers.
package mocks

import (
	"context"
	"sync"

	"github.com/piwi3910/trackcache/internal/jobs"
)

// Submitter records submitted tasks. Tasks only run when RunAll is called,
// which lets tests inspect what was submitted before anything executes.
type Submitter struct {
	mu        sync.Mutex
	queue     []jobs.Task
	submitted []jobs.Task
	err       error
}

// NewSubmitter creates an empty recorder.
func NewSubmitter() *Submitter {
	return &Submitter{}
}

// SetError makes every following Submit fail with err.
func (s *Submitter) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Submit records t.
func (s *Submitter) Submit(t jobs.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.queue = append(s.queue, t)
	s.submitted = append(s.submitted, t)
	return nil
}

// RunAll runs queued tasks in submission order, including tasks submitted
// while running, until the queue is empty. It returns the number run.
func (s *Submitter) RunAll(ctx context.Context) int {
	n := 0
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return n
		}
		t := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		_ = t.Run(ctx)
		n++
	}
}

// Submitted returns the names of every task submitted so far.
func (s *Submitter) Submitted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.submitted))
	for i, t := range s.submitted {
		names[i] = t.Name
	}
	return names
}

// Count returns how many tasks named name were submitted.
func (s *Submitter) Count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.submitted {
		if t.Name == name {
			n++
		}
	}
	return n
}

// Reset forgets every recorded and queued task.
func (s *Submitter) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = nil
	s.submitted = nil
}

var _ jobs.Submitter = (*Submitter)(nil)
