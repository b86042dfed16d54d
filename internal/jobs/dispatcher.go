// Package jobs runs background population work.
//
// A Dispatcher is an in-process bounded queue drained by a fixed worker
// pool. Submissions never block: when the queue is full the task is
// rejected and the caller decides what to do (usually nothing, the next
// read of the entry resubmits it). Tasks are fire-and-forget; a task that
// fails or panics is logged and counted, never retried.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/piwi3910/trackcache/internal/metrics"
)

var (
	// ErrQueueFull is returned when the dispatcher cannot accept more tasks.
	ErrQueueFull = errors.New("job queue is full")
	// ErrClosed is returned after Stop has been called.
	ErrClosed = errors.New("job dispatcher is closed")
)

// Task is a unit of background work.
type Task struct {
	// ID is assigned on submission when empty.
	ID string
	// Name groups tasks in logs and metrics (e.g. "lyrics", "video").
	Name string
	// Key is the cache key the task writes to, if any.
	Key string
	// Run does the work. The context carries the per-task deadline.
	Run func(ctx context.Context) error

	CreatedAt time.Time
}

// Submitter accepts tasks for asynchronous execution.
type Submitter interface {
	Submit(t Task) error
}

// Config configures the dispatcher
type Config struct {
	// Workers is the number of worker goroutines
	Workers int `mapstructure:"workers" yaml:"workers"`

	// QueueSize is the number of tasks that may wait for a worker
	QueueSize int `mapstructure:"queue_size" yaml:"queue_size"`

	// TaskTimeout bounds a single task run
	TaskTimeout time.Duration `mapstructure:"task_timeout" yaml:"task_timeout"`
}

// DefaultConfig returns a default dispatcher configuration
func DefaultConfig() Config {
	return Config{
		Workers:     8,
		QueueSize:   1024,
		TaskTimeout: 60 * time.Second,
	}
}

// Dispatcher is a bounded in-process task queue with a worker pool.
type Dispatcher struct {
	tasks   chan Task
	config  Config
	mu      sync.RWMutex
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	closed  bool
}

// NewDispatcher creates a dispatcher. Call Start before submitting.
func NewDispatcher(cfg Config) *Dispatcher {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = def.TaskTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		tasks:  make(chan Task, cfg.QueueSize),
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start starts the worker goroutines
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.closed {
		return
	}
	d.started = true

	for i := range d.config.Workers {
		d.wg.Add(1)
		go d.worker(i)
	}

	log.Info().
		Int("workers", d.config.Workers).
		Int("queue_size", d.config.QueueSize).
		Msg("Job dispatcher started")
}

// Stop stops accepting tasks and waits for queued tasks to finish. If ctx
// expires first, running tasks are cancelled and ctx's error is returned.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.tasks)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		log.Info().Msg("Job dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		log.Warn().Msg("Job dispatcher stopped before queue drained")
		return ctx.Err()
	}
}

// Submit queues a task without blocking.
func (d *Dispatcher) Submit(t Task) error {
	if t.Run == nil {
		return fmt.Errorf("task %q has no run function", t.Name)
	}
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		metrics.RecordJobRejected("closed")
		return ErrClosed
	}

	select {
	case d.tasks <- t:
		metrics.SetJobsQueued(len(d.tasks))
		return nil
	default:
		metrics.RecordJobRejected("full")
		log.Warn().Str("job", t.Name).Str("key", t.Key).Msg("Job queue full, dropping task")
		return ErrQueueFull
	}
}

// Pending returns the number of tasks waiting for a worker.
func (d *Dispatcher) Pending() int {
	return len(d.tasks)
}

// Capacity returns the queue size.
func (d *Dispatcher) Capacity() int {
	return cap(d.tasks)
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	log.Debug().Int("worker", id).Msg("Job worker started")

	for t := range d.tasks {
		metrics.SetJobsQueued(len(d.tasks))
		d.run(t)
	}
}

// run executes one task, containing panics.
func (d *Dispatcher) run(t Task) {
	ctx, cancel := context.WithTimeout(d.ctx, d.config.TaskTimeout)
	defer cancel()

	start := time.Now()
	var err error
	panicked := false

	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = true
				err = fmt.Errorf("panic: %v", r)
				log.Error().
					Str("job", t.Name).
					Str("task_id", t.ID).
					Str("key", t.Key).
					Interface("panic", r).
					Str("stack", string(debug.Stack())).
					Msg("Job panicked")
			}
		}()
		err = t.Run(ctx)
	}()

	elapsed := time.Since(start)
	metrics.RecordJob(t.Name, err, panicked, elapsed)

	if err != nil && !panicked {
		log.Warn().
			Err(err).
			Str("job", t.Name).
			Str("task_id", t.ID).
			Str("key", t.Key).
			Dur("duration", elapsed).
			Msg("Job failed")
		return
	}

	log.Debug().
		Str("job", t.Name).
		Str("task_id", t.ID).
		Str("key", t.Key).
		Dur("duration", elapsed).
		Msg("Job finished")
}

var _ Submitter = (*Dispatcher)(nil)
