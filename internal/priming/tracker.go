// Package priming warms the cache for many tracks at once and reports
// progress while the population jobs run.
//
// Progress lives in a backend counter keyed by job id. The counter is
// created at zero, incremented once by every unit as it terminates and
// given a short expiry once the last unit is done. There is no terminal
// status: callers compare the count with the number of dispatched units.
package priming

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/piwi3910/trackcache/internal/content"
	"github.com/piwi3910/trackcache/internal/jobs"
	"github.com/piwi3910/trackcache/internal/metrics"
	"github.com/piwi3910/trackcache/internal/storage/backend"
	"github.com/piwi3910/trackcache/internal/track"
)

// Status is the externally visible state of a priming job.
type Status string

const (
	StatusUnknown Status = "UNKNOWN"
	StatusPending Status = "PENDING"
)

// JobFinish names the finalizer task.
const JobFinish = "priming_finish"

var (
	// ErrTooManyUnits is returned when a request exceeds MaxUnits.
	ErrTooManyUnits = errors.New("too many tracks in priming request")
	// ErrUnavailable is returned when the job could not be registered.
	ErrUnavailable = errors.New("priming backend unavailable")
)

// Config holds tracker settings.
type Config struct {
	// JobTTL is the lifetime of a progress counter while units run.
	JobTTL time.Duration
	// Retention is how long a counter stays readable after the last unit.
	Retention time.Duration
	// MaxUnits bounds the tracks accepted per job. Zero means no bound.
	MaxUnits int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		JobTTL:    time.Hour,
		Retention: time.Minute,
		MaxUnits:  500,
	}
}

// Job describes a started priming job.
type Job struct {
	ID         string    `json:"job_id"`
	Dispatched int       `json:"dispatched"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	CreatedAt  time.Time `json:"created_at"`
}

// Progress is the answer to a poll.
type Progress struct {
	JobID     string `json:"job_id"`
	Status    Status `json:"status"`
	Completed int64  `json:"completed"`
}

// Tracker starts priming jobs and accounts for their units.
type Tracker struct {
	counters  backend.Counters
	orch      *content.Orchestrator
	submitter jobs.Submitter
	config    Config
	now       func() time.Time
}

// NewTracker creates a tracker.
func NewTracker(counters backend.Counters, orch *content.Orchestrator, s jobs.Submitter, cfg Config) *Tracker {
	def := DefaultConfig()
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = def.JobTTL
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	return &Tracker{
		counters:  counters,
		orch:      orch,
		submitter: s,
		config:    cfg,
		now:       time.Now,
	}
}

// Config returns the effective configuration.
func (t *Tracker) Config() Config {
	return t.config
}

func counterKey(jobID string) string {
	return "priming:job:" + jobID
}

// StartJob writes a skeleton for every track that has no entry yet and
// submits its population jobs. Duplicate and already cached tracks are
// skipped. When nothing is left to do the returned Job has an empty ID.
//
// If a skeleton write fails part way, the tracks written so far are still
// dispatched and the rest are reported in Job.Failed. ErrUnavailable is
// returned only when no track could be dispatched.
func (t *Tracker) StartJob(ctx context.Context, units []track.Metadata) (Job, error) {
	if t.config.MaxUnits > 0 && len(units) > t.config.MaxUnits {
		return Job{}, fmt.Errorf("%w: %d > %d", ErrTooManyUnits, len(units), t.config.MaxUnits)
	}

	job := Job{ID: uuid.NewString(), CreatedAt: t.now().UTC()}
	if err := t.counters.InitCounter(ctx, counterKey(job.ID), t.config.JobTTL); err != nil {
		metrics.RecordBackendError("init_counter")
		return Job{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	seen := make(map[string]struct{}, len(units))
	pending := make([]*track.Entry, 0, len(units))
	var writeErr error

	for i, md := range units {
		if md.TrackID == "" {
			job.Skipped++
			continue
		}
		if _, dup := seen[md.TrackID]; dup {
			job.Skipped++
			continue
		}
		seen[md.TrackID] = struct{}{}

		e, created, err := t.orch.CreateSkeleton(ctx, md)
		if err != nil {
			writeErr = err
			job.Failed = len(units) - i
			log.Error().Err(err).
				Str("job_id", job.ID).
				Int("written", len(pending)).
				Int("failed", job.Failed).
				Msg("Failed to write skeleton, dispatching the tracks written so far")
			break
		}
		if !created {
			job.Skipped++
			continue
		}
		pending = append(pending, e)
	}

	if len(pending) == 0 {
		t.discard(ctx, job.ID)
		if writeErr != nil {
			return Job{}, fmt.Errorf("%w: %v", ErrUnavailable, writeErr)
		}
		log.Info().Int("skipped", job.Skipped).Msg("Nothing to prime")
		metrics.RecordPrimingJob(0, job.Skipped)
		return Job{Skipped: job.Skipped}, nil
	}
	job.Dispatched = len(pending)

	group := jobs.NewGroup(t.submitter, len(pending), t.finishTask(job.ID))
	for _, e := range pending {
		lyrics, video := t.orch.PopulationTasks(e)

		if err := group.Submit(t.counted(job.ID, lyrics)); err != nil {
			log.Warn().Err(err).Str("job_id", job.ID).Str("track_id", e.TrackID).Msg("Priming unit rejected")
			t.orch.ReleaseClaims(e, track.FieldLyrics)
			t.RecordCompletion(context.WithoutCancel(ctx), job.ID)
		}
		if err := t.submitter.Submit(video); err != nil {
			log.Warn().Err(err).Str("track_id", e.TrackID).Msg("Failed to submit video job")
			t.orch.ReleaseClaims(e, track.FieldVideo)
		}
	}

	metrics.RecordPrimingJob(job.Dispatched, job.Skipped)
	log.Info().
		Str("job_id", job.ID).
		Int("dispatched", job.Dispatched).
		Int("skipped", job.Skipped).
		Int("failed", job.Failed).
		Msg("Started priming job")
	return job, nil
}

// discard shortens the lifetime of a counter that no unit will use.
func (t *Tracker) discard(ctx context.Context, jobID string) {
	if err := t.counters.ExpireCounter(ctx, counterKey(jobID), t.config.Retention); err != nil {
		log.Debug().Err(err).Str("job_id", jobID).Msg("Failed to expire unused priming counter")
	}
}

// counted wraps a unit so that it records its completion when it
// terminates, whatever the outcome.
func (t *Tracker) counted(jobID string, task jobs.Task) jobs.Task {
	inner := task.Run
	task.Run = func(ctx context.Context) error {
		defer t.RecordCompletion(context.WithoutCancel(ctx), jobID)
		return inner(ctx)
	}
	return task
}

func (t *Tracker) finishTask(jobID string) jobs.Task {
	return jobs.Task{
		Name: JobFinish,
		Key:  counterKey(jobID),
		Run: func(ctx context.Context) error {
			return t.Finish(ctx, jobID)
		},
	}
}

// RecordCompletion counts one terminated unit of jobID.
func (t *Tracker) RecordCompletion(ctx context.Context, jobID string) {
	n, err := t.counters.IncrCounter(ctx, counterKey(jobID))
	if errors.Is(err, backend.ErrNotFound) {
		log.Warn().Str("job_id", jobID).Msg("Priming counter expired before unit finished")
		return
	}
	if err != nil {
		metrics.RecordBackendError("incr_counter")
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to record priming progress")
		return
	}
	metrics.RecordPrimingCompletion()
	log.Debug().Str("job_id", jobID).Int64("completed", n).Msg("Priming unit finished")
}

// Finish shortens the counter lifetime once every unit has terminated.
func (t *Tracker) Finish(ctx context.Context, jobID string) error {
	if err := t.counters.ExpireCounter(ctx, counterKey(jobID), t.config.Retention); err != nil {
		metrics.RecordBackendError("expire_counter")
		return fmt.Errorf("failed to expire priming counter %s: %w", jobID, err)
	}
	log.Info().Str("job_id", jobID).Dur("retention", t.config.Retention).Msg("Priming job finished")
	return nil
}

// Poll reports the progress of jobID. Unknown, expired and unreadable jobs
// all report StatusUnknown.
func (t *Tracker) Poll(ctx context.Context, jobID string) Progress {
	p := Progress{JobID: jobID, Status: StatusUnknown}
	if jobID == "" {
		return p
	}

	n, err := t.counters.GetCounter(ctx, counterKey(jobID))
	if err != nil {
		if !errors.Is(err, backend.ErrNotFound) {
			metrics.RecordBackendError("get_counter")
			log.Error().Err(err).Str("job_id", jobID).Msg("Failed to read priming progress")
		}
		return p
	}

	p.Status = StatusPending
	p.Completed = n
	return p
}
