// Package scheduler runs blocking storage jobs on a fixed pool of workers.
//
// Submission never blocks: when the bounded queue is full Submit fails with
// ErrBackpressure and the caller decides what to tell the user. Every accepted
// job produces exactly one Completion, including jobs that fail, panic or time
// out. Shutdown stops intake and drains what was already accepted.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"roster/internal/adapters/perf"
)

// Scheduler errors
var (
	ErrBackpressure = errors.New("scheduler queue is full")
	ErrClosed       = errors.New("scheduler is shut down")
	ErrTimeout      = errors.New("job timed out")
	ErrJobPanicked  = errors.New("job panicked")
	ErrInvalidJob   = errors.New("invalid job")
)

// Defaults
const (
	DefaultWorkers    = 4
	DefaultQueueSize  = 64
	DefaultJobTimeout = 10 * time.Second
)

// Config sizes the pool.
type Config struct {
	Workers    int
	QueueSize  int
	JobTimeout time.Duration // <= 0 disables the per-job deadline
	Metrics    *Metrics
	Collector  *perf.Collector
	Logger     *slog.Logger
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Workers:    DefaultWorkers,
		QueueSize:  DefaultQueueSize,
		JobTimeout: DefaultJobTimeout,
	}
}

type task struct {
	job     Job
	pending *Pending
}

type outcome struct {
	value any
	err   error
}

// Scheduler is a fixed-size worker pool with a bounded queue.
type Scheduler struct {
	cfg    Config
	log    *slog.Logger
	queue  chan *task
	group  errgroup.Group
	active atomic.Int64

	mu      sync.RWMutex // guards closed and sends on queue
	closed  bool
	closing chan struct{}
	once    sync.Once
	stopped chan struct{}
}

// New starts cfg.Workers workers.
// PRE: none (non-positive sizes fall back to defaults)
// POST: workers are running and Submit accepts jobs
func New(cfg Config) *Scheduler {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Scheduler{
		cfg:     cfg,
		log:     cfg.Logger,
		queue:   make(chan *task, cfg.QueueSize),
		closing: make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		worker := i
		s.group.Go(func() error {
			for t := range s.queue {
				s.execute(worker, t)
			}
			return nil
		})
	}
	go func() {
		s.group.Wait()
		close(s.stopped)
	}()
	s.log.Info("scheduler_started", "workers", cfg.Workers, "queue_size", cfg.QueueSize, "job_timeout", cfg.JobTimeout)
	return s
}

// Submit enqueues job without blocking.
// PRE: job.Run is non-nil
// POST: on success the job will complete exactly once; on error it was never accepted
func (s *Scheduler) Submit(job Job) (*Pending, error) {
	t, err := s.prepare(job)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.cfg.Metrics.rejected(job.Kind, "closed")
		return nil, ErrClosed
	}
	select {
	case s.queue <- t:
		s.cfg.Metrics.submitted(t.job.Kind, len(s.queue))
		return t.pending, nil
	default:
		s.cfg.Metrics.rejected(job.Kind, "backpressure")
		s.log.Warn("job_rejected", "job_id", t.job.ID, "kind", t.job.Kind, "reason", "backpressure")
		return nil, ErrBackpressure
	}
}

// SubmitWait enqueues job, blocking until there is room, ctx is done or the
// scheduler shuts down. Intended for startup routines, never the interactive loop.
func (s *Scheduler) SubmitWait(ctx context.Context, job Job) (*Pending, error) {
	t, err := s.prepare(job)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.cfg.Metrics.rejected(job.Kind, "closed")
		return nil, ErrClosed
	}
	select {
	case s.queue <- t:
		s.cfg.Metrics.submitted(t.job.Kind, len(s.queue))
		return t.pending, nil
	case <-s.closing:
		s.cfg.Metrics.rejected(job.Kind, "closed")
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Scheduler) prepare(job Job) (*task, error) {
	if job.Run == nil {
		return nil, fmt.Errorf("%w: %s job has no Run func", ErrInvalidJob, job.Kind)
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	return &task{
		job:     job,
		pending: &Pending{id: job.ID, done: make(chan Completion, 1)},
	}, nil
}

// Queued returns the number of jobs waiting for a worker.
func (s *Scheduler) Queued() int {
	return len(s.queue)
}

// InFlight returns the number of jobs currently held by workers.
func (s *Scheduler) InFlight() int {
	return int(s.active.Load())
}

// Shutdown stops accepting jobs, lets queued and running jobs finish and
// waits for every worker to exit. Safe to call any number of times; every
// call waits for the same drain.
// POST: returns nil once all workers exited, or ctx.Err() if ctx ends first
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.once.Do(func() {
		close(s.closing)
		s.mu.Lock()
		s.closed = true
		queued := len(s.queue)
		close(s.queue)
		s.mu.Unlock()
		s.log.Info("scheduler_draining", "queued", queued, "in_flight", s.InFlight())
	})
	select {
	case <-s.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// execute runs one job to completion on the calling worker.
// A timed-out job completes at its deadline, but the worker keeps its slot
// until the stalled call returns so concurrent store calls never exceed Workers.
func (s *Scheduler) execute(worker int, t *task) {
	s.active.Add(1)
	defer s.active.Add(-1)
	s.cfg.Metrics.started(len(s.queue))

	ctx, cancel := context.Background(), context.CancelFunc(func() {})
	if s.cfg.JobTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JobTimeout)
	}
	defer cancel()

	start := time.Now()
	result := make(chan outcome, 1)
	go func() {
		result <- run(ctx, t.job)
	}()

	var (
		out      outcome
		timedOut bool
	)
	select {
	case out = <-result:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) {
			out.err = fmt.Errorf("%w: %w", ErrTimeout, out.err)
			timedOut = true
		}
	case <-ctx.Done():
		out = outcome{err: fmt.Errorf("%w after %s", ErrTimeout, s.cfg.JobTimeout)}
		timedOut = true
		defer func() {
			late := <-result
			s.log.Warn("job_late_result_discarded", "job_id", t.job.ID, "kind", t.job.Kind, "worker", worker, "late_error", late.err)
		}()
	}

	c := Completion{
		JobID:   t.job.ID,
		Kind:    t.job.Kind,
		Key:     t.job.Key,
		Value:   out.value,
		Err:     out.err,
		Elapsed: time.Since(start),
	}
	s.complete(worker, t, c, timedOut)
}

func (s *Scheduler) complete(worker int, t *task, c Completion, timedOut bool) {
	label := OutcomeOK
	switch {
	case timedOut:
		label = OutcomeTimeout
	case c.Err != nil:
		label = OutcomeError
	}
	s.cfg.Metrics.finished(c, label)
	s.cfg.Collector.Record(perf.Entry{
		Kind:       perf.KindJob,
		Name:       string(c.Kind),
		Failed:     c.Err != nil,
		DurationMs: float64(c.Elapsed.Microseconds()) / 1000.0,
		Timestamp:  time.Now().Add(-c.Elapsed),
	})
	if c.Err != nil {
		s.log.Warn("job_failed", "job_id", c.JobID, "kind", c.Kind, "key", c.Key, "worker", worker, "error", c.Err)
	} else {
		s.log.Debug("job_completed", "job_id", c.JobID, "kind", c.Kind, "key", c.Key, "worker", worker, "elapsed", c.Elapsed)
	}

	t.pending.done <- c
	if t.job.OnDone != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("job_callback_panicked", "job_id", c.JobID, "panic", fmt.Sprint(r))
				}
			}()
			t.job.OnDone(c)
		}()
	}
}

// run calls the job function, converting a panic into an error.
func run(ctx context.Context, job Job) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = outcome{err: fmt.Errorf("%w: %v", ErrJobPanicked, r)}
		}
	}()
	v, err := job.Run(ctx)
	return outcome{value: v, err: err}
}
