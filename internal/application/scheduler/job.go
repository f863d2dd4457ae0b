package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind names the storage operation a job performs.
type Kind string

// Job kinds
const (
	KindList   Kind = "list"
	KindInsert Kind = "insert"
	KindDelete Kind = "delete"
	KindUpdate Kind = "update"
)

// Job is one unit of asynchronous storage work.
// Run executes on a worker goroutine and must honor ctx; OnDone, when set, is
// invoked exactly once on the worker goroutine after Run finishes or times out.
type Job struct {
	ID     uuid.UUID
	Kind   Kind
	Key    int64 // target identity; 0 when the job has none
	Run    func(ctx context.Context) (any, error)
	OnDone func(Completion)
}

// Completion is the result of a finished job, delivered exactly once.
type Completion struct {
	JobID   uuid.UUID
	Kind    Kind
	Key     int64
	Value   any
	Err     error
	Elapsed time.Duration
}

// OK reports whether the job succeeded.
func (c Completion) OK() bool {
	return c.Err == nil
}

// Pending is the caller's handle on an accepted job.
type Pending struct {
	id   uuid.UUID
	done chan Completion
}

// ID returns the job identifier.
func (p *Pending) ID() uuid.UUID {
	return p.id
}

// Done returns a channel that receives the job's completion once.
func (p *Pending) Done() <-chan Completion {
	return p.done
}

// Wait blocks until the job completes or ctx is done.
// Never call it from a goroutine that must stay responsive.
func (p *Pending) Wait(ctx context.Context) (Completion, error) {
	select {
	case c := <-p.done:
		return c, nil
	case <-ctx.Done():
		return Completion{}, ctx.Err()
	}
}
