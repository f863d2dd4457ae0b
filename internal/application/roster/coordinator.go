// Package roster coordinates asynchronous storage work for the roster view.
//
// A Coordinator owns one loop goroutine. Requests and job completions are
// posted to the loop's mailbox and applied there one at a time, so the view is
// never observed mid-mutation and never touched from a worker. Deletes,
// updates and restores of one identity run strictly in request order through
// per-identity lanes; work on different identities is unordered.
package roster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"roster/internal/application/scheduler"
	"roster/internal/domain/person"
)

// ErrAlreadyRunning is returned when Run is called while a loop is active.
var ErrAlreadyRunning = errors.New("coordinator loop already running")

// Gateway is the storage interface the coordinator schedules calls against.
type Gateway interface {
	List(ctx context.Context) ([]person.Person, error)
	Insert(ctx context.Context, p person.Person) (person.Person, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Update(ctx context.Context, p person.Person) (bool, error)
}

// Submitter accepts jobs without blocking.
type Submitter interface {
	Submit(job scheduler.Job) (*scheduler.Pending, error)
}

// CoordinatorDeps holds dependencies for NewCoordinator.
type CoordinatorDeps struct {
	Gateway   Gateway
	Scheduler Submitter
	Listener  Listener
	Now       func() time.Time
	Logger    *slog.Logger
}

// Coordinator dispatches storage jobs and applies their completions on its loop.
type Coordinator struct {
	gw       Gateway
	sched    Submitter
	listener Listener
	now      func() time.Time
	log      *slog.Logger

	box     *mailbox
	view    atomic.Pointer[View]
	running atomic.Bool
	quit    chan struct{}
	once    sync.Once

	// loop-owned
	state         *viewState
	lanes         *lanes
	listsInFlight int
}

// NewCoordinator builds a coordinator. Requests may be issued before Run;
// they are applied once the loop starts.
// PRE: deps.Gateway and deps.Scheduler are non-nil
func NewCoordinator(deps CoordinatorDeps) *Coordinator {
	if deps.Listener == nil {
		deps.Listener = ListenerFuncs{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	c := &Coordinator{
		gw:       deps.Gateway,
		sched:    deps.Scheduler,
		listener: deps.Listener,
		now:      deps.Now,
		log:      deps.Logger,
		box:      newMailbox(),
		quit:     make(chan struct{}),
		state:    newViewState(),
	}
	c.lanes = newLanes(func(id int64, r any) {
		c.log.Error("lane_step_panicked", "person_id", id, "panic", fmt.Sprint(r))
	})
	c.view.Store(c.state.snapshot())
	return c
}

// Run executes the loop on the calling goroutine until ctx is done or Close
// is called. Every view mutation and listener callback happens inside Run.
// POST: returns nil after Close, ctx.Err() on cancellation
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)
	defer func() {
		c.log.Info("coordinator_stopped", "busy_lanes", c.lanes.busy(), "lists_in_flight", c.listsInFlight)
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.quit:
			return nil
		case <-c.box.ready():
			for _, fn := range c.box.take() {
				c.dispatch(fn)
			}
		}
	}
}

// Close stops the loop. Completions that arrive afterwards are never applied.
func (c *Coordinator) Close() {
	c.once.Do(func() { close(c.quit) })
}

// Sync blocks until every action posted before the call has run on the loop.
func (c *Coordinator) Sync(ctx context.Context) error {
	done := make(chan struct{})
	c.box.post(func() { close(done) })
	select {
	case <-done:
		return nil
	case <-c.quit:
		return errors.New("coordinator closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// View returns the latest published snapshot. Safe from any goroutine.
func (c *Coordinator) View() *View {
	return c.view.Load()
}

func (c *Coordinator) dispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("loop_action_panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

func (c *Coordinator) publish() {
	c.view.Store(c.state.snapshot())
}

// submit hands a job to the scheduler; its completion is posted back to the loop.
func (c *Coordinator) submit(kind scheduler.Kind, key int64, run func(ctx context.Context) (any, error), apply func(scheduler.Completion)) error {
	_, err := c.sched.Submit(scheduler.Job{
		Kind: kind,
		Key:  key,
		Run:  run,
		OnDone: func(comp scheduler.Completion) {
			c.box.post(func() { apply(comp) })
		},
	})
	return err
}

// storeErr folds scheduler failures into the domain taxonomy.
func storeErr(err error) error {
	if errors.Is(err, scheduler.ErrTimeout) || errors.Is(err, scheduler.ErrJobPanicked) {
		return fmt.Errorf("%w: %w", person.ErrStoreUnavailable, err)
	}
	return err
}

func notFound(id int64, where string) error {
	return fmt.Errorf("%w: id %d is not %s", person.ErrNotFound, id, where)
}

// RequestList reloads the active collection from the store.
func (c *Coordinator) RequestList() {
	c.box.post(c.startList)
}

func (c *Coordinator) startList() {
	since := c.state.gen
	err := c.submit(scheduler.KindList, 0,
		func(ctx context.Context) (any, error) { return c.gw.List(ctx) },
		func(comp scheduler.Completion) { c.finishList(comp, since) })
	if err != nil {
		c.listener.OnListed(nil, err)
		return
	}
	c.listsInFlight++
}

func (c *Coordinator) finishList(comp scheduler.Completion, since uint64) {
	c.listsInFlight--
	defer func() {
		if c.listsInFlight == 0 {
			c.state.forget()
		}
	}()
	if comp.Err != nil {
		c.listener.OnListed(nil, storeErr(comp.Err))
		return
	}
	records, _ := comp.Value.([]person.Person)
	c.state.applyList(records, since)
	c.publish()
	c.log.Debug("person_event", "event", "people_listed", "count", len(records))
	c.listener.OnListed(c.View().Active, nil)
}

// RequestInsert validates draft and schedules its insertion.
// PRE: none
// POST: returns a ValidationError (no job created) or nil; the outcome reaches OnInserted
func (c *Coordinator) RequestInsert(draft person.Person) error {
	draft = person.New(draft.FirstName, draft.LastName, draft.BirthDate)
	if err := draft.ValidateAt(c.now()); err != nil {
		return err
	}
	c.box.post(func() { c.startInsert(draft) })
	return nil
}

func (c *Coordinator) startInsert(draft person.Person) {
	err := c.submit(scheduler.KindInsert, 0,
		func(ctx context.Context) (any, error) { return c.gw.Insert(ctx, draft) },
		func(comp scheduler.Completion) {
			if comp.Err != nil {
				c.listener.OnInserted(draft, storeErr(comp.Err))
				return
			}
			p, _ := comp.Value.(person.Person)
			c.state.applyInsert(p)
			c.publish()
			c.log.Info("person_event", "event", "person_inserted", "person_id", p.ID)
			c.listener.OnInserted(p, nil)
		})
	if err != nil {
		c.listener.OnInserted(draft, err)
	}
}

// RequestDelete moves each active record to removed once the store confirms.
// Each ID gets its own OnDeleted call; an ID that is not active fails with ErrNotFound.
func (c *Coordinator) RequestDelete(ids ...int64) {
	c.box.post(func() {
		for _, id := range ids {
			c.lanes.enqueue(id, scheduler.KindDelete, c.deleteStep(id))
		}
	})
}

func (c *Coordinator) deleteStep(id int64) step {
	return func(done func()) {
		p, ok := find(c.state.active, id)
		if !ok {
			c.listener.OnDeleted(id, notFound(id, "active"))
			done()
			return
		}
		err := c.submit(scheduler.KindDelete, id,
			func(ctx context.Context) (any, error) { return c.gw.Delete(ctx, id) },
			func(comp scheduler.Completion) {
				defer done()
				if comp.Err != nil {
					c.listener.OnDeleted(id, storeErr(comp.Err))
					return
				}
				if affected, _ := comp.Value.(bool); !affected {
					c.listener.OnDeleted(id, notFound(id, "stored"))
					return
				}
				c.state.applyDelete(p)
				c.publish()
				c.log.Info("person_event", "event", "person_deleted", "person_id", id)
				c.listener.OnDeleted(id, nil)
			})
		if err != nil {
			c.listener.OnDeleted(id, err)
			done()
		}
	}
}

// RequestUpdate validates p and schedules the rewrite of its fields.
// POST: returns a ValidationError (no job created) or nil; the outcome reaches OnUpdated
func (c *Coordinator) RequestUpdate(p person.Person) error {
	if !p.IsPersisted() {
		return &person.ValidationError{Problems: []string{"id is required"}}
	}
	id := p.ID
	p = person.New(p.FirstName, p.LastName, p.BirthDate)
	p.ID = id
	if err := p.ValidateAt(c.now()); err != nil {
		return err
	}
	c.box.post(func() {
		c.lanes.enqueue(p.ID, scheduler.KindUpdate, c.updateStep(p))
	})
	return nil
}

func (c *Coordinator) updateStep(p person.Person) step {
	return func(done func()) {
		if !c.state.isActive(p.ID) {
			c.listener.OnUpdated(p, notFound(p.ID, "active"))
			done()
			return
		}
		err := c.submit(scheduler.KindUpdate, p.ID,
			func(ctx context.Context) (any, error) { return c.gw.Update(ctx, p) },
			func(comp scheduler.Completion) {
				defer done()
				if comp.Err != nil {
					c.listener.OnUpdated(p, storeErr(comp.Err))
					return
				}
				if affected, _ := comp.Value.(bool); !affected {
					c.listener.OnUpdated(p, notFound(p.ID, "stored"))
					return
				}
				c.state.applyUpdate(p)
				c.publish()
				c.log.Info("person_event", "event", "person_updated", "person_id", p.ID)
				c.listener.OnUpdated(p, nil)
			})
		if err != nil {
			c.listener.OnUpdated(p, err)
			done()
		}
	}
}

// restoreRequest gathers the parts of one RequestRestore call.
type restoreRequest struct {
	remaining int
	restored  []person.Person
	errs      []error
}

// RequestRestore re-inserts removed records, each under a new ID. With no IDs
// every record currently removed is restored, along with every record whose
// delete is still queued or running; those restores run after their delete.
// A record whose re-insert fails stays in removed.
// POST: OnRestored is called exactly once for the request
func (c *Coordinator) RequestRestore(ids ...int64) {
	c.box.post(func() {
		targets := ids
		if len(targets) == 0 {
			targets = c.restoreAllTargets()
		}
		if len(targets) == 0 {
			c.listener.OnRestored(nil, nil)
			return
		}
		req := &restoreRequest{remaining: len(targets)}
		for _, id := range targets {
			c.lanes.enqueue(id, scheduler.KindInsert, c.restoreStep(id, req))
		}
	})
}

// restoreAllTargets lists removed IDs followed by IDs with a delete in flight.
func (c *Coordinator) restoreAllTargets() []int64 {
	targets := c.state.removedIDs()
	for _, id := range c.lanes.pending(scheduler.KindDelete) {
		if !slices.Contains(targets, id) {
			targets = append(targets, id)
		}
	}
	return targets
}

func (c *Coordinator) restoreStep(id int64, req *restoreRequest) step {
	return func(done func()) {
		finish := func(restored *person.Person, err error) {
			defer done()
			if restored != nil {
				req.restored = append(req.restored, *restored)
			}
			if err != nil {
				req.errs = append(req.errs, err)
			}
			req.remaining--
			if req.remaining == 0 {
				c.listener.OnRestored(req.restored, errors.Join(req.errs...))
			}
		}

		old, ok := find(c.state.removed, id)
		if !ok {
			finish(nil, notFound(id, "removed"))
			return
		}
		draft := old.Draft()
		err := c.submit(scheduler.KindInsert, id,
			func(ctx context.Context) (any, error) { return c.gw.Insert(ctx, draft) },
			func(comp scheduler.Completion) {
				if comp.Err != nil {
					finish(nil, fmt.Errorf("restore %d: %w", id, storeErr(comp.Err)))
					return
				}
				p, _ := comp.Value.(person.Person)
				c.state.applyRestore(id, p)
				c.publish()
				c.log.Info("person_event", "event", "person_restored", "old_id", id, "person_id", p.ID)
				finish(&p, nil)
			})
		if err != nil {
			finish(nil, fmt.Errorf("restore %d: %w", id, err))
		}
	}
}
