package roster

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"roster/internal/application/scheduler"
	"roster/internal/domain/person"
)

// WaitSubmitter accepts jobs, blocking until the queue has room.
type WaitSubmitter interface {
	SubmitWait(ctx context.Context, job scheduler.Job) (*scheduler.Pending, error)
}

// SeedDeps holds dependencies for ExecuteSeed.
type SeedDeps struct {
	Gateway   Gateway
	Scheduler WaitSubmitter
	Logger    *slog.Logger
}

// InitialPeople returns the records a fresh store starts with.
func InitialPeople() []person.Person {
	day := func(y int, m time.Month, d int) *time.Time {
		t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return &t
	}
	return []person.Person{
		person.New("Xiker", "Garcia", day(2002, time.January, 15)),
		person.New("Ruben", "Luna", day(2005, time.May, 20)),
		person.New("Gaizka", "Rodriguez", day(2001, time.December, 3)),
	}
}

// ExecuteSeed inserts InitialPeople when the store holds no records.
// It runs before the loop starts and blocks on the scheduler, never on the loop.
// POST: returns the number of records inserted
func ExecuteSeed(ctx context.Context, deps SeedDeps) (int, error) {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	listed, err := await(ctx, deps.Scheduler, scheduler.Job{
		Kind: scheduler.KindList,
		Run:  func(ctx context.Context) (any, error) { return deps.Gateway.List(ctx) },
	})
	if err != nil {
		return 0, fmt.Errorf("seed: list: %w", err)
	}
	if existing, _ := listed.([]person.Person); len(existing) > 0 {
		return 0, nil // Already seeded
	}

	inserted := 0
	for _, p := range InitialPeople() {
		if _, err := await(ctx, deps.Scheduler, scheduler.Job{
			Kind: scheduler.KindInsert,
			Run:  func(ctx context.Context) (any, error) { return deps.Gateway.Insert(ctx, p) },
		}); err != nil {
			return inserted, fmt.Errorf("seed: insert %s %s: %w", p.FirstName, p.LastName, err)
		}
		inserted++
	}

	log.Info("seed_event", "event", "people_seeded", "count", inserted)
	return inserted, nil
}

func await(ctx context.Context, s WaitSubmitter, job scheduler.Job) (any, error) {
	pending, err := s.SubmitWait(ctx, job)
	if err != nil {
		return nil, err
	}
	comp, err := pending.Wait(ctx)
	if err != nil {
		return nil, err
	}
	if comp.Err != nil {
		return nil, storeErr(comp.Err)
	}
	return comp.Value, nil
}
