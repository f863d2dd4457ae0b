package roster

import (
	"slices"

	"roster/internal/application/scheduler"
)

// step is one lane entry. It runs on the loop when it reaches the head of its
// lane and must call done exactly once, on the loop, when its effect is applied.
type step func(done func())

type laneEntry struct {
	kind scheduler.Kind
	run  step
}

// lanes serialize work per record identity.
// INVARIANT: at most one step per ID is started and not yet done
type lanes struct {
	queues  map[int64][]laneEntry
	onPanic func(id int64, r any)
}

// newLanes builds empty lanes. onPanic, when non-nil, hears about every step
// that panicked while starting; the panicking step's lane is released either way.
func newLanes(onPanic func(id int64, r any)) *lanes {
	return &lanes{queues: make(map[int64][]laneEntry), onPanic: onPanic}
}

// enqueue appends s to id's lane and starts it when the lane is idle.
func (l *lanes) enqueue(id int64, kind scheduler.Kind, s step) {
	q := l.queues[id]
	l.queues[id] = append(q, laneEntry{kind: kind, run: s})
	if len(q) == 0 {
		l.start(id)
	}
}

func (l *lanes) start(id int64) {
	head := l.queues[id][0]
	finished := false
	done := func() {
		if finished {
			return
		}
		finished = true
		l.advance(id)
	}
	defer func() {
		if r := recover(); r != nil {
			if l.onPanic != nil {
				l.onPanic(id, r)
			}
			done()
		}
	}()
	head.run(done)
}

func (l *lanes) advance(id int64) {
	q := l.queues[id][1:]
	if len(q) == 0 {
		delete(l.queues, id)
		return
	}
	l.queues[id] = q
	l.start(id)
}

// pending returns, in ascending order, the IDs whose lane holds a step of
// kind that is queued or running.
func (l *lanes) pending(kind scheduler.Kind) []int64 {
	var ids []int64
	for id, q := range l.queues {
		if slices.ContainsFunc(q, func(e laneEntry) bool { return e.kind == kind }) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// busy reports how many identities have work queued or running.
func (l *lanes) busy() int {
	return len(l.queues)
}
