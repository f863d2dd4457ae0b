package roster

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"roster/internal/application/scheduler"
	"roster/internal/domain/person"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

var fixedTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return fixedTime }

// fakeGateway is an in-memory Gateway whose calls can be held open per key.
// Keys are "list", "insert:<first name>", "delete:<id>" and "update:<id>".
type fakeGateway struct {
	mu         sync.Mutex
	rows       map[int64]person.Person
	nextID     int64
	fail       error
	failInsert map[string]error
	gates      map[string]chan struct{}
	calls      map[string]int
	entered    chan string
}

func newFakeGateway(people ...person.Person) *fakeGateway {
	g := &fakeGateway{
		rows:       make(map[int64]person.Person),
		failInsert: make(map[string]error),
		gates:      make(map[string]chan struct{}),
		calls:      make(map[string]int),
		entered:    make(chan string, 1024),
	}
	for _, p := range people {
		g.nextID++
		p.ID = g.nextID
		g.rows[p.ID] = p
	}
	return g
}

func (g *fakeGateway) hold(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gates[key] = make(chan struct{})
}

func (g *fakeGateway) release(key string) {
	g.mu.Lock()
	ch := g.gates[key]
	delete(g.gates, key)
	g.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

func (g *fakeGateway) releaseAll() {
	g.mu.Lock()
	keys := make([]string, 0, len(g.gates))
	for k := range g.gates {
		keys = append(keys, k)
	}
	g.mu.Unlock()
	for _, k := range keys {
		g.release(k)
	}
}

func (g *fakeGateway) setFail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fail = err
}

func (g *fakeGateway) setFailInsert(firstName string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failInsert[firstName] = err
}

func (g *fakeGateway) drop(id int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rows, id)
}

func (g *fakeGateway) count(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *fakeGateway) enter(ctx context.Context, op, key string) error {
	g.mu.Lock()
	g.calls[op]++
	gate := g.gates[key]
	fail := g.fail
	g.mu.Unlock()

	g.entered <- key
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fail
}

// List snapshots the rows before it blocks, like a query that already read its result.
func (g *fakeGateway) List(ctx context.Context) ([]person.Person, error) {
	g.mu.Lock()
	out := make([]person.Person, 0, len(g.rows))
	for _, p := range g.rows {
		out = append(out, p)
	}
	g.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if err := g.enter(ctx, "list", "list"); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *fakeGateway) Insert(ctx context.Context, p person.Person) (person.Person, error) {
	if err := g.enter(ctx, "insert", "insert:"+p.FirstName); err != nil {
		return person.Person{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failInsert[p.FirstName]; err != nil {
		return person.Person{}, err
	}
	g.nextID++
	p.ID = g.nextID
	g.rows[p.ID] = p
	return p, nil
}

func (g *fakeGateway) Delete(ctx context.Context, id int64) (bool, error) {
	if err := g.enter(ctx, "delete", "delete:"+itoa(id)); err != nil {
		return false, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.rows[id]; !ok {
		return false, nil
	}
	delete(g.rows, id)
	return true, nil
}

func (g *fakeGateway) Update(ctx context.Context, p person.Person) (bool, error) {
	if err := g.enter(ctx, "update", "update:"+itoa(p.ID)); err != nil {
		return false, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.rows[p.ID]; !ok {
		return false, nil
	}
	g.rows[p.ID] = p
	return true, nil
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

// waitEntered blocks until every key has reached the gateway.
func (g *fakeGateway) waitEntered(t *testing.T, keys ...string) {
	t.Helper()
	want := slices.Clone(keys)
	timeout := time.After(5 * time.Second)
	for len(want) > 0 {
		select {
		case k := <-g.entered:
			if i := slices.Index(want, k); i >= 0 {
				want = slices.Delete(want, i, i+1)
			}
		case <-timeout:
			t.Fatalf("gateway calls never arrived: %v", want)
		}
	}
}

type event struct {
	op      string
	id      int64
	person  person.Person
	records []person.Person
	err     error
}

// recorder is a Listener that forwards every callback to a channel.
type recorder struct {
	events chan event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan event, 256)}
}

func (r *recorder) OnListed(records []person.Person, err error) {
	r.events <- event{op: "listed", records: records, err: err}
}

func (r *recorder) OnInserted(p person.Person, err error) {
	r.events <- event{op: "inserted", id: p.ID, person: p, err: err}
}

func (r *recorder) OnDeleted(id int64, err error) {
	r.events <- event{op: "deleted", id: id, err: err}
}

func (r *recorder) OnRestored(records []person.Person, err error) {
	r.events <- event{op: "restored", records: records, err: err}
}

func (r *recorder) OnUpdated(p person.Person, err error) {
	r.events <- event{op: "updated", id: p.ID, person: p, err: err}
}

func (r *recorder) expect(t *testing.T, op string) event {
	t.Helper()
	select {
	case ev := <-r.events:
		if ev.op != op {
			t.Fatalf("got %s event (%+v), want %s", ev.op, ev, op)
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s event", op)
	}
	return event{}
}

func (r *recorder) expectNone(t *testing.T) {
	t.Helper()
	select {
	case ev := <-r.events:
		t.Fatalf("unexpected %s event: %+v", ev.op, ev)
	case <-time.After(20 * time.Millisecond):
	}
}

// panicOnce is a recorder whose first OnDeleted call panics.
type panicOnce struct {
	*recorder
	fired bool
}

func (p *panicOnce) OnDeleted(id int64, err error) {
	if !p.fired {
		p.fired = true
		panic("listener failed")
	}
	p.recorder.OnDeleted(id, err)
}

type harness struct {
	coord *Coordinator
	gw    *fakeGateway
	sched *scheduler.Scheduler
	rec   *recorder
}

func newHarness(t *testing.T, gw *fakeGateway, cfg scheduler.Config) *harness {
	t.Helper()
	return newListenerHarness(t, gw, cfg, nil)
}

// newListenerHarness is newHarness with the recorder wrapped by wrap before it
// becomes the coordinator's listener.
func newListenerHarness(t *testing.T, gw *fakeGateway, cfg scheduler.Config, wrap func(*recorder) Listener) *harness {
	t.Helper()
	cfg.Logger = quiet
	sched := scheduler.New(cfg)
	rec := newRecorder()
	var listener Listener = rec
	if wrap != nil {
		listener = wrap(rec)
	}
	coord := NewCoordinator(CoordinatorDeps{
		Gateway:   gw,
		Scheduler: sched,
		Listener:  listener,
		Now:       fixedNow,
		Logger:    quiet,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()

	t.Cleanup(func() {
		gw.releaseAll()
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := sched.Shutdown(sctx); err != nil {
			t.Errorf("scheduler shutdown: %v", err)
		}
		coord.Close()
		cancel()
		if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run: %v", err)
		}
	})
	return &harness{coord: coord, gw: gw, sched: sched, rec: rec}
}

// load fills the view from the gateway.
func (h *harness) load(t *testing.T) {
	t.Helper()
	h.coord.RequestList()
	if ev := h.rec.expect(t, "listed"); ev.err != nil {
		t.Fatalf("list: %v", ev.err)
	}
}

func (h *harness) sync(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.coord.Sync(ctx); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}

func mk(first, last string) person.Person {
	return person.New(first, last, nil)
}

// names returns the sorted "First Last" names of people.
func names(people []person.Person) []string {
	out := make([]string, len(people))
	for i, p := range people {
		out[i] = p.FirstName + " " + p.LastName
	}
	sort.Strings(out)
	return out
}
