// Package console is the interactive presentation layer: it turns typed
// commands into coordinator requests and renders outcomes as tables.
package console

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"

	"roster/internal/adapters/perf"
	"roster/internal/application/roster"
	"roster/internal/domain/person"
)

// Roster is the coordinator surface the console drives.
type Roster interface {
	RequestList()
	RequestInsert(draft person.Person) error
	RequestDelete(ids ...int64)
	RequestRestore(ids ...int64)
	RequestUpdate(p person.Person) error
	View() *roster.View
}

// PoolStats reports scheduler occupancy for the stats command.
type PoolStats interface {
	Queued() int
	InFlight() int
}

// Deps holds dependencies for New.
type Deps struct {
	Out       io.Writer
	Now       func() time.Time
	Collector *perf.Collector
	Pool      PoolStats
}

// Console renders coordinator outcomes and executes commands.
// Listener callbacks arrive on the coordinator loop while commands run on the
// REPL goroutine; writes to Out are serialized.
type Console struct {
	mu        sync.Mutex
	out       io.Writer
	now       func() time.Time
	collector *perf.Collector
	pool      PoolStats
	roster    Roster
}

// New builds a console. Attach must be called before Execute.
func New(deps Deps) *Console {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Console{
		out:       deps.Out,
		now:       deps.Now,
		collector: deps.Collector,
		pool:      deps.Pool,
	}
}

// Attach binds the coordinator the console issues requests to.
func (c *Console) Attach(r Roster) {
	c.roster = r
}

func (c *Console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) renderPeople(title string, people []person.Person) {
	c.mu.Lock()
	defer c.mu.Unlock()
	writePeople(c.out, title, people, c.now())
}

// writePeople renders people as a table with their age category.
func writePeople(w io.Writer, title string, people []person.Person, now time.Time) {
	fmt.Fprintln(w, title)
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.Style().Format.Header = text.FormatDefault
	t.AppendHeader(table.Row{"ID", "First name", "Last name", "Birth date", "Age"})
	for _, p := range people {
		t.AppendRow(table.Row{p.ID, p.FirstName, p.LastName, p.BirthDateString(), string(p.AgeCategory(now))})
	}
	t.AppendFooter(table.Row{"", "", "", "Total", len(people)})
	t.Render()
}

// OnListed renders the active records.
func (c *Console) OnListed(records []person.Person, err error) {
	if err != nil {
		c.printf("list failed: %v\n", err)
		return
	}
	c.renderPeople("People", records)
}

// OnInserted reports an added record.
func (c *Console) OnInserted(p person.Person, err error) {
	if err != nil {
		c.printf("add %s %s failed: %v\n", p.FirstName, p.LastName, err)
		return
	}
	c.printf("added %s %s as %d\n", p.FirstName, p.LastName, p.ID)
}

// OnDeleted reports a removed record.
func (c *Console) OnDeleted(id int64, err error) {
	if err != nil {
		c.printf("delete %d failed: %v\n", id, err)
		return
	}
	c.printf("deleted %d (restore brings it back)\n", id)
}

// OnRestored renders what came back and what did not.
func (c *Console) OnRestored(records []person.Person, err error) {
	if len(records) == 0 && err == nil {
		c.printf("nothing to restore\n")
		return
	}
	if len(records) > 0 {
		c.renderPeople("Restored", records)
	}
	if err != nil {
		c.printf("restore failed: %v\n", err)
	}
}

// OnUpdated reports a rewritten record.
func (c *Console) OnUpdated(p person.Person, err error) {
	if err != nil {
		c.printf("update %d failed: %v\n", p.ID, err)
		return
	}
	c.printf("updated %s\n", p)
}

// writeStats renders scheduler occupancy and timing aggregates.
func writeStats(w io.Writer, snap perf.Snapshot, queued, inFlight int) {
	fmt.Fprintln(w, "Scheduler")
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.Style().Format.Header = text.FormatDefault
	t.AppendHeader(table.Row{"Queued", "In flight", "Jobs", "Failed", "p50 ms", "p95 ms", "p99 ms"})
	t.AppendRow(table.Row{queued, inFlight, snap.Jobs, snap.FailedJobs,
		fmt.Sprintf("%.2f", snap.JobP50Ms), fmt.Sprintf("%.2f", snap.JobP95Ms), fmt.Sprintf("%.2f", snap.JobP99Ms)})
	t.Render()

	for _, section := range []struct {
		title string
		stats []perf.NameStat
	}{
		{"Slowest jobs", snap.SlowestJobs},
		{"Slowest queries", snap.SlowestQueries},
	} {
		if len(section.stats) == 0 {
			continue
		}
		fmt.Fprintln(w, section.title)
		st := table.NewWriter()
		st.SetOutputMirror(w)
		st.Style().Format.Header = text.FormatDefault
		st.AppendHeader(table.Row{"Name", "Count", "Failed", "Avg ms", "Max ms"})
		for _, s := range section.stats {
			st.AppendRow(table.Row{s.Name, s.Count, s.Failed, fmt.Sprintf("%.2f", s.AvgMs), fmt.Sprintf("%.2f", s.MaxMs)})
		}
		st.Render()
	}
}
