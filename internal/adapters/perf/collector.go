// Package perf keeps a bounded in-memory record of storage job and query timings.
package perf

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRingSize is the default capacity of the ring buffer.
const DefaultRingSize = 10000

// EntryKind distinguishes scheduler jobs from individual SQL statements.
type EntryKind uint8

const (
	KindJob EntryKind = iota
	KindQuery
)

// Entry is a single timing record stored in the ring buffer.
type Entry struct {
	Kind       EntryKind
	Name       string // job kind ("delete") or statement op ("ExecContext")
	Failed     bool
	DurationMs float64
	Timestamp  time.Time
}

// Collector is a fixed-size ring buffer for timing entries.
// Writes never block on readers; when full, oldest entries are overwritten.
// Aggregation happens only on read (Snapshot).
type Collector struct {
	mu      sync.Mutex
	entries []Entry
	size    int
	pos     int
	count   int64 // total entries ever written (atomic for stats)
}

// NewCollector creates a collector with the given ring buffer capacity.
// PRE: none (size <= 0 falls back to DefaultRingSize)
// POST: Returns a ready-to-use collector with pre-allocated storage
func NewCollector(size int) *Collector {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Collector{
		entries: make([]Entry, size),
		size:    size,
	}
}

// Record appends an entry to the ring buffer. Safe on a nil Collector.
// POST: Entry stored; if buffer full, oldest entry overwritten
func (c *Collector) Record(e Entry) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries[c.pos] = e
	c.pos = (c.pos + 1) % c.size
	c.mu.Unlock()
	atomic.AddInt64(&c.count, 1)
}

// Since records an entry whose duration runs from start until now.
func (c *Collector) Since(kind EntryKind, name string, start time.Time, failed bool) {
	if c == nil {
		return
	}
	c.Record(Entry{
		Kind:       kind,
		Name:       name,
		Failed:     failed,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
		Timestamp:  start,
	})
}

// TotalRecorded returns the total number of entries ever recorded.
// POST: returns count >= 0
func (c *Collector) TotalRecorded() int64 {
	if c == nil {
		return 0
	}
	return atomic.LoadInt64(&c.count)
}

// Snapshot holds aggregated performance data computed on read.
type Snapshot struct {
	TotalRecorded  int64
	Jobs           int
	FailedJobs     int
	JobP50Ms       float64
	JobP95Ms       float64
	JobP99Ms       float64
	SlowestJobs    []NameStat
	SlowestQueries []NameStat
}

// NameStat aggregates timing for a single job kind or statement op.
type NameStat struct {
	Name    string
	AvgMs   float64
	MaxMs   float64
	Count   int
	Failed  int
	TotalMs float64
}

// Snapshot computes aggregated stats from the ring buffer.
// Sorts, so call it on demand rather than per job.
// POST: Returns a Snapshot with job percentiles and top-N lists
func (c *Collector) Snapshot(since time.Time, topN int) Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	buf := make([]Entry, c.size)
	copy(buf, c.entries)
	c.mu.Unlock()

	var jobDurations []float64
	jobStats := make(map[string]*NameStat)
	queryStats := make(map[string]*NameStat)
	snap := Snapshot{TotalRecorded: c.TotalRecorded()}

	for _, e := range buf {
		if e.Timestamp.IsZero() || e.Timestamp.Before(since) {
			continue
		}
		stats := queryStats
		if e.Kind == KindJob {
			stats = jobStats
			jobDurations = append(jobDurations, e.DurationMs)
			snap.Jobs++
			if e.Failed {
				snap.FailedJobs++
			}
		}
		s, ok := stats[e.Name]
		if !ok {
			s = &NameStat{Name: e.Name}
			stats[e.Name] = s
		}
		s.Count++
		s.TotalMs += e.DurationMs
		if e.Failed {
			s.Failed++
		}
		if e.DurationMs > s.MaxMs {
			s.MaxMs = e.DurationMs
		}
	}

	snap.SlowestJobs = topByAvg(jobStats, topN)
	snap.SlowestQueries = topByAvg(queryStats, topN)

	if len(jobDurations) > 0 {
		sort.Float64s(jobDurations)
		snap.JobP50Ms = percentile(jobDurations, 50)
		snap.JobP95Ms = percentile(jobDurations, 95)
		snap.JobP99Ms = percentile(jobDurations, 99)
	}
	return snap
}

// percentile returns the p-th percentile from a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower == upper || upper >= len(sorted) {
		return sorted[lower]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// topByAvg returns the top N names sorted by average duration (descending).
func topByAvg(stats map[string]*NameStat, n int) []NameStat {
	list := make([]NameStat, 0, len(stats))
	for _, s := range stats {
		s.AvgMs = s.TotalMs / float64(s.Count)
		list = append(list, *s)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].AvgMs == list[j].AvgMs {
			return list[i].Name < list[j].Name
		}
		return list[i].AvgMs > list[j].AvgMs
	})
	if n > 0 && len(list) > n {
		list = list[:n]
	}
	return list
}
