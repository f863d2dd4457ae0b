package storage

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"roster/internal/adapters/perf"
)

// Queryer is the statement surface shared by pooled handles and scoped connections.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ScopedConn is a single connection held for the duration of one gateway call.
// The holder must Close it on every exit path.
type ScopedConn interface {
	Queryer
	Close() error
}

// SQLDB is the database interface used by all stores.
type SQLDB interface {
	Queryer
	// Acquire checks out a dedicated connection from the pool.
	Acquire(ctx context.Context) (ScopedConn, error)
}

// DefaultSlowQueryMs is the default threshold for slow query warnings.
const DefaultSlowQueryMs = 50

var slowQueryMs int64
var slowQueryOnce sync.Once

// getSlowQueryThreshold returns the slow-query threshold in milliseconds.
func getSlowQueryThreshold() float64 {
	slowQueryOnce.Do(func() {
		ms := DefaultSlowQueryMs
		if v := os.Getenv("ROSTER_SLOW_QUERY_MS"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				ms = n
			}
		}
		atomic.StoreInt64(&slowQueryMs, int64(ms))
	})
	return float64(atomic.LoadInt64(&slowQueryMs))
}

// timer logs statement timings and feeds the collector.
type timer struct {
	collector *perf.Collector
	threshold float64
}

func (t timer) observe(op string, start time.Time, err error) {
	durationMs := float64(time.Since(start).Microseconds()) / 1000.0

	if durationMs >= t.threshold {
		slog.Warn("slow_query",
			"op", op,
			"duration_ms", durationMs,
		)
	} else {
		slog.Debug("query",
			"op", op,
			"duration_ms", durationMs,
		)
	}

	t.collector.Record(perf.Entry{
		Kind:       perf.KindQuery,
		Name:       op,
		Failed:     err != nil,
		DurationMs: durationMs,
		Timestamp:  start,
	})
}

// TimedDB wraps a *sql.DB to log slow queries and optionally record to a collector.
// Satisfies the SQLDB interface so it can be passed to any store constructor.
type TimedDB struct {
	db *sql.DB
	timer
}

// Compile-time check that *TimedDB satisfies SQLDB.
var _ SQLDB = (*TimedDB)(nil)

// NewTimedDB wraps a *sql.DB with timing instrumentation.
// PRE: db is a valid database connection; collector may be nil
// POST: Returns a TimedDB that logs slow queries and records to collector
func NewTimedDB(db *sql.DB, collector *perf.Collector) *TimedDB {
	return &TimedDB{
		db:    db,
		timer: timer{collector: collector, threshold: getSlowQueryThreshold()},
	}
}

// Acquire checks out a dedicated connection, timing the wait for the pool.
// PRE: ctx is valid
// POST: caller owns the returned connection and must Close it
func (t *TimedDB) Acquire(ctx context.Context) (ScopedConn, error) {
	start := time.Now()
	conn, err := t.db.Conn(ctx)
	t.observe("Acquire", start, err)
	if err != nil {
		return nil, err
	}
	return &TimedConn{conn: conn, timer: t.timer}, nil
}

// ExecContext wraps sql.DB.ExecContext with timing.
// PRE: ctx is valid, query is non-empty
// POST: query executed, timing recorded to collector
func (t *TimedDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	result, err := t.db.ExecContext(ctx, query, args...)
	t.observe("ExecContext", start, err)
	return result, err
}

// QueryContext wraps sql.DB.QueryContext with timing.
// PRE: ctx is valid, query is non-empty
// POST: query executed, timing recorded to collector
func (t *TimedDB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := t.db.QueryContext(ctx, query, args...)
	t.observe("QueryContext", start, err)
	return rows, err
}

// QueryRowContext wraps sql.DB.QueryRowContext with timing.
func (t *TimedDB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := t.db.QueryRowContext(ctx, query, args...)
	t.observe("QueryRowContext", start, row.Err())
	return row
}

// Close closes the underlying database connection.
// POST: database connection closed
func (t *TimedDB) Close() error {
	return t.db.Close()
}

// SetMaxOpenConns sets the maximum number of open connections.
// PRE: n >= 0
// POST: pool limit updated
func (t *TimedDB) SetMaxOpenConns(n int) {
	t.db.SetMaxOpenConns(n)
}

// SetMaxIdleConns sets the maximum number of idle connections.
// PRE: n >= 0
// POST: idle pool limit updated
func (t *TimedDB) SetMaxIdleConns(n int) {
	t.db.SetMaxIdleConns(n)
}

// TimedConn is a ScopedConn whose statements are timed like TimedDB's.
type TimedConn struct {
	conn *sql.Conn
	timer
}

// ExecContext runs a statement on the held connection.
func (c *TimedConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	result, err := c.conn.ExecContext(ctx, query, args...)
	c.observe("Conn.ExecContext", start, err)
	return result, err
}

// QueryContext runs a query on the held connection.
func (c *TimedConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	start := time.Now()
	rows, err := c.conn.QueryContext(ctx, query, args...)
	c.observe("Conn.QueryContext", start, err)
	return rows, err
}

// QueryRowContext runs a single-row query on the held connection.
func (c *TimedConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	start := time.Now()
	row := c.conn.QueryRowContext(ctx, query, args...)
	c.observe("Conn.QueryRowContext", start, row.Err())
	return row
}

// Close returns the connection to the pool.
// POST: the connection is released; further use fails with sql.ErrConnDone
func (c *TimedConn) Close() error {
	return c.conn.Close()
}
