package storage

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"roster/internal/adapters/perf"
)

func openTimedTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db := openTestDB(t)
	if _, err := db.Exec("CREATE TABLE test (id TEXT PRIMARY KEY, val TEXT)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

// TestTimedDB_ExecContext verifies ExecContext records timing.
func TestTimedDB_ExecContext(t *testing.T) {
	collector := perf.NewCollector(100)
	tdb := NewTimedDB(openTimedTestDB(t), collector)

	_, err := tdb.ExecContext(context.Background(), "INSERT INTO test (id, val) VALUES (?, ?)", "1", "hello")
	if err != nil {
		t.Fatalf("ExecContext: %v", err)
	}
	if collector.TotalRecorded() != 1 {
		t.Errorf("TotalRecorded = %d, want 1", collector.TotalRecorded())
	}
}

// TestTimedDB_Acquire verifies a scoped connection is timed and usable until closed.
func TestTimedDB_Acquire(t *testing.T) {
	collector := perf.NewCollector(100)
	tdb := NewTimedDB(openTimedTestDB(t), collector)
	ctx := context.Background()

	conn, err := tdb.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := conn.ExecContext(ctx, "INSERT INTO test (id, val) VALUES (?, ?)", "1", "hello"); err != nil {
		t.Fatalf("Conn.ExecContext: %v", err)
	}
	var val string
	if err := conn.QueryRowContext(ctx, "SELECT val FROM test WHERE id = ?", "1").Scan(&val); err != nil {
		t.Fatalf("Conn.QueryRowContext: %v", err)
	}
	if val != "hello" {
		t.Errorf("val = %q, want hello", val)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Acquire + exec + query row
	if collector.TotalRecorded() != 3 {
		t.Errorf("TotalRecorded = %d, want 3", collector.TotalRecorded())
	}
	if _, err := conn.ExecContext(ctx, "SELECT 1"); err == nil {
		t.Error("expected error using a released connection")
	}
}

// TestTimedDB_AcquireCancelled verifies a cancelled context fails acquisition and is still timed.
func TestTimedDB_AcquireCancelled(t *testing.T) {
	collector := perf.NewCollector(100)
	tdb := NewTimedDB(openTimedTestDB(t), collector)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tdb.Acquire(ctx); err == nil {
		t.Fatal("expected error from cancelled context")
	}
	snap := collector.Snapshot(time.Time{}, 10)
	if len(snap.SlowestQueries) != 1 || snap.SlowestQueries[0].Failed != 1 {
		t.Errorf("SlowestQueries = %+v, want one failed Acquire", snap.SlowestQueries)
	}
}

// TestTimedDB_ErrorPassthrough_ExecContext verifies SQL errors are returned unchanged
// and timing is still recorded.
func TestTimedDB_ErrorPassthrough_ExecContext(t *testing.T) {
	collector := perf.NewCollector(100)
	tdb := NewTimedDB(openTimedTestDB(t), collector)

	_, err := tdb.ExecContext(context.Background(), "INSERT INTO nonexistent_table VALUES (?)")
	if err == nil {
		t.Fatal("expected error from invalid SQL, got nil")
	}
	if collector.TotalRecorded() != 1 {
		t.Errorf("TotalRecorded = %d, want 1 (must record even on error)", collector.TotalRecorded())
	}
}

// TestTimedDB_ErrorPassthrough_QueryRowContext verifies QueryRowContext scan errors pass through.
func TestTimedDB_ErrorPassthrough_QueryRowContext(t *testing.T) {
	tdb := NewTimedDB(openTimedTestDB(t), nil)

	var val string
	err := tdb.QueryRowContext(context.Background(), "SELECT val FROM test WHERE id = ?", "nonexistent").Scan(&val)
	if err != sql.ErrNoRows {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}

// TestTimedDB_ConcurrentAcquire verifies scoped connections can be held concurrently.
func TestTimedDB_ConcurrentAcquire(t *testing.T) {
	collector := perf.NewCollector(1000)
	tdb := NewTimedDB(openTimedTestDB(t), collector)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := tdb.Acquire(ctx)
			if err != nil {
				errs <- err
				return
			}
			defer conn.Close()
			var one int
			if err := conn.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent acquire: %v", err)
	}
}
