package storage

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// openTestDB opens a file-backed SQLite database in a temp dir.
// A file (not :memory:) keeps every pooled connection on the same database.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), DialectSQLite, filepath.Join(t.TempDir(), "roster.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestInitDB_CreatesPersonTable verifies the schema is created and is idempotent.
func TestInitDB_CreatesPersonTable(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := InitDB(ctx, NewTimedDB(db, nil), DialectSQLite); err != nil {
			t.Fatalf("InitDB run %d: %v", i+1, err)
		}
	}

	var name string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='person'").Scan(&name)
	if err != nil {
		t.Fatalf("person table missing: %v", err)
	}
}

// TestInitDB_AssignsIncreasingIDs verifies AUTOINCREMENT never reuses a deleted id.
func TestInitDB_AssignsIncreasingIDs(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := InitDB(ctx, db, DialectSQLite); err != nil {
		t.Fatalf("InitDB: %v", err)
	}

	res, err := db.Exec("INSERT INTO person (first_name, last_name) VALUES ('Ana', 'Lopez')")
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	first, _ := res.LastInsertId()
	if _, err := db.Exec("DELETE FROM person WHERE person_id = ?", first); err != nil {
		t.Fatalf("delete: %v", err)
	}
	res, err = db.Exec("INSERT INTO person (first_name, last_name) VALUES ('Ana', 'Lopez')")
	if err != nil {
		t.Fatalf("reinsert: %v", err)
	}
	second, _ := res.LastInsertId()
	if second <= first {
		t.Errorf("reinsert id = %d, want > %d", second, first)
	}
}

// TestInitDB_UnknownDialect verifies unsupported dialects are rejected.
func TestInitDB_UnknownDialect(t *testing.T) {
	db := openTestDB(t)
	if err := InitDB(context.Background(), db, Dialect("oracle")); err == nil {
		t.Error("expected error for unknown dialect")
	}
}

// TestParseDialect verifies driver name parsing.
func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"sqlite", DialectSQLite, false},
		{" MySQL ", DialectMySQL, false},
		{"bolt", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDialect(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDialect(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDialect(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestOpen_BadMySQLDSN verifies DSN errors surface before any network I/O.
func TestOpen_BadMySQLDSN(t *testing.T) {
	if _, err := Open(context.Background(), DialectMySQL, "not a dsn"); err == nil {
		t.Error("expected error for malformed mysql DSN")
	}
}
