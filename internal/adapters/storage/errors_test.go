package storage

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"

	"roster/internal/domain/person"
)

// TestClassify_SQLiteConstraint verifies a real NOT NULL failure is a constraint violation.
func TestClassify_SQLiteConstraint(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := InitDB(ctx, db, DialectSQLite); err != nil {
		t.Fatalf("InitDB: %v", err)
	}

	_, err := db.Exec("INSERT INTO person (first_name, last_name) VALUES (NULL, 'Lopez')")
	if err == nil {
		t.Fatal("expected NOT NULL failure")
	}
	if got := Classify(err); !errors.Is(got, person.ErrConstraintViolation) {
		t.Errorf("Classify(%v) = %v, want ErrConstraintViolation", err, got)
	}

	_, err = db.Exec("INSERT INTO person (first_name, last_name) VALUES ('  ', 'Lopez')")
	if got := Classify(err); !errors.Is(got, person.ErrConstraintViolation) {
		t.Errorf("Classify(check failure) = %v, want ErrConstraintViolation", got)
	}
}

// TestClassify tests the mapping of driver errors onto the domain taxonomy.
func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"mysql duplicate key", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, person.ErrConstraintViolation},
		{"mysql check constraint", fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 3819}), person.ErrConstraintViolation},
		{"mysql server gone", &mysql.MySQLError{Number: 2006}, person.ErrStoreUnavailable},
		{"bad connection", driver.ErrBadConn, person.ErrStoreUnavailable},
		{"deadline", context.DeadlineExceeded, person.ErrStoreUnavailable},
		{"already classified", person.ErrNotFound, person.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("Classify(%v) dropped the driver error", tt.err)
			}
		})
	}
	if Classify(nil) != nil {
		t.Error("Classify(nil) should be nil")
	}
}
