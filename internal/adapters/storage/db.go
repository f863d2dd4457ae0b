// Package storage holds the SQL plumbing shared by every store: dialects,
// schema, timed handles and driver error classification.
package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// Dialect names a supported SQL backend. Values double as database/sql driver names.
type Dialect string

// Supported dialects
const (
	DialectSQLite Dialect = "sqlite"
	DialectMySQL  Dialect = "mysql"
)

// ParseDialect maps a configured driver name onto a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(name))); d {
	case DialectSQLite, DialectMySQL:
		return d, nil
	default:
		return "", fmt.Errorf("unsupported sql dialect %q", name)
	}
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS person (
	person_id INTEGER PRIMARY KEY AUTOINCREMENT,
	first_name TEXT NOT NULL CHECK (length(trim(first_name)) > 0),
	last_name TEXT NOT NULL CHECK (length(trim(last_name)) > 0),
	birth_date TEXT
);`

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS person (
	person_id INT NOT NULL AUTO_INCREMENT PRIMARY KEY,
	first_name VARCHAR(100) NOT NULL,
	last_name VARCHAR(100) NOT NULL,
	birth_date DATE NULL,
	CONSTRAINT person_first_name_present CHECK (CHAR_LENGTH(TRIM(first_name)) > 0),
	CONSTRAINT person_last_name_present CHECK (CHAR_LENGTH(TRIM(last_name)) > 0)
)`

// InitDB initializes the database schema for the dialect.
// PRE: q is a valid database handle for dialect
// POST: the person table exists
func InitDB(ctx context.Context, q Queryer, dialect Dialect) error {
	var schema string
	switch dialect {
	case DialectSQLite:
		schema = sqliteSchema
	case DialectMySQL:
		schema = mysqlSchema
	default:
		return fmt.Errorf("init schema: unsupported dialect %q", dialect)
	}
	if _, err := q.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// sqlitePragmas enable WAL, a busy timeout and foreign key enforcement.
const sqlitePragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)"

// Open opens a pooled handle for the dialect and verifies it is reachable.
// PRE: dsn is a file path (sqlite) or a go-sql-driver DSN (mysql)
// POST: returns a live *sql.DB or an error; the caller owns Close
func Open(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case DialectSQLite:
		if !strings.Contains(dsn, "?") {
			dsn += "?" + sqlitePragmas
		}
		db, err = sql.Open(string(DialectSQLite), dsn)
	case DialectMySQL:
		var cfg *mysql.Config
		cfg, err = mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		// Dates are scanned as text so both dialects share one row mapper.
		cfg.ParseTime = false
		// Report matched rows so an unchanged UPDATE still counts as found.
		cfg.ClientFoundRows = true
		var connector driver.Connector
		connector, err = mysql.NewConnector(cfg)
		if err == nil {
			db = sql.OpenDB(connector)
		}
	default:
		return nil, fmt.Errorf("open: unsupported dialect %q", dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", dialect, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database unreachable: %w", err)
	}
	return db, nil
}
