package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"roster/internal/domain/person"
)

// MySQL server error numbers that mean the row itself was rejected.
var mysqlConstraintErrors = map[uint16]bool{
	1048: true, // ER_BAD_NULL_ERROR
	1062: true, // ER_DUP_ENTRY
	1216: true, // ER_NO_REFERENCED_ROW
	1217: true, // ER_ROW_IS_REFERENCED
	1364: true, // ER_NO_DEFAULT_FOR_FIELD
	1406: true, // ER_DATA_TOO_LONG
	1451: true, // ER_ROW_IS_REFERENCED_2
	1452: true, // ER_NO_REFERENCED_ROW_2
	3819: true, // ER_CHECK_CONSTRAINT_VIOLATED
}

// Classify maps a driver error onto the domain taxonomy.
// Constraint failures become person.ErrConstraintViolation; everything else
// (connectivity, timeouts, closed handles) becomes person.ErrStoreUnavailable.
// POST: nil stays nil; already-classified errors pass through unchanged
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, person.ErrConstraintViolation) ||
		errors.Is(err, person.ErrStoreUnavailable) ||
		errors.Is(err, person.ErrNotFound) {
		return err
	}
	if IsConstraint(err) {
		return fmt.Errorf("%w: %w", person.ErrConstraintViolation, err)
	}
	return fmt.Errorf("%w: %w", person.ErrStoreUnavailable, err)
}

// IsConstraint reports whether err is a driver-level constraint rejection.
func IsConstraint(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return mysqlConstraintErrors[me.Number]
	}
	return false
}
