package person

import (
	"errors"
	"strings"
)

// Domain errors
var (
	// ErrValidationFailed is resolved by the caller before any storage work is scheduled.
	ErrValidationFailed = errors.New("validation failed")
	// ErrStoreUnavailable covers connectivity loss, transient driver failures and job timeouts.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrConstraintViolation means the store rejected the data.
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrNotFound means the targeted identity is not where the operation expects it.
	ErrNotFound = errors.New("person not found")
)

// ValidationError lists every problem found on a record.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// Unwrap lets errors.Is match ErrValidationFailed.
func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}
