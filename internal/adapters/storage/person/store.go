// Package person implements storage gateways for Person records.
package person

import (
	"context"

	domain "roster/internal/domain/person"
)

// Store is the storage gateway for Person records.
// Every call is blocking and atomic from the caller's point of view, holds its
// own connection or transaction for exactly its own duration, and is never
// retried internally. Errors wrap domain.ErrStoreUnavailable or
// domain.ErrConstraintViolation.
type Store interface {
	// List returns every stored person ordered by ascending ID.
	List(ctx context.Context) ([]domain.Person, error)
	// Insert stores an unpersisted person and returns it with its new ID.
	Insert(ctx context.Context, p domain.Person) (domain.Person, error)
	// Delete removes a person and reports whether a row was affected.
	Delete(ctx context.Context, id int64) (bool, error)
	// Update rewrites every field but the ID and reports whether a row was affected.
	Update(ctx context.Context, p domain.Person) (bool, error)
}
