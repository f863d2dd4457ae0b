package person

import (
	"context"
	"database/sql"
	"fmt"

	"roster/internal/adapters/storage"
	domain "roster/internal/domain/person"
)

// SQLStore implements Store on any SQL dialect supported by the storage package.
type SQLStore struct {
	db storage.SQLDB
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore creates a new SQL-backed person Store.
func NewSQLStore(db storage.SQLDB) *SQLStore {
	return &SQLStore{db: db}
}

// List retrieves all people ordered by ID.
// POST: Returns every row, or an error wrapping ErrStoreUnavailable
func (s *SQLStore) List(ctx context.Context) ([]domain.Person, error) {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return nil, storage.Classify(err)
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, "SELECT person_id, first_name, last_name, birth_date FROM person ORDER BY person_id")
	if err != nil {
		return nil, storage.Classify(err)
	}
	defer rows.Close()

	var results []domain.Person
	for rows.Next() {
		var (
			entity    domain.Person
			birthDate sql.NullString
		)
		if err := rows.Scan(&entity.ID, &entity.FirstName, &entity.LastName, &birthDate); err != nil {
			return nil, storage.Classify(err)
		}
		if birthDate.Valid && birthDate.String != "" {
			entity.BirthDate, err = domain.ParseDate(birthDate.String)
			if err != nil {
				return nil, storage.Classify(fmt.Errorf("person %d: %w", entity.ID, err))
			}
		}
		results = append(results, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Classify(err)
	}
	return results, nil
}

// Insert persists a new person and returns it with the generated ID.
// PRE: p is unpersisted (ID == 0)
// POST: Row inserted; returned copy carries the store-assigned ID
func (s *SQLStore) Insert(ctx context.Context, p domain.Person) (domain.Person, error) {
	if p.IsPersisted() {
		return domain.Person{}, fmt.Errorf("%w: insert of already persisted person %d", domain.ErrConstraintViolation, p.ID)
	}
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return domain.Person{}, storage.Classify(err)
	}
	defer conn.Close()

	res, err := conn.ExecContext(ctx,
		"INSERT INTO person (first_name, last_name, birth_date) VALUES (?, ?, ?)",
		p.FirstName, p.LastName, birthDateArg(p),
	)
	if err != nil {
		return domain.Person{}, storage.Classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Person{}, storage.Classify(err)
	}
	p.ID = id
	return p, nil
}

// Delete removes a person by ID.
// PRE: id is non-zero
// POST: Returns true if a row was removed
func (s *SQLStore) Delete(ctx context.Context, id int64) (bool, error) {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return false, storage.Classify(err)
	}
	defer conn.Close()

	res, err := conn.ExecContext(ctx, "DELETE FROM person WHERE person_id = ?", id)
	if err != nil {
		return false, storage.Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storage.Classify(err)
	}
	return n > 0, nil
}

// Update rewrites the mutable fields of a persisted person.
// PRE: p is persisted (ID != 0)
// POST: Returns true if the row exists and was rewritten
func (s *SQLStore) Update(ctx context.Context, p domain.Person) (bool, error) {
	if !p.IsPersisted() {
		return false, fmt.Errorf("%w: update of unpersisted person", domain.ErrConstraintViolation)
	}
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return false, storage.Classify(err)
	}
	defer conn.Close()

	res, err := conn.ExecContext(ctx,
		"UPDATE person SET first_name = ?, last_name = ?, birth_date = ? WHERE person_id = ?",
		p.FirstName, p.LastName, birthDateArg(p), p.ID,
	)
	if err != nil {
		return false, storage.Classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storage.Classify(err)
	}
	return n > 0, nil
}

// birthDateArg renders the optional birth date as a bind parameter.
func birthDateArg(p domain.Person) any {
	if p.BirthDate == nil {
		return nil
	}
	return p.BirthDateString()
}
