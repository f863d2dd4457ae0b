package person

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	domain "roster/internal/domain/person"
)

// BucketPerson holds one JSON document per person keyed by big-endian ID.
var BucketPerson = []byte("person")

// BoltStore implements Store on an embedded bbolt file.
// Each call runs in its own transaction; IDs come from the bucket sequence
// and are never reused.
type BoltStore struct {
	DB *bolt.DB
}

var _ Store = (*BoltStore)(nil)

// boltRecord is the stored representation of a person.
type boltRecord struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	BirthDate string `json:"birth_date,omitempty"`
}

// OpenBolt opens (or creates) the database file at path and initializes buckets.
// PRE: path is writable
// POST: returns a ready store; caller owns Close
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening database file: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(BucketPerson)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing buckets: %w", err)
	}
	return &BoltStore{DB: db}, nil
}

// Close releases the database file.
func (s *BoltStore) Close() error {
	return s.DB.Close()
}

// List retrieves all people ordered by ID.
func (s *BoltStore) List(ctx context.Context) (list []domain.Person, err error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	err = s.DB.View(func(tx *bolt.Tx) error {
		b, err := bucket(tx)
		if err != nil {
			return err
		}
		return b.ForEach(func(_, v []byte) error {
			p, err := decode(v)
			if err != nil {
				return err
			}
			list = append(list, p)
			return nil
		})
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return list, nil
}

// Insert persists a new person under the next bucket sequence.
// PRE: p is unpersisted and both names are non-blank
// POST: Returned copy carries the assigned ID
func (s *BoltStore) Insert(ctx context.Context, p domain.Person) (domain.Person, error) {
	if p.IsPersisted() {
		return domain.Person{}, fmt.Errorf("%w: insert of already persisted person %d", domain.ErrConstraintViolation, p.ID)
	}
	if err := checkRow(p); err != nil {
		return domain.Person{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Person{}, unavailable(err)
	}
	err := s.DB.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx)
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		p.ID = int64(seq)
		v, err := encode(p)
		if err != nil {
			return err
		}
		return b.Put(itob(p.ID), v)
	})
	if err != nil {
		return domain.Person{}, unavailable(err)
	}
	return p, nil
}

// Delete removes a person by ID.
// POST: Returns true if the key existed
func (s *BoltStore) Delete(ctx context.Context, id int64) (found bool, err error) {
	if err := ctx.Err(); err != nil {
		return false, unavailable(err)
	}
	err = s.DB.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx)
		if err != nil {
			return err
		}
		key := itob(id)
		if b.Get(key) == nil {
			return nil
		}
		found = true
		return b.Delete(key)
	})
	if err != nil {
		return false, unavailable(err)
	}
	return found, nil
}

// Update rewrites a persisted person.
// POST: Returns true if the key existed and was rewritten
func (s *BoltStore) Update(ctx context.Context, p domain.Person) (found bool, err error) {
	if !p.IsPersisted() {
		return false, fmt.Errorf("%w: update of unpersisted person", domain.ErrConstraintViolation)
	}
	if err := checkRow(p); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, unavailable(err)
	}
	err = s.DB.Update(func(tx *bolt.Tx) error {
		b, err := bucket(tx)
		if err != nil {
			return err
		}
		key := itob(p.ID)
		if b.Get(key) == nil {
			return nil
		}
		found = true
		v, err := encode(p)
		if err != nil {
			return err
		}
		return b.Put(key, v)
	})
	if err != nil {
		return false, unavailable(err)
	}
	return found, nil
}

func bucket(tx *bolt.Tx) (*bolt.Bucket, error) {
	b := tx.Bucket(BucketPerson)
	if b == nil {
		return nil, fmt.Errorf("bucket not initialized: %s", BucketPerson)
	}
	return b, nil
}

// checkRow enforces the same presence rules as the SQL schema.
func checkRow(p domain.Person) error {
	if strings.TrimSpace(p.FirstName) == "" || strings.TrimSpace(p.LastName) == "" {
		return fmt.Errorf("%w: first and last name are required", domain.ErrConstraintViolation)
	}
	return nil
}

func unavailable(err error) error {
	if errors.Is(err, domain.ErrConstraintViolation) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
}

func encode(p domain.Person) ([]byte, error) {
	v, err := json.Marshal(boltRecord{
		ID:        p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		BirthDate: p.BirthDateString(),
	})
	if err != nil {
		return nil, fmt.Errorf("serializing person: %w", err)
	}
	return v, nil
}

func decode(v []byte) (domain.Person, error) {
	var r boltRecord
	if err := json.Unmarshal(v, &r); err != nil {
		return domain.Person{}, fmt.Errorf("deserializing person: %w", err)
	}
	birthDate, err := domain.ParseDate(r.BirthDate)
	if err != nil {
		return domain.Person{}, fmt.Errorf("deserializing person %d: %w", r.ID, err)
	}
	return domain.Person{ID: r.ID, FirstName: r.FirstName, LastName: r.LastName, BirthDate: birthDate}, nil
}

func itob(id int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}
