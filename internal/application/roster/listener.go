package roster

import "roster/internal/domain/person"

// Listener receives every outcome. All methods run on the coordinator loop,
// one at a time, after the view has been updated.
type Listener interface {
	OnListed(records []person.Person, err error)
	OnInserted(p person.Person, err error)
	OnDeleted(id int64, err error)
	// OnRestored is called once per restore request with the re-inserted
	// records and the joined errors of the parts that failed.
	OnRestored(records []person.Person, err error)
	OnUpdated(p person.Person, err error)
}

// ListenerFuncs adapts optional functions to Listener. Nil fields are ignored.
type ListenerFuncs struct {
	Listed   func([]person.Person, error)
	Inserted func(person.Person, error)
	Deleted  func(int64, error)
	Restored func([]person.Person, error)
	Updated  func(person.Person, error)
}

func (f ListenerFuncs) OnListed(records []person.Person, err error) {
	if f.Listed != nil {
		f.Listed(records, err)
	}
}

func (f ListenerFuncs) OnInserted(p person.Person, err error) {
	if f.Inserted != nil {
		f.Inserted(p, err)
	}
}

func (f ListenerFuncs) OnDeleted(id int64, err error) {
	if f.Deleted != nil {
		f.Deleted(id, err)
	}
}

func (f ListenerFuncs) OnRestored(records []person.Person, err error) {
	if f.Restored != nil {
		f.Restored(records, err)
	}
}

func (f ListenerFuncs) OnUpdated(p person.Person, err error) {
	if f.Updated != nil {
		f.Updated(p, err)
	}
}
