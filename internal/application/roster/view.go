package roster

import (
	"slices"

	"roster/internal/domain/person"
)

// View is an immutable snapshot of the roster as seen by the loop.
// Callers must treat the slices as read-only.
type View struct {
	Active     []person.Person
	Removed    []person.Person
	Generation uint64
}

// FindActive returns the active record with the given ID.
func (v *View) FindActive(id int64) (person.Person, bool) {
	return find(v.Active, id)
}

// FindRemoved returns the removed record with the given ID.
func (v *View) FindRemoved(id int64) (person.Person, bool) {
	return find(v.Removed, id)
}

func find(people []person.Person, id int64) (person.Person, bool) {
	i := indexOf(people, id)
	if i < 0 {
		return person.Person{}, false
	}
	return people[i], true
}

func indexOf(people []person.Person, id int64) int {
	return slices.IndexFunc(people, func(p person.Person) bool { return p.ID == id })
}

// viewState holds the active and removed collections.
// INVARIANT: only the coordinator loop calls its methods
// INVARIANT: an ID is never in both active and removed
// INVARIANT: every removed record has a non-zero ID
type viewState struct {
	active  []person.Person
	removed []person.Person

	gen     uint64
	touched map[int64]uint64 // generation at which an ID last changed
}

func newViewState() *viewState {
	return &viewState{touched: make(map[int64]uint64)}
}

func (s *viewState) touch(id int64) {
	s.gen++
	s.touched[id] = s.gen
}

// snapshot copies the collections so the published View never aliases loop state.
func (s *viewState) snapshot() *View {
	return &View{
		Active:     slices.Clone(s.active),
		Removed:    slices.Clone(s.removed),
		Generation: s.gen,
	}
}

func (s *viewState) isActive(id int64) bool  { return indexOf(s.active, id) >= 0 }
func (s *viewState) isRemoved(id int64) bool { return indexOf(s.removed, id) >= 0 }

// applyList merges a list result submitted at generation since.
// IDs changed after since keep their current state; removed IDs stay removed.
func (s *viewState) applyList(records []person.Person, since uint64) {
	next := make([]person.Person, 0, len(records)+len(s.active))
	for _, r := range records {
		if s.touched[r.ID] > since || s.isRemoved(r.ID) {
			continue
		}
		next = append(next, r)
	}
	for _, p := range s.active {
		if s.touched[p.ID] > since {
			next = append(next, p)
		}
	}
	slices.SortStableFunc(next, func(a, b person.Person) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	s.active = next
	s.gen++
}

// forget drops generation tracking; called when no list is in flight.
func (s *viewState) forget() {
	clear(s.touched)
}

// applyInsert appends a freshly persisted record.
// PRE: p.ID != 0
func (s *viewState) applyInsert(p person.Person) {
	if i := indexOf(s.active, p.ID); i >= 0 {
		s.active[i] = p
	} else {
		s.active = append(s.active, p)
	}
	s.touch(p.ID)
}

// applyUpdate replaces the active record with p's ID, appending it when a
// concurrent list dropped it.
// PRE: p.ID is not in removed
func (s *viewState) applyUpdate(p person.Person) {
	s.applyInsert(p)
}

// applyDelete moves p from active to removed. p is the record as it was when
// the delete started, so a list that dropped it meanwhile cannot lose it.
// PRE: p.ID != 0
func (s *viewState) applyDelete(p person.Person) {
	if i := indexOf(s.active, p.ID); i >= 0 {
		p = s.active[i]
		s.active = slices.Delete(s.active, i, i+1)
	}
	if !s.isRemoved(p.ID) {
		s.removed = append(s.removed, p)
	}
	s.touch(p.ID)
}

// applyRestore drops oldID from removed and appends its re-inserted copy.
// PRE: p.ID != 0 and p.ID != oldID
func (s *viewState) applyRestore(oldID int64, p person.Person) {
	if i := indexOf(s.removed, oldID); i >= 0 {
		s.removed = slices.Delete(s.removed, i, i+1)
	}
	s.touch(oldID)
	s.applyInsert(p)
}

func (s *viewState) removedIDs() []int64 {
	ids := make([]int64, len(s.removed))
	for i, p := range s.removed {
		ids[i] = p.ID
	}
	return ids
}
