package person

import (
	"fmt"
	"strings"
	"time"
)

// Max length constants for user-editable fields.
const (
	MaxNameLength = 100
)

// DateLayout is the calendar date format used for birth dates in storage and input.
const DateLayout = "2006-01-02"

// AgeCategory buckets a person by completed years of age.
type AgeCategory string

// Age categories
const (
	AgeBaby    AgeCategory = "baby"
	AgeChild   AgeCategory = "child"
	AgeTeen    AgeCategory = "teen"
	AgeAdult   AgeCategory = "adult"
	AgeSenior  AgeCategory = "senior"
	AgeUnknown AgeCategory = "unknown"
)

// Person holds state for the concept.
// ID is zero until the store assigns one on first successful insert.
type Person struct {
	ID        int64
	FirstName string
	LastName  string
	BirthDate *time.Time
}

// New builds an unpersisted Person with names trimmed and the birth date truncated to a calendar day.
func New(firstName, lastName string, birthDate *time.Time) Person {
	return Person{
		FirstName: strings.TrimSpace(firstName),
		LastName:  strings.TrimSpace(lastName),
		BirthDate: Date(birthDate),
	}
}

// Date normalizes t to midnight UTC of the same calendar day.
// Returns nil when t is nil.
func Date(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

// ParseDate parses a YYYY-MM-DD string. An empty string yields nil.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("birth date %q must be YYYY-MM-DD: %w", s, err)
	}
	return &t, nil
}

// IsPersisted reports whether the store has assigned an identity.
func (p Person) IsPersisted() bool {
	return p.ID != 0
}

// Draft returns a copy with the identity cleared, ready to be inserted again.
// POST: display fields are unchanged, ID is zero
func (p Person) Draft() Person {
	d := p
	d.ID = 0
	d.BirthDate = Date(p.BirthDate)
	return d
}

// BirthDateString formats the birth date, or returns "" when absent.
func (p Person) BirthDateString() string {
	if p.BirthDate == nil {
		return ""
	}
	return p.BirthDate.Format(DateLayout)
}

// SameFields reports whether two records carry the same display fields, ignoring identity.
func (p Person) SameFields(o Person) bool {
	return p.FirstName == o.FirstName &&
		p.LastName == o.LastName &&
		p.BirthDateString() == o.BirthDateString()
}

// Validate checks if the Person has valid data as of now.
// PRE: Person struct is initialized
// POST: Returns a *ValidationError wrapping ErrValidationFailed, nil otherwise
func (p *Person) Validate() error {
	return p.ValidateAt(time.Now())
}

// ValidateAt checks the Person against the clock value now.
// INVARIANT: names must not be blank, birth date must not be after now
func (p *Person) ValidateAt(now time.Time) error {
	var problems []string
	if strings.TrimSpace(p.FirstName) == "" {
		problems = append(problems, "first name must contain at least one character")
	} else if len(p.FirstName) > MaxNameLength {
		problems = append(problems, fmt.Sprintf("first name cannot exceed %d characters", MaxNameLength))
	}
	if strings.TrimSpace(p.LastName) == "" {
		problems = append(problems, "last name must contain at least one character")
	} else if len(p.LastName) > MaxNameLength {
		problems = append(problems, fmt.Sprintf("last name cannot exceed %d characters", MaxNameLength))
	}
	if p.BirthDate != nil && p.BirthDate.After(now) {
		problems = append(problems, "birth date must not be in the future")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// AgeCategory classifies the person by completed years at now.
// INVARIANT: a missing birth date yields AgeUnknown
func (p Person) AgeCategory(now time.Time) AgeCategory {
	if p.BirthDate == nil {
		return AgeUnknown
	}
	years := completedYears(*p.BirthDate, now)
	switch {
	case years < 0:
		return AgeUnknown
	case years < 2:
		return AgeBaby
	case years < 13:
		return AgeChild
	case years <= 19:
		return AgeTeen
	case years <= 50:
		return AgeAdult
	default:
		return AgeSenior
	}
}

func completedYears(from, to time.Time) int {
	years := to.Year() - from.Year()
	if to.Month() < from.Month() || (to.Month() == from.Month() && to.Day() < from.Day()) {
		years--
	}
	return years
}

func (p Person) String() string {
	return fmt.Sprintf("[id=%d first=%s last=%s birth=%s]", p.ID, p.FirstName, p.LastName, p.BirthDateString())
}
