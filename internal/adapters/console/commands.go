package console

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"roster/internal/domain/person"
)

// Command errors
var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("usage")
)

const helpText = `commands:
  list                                 reload people from the store
  add <first> <last> [YYYY-MM-DD]      add a person
  update <id> <first> <last> [date]    rewrite a person's fields
  delete <id> [id...]                  remove people (kept for restore)
  restore [id...]                      restore removed people, all when no id is given
  show                                 print the current view
  stats                                print scheduler and query timings
  help                                 print this help
  quit                                 leave
`

// Execute runs one command line.
// PRE: Attach has been called
// POST: quit is true when the user asked to leave
func (c *Console) Execute(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "quit", "exit":
		return true, nil
	case "help", "?":
		c.printf("%s", helpText)
	case "list", "ls":
		c.roster.RequestList()
	case "add":
		p, err := parsePerson(args)
		if err != nil {
			return false, fmt.Errorf("%w: add <first> <last> [YYYY-MM-DD]: %w", ErrUsage, err)
		}
		return false, c.roster.RequestInsert(p)
	case "update":
		if len(args) < 1 {
			return false, fmt.Errorf("%w: update <id> <first> <last> [YYYY-MM-DD]", ErrUsage)
		}
		ids, err := parseIDs(args[:1])
		if err != nil {
			return false, err
		}
		p, err := parsePerson(args[1:])
		if err != nil {
			return false, fmt.Errorf("%w: update <id> <first> <last> [YYYY-MM-DD]: %w", ErrUsage, err)
		}
		p.ID = ids[0]
		return false, c.roster.RequestUpdate(p)
	case "delete", "rm":
		if len(args) == 0 {
			return false, fmt.Errorf("%w: delete <id> [id...]", ErrUsage)
		}
		ids, err := parseIDs(args)
		if err != nil {
			return false, err
		}
		c.roster.RequestDelete(ids...)
	case "restore":
		ids, err := parseIDs(args)
		if err != nil {
			return false, err
		}
		c.roster.RequestRestore(ids...)
	case "show":
		v := c.roster.View()
		c.renderPeople("Active", v.Active)
		c.renderPeople("Removed", v.Removed)
	case "stats":
		c.mu.Lock()
		queued, inFlight := 0, 0
		if c.pool != nil {
			queued, inFlight = c.pool.Queued(), c.pool.InFlight()
		}
		writeStats(c.out, c.collector.Snapshot(time.Time{}, 5), queued, inFlight)
		c.mu.Unlock()
	default:
		return false, fmt.Errorf("%w %q (try help)", ErrUnknownCommand, name)
	}
	return false, nil
}

func parsePerson(args []string) (person.Person, error) {
	if len(args) < 2 || len(args) > 3 {
		return person.Person{}, errors.New("expected a first name, a last name and an optional birth date")
	}
	var date string
	if len(args) == 3 {
		date = args[2]
	}
	born, err := person.ParseDate(date)
	if err != nil {
		return person.Person{}, err
	}
	return person.New(args[0], args[1], born), nil
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%w: %q is not a record id", ErrUsage, a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
