package types

import (
	"errors"
	"time"
)

// ErrInvalidTransition is returned when an event state change is attempted
// from a state that does not allow it.
var ErrInvalidTransition = errors.New("invalid event state transition")

// Event tracks one external competitive event.
// DueAt drives the poll schedule: a nil value marks the event terminal and it
// is never reconsidered, while DueAt <= now makes it eligible for the next
// poll batch. Roster holds the participant ids last observed on the event
// page and is authoritative for dormant-event wake-up checks.
type Event struct {
	ID     int64      `bun:",pk"`
	Date   time.Time  `bun:",notnull"`
	Name   string     `bun:",notnull"`
	Roster []int64    `bun:",array"`
	DueAt  *time.Time `bun:""`
}

// IsTerminal reports whether the event has left the poll schedule.
func (e *Event) IsTerminal() bool {
	return e.DueAt == nil
}
