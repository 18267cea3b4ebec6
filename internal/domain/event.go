package domain

import (
	"fmt"
	"time"
)

// Event is a time-bounded entry in a user's calendar.
// Start and End are opaque instants (minutes since the Unix epoch in the
// front ends); End is exclusive.
type Event struct {
	ID        int64
	Owner     string
	Name      string
	Start     int64
	End       int64
	Days      WeekdayMask
	UID       string // Remote CalDAV UID for imported events
	CreatedAt time.Time
}

// Valid reports whether Start <= End.
func (e *Event) Valid() bool {
	return e.Start <= e.End
}

// Duration returns the event length in time units.
func (e *Event) Duration() int64 {
	return e.End - e.Start
}

// FormatTime returns the event range for display.
func (e *Event) FormatTime() string {
	return FormatRange(e.Start, e.End)
}

func (e *Event) String() string {
	return fmt.Sprintf("%s [%d, %d)", e.Name, e.Start, e.End)
}

// FreeWindow is a maximal half-open interval in which none of the queried
// users is busy.
type FreeWindow struct {
	Start int64
	End   int64
}

func (w FreeWindow) Duration() int64 {
	return w.End - w.Start
}

// FormatTime returns the window range for display.
func (w FreeWindow) FormatTime() string {
	return FormatRange(w.Start, w.End)
}
