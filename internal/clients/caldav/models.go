package caldav

import "time"

// Calendar is a calendar collection on the server.
type Calendar struct {
	Path string
	Name string // display name
}

// Event is the part of a VEVENT that matters for busy time.
type Event struct {
	UID         string
	Summary     string
	Description string
	StartTime   time.Time
	EndTime     time.Time // zero when DTEND is absent
	AllDay      bool
	RRule       string // e.g. "FREQ=WEEKLY;BYDAY=MO"
}

// Period is a free or busy span in a VFREEBUSY component.
type Period struct {
	Start time.Time
	End   time.Time
}
