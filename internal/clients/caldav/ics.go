package caldav

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
)

const productID = "-//freebusy//CalDAV//EN"

// rruleDays is indexed Monday first.
var rruleDays = []rrule.Weekday{rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA, rrule.SU}

// WeeklyRRule renders a weekly rule for the given days, or "" for none.
func WeeklyRRule(days []time.Weekday) string {
	if len(days) == 0 {
		return ""
	}
	opt := rrule.ROption{Freq: rrule.WEEKLY}
	for _, d := range days {
		opt.Byweekday = append(opt.Byweekday, rruleDays[(int(d)+6)%7])
	}
	return opt.RRuleString()
}

// WeekdaysFromRRule returns the BYDAY days of a weekly rule. Rules with
// another frequency yield no days.
func WeekdaysFromRRule(rule string) ([]time.Weekday, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return nil, nil
	}
	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return nil, fmt.Errorf("parse RRULE %q: %w", rule, err)
	}
	if opt.Freq != rrule.WEEKLY {
		return nil, nil
	}

	var days []time.Weekday
	for _, wd := range opt.Byweekday {
		days = append(days, time.Weekday((wd.Day()+1)%7))
	}
	return days, nil
}

func newCalendar() *ical.Calendar {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	return cal
}

// eventToICS converts an Event to a VEVENT component
func eventToICS(event *Event, stamp time.Time) *ical.Component {
	vevent := ical.NewEvent()
	uid := event.UID
	if uid == "" {
		uid = generateUID()
	}
	vevent.Props.SetText(ical.PropUID, uid)
	vevent.Props.SetText(ical.PropSummary, event.Summary)
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())

	if event.Description != "" {
		vevent.Props.SetText(ical.PropDescription, event.Description)
	}

	if event.AllDay {
		vevent.Props.SetDate(ical.PropDateTimeStart, event.StartTime)
		if !event.EndTime.IsZero() {
			vevent.Props.SetDate(ical.PropDateTimeEnd, event.EndTime)
		}
	} else {
		vevent.Props.SetDateTime(ical.PropDateTimeStart, event.StartTime.UTC())
		if !event.EndTime.IsZero() {
			vevent.Props.SetDateTime(ical.PropDateTimeEnd, event.EndTime.UTC())
		}
	}

	if event.RRule != "" {
		prop := ical.NewProp(ical.PropRecurrenceRule)
		prop.Value = event.RRule
		vevent.Props.Set(prop)
	}

	return vevent.Component
}

// EncodeEvents writes events as one VCALENDAR.
func EncodeEvents(w io.Writer, events []Event) error {
	cal := newCalendar()
	now := time.Now()
	for i := range events {
		cal.Children = append(cal.Children, eventToICS(&events[i], now))
	}
	return ical.NewEncoder(w).Encode(cal)
}

// EncodeFreeBusy writes a VFREEBUSY component listing free periods of the
// queried range for the given attendees.
func EncodeFreeBusy(w io.Writer, attendees []string, from, to time.Time, free []Period) error {
	cal := newCalendar()

	fb := ical.NewComponent(ical.CompFreeBusy)
	fb.Props.SetText(ical.PropUID, generateUID())
	fb.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	fb.Props.SetDateTime(ical.PropDateTimeStart, from.UTC())
	fb.Props.SetDateTime(ical.PropDateTimeEnd, to.UTC())
	for _, a := range attendees {
		prop := ical.NewProp(ical.PropAttendee)
		prop.Value = a
		fb.Props.Add(prop)
	}
	for _, p := range free {
		prop := ical.NewProp(ical.PropFreeBusy)
		prop.Params.Set("FBTYPE", "FREE")
		prop.Value = formatPeriod(p)
		fb.Props.Add(prop)
	}

	cal.Children = append(cal.Children, fb)
	return ical.NewEncoder(w).Encode(cal)
}

// ParseCalendar extracts the first VEVENT of cal.
func ParseCalendar(cal *ical.Calendar) (Event, error) {
	events := cal.Events()
	if len(events) == 0 {
		return Event{}, fmt.Errorf("no VEVENT in calendar object")
	}
	return parseEvent(events[0].Component)
}

func parseEvent(comp *ical.Component) (Event, error) {
	var ev Event
	if prop := comp.Props.Get(ical.PropUID); prop != nil {
		ev.UID = prop.Value
	}
	if prop := comp.Props.Get(ical.PropSummary); prop != nil {
		ev.Summary = prop.Value
	}
	if prop := comp.Props.Get(ical.PropDescription); prop != nil {
		ev.Description = prop.Value
	}

	start := comp.Props.Get(ical.PropDateTimeStart)
	if start == nil {
		return ev, fmt.Errorf("event %q has no DTSTART", ev.UID)
	}
	t, err := start.DateTime(time.UTC)
	if err != nil {
		return ev, fmt.Errorf("parse DTSTART of %q: %w", ev.UID, err)
	}
	ev.StartTime = t
	ev.AllDay = start.ValueType() == ical.ValueDate

	if end := comp.Props.Get(ical.PropDateTimeEnd); end != nil {
		if t, err := end.DateTime(time.UTC); err == nil {
			ev.EndTime = t
		}
	}
	if prop := comp.Props.Get(ical.PropRecurrenceRule); prop != nil {
		ev.RRule = prop.Value
	}
	return ev, nil
}

// DecodeEvents parses every VEVENT in an iCalendar stream.
func DecodeEvents(r io.Reader) ([]Event, error) {
	cal, err := ical.NewDecoder(r).Decode()
	if err != nil {
		return nil, fmt.Errorf("decode calendar: %w", err)
	}

	var events []Event
	for _, child := range cal.Events() {
		e, err := parseEvent(child.Component)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

const periodLayout = "20060102T150405Z"

func formatPeriod(p Period) string {
	return p.Start.UTC().Format(periodLayout) + "/" + p.End.UTC().Format(periodLayout)
}

// generateUID generates a unique event ID
func generateUID() string {
	return uuid.NewString() + "@freebusy"
}
