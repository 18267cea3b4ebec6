package domain

import (
	"fmt"
	"strings"
	"time"
)

// WeekdayMask is a set of weekdays, bit 0 = Monday ... bit 6 = Sunday.
// It is stored and returned as-is; nothing in the scheduling engine
// interprets it.
type WeekdayMask uint8

const (
	Monday WeekdayMask = 1 << iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

// AllWeekdays lists the mask bits in storage order.
var AllWeekdays = [7]WeekdayMask{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// Column names for the recurring table, same order as AllWeekdays.
var WeekdayKeys = [7]string{"mon", "tue", "wed", "thur", "fri", "sat", "sun"}

var weekdayAliases = map[string]WeekdayMask{
	"mon": Monday, "monday": Monday,
	"tue": Tuesday, "tues": Tuesday, "tuesday": Tuesday,
	"wed": Wednesday, "wednesday": Wednesday,
	"thu": Thursday, "thur": Thursday, "thurs": Thursday, "thursday": Thursday,
	"fri": Friday, "friday": Friday,
	"sat": Saturday, "saturday": Saturday,
	"sun": Sunday, "sunday": Sunday,
}

func (m WeekdayMask) Has(d WeekdayMask) bool {
	return m&d != 0
}

func (m WeekdayMask) Empty() bool {
	return m&0x7f == 0
}

// Bools returns the mask as seven flags, Monday first.
func (m WeekdayMask) Bools() [7]bool {
	var out [7]bool
	for i, d := range AllWeekdays {
		out[i] = m.Has(d)
	}
	return out
}

// MaskFromBools builds a mask from seven flags, Monday first.
func MaskFromBools(flags [7]bool) WeekdayMask {
	var m WeekdayMask
	for i, set := range flags {
		if set {
			m |= AllWeekdays[i]
		}
	}
	return m
}

// Weekdays returns the set days as time.Weekday values, Monday first.
func (m WeekdayMask) Weekdays() []time.Weekday {
	var out []time.Weekday
	for i, d := range AllWeekdays {
		if m.Has(d) {
			out = append(out, time.Weekday((i+1)%7))
		}
	}
	return out
}

// MaskFromWeekdays is the inverse of Weekdays.
func MaskFromWeekdays(days []time.Weekday) WeekdayMask {
	var m WeekdayMask
	for _, d := range days {
		m |= AllWeekdays[(int(d)+6)%7]
	}
	return m
}

// String renders the mask as "mon,wed,fri"; empty mask renders as "".
func (m WeekdayMask) String() string {
	var parts []string
	for i, d := range AllWeekdays {
		if m.Has(d) {
			parts = append(parts, WeekdayKeys[i])
		}
	}
	return strings.Join(parts, ",")
}

// ParseWeekdayMask parses a comma separated list of day names ("mon,wed").
func ParseWeekdayMask(s string) (WeekdayMask, error) {
	var m WeekdayMask
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		d, ok := weekdayAliases[part]
		if !ok {
			return 0, fmt.Errorf("unknown weekday: %s", part)
		}
		m |= d
	}
	return m, nil
}
