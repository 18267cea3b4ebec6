package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the input format accepted by the chat and HTTP front ends.
const TimeLayout = "2006-01-02T15:04"

// MinutesFromTime converts t to minutes since the Unix epoch.
func MinutesFromTime(t time.Time) int64 {
	return t.Unix() / 60
}

// TimeFromMinutes converts minutes since the Unix epoch to a UTC time.
func TimeFromMinutes(m int64) time.Time {
	return time.Unix(m*60, 0).UTC()
}

// ParseInstant accepts either a raw integer or a TimeLayout timestamp (UTC).
func ParseInstant(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty time")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	t, err := time.ParseInLocation(TimeLayout, s, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: expected minutes or %s", s, TimeLayout)
	}
	return MinutesFromTime(t), nil
}

// FormatRange renders [start, end) as "02.01 15:04-16:00".
func FormatRange(start, end int64) string {
	s, e := TimeFromMinutes(start), TimeFromMinutes(end)
	if s.YearDay() == e.YearDay() && s.Year() == e.Year() {
		return s.Format("02.01 15:04") + "-" + e.Format("15:04")
	}
	return s.Format("02.01 15:04") + " - " + e.Format("02.01 15:04")
}
