// Package engine implements interval scheduling over per-user calendars:
// the insertion rule that keeps a calendar free of overlaps, and the sweep
// that intersects free time across several calendars.
//
// A calendar is a slice of domain.Event sorted ascending by End, ties broken
// by Start. Intervals are half-open, [Start, End). The package is pure: it
// performs no I/O, keeps no state between calls and never mutates its inputs.
package engine
