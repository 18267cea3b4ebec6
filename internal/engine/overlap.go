package engine

import (
	"sort"

	"github.com/tazhate/freebusy/internal/domain"
)

// Overlaps reports whether [s1, e1) and [s2, e2) share a point.
// Intervals that only touch at a boundary do not overlap.
func Overlaps(s1, e1, s2, e2 int64) bool {
	return s1 < e2 && s2 < e1
}

// EventsOverlap applies Overlaps to two events.
func EventsOverlap(a, b domain.Event) bool {
	return Overlaps(a.Start, a.End, b.Start, b.End)
}

// insertionPoint returns the first index whose End is >= end.
func insertionPoint(calendar []domain.Event, end int64) int {
	return sort.Search(len(calendar), func(i int) bool {
		return calendar[i].End >= end
	})
}

// Less orders events by End, then Start.
func Less(a, b domain.Event) bool {
	if a.End != b.End {
		return a.End < b.End
	}
	return a.Start < b.Start
}

// InsertSorted returns calendar with e placed at its (End, Start) position.
// The input slice is not modified.
func InsertSorted(calendar []domain.Event, e domain.Event) []domain.Event {
	i := sort.Search(len(calendar), func(i int) bool {
		return Less(e, calendar[i])
	})
	out := make([]domain.Event, 0, len(calendar)+1)
	out = append(out, calendar[:i]...)
	out = append(out, e)
	return append(out, calendar[i:]...)
}
