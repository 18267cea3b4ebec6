package engine

import (
	"container/heap"

	"github.com/tazhate/freebusy/internal/domain"
)

// cursor walks one calendar; events before pos ended at or before the sweep
// position and are never looked at again.
type cursor struct {
	events []domain.Event
	pos    int
}

func (c *cursor) front() domain.Event { return c.events[c.pos] }

func (c *cursor) done() bool { return c.pos >= len(c.events) }

// skip drops events with End <= at.
func (c *cursor) skip(at int64) {
	for c.pos < len(c.events) && c.events[c.pos].End <= at {
		c.pos++
	}
}

// frontQueue is a min-heap of cursor indices keyed by the Start of each
// cursor's front event.
type frontQueue struct {
	cursors []cursor
	order   []int
}

func (q *frontQueue) Len() int { return len(q.order) }

func (q *frontQueue) Less(i, j int) bool {
	return q.cursors[q.order[i]].front().Start < q.cursors[q.order[j]].front().Start
}

func (q *frontQueue) Swap(i, j int) { q.order[i], q.order[j] = q.order[j], q.order[i] }

func (q *frontQueue) Push(x any) { q.order = append(q.order, x.(int)) }

func (q *frontQueue) Pop() any {
	n := len(q.order)
	x := q.order[n-1]
	q.order = q.order[:n-1]
	return x
}

func (q *frontQueue) top() *cursor { return &q.cursors[q.order[0]] }

// IntersectFree returns the maximal free windows common to all calendars
// inside [windowStart, windowEnd), in time order. Each calendar must be
// sorted by (End, Start) and free of overlaps; calendars are otherwise
// independent. With no calendars the whole window is free. An empty or
// inverted window yields no windows.
func IntersectFree(calendars [][]domain.Event, windowStart, windowEnd int64) []domain.FreeWindow {
	var free []domain.FreeWindow
	if windowStart >= windowEnd {
		return free
	}

	q := &frontQueue{cursors: make([]cursor, len(calendars))}
	for i, events := range calendars {
		q.cursors[i] = cursor{events: events}
		q.cursors[i].skip(windowStart)
		if !q.cursors[i].done() {
			q.order = append(q.order, i)
		}
	}
	heap.Init(q)

	pointer := windowStart
	for pointer < windowEnd {
		if q.Len() == 0 {
			free = append(free, domain.FreeWindow{Start: pointer, End: windowEnd})
			break
		}

		c := q.top()
		front := c.front()
		switch {
		case front.End <= pointer:
			// Finished before the sweep position; catch the cursor up.
			c.skip(pointer)
			if c.done() {
				heap.Pop(q)
			} else {
				heap.Fix(q, 0)
			}
		case front.Start <= pointer:
			// Busy at pointer: jump to the end of the blocking event.
			pointer = front.End
		default:
			// The smallest front Start is after pointer, so nobody is busy here.
			end := min(front.Start, windowEnd)
			free = append(free, domain.FreeWindow{Start: pointer, End: end})
			pointer = end
		}
	}

	return free
}
