package engine

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/freebusy/internal/domain"
)

func win(start, end int64) domain.FreeWindow {
	return domain.FreeWindow{Start: start, End: end}
}

func TestIntersectFree(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		calendars  [][]domain.Event
		start, end int64
		want       []domain.FreeWindow
	}{
		{
			name:      "two users overlapping busy",
			calendars: [][]domain.Event{{ev("a", 0, 5)}, {ev("b", 3, 8)}},
			start:     0, end: 10,
			want: []domain.FreeWindow{win(8, 10)},
		},
		{
			name:      "one user without events",
			calendars: [][]domain.Event{nil},
			start:     0, end: 30,
			want: []domain.FreeWindow{win(0, 30)},
		},
		{
			name:      "no calendars",
			calendars: nil,
			start:     5, end: 7,
			want: []domain.FreeWindow{win(5, 7)},
		},
		{
			name: "everyone busy the whole window",
			calendars: [][]domain.Event{
				{ev("a", 0, 30)},
				{ev("b", -10, 40)},
				{ev("c", 0, 15), ev("d", 15, 30)},
			},
			start: 0, end: 30,
			want: nil,
		},
		{
			name:      "empty window",
			calendars: [][]domain.Event{{ev("a", 0, 5)}},
			start:     3, end: 3,
			want: nil,
		},
		{
			name:      "inverted window",
			calendars: nil,
			start:     9, end: 3,
			want: nil,
		},
		{
			name:      "gaps inside window",
			calendars: [][]domain.Event{{ev("a", 2, 4), ev("b", 6, 7)}, {ev("c", 10, 12)}},
			start:     0, end: 15,
			want: []domain.FreeWindow{win(0, 2), win(4, 6), win(7, 10), win(12, 15)},
		},
		{
			name:      "touching events in different calendars",
			calendars: [][]domain.Event{{ev("a", 0, 5)}, {ev("b", 5, 8)}},
			start:     0, end: 10,
			want: []domain.FreeWindow{win(8, 10)},
		},
		{
			name:      "event straddles window start",
			calendars: [][]domain.Event{{ev("a", -20, 4), ev("b", 20, 25)}},
			start:     0, end: 10,
			want: []domain.FreeWindow{win(4, 10)},
		},
		{
			name:      "event straddles window end",
			calendars: [][]domain.Event{{ev("a", 8, 40)}},
			start:     0, end: 10,
			want: []domain.FreeWindow{win(0, 8)},
		},
		{
			name:      "events entirely outside window",
			calendars: [][]domain.Event{{ev("a", -9, -1), ev("b", 50, 60)}, {ev("c", 10, 20)}},
			start:     0, end: 10,
			want: []domain.FreeWindow{win(0, 10)},
		},
		{
			name:      "chain of busy spans hands over between calendars",
			calendars: [][]domain.Event{{ev("a", 0, 3), ev("b", 6, 9)}, {ev("c", 2, 7)}, {ev("d", 8, 11)}},
			start:     0, end: 14,
			want: []domain.FreeWindow{win(11, 14)},
		},
		{
			name:      "zero length event splits the window",
			calendars: [][]domain.Event{{ev("z", 5, 5)}},
			start:     0, end: 10,
			want: []domain.FreeWindow{win(0, 5), win(5, 10)},
		},
		{
			name:      "zero length event at window start",
			calendars: [][]domain.Event{{ev("z", 0, 0)}},
			start:     0, end: 10,
			want: []domain.FreeWindow{win(0, 10)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IntersectFree(tt.calendars, tt.start, tt.end)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIntersectFreeDoesNotMutateInput(t *testing.T) {
	t.Parallel()
	calendars := [][]domain.Event{{ev("a", 0, 5), ev("b", 7, 9)}, {ev("c", 3, 8)}}
	before := [][]domain.Event{
		append([]domain.Event(nil), calendars[0]...),
		append([]domain.Event(nil), calendars[1]...),
	}

	IntersectFree(calendars, 0, 20)
	assert.Equal(t, before, calendars)
}

// referenceFree is the direct cursor-rescan formulation: drop finished
// events, jump to the smallest end among busy fronts, otherwise emit up to
// the smallest front start.
func referenceFree(calendars [][]domain.Event, windowStart, windowEnd int64) []domain.FreeWindow {
	lists := make([][]domain.Event, len(calendars))
	copy(lists, calendars)

	var free []domain.FreeWindow
	pointer := windowStart
	for pointer < windowEnd {
		for i := range lists {
			for len(lists[i]) > 0 && lists[i][0].End <= pointer {
				lists[i] = lists[i][1:]
			}
		}

		busy := false
		minEnd := int64(math.MaxInt64)
		for _, l := range lists {
			if len(l) > 0 && l[0].Start <= pointer {
				busy = true
				minEnd = min(minEnd, l[0].End)
			}
		}
		if busy {
			pointer = minEnd
			continue
		}

		next := windowEnd
		for _, l := range lists {
			if len(l) > 0 {
				next = min(next, l[0].Start)
			}
		}
		free = append(free, domain.FreeWindow{Start: pointer, End: next})
		pointer = next
	}
	return free
}

func TestIntersectFreeMatchesReference(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(42, 99))

	for round := 0; round < 200; round++ {
		k := r.IntN(6)
		calendars := make([][]domain.Event, k)
		for i := range calendars {
			calendars[i] = randomCalendar(r, r.IntN(30), 300)
		}
		start := r.Int64N(200) - 20
		end := start + r.Int64N(200)

		want := referenceFree(calendars, start, end)
		got := IntersectFree(calendars, start, end)
		require.Equal(t, want, got, "round %d window [%d,%d)", round, start, end)
	}
}

func TestIntersectFreePartitionsWindow(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(1, 2))

	for round := 0; round < 100; round++ {
		calendars := make([][]domain.Event, 1+r.IntN(4))
		for i := range calendars {
			calendars[i] = randomCalendar(r, 25, 200)
		}
		start := r.Int64N(100)
		end := start + 1 + r.Int64N(150)

		windows := IntersectFree(calendars, start, end)

		busyAt := func(point int64) bool {
			for _, calendar := range calendars {
				for _, e := range calendar {
					if e.Start <= point && point < e.End {
						return true
					}
				}
			}
			return false
		}
		inWindow := func(point int64) bool {
			for _, w := range windows {
				if w.Start <= point && point < w.End {
					return true
				}
			}
			return false
		}

		for i, w := range windows {
			require.Less(t, w.Start, w.End)
			require.GreaterOrEqual(t, w.Start, start)
			require.LessOrEqual(t, w.End, end)
			if i > 0 {
				// Maximal: consecutive windows are separated by a busy span.
				require.Less(t, windows[i-1].End, w.Start)
				require.True(t, busyAt(windows[i-1].End))
			}
		}
		for point := start; point < end; point++ {
			require.NotEqual(t, busyAt(point), inWindow(point), "point %d", point)
		}
	}
}
