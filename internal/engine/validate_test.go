package engine

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/freebusy/internal/domain"
)

func ev(name string, start, end int64) domain.Event {
	return domain.Event{Owner: "cj", Name: name, Start: start, End: end}
}

func TestOverlaps(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name           string
		s1, e1, s2, e2 int64
		want           bool
	}{
		{name: "disjoint", s1: 0, e1: 5, s2: 6, e2: 9, want: false},
		{name: "touching", s1: 0, e1: 5, s2: 5, e2: 9, want: false},
		{name: "partial", s1: 0, e1: 6, s2: 5, e2: 9, want: true},
		{name: "contained", s1: 0, e1: 10, s2: 2, e2: 3, want: true},
		{name: "identical", s1: 2, e1: 4, s2: 2, e2: 4, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.s1, tt.e1, tt.s2, tt.e2))
			assert.Equal(t, tt.want, Overlaps(tt.s2, tt.e2, tt.s1, tt.e1))
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	a := ev("A", 0, 10)
	b := ev("B", 15, 20)
	calendar := []domain.Event{a, b}

	tests := []struct {
		name      string
		candidate domain.Event
		reason    Reason
		conflict  string
	}{
		{name: "fills gap exactly", candidate: ev("c", 10, 15)},
		{name: "inside gap", candidate: ev("c", 11, 14)},
		{name: "after last", candidate: ev("c", 20, 25)},
		{name: "before first", candidate: ev("c", -5, 0)},
		{name: "zero length in gap", candidate: ev("c", 12, 12)},
		{name: "overlaps both", candidate: ev("c", 9, 16), reason: OverlapsPrevious, conflict: "A"},
		{name: "overlaps next", candidate: ev("c", 12, 16), reason: OverlapsNext, conflict: "B"},
		{name: "inside first", candidate: ev("c", 5, 9), reason: OverlapsNext, conflict: "A"},
		{name: "covers everything", candidate: ev("c", -1, 30), reason: OverlapsPrevious, conflict: "B"},
		{name: "same end as first", candidate: ev("c", 5, 10), reason: OverlapsNext, conflict: "A"},
		{name: "zero length at end of first", candidate: ev("c", 10, 10), reason: OverlapsNext, conflict: "A"},
		{name: "inverted", candidate: ev("c", 9, 5), reason: InvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(calendar, tt.candidate)
			if tt.reason == 0 {
				assert.NoError(t, err)
				return
			}

			var rej *Rejection
			require.ErrorAs(t, err, &rej)
			assert.Equal(t, tt.reason, rej.Reason)
			assert.Equal(t, tt.candidate, rej.Candidate)
			if tt.conflict == "" {
				assert.Nil(t, rej.Conflict)
			} else {
				require.NotNil(t, rej.Conflict)
				assert.Equal(t, tt.conflict, rej.Conflict.Name)
			}
		})
	}
}

func TestValidateEmptyCalendar(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Validate(nil, ev("c", 0, 100)))

	var rej *Rejection
	require.ErrorAs(t, Validate(nil, ev("c", 3, 1)), &rej)
	assert.Equal(t, InvalidRange, rej.Reason)
}

func TestValidateTiesReportPreviousFirst(t *testing.T) {
	t.Parallel()
	calendar := []domain.Event{ev("A", 0, 4), ev("B", 6, 10)}

	// Ends together with B: B is the next neighbour, A the previous one.
	var rej *Rejection
	require.ErrorAs(t, Validate(calendar, ev("c", 2, 10)), &rej)
	assert.Equal(t, OverlapsPrevious, rej.Reason)
	assert.Equal(t, "A", rej.Conflict.Name)

	require.ErrorAs(t, Validate(calendar, ev("c", 5, 10)), &rej)
	assert.Equal(t, OverlapsNext, rej.Reason)
	assert.Equal(t, "B", rej.Conflict.Name)
}

func TestRejectionErrors(t *testing.T) {
	t.Parallel()
	calendar := []domain.Event{ev("A", 0, 10), ev("B", 15, 20)}

	err := Validate(calendar, ev("c", 9, 12))
	assert.ErrorIs(t, err, ErrOverlapsPrevious)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrOverlapsNext)
	assert.Equal(t, "event c starts at 9 before event A ends at 10", err.Error())

	err = Validate(calendar, ev("c", 12, 16))
	assert.ErrorIs(t, err, ErrOverlapsNext)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, "event c ends at 16 after event B starts at 15", err.Error())

	err = Validate(calendar, ev("c", 16, 12))
	assert.ErrorIs(t, err, ErrInvalidRange)
	assert.NotErrorIs(t, err, ErrConflict)

	wrapped := fmt.Errorf("add event: %w", err)
	assert.True(t, errors.Is(wrapped, ErrInvalidRange))
}

// randomCalendar builds a calendar by offering random positive-length events
// to Validate and keeping the accepted ones.
func randomCalendar(r *rand.Rand, offers int, span int64) []domain.Event {
	var calendar []domain.Event
	for i := 0; i < offers; i++ {
		start := r.Int64N(span)
		end := start + 1 + r.Int64N(span/8+1)
		candidate := ev(fmt.Sprintf("e%d", i), start, end)
		if Validate(calendar, candidate) == nil {
			calendar = InsertSorted(calendar, candidate)
		}
	}
	return calendar
}

func TestValidateKeepsCalendarConflictFree(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(7, 11))

	for round := 0; round < 50; round++ {
		calendar := randomCalendar(r, 60, 500)
		require.NotEmpty(t, calendar)
		for i := range calendar {
			if i > 0 {
				assert.False(t, Less(calendar[i], calendar[i-1]), "calendar not sorted at %d", i)
			}
			for j := i + 1; j < len(calendar); j++ {
				assert.False(t, EventsOverlap(calendar[i], calendar[j]),
					"%s overlaps %s", calendar[i].String(), calendar[j].String())
			}
		}
	}
}

func TestValidateNeighboursMatchFullScan(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(3, 5))

	for round := 0; round < 50; round++ {
		calendar := randomCalendar(r, 40, 400)
		for k := 0; k < 100; k++ {
			start := r.Int64N(420) - 10
			candidate := ev("probe", start, start+1+r.Int64N(60))

			conflict := false
			for _, existing := range calendar {
				if EventsOverlap(existing, candidate) {
					conflict = true
					break
				}
			}

			err := Validate(calendar, candidate)
			assert.Equal(t, conflict, err != nil, "candidate %s against %v", candidate.String(), calendar)
			if err != nil {
				var rej *Rejection
				require.ErrorAs(t, err, &rej)
				assert.True(t, EventsOverlap(*rej.Conflict, candidate))
			}
		}
	}
}

func TestInsertSorted(t *testing.T) {
	t.Parallel()
	calendar := []domain.Event{ev("A", 0, 4), ev("B", 6, 10)}

	out := InsertSorted(calendar, ev("C", 4, 6))
	require.Len(t, out, 3)
	assert.Equal(t, []string{"A", "C", "B"}, []string{out[0].Name, out[1].Name, out[2].Name})
	assert.Equal(t, "B", calendar[1].Name)

	out = InsertSorted(out, ev("D", 10, 10))
	assert.Equal(t, "D", out[3].Name)

	out = InsertSorted(nil, ev("E", 1, 2))
	assert.Len(t, out, 1)
}
