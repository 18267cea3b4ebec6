package engine

import (
	"errors"
	"fmt"

	"github.com/tazhate/freebusy/internal/domain"
)

// Reason classifies why a candidate event was rejected.
type Reason int

const (
	InvalidRange Reason = iota + 1
	OverlapsPrevious
	OverlapsNext
)

func (r Reason) String() string {
	switch r {
	case InvalidRange:
		return "invalid_range"
	case OverlapsPrevious:
		return "overlaps_previous"
	case OverlapsNext:
		return "overlaps_next"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

var (
	ErrInvalidRange     = errors.New("event starts after it ends")
	ErrOverlapsPrevious = errors.New("event starts before the previous event ends")
	ErrOverlapsNext     = errors.New("event ends after the next event starts")

	// ErrConflict matches both overlap reasons.
	ErrConflict = errors.New("event conflicts with an existing event")
)

// Rejection is returned by Validate when the candidate cannot be inserted.
type Rejection struct {
	Reason    Reason
	Candidate domain.Event
	Conflict  *domain.Event // nil for InvalidRange
}

func (r *Rejection) Error() string {
	c := r.Candidate
	switch r.Reason {
	case InvalidRange:
		return fmt.Sprintf("event %s has start time %d which is after end time %d", c.Name, c.Start, c.End)
	case OverlapsPrevious:
		return fmt.Sprintf("event %s starts at %d before event %s ends at %d", c.Name, c.Start, r.Conflict.Name, r.Conflict.End)
	case OverlapsNext:
		return fmt.Sprintf("event %s ends at %d after event %s starts at %d", c.Name, c.End, r.Conflict.Name, r.Conflict.Start)
	default:
		return "event rejected: " + r.Reason.String()
	}
}

func (r *Rejection) Unwrap() error {
	switch r.Reason {
	case InvalidRange:
		return ErrInvalidRange
	case OverlapsPrevious:
		return ErrOverlapsPrevious
	case OverlapsNext:
		return ErrOverlapsNext
	}
	return nil
}

func (r *Rejection) Is(target error) bool {
	return target == ErrConflict && r.Conflict != nil
}

// Validate decides whether candidate may be added to calendar, which must be
// sorted by (End, Start) and free of overlaps. It returns nil to accept and a
// *Rejection otherwise.
//
// Only the two neighbours around the candidate's End position are examined:
// in an overlap-free calendar nothing further away can intersect it. When both
// neighbours conflict the previous one is reported.
func Validate(calendar []domain.Event, candidate domain.Event) error {
	if !candidate.Valid() {
		return &Rejection{Reason: InvalidRange, Candidate: candidate}
	}

	p := insertionPoint(calendar, candidate.End)

	if p > 0 {
		prev := calendar[p-1]
		if candidate.Start < prev.End {
			return &Rejection{Reason: OverlapsPrevious, Candidate: candidate, Conflict: &prev}
		}
	}

	if p < len(calendar) {
		next := calendar[p]
		if candidate.End > next.Start {
			return &Rejection{Reason: OverlapsNext, Candidate: candidate, Conflict: &next}
		}
	}

	return nil
}
