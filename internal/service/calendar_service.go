package service

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tazhate/freebusy/internal/domain"
	"github.com/tazhate/freebusy/internal/engine"
)

var (
	ErrInvalidQuery  = errors.New("query range starts after it ends")
	ErrRangeTooLarge = errors.New("query range too large")
	ErrEmptyName     = errors.New("event name cannot be empty")
)

// EventSource yields a user's events sorted by (end, start), or
// domain.ErrUnknownUser.
type EventSource interface {
	SortedEvents(username string) ([]domain.Event, error)
}

// EventStore is the storage the calendar service works against.
type EventStore interface {
	EventSource
	CreateEvent(e *domain.Event) error
	GetEvent(id int64) (*domain.Event, error)
	DeleteEvent(id int64) error
	ListFriends(username string) ([]string, error)
}

// CalendarService validates and stores events and answers free-time queries.
type CalendarService struct {
	store   EventStore
	maxSpan int64 // 0 = unbounded
	log     zerolog.Logger

	// Serialises validate+insert so two writers in this process cannot both
	// pass validation against the same snapshot.
	mu sync.Mutex
}

func NewCalendarService(store EventStore, maxSpan int64, log zerolog.Logger) *CalendarService {
	return &CalendarService{
		store:   store,
		maxSpan: maxSpan,
		log:     log.With().Str("component", "calendar").Logger(),
	}
}

// ValidateInsertion checks candidate against its owner's current calendar.
// It returns nil if the event may be added, a *engine.Rejection if not, and
// the storage error (e.g. domain.ErrUnknownUser) if the calendar cannot be read.
func (s *CalendarService) ValidateInsertion(candidate domain.Event) error {
	existing, err := s.store.SortedEvents(candidate.Owner)
	if err != nil {
		return err
	}
	return engine.Validate(existing, candidate)
}

// AddEvent validates e and stores it on success. e.ID is set.
func (s *CalendarService) AddEvent(e *domain.Event) error {
	e.Name = strings.TrimSpace(e.Name)
	if e.Name == "" {
		return ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ValidateInsertion(*e); err != nil {
		var rej *engine.Rejection
		if errors.As(err, &rej) {
			s.log.Debug().Str("user", e.Owner).Str("reason", rej.Reason.String()).Msg("event rejected")
		}
		return err
	}

	if err := s.store.CreateEvent(e); err != nil {
		return fmt.Errorf("create event: %w", err)
	}

	s.log.Info().Str("user", e.Owner).Int64("event_id", e.ID).Int64("start", e.Start).Int64("end", e.End).Msg("event added")
	return nil
}

// ImportResult summarises a batch import.
type ImportResult struct {
	Added    []domain.Event
	Rejected []error
}

// Import offers events to owner's calendar one by one against a single
// snapshot, storing those that validate. A rejected event does not stop
// the batch; a storage failure does.
func (s *CalendarService) Import(owner string, events []domain.Event) (*ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	calendar, err := s.store.SortedEvents(owner)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	for _, e := range events {
		e.Owner = owner
		if err := engine.Validate(calendar, e); err != nil {
			result.Rejected = append(result.Rejected, err)
			continue
		}
		if err := s.store.CreateEvent(&e); err != nil {
			return result, fmt.Errorf("create event %s: %w", e.Name, err)
		}
		calendar = engine.InsertSorted(calendar, e)
		result.Added = append(result.Added, e)
	}

	s.log.Info().Str("user", owner).Int("added", len(result.Added)).Int("rejected", len(result.Rejected)).Msg("import finished")
	return result, nil
}

// ListEvents returns the user's calendar.
func (s *CalendarService) ListEvents(username string) ([]domain.Event, error) {
	return s.store.SortedEvents(username)
}

// DeleteEvent removes one of username's events.
func (s *CalendarService) DeleteEvent(username string, eventID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.store.GetEvent(eventID)
	if err != nil {
		return fmt.Errorf("get event: %w", err)
	}
	if e == nil || e.Owner != username {
		return domain.ErrEventNotFound
	}
	return s.store.DeleteEvent(eventID)
}

// ComputeFreeTime returns the free windows shared by all users within
// [rangeStart, rangeEnd). Duplicate names are queried once.
func (s *CalendarService) ComputeFreeTime(users []string, rangeStart, rangeEnd int64) ([]domain.FreeWindow, error) {
	if rangeStart > rangeEnd {
		return nil, ErrInvalidQuery
	}
	if s.maxSpan > 0 && rangeEnd-rangeStart > s.maxSpan {
		return nil, fmt.Errorf("%w: %d > %d", ErrRangeTooLarge, rangeEnd-rangeStart, s.maxSpan)
	}

	seen := make(map[string]bool, len(users))
	calendars := make([][]domain.Event, 0, len(users))
	for _, u := range users {
		if seen[u] {
			continue
		}
		seen[u] = true

		events, err := s.store.SortedEvents(u)
		if err != nil {
			return nil, err
		}
		calendars = append(calendars, events)
	}

	free := engine.IntersectFree(calendars, rangeStart, rangeEnd)
	s.log.Debug().Strs("users", users).Int64("from", rangeStart).Int64("to", rangeEnd).Int("windows", len(free)).Msg("free time computed")
	return free, nil
}

// ComputeFreeTimeWithFriends queries username together with everyone in
// their friend list.
func (s *CalendarService) ComputeFreeTimeWithFriends(username string, rangeStart, rangeEnd int64) ([]domain.FreeWindow, []string, error) {
	friends, err := s.store.ListFriends(username)
	if err != nil {
		return nil, nil, err
	}
	users := append([]string{username}, friends...)
	free, err := s.ComputeFreeTime(users, rangeStart, rangeEnd)
	return free, users, err
}

// FormatEventList formats events for display
func (s *CalendarService) FormatEventList(events []domain.Event) string {
	if len(events) == 0 {
		return "No events"
	}

	var sb strings.Builder
	for _, e := range events {
		line := fmt.Sprintf("#%d %s  %s", e.ID, e.FormatTime(), e.Name)
		if !e.Days.Empty() {
			line += " (" + e.Days.String() + ")"
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

// FormatFreeWindows formats free windows for display
func (s *CalendarService) FormatFreeWindows(windows []domain.FreeWindow) string {
	if len(windows) == 0 {
		return "No common free time"
	}

	var sb strings.Builder
	for _, w := range windows {
		sb.WriteString(fmt.Sprintf("• %s (%d min)\n", w.FormatTime(), w.Duration()))
	}
	return sb.String()
}
