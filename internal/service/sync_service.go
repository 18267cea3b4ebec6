package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/tazhate/freebusy/internal/clients/caldav"
	"github.com/tazhate/freebusy/internal/domain"
	"github.com/tazhate/freebusy/internal/engine"
)

// BusySource lists remote events in a time range.
type BusySource interface {
	GetEvents(ctx context.Context, calendar string, from, to time.Time) ([]caldav.Event, error)
}

// UIDIndex tells whether a remote event was already imported.
type UIDIndex interface {
	EventUIDExists(username, uid string) (bool, error)
}

type SyncResult struct {
	Fetched   int `json:"fetched"`
	Added     int `json:"added"`
	Skipped   int `json:"skipped"` // already imported
	Conflicts int `json:"conflicts"`
	Invalid   int `json:"invalid"`
}

func (r *SyncResult) String() string {
	return fmt.Sprintf("fetched %d, added %d, skipped %d, conflicts %d, invalid %d",
		r.Fetched, r.Added, r.Skipped, r.Conflicts, r.Invalid)
}

// SyncService imports remote calendar events into a local user's calendar.
// Only events the overlap validator accepts are stored. A nil source leaves
// ICS import available and disables Sync.
type SyncService struct {
	source   BusySource
	calendar *CalendarService
	uids     UIDIndex
	owner    string
	path     string
	days     int
	log      zerolog.Logger
}

func NewSyncService(source BusySource, calendar *CalendarService, uids UIDIndex, owner, calendarPath string, days int, log zerolog.Logger) *SyncService {
	return &SyncService{
		source:   source,
		calendar: calendar,
		uids:     uids,
		owner:    owner,
		path:     calendarPath,
		days:     days,
		log:      log.With().Str("component", "sync").Logger(),
	}
}

var ErrNoSource = errors.New("caldav sync is not configured")

// Enabled reports whether a remote source is attached.
func (s *SyncService) Enabled() bool {
	return s.source != nil
}

// Sync pulls events from now until now+days and imports the new ones.
func (s *SyncService) Sync(ctx context.Context, now time.Time) (*SyncResult, error) {
	if s.source == nil {
		return nil, ErrNoSource
	}
	to := now.AddDate(0, 0, s.days)
	remote, err := s.source.GetEvents(ctx, s.path, now, to)
	if err != nil {
		return nil, fmt.Errorf("fetch remote events: %w", err)
	}

	result, err := s.importEvents(s.owner, remote)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("user", s.owner).Str("result", result.String()).Msg("sync finished")
	return result, nil
}

// ImportICS imports the VEVENTs of an iCalendar stream into owner's calendar.
func (s *SyncService) ImportICS(owner string, r io.Reader) (*SyncResult, error) {
	events, err := caldav.DecodeEvents(r)
	if err != nil {
		return nil, err
	}
	return s.importEvents(owner, events)
}

func (s *SyncService) importEvents(owner string, remote []caldav.Event) (*SyncResult, error) {
	result := &SyncResult{Fetched: len(remote)}

	var fresh []domain.Event
	seen := make(map[string]bool)
	for _, re := range remote {
		if re.UID != "" {
			if seen[re.UID] {
				result.Skipped++
				continue
			}
			seen[re.UID] = true

			exists, err := s.uids.EventUIDExists(owner, re.UID)
			if err != nil {
				return nil, fmt.Errorf("check uid: %w", err)
			}
			if exists {
				result.Skipped++
				continue
			}
		}

		e, err := FromRemote(re)
		if err != nil {
			s.log.Warn().Err(err).Str("uid", re.UID).Msg("skipping remote event")
			result.Invalid++
			continue
		}
		fresh = append(fresh, e)
	}

	imported, err := s.calendar.Import(owner, fresh)
	if err != nil {
		return nil, err
	}

	result.Added = len(imported.Added)
	for _, rej := range imported.Rejected {
		if errors.Is(rej, engine.ErrConflict) {
			result.Conflicts++
			s.log.Debug().Err(rej).Msg("remote event conflicts")
		} else {
			result.Invalid++
		}
	}
	return result, nil
}

// FromRemote converts a CalDAV event to a local one. All-day events without
// DTEND last one day.
func FromRemote(re caldav.Event) (domain.Event, error) {
	end := re.EndTime
	if end.IsZero() {
		if re.AllDay {
			end = re.StartTime.AddDate(0, 0, 1)
		} else {
			end = re.StartTime
		}
	}

	days, err := caldav.WeekdaysFromRRule(re.RRule)
	if err != nil {
		return domain.Event{}, err
	}

	name := re.Summary
	if name == "" {
		name = "busy"
	}

	return domain.Event{
		Name:  name,
		Start: domain.MinutesFromTime(re.StartTime),
		End:   domain.MinutesFromTime(end),
		Days:  domain.MaskFromWeekdays(days),
		UID:   re.UID,
	}, nil
}

// ToRemote converts a local event for iCalendar export.
func ToRemote(e domain.Event) caldav.Event {
	return caldav.Event{
		UID:       e.UID,
		Summary:   e.Name,
		StartTime: domain.TimeFromMinutes(e.Start),
		EndTime:   domain.TimeFromMinutes(e.End),
		RRule:     caldav.WeeklyRRule(e.Days.Weekdays()),
	}
}

// ExportEvents writes a user's calendar as iCalendar.
func (s *CalendarService) ExportEvents(w io.Writer, username string) error {
	events, err := s.ListEvents(username)
	if err != nil {
		return err
	}
	remote := make([]caldav.Event, 0, len(events))
	for _, e := range events {
		remote = append(remote, ToRemote(e))
	}
	return caldav.EncodeEvents(w, remote)
}

// ExportFreeBusy writes the users' common free time as a VFREEBUSY.
func (s *CalendarService) ExportFreeBusy(w io.Writer, users []string, rangeStart, rangeEnd int64) error {
	free, err := s.ComputeFreeTime(users, rangeStart, rangeEnd)
	if err != nil {
		return err
	}
	periods := make([]caldav.Period, 0, len(free))
	for _, f := range free {
		periods = append(periods, caldav.Period{
			Start: domain.TimeFromMinutes(f.Start),
			End:   domain.TimeFromMinutes(f.End),
		})
	}
	return caldav.EncodeFreeBusy(w, users, domain.TimeFromMinutes(rangeStart), domain.TimeFromMinutes(rangeEnd), periods)
}
