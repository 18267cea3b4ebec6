package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/freebusy/internal/clients/caldav"
	"github.com/tazhate/freebusy/internal/domain"
)

type fakeSource struct {
	events   []caldav.Event
	err      error
	from, to time.Time
}

func (f *fakeSource) GetEvents(_ context.Context, _ string, from, to time.Time) ([]caldav.Event, error) {
	f.from, f.to = from, to
	return f.events, f.err
}

func TestSync(t *testing.T) {
	f := newFixture(t, 0)
	f.user(t, "alice")

	now := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return now.Add(time.Duration(h-8)*time.Hour + time.Duration(m)*time.Minute) }

	f.event(t, "alice", "local", domain.MinutesFromTime(at(12, 0)), domain.MinutesFromTime(at(13, 0)))

	src := &fakeSource{events: []caldav.Event{
		{UID: "1", Summary: "standup", StartTime: at(9, 0), EndTime: at(9, 15), RRule: "FREQ=WEEKLY;BYDAY=MO,TU"},
		{UID: "2", Summary: "lunch clash", StartTime: at(12, 30), EndTime: at(13, 30)},
		{UID: "3", Summary: "review", StartTime: at(15, 0), EndTime: at(16, 0)},
		{UID: "3", Summary: "review", StartTime: at(15, 0), EndTime: at(16, 0)},
		{UID: "4", Summary: "bad rule", StartTime: at(17, 0), EndTime: at(18, 0), RRule: "FREQ=WEEKLY;BYDAY=XX"},
	}}
	svc := NewSyncService(src, f.calendar, f.store, "alice", "/cal", 7, zerolog.Nop())

	res, err := svc.Sync(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, now, src.from)
	assert.Equal(t, now.AddDate(0, 0, 7), src.to)
	assert.Equal(t, &SyncResult{Fetched: 5, Added: 2, Skipped: 1, Conflicts: 1, Invalid: 1}, res)

	events, err := f.calendar.ListEvents("alice")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "standup", events[0].Name)
	assert.Equal(t, domain.Monday|domain.Tuesday, events[0].Days)
	assert.Equal(t, "1", events[0].UID)

	// Second run: imported UIDs are skipped, the clash is retried and rejected again.
	res, err = svc.Sync(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Added)
	assert.Equal(t, 3, res.Skipped)
	assert.Equal(t, 1, res.Conflicts)
}

func TestSyncSourceError(t *testing.T) {
	f := newFixture(t, 0)
	f.user(t, "alice")
	src := &fakeSource{err: errors.New("boom")}
	svc := NewSyncService(src, f.calendar, f.store, "alice", "", 7, zerolog.Nop())

	_, err := svc.Sync(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestSyncUnknownOwner(t *testing.T) {
	f := newFixture(t, 0)
	src := &fakeSource{events: []caldav.Event{{Summary: "x", StartTime: time.Unix(0, 0), EndTime: time.Unix(600, 0)}}}
	svc := NewSyncService(src, f.calendar, f.store, "ghost", "", 7, zerolog.Nop())

	_, err := svc.Sync(context.Background(), time.Now())
	assert.ErrorIs(t, err, domain.ErrUnknownUser)
}

func TestImportICS(t *testing.T) {
	f := newFixture(t, 0)
	f.user(t, "alice")
	svc := NewSyncService(&fakeSource{}, f.calendar, f.store, "alice", "", 7, zerolog.Nop())

	ics := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:a@test",
		"DTSTAMP:20250101T000000Z",
		"DTSTART:20250303T090000Z",
		"DTEND:20250303T100000Z",
		"SUMMARY:planning",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:b@test",
		"DTSTAMP:20250101T000000Z",
		"DTSTART:20250303T093000Z",
		"DTEND:20250303T103000Z",
		"SUMMARY:overlapping",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")

	res, err := svc.ImportICS("alice", strings.NewReader(ics))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)
	assert.Equal(t, 1, res.Conflicts)
}

func TestFromRemote(t *testing.T) {
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

	e, err := FromRemote(caldav.Event{UID: "d", StartTime: start, AllDay: true})
	require.NoError(t, err)
	assert.Equal(t, "busy", e.Name)
	assert.Equal(t, int64(24*60), e.End-e.Start)

	e, err = FromRemote(caldav.Event{Summary: "ping", StartTime: start})
	require.NoError(t, err)
	assert.Equal(t, e.Start, e.End)

	back := ToRemote(domain.Event{Name: "gym", Start: e.Start, End: e.Start + 60, Days: domain.Saturday})
	assert.Equal(t, "gym", back.Summary)
	assert.Equal(t, start, back.StartTime)
	assert.Contains(t, back.RRule, "BYDAY=SA")
}

func TestSyncWithoutSource(t *testing.T) {
	f := newFixture(t, 0)
	svc := NewSyncService(nil, f.calendar, f.store, "alice", "", 7, zerolog.Nop())
	assert.False(t, svc.Enabled())
	_, err := svc.Sync(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrNoSource)
}
