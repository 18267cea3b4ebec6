package service

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/freebusy/internal/domain"
	"github.com/tazhate/freebusy/internal/storage"
)

type fixture struct {
	store    *storage.Storage
	users    *UserService
	calendar *CalendarService
}

func newFixture(t *testing.T, maxSpan int64) *fixture {
	t.Helper()
	s, err := storage.New(filepath.Join(t.TempDir(), "schedule.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	log := zerolog.Nop()
	return &fixture{
		store:    s,
		users:    NewUserService(s, log),
		calendar: NewCalendarService(s, maxSpan, log),
	}
}

func (f *fixture) user(t *testing.T, name string) {
	t.Helper()
	_, err := f.users.AddUser(name, "pw-"+name)
	require.NoError(t, err)
}

func (f *fixture) event(t *testing.T, owner, name string, start, end int64) domain.Event {
	t.Helper()
	e := domain.Event{Owner: owner, Name: name, Start: start, End: end}
	require.NoError(t, f.calendar.AddEvent(&e))
	return e
}
