package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/freebusy/internal/domain"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "data", "schedule.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustUser(t *testing.T, s *Storage, name string) *domain.User {
	t.Helper()
	u := &domain.User{Username: name, Password: "secret"}
	require.NoError(t, s.CreateUser(u))
	return u
}

func TestMigrateIsRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schedule.db")
	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestUsers(t *testing.T) {
	s := newTestStorage(t)

	cj := mustUser(t, s, "cj")
	assert.NotZero(t, cj.ID)

	err := s.CreateUser(&domain.User{Username: "cj"})
	assert.ErrorIs(t, err, domain.ErrUserExists)

	got, err := s.GetUserByName("cj")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cj.ID, got.ID)
	assert.Nil(t, got.TelegramID)

	missing, err := s.GetUserByName("nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	mustUser(t, s, "stef")
	users, err := s.ListUsers()
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "stef", users[1].Username)
}

func TestLinkTelegram(t *testing.T) {
	s := newTestStorage(t)
	mustUser(t, s, "cj")
	mustUser(t, s, "stef")

	require.NoError(t, s.LinkTelegram("cj", 1001))
	u, err := s.GetUserByTelegramID(1001)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "cj", u.Username)

	// Relinking moves the account.
	require.NoError(t, s.LinkTelegram("stef", 1001))
	u, err = s.GetUserByTelegramID(1001)
	require.NoError(t, err)
	assert.Equal(t, "stef", u.Username)

	assert.ErrorIs(t, s.LinkTelegram("nobody", 5), domain.ErrUnknownUser)
}

func TestSortedEvents(t *testing.T) {
	s := newTestStorage(t)
	mustUser(t, s, "cj")

	for _, e := range []domain.Event{
		{Owner: "cj", Name: "late", Start: 20, End: 30},
		{Owner: "cj", Name: "early", Start: 0, End: 10, Days: domain.Monday | domain.Friday},
		{Owner: "cj", Name: "point", Start: 10, End: 10},
	} {
		e := e
		require.NoError(t, s.CreateEvent(&e))
		assert.NotZero(t, e.ID)
	}

	events, err := s.SortedEvents("cj")
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "early", events[0].Name)
	assert.Equal(t, "point", events[1].Name)
	assert.Equal(t, "late", events[2].Name)
	assert.Equal(t, domain.Monday|domain.Friday, events[0].Days)
	assert.True(t, events[2].Days.Empty())
	assert.Equal(t, "cj", events[0].Owner)

	_, err = s.SortedEvents("nobody")
	assert.ErrorIs(t, err, domain.ErrUnknownUser)
}

func TestSortedEventsTieBreak(t *testing.T) {
	s := newTestStorage(t)
	mustUser(t, s, "cj")

	require.NoError(t, s.CreateEvent(&domain.Event{Owner: "cj", Name: "b", Start: 5, End: 5}))
	require.NoError(t, s.CreateEvent(&domain.Event{Owner: "cj", Name: "a", Start: 3, End: 5}))

	events, err := s.SortedEvents("cj")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Name)
	assert.Equal(t, "b", events[1].Name)
}

func TestCreateEventRejectsBadInput(t *testing.T) {
	s := newTestStorage(t)
	mustUser(t, s, "cj")

	assert.Error(t, s.CreateEvent(&domain.Event{Owner: "cj", Name: "x", Start: 5, End: 1}))
	assert.ErrorIs(t, s.CreateEvent(&domain.Event{Owner: "nobody", Name: "x", Start: 1, End: 5}), domain.ErrUnknownUser)

	events, err := s.SortedEvents("cj")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestGetAndDeleteEvent(t *testing.T) {
	s := newTestStorage(t)
	mustUser(t, s, "cj")

	e := &domain.Event{Owner: "cj", Name: "gym", Start: 1, End: 2, Days: domain.Sunday, UID: "abc@remote"}
	require.NoError(t, s.CreateEvent(e))

	got, err := s.GetEvent(e.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "gym", got.Name)
	assert.Equal(t, domain.Sunday, got.Days)
	assert.Equal(t, "abc@remote", got.UID)

	exists, err := s.EventUIDExists("cj", "abc@remote")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, s.DeleteEvent(e.ID))
	got, err = s.GetEvent(e.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, s.DeleteEvent(e.ID), domain.ErrEventNotFound)
}

func TestFriends(t *testing.T) {
	s := newTestStorage(t)
	mustUser(t, s, "cj")
	mustUser(t, s, "stef")
	mustUser(t, s, "alex")

	require.NoError(t, s.AddFriend("cj", "stef"))
	require.NoError(t, s.AddFriend("cj", "alex"))
	assert.ErrorIs(t, s.AddFriend("cj", "stef"), domain.ErrAlreadyFriends)
	assert.ErrorIs(t, s.AddFriend("cj", "nobody"), domain.ErrUnknownUser)

	friends, err := s.ListFriends("cj")
	require.NoError(t, err)
	assert.Equal(t, []string{"alex", "stef"}, friends)

	// Friendship is directed.
	friends, err = s.ListFriends("stef")
	require.NoError(t, err)
	assert.Empty(t, friends)

	_, err = s.ListFriends("nobody")
	assert.ErrorIs(t, err, domain.ErrUnknownUser)
}
