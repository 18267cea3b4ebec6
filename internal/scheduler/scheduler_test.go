package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tazhate/freebusy/config"
	"github.com/tazhate/freebusy/internal/clients/caldav"
	"github.com/tazhate/freebusy/internal/domain"
	"github.com/tazhate/freebusy/internal/service"
	"github.com/tazhate/freebusy/internal/storage"
)

type sentMessage struct {
	chatID int64
	text   string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentMessage
	fail bool
}

func (r *recordingSender) SendMessage(chatID int64, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("telegram down")
	}
	r.sent = append(r.sent, sentMessage{chatID, text})
	return nil
}

type staticSource []caldav.Event

func (s staticSource) GetEvents(context.Context, string, time.Time, time.Time) ([]caldav.Event, error) {
	return s, nil
}

var today = time.Date(2025, 3, 3, 7, 30, 0, 0, time.UTC)

func at(h, m int) int64 {
	return domain.MinutesFromTime(time.Date(2025, 3, 3, h, m, 0, 0, time.UTC))
}

func setup(t *testing.T, src service.BusySource) (*Scheduler, *service.UserService, *service.CalendarService) {
	t.Helper()
	st, err := storage.New(filepath.Join(t.TempDir(), "schedule.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	log := zerolog.Nop()
	users := service.NewUserService(st, log)
	calendar := service.NewCalendarService(st, 0, log)

	var syncSvc *service.SyncService
	if src != nil {
		syncSvc = service.NewSyncService(src, calendar, st, "alice", "", 7, log)
	}

	cfg := &config.Config{
		SyncSchedule:   "*/30 * * * *",
		DigestSchedule: "0 8 * * *",
		DigestFrom:     "09:00",
		DigestTo:       "18:00",
	}
	s := New(cfg, log, users, calendar, syncSvc)
	s.now = func() time.Time { return today }

	for _, name := range []string{"alice", "bob"} {
		_, err := users.AddUser(name, "pw")
		require.NoError(t, err)
	}
	return s, users, calendar
}

func TestSendDigests(t *testing.T) {
	s, users, calendar := setup(t, nil)
	_, err := users.LinkTelegram("alice", "pw", 100)
	require.NoError(t, err)
	require.NoError(t, users.AddFriend("alice", "bob"))

	require.NoError(t, calendar.AddEvent(&domain.Event{Owner: "alice", Name: "standup", Start: at(9, 0), End: at(9, 30)}))
	require.NoError(t, calendar.AddEvent(&domain.Event{Owner: "bob", Name: "lunch", Start: at(12, 0), End: at(13, 0)}))

	sender := &recordingSender{}
	s.SetSender(sender)
	require.NoError(t, s.SendDigests())

	require.Len(t, sender.sent, 1, "only linked users get a digest")
	msg := sender.sent[0]
	assert.Equal(t, int64(100), msg.chatID)
	assert.Contains(t, msg.text, "with bob")
	assert.Contains(t, msg.text, domain.FormatRange(at(9, 30), at(12, 0)))
	assert.Contains(t, msg.text, domain.FormatRange(at(13, 0), at(18, 0)))
}

func TestSendDigestsWithoutSender(t *testing.T) {
	s, _, _ := setup(t, nil)
	assert.NoError(t, s.SendDigests())
}

func TestSendDigestsSurvivesSendErrors(t *testing.T) {
	s, users, _ := setup(t, nil)
	_, err := users.LinkTelegram("alice", "pw", 100)
	require.NoError(t, err)
	s.SetSender(&recordingSender{fail: true})
	assert.NoError(t, s.SendDigests())
}

func TestSync(t *testing.T) {
	s, _, calendar := setup(t, nil)
	res, err := s.Sync()
	require.NoError(t, err)
	assert.Zero(t, res.Added)

	start := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	s, _, calendar = setup(t, staticSource{{UID: "x", Summary: "remote", StartTime: start, EndTime: start.Add(time.Hour)}})
	res, err = s.Sync()
	require.NoError(t, err)
	assert.Equal(t, 1, res.Added)

	events, err := calendar.ListEvents("alice")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "remote", events[0].Name)
}
