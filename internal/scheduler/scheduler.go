package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/tazhate/freebusy/config"
	"github.com/tazhate/freebusy/internal/domain"
	"github.com/tazhate/freebusy/internal/service"
)

const syncTimeout = 2 * time.Minute

type MessageSender interface {
	SendMessage(chatID int64, text string) error
}

type Scheduler struct {
	cron     *cron.Cron
	cfg      *config.Config
	log      zerolog.Logger
	users    *service.UserService
	calendar *service.CalendarService
	sync     *service.SyncService
	sender   MessageSender
	now      func() time.Time
}

func New(cfg *config.Config, log zerolog.Logger, users *service.UserService, calendar *service.CalendarService, sync *service.SyncService) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		cfg:      cfg,
		log:      log.With().Str("component", "scheduler").Logger(),
		users:    users,
		calendar: calendar,
		sync:     sync,
		now:      time.Now,
	}
}

func (s *Scheduler) SetSender(sender MessageSender) {
	s.sender = sender
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.syncEnabled() {
		if _, err := s.cron.AddFunc(s.cfg.SyncSchedule, s.runSync); err != nil {
			return fmt.Errorf("add caldav sync: %w", err)
		}
	}

	if _, err := s.cron.AddFunc(s.cfg.DigestSchedule, s.runDigest); err != nil {
		return fmt.Errorf("add free time digest: %w", err)
	}

	s.cron.Start()
	s.log.Info().
		Bool("sync", s.syncEnabled()).
		Str("sync_schedule", s.cfg.SyncSchedule).
		Str("digest_schedule", s.cfg.DigestSchedule).
		Msg("scheduler started")

	<-ctx.Done()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) syncEnabled() bool {
	return s.sync != nil && s.sync.Enabled()
}

func (s *Scheduler) runSync() {
	if _, err := s.Sync(); err != nil {
		s.log.Error().Err(err).Msg("caldav sync failed")
		sentry.CaptureException(err)
	}
}

// Sync imports remote events now. It is a no-op without a CalDAV source.
func (s *Scheduler) Sync() (*service.SyncResult, error) {
	if !s.syncEnabled() {
		return &service.SyncResult{}, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()
	return s.sync.Sync(ctx, s.now())
}

func (s *Scheduler) runDigest() {
	if err := s.SendDigests(); err != nil {
		s.log.Error().Err(err).Msg("free time digest failed")
		sentry.CaptureException(err)
	}
}

// digestWindow returns today's digest range in minutes.
func (s *Scheduler) digestWindow() (int64, int64, error) {
	from, err := config.ParseClock(s.cfg.DigestFrom)
	if err != nil {
		return 0, 0, err
	}
	to, err := config.ParseClock(s.cfg.DigestTo)
	if err != nil {
		return 0, 0, err
	}
	midnight := domain.MinutesFromTime(s.now().UTC().Truncate(24 * time.Hour))
	return midnight + from, midnight + to, nil
}

// SendDigests sends every Telegram-linked user today's free time shared
// with their friends.
func (s *Scheduler) SendDigests() error {
	if s.sender == nil {
		return nil
	}

	start, end, err := s.digestWindow()
	if err != nil {
		return err
	}

	users, err := s.users.LinkedUsers()
	if err != nil {
		return fmt.Errorf("list linked users: %w", err)
	}

	for _, u := range users {
		text, err := s.digestFor(u.Username, start, end)
		if err != nil {
			s.log.Error().Err(err).Str("user", u.Username).Msg("build digest")
			continue
		}
		if err := s.sender.SendMessage(*u.TelegramID, text); err != nil {
			s.log.Error().Err(err).Str("user", u.Username).Int64("chat_id", *u.TelegramID).Msg("send digest")
		}
	}
	return nil
}

func (s *Scheduler) digestFor(username string, start, end int64) (string, error) {
	free, users, err := s.calendar.ComputeFreeTimeWithFriends(username, start, end)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("📅 <b>Free today</b>")
	if len(users) > 1 {
		sb.WriteString(" with " + tgbotapi.EscapeText(tgbotapi.ModeHTML, strings.Join(users[1:], ", ")))
	}
	sb.WriteString("\n\n")
	sb.WriteString(s.calendar.FormatFreeWindows(free))
	return sb.String(), nil
}
