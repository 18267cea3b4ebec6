package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"

	"github.com/tazhate/freebusy/config"
	"github.com/tazhate/freebusy/internal/bot"
	"github.com/tazhate/freebusy/internal/clients/caldav"
	"github.com/tazhate/freebusy/internal/logging"
	"github.com/tazhate/freebusy/internal/scheduler"
	"github.com/tazhate/freebusy/internal/service"
	"github.com/tazhate/freebusy/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logging.New("info", os.Stderr, false)
		log.Fatal().Err(err).Msg("failed to load config")
	}

	log := logging.New(cfg.LogLevel, os.Stderr, cfg.LogConsole)
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("freebusy failed")
	}
}

// run wires the service and blocks until SIGINT or SIGTERM. Deferred
// cleanup always runs before main exits.
func run(cfg *config.Config, log zerolog.Logger) error {
	if cfg.SentryEnabled() {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Env,
		})
		if err != nil {
			return fmt.Errorf("init sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	// Storage
	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("init storage %s: %w", cfg.DatabasePath, err)
	}
	defer store.Close()

	// Services
	userSvc := service.NewUserService(store, log)
	calendarSvc := service.NewCalendarService(store, cfg.MaxQuerySpan, log)

	var source service.BusySource
	if cfg.CalDAVEnabled() {
		source = caldav.NewClient(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword)
	}
	syncSvc := service.NewSyncService(source, calendarSvc, store, cfg.CalDAVOwner, cfg.CalDAVCalendar, cfg.SyncDays, log)

	// Bot and HTTP API
	b, err := bot.New(cfg, log, userSvc, calendarSvc, syncSvc)
	if err != nil {
		return fmt.Errorf("init bot: %w", err)
	}

	if cfg.TelegramEnabled() && cfg.WebhookURL != "" {
		if err := b.SetupWebhook(); err != nil {
			return fmt.Errorf("setup webhook: %w", err)
		}
	}

	sched := scheduler.New(cfg, log, userSvc, calendarSvc, syncSvc)
	if cfg.TelegramEnabled() {
		sched.SetSender(b)
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := sched.Start(ctx); err != nil {
			log.Error().Err(err).Msg("scheduler error")
			sentry.CaptureException(err)
		}
	}()

	go func() {
		if err := b.Start(ctx); err != nil {
			log.Error().Err(err).Msg("bot error")
			sentry.CaptureException(err)
		}
	}()

	log.Info().
		Bool("api", cfg.APIEnabled()).
		Bool("telegram", cfg.TelegramEnabled()).
		Bool("caldav", cfg.CalDAVEnabled()).
		Bool("sentry", cfg.SentryEnabled()).
		Msg("freebusy started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")

	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := b.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error stopping bot")
	}

	log.Info().Msg("freebusy stopped")
	return nil
}
