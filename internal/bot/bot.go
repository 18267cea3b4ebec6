package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tazhate/freebusy/config"
	"github.com/tazhate/freebusy/internal/service"
)

var ErrTelegramDisabled = errors.New("telegram is not configured")

type Bot struct {
	api      *tgbotapi.BotAPI // nil when no token is configured
	cfg      *config.Config
	log      zerolog.Logger
	users    *service.UserService
	calendar *service.CalendarService
	sync     *service.SyncService
	limiter  *rate.Limiter
	server   *http.Server
	now      func() time.Time
}

// New creates the bot. The Telegram client is only created when a token is
// configured; the HTTP API works either way.
func New(cfg *config.Config, log zerolog.Logger, users *service.UserService, calendar *service.CalendarService, sync *service.SyncService) (*Bot, error) {
	bot := &Bot{
		cfg:      cfg,
		log:      log.With().Str("component", "bot").Logger(),
		users:    users,
		calendar: calendar,
		sync:     sync,
		limiter:  rate.NewLimiter(rate.Limit(cfg.SendRate), 1),
		now:      time.Now,
	}

	if cfg.TelegramEnabled() {
		api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
		if err != nil {
			return nil, fmt.Errorf("create bot api: %w", err)
		}
		bot.api = api
		bot.log.Info().Str("username", api.Self.UserName).Msg("authorized")

		// Set bot commands (menu button)
		bot.setCommands()
	}

	return bot, nil
}

func (b *Bot) setCommands() {
	commands := []tgbotapi.BotCommand{
		{Command: "events", Description: "📋 My events"},
		{Command: "add", Description: "➕ Add event"},
		{Command: "free", Description: "🟢 Common free time"},
		{Command: "friends", Description: "👥 Friends"},
		{Command: "help", Description: "❓ Help"},
	}

	cfg := tgbotapi.NewSetMyCommands(commands...)
	if _, err := b.api.Request(cfg); err != nil {
		b.log.Warn().Err(err).Msg("failed to set commands")
	}
}

func (b *Bot) SetupWebhook() error {
	if b.api == nil {
		return ErrTelegramDisabled
	}

	webhookURL := b.cfg.WebhookURL + "/bot"

	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}

	_, err = b.api.Request(wh)
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	info, err := b.api.GetWebhookInfo()
	if err != nil {
		return fmt.Errorf("get webhook info: %w", err)
	}

	if info.LastErrorDate != 0 {
		b.log.Warn().Str("error", info.LastErrorMessage).Msg("webhook last error")
	}

	b.log.Info().Str("url", webhookURL).Msg("webhook set")
	return nil
}

// Handler returns the HTTP routes: health check, Telegram webhook and the
// REST API when credentials are configured.
func (b *Bot) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if b.api != nil && b.cfg.WebhookURL != "" {
		mux.HandleFunc("/bot", b.webhook)
	}

	b.SetupAPI(mux)
	return b.middleware().Then(mux)
}

func (b *Bot) webhook(w http.ResponseWriter, r *http.Request) {
	update, err := b.api.HandleUpdate(r)
	if err != nil {
		b.log.Warn().Err(err).Msg("bad webhook update")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	go b.handleUpdate(*update)
}

// Start serves HTTP and, without a webhook, long-polls Telegram until ctx
// is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	b.server = &http.Server{
		Addr:              ":" + b.cfg.ServerPort,
		Handler:           b.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		b.log.Info().Str("port", b.cfg.ServerPort).Msg("starting http server")
		if err := b.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	var updates tgbotapi.UpdatesChannel
	if b.api != nil && b.cfg.WebhookURL == "" {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates = b.api.GetUpdatesChan(u)
		defer b.api.StopReceivingUpdates()
		b.log.Info().Msg("polling telegram updates")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return fmt.Errorf("http server: %w", err)
		case update := <-updates:
			go b.handleUpdate(update)
		}
	}
}

func (b *Bot) Stop(ctx context.Context) error {
	if b.server != nil {
		return b.server.Shutdown(ctx)
	}
	return nil
}

// escape quotes user-supplied text for HTML parse mode.
func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeHTML, s)
}

// SendMessage sends an HTML message, waiting for the outgoing rate limiter.
func (b *Bot) SendMessage(chatID int64, text string) error {
	if b.api == nil {
		return ErrTelegramDisabled
	}
	if err := b.limiter.Wait(context.Background()); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) SendMessageWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	if b.api == nil {
		return ErrTelegramDisabled
	}
	if err := b.limiter.Wait(context.Background()); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = keyboard
	_, err := b.api.Send(msg)
	return err
}
