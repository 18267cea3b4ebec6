package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
	"github.com/xhit/go-str2duration/v2"
)

type Config struct {
	DatabasePath string `toml:"database_path"`
	ServerPort   string `toml:"server_port"`
	LogLevel     string `toml:"log_level"`
	LogConsole   bool   `toml:"log_console"`

	// REST API (disabled without credentials)
	APIUsername string `toml:"api_username"`
	APIPassword string `toml:"api_password"`

	// Telegram front end (disabled without token)
	TelegramToken string `toml:"telegram_token"`
	WebhookURL    string `toml:"webhook_url"`
	SendRate      int    `toml:"send_rate"` // messages per second

	// CalDAV import (disabled without credentials)
	CalDAVURL      string `toml:"caldav_url"`
	CalDAVUsername string `toml:"caldav_username"`
	CalDAVPassword string `toml:"caldav_password"`
	CalDAVCalendar string `toml:"caldav_calendar"`
	CalDAVOwner    string `toml:"caldav_owner"` // local user receiving imported events
	SyncDays       int    `toml:"sync_days"`

	SyncSchedule   string `toml:"sync_schedule"`
	DigestSchedule string `toml:"digest_schedule"`
	DigestFrom     string `toml:"digest_from"` // "HH:MM", UTC
	DigestTo       string `toml:"digest_to"`

	// Largest free-time query range, in minutes.
	MaxQuerySpan int64 `toml:"max_query_span"`

	// Error reporting (disabled without DSN)
	SentryDSN string `toml:"sentry_dsn"`
	Env       string `toml:"env"`
}

func defaults() *Config {
	return &Config{
		DatabasePath:   "./data/schedule.db",
		ServerPort:     "8080",
		LogLevel:       "info",
		SendRate:       20,
		SyncDays:       90,
		SyncSchedule:   "*/30 * * * *",
		DigestSchedule: "0 8 * * *",
		DigestFrom:     "09:00",
		DigestTo:       "18:00",
		MaxQuerySpan:   60 * 24 * 31,
		Env:            "production",
	}
}

// Load builds the configuration from defaults, the optional TOML file named
// by CONFIG_FILE, and environment variables, in that order of precedence.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	str := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str(&cfg.DatabasePath, "DATABASE_PATH")
	str(&cfg.ServerPort, "SERVER_PORT")
	str(&cfg.LogLevel, "LOG_LEVEL")
	str(&cfg.APIUsername, "API_USERNAME")
	str(&cfg.APIPassword, "API_PASSWORD")
	str(&cfg.TelegramToken, "TELEGRAM_BOT_TOKEN")
	str(&cfg.WebhookURL, "WEBHOOK_URL")
	str(&cfg.CalDAVURL, "CALDAV_URL")
	str(&cfg.CalDAVUsername, "CALDAV_USERNAME")
	str(&cfg.CalDAVPassword, "CALDAV_PASSWORD")
	str(&cfg.CalDAVCalendar, "CALDAV_CALENDAR")
	str(&cfg.CalDAVOwner, "CALDAV_OWNER")
	str(&cfg.SyncSchedule, "SYNC_SCHEDULE")
	str(&cfg.DigestSchedule, "DIGEST_SCHEDULE")
	str(&cfg.DigestFrom, "DIGEST_FROM")
	str(&cfg.DigestTo, "DIGEST_TO")
	str(&cfg.SentryDSN, "SENTRY_DSN")
	str(&cfg.Env, "ENV")

	if v := os.Getenv("LOG_CONSOLE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_CONSOLE: %w", err)
		}
		cfg.LogConsole = b
	}
	if v := os.Getenv("SEND_RATE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SEND_RATE: %w", err)
		}
		cfg.SendRate = n
	}
	if v := os.Getenv("SYNC_DAYS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SYNC_DAYS: %w", err)
		}
		cfg.SyncDays = n
	}
	if v := os.Getenv("MAX_QUERY_SPAN"); v != "" {
		n, err := ParseSpan(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_QUERY_SPAN: %w", err)
		}
		cfg.MaxQuerySpan = n
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.MaxQuerySpan <= 0 {
		return fmt.Errorf("MAX_QUERY_SPAN must be positive")
	}
	if c.SendRate <= 0 {
		return fmt.Errorf("SEND_RATE must be positive")
	}
	if c.SyncDays <= 0 {
		return fmt.Errorf("SYNC_DAYS must be positive")
	}
	if _, err := cron.ParseStandard(c.SyncSchedule); err != nil {
		return fmt.Errorf("invalid SYNC_SCHEDULE: %w", err)
	}
	if _, err := cron.ParseStandard(c.DigestSchedule); err != nil {
		return fmt.Errorf("invalid DIGEST_SCHEDULE: %w", err)
	}
	from, err := ParseClock(c.DigestFrom)
	if err != nil {
		return fmt.Errorf("invalid DIGEST_FROM: %w", err)
	}
	to, err := ParseClock(c.DigestTo)
	if err != nil {
		return fmt.Errorf("invalid DIGEST_TO: %w", err)
	}
	if from >= to {
		return fmt.Errorf("DIGEST_FROM must be before DIGEST_TO")
	}
	return nil
}

func (c *Config) APIEnabled() bool {
	return c.APIUsername != "" && c.APIPassword != ""
}

func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != ""
}

func (c *Config) SentryEnabled() bool {
	return c.SentryDSN != ""
}

func (c *Config) CalDAVEnabled() bool {
	return c.CalDAVUsername != "" && c.CalDAVPassword != "" && c.CalDAVOwner != ""
}

// ParseSpan parses a length of time in minutes: either a plain integer or a
// duration such as "90m", "36h", "31d" or "2w".
func ParseSpan(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	d, err := str2duration.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	return int64(d / time.Minute), nil
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(s string) (int64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return int64(h*60 + m), nil
}
