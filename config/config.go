package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelvyncastro/kairoapp-sub002/internal/domain"
)

type Config struct {
	DatabasePath string
	Timezone     *time.Location

	// Owner of the single-user daemon.
	OwnerUserID int64

	// Telegram is the transient notification channel. Optional: without a
	// token reminders fall back to log output.
	TelegramToken  string
	TelegramChatID int64

	// Morning replan time (HH:MM): import external obligations and repack
	// the day before it starts.
	MorningHour   int
	MorningMinute int

	// CalDAV import/publish of external obligations. Optional.
	CalDAVURL      string
	CalDAVUsername string
	CalDAVPassword string
	CalDAVCalendar string

	Workday domain.WorkdayConfig
}

func Load() (*Config, error) {
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/kairo.db"
	}

	tzName := os.Getenv("TIMEZONE")
	if tzName == "" {
		tzName = "Local"
	}
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	ownerID := int64(1)
	if v := os.Getenv("OWNER_USER_ID"); v != "" {
		ownerID, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("OWNER_USER_ID must be a number: %w", err)
		}
	}

	var chatID int64
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		chatID, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("TELEGRAM_CHAT_ID must be a number: %w", err)
		}
	}

	morning := os.Getenv("MORNING_TIME")
	if morning == "" {
		morning = "07:30"
	}
	morningHour, morningMinute, err := parseClock(morning)
	if err != nil {
		return nil, fmt.Errorf("invalid MORNING_TIME: %w", err)
	}

	workday, err := loadWorkday()
	if err != nil {
		return nil, err
	}

	return &Config{
		DatabasePath:   dbPath,
		Timezone:       tz,
		OwnerUserID:    ownerID,
		TelegramToken:  os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID: chatID,
		MorningHour:    morningHour,
		MorningMinute:  morningMinute,
		CalDAVURL:      os.Getenv("CALDAV_URL"),
		CalDAVUsername: os.Getenv("CALDAV_USERNAME"),
		CalDAVPassword: os.Getenv("CALDAV_PASSWORD"),
		CalDAVCalendar: os.Getenv("CALDAV_CALENDAR"),
		Workday:        workday,
	}, nil
}

func loadWorkday() (domain.WorkdayConfig, error) {
	cfg := domain.DefaultWorkday()

	var err error
	if v := os.Getenv("WORKDAY_START"); v != "" {
		cfg.WorkdayStartHour, cfg.WorkdayStartMinute, err = parseClock(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid WORKDAY_START: %w", err)
		}
	}
	if v := os.Getenv("WORKDAY_END"); v != "" {
		cfg.WorkdayEndHour, cfg.WorkdayEndMinute, err = parseClock(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid WORKDAY_END: %w", err)
		}
	}
	if v := os.Getenv("LUNCH_START"); v != "" {
		cfg.LunchStartHour, cfg.LunchStartMinute, err = parseClock(v)
		if err != nil {
			return cfg, fmt.Errorf("invalid LUNCH_START: %w", err)
		}
	}
	if v := os.Getenv("LUNCH_MINUTES"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil || minutes <= 0 {
			return cfg, fmt.Errorf("LUNCH_MINUTES must be a positive number")
		}
		cfg.LunchDuration = time.Duration(minutes) * time.Minute
	}
	if v := os.Getenv("BREAK_MINUTES"); v != "" {
		minutes, err := strconv.Atoi(v)
		if err != nil || minutes < 0 {
			return cfg, fmt.Errorf("BREAK_MINUTES must be a non-negative number")
		}
		cfg.BreakDuration = time.Duration(minutes) * time.Minute
	}

	return cfg, nil
}

// parseClock parses "HH:MM".
func parseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("bad hour in %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("bad minute in %q", s)
	}
	return hour, minute, nil
}

// HasTelegram reports whether the Telegram channel can be used.
func (c *Config) HasTelegram() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// HasCalDAV reports whether the CalDAV client can be used.
func (c *Config) HasCalDAV() bool {
	return c.CalDAVURL != "" && c.CalDAVUsername != "" && c.CalDAVPassword != ""
}
