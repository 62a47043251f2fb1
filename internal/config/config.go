package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type PublishMode string

const (
	PublishRedis PublishMode = "redis"
	PublishHTTP  PublishMode = "http"
	PublishBoth  PublishMode = "both"
	PublishNone  PublishMode = "none"
)

type AppConfig struct {
	RedisURL    string
	DatabaseURL string

	PublishMode    PublishMode
	PublishBaseURL string
	PublishAPIKey  string

	ReaperInterval       time.Duration
	StaleAfter           time.Duration
	NoShowGrace          time.Duration
	ForfeitCheckInterval time.Duration
	ReminderLead         time.Duration

	DefaultClockSeconds int
	DefaultRating       int
	DrawTiebreak        string

	MessagesDir string
	// Admins may manage every tournament, not only their own.
	Admins []string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		PublishMode:          PublishRedis,
		ReaperInterval:       time.Hour,
		StaleAfter:           24 * time.Hour,
		NoShowGrace:          5 * time.Minute,
		ForfeitCheckInterval: time.Minute,
		ReminderLead:         30 * time.Minute,
		DefaultClockSeconds:  300,
		DefaultRating:        1200,
		DrawTiebreak:         "coinflip",
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.PublishBaseURL = strings.TrimSpace(os.Getenv("PUBLISH_BASE_URL"))
	cfg.PublishAPIKey = strings.TrimSpace(os.Getenv("PUBLISH_API_KEY"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	for _, id := range strings.Split(os.Getenv("TOURNAMENT_ADMINS"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			cfg.Admins = append(cfg.Admins, id)
		}
	}

	if v := strings.TrimSpace(os.Getenv("PUBLISH_MODE")); v != "" {
		cfg.PublishMode = PublishMode(strings.ToLower(v))
	}
	if v := strings.TrimSpace(os.Getenv("DRAW_TIEBREAK")); v != "" {
		cfg.DrawTiebreak = strings.ToLower(v)
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"REAPER_INTERVAL", &cfg.ReaperInterval},
		{"STALE_AFTER", &cfg.StaleAfter},
		{"NO_SHOW_GRACE", &cfg.NoShowGrace},
		{"FORFEIT_CHECK_INTERVAL", &cfg.ForfeitCheckInterval},
		{"REMINDER_LEAD", &cfg.ReminderLead},
	}
	for _, d := range durations {
		v := strings.TrimSpace(os.Getenv(d.key))
		if v == "" {
			continue
		}
		parsed, err := ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	if v := strings.TrimSpace(os.Getenv("DEFAULT_CLOCK_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DefaultClockSeconds = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("DEFAULT_RATING")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DefaultRating = n
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	if c.RedisURL == "" {
		return errors.New("REDIS_URL is required")
	}
	switch c.PublishMode {
	case PublishRedis, PublishNone:
	case PublishHTTP, PublishBoth:
		if c.PublishBaseURL == "" {
			return fmt.Errorf("PUBLISH_BASE_URL is required for PUBLISH_MODE=%s", c.PublishMode)
		}
	default:
		return fmt.Errorf("unsupported PUBLISH_MODE %q", c.PublishMode)
	}
	switch c.DrawTiebreak {
	case "coinflip", "higher-seed", "white", "replay":
	default:
		return fmt.Errorf("unsupported DRAW_TIEBREAK %q", c.DrawTiebreak)
	}
	if c.ReaperInterval <= 0 || c.StaleAfter <= 0 {
		return errors.New("REAPER_INTERVAL and STALE_AFTER must be positive")
	}
	return nil
}

// ParseDuration accepts Go duration syntax ("90s", "1h30m") or plain seconds ("300").
func ParseDuration(v string) (time.Duration, error) {
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative duration %q", v)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %q", v)
	}
	return d, nil
}
