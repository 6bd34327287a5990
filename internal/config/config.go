package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port             int    `env:"PORT" envDefault:"8080"`
	DatabaseURL      string `env:"DATABASE_URL,required"`
	RedisURL         string `env:"REDIS_URL,required"`
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN,required"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"info"`

	ScanIntervalSeconds int `env:"SCAN_INTERVAL_SECONDS" envDefault:"60"`
	ScanTimeoutSeconds  int `env:"SCAN_TIMEOUT_SECONDS" envDefault:"45"`
	WorkerCount         int `env:"WORKER_COUNT" envDefault:"8"`

	// Comma-separated ascending durations; the last entry repeats.
	ReminderBackoff string `env:"REMINDER_BACKOFF" envDefault:"15m"`

	ChatThrottleLimit         int `env:"CHAT_THROTTLE_LIMIT" envDefault:"20"`
	ChatThrottleWindowSeconds int `env:"CHAT_THROTTLE_WINDOW_SECONDS" envDefault:"60"`

	SentMessagesRetentionDays int    `env:"SENT_MESSAGES_RETENTION_DAYS" envDefault:"30"`
	RetentionCron             string `env:"RETENTION_CRON" envDefault:"0 4 * * *"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSeconds) * time.Second
}

func (c *Config) ScanTimeout() time.Duration {
	return time.Duration(c.ScanTimeoutSeconds) * time.Second
}

func (c *Config) ChatThrottleWindow() time.Duration {
	return time.Duration(c.ChatThrottleWindowSeconds) * time.Second
}

func (c *Config) SentMessagesRetention() time.Duration {
	return time.Duration(c.SentMessagesRetentionDays) * 24 * time.Hour
}

// BackoffSchedule parses REMINDER_BACKOFF into a duration slice.
func (c *Config) BackoffSchedule() ([]time.Duration, error) {
	parts := strings.Split(c.ReminderBackoff, ",")
	schedule := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		d, err := time.ParseDuration(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("REMINDER_BACKOFF entry %q: %w", p, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("REMINDER_BACKOFF entry %q must be positive", p)
		}
		schedule = append(schedule, d)
	}
	return schedule, nil
}

func (c *Config) Validate() error {
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	if c.ScanIntervalSeconds < 1 {
		return fmt.Errorf("SCAN_INTERVAL_SECONDS must be at least 1")
	}
	if c.ScanTimeoutSeconds < 1 || c.ScanTimeoutSeconds > c.ScanIntervalSeconds {
		return fmt.Errorf("SCAN_TIMEOUT_SECONDS must be between 1 and SCAN_INTERVAL_SECONDS")
	}

	schedule, err := c.BackoffSchedule()
	if err != nil {
		return err
	}
	for i := 1; i < len(schedule); i++ {
		if schedule[i] < schedule[i-1] {
			return fmt.Errorf("REMINDER_BACKOFF must be ascending, got %s after %s", schedule[i], schedule[i-1])
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
