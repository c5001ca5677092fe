package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the full daemon configuration. JSON and YAML files are both
// accepted; unknown fields are rejected so typos fail loudly.
//
// All durations are Go duration strings (e.g. "500ms", "15m", "24h").
type Config struct {
	Server  ServerConfig  `json:"server"`
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`
	Mailer  MailerConfig  `json:"mailer"`

	Scheduler     SchedulerConfig     `json:"scheduler"`
	Notifications NotificationsConfig `json:"notifications"`

	// Jobs overrides the built-in schedule for a named job,
	// e.g. {"queue.drain": "@every 5m"}.
	Jobs map[string]string `json:"jobs,omitempty"`
}

// ServerConfig controls the administrative HTTP surface.
type ServerConfig struct {
	Enabled *bool  `json:"enabled,omitempty"`
	Addr    string `json:"addr,omitempty"` // default ":8744"

	// AuthToken is the bearer token required on every admin call.
	// Empty disables auth (local development only).
	AuthToken string `json:"auth_token,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console *bool      `json:"console,omitempty"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path,omitempty"` // default "./flowdesk.db"
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// MailerConfig controls the outbound email channel.
//
// Mode values:
//   - "smtp": deliver via the configured SMTP relay
//   - "log":  log instead of sending (development)
type MailerConfig struct {
	Mode     string `json:"mode,omitempty"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	From     string `json:"from,omitempty"`

	RatePerSec  int    `json:"rate_per_sec,omitempty"`  // default 5
	SendTimeout string `json:"send_timeout,omitempty"` // default "10s"
}

type SchedulerConfig struct {
	Enabled        *bool  `json:"enabled,omitempty"`
	Workers        int    `json:"workers,omitempty"`
	Timezone       string `json:"timezone,omitempty"` // IANA TZ, e.g. "Europe/Berlin"
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

// NotificationsConfig tunes dispatch and retry policy.
type NotificationsConfig struct {
	DedupWindow         string  `json:"dedup_window,omitempty"` // default "24h"
	QueueBatchSize      int     `json:"queue_batch_size,omitempty"`
	MaxAttempts         int     `json:"max_attempts,omitempty"`
	RetryStep           string  `json:"retry_step,omitempty"` // default "5m"
	CleanupDays         int     `json:"cleanup_days,omitempty"`
	ComplianceThreshold float64 `json:"compliance_threshold,omitempty"` // percent, default 80
}

// Validate rejects configs that could not be applied. It is also used as the
// hot-reload validator, so a bad edit never replaces a working config.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("mailer.send_timeout", c.Mailer.SendTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("scheduler.default_timeout", c.Scheduler.DefaultTimeout); err != nil {
		return err
	}
	if _, err := ParseDurationField("notifications.dedup_window", c.Notifications.DedupWindow); err != nil {
		return err
	}
	if _, err := ParseDurationField("notifications.retry_step", c.Notifications.RetryStep); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(c.Mailer.Mode)) {
	case "", "log", "smtp":
	default:
		return fmt.Errorf("mailer.mode: unknown mode %q", c.Mailer.Mode)
	}
	if strings.EqualFold(strings.TrimSpace(c.Mailer.Mode), "smtp") {
		if strings.TrimSpace(c.Mailer.Host) == "" {
			return fmt.Errorf("mailer.host is required in smtp mode")
		}
		if strings.TrimSpace(c.Mailer.From) == "" {
			return fmt.Errorf("mailer.from is required in smtp mode")
		}
	}
	if c.Notifications.ComplianceThreshold < 0 || c.Notifications.ComplianceThreshold > 100 {
		return fmt.Errorf("notifications.compliance_threshold must be within 0..100")
	}
	if c.Scheduler.Timezone != "" {
		if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
			return fmt.Errorf("scheduler.timezone: %w", err)
		}
	}
	return nil
}

// ServerEnabled defaults to true.
func (c *Config) ServerEnabled() bool {
	if c.Server.Enabled == nil {
		return true
	}
	return *c.Server.Enabled
}

func (c *Config) ServerAddr() string {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return ":8744"
	}
	return c.Server.Addr
}

// SchedulerEnabled defaults to true.
func (c *Config) SchedulerEnabled() bool {
	if c.Scheduler.Enabled == nil {
		return true
	}
	return *c.Scheduler.Enabled
}

// ConsoleLogging defaults to true.
func (c *Config) ConsoleLogging() bool {
	if c.Logging.Console == nil {
		return true
	}
	return *c.Logging.Console
}

func (c *Config) StoragePath() string {
	if strings.TrimSpace(c.Storage.Path) == "" {
		return "./flowdesk.db"
	}
	return c.Storage.Path
}

func (c *Config) DedupWindow() time.Duration {
	d, _ := ParseDurationOrDefault("notifications.dedup_window", c.Notifications.DedupWindow, 24*time.Hour)
	return d
}

func (c *Config) RetryStep() time.Duration {
	d, _ := ParseDurationOrDefault("notifications.retry_step", c.Notifications.RetryStep, 5*time.Minute)
	return d
}

func (c *Config) QueueBatchSize() int {
	if c.Notifications.QueueBatchSize <= 0 {
		return 50
	}
	return c.Notifications.QueueBatchSize
}

func (c *Config) MaxAttempts() int {
	if c.Notifications.MaxAttempts <= 0 {
		return 3
	}
	return c.Notifications.MaxAttempts
}

func (c *Config) CleanupDays() int {
	if c.Notifications.CleanupDays <= 0 {
		return 90
	}
	return c.Notifications.CleanupDays
}

func (c *Config) ComplianceThreshold() float64 {
	if c.Notifications.ComplianceThreshold <= 0 {
		return 80
	}
	return c.Notifications.ComplianceThreshold
}
