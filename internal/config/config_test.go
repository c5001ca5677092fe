package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{
		"server": {"addr": ":9000", "auth_token": "secret"},
		"storage": {"path": "/tmp/flowdesk-test.db"},
		"notifications": {"retry_step": "2m", "max_attempts": 5},
		"jobs": {"queue.drain": "@every 5m"}
	}`)

	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.ServerAddr() != ":9000" {
		t.Fatalf("addr = %q", cfg.ServerAddr())
	}
	if cfg.RetryStep() != 2*time.Minute {
		t.Fatalf("retry step = %v", cfg.RetryStep())
	}
	if cfg.MaxAttempts() != 5 {
		t.Fatalf("max attempts = %d", cfg.MaxAttempts())
	}
	if cfg.Jobs["queue.drain"] != "@every 5m" {
		t.Fatalf("jobs override = %v", cfg.Jobs)
	}
	if got := m.Get(); got != cfg {
		t.Fatal("Get should return the committed config")
	}
}

func TestLoadYAML(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.yaml", `
server:
  enabled: false
scheduler:
  timezone: UTC
  workers: 2
notifications:
  dedup_window: 12h
`)

	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.ServerEnabled() {
		t.Fatal("server.enabled=false not honored")
	}
	if cfg.Scheduler.Workers != 2 || cfg.Scheduler.Timezone != "UTC" {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.DedupWindow() != 12*time.Hour {
		t.Fatalf("dedup window = %v", cfg.DedupWindow())
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, "config.json", `{"serverr": {"addr": ":9000"}}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatal("expected error for unknown top-level field")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "zero config is valid", mutate: func(*Config) {}},
		{name: "bad duration", mutate: func(c *Config) { c.Notifications.RetryStep = "soon" }, wantErr: true},
		{name: "bad mailer mode", mutate: func(c *Config) { c.Mailer.Mode = "fax" }, wantErr: true},
		{name: "smtp without host", mutate: func(c *Config) { c.Mailer.Mode = "smtp"; c.Mailer.From = "x@y" }, wantErr: true},
		{name: "smtp complete", mutate: func(c *Config) {
			c.Mailer.Mode = "smtp"
			c.Mailer.Host = "relay.example.com"
			c.Mailer.From = "no-reply@example.com"
		}},
		{name: "threshold out of range", mutate: func(c *Config) { c.Notifications.ComplianceThreshold = 150 }, wantErr: true},
		{name: "bad timezone", mutate: func(c *Config) { c.Scheduler.Timezone = "Mars/Olympus" }, wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var cfg Config
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestDefaultAccessors(t *testing.T) {
	t.Parallel()
	var cfg Config
	if !cfg.ServerEnabled() || !cfg.SchedulerEnabled() || !cfg.ConsoleLogging() {
		t.Fatal("enabled accessors should default to true")
	}
	if cfg.ServerAddr() != ":8744" {
		t.Fatalf("addr default = %q", cfg.ServerAddr())
	}
	if cfg.StoragePath() != "./flowdesk.db" {
		t.Fatalf("storage default = %q", cfg.StoragePath())
	}
	if cfg.DedupWindow() != 24*time.Hour || cfg.RetryStep() != 5*time.Minute {
		t.Fatalf("window defaults = %v / %v", cfg.DedupWindow(), cfg.RetryStep())
	}
	if cfg.QueueBatchSize() != 50 || cfg.MaxAttempts() != 3 || cfg.CleanupDays() != 90 {
		t.Fatalf("queue defaults = %d / %d / %d", cfg.QueueBatchSize(), cfg.MaxAttempts(), cfg.CleanupDays())
	}
	if cfg.ComplianceThreshold() != 80 {
		t.Fatalf("threshold default = %v", cfg.ComplianceThreshold())
	}
}
