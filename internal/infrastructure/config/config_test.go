package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "test-home"
  timezone: "Asia/Ho_Chi_Minh"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
scheduler:
  interval: 15
  grace_window: 120
usage:
  price_per_kwh: 2500
  power_rates:
    fan: 0.07
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-home" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-home")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if got := cfg.SchedulerInterval(); got != 15*time.Second {
		t.Errorf("SchedulerInterval() = %v, want 15s", got)
	}
	if got := cfg.GraceWindow(); got != 2*time.Minute {
		t.Errorf("GraceWindow() = %v, want 2m", got)
	}
	if cfg.Usage.PricePerKWh != 2500 {
		t.Errorf("Usage.PricePerKWh = %v, want 2500", cfg.Usage.PricePerKWh)
	}
	if cfg.Usage.PowerRates["fan"] != 0.07 {
		t.Errorf("Usage.PowerRates[fan] = %v, want 0.07", cfg.Usage.PowerRates["fan"])
	}

	// Sections absent from the file keep their defaults.
	if cfg.Sync.StatusPath != "/api/status" {
		t.Errorf("Sync.StatusPath = %q, want /api/status", cfg.Sync.StatusPath)
	}
	if cfg.Control.DefaultFanSpeed != 3 {
		t.Errorf("Control.DefaultFanSpeed = %d, want 3", cfg.Control.DefaultFanSpeed)
	}

	loc, err := cfg.Site.Location()
	if err != nil {
		t.Fatalf("Site.Location() error = %v", err)
	}
	if loc.String() != "Asia/Ho_Chi_Minh" {
		t.Errorf("Site.Location() = %q, want Asia/Ho_Chi_Minh", loc.String())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
site:
  id: ""
`)

	_, err := Load(path)
	if err == nil {
		t.Error("Load() expected validation error for empty site.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: true},
		{name: "unknown timezone", mutate: func(c *Config) { c.Site.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "invalid port low", mutate: func(c *Config) { c.API.Port = 0 }, wantErr: true},
		{name: "invalid port high", mutate: func(c *Config) { c.API.Port = 70000 }, wantErr: true},
		{name: "empty JWT secret allowed", mutate: func(c *Config) { c.Security.JWT.Secret = "" }},
		{name: "JWT secret too short", mutate: func(c *Config) { c.Security.JWT.Secret = "short" }, wantErr: true},
		{name: "zero scheduler interval", mutate: func(c *Config) { c.Scheduler.Interval = 0 }, wantErr: true},
		{name: "negative grace window", mutate: func(c *Config) { c.Scheduler.GraceWindow = -1 }, wantErr: true},
		{name: "status path without slash", mutate: func(c *Config) { c.Sync.StatusPath = "api/status" }, wantErr: true},
		{
			name: "sync checks skipped when disabled",
			mutate: func(c *Config) {
				c.Sync.Enabled = false
				c.Sync.Interval = 0
			},
		},
		{name: "zero control timeout", mutate: func(c *Config) { c.Control.Timeout = 0 }, wantErr: true},
		{name: "negative price", mutate: func(c *Config) { c.Usage.PricePerKWh = -1 }, wantErr: true},
		{name: "negative rate", mutate: func(c *Config) { c.Usage.PowerRates["fan"] = -0.1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Durations(t *testing.T) {
	cfg := defaultConfig()
	cfg.API.Timeouts = APITimeoutConfig{Read: 30, Write: 45, Idle: 60}

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"read", cfg.GetReadTimeout(), 30 * time.Second},
		{"write", cfg.GetWriteTimeout(), 45 * time.Second},
		{"idle", cfg.GetIdleTimeout(), 60 * time.Second},
		{"scheduler", cfg.SchedulerInterval(), 30 * time.Second},
		{"grace", cfg.GraceWindow(), 5 * time.Minute},
		{"sync interval", cfg.SyncInterval(), 5 * time.Second},
		{"sync timeout", cfg.SyncTimeout(), 3 * time.Second},
		{"control timeout", cfg.ControlTimeout(), 3 * time.Second},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYLOGIC_SITE_TIMEZONE", "Europe/London")
	t.Setenv("GRAYLOGIC_DATABASE_PATH", "/custom/path.db")
	t.Setenv("GRAYLOGIC_MQTT_HOST", "mqtt.example.com")
	t.Setenv("GRAYLOGIC_MQTT_USERNAME", "testuser")
	t.Setenv("GRAYLOGIC_MQTT_PASSWORD", "testpass")
	t.Setenv("GRAYLOGIC_API_HOST", "192.168.1.1")
	t.Setenv("GRAYLOGIC_API_PORT", "9090")
	t.Setenv("GRAYLOGIC_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("GRAYLOGIC_JWT_SECRET", "jwt-secret")
	t.Setenv("GRAYLOGIC_USAGE_PRICE_PER_KWH", "1750.5")

	applyEnvOverrides(cfg)

	if cfg.Site.Timezone != "Europe/London" {
		t.Errorf("Site.Timezone = %q, want Europe/London", cfg.Site.Timezone)
	}
	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}
	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}
	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}
	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}
	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
	if cfg.Security.JWT.Secret != "jwt-secret" {
		t.Errorf("Security.JWT.Secret = %q, want %q", cfg.Security.JWT.Secret, "jwt-secret")
	}
	if cfg.Usage.PricePerKWh != 1750.5 {
		t.Errorf("Usage.PricePerKWh = %v, want 1750.5", cfg.Usage.PricePerKWh)
	}
}

func TestApplyEnvOverrides_IgnoresMalformedNumbers(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("GRAYLOGIC_API_PORT", "not-a-port")
	t.Setenv("GRAYLOGIC_USAGE_PRICE_PER_KWH", "free")

	applyEnvOverrides(cfg)

	if cfg.API.Port != 8080 {
		t.Errorf("API.Port = %d, want default 8080", cfg.API.Port)
	}
	if cfg.Usage.PricePerKWh != 3000 {
		t.Errorf("Usage.PricePerKWh = %v, want default 3000", cfg.Usage.PricePerKWh)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Scheduler.GraceWindow != 300 {
		t.Errorf("Scheduler.GraceWindow = %d, want 300", cfg.Scheduler.GraceWindow)
	}
	if cfg.Usage.PricePerKWh != 3000 {
		t.Errorf("Usage.PricePerKWh = %v, want 3000", cfg.Usage.PricePerKWh)
	}
	if cfg.Usage.PowerRates["ac"] != 0.8 {
		t.Errorf("Usage.PowerRates[ac] = %v, want 0.8", cfg.Usage.PowerRates["ac"])
	}
	if cfg.MQTT.Enabled {
		t.Error("MQTT should be disabled by default")
	}
}
