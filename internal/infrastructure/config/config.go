package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Gray Logic Home.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Sync      SyncConfig      `yaml:"sync"`
	Control   ControlConfig   `yaml:"control"`
	Usage     UsageConfig     `yaml:"usage"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`

	// Timezone is the IANA zone schedules and daily statistics are evaluated in.
	Timezone string `yaml:"timezone"`
}

// Location resolves the configured timezone.
func (s SiteConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings.
// An empty secret disables bearer-token identification on the API.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// SchedulerConfig controls the schedule evaluator loop.
type SchedulerConfig struct {
	// Interval between evaluation ticks, in seconds.
	Interval int `yaml:"interval"`

	// GraceWindow is the maximum lateness, in seconds, after which a due
	// schedule is skipped instead of executed.
	GraceWindow int `yaml:"grace_window"`

	// Workers bounds how many schedules execute concurrently within a tick.
	Workers int `yaml:"workers"`
}

// SyncConfig controls the hardware status reconciler.
type SyncConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Interval     int    `yaml:"interval"`
	Timeout      int    `yaml:"timeout"`
	StatusPath   string `yaml:"status_path"`
	Workers      int    `yaml:"workers"`
	DryThreshold int    `yaml:"dry_threshold"`
}

// ControlConfig controls outbound device commands.
type ControlConfig struct {
	// Timeout for a single wire command, in seconds.
	Timeout         int `yaml:"timeout"`
	DefaultFanSpeed int `yaml:"default_fan_speed"`
}

// UsageConfig holds the tariff used to bill usage sessions.
type UsageConfig struct {
	PricePerKWh float64 `yaml:"price_per_kwh"`

	// PowerRates maps device type to kWh consumed per hour of use.
	PowerRates  map[string]float64 `yaml:"power_rates"`
	DefaultRate float64            `yaml:"default_rate"`

	// StaleSessionHours is the age after which an open session is closed
	// by the cleanup operation.
	StaleSessionHours int `yaml:"stale_session_hours"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
// For example: GRAYLOGIC_DATABASE_PATH, GRAYLOGIC_SITE_TIMEZONE
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// DefaultPowerRates returns the per-type consumption table, in kWh per hour.
func DefaultPowerRates() map[string]float64 {
	return map[string]float64{
		"light": 0.01,
		"led":   0.01,
		"fan":   0.05,
		"ac":    0.8,
		"dryer": 0.1,
		"door":  0.005,
	}
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "home-001",
			Name:     "Gray Logic Home",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/grayhome.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "grayhome-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Scheduler: SchedulerConfig{
			Interval:    30,
			GraceWindow: 300,
			Workers:     4,
		},
		Sync: SyncConfig{
			Enabled:      true,
			Interval:     5,
			Timeout:      3,
			StatusPath:   "/api/status",
			Workers:      8,
			DryThreshold: 40,
		},
		Control: ControlConfig{
			Timeout:         3,
			DefaultFanSpeed: 3,
		},
		Usage: UsageConfig{
			PricePerKWh:       3000,
			PowerRates:        DefaultPowerRates(),
			DefaultRate:       0.01,
			StaleSessionHours: 24,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GRAYLOGIC_SITE_TIMEZONE"); v != "" {
		cfg.Site.Timezone = v
	}

	if v := os.Getenv("GRAYLOGIC_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("GRAYLOGIC_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GRAYLOGIC_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("GRAYLOGIC_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	if v := os.Getenv("GRAYLOGIC_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("GRAYLOGIC_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	if v := os.Getenv("GRAYLOGIC_USAGE_PRICE_PER_KWH"); v != "" {
		if price, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Usage.PricePerKWh = price
		}
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if _, err := c.Site.Location(); err != nil {
		errs = append(errs, "site.timezone is not a valid IANA zone")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Tokens signed with a short secret are trivially forged.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if c.Scheduler.Interval < 1 {
		errs = append(errs, "scheduler.interval must be at least 1 second")
	}
	if c.Scheduler.GraceWindow < 0 {
		errs = append(errs, "scheduler.grace_window must not be negative")
	}
	if c.Scheduler.Workers < 1 {
		errs = append(errs, "scheduler.workers must be at least 1")
	}

	if c.Sync.Enabled {
		if c.Sync.Interval < 1 {
			errs = append(errs, "sync.interval must be at least 1 second")
		}
		if c.Sync.Timeout < 1 {
			errs = append(errs, "sync.timeout must be at least 1 second")
		}
		if !strings.HasPrefix(c.Sync.StatusPath, "/") {
			errs = append(errs, "sync.status_path must start with /")
		}
		if c.Sync.Workers < 1 {
			errs = append(errs, "sync.workers must be at least 1")
		}
	}

	if c.Control.Timeout < 1 {
		errs = append(errs, "control.timeout must be at least 1 second")
	}

	if c.Usage.PricePerKWh < 0 {
		errs = append(errs, "usage.price_per_kwh must not be negative")
	}
	for typ, rate := range c.Usage.PowerRates {
		if rate < 0 {
			errs = append(errs, fmt.Sprintf("usage.power_rates.%s must not be negative", typ))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// SchedulerInterval returns the evaluation tick as a Duration.
func (c *Config) SchedulerInterval() time.Duration {
	return time.Duration(c.Scheduler.Interval) * time.Second
}

// GraceWindow returns the schedule lateness tolerance as a Duration.
func (c *Config) GraceWindow() time.Duration {
	return time.Duration(c.Scheduler.GraceWindow) * time.Second
}

// SyncInterval returns the status polling interval as a Duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.Interval) * time.Second
}

// SyncTimeout returns the per-address status poll timeout as a Duration.
func (c *Config) SyncTimeout() time.Duration {
	return time.Duration(c.Sync.Timeout) * time.Second
}

// ControlTimeout returns the per-command wire timeout as a Duration.
func (c *Config) ControlTimeout() time.Duration {
	return time.Duration(c.Control.Timeout) * time.Second
}
