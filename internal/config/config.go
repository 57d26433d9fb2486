package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	appLog "dicodingevent/internal/log"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions. Environment variables (optionally from a .env file) override
// a handful of deployment-specific keys after loading.

// APIConfig describes the remote event API.
type APIConfig struct {
	// BaseURL is the absolute API root; relative paths such as "events" are
	// resolved against it.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// Timeout bounds a single request. Zero keeps transport defaults.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// DatabaseConfig selects the favorite store backend.
type DatabaseConfig struct {
	// Driver is one of "sqlite" (default), "sqlite3" or "pgx".
	Driver string `yaml:"driver" json:"driver"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

// ReminderConfig controls the daily reminder cadence. RRule takes precedence
// over Cron, which takes precedence over Interval.
type ReminderConfig struct {
	Name         string        `yaml:"name" json:"name"`
	Interval     time.Duration `yaml:"interval" json:"interval"`
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	Cron         string        `yaml:"cron,omitempty" json:"cron,omitempty"`
	RRule        string        `yaml:"rrule,omitempty" json:"rrule,omitempty"`
}

type NotificationsConfig struct {
	// PermissionGranted gates every notification. When false, notifications
	// are silently dropped.
	PermissionGranted bool `yaml:"permission_granted" json:"permission_granted"`
	// NotifyOnStartup posts the latest event once when the service starts.
	NotifyOnStartup bool `yaml:"notify_on_startup" json:"notify_on_startup"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API and websocket.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Timezone is the IANA zone event times are expressed in.
	Timezone string `yaml:"timezone" json:"timezone"`

	API      APIConfig      `yaml:"api" json:"api"`
	Database DatabaseConfig `yaml:"database" json:"database"`

	// PreferencesPath is the YAML file holding user preference flags.
	PreferencesPath string `yaml:"preferences_path" json:"preferences_path"`

	// Workers bounds concurrent remote requests.
	Workers int `yaml:"workers" json:"workers"`

	// LatestOnly drops superseded fetch results instead of letting the
	// last-completed request win.
	LatestOnly bool `yaml:"latest_only" json:"latest_only"`

	// SerializeToggles runs concurrent favorite toggles of one event in turn.
	SerializeToggles bool `yaml:"serialize_toggles" json:"serialize_toggles"`

	Reminder      ReminderConfig      `yaml:"reminder" json:"reminder"`
	Notifications NotificationsConfig `yaml:"notifications" json:"notifications"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:   "127.0.0.1:8080",
		LogLevel: "info",
		Timezone: "Asia/Jakarta",
		API: APIConfig{
			BaseURL: "https://event-api.dicoding.dev/",
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "file:dicodingevent.db?_pragma=busy_timeout(5000)",
		},
		PreferencesPath: "preferences.yaml",
		Workers:         4,
		Reminder: ReminderConfig{
			Name:         "daily_reminder",
			Interval:     24 * time.Hour,
			InitialDelay: time.Hour,
		},
		Notifications: NotificationsConfig{
			PermissionGranted: true,
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
		c.LogLevel = strings.ToLower(c.LogLevel)
	default:
		// Unknown value; fall back to info.
		c.LogLevel = def.LogLevel
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = def.API.BaseURL
	}
	if c.API.Timeout < 0 {
		c.API.Timeout = def.API.Timeout
	}
	if c.Database.Driver == "" {
		c.Database.Driver = def.Database.Driver
	}
	if c.Database.DSN == "" {
		c.Database.DSN = def.Database.DSN
	}
	if c.PreferencesPath == "" {
		c.PreferencesPath = def.PreferencesPath
	}
	if c.Workers <= 0 {
		c.Workers = def.Workers
	}
	if c.Reminder.Name == "" {
		c.Reminder.Name = def.Reminder.Name
	}
	if c.Reminder.Interval <= 0 {
		c.Reminder.Interval = def.Reminder.Interval
	}
	if c.Reminder.InitialDelay < 0 {
		c.Reminder.InitialDelay = def.Reminder.InitialDelay
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" {
		c.BasicAuth = nil
	}
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Warn("config: unknown timezone, using UTC", "timezone", c.Timezone)
		return time.UTC
	}
	return loc
}

// Environment variables that override file values.
const (
	EnvListen   = "DICODING_LISTEN"
	EnvBaseURL  = "DICODING_BASE_URL"
	EnvDBDriver = "DICODING_DB_DRIVER"
	EnvDBDSN    = "DICODING_DB_DSN"
	EnvLogLevel = "DICODING_LOG_LEVEL"
)

// ApplyEnv loads .env files (if any; a missing file is fine) and applies
// DICODING_* overrides.
func (c *Config) ApplyEnv(envFiles ...string) error {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	for env, dst := range map[string]*string{
		EnvListen:   &c.Listen,
		EnvBaseURL:  &c.API.BaseURL,
		EnvDBDriver: &c.Database.Driver,
		EnvDBDSN:    &c.Database.DSN,
		EnvLogLevel: &c.LogLevel,
	} {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			*dst = v
			appLog.Debug("config: env override", "key", env)
		}
	}
	c.Normalize()
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path atomically with
// 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0o600)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
