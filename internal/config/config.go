package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions. Environment variables with the CONFSCHED_ prefix override
// file values after loading.

const envPrefix = "CONFSCHED"

// Notification backends.
const (
	NotifyDBus = "dbus"
	NotifyLog  = "log"
)

// StorageConfig controls the local SQLite database.
type StorageConfig struct {
	// MaxBytes caps the database size. Writes beyond it fail with a
	// storage-quota error. Zero means unbounded.
	MaxBytes int64 `yaml:"max_bytes" json:"max_bytes"`
}

// RefreshConfig controls fetching and periodic re-fetching of schedules.
type RefreshConfig struct {
	// IntervalMinutes is the auto-refresh period. nil disables auto-refresh.
	// Values below 1 are raised to 1.
	IntervalMinutes *int `yaml:"interval_minutes" json:"interval_minutes"`

	// Retries is the number of additional attempts for transient fetch failures.
	Retries int `yaml:"retries" json:"retries"`

	// Timeout bounds a single HTTP request.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// RemindersConfig tunes the background reminder poller.
type RemindersConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	GraceWindow  time.Duration `yaml:"grace_window" json:"grace_window"`
	Retention    time.Duration `yaml:"retention" json:"retention"`
}

// NotificationsConfig selects how reminders are delivered.
type NotificationsConfig struct {
	// Backend is "dbus" (desktop notifications) or "log" (headless hosts).
	Backend string `yaml:"backend" json:"backend"`
}

// BasicAuthConfig protects the HTTP API. Both fields must be set for it to
// take effect.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the JSON API.
	Listen string `yaml:"listen" json:"listen" envconfig:"LISTEN"`

	// DataDir holds the SQLite database and the feed HTTP cache.
	DataDir string `yaml:"data_dir" json:"data_dir" envconfig:"DATA_DIR"`

	// LogLevel is one of debug, info, error.
	LogLevel string `yaml:"log_level" json:"log_level" envconfig:"LOG_LEVEL"`

	Storage       StorageConfig       `yaml:"storage" json:"storage" ignored:"true"`
	Refresh       RefreshConfig       `yaml:"refresh" json:"refresh" ignored:"true"`
	Reminders     RemindersConfig     `yaml:"reminders" json:"reminders" ignored:"true"`
	Notifications NotificationsConfig `yaml:"notifications" json:"notifications" ignored:"true"`

	// BasicAuth is optional. /health is never protected.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty" ignored:"true"`
}

// envOverrides mirrors the nested settings that can be set from the
// environment. Zero values leave the file value untouched.
type envOverrides struct {
	StorageMaxBytes      int64  `envconfig:"STORAGE_MAX_BYTES"`
	NotificationsBackend string `envconfig:"NOTIFICATIONS_BACKEND"`
	RefreshMinutes       *int   `envconfig:"REFRESH_MINUTES"`
	BasicAuthUsername    string `envconfig:"BASIC_AUTH_USERNAME"`
	BasicAuthPassword    string `envconfig:"BASIC_AUTH_PASSWORD"`
}

// DefaultDataDir returns $XDG_DATA_HOME/confsched or ~/.local/share/confsched.
func DefaultDataDir() string {
	if d := os.Getenv("XDG_DATA_HOME"); d != "" {
		return filepath.Join(d, "confsched")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "confsched")
	}
	return "./var/confsched"
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	if d, err := os.UserConfigDir(); err == nil {
		return filepath.Join(d, "confsched", "config.yaml")
	}
	return "./confsched.yaml"
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	mins := 10
	return &Config{
		Listen:   "127.0.0.1:8080",
		DataDir:  DefaultDataDir(),
		LogLevel: "info",
		Refresh: RefreshConfig{
			IntervalMinutes: &mins,
			Retries:         2,
			Timeout:         15 * time.Second,
		},
		Reminders: RemindersConfig{
			PollInterval: 30 * time.Second,
			GraceWindow:  2 * time.Minute,
			Retention:    time.Hour,
		},
		Notifications: NotificationsConfig{Backend: NotifyDBus},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Storage.MaxBytes < 0 {
		c.Storage.MaxBytes = 0
	}

	// A nil interval is a deliberate "off"; only clamp set values.
	if c.Refresh.IntervalMinutes != nil && *c.Refresh.IntervalMinutes < 1 {
		one := 1
		c.Refresh.IntervalMinutes = &one
	}
	if c.Refresh.Retries < 0 {
		c.Refresh.Retries = 0
	}
	if c.Refresh.Timeout <= 0 {
		c.Refresh.Timeout = def.Refresh.Timeout
	}

	if c.Reminders.PollInterval <= 0 {
		c.Reminders.PollInterval = def.Reminders.PollInterval
	}
	if c.Reminders.GraceWindow <= 0 {
		c.Reminders.GraceWindow = def.Reminders.GraceWindow
	}
	if c.Reminders.Retention <= 0 {
		c.Reminders.Retention = def.Reminders.Retention
	}

	switch c.Notifications.Backend {
	case NotifyDBus, NotifyLog:
		// ok
	default:
		// Unknown value; desktop notifications are the expected default.
		c.Notifications.Backend = NotifyDBus
	}
}

// DatabasePath is the SQLite file under DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "confsched.db")
}

// FeedCacheDir is the HTTP cache directory under DataDir.
func (c *Config) FeedCacheDir() string {
	return filepath.Join(c.DataDir, "feed-cache")
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//   - In both cases CONFSCHED_* environment variables are applied last.
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
			return cfg, applyEnv(cfg)
		}
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, applyEnv(cfg)
}

// Parse decodes YAML into a normalized Config without touching the
// environment.
func Parse(data []byte) (*Config, error) {
	// Start from defaults so omitted sections keep their default values.
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Normalize()
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return fmt.Errorf("config env: %w", err)
	}

	var ov envOverrides
	if err := envconfig.Process(envPrefix, &ov); err != nil {
		return fmt.Errorf("config env: %w", err)
	}
	if ov.StorageMaxBytes > 0 {
		cfg.Storage.MaxBytes = ov.StorageMaxBytes
	}
	if ov.NotificationsBackend != "" {
		cfg.Notifications.Backend = ov.NotificationsBackend
	}
	if ov.BasicAuthUsername != "" || ov.BasicAuthPassword != "" {
		if cfg.BasicAuth == nil {
			cfg.BasicAuth = &BasicAuthConfig{}
		}
		if ov.BasicAuthUsername != "" {
			cfg.BasicAuth.Username = ov.BasicAuthUsername
		}
		if ov.BasicAuthPassword != "" {
			cfg.BasicAuth.Password = ov.BasicAuthPassword
		}
	}
	if ov.RefreshMinutes != nil {
		if *ov.RefreshMinutes <= 0 {
			cfg.Refresh.IntervalMinutes = nil
		} else {
			cfg.Refresh.IntervalMinutes = ov.RefreshMinutes
		}
	}
	cfg.Normalize()
	return nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
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
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data to path through a temp file in the same
// directory, then renames it over path with 0600 permissions.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".confsched-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
