// Package config loads the bridge configuration from YAML with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or bare second counts.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if dur, err := time.ParseDuration(s); err == nil {
		*d = Duration(dur)
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		*d = Duration(time.Duration(n) * time.Second)
		return nil
	}
	return fmt.Errorf("invalid duration: %q", s)
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// KodBoxConfig holds the upstream KodBox connection settings.
type KodBoxConfig struct {
	// BaseURL is the root URL of the KodBox instance.
	BaseURL string `yaml:"base_url"`
	// Username and Password are exchanged for an access token at startup.
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// Timeout bounds every upstream HTTP request.
	Timeout Duration `yaml:"timeout"`
}

// CalDAVConfig holds the credentials CalDAV clients authenticate with.
type CalDAVConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Realm    string `yaml:"realm"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	// Listen is the address the HTTP server binds to.
	Listen string `yaml:"listen"`
}

// SyncConfig controls the background sync engine.
type SyncConfig struct {
	// Interval is the delay between sync cycles.
	Interval Duration `yaml:"interval"`
	// MaxRetries is the number of attempts per upstream fetch before the
	// cycle gives up.
	MaxRetries int `yaml:"max_retries"`
	// RetryDelay is the base backoff delay; it doubles per attempt.
	RetryDelay Duration `yaml:"retry_delay"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`
}

// Config is the top-level application configuration.
type Config struct {
	KodBox  KodBoxConfig  `yaml:"kodbox"`
	CalDAV  CalDAVConfig  `yaml:"caldav"`
	Server  ServerConfig  `yaml:"server"`
	Sync    SyncConfig    `yaml:"sync"`
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.KodBox.Timeout <= 0 {
		c.KodBox.Timeout = Duration(30 * time.Second)
	}
	if c.CalDAV.Username == "" {
		c.CalDAV.Username = "kodbox"
	}
	if c.CalDAV.Password == "" {
		c.CalDAV.Password = "calendar123"
	}
	if c.CalDAV.Realm == "" {
		c.CalDAV.Realm = "KodBox CalDAV Bridge"
	}
	if c.Server.Listen == "" {
		c.Server.Listen = "0.0.0.0:5082"
	}
	if c.Sync.Interval <= 0 {
		c.Sync.Interval = Duration(5 * time.Minute)
	}
	if c.Sync.MaxRetries <= 0 {
		c.Sync.MaxRetries = 3
	}
	if c.Sync.RetryDelay <= 0 {
		c.Sync.RetryDelay = Duration(time.Minute)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		c.Logging.Level = "info"
	}
}

// Validate reports configuration errors that cannot be defaulted away.
func (c *Config) Validate() error {
	if c.KodBox.BaseURL == "" {
		return errors.New("kodbox.base_url is required")
	}
	u, err := url.Parse(c.KodBox.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid kodbox.base_url: %s", c.KodBox.BaseURL)
	}
	if c.KodBox.Username == "" || c.KodBox.Password == "" {
		return errors.New("kodbox.username and kodbox.password are required")
	}
	return nil
}

// Load reads configuration from the given YAML path, applies environment
// overrides, and normalizes defaults. An empty path skips the file and
// uses environment variables alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables when set.
func (c *Config) applyEnv() {
	setString(&c.KodBox.BaseURL, "KODBOX_BASE_URL")
	setString(&c.KodBox.Username, "KODBOX_USERNAME")
	setString(&c.KodBox.Password, "KODBOX_PASSWORD")
	setDuration(&c.KodBox.Timeout, "KODBOX_TIMEOUT")

	setString(&c.CalDAV.Username, "CALDAV_USERNAME")
	setString(&c.CalDAV.Password, "CALDAV_PASSWORD")
	setString(&c.CalDAV.Realm, "CALDAV_REALM")

	setString(&c.Server.Listen, "SERVER_LISTEN")

	setDuration(&c.Sync.Interval, "SYNC_INTERVAL")
	setInt(&c.Sync.MaxRetries, "SYNC_MAX_RETRIES")
	setDuration(&c.Sync.RetryDelay, "SYNC_RETRY_DELAY")

	setString(&c.Logging.Level, "LOG_LEVEL")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// setDuration accepts Go duration strings and bare second counts.
func setDuration(dst *Duration, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = Duration(d)
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = Duration(time.Duration(n) * time.Second)
	}
}
