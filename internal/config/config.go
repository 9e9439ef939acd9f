package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// appName names the XDG subdirectories used for config and data.
const appName = "visitrelay"

// DefaultConfigPath returns $XDG_CONFIG_HOME/visitrelay/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

// DefaultDataDir returns $XDG_DATA_HOME/visitrelay.
func DefaultDataDir() string {
	return filepath.Join(xdg.DataHome, appName)
}

// Config holds all relay configuration.
type Config struct {
	Endpoint   EndpointConfig   `yaml:"endpoint"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Timestamps TimestampsConfig `yaml:"timestamps"`
	Storage    StorageConfig    `yaml:"storage"`
	Panel      PanelConfig      `yaml:"panel"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type EndpointConfig struct {
	URL            string `yaml:"url"`
	Username       string `yaml:"username"`
	EventPrefix    string `yaml:"event_prefix"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type ScheduleConfig struct {
	CheckIntervalMinutes int `yaml:"check_interval_minutes"`
	MaxAgeHours          int `yaml:"max_age_hours"`
}

type TimestampsConfig struct {
	Zone string `yaml:"zone"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"`
	Path        string `yaml:"path"`
	SQLiteFile  string `yaml:"sqlite_file"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisDB     int    `yaml:"redis_db"`
	RedisPrefix string `yaml:"redis_prefix"`
}

type PanelConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	MaxRequestSize int64    `yaml:"max_request_size"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// RateLimitPerMinute caps event posts per client IP. 0 disables it.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File, when set, receives a rotated copy of the log.
	File      string `yaml:"file"`
	MaxSizeMB int    `yaml:"max_size_mb"`
}

// CheckInterval is the period of the recurring flush check.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Schedule.CheckIntervalMinutes) * time.Minute
}

// MaxAge is the elapsed time after which buffered visits are due.
func (c *Config) MaxAge() time.Duration {
	return time.Duration(c.Schedule.MaxAgeHours) * time.Hour
}

// SendTimeout bounds a single outbound request.
func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.Endpoint.TimeoutSeconds) * time.Second
}

// PanelAddr is the listen address of the panel server.
func (c *Config) PanelAddr() string {
	return fmt.Sprintf("%s:%d", c.Panel.Host, c.Panel.Port)
}

// Load reads a YAML config file at path from the OS filesystem and merges it
// with defaults.
func Load(path string) (*Config, error) {
	return LoadFrom(afero.NewOsFs(), path)
}

// LoadFrom reads a YAML config file at path from fsys and merges it with
// defaults. Returns an error if the file cannot be read, contains invalid
// YAML, or fails validation.
func LoadFrom(fsys afero.Fs, path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config file: %w", err)
	}

	return cfg, nil
}

// LoadOrCreate loads the config from the default path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreate() (*Config, error) {
	return LoadOrCreateAt(afero.NewOsFs(), DefaultConfigPath())
}

// LoadOrCreateAt loads the config from the given path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreateAt(fsys afero.Fs, path string) (*Config, error) {
	exists, err := afero.Exists(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("checking config file: %w", err)
	}
	if exists {
		return LoadFrom(fsys, path)
	}

	cfg := DefaultConfig()

	if err := fsys.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshaling default config: %w", err)
	}

	if err := afero.WriteFile(fsys, path, data, 0644); err != nil {
		return nil, fmt.Errorf("writing default config: %w", err)
	}

	return cfg, nil
}

// ExpandPath replaces a leading ~ with the user's home directory.
func ExpandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
