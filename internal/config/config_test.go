package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "https://tracker.example.com/prod/users/me/entries", cfg.Endpoint.URL)
	assert.Equal(t, "me", cfg.Endpoint.Username)
	assert.Equal(t, "personalLaptopUse", cfg.Endpoint.EventPrefix)
	assert.Equal(t, 30, cfg.Endpoint.TimeoutSeconds)
	assert.Equal(t, 60, cfg.Schedule.CheckIntervalMinutes)
	assert.Equal(t, 24, cfg.Schedule.MaxAgeHours)
	assert.Equal(t, "local", cfg.Timestamps.Zone)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, DefaultDataDir(), cfg.Storage.Path)
	assert.Equal(t, "visitrelay.db", cfg.Storage.SQLiteFile)
	assert.Equal(t, "127.0.0.1:6379", cfg.Storage.RedisAddr)
	assert.Equal(t, "visitrelay:", cfg.Storage.RedisPrefix)
	assert.Equal(t, "127.0.0.1", cfg.Panel.Host)
	assert.Equal(t, 8722, cfg.Panel.Port)
	assert.Equal(t, int64(1<<20), cfg.Panel.MaxRequestSize)
	assert.Equal(t, []string{"chrome-extension://*", "moz-extension://*"}, cfg.Panel.AllowedOrigins)
	assert.Equal(t, 600, cfg.Panel.RateLimitPerMinute)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "human", cfg.Logging.Format)
	assert.Equal(t, 5, cfg.Logging.MaxSizeMB)
	assert.Empty(t, cfg.Logging.File)

	require.NoError(t, cfg.Validate())
}

func TestDurations(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, time.Hour, cfg.CheckInterval())
	assert.Equal(t, 24*time.Hour, cfg.MaxAge())
	assert.Equal(t, 30*time.Second, cfg.SendTimeout())
	assert.Equal(t, "127.0.0.1:8722", cfg.PanelAddr())
}

func TestDefaultPathsUseAppDirectory(t *testing.T) {
	assert.Equal(t, "config.yaml", filepath.Base(DefaultConfigPath()))
	assert.Equal(t, "visitrelay", filepath.Base(filepath.Dir(DefaultConfigPath())))
	assert.Equal(t, "visitrelay", filepath.Base(DefaultDataDir()))
}

func TestLoadValidYAMLOverridesDefaults(t *testing.T) {
	fsys := afero.NewMemMapFs()
	cfgPath := "/etc/visitrelay/config.yaml"

	yamlContent := `
endpoint:
  url: "https://collector.internal/v1/entries"
  username: "laptop"
schedule:
  check_interval_minutes: 15
timestamps:
  zone: "utc"
storage:
  driver: "redis"
  redis_addr: "10.0.0.5:6379"
logging:
  level: "debug"
`
	require.NoError(t, afero.WriteFile(fsys, cfgPath, []byte(yamlContent), 0644))

	cfg, err := LoadFrom(fsys, cfgPath)
	require.NoError(t, err)

	// Overridden values
	assert.Equal(t, "https://collector.internal/v1/entries", cfg.Endpoint.URL)
	assert.Equal(t, "laptop", cfg.Endpoint.Username)
	assert.Equal(t, 15, cfg.Schedule.CheckIntervalMinutes)
	assert.Equal(t, "utc", cfg.Timestamps.Zone)
	assert.Equal(t, "redis", cfg.Storage.Driver)
	assert.Equal(t, "10.0.0.5:6379", cfg.Storage.RedisAddr)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Non-overridden values remain defaults
	assert.Equal(t, "personalLaptopUse", cfg.Endpoint.EventPrefix)
	assert.Equal(t, 24, cfg.Schedule.MaxAgeHours)
	assert.Equal(t, 8722, cfg.Panel.Port)
}

func TestLoadInvalidYAMLReturnsError(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/config.yaml", []byte(":::not valid yaml{{{"), 0644))

	_, err := LoadFrom(fsys, "/config.yaml")
	assert.Error(t, err)
}

func TestLoadNonExistentFileReturnsError(t *testing.T) {
	_, err := LoadFrom(afero.NewMemMapFs(), "/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadFromOS(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, afero.WriteFile(afero.NewOsFs(), cfgPath, []byte("panel:\n  port: 9000\n"), 0644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Panel.Port)
}

func TestLoadValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"ftp endpoint", "endpoint:\n  url: ftp://x.com/\n", ErrNoEndpoint},
		{"empty endpoint", "endpoint:\n  url: \"\"\n", ErrNoEndpoint},
		{"empty prefix", "endpoint:\n  event_prefix: \"\"\n", ErrNoEventPrefix},
		{"zero timeout", "endpoint:\n  timeout_seconds: 0\n", ErrInvalidTimeout},
		{"zero interval", "schedule:\n  check_interval_minutes: 0\n", ErrInvalidInterval},
		{"negative age", "schedule:\n  max_age_hours: -1\n", ErrInvalidInterval},
		{"bad zone", "timestamps:\n  zone: mars\n", ErrInvalidTimestampZone},
		{"bad driver", "storage:\n  driver: etcd\n", ErrUnknownStorageDriver},
		{"bad port", "panel:\n  port: 70000\n", ErrInvalidPort},
		{"zero request size", "panel:\n  max_request_size: 0\n", ErrInvalidPanelLimits},
		{"negative rate", "panel:\n  rate_limit_per_minute: -1\n", ErrInvalidPanelLimits},
		{"bad level", "logging:\n  level: loud\n", ErrInvalidLogLevel},
		{"bad format", "logging:\n  format: xml\n", ErrInvalidLogFormat},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fsys := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fsys, "/c.yaml", []byte(tc.yaml), 0644))

			_, err := LoadFrom(fsys, "/c.yaml")
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLoadOrCreateCreatesDefaultsWhenMissing(t *testing.T) {
	fsys := afero.NewMemMapFs()
	cfgPath := "/home/u/.config/sub/deep/config.yaml"

	cfg, err := LoadOrCreateAt(fsys, cfgPath)
	require.NoError(t, err)

	// Should return defaults
	assert.Equal(t, 60, cfg.Schedule.CheckIntervalMinutes)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)

	// File should now exist
	exists, err := afero.Exists(fsys, cfgPath)
	require.NoError(t, err)
	assert.True(t, exists)

	// File should be valid YAML loadable again
	cfg2, err := LoadFrom(fsys, cfgPath)
	require.NoError(t, err)
	assert.Equal(t, cfg.Endpoint, cfg2.Endpoint)
	assert.Equal(t, cfg.Storage, cfg2.Storage)
}

func TestLoadOrCreateLoadsExistingFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	cfgPath := "/config.yaml"
	require.NoError(t, afero.WriteFile(fsys, cfgPath, []byte("schedule:\n  max_age_hours: 12\n"), 0644))

	cfg, err := LoadOrCreateAt(fsys, cfgPath)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Schedule.MaxAgeHours)
	// Other fields remain defaults
	assert.Equal(t, 60, cfg.Schedule.CheckIntervalMinutes)
}

func TestExpandPath(t *testing.T) {
	p, err := ExpandPath("/abs/path")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path", p)

	p, err = ExpandPath("~/data")
	require.NoError(t, err)
	assert.NotContains(t, p, "~")
	assert.Equal(t, "data", filepath.Base(p))
}
