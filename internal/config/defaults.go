package config

import "github.com/runnerr0/visitrelay/internal/storage"

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Endpoint: EndpointConfig{
			URL:            "https://tracker.example.com/prod/users/me/entries",
			Username:       "me",
			EventPrefix:    "personalLaptopUse",
			TimeoutSeconds: 30,
		},
		Schedule: ScheduleConfig{
			CheckIntervalMinutes: 60,
			MaxAgeHours:          24,
		},
		Timestamps: TimestampsConfig{
			Zone: "local",
		},
		Storage: StorageConfig{
			Driver:      storage.DriverSQLite,
			Path:        DefaultDataDir(),
			SQLiteFile:  "visitrelay.db",
			RedisAddr:   "127.0.0.1:6379",
			RedisDB:     0,
			RedisPrefix: "visitrelay:",
		},
		Panel: PanelConfig{
			Host:           "127.0.0.1",
			Port:           8722,
			MaxRequestSize: 1 << 20,
			AllowedOrigins: []string{
				"chrome-extension://*",
				"moz-extension://*",
			},
			RateLimitPerMinute: 600,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Format:    "human",
			MaxSizeMB: 5,
		},
	}
}
