package config

import (
	"net/url"

	"github.com/runnerr0/visitrelay/internal/storage"
	"github.com/runnerr0/visitrelay/internal/visit"
)

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Endpoint.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrNoEndpoint
	}
	if c.Endpoint.EventPrefix == "" {
		return ErrNoEventPrefix
	}
	if c.Endpoint.TimeoutSeconds <= 0 {
		return ErrInvalidTimeout
	}
	if c.Schedule.CheckIntervalMinutes <= 0 || c.Schedule.MaxAgeHours <= 0 {
		return ErrInvalidInterval
	}

	switch c.Timestamps.Zone {
	case visit.ZoneLocal, visit.ZoneUTC:
	default:
		return ErrInvalidTimestampZone
	}

	switch c.Storage.Driver {
	case storage.DriverSQLite, storage.DriverRedis:
	default:
		return ErrUnknownStorageDriver
	}

	if c.Panel.Port <= 0 || c.Panel.Port > 65535 {
		return ErrInvalidPort
	}
	if c.Panel.MaxRequestSize <= 0 || c.Panel.RateLimitPerMinute < 0 {
		return ErrInvalidPanelLimits
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	switch c.Logging.Format {
	case "human", "json":
	default:
		return ErrInvalidLogFormat
	}

	return nil
}
