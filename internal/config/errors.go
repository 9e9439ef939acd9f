package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoEndpoint is returned when the endpoint URL is empty or not HTTP(S).
	ErrNoEndpoint = errors.New("invalid endpoint: url must be an http or https URL")

	// ErrNoEventPrefix is returned when the event name prefix is empty.
	ErrNoEventPrefix = errors.New("invalid endpoint: event_prefix must not be empty")

	// ErrInvalidTimeout is returned when the send timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidInterval is returned when the check interval or max age is
	// not positive.
	ErrInvalidInterval = errors.New("invalid schedule: interval and max age must be positive")

	// ErrInvalidTimestampZone is returned for a zone other than local or utc.
	ErrInvalidTimestampZone = errors.New("invalid timestamps zone: must be local or utc")

	// ErrUnknownStorageDriver is returned for a driver other than sqlite or redis.
	ErrUnknownStorageDriver = errors.New("invalid storage driver: must be sqlite or redis")

	// ErrInvalidPort is returned when the panel port is out of range.
	ErrInvalidPort = errors.New("invalid panel port: must be between 1 and 65535")

	// ErrInvalidPanelLimits is returned when the request size limit is not
	// positive or the rate limit is negative.
	ErrInvalidPanelLimits = errors.New("invalid panel limits: max_request_size must be positive and rate_limit_per_minute not negative")

	// ErrInvalidLogLevel is returned for an unrecognised logging level.
	ErrInvalidLogLevel = errors.New("invalid logging level: must be debug, info, warn or error")

	// ErrInvalidLogFormat is returned for a format other than human or json.
	ErrInvalidLogFormat = errors.New("invalid logging format: must be human or json")
)
