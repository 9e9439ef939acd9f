package cli

import "io"

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:""`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// ServeCommand runs the relay daemon with its panel API.
type ServeCommand struct {
	Port     int    `long:"port" description:"Override panel port"`
	LogLevel string `long:"log-level" description:"Override log level"`

	globals *GlobalFlags
	version string
}

// SendCommand forces a send of buffered visits.
type SendCommand struct {
	Local bool `long:"local" description:"Send from this process even when the daemon is running"`

	globals *GlobalFlags
	version string
}

// StatusCommand shows the buffer, last send and settings.
type StatusCommand struct {
	globals *GlobalFlags
	version string
}

// ListCommand prints buffered visits.
type ListCommand struct {
	Hostname []string `long:"hostname" description:"Filter by hostname (repeatable)"`
	Limit    int      `long:"limit" description:"Maximum results, 0 for all" default:"50"`

	globals *GlobalFlags
	version string
}

// RecordCommand records one navigation as if the browser had reported it.
type RecordCommand struct {
	URL string `long:"url" description:"URL to record (required)"`

	globals *GlobalFlags
	version string
}

// AllowlistCommand shows or edits the hostname allowlist.
type AllowlistCommand struct {
	Enable  bool     `long:"enable" description:"Only record allowlisted hostnames"`
	Disable bool     `long:"disable" description:"Record every hostname"`
	Add     []string `long:"add" description:"Add a hostname (repeatable)"`
	Remove  []string `long:"remove" description:"Remove a hostname (repeatable)"`

	globals *GlobalFlags
	version string
}

// LiveCommand shows or toggles live mode.
type LiveCommand struct {
	On  bool `long:"on" description:"Send every recorded visit immediately"`
	Off bool `long:"off" description:"Send on the timer only"`

	globals *GlobalFlags
	version string
}

// PurgeCommand drops all buffered visits with safety confirmation.
type PurgeCommand struct {
	All   bool `long:"all" description:"Required flag to confirm purge intent"`
	Force bool `long:"force" description:"Skip safety confirmation prompt"`

	globals *GlobalFlags
	version string
	stdin   io.Reader // injectable for testing; nil means os.Stdin
}
