// Package logging builds the structured logger shared by the relay.
package logging

import (
	"fmt"
	"io"
	"sync"

	"cdr.dev/slog/v3"
	"cdr.dev/slog/v3/sloggers/sloghuman"
	"cdr.dev/slog/v3/sloggers/slogjson"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/runnerr0/visitrelay/internal/config"
)

// ParseLevel maps a config level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch name {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

func sinkFor(format string) (func(io.Writer) slog.Sink, error) {
	switch format {
	case "", "human":
		return sloghuman.Sink, nil
	case "json":
		return slogjson.Sink, nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// New returns a logger writing to w and, when cfg.File is set, to a
// size-rotated file. The returned func closes the file.
func New(cfg config.LoggingConfig, w io.Writer) (slog.Logger, func(), error) {
	noopClose := func() {}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return slog.Logger{}, noopClose, err
	}
	sinkFn, err := sinkFor(cfg.Format)
	if err != nil {
		return slog.Logger{}, noopClose, err
	}

	sinks := []slog.Sink{sinkFn(w)}
	closeLog := noopClose
	if cfg.File != "" {
		path, err := config.ExpandPath(cfg.File)
		if err != nil {
			return slog.Logger{}, noopClose, fmt.Errorf("resolving log file: %w", err)
		}
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 5
		}
		fileWriter := &closeOnceWriter{w: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxSize,
			MaxBackups: 1,
		}}
		sinks = append(sinks, sinkFn(fileWriter))
		closeLog = func() { _ = fileWriter.Close() }
	}

	return slog.Make(sinks...).Leveled(level), closeLog, nil
}

// closeOnceWriter drops writes after Close. lumberjack re-opens its file on
// every Write, so a late log line would otherwise resurrect it.
type closeOnceWriter struct {
	w io.WriteCloser

	mu     sync.Mutex
	closed bool
}

func (c *closeOnceWriter) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, io.ErrClosedPipe
	}
	return c.w.Write(p)
}

func (c *closeOnceWriter) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.w.Close()
}
