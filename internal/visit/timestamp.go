package visit

import (
	"fmt"
	"time"
)

// Zone names accepted by NewFormatter.
const (
	ZoneLocal = "local"
	ZoneUTC   = "utc"
)

// localLayout renders wall-clock time with a numeric offset, e.g.
// 2025-09-11T20:44:27-04:00.
const localLayout = "2006-01-02T15:04:05-07:00"

// Formatter renders capture times as stable, second-precision strings.
type Formatter struct {
	loc    *time.Location
	layout string
}

// NewFormatter returns a Formatter for the named zone. "local" keeps the
// process time zone and prints its offset; "utc" prints RFC 3339 with a Z
// marker.
func NewFormatter(zone string) (*Formatter, error) {
	switch zone {
	case "", ZoneLocal:
		return &Formatter{loc: time.Local, layout: localLayout}, nil
	case ZoneUTC:
		return &Formatter{loc: time.UTC, layout: time.RFC3339}, nil
	default:
		return nil, fmt.Errorf("unknown timestamp zone %q", zone)
	}
}

// NewFormatterIn returns a Formatter that prints offsets for loc.
func NewFormatterIn(loc *time.Location) *Formatter {
	return &Formatter{loc: loc, layout: localLayout}
}

// Format renders t.
func (f *Formatter) Format(t time.Time) string {
	return t.In(f.loc).Format(f.layout)
}
