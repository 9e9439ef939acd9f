package visit

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Entry is one buffered visit. Entries are immutable once created.
type Entry struct {
	ID               string `json:"id"`
	Hostname         string `json:"hostname"`
	Timestamp        string `json:"timestamp"`
	CapturedAtMillis int64  `json:"captured_at_ms"`
}

// NewEntry builds an Entry for hostname captured at t.
func NewEntry(hostname string, t time.Time, f *Formatter) Entry {
	return Entry{
		ID:               ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String(),
		Hostname:         hostname,
		Timestamp:        f.Format(t),
		CapturedAtMillis: t.UnixMilli(),
	}
}

// CapturedAt returns the capture time as a time.Time.
func (e Entry) CapturedAt() time.Time {
	return time.UnixMilli(e.CapturedAtMillis)
}
