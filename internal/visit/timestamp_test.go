package visit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatter_LocalOffset(t *testing.T) {
	f := NewFormatterIn(time.FixedZone("EDT", -4*3600))
	ts := time.Date(2025, 9, 12, 0, 44, 27, 0, time.UTC)
	assert.Equal(t, "2025-09-11T20:44:27-04:00", f.Format(ts))
}

func TestFormatter_PositiveOffset(t *testing.T) {
	f := NewFormatterIn(time.FixedZone("IST", 5*3600+30*60))
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-01-01T05:30:00+05:30", f.Format(ts))
}

func TestFormatter_UTC(t *testing.T) {
	f, err := NewFormatter(ZoneUTC)
	require.NoError(t, err)
	ts := time.Date(2025, 9, 11, 20, 44, 27, 999, time.FixedZone("x", 3600))
	assert.Equal(t, "2025-09-11T19:44:27Z", f.Format(ts))
}

func TestNewFormatter_UnknownZone(t *testing.T) {
	_, err := NewFormatter("mars")
	assert.Error(t, err)
}

func TestNewEntry(t *testing.T) {
	f, err := NewFormatter(ZoneUTC)
	require.NoError(t, err)
	ts := time.Date(2025, 9, 11, 20, 44, 27, 0, time.UTC)

	e1 := NewEntry("example.com", ts, f)
	e2 := NewEntry("example.com", ts, f)

	assert.Equal(t, "example.com", e1.Hostname)
	assert.Equal(t, "2025-09-11T20:44:27Z", e1.Timestamp)
	assert.Equal(t, ts.UnixMilli(), e1.CapturedAtMillis)
	assert.True(t, e1.CapturedAt().Equal(ts))
	assert.NotEmpty(t, e1.ID)
	assert.NotEqual(t, e1.ID, e2.ID, "entry IDs should be unique")
}
