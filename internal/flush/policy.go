package flush

import "time"

// DefaultMaxAge is how long buffered visits may wait before they are due.
const DefaultMaxAge = 24 * time.Hour

// SameUTCDay reports whether lastSentMillis and now fall on the same UTC
// calendar day. A zero lastSentMillis means never sent and is never the same
// day.
func SameUTCDay(lastSentMillis int64, now time.Time) bool {
	if lastSentMillis == 0 {
		return false
	}
	ly, lm, ld := time.UnixMilli(lastSentMillis).UTC().Date()
	ny, nm, nd := now.UTC().Date()
	return ly == ny && lm == nm && ld == nd
}

// Due reports whether an unforced evaluation at now should send: more than
// maxAge has elapsed since the last send, or the UTC day has changed.
func Due(lastSentMillis int64, now time.Time, maxAge time.Duration) bool {
	elapsed := now.Sub(time.UnixMilli(lastSentMillis))
	return elapsed > maxAge || !SameUTCDay(lastSentMillis, now)
}
