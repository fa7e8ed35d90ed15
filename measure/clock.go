package measure

import (
	"time"
)

// =============================================================================
// CLOCK - Timestamp source for auto-generated columns
// =============================================================================

// Clock supplies the capture timestamp when a caller does not pass one.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in local time. Workbook cells carry no
// zone, so the operator's local time is what gets written.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant. Used by tests and replays.
type FixedClock struct {
	Time time.Time
}

func (c FixedClock) Now() time.Time { return c.Time }

// TimestampOr returns ts, or clock.Now() when ts is zero.
func TimestampOr(ts time.Time, clock Clock) time.Time {
	if !ts.IsZero() {
		return ts
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return clock.Now()
}
