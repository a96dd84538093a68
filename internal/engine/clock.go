package engine

import "time"

// Clock supplies wall time for rebuild timestamps and lease expiry.
//
// Ordering inside a rebuild never uses wall time: RebuildState.Seq is a
// logical counter bumped once per executed or skipped step call.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the system time in UTC.
type SystemClock struct{}

// Now returns the current time in UTC.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time {
	return f()
}
