package domain

import "time"

// Clock provides the current time. The registry stamps endpoints with it;
// tests inject a deterministic implementation.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system clock.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time {
	return time.Now()
}

// UnixMillis returns t as UTC milliseconds since epoch, the unit used for
// every timestamp leaving the process.
func UnixMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

var _ Clock = RealClock{}
