// Package clock hides time.Now behind an interface so flows that reason about
// expiry and windows can run against a deterministic clock in tests.
package clock

import "time"

// Clocker supplies the current time.
type Clocker interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// New returns a Clocker backed by time.Now.
func New() *SystemClock {
	return &SystemClock{}
}

// Now returns the current system time.
func (*SystemClock) Now() time.Time {
	return time.Now()
}
