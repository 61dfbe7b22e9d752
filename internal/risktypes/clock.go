package risktypes

import "time"

// Clock supplies the monotonic-ish time source used for cooldowns and
// daily resets. Tests inject a fake; production uses RealClock.
type Clock interface {
	Now() time.Time
}

// RealClock wraps time.Now.
type RealClock struct{}

// Now returns the current wall-clock time.
func (RealClock) Now() time.Time { return time.Now() }
