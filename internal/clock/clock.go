// Package clock provides the timer service used by trials. Real wraps the
// runtime timers and Manual is a deterministic clock for tests.
package clock

import "time"

// Timer is a scheduled callback that can be cancelled. Stop is idempotent and
// reports whether the call prevented the callback from running.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks and reports the current monotonic time.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is the Clock backed by the runtime timers.
var Real Clock = realClock{}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
