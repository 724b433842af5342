package agent

import "time"

// Timer is the resettable trailing-edge timer behind the debounce. Reset and
// Stop mirror time.Timer semantics.
type Timer interface {
	Reset(d time.Duration) bool
	Stop() bool
}

// Clock abstracts wall-clock reads and timer creation so the debounce state
// machine is deterministic under test.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

// SystemClock is the production Clock backed by the time package.
var SystemClock Clock = systemClock{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
