package sync

import "time"

// Scheduler abstracts deferred execution so the engine never reaches
// for environment timer APIs directly and tests can drive time by hand.
type Scheduler interface {
	// AfterFunc runs f once after d elapses and returns a cancel
	// function. Cancelling after the function has fired is a no-op.
	AfterFunc(d time.Duration, f func()) (cancel func())
}

// clockScheduler schedules on the process clock.
type clockScheduler struct{}

// NewScheduler returns the process-clock Scheduler.
func NewScheduler() Scheduler {
	return clockScheduler{}
}

func (clockScheduler) AfterFunc(d time.Duration, f func()) func() {
	t := time.AfterFunc(d, f)
	return func() { t.Stop() }
}
