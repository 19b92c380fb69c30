package hub

import "time"

// Timer is a handle to one scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. The hub never relies on f running on any
// particular goroutine: callbacks only post back to the event loop.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealScheduler is backed by time.AfterFunc.
var RealScheduler Scheduler = realScheduler{}
