package hub

import (
	"time"

	"hotreload/pkg/types"
)

// Coalescer accumulates pending modes and owns the single debounce timer.
// It is not safe for concurrent use; the hub calls it only from the event
// loop.
// FUNCTIONAL DISCOVERY: The window grows with every enqueue, duplicates
// included, so burst intensity rather than distinct mode count drives the
// backoff
type Coalescer struct {
	base time.Duration
	max  time.Duration

	sched Scheduler
	fire  func(generation uint64)

	pending map[types.Mode]struct{}
	order   []types.Mode

	timer      Timer
	window     time.Duration
	generation uint64
}

// NewCoalescer creates a coalescer. fire is called from the scheduler's
// goroutine with the generation of the timer that expired.
func NewCoalescer(base, max time.Duration, sched Scheduler, fire func(generation uint64)) (*Coalescer, error) {
	if base <= 0 || max < base {
		return nil, ErrInvalidWindow
	}
	if sched == nil {
		sched = RealScheduler
	}
	return &Coalescer{
		base:    base,
		max:     max,
		sched:   sched,
		fire:    fire,
		pending: make(map[types.Mode]struct{}),
	}, nil
}

// Add records mode and reschedules the flush. It returns the new window.
func (c *Coalescer) Add(mode types.Mode) time.Duration {
	if _, exists := c.pending[mode]; !exists {
		c.pending[mode] = struct{}{}
		c.order = append(c.order, mode)
	}

	if c.timer == nil {
		c.window = c.base
	} else {
		c.timer.Stop()
		c.window = min(c.window*2, c.max)
	}

	c.generation++
	generation := c.generation
	c.timer = c.sched.AfterFunc(c.window, func() { c.fire(generation) })
	return c.window
}

// Current reports whether generation belongs to the outstanding timer.
func (c *Coalescer) Current(generation uint64) bool {
	return c.timer != nil && generation == c.generation
}

// Drain returns the pending modes in first-enqueue order together with the
// window that expired, and resets the coalescer for the next burst.
func (c *Coalescer) Drain() ([]types.Mode, time.Duration) {
	modes, window := c.order, c.window

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = nil
	c.window = 0
	c.order = nil
	c.pending = make(map[types.Mode]struct{})
	return modes, window
}

// Pending returns the number of distinct modes waiting for a flush.
func (c *Coalescer) Pending() int {
	return len(c.order)
}

// Window returns the window of the outstanding timer, or zero when idle.
func (c *Coalescer) Window() time.Duration {
	return c.window
}

// Cancel stops the outstanding timer without flushing. Pending modes are
// kept; the next Add schedules them at the base window.
func (c *Coalescer) Cancel() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = nil
	c.window = 0
	c.generation++
}
