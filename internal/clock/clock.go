// Package clock abstracts time for the polling loops so strategies can be
// driven deterministically in tests. All loops sleep through SleepUntilNext,
// which also runs opportunistic side-tasks (snapshot recording) and honors
// interrupt conditions between sub-sleeps.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time and timed sleeps.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Real is the wall clock.
type Real struct{}

func (Real) Now() time.Time        { return time.Now() }
func (Real) Sleep(d time.Duration) { time.Sleep(d) }

// Options tune a SleepUntilNext call.
type Options struct {
	// Tasks run opportunistically at every interrupt-check boundary.
	Tasks []func()
	// Interrupt ends the sleep early when it returns true.
	Interrupt func() bool
	// CheckInterval bounds how long the sleep goes without checking the
	// interrupt condition. Defaults to min(1s, interval).
	CheckInterval time.Duration
}

// SleepUntilNext sleeps until the next action time (now + interval, capped at
// the deadline), waking at the check interval to run side-tasks and test the
// interrupt condition. It returns true if it was interrupted.
func SleepUntilNext(c Clock, interval time.Duration, deadline time.Time, opts Options) bool {
	now := c.Now()
	next := now.Add(interval)
	if next.After(deadline) {
		next = deadline
	}

	check := opts.CheckInterval
	if check <= 0 {
		check = time.Second
		if interval < check {
			check = interval
		}
	}

	for now.Before(next) {
		wake := now.Add(check)
		if wake.After(next) {
			wake = next
		}
		if d := wake.Sub(now); d > 0 {
			c.Sleep(d)
		}
		if opts.Interrupt != nil && opts.Interrupt() {
			return true
		}
		for _, task := range opts.Tasks {
			task()
		}
		now = c.Now()
	}
	return false
}

// PeriodicTask wraps a function so that repeated calls only execute it once
// per minimum interval. Used to drive best-effort snapshot recording from
// inside sleep loops without a dedicated goroutine.
func PeriodicTask(c Clock, minInterval time.Duration, fn func()) func() {
	var lastRun time.Time
	return func() {
		now := c.Now()
		if lastRun.IsZero() || now.Sub(lastRun) >= minInterval {
			lastRun = now
			fn()
		}
	}
}

// Manual is a test clock whose time only moves when Sleep is called or
// Advance is invoked. Safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a manual clock starting at the given instant.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Sleep advances the clock instead of blocking.
func (m *Manual) Sleep(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Advance moves the clock forward.
func (m *Manual) Advance(d time.Duration) {
	m.Sleep(d)
}
