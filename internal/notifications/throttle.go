package notifications

import (
	"sync"
	"time"
)

// Throttle wraps a Notifier and drops INFO messages that arrive within
// Interval of the last delivered one. CRUCIAL and ERROR always pass. Used
// by the monitor loop to bound status chatter under fast polling.
type Throttle struct {
	Next     Notifier
	Interval time.Duration

	// Now is swappable for tests; nil means time.Now.
	Now func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewThrottle(next Notifier, interval time.Duration) *Throttle {
	return &Throttle{Next: next, Interval: interval}
}

func (t *Throttle) Notify(severity Severity, message string) error {
	if severity == SeverityInfo {
		now := time.Now()
		if t.Now != nil {
			now = t.Now()
		}
		t.mu.Lock()
		if !t.last.IsZero() && now.Sub(t.last) < t.Interval {
			t.mu.Unlock()
			return nil
		}
		t.last = now
		t.mu.Unlock()
	}
	return t.Next.Notify(severity, message)
}
