package polish

import (
	"sync"
	"time"
)

// Debouncer coalesces bursts of notifications into a single callback
// fired after a quiet interval with no further notifications. There is
// at most one timer pending at any moment: each Notify replaces the
// previous schedule.
type Debouncer struct {
	interval time.Duration
	fire     func()

	mu    sync.Mutex
	timer *time.Timer
}

// NewDebouncer creates a debouncer that calls fire after interval of
// quiet. fire runs on a timer goroutine.
func NewDebouncer(interval time.Duration, fire func()) *Debouncer {
	return &Debouncer{
		interval: interval,
		fire:     fire,
	}
}

// Notify records activity, rescheduling the pending fire (if any) to a
// full quiet interval from now.
func (d *Debouncer) Notify() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.interval, d.fire)
}

// Cancel drops any pending fire. A callback that has already started
// may still run; callers that care must tolerate a late fire.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
