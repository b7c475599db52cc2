package syncer

import (
	"sync"
	"time"
)

// Timer is the handle returned by Clock.AfterFunc.
type Timer interface {
	Stop() bool
}

// Clock abstracts wall time so debounce behaviour can be driven by tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock is the Clock backed by the time package.
var SystemClock Clock = systemClock{}

// Debouncer runs the most recently scheduled callback once its delay passes
// without another Restart. Every Restart or Cancel bumps a generation so a
// timer that already fired but has not yet run is discarded.
type Debouncer struct {
	clock Clock

	mu         sync.Mutex
	timer      Timer
	generation uint64
}

func NewDebouncer(clock Clock) *Debouncer {
	if clock == nil {
		clock = SystemClock
	}
	return &Debouncer{clock: clock}
}

// Restart cancels any pending callback and schedules fn after delay.
func (d *Debouncer) Restart(delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	gen := d.generation
	d.timer = d.clock.AfterFunc(delay, func() {
		d.mu.Lock()
		if gen != d.generation {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Cancel drops the pending callback, if any.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

// Pending reports whether a callback is scheduled and has not run.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.generation++
}
