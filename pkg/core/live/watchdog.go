package live

import (
	"sync"
	"time"
)

// DefaultHintDelay is how long the user may stay silent after the agent
// finishes speaking before a hint is offered.
const DefaultHintDelay = 12 * time.Second

// Watchdog fires a callback after a period of user inactivity. Arming it
// again before it fires cancels the pending timer, so only the most recent
// arm can ever fire. Stale timers that already popped are filtered out by a
// generation counter.
type Watchdog struct {
	fire func()

	mu    sync.Mutex
	gen   uint64
	timer *time.Timer
}

// NewWatchdog creates a disarmed watchdog that calls fire on expiry.
func NewWatchdog(fire func()) *Watchdog {
	return &Watchdog{fire: fire}
}

// Arm schedules the callback after delay, cancelling any pending timer.
func (w *Watchdog) Arm(delay time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.gen++
	gen := w.gen
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(delay, func() {
		w.mu.Lock()
		stale := gen != w.gen
		w.mu.Unlock()
		if !stale {
			w.fire()
		}
	})
}

// Disarm cancels any pending timer. A timer that already popped but has not
// yet run its callback is invalidated too.
func (w *Watchdog) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.gen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
