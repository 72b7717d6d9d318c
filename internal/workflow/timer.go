package workflow

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Deadline is the per-step countdown. It starts at controller mount with a
// fixed duration, ticks down uniformly, and fires onExpire exactly once
// when it reaches zero. It is local to one controller instance and never
// persisted: navigating between steps starts a fresh countdown. That reset
// is documented behavior, not an accident.
type Deadline struct {
	remaining atomic.Int64 // nanoseconds left
	tick      time.Duration
	onExpire  func()

	stopOnce sync.Once
	fireOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// StartDeadline begins a countdown of duration d. tick controls the
// decrement interval; pass 0 for the 1s default. onExpire runs on the
// timer's goroutine.
func StartDeadline(d time.Duration, tick time.Duration, onExpire func()) *Deadline {
	if tick <= 0 {
		tick = time.Second
	}
	t := &Deadline{
		tick:     tick,
		onExpire: onExpire,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	t.remaining.Store(int64(d))
	go t.run()
	return t
}

func (t *Deadline) run() {
	defer close(t.done)

	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			left := t.remaining.Add(-int64(t.tick))
			if left <= 0 {
				t.remaining.Store(0)
				// fireOnce guards against a timer that somehow fires
				// twice: the second fire must not double-invalidate.
				t.fireOnce.Do(t.onExpire)
				return
			}
		}
	}
}

// Remaining returns the time left on the countdown.
func (t *Deadline) Remaining() time.Duration {
	return time.Duration(t.remaining.Load())
}

// Expired reports whether the countdown reached zero.
func (t *Deadline) Expired() bool {
	return t.Remaining() <= 0
}

// Stop halts the countdown without firing. Safe to call repeatedly and
// after expiry; it waits for the timer goroutine to exit.
func (t *Deadline) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
	<-t.done
}

// FormatRemaining renders a duration as HH:MM:SS for countdown display.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, (secs%3600)/60, secs%60)
}
