// Package countdown provides a one-shot, second-granularity countdown used to
// bound the length of a recording.
//
// A Timer is armed with a number of steps. It calls OnTick with the remaining
// count after every interval while the count is positive, and calls OnExpire
// exactly once when the count reaches zero. Cancel stops a timer without
// firing OnExpire. Callbacks run on the timer goroutine and never while the
// timer's lock is held, so they may call back into the timer.
package countdown

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrAlreadyArmed is returned by Arm when the timer is already counting.
	// Callers must Cancel before re-arming.
	ErrAlreadyArmed = errors.New("countdown: already armed")

	// ErrInvalidDuration is returned by Arm for a non-positive step count.
	ErrInvalidDuration = errors.New("countdown: duration must be positive")
)

// DefaultInterval is the tick interval used when Options.Interval is zero.
const DefaultInterval = time.Second

// Options configures a Timer.
type Options struct {
	// Interval is the time between ticks. Default is one second.
	Interval time.Duration

	// OnTick receives the remaining step count after each interval, while
	// the count is still positive. Optional.
	OnTick func(remaining int)

	// OnExpire is called exactly once per arm when the count reaches zero.
	// It is not called after Cancel. Optional.
	OnExpire func()
}

// Timer is a cancellable countdown. The zero value is not usable; use New.
type Timer struct {
	opts Options

	mu     sync.Mutex
	armed  bool
	gen    uint64
	stopCh chan struct{}
}

// New creates an unarmed timer.
func New(opts Options) *Timer {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	return &Timer{opts: opts}
}

// Arm starts counting down from steps. It returns ErrAlreadyArmed if the
// timer is running.
func (t *Timer) Arm(steps int) error {
	if steps <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDuration, steps)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.armed {
		return ErrAlreadyArmed
	}
	t.armed = true
	t.gen++
	t.stopCh = make(chan struct{})
	go t.run(t.gen, steps, t.stopCh)
	return nil
}

// Cancel stops the countdown. It reports whether an armed timer was stopped
// before expiring. Cancelling an unarmed timer is a no-op.
func (t *Timer) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.armed {
		return false
	}
	t.armed = false
	close(t.stopCh)
	return true
}

// Armed reports whether the timer is counting.
func (t *Timer) Armed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

func (t *Timer) run(gen uint64, remaining int, stop <-chan struct{}) {
	ticker := time.NewTicker(t.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		t.mu.Lock()
		if !t.armed || t.gen != gen {
			t.mu.Unlock()
			return
		}
		remaining--
		expired := remaining <= 0
		if expired {
			t.armed = false
		}
		t.mu.Unlock()

		if expired {
			if t.opts.OnExpire != nil {
				t.opts.OnExpire()
			}
			return
		}
		if t.opts.OnTick != nil {
			t.opts.OnTick(remaining)
		}
	}
}
