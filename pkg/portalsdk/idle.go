package portalsdk

import (
	"sync"
	"time"

	"github.com/aussiebroadwan/portal/pkg/clockx"
)

// DefaultIdleTimeout matches the server's default session idle timeout.
const DefaultIdleTimeout = 15 * time.Minute

// IdleTimer calls onIdle once no Activity has been reported for timeout.
type IdleTimer struct {
	timeout time.Duration

	mu      sync.Mutex
	timer   *clockx.Timer
	stopped bool
}

// NewIdleTimer arms the timer immediately.
func NewIdleTimer(clock clockx.Clock, timeout time.Duration, onIdle func()) *IdleTimer {
	if timeout <= 0 {
		timeout = DefaultIdleTimeout
	}
	t := &IdleTimer{timeout: timeout}
	t.timer = clock.AfterFunc(timeout, func() {
		t.mu.Lock()
		if t.stopped {
			t.mu.Unlock()
			return
		}
		t.stopped = true
		t.mu.Unlock()
		onIdle()
	})
	return t
}

// Activity pushes the deadline out to timeout from now.
func (t *IdleTimer) Activity() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.timer.Reset(t.timeout)
}

// Stop disarms the timer for good.
func (t *IdleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.timer.Stop()
}
