package clockx

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a Clock whose time only moves when Advance is called.
//
// AfterFunc callbacks run synchronously inside Advance, in deadline
// order. A callback must not call Advance itself.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []*fakeTimer
	changed *sync.Cond
}

type fakeTimer struct {
	at       time.Time
	fn       func()
	ch       chan time.Time
	every    time.Duration
	canceled bool
	done     bool
}

// Fake returns a FakeClock frozen at start.
func Fake(start time.Time) *FakeClock {
	c := &FakeClock{now: start}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After registers a one-shot channel timer.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.addLocked(&fakeTimer{at: c.now.Add(d), ch: ch})
	return ch
}

// AfterFunc registers f to run once the clock passes now+d. When d <= 0, f
// runs before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{
			stop:  func() bool { return false },
			reset: func(time.Duration) bool { return false },
		}
	}

	c.mu.Lock()
	ft := &fakeTimer{at: c.now.Add(d), fn: f}
	c.addLocked(ft)
	c.mu.Unlock()

	return &Timer{
		stop: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			wasPending := !ft.canceled && !ft.done
			ft.canceled = true
			return wasPending
		},
		reset: func(d time.Duration) bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			wasPending := !ft.canceled && !ft.done
			ft.at = c.now.Add(d)
			ft.canceled = false
			if !wasPending {
				ft.done = false
				c.addLocked(ft)
			}
			return wasPending
		},
	}
}

// NewTicker registers a periodic timer.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clockx: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ft := &fakeTimer{at: c.now.Add(d), ch: ch, every: d}
	c.addLocked(ft)

	return &Ticker{
		C: ch,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			ft.canceled = true
		},
	}
}

// Advance moves the clock forward by d and fires everything that became
// due, earliest first.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	target := c.now
	c.mu.Unlock()

	for {
		due := c.collectDue(target)
		if len(due) == 0 {
			return
		}
		for _, ft := range due {
			if ft.fn != nil {
				ft.fn()
				continue
			}
			select {
			case ft.ch <- target:
			default:
			}
		}
	}
}

// Set jumps the clock to t. Moving backwards never fires timers.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	delta := t.Sub(c.now)
	c.mu.Unlock()

	if delta <= 0 {
		c.mu.Lock()
		c.now = t
		c.mu.Unlock()
		return
	}
	c.Advance(delta)
}

// WaitForTimers blocks until at least n timers are pending. Use it to
// avoid racing a goroutine that is about to register a timer.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.changed.Wait()
	}
}

// Pending returns the number of live timers.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *FakeClock) addLocked(ft *fakeTimer) {
	c.pending = append(c.pending, ft)
	c.changed.Broadcast()
}

func (c *FakeClock) pendingLocked() int {
	n := 0
	for _, ft := range c.pending {
		if !ft.canceled && !ft.done {
			n++
		}
	}
	return n
}

// collectDue pops every timer due at target and reschedules tickers.
func (c *FakeClock) collectDue(target time.Time) []*fakeTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	var due, keep []*fakeTimer
	for _, ft := range c.pending {
		switch {
		case ft.canceled || ft.done:
		case !ft.at.After(target):
			due = append(due, ft)
		default:
			keep = append(keep, ft)
		}
	}

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })

	for _, ft := range due {
		if ft.every > 0 {
			ft.at = ft.at.Add(ft.every)
			keep = append(keep, ft)
			continue
		}
		ft.done = true
	}

	c.pending = keep
	return due
}
