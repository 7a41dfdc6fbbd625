package service

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
	"github.com/aussiebroadwan/portal/pkg/clockx"
)

// LockoutConfig bounds failed logins per account.
type LockoutConfig struct {
	MaxFailures int           // default 5
	Window      time.Duration // default 5m
	Duration    time.Duration // default 15m
}

// LockedOutError is returned while an account is locked.
type LockedOutError struct {
	RetryAfter time.Duration
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("%s, retry in %s", domain.ErrLockedOut, e.RetryAfter.Round(time.Second))
}

func (e *LockedOutError) Unwrap() error { return domain.ErrLockedOut }

// RetryAfter extracts the wait from a lockout error.
func RetryAfter(err error) (time.Duration, bool) {
	var le *LockedOutError
	if errors.As(err, &le) {
		return le.RetryAfter, true
	}
	return 0, false
}

type lockoutState struct {
	failures    int
	windowStart time.Time
	lockedUntil time.Time
}

// Lockout counts failed logins per lower-cased email. After MaxFailures
// within Window the key is locked for Duration. State is process local.
type Lockout struct {
	cfg   LockoutConfig
	clock clockx.Clock

	mu    sync.Mutex
	state map[string]*lockoutState
}

func NewLockout(cfg LockoutConfig, clock clockx.Clock) *Lockout {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 5 * time.Minute
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 15 * time.Minute
	}
	if clock == nil {
		clock = clockx.Real()
	}
	return &Lockout{cfg: cfg, clock: clock, state: make(map[string]*lockoutState)}
}

func lockoutKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Check returns a *LockedOutError while email is locked.
func (l *Lockout) Check(email string) error {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.state[lockoutKey(email)]
	if !ok || !now.Before(st.lockedUntil) {
		return nil
	}
	return &LockedOutError{RetryAfter: st.lockedUntil.Sub(now)}
}

// Fail records a failed attempt and reports whether it tripped the lock.
func (l *Lockout) Fail(email string) bool {
	now := l.clock.Now()
	key := lockoutKey(email)
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.state[key]
	if !ok || now.Sub(st.windowStart) > l.cfg.Window {
		st = &lockoutState{windowStart: now}
		l.state[key] = st
	}
	st.failures++
	if st.failures < l.cfg.MaxFailures {
		return false
	}
	st.lockedUntil = now.Add(l.cfg.Duration)
	st.failures = 0
	st.windowStart = st.lockedUntil
	return true
}

// Reset clears the counter after a successful login.
func (l *Lockout) Reset(email string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.state, lockoutKey(email))
}

// Sweep forgets keys whose window and lock have both lapsed.
func (l *Lockout) Sweep() int {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for k, st := range l.state {
		if now.Before(st.lockedUntil) || now.Sub(st.windowStart) <= l.cfg.Window {
			continue
		}
		delete(l.state, k)
		n++
	}
	return n
}
