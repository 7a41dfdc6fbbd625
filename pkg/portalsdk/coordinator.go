package portalsdk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the refresh state of one session.
type State int

const (
	StateIdle State = iota
	StateRefreshing
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	case StateLoggedOut:
		return "logged_out"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// DefaultRefreshTimeout bounds one refresh call.
const DefaultRefreshTimeout = 10 * time.Second

// RefreshFunc exchanges a refresh token with the server.
type RefreshFunc func(ctx context.Context, refreshToken string) (RefreshResponse, error)

// Tokens is the credential pair a Coordinator holds.
type Tokens struct {
	AccessToken  string
	RefreshToken string

	// ExpiresIn is the access token lifetime as declared by the server.
	ExpiresIn time.Duration
}

type waiter chan refreshResult

type refreshResult struct {
	token string
	err   error
}

// Coordinator makes sure a session has at most one refresh call in
// flight. Callers that hit a 401 while a refresh is running queue up
// and receive its outcome.
//
// The mutex guards state, tokens and the waiter queue only. It is never
// held across the refresh call.
type Coordinator struct {
	refresh RefreshFunc
	timeout time.Duration

	mu      sync.Mutex
	state   State
	tokens  Tokens
	waiters []waiter

	// onRefreshed runs after every successful refresh, outside the lock.
	onRefreshed func(Tokens)
	// onLogout runs once, when the session ends.
	onLogout   func(reason error)
	logoutOnce sync.Once
	// onDiscarded receives a refresh token minted by a refresh that
	// finished after the session ended.
	onDiscarded func(refreshToken string)
}

// NewCoordinator starts in StateIdle holding tokens.
func NewCoordinator(tokens Tokens, refresh RefreshFunc, timeout time.Duration) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	return &Coordinator{
		refresh: refresh,
		timeout: timeout,
		tokens:  tokens,
	}
}

// OnLogout registers the callback that runs when the session ends.
func (c *Coordinator) OnLogout(fn func(reason error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onLogout = fn
}

// OnRefreshed registers a callback for new tokens.
func (c *Coordinator) OnRefreshed(fn func(Tokens)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRefreshed = fn
}

// OnDiscarded registers the callback that disposes of a refresh token the
// server issued after the session ended, typically by revoking it.
func (c *Coordinator) OnDiscarded(fn func(refreshToken string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDiscarded = fn
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Tokens returns a copy of the current credentials. They are empty once
// the session has logged out.
func (c *Coordinator) Tokens() Tokens {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens
}

// Await returns an access token newer than stale. If another caller
// already replaced stale it returns at once; if a refresh is running it
// waits for that one; otherwise it runs the refresh itself.
func (c *Coordinator) Await(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	switch {
	case c.state == StateLoggedOut:
		c.mu.Unlock()
		return "", ErrSessionEnded
	case c.tokens.AccessToken != stale:
		token := c.tokens.AccessToken
		c.mu.Unlock()
		return token, nil
	case c.state == StateRefreshing:
		w := make(waiter, 1)
		c.waiters = append(c.waiters, w)
		c.mu.Unlock()
		select {
		case res := <-w:
			return res.token, res.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	c.state = StateRefreshing
	refreshToken := c.tokens.RefreshToken
	c.mu.Unlock()

	// One caller giving up must not fail the refresh for every waiter.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	res, err := c.refresh(rctx, refreshToken)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(rctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", ErrRefreshInFlightTimeout, err)
		}
		c.end(err)
		return "", err
	}

	c.mu.Lock()
	if c.state != StateRefreshing {
		// Logged out while the call was running.
		onDiscarded := c.onDiscarded
		c.mu.Unlock()
		if onDiscarded != nil && res.RefreshToken != "" {
			onDiscarded(res.RefreshToken)
		}
		return "", ErrSessionEnded
	}
	c.tokens.AccessToken = res.AccessToken
	if res.RefreshToken != "" {
		c.tokens.RefreshToken = res.RefreshToken
	}
	c.tokens.ExpiresIn = time.Duration(res.ExpiresIn) * time.Second
	c.state = StateIdle
	waiters := c.waiters
	c.waiters = nil
	tokens := c.tokens
	onRefreshed := c.onRefreshed
	c.mu.Unlock()

	for _, w := range waiters {
		w <- refreshResult{token: tokens.AccessToken}
	}
	if onRefreshed != nil {
		onRefreshed(tokens)
	}
	return tokens.AccessToken, nil
}

// Logout ends the session and returns the tokens it purged, which are
// empty if the session had already ended. Queued waiters receive reason,
// or ErrSessionEnded when reason is nil.
func (c *Coordinator) Logout(reason error) Tokens {
	return c.end(reason)
}

func (c *Coordinator) end(reason error) Tokens {
	c.mu.Lock()
	if c.state == StateLoggedOut {
		c.mu.Unlock()
		return Tokens{}
	}
	c.state = StateLoggedOut
	purged := c.tokens
	c.tokens = Tokens{}
	waiters := c.waiters
	c.waiters = nil
	onLogout := c.onLogout
	c.mu.Unlock()

	werr := reason
	if werr == nil {
		werr = ErrSessionEnded
	}
	for _, w := range waiters {
		w <- refreshResult{err: werr}
	}

	c.logoutOnce.Do(func() {
		if onLogout != nil {
			onLogout(reason)
		}
	})
	return purged
}
