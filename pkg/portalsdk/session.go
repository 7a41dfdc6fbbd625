package portalsdk

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/portal/pkg/clockx"
)

// DefaultExpiryBuffer is how long before the access token's declared
// expiry the session refreshes it.
const DefaultExpiryBuffer = 30 * time.Second

// SessionConfig tunes the timers of a Session. Zero values take the
// defaults.
type SessionConfig struct {
	Clock          clockx.Clock
	IdleTimeout    time.Duration
	ExpiryBuffer   time.Duration
	RefreshTimeout time.Duration

	// OnLogout runs once when the session ends. reason is nil for an
	// explicit Logout.
	OnLogout func(reason error)
}

// Session carries an authenticated user's credentials. Every call goes
// through Do, which refreshes an expired access token at most once per
// session no matter how many goroutines hit the 401 together.
type Session struct {
	client *Client
	clock  clockx.Clock
	coord  *Coordinator
	idle   *IdleTimer
	buffer time.Duration

	mu     sync.Mutex
	expiry *clockx.Timer
	ended  bool
}

// NewSession wraps tokens obtained elsewhere, for example restored from
// storage.
func (c *Client) NewSession(tok TokenResponse) *Session {
	cfg := c.SessionConfig
	if cfg.Clock == nil {
		cfg.Clock = clockx.Real()
	}
	if cfg.ExpiryBuffer <= 0 {
		cfg.ExpiryBuffer = DefaultExpiryBuffer
	}

	tokens := Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    time.Duration(tok.ExpiresIn) * time.Second,
	}
	s := &Session{
		client: c,
		clock:  cfg.Clock,
		buffer: cfg.ExpiryBuffer,
		coord:  NewCoordinator(tokens, c.Refresh, cfg.RefreshTimeout),
	}
	s.coord.OnLogout(func(reason error) {
		s.stopTimers()
		if cfg.OnLogout != nil {
			cfg.OnLogout(reason)
		}
	})
	s.coord.OnRefreshed(s.scheduleRefresh)
	s.coord.OnDiscarded(func(refreshToken string) {
		timeout := cfg.RefreshTimeout
		if timeout <= 0 {
			timeout = DefaultRefreshTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = c.Logout(ctx, refreshToken)
	})
	s.idle = NewIdleTimer(cfg.Clock, cfg.IdleTimeout, func() { s.coord.Logout(ErrIdle) })
	s.scheduleRefresh(tokens)
	return s
}

// Do sends an authenticated request and decodes a 2xx body into out.
//
// A 401 outside /auth/ triggers one coordinated refresh and one replay.
// A second 401 ends the session with ErrSessionEnded.
func (s *Session) Do(ctx context.Context, method, path string, body, out any) error {
	payload, err := encodeBody(body)
	if err != nil {
		return err
	}
	if s.coord.State() == StateLoggedOut {
		return ErrSessionEnded
	}
	s.idle.Activity()

	token := s.coord.Tokens().AccessToken
	resp, err := s.client.send(ctx, method, path, payload, token)
	if err != nil {
		return err
	}
	if resp.status != http.StatusUnauthorized || isCredentialPath(path) {
		return decode(resp, out)
	}

	fresh, err := s.coord.Await(ctx, token)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, ErrSessionEnded) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrSessionEnded, err)
	}

	resp, err = s.client.send(ctx, method, path, payload, fresh)
	if err != nil {
		return err
	}
	if resp.status == http.StatusUnauthorized {
		s.coord.Logout(ErrSessionEnded)
		return fmt.Errorf("%w: %w", ErrSessionEnded, parseErrorResponse(resp.status, resp.body))
	}
	return decode(resp, out)
}

// Activity reports user activity that did not produce an API call.
func (s *Session) Activity() {
	s.idle.Activity()
}

// Logout ends the session locally, then revokes the refresh token it
// held. The local state is purged even when the server call fails. A
// refresh still in flight has its replacement token revoked when it lands.
func (s *Session) Logout(ctx context.Context) error {
	purged := s.coord.Logout(nil)
	if purged.RefreshToken == "" {
		return nil
	}
	return s.client.Logout(ctx, purged.RefreshToken)
}

func (s *Session) State() State { return s.coord.State() }

// AccessToken returns the current access token, empty after logout.
func (s *Session) AccessToken() string { return s.coord.Tokens().AccessToken }

// RefreshToken returns the current refresh token, empty after logout.
func (s *Session) RefreshToken() string { return s.coord.Tokens().RefreshToken }

// scheduleRefresh arms the pre-expiry timer for tokens. The refresh it
// triggers goes through the Coordinator like any other, so it never
// races a 401-driven one.
func (s *Session) scheduleRefresh(tokens Tokens) {
	if tokens.ExpiresIn <= 0 || tokens.RefreshToken == "" {
		return
	}
	d := tokens.ExpiresIn - s.buffer
	if d <= 0 {
		d = tokens.ExpiresIn / 2
	}
	stale := tokens.AccessToken

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	if s.expiry != nil {
		s.expiry.Stop()
	}
	s.expiry = s.clock.AfterFunc(d, func() {
		go func() { _, _ = s.coord.Await(context.Background(), stale) }()
	})
}

func (s *Session) stopTimers() {
	s.mu.Lock()
	s.ended = true
	if s.expiry != nil {
		s.expiry.Stop()
	}
	s.mu.Unlock()

	if s.idle != nil {
		s.idle.Stop()
	}
}

func isCredentialPath(path string) bool {
	return strings.HasPrefix(path, "/auth/")
}
