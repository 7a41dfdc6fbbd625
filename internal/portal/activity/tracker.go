// Package activity tracks server-side session idleness per subject.
//
// A subject has at most one of two states: an activity record holding the
// time of its last authenticated request, or an ended marker left behind
// when the idle timeout fired. The marker outlives every access token that
// could still be presented, so a timed-out session stays dead even though
// its tokens are stateless.
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/portal/internal/portal/domain"
)

// ErrSessionExpired is returned by Check once a subject went idle.
var ErrSessionExpired = domain.ErrSessionExpired

// ErrIdleTimeout is returned only by the Check call that moved the subject
// from active to ended. It matches ErrSessionExpired; every later Check
// returns ErrSessionExpired itself.
var ErrIdleTimeout = fmt.Errorf("%w: idle timeout reached", ErrSessionExpired)

// DefaultIdleTimeout is T, the longest allowed gap between requests.
const DefaultIdleTimeout = 15 * time.Minute

type Tracker interface {
	// Check allows the request unless the subject has been idle for longer
	// than the timeout or already timed out. A subject with no record is
	// recorded and allowed. The call that ends the session returns
	// ErrIdleTimeout.
	Check(ctx context.Context, subject string) error

	// Touch records activity now. It never revives an ended session.
	Touch(ctx context.Context, subject string) error

	// Begin starts a fresh session at login or signup.
	Begin(ctx context.Context, subject string) error

	// End forgets the subject on logout.
	End(ctx context.Context, subject string) error

	// Sweep drops abandoned records and stale markers and reports how many
	// entries it removed.
	Sweep(ctx context.Context) (int, error)
}

// Config is shared by every Tracker implementation.
type Config struct {
	// IdleTimeout defaults to DefaultIdleTimeout.
	IdleTimeout time.Duration

	// Retention is how long ended markers are kept. It must cover the
	// access token lifetime. Defaults to IdleTimeout.
	Retention time.Duration

	// RecordTTL is how long an untouched record is kept before it is
	// discarded outright. It should cover the refresh token lifetime so a
	// discarded record cannot be mistaken for a brand new session while a
	// refresh token from it is still valid. Defaults to 2*IdleTimeout.
	RecordTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = DefaultIdleTimeout
	}
	if c.Retention <= 0 {
		c.Retention = c.IdleTimeout
	}
	if c.RecordTTL < c.IdleTimeout {
		c.RecordTTL = 2 * c.IdleTimeout
	}
	return c
}
