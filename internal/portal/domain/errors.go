package domain

import "errors"

// Credential lifecycle errors. Services wrap these with context and the
// HTTP layer maps them to status codes with errors.Is.
var (
	ErrInvalidCredential      = errors.New("invalid credential")
	ErrExpiredCredential      = errors.New("credential expired")
	ErrAlreadyConsumed        = errors.New("credential already consumed")
	ErrExhausted              = errors.New("credential usage limit reached")
	ErrRevoked                = errors.New("credential revoked")
	ErrSessionExpired         = errors.New("session expired")
	ErrRefreshInFlightTimeout = errors.New("refresh in flight timed out")

	ErrInvalidInput   = errors.New("invalid input")
	ErrWeakPassword   = errors.New("password does not meet policy")
	ErrDuplicateEmail = errors.New("email already registered")
	ErrLockedOut      = errors.New("account temporarily locked")
	ErrInactiveUser   = errors.New("user is inactive")
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("operation not permitted")
)

// Umbrella errors for callers that only care about the broad outcome.
var (
	// ErrAlreadyConsumedOrExpired matches every invite code rejection.
	ErrAlreadyConsumedOrExpired = errors.New("credential already consumed or expired")

	// ErrExhaustedOrExpiredOrInactive matches every form token rejection.
	ErrExhaustedOrExpiredOrInactive = errors.New("credential exhausted, expired or inactive")

	// ErrInvalidOrRevokedRefreshToken matches every refresh rejection.
	ErrInvalidOrRevokedRefreshToken = errors.New("invalid or revoked refresh token")
)

// multiIs reports itself as both the specific cause and an umbrella.
type multiIs struct {
	cause    error
	umbrella error
}

func (m multiIs) Error() string { return m.cause.Error() }

func (m multiIs) Is(target error) bool { return target == m.umbrella }

func (m multiIs) Unwrap() error { return m.cause }

// InviteRejection tags err so it also matches ErrAlreadyConsumedOrExpired.
func InviteRejection(err error) error {
	return multiIs{cause: err, umbrella: ErrAlreadyConsumedOrExpired}
}

// FormTokenRejection tags err so it also matches ErrExhaustedOrExpiredOrInactive.
func FormTokenRejection(err error) error {
	return multiIs{cause: err, umbrella: ErrExhaustedOrExpiredOrInactive}
}

// RefreshRejection tags err so it also matches ErrInvalidOrRevokedRefreshToken.
func RefreshRejection(err error) error {
	return multiIs{cause: err, umbrella: ErrInvalidOrRevokedRefreshToken}
}
