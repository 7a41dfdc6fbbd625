/*
Package portalsdk is the Go client for the portal credential service.

# Client vs Session

Client covers the unauthenticated endpoints (login, signup, refresh,
logout, public forms, health) and opens Sessions:

	client := portalsdk.NewClient("https://portal.example.com")
	client.SessionConfig.OnLogout = func(reason error) {
		// send the user back to the login screen
	}

	session, err := client.Login(ctx, "grace@example.com", password)

	form, err := client.GetPublicForm(ctx, token)

Session carries the access and refresh tokens and exposes the
authenticated endpoints:

	me, err := session.Me(ctx)
	invite, err := session.CreateInviteCode(ctx, portalsdk.InviteCodeRequest{Role: "user"})

Anything without a typed wrapper goes through Session.Do.

# Refresh

A 401 from an authenticated endpoint makes the session refresh its access
token and replay the request once. The Coordinator guarantees at most one
refresh call per session: goroutines that see a 401 while a refresh is in
flight wait for its result instead of starting their own. A refresh that
fails or exceeds RefreshTimeout ends the session, as does a 401 on the
replayed request.

Shortly before the access token's declared expiry (ExpiryBuffer, 30s by
default) the session refreshes it without waiting for a 401.

# Idle timeout

Every request made through a Session counts as activity. UI events that do
not reach the server should call Session.Activity. After IdleTimeout
(15m by default) without activity the session purges its tokens and calls
OnLogout with ErrIdle. The server enforces the same timeout on its side.

# Errors

Non-2xx answers are *APIError values carrying the portal's error code:

	if portalsdk.IsCode(err, portalsdk.CodeLockedOut) {
		// back off
	}

A session that has ended returns errors matching ErrSessionEnded.

# Thread Safety

Client and Session are safe for concurrent use.
*/
package portalsdk
