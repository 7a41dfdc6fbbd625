package portalsdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client talks to the portal's unauthenticated endpoints and opens
// Sessions for the authenticated ones.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// SessionConfig is applied to every Session this client opens.
	SessionConfig SessionConfig
}

// NewClient returns a Client with a 10s HTTP timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Login exchanges email and password for a Session.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var tok TokenResponse
	if err := c.call(ctx, http.MethodPost, "/auth/login", LoginRequest{Email: email, Password: password}, &tok); err != nil {
		return nil, err
	}
	return c.NewSession(tok), nil
}

// SignupAdmin creates an organization and its first admin.
func (c *Client) SignupAdmin(ctx context.Context, req SignupAdminRequest) (*Session, error) {
	var tok TokenResponse
	if err := c.call(ctx, http.MethodPost, "/auth/signup/admin", req, &tok); err != nil {
		return nil, err
	}
	return c.NewSession(tok), nil
}

// SignupUser redeems an invite code.
func (c *Client) SignupUser(ctx context.Context, req SignupUserRequest) (*Session, error) {
	var tok TokenResponse
	if err := c.call(ctx, http.MethodPost, "/auth/signup/user", req, &tok); err != nil {
		return nil, err
	}
	return c.NewSession(tok), nil
}

// Refresh exchanges a refresh token. Sessions call this through their
// Coordinator; call it directly only to manage tokens by hand.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (RefreshResponse, error) {
	var out RefreshResponse
	err := c.call(ctx, http.MethodPost, "/auth/refresh", RefreshRequest{RefreshToken: refreshToken}, &out)
	return out, err
}

// Logout revokes a refresh token. Unknown or already revoked tokens
// succeed.
func (c *Client) Logout(ctx context.Context, refreshToken string) error {
	return c.call(ctx, http.MethodPost, "/auth/logout", LogoutRequest{RefreshToken: refreshToken}, nil)
}

// GetPublicForm opens a shared form link.
func (c *Client) GetPublicForm(ctx context.Context, token string) (PublicFormResponse, error) {
	var out PublicFormResponse
	err := c.call(ctx, http.MethodGet, "/public/forms/"+url.PathEscape(token), nil, &out)
	return out, err
}

// SubmitForm posts data, a JSON object, through a shared form link.
func (c *Client) SubmitForm(ctx context.Context, token string, data json.RawMessage) (SubmitResponse, error) {
	var out SubmitResponse
	err := c.call(ctx, http.MethodPost, "/public/forms/"+url.PathEscape(token)+"/submit", SubmitRequest{Data: data}, &out)
	return out, err
}

// Livez reports process liveness.
func (c *Client) Livez(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	err := c.call(ctx, http.MethodGet, "/livez", nil, &out)
	return out, err
}

// Readyz reports readiness. A 503 comes back as an APIError.
func (c *Client) Readyz(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	err := c.call(ctx, http.MethodGet, "/readyz", nil, &out)
	return out, err
}
