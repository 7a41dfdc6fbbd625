package portalsdk

import (
	"encoding/json"
	"time"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// Error codes returned in ErrorResponse.Error.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeInvalidRequest     = "invalid_request"
	CodeInvalidInviteCode  = "invalid_invite_code"
	CodeDuplicateEmail     = "duplicate_email"
	CodeInvalidToken       = "invalid_token"
	CodeSessionExpired     = "session_expired"
	CodeLockedOut          = "locked_out"
	CodeNotFound           = "not_found"
	CodeGone               = "gone"
	CodeForbidden          = "forbidden"
	CodeRateLimited        = "rate_limited"
	CodeServerError        = "server_error"
)

// ----------------------------------------------------------------------------
// Authentication
// ----------------------------------------------------------------------------

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignupAdminRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	Name             string `json:"name"`
	OrganizationName string `json:"organization_name"`
}

type SignupUserRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Name       string `json:"name"`
	InviteCode string `json:"invite_code"`
}

// TokenResponse is returned by login and both signups.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshExpiresIn int    `json:"refresh_expires_in"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshResponse omits the refresh token when the server does not rotate.
type RefreshResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	RefreshToken     string `json:"refresh_token,omitempty"`
	RefreshExpiresIn int    `json:"refresh_expires_in,omitempty"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

// MeResponse describes the caller of GET /me.
type MeResponse struct {
	UserID    string    `json:"user_id"`
	OrgID     string    `json:"org_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ----------------------------------------------------------------------------
// Admin
// ----------------------------------------------------------------------------

type InviteCodeRequest struct {
	Role string `json:"role"`

	// TTLHours defaults to the server's invite lifetime (2h).
	TTLHours *float64 `json:"ttl_hours,omitempty"`
}

type InviteCodeResponse struct {
	Code      string     `json:"code"`
	Role      string     `json:"role"`
	ExpiresAt time.Time  `json:"expires_at"`
	Used      bool       `json:"used"`
	UsedBy    *string    `json:"used_by,omitempty"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedBy string     `json:"created_by"`
	CreatedAt time.Time  `json:"created_at"`
}

type InviteCodeListResponse struct {
	InviteCodes []InviteCodeResponse `json:"invite_codes"`
}

type FormRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Fields      json.RawMessage `json:"fields,omitempty"`
}

type FormResponse struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Fields      json.RawMessage `json:"fields"`
	CreatedAt   time.Time       `json:"created_at"`
}

type CompanyRequest struct {
	Name string `json:"name"`
}

type CompanyResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// FormTokenRequest creates a public form link. ExpiresInDays defaults to
// 30 when omitted; an explicit 0 creates a link that never expires.
// MaxUses omitted means uncapped.
type FormTokenRequest struct {
	CompanyID     string `json:"company_id"`
	ExpiresInDays *int   `json:"expires_in_days,omitempty"`
	MaxUses       *int   `json:"max_uses,omitempty"`
}

type FormTokenResponse struct {
	ID          string     `json:"id"`
	Token       string     `json:"token"`
	URL         string     `json:"url"`
	FormID      string     `json:"form_id"`
	CompanyID   string     `json:"company_id"`
	ExpiresAt   *time.Time `json:"expires_at"`
	MaxUses     *int       `json:"max_uses"`
	UseCount    int        `json:"use_count"`
	AccessCount int        `json:"access_count"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
}

type FormTokenListResponse struct {
	Tokens []FormTokenResponse `json:"tokens"`
}

type AuditEntryResponse struct {
	ID           string         `json:"id"`
	SubjectID    *string        `json:"subject_id"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Outcome      string         `json:"outcome"`
	Reason       string         `json:"reason,omitempty"`
	IP           string         `json:"ip,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

type AuditListResponse struct {
	Entries []AuditEntryResponse `json:"entries"`
}

// ----------------------------------------------------------------------------
// Public forms
// ----------------------------------------------------------------------------

type TokenInfo struct {
	ExpiresAt *time.Time `json:"expires_at"`
	MaxUses   *int       `json:"max_uses"`
	UseCount  int        `json:"use_count"`
	Remaining *int       `json:"remaining"`
}

type PublicFormResponse struct {
	Form      FormResponse    `json:"form"`
	Company   CompanyResponse `json:"company"`
	TokenInfo TokenInfo       `json:"token_info"`
}

type SubmitRequest struct {
	Data json.RawMessage `json:"data"`
}

type SubmitResponse struct {
	SubmissionID string `json:"submission_id"`
}

// ----------------------------------------------------------------------------
// Health
// ----------------------------------------------------------------------------

type HealthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}
