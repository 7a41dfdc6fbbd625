package domain

import "time"

// AuditAction names a credential lifecycle transition.
type AuditAction string

const (
	ActionIssue              AuditAction = "issue"
	ActionRedeem             AuditAction = "redeem"
	ActionRedemptionRejected AuditAction = "redemption_rejected"
	ActionRotate             AuditAction = "rotate"
	ActionRevoke             AuditAction = "revoke"
	ActionIdleExpired        AuditAction = "idle_expired"
	ActionLogin              AuditAction = "login"
	ActionLoginFailed        AuditAction = "login_failed"
	ActionLockout            AuditAction = "lockout"
	ActionSignup             AuditAction = "signup"
	ActionFormAccess         AuditAction = "form_access"
	ActionFormSubmission     AuditAction = "form_submission"
	ActionDeactivate         AuditAction = "deactivate"
)

type AuditOutcome string

const (
	OutcomeSuccess  AuditOutcome = "success"
	OutcomeRejected AuditOutcome = "rejected"
)

// Resource types recorded in the audit log.
const (
	ResourceAccessToken  = "access_token"
	ResourceRefreshToken = "refresh_token"
	ResourceInviteCode   = "invite_code"
	ResourceFormToken    = "form_token"
	ResourceUser         = "user"
	ResourceSession      = "session"
)

// AuditEntry is one append-only row of the audit trail.
type AuditEntry struct {
	ID           string
	SubjectID    *string // nil for anonymous callers
	OrgID        string
	Action       AuditAction
	ResourceType string
	ResourceID   string
	Outcome      AuditOutcome
	Reason       string
	IP           string
	UserAgent    string
	Extra        map[string]any
	Timestamp    time.Time
}

// ClientMeta is what the transport layer knows about a caller.
type ClientMeta struct {
	IP        string
	UserAgent string
}
