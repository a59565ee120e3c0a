package domain

import "time"

// Event kinds recorded by the authentication flows. Names are stable; new
// kinds append, existing ones never change meaning.
const (
	EventRegistered             = "account_registered"
	EventEmailVerified          = "email_verified"
	EventVerificationResent     = "verification_resent"
	EventLoginSuccess           = "login_success"
	EventLoginFailure           = "login_failure"
	EventLoginLocked            = "login_locked"
	EventLoginDenied            = "login_denied"
	EventMFAChallengeIssued     = "mfa_challenge_issued"
	EventMFASuccess             = "mfa_success"
	EventMFAFailure             = "mfa_failure"
	EventMFAEnabled             = "mfa_enabled"
	EventMFAConfirmed           = "mfa_confirmed"
	EventMFADisabled            = "mfa_disabled"
	EventBackupCodeConsumed     = "backup_code_consumed"
	EventTokenRefreshed         = "token_refreshed"
	EventTokenReuseDetected     = "token_reuse_detected"
	EventLogout                 = "logout"
	EventSessionRevoked         = "session_revoked"
	EventSessionsRevokedAll     = "sessions_revoked_all"
	EventPasswordResetRequested = "password_reset_requested"
	EventPasswordReset          = "password_reset"
	EventPasswordChanged        = "password_changed"
)

// Outcomes for an audit entry.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeDenied  = "denied"
)

// AuditLog is one recorded security event. AccountID is empty when the event
// could not be tied to an account, such as a login attempt against an unknown
// email.
type AuditLog struct {
	ID          string
	AccountID   string
	Kind        string
	Outcome     string
	Fingerprint string
	IP          string
	Metadata    string
	CreatedAt   time.Time
}

// highSeverity marks the kinds that also go to the security event stream.
var highSeverity = map[string]bool{
	EventTokenReuseDetected: true,
	EventLoginLocked:        true,
	EventMFADisabled:        true,
	EventPasswordReset:      true,
	EventSessionsRevokedAll: true,
}

// HighSeverity reports whether the event kind warrants out-of-band alerting in
// addition to the durable log.
func HighSeverity(kind string) bool {
	return highSeverity[kind]
}
