package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Revocation reasons recorded on the session row.
const (
	RevokeReasonLogout          = "logout"
	RevokeReasonUserRequest     = "user_request"
	RevokeReasonTokenReuse      = "token_reuse"
	RevokeReasonPasswordChanged = "password_changed"
	RevokeReasonPasswordReset   = "password_reset"
	RevokeReasonMFAEnabled      = "mfa_enabled"
)

// Session is the durable record of one continuous device login. Rotation
// mutates the row in place: the generation counter increments and the stored
// digest is replaced, preserving the session's identity across refreshes.
// Revocation is terminal.
type Session struct {
	ID           string
	AccountID    string
	TokenDigest  string // digest of the current-generation refresh token; the raw token is never stored
	Generation   int64
	ParentID     string // prior session for the same device, when re-login chained onto one; empty otherwise
	Fingerprint  string // device fingerprint (IP + user-agent derived)
	CreatedAt    time.Time
	LastUsedAt   *time.Time
	ExpiresAt    time.Time
	RevokedAt    *time.Time
	RevokeReason string
}

// Revoked reports whether the session has reached its terminal state.
func (s *Session) Revoked() bool {
	return s.RevokedAt != nil
}

// Summary is the caller-visible projection of a session; it carries no token material.
type Summary struct {
	ID          string
	Fingerprint string
	CreatedAt   time.Time
	LastUsedAt  *time.Time
	Revoked     bool
}

// Fingerprint derives the device fingerprint from client IP and user agent.
func Fingerprint(ip, userAgent string) string {
	h := sha256.Sum256([]byte(ip + "\x00" + userAgent))
	return hex.EncodeToString(h[:16])
}
