package domain

import (
	"errors"
	"strings"
	"time"
)

// Status is the account lifecycle status. Accounts are never physically
// deleted; disabling is the soft-delete.
type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

// Role is the account's authorization role, embedded in access tokens.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Account represents a user account with credential, MFA, and lockout state.
// The account row (failed-login counter, lockout, version) is one of the two
// pieces of mutable shared state in the core; all writes go through the
// versioned update or the atomic lockout counters.
type Account struct {
	ID           string
	Email        string // stored lowercase; unique
	PasswordHash string
	FullName     string
	Role         Role
	Status       Status

	EmailVerified           bool
	EmailVerificationDigest string // digest of the pending verification token; empty when none
	EmailVerificationSentAt *time.Time

	MFAEnabled      bool
	MFASecretSealed string // AES-GCM sealed TOTP secret; pending until MFAEnabled
	MFAPendingAt    *time.Time

	ResetDigest string // digest of the outstanding password-reset token; empty when none
	ResetSentAt *time.Time

	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks structural invariants before persistence.
func (a *Account) Validate() error {
	if a.ID == "" {
		return errors.New("account: id is required")
	}
	if a.Email == "" || a.Email != strings.ToLower(a.Email) {
		return errors.New("account: email must be set and lowercase")
	}
	if a.PasswordHash == "" {
		return errors.New("account: password hash is required")
	}
	if a.Role != RoleUser && a.Role != RoleAdmin {
		return errors.New("account: unknown role")
	}
	if a.Status != StatusActive && a.Status != StatusDisabled {
		return errors.New("account: unknown status")
	}
	if a.FailedLoginAttempts < 0 {
		return errors.New("account: failed-login counter cannot be negative")
	}
	return nil
}
