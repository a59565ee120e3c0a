package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	accountdomain "github.com/DowellHd/smart-stock-auth/internal/account/domain"
	"github.com/DowellHd/smart-stock-auth/internal/audit"
	auditdomain "github.com/DowellHd/smart-stock-auth/internal/audit/domain"
	"github.com/DowellHd/smart-stock-auth/internal/challenge"
	"github.com/DowellHd/smart-stock-auth/internal/mfa"
	"github.com/DowellHd/smart-stock-auth/internal/policy/engine"
	sessiondomain "github.com/DowellHd/smart-stock-auth/internal/session/domain"
	sessionsvc "github.com/DowellHd/smart-stock-auth/internal/session/service"
)

// Login authenticates an email/password pair. The lockout check runs before
// password verification so a locked account does not leak whether the
// password was right. When MFA is enabled the password step parks the login
// behind a challenge and returns MFARequiredError instead of tokens.
func (o *Orchestrator) Login(ctx context.Context, emailAddr, password, ip, userAgent string) (*TokenPair, error) {
	fingerprint := sessiondomain.Fingerprint(ip, userAgent)

	a, err := o.lookupForLogin(ctx, emailAddr)
	if err != nil {
		return nil, err
	}
	if a == nil {
		o.auditor.Record(ctx, audit.Event{
			Kind:        auditdomain.EventLoginFailure,
			Outcome:     auditdomain.OutcomeFailure,
			Fingerprint: fingerprint,
			Metadata:    "unknown email",
		})
		return nil, ErrInvalidCredentials
	}

	if locked, until := o.lockout.Locked(a); locked {
		o.auditor.Record(ctx, audit.Event{
			AccountID:   a.ID,
			Kind:        auditdomain.EventLoginDenied,
			Outcome:     auditdomain.OutcomeDenied,
			Fingerprint: fingerprint,
			Metadata:    "account locked",
		})
		return nil, &AccountLockedError{RetryAfter: o.lockout.RetryAfter(until)}
	}

	ok, err := o.hasher.Verify(password, a.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, o.failLogin(ctx, a, fingerprint)
	}

	if res := o.admission.Evaluate(ctx, a); !res.Allow {
		o.auditor.Record(ctx, audit.Event{
			AccountID:   a.ID,
			Kind:        auditdomain.EventLoginDenied,
			Outcome:     auditdomain.OutcomeDenied,
			Fingerprint: fingerprint,
			Metadata:    res.Reason,
		})
		if res.Reason == engine.ReasonEmailNotVerified {
			return nil, ErrEmailNotVerified
		}
		// Disabled and any other denial look like bad credentials from outside.
		return nil, ErrInvalidCredentials
	}

	if a.MFAEnabled {
		ch := &challenge.Challenge{
			ID:          uuid.NewString(),
			AccountID:   a.ID,
			Fingerprint: fingerprint,
			IssuedAt:    o.now(),
		}
		if err := o.challenges.Put(ctx, ch, challenge.DefaultTTL); err != nil {
			return nil, fmt.Errorf("store mfa challenge: %w", err)
		}
		o.auditor.Record(ctx, audit.Event{
			AccountID:   a.ID,
			Kind:        auditdomain.EventMFAChallengeIssued,
			Outcome:     auditdomain.OutcomeSuccess,
			Fingerprint: fingerprint,
		})
		// The failure counter stays: the login is not complete yet.
		return nil, &MFARequiredError{ChallengeID: ch.ID}
	}

	pair, err := o.issueTokens(ctx, a, fingerprint, "")
	if err != nil {
		return nil, err
	}
	o.markLoginSuccess(ctx, a)
	o.auditor.Record(ctx, audit.Event{
		AccountID:   a.ID,
		Kind:        auditdomain.EventLoginSuccess,
		Outcome:     auditdomain.OutcomeSuccess,
		Fingerprint: fingerprint,
		Metadata:    fmt.Sprintf(`{"session_id":%q}`, pair.SessionID),
	})
	return pair, nil
}

// SubmitMFA completes a login parked behind a challenge. The code may be a
// TOTP code or a backup code; backup codes burn on use. A wrong code counts
// against the same lockout counter as a wrong password.
func (o *Orchestrator) SubmitMFA(ctx context.Context, challengeID, code, ip, userAgent string) (*TokenPair, error) {
	fingerprint := sessiondomain.Fingerprint(ip, userAgent)

	ch, err := o.challenges.Take(ctx, challengeID)
	if err != nil {
		if errors.Is(err, challenge.ErrNotFound) {
			return nil, ErrInvalidMFACode
		}
		return nil, err
	}
	a, err := o.accounts.GetByID(ctx, ch.AccountID)
	if err != nil {
		return nil, err
	}
	if a == nil || !a.MFAEnabled || a.MFASecretSealed == "" {
		return nil, ErrInvalidMFACode
	}
	// The challenge is pinned to the client that passed the password step.
	if ch.Fingerprint != fingerprint {
		o.auditor.Record(ctx, audit.Event{
			AccountID:   a.ID,
			Kind:        auditdomain.EventMFAFailure,
			Outcome:     auditdomain.OutcomeDenied,
			Fingerprint: fingerprint,
			Metadata:    "challenge fingerprint mismatch",
		})
		return nil, ErrInvalidMFACode
	}
	if locked, until := o.lockout.Locked(a); locked {
		return nil, &AccountLockedError{RetryAfter: o.lockout.RetryAfter(until)}
	}

	usedBackup := false
	if err := o.verifyTOTP(a, code); err != nil {
		if backupErr := o.mfa.ConsumeBackupCode(ctx, a.ID, code); backupErr != nil {
			return nil, o.failMFA(ctx, a, fingerprint)
		}
		usedBackup = true
	}

	pair, err := o.issueTokens(ctx, a, fingerprint, "")
	if err != nil {
		return nil, err
	}
	o.markLoginSuccess(ctx, a)
	o.auditor.Record(ctx, audit.Event{
		AccountID:   a.ID,
		Kind:        auditdomain.EventMFASuccess,
		Outcome:     auditdomain.OutcomeSuccess,
		Fingerprint: fingerprint,
	})
	if usedBackup {
		remaining, err := o.mfa.RemainingBackupCodes(ctx, a.ID)
		if err != nil {
			remaining = -1
		}
		o.auditor.Record(ctx, audit.Event{
			AccountID:   a.ID,
			Kind:        auditdomain.EventBackupCodeConsumed,
			Outcome:     auditdomain.OutcomeSuccess,
			Fingerprint: fingerprint,
			Metadata:    fmt.Sprintf(`{"remaining":%d}`, remaining),
		})
	}
	return pair, nil
}

// Refresh rotates a refresh token and mints a new access token. Reuse of a
// superseded token revokes the device chain; the caller sees only a generic
// failure while the audit log and security stream record the detection.
func (o *Orchestrator) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	sess, newRefresh, err := o.sessions.Rotate(ctx, refreshToken)
	if err != nil {
		var reuse *sessionsvc.ReuseError
		if errors.As(err, &reuse) {
			o.auditor.Record(ctx, audit.Event{
				AccountID:   reuse.AccountID,
				Kind:        auditdomain.EventTokenReuseDetected,
				Outcome:     auditdomain.OutcomeDenied,
				Fingerprint: reuse.Fingerprint,
				Metadata:    "superseded refresh token presented, chain revoked",
			})
			return nil, ErrInvalidRefreshToken
		}
		if errors.Is(err, sessionsvc.ErrSessionNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}

	a, err := o.accounts.GetByID(ctx, sess.AccountID)
	if err != nil {
		return nil, err
	}
	if a == nil || a.Status != accountdomain.StatusActive {
		if err := o.sessions.Revoke(ctx, sess.ID, sessiondomain.RevokeReasonUserRequest); err != nil {
			o.log.Warn("revoke session for inactive account failed", zap.String("session_id", sess.ID), zap.Error(err))
		}
		return nil, ErrInvalidRefreshToken
	}

	access, expiresAt, err := o.tokens.MintAccess(a.ID, string(a.Role), sess.ID)
	if err != nil {
		return nil, err
	}
	o.auditor.Record(ctx, audit.Event{
		AccountID:   a.ID,
		Kind:        auditdomain.EventTokenRefreshed,
		Outcome:     auditdomain.OutcomeSuccess,
		Fingerprint: sess.Fingerprint,
	})
	return &TokenPair{
		AccessToken:     access,
		AccessExpiresAt: expiresAt,
		RefreshToken:    newRefresh,
		SessionID:       sess.ID,
	}, nil
}

// Logout revokes the session. Idempotent; logging out an already-revoked
// session succeeds.
func (o *Orchestrator) Logout(ctx context.Context, sessionID string) error {
	if err := o.sessions.Revoke(ctx, sessionID, sessiondomain.RevokeReasonLogout); err != nil {
		return err
	}
	o.auditor.Record(ctx, audit.Event{
		Kind:     auditdomain.EventLogout,
		Outcome:  auditdomain.OutcomeSuccess,
		Metadata: fmt.Sprintf(`{"session_id":%q}`, sessionID),
	})
	return nil
}

// ListSessions returns the account's session summaries. No token material is
// exposed.
func (o *Orchestrator) ListSessions(ctx context.Context, accountID string) ([]sessiondomain.Summary, error) {
	return o.sessions.List(ctx, accountID)
}

// RevokeSession revokes one of the account's own sessions. A session id
// belonging to another account reads as not found.
func (o *Orchestrator) RevokeSession(ctx context.Context, accountID, sessionID string) error {
	sess, err := o.sessions.Validate(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sessionsvc.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	if sess.AccountID != accountID {
		return ErrSessionNotFound
	}
	if err := o.sessions.Revoke(ctx, sessionID, sessiondomain.RevokeReasonUserRequest); err != nil {
		return err
	}
	o.auditor.Record(ctx, audit.Event{
		AccountID: accountID,
		Kind:      auditdomain.EventSessionRevoked,
		Outcome:   auditdomain.OutcomeSuccess,
		Metadata:  fmt.Sprintf(`{"session_id":%q}`, sessionID),
	})
	return nil
}

func (o *Orchestrator) lookupForLogin(ctx context.Context, emailAddr string) (*accountdomain.Account, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return nil, nil
	}
	return o.accounts.GetByEmail(ctx, emailAddr)
}

// failLogin counts the failure and maps it to the caller-facing error,
// recording a lockout trip at elevated kind.
func (o *Orchestrator) failLogin(ctx context.Context, a *accountdomain.Account, fingerprint string) error {
	locked, until, err := o.lockout.RecordFailure(ctx, a.ID)
	if err != nil {
		return err
	}
	if locked {
		o.auditor.Record(ctx, audit.Event{
			AccountID:   a.ID,
			Kind:        auditdomain.EventLoginLocked,
			Outcome:     auditdomain.OutcomeDenied,
			Fingerprint: fingerprint,
		})
		return &AccountLockedError{RetryAfter: o.lockout.RetryAfter(*until)}
	}
	o.auditor.Record(ctx, audit.Event{
		AccountID:   a.ID,
		Kind:        auditdomain.EventLoginFailure,
		Outcome:     auditdomain.OutcomeFailure,
		Fingerprint: fingerprint,
	})
	return ErrInvalidCredentials
}

// failMFA is failLogin for the second-factor step; wrong codes share the
// lockout counter with wrong passwords.
func (o *Orchestrator) failMFA(ctx context.Context, a *accountdomain.Account, fingerprint string) error {
	locked, until, err := o.lockout.RecordFailure(ctx, a.ID)
	if err != nil {
		return err
	}
	if locked {
		o.auditor.Record(ctx, audit.Event{
			AccountID:   a.ID,
			Kind:        auditdomain.EventLoginLocked,
			Outcome:     auditdomain.OutcomeDenied,
			Fingerprint: fingerprint,
		})
		return &AccountLockedError{RetryAfter: o.lockout.RetryAfter(*until)}
	}
	o.auditor.Record(ctx, audit.Event{
		AccountID:   a.ID,
		Kind:        auditdomain.EventMFAFailure,
		Outcome:     auditdomain.OutcomeFailure,
		Fingerprint: fingerprint,
	})
	return ErrInvalidMFACode
}

func (o *Orchestrator) verifyTOTP(a *accountdomain.Account, code string) error {
	if err := o.mfa.VerifySealed(a.MFASecretSealed, code); err != nil {
		return mfa.ErrInvalidCode
	}
	return nil
}

