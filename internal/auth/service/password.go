package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/DowellHd/smart-stock-auth/internal/audit"
	auditdomain "github.com/DowellHd/smart-stock-auth/internal/audit/domain"
	"github.com/DowellHd/smart-stock-auth/internal/security"
	sessiondomain "github.com/DowellHd/smart-stock-auth/internal/session/domain"
)

// ForgotPassword issues a one-hour reset token. Always returns nil for
// unknown addresses so the endpoint cannot be used to probe which emails
// exist. A repeated request replaces the outstanding token.
func (o *Orchestrator) ForgotPassword(ctx context.Context, emailAddr string) error {
	a, err := o.accounts.GetByEmail(ctx, normalizeEmail(emailAddr))
	if err != nil {
		return err
	}
	if a == nil {
		return nil
	}
	token, _, err := o.tokens.MintReset(a.ID)
	if err != nil {
		return err
	}
	now := o.now()
	a.ResetDigest = security.DigestToken(token)
	a.ResetSentAt = &now
	if err := o.accounts.UpdateVersioned(ctx, a); err != nil {
		return err
	}
	if err := o.mail.SendPasswordReset(ctx, a.Email, token); err != nil {
		o.log.Warn("password reset email failed", zap.String("account_id", a.ID), zap.Error(err))
	}
	o.auditor.Record(ctx, audit.Event{
		AccountID: a.ID,
		Kind:      auditdomain.EventPasswordResetRequested,
		Outcome:   auditdomain.OutcomeSuccess,
	})
	return nil
}

// ResetPassword redeems a reset token and sets a new password. The token must
// carry the reset claim (an access token is never accepted here) and match the
// digest stored on the account row, which makes it single-use. Every session
// is revoked and the lockout counter cleared: whoever holds the new password
// starts from a clean slate, and any stolen session dies with the old one.
func (o *Orchestrator) ResetPassword(ctx context.Context, token, newPassword string) error {
	accountID, err := o.tokens.ValidateReset(token)
	if err != nil {
		return ErrInvalidResetToken
	}
	a, err := o.accounts.GetByResetDigest(ctx, security.DigestToken(token))
	if err != nil {
		return err
	}
	if a == nil || a.ID != accountID || a.ResetSentAt == nil || o.now().After(a.ResetSentAt.Add(resetTTL)) {
		return ErrInvalidResetToken
	}
	hashed, err := o.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	a.PasswordHash = hashed
	a.ResetDigest = ""
	a.ResetSentAt = nil
	a.FailedLoginAttempts = 0
	a.LockedUntil = nil
	if err := o.accounts.UpdateVersioned(ctx, a); err != nil {
		return err
	}
	if err := o.sessions.RevokeAll(ctx, a.ID, sessiondomain.RevokeReasonPasswordReset); err != nil {
		o.log.Error("revoke sessions on password reset failed", zap.String("account_id", a.ID), zap.Error(err))
	}
	o.auditor.Record(ctx, audit.Event{
		AccountID: a.ID,
		Kind:      auditdomain.EventPasswordReset,
		Outcome:   auditdomain.OutcomeSuccess,
	})
	return nil
}

// ChangePassword sets a new password after re-verifying the current one. All
// other sessions are revoked; the session making the change stays signed in.
func (o *Orchestrator) ChangePassword(ctx context.Context, accountID, sessionID, current, newPassword string) error {
	a, err := o.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if a == nil {
		return ErrInvalidCredentials
	}
	ok, err := o.hasher.Verify(current, a.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}
	hashed, err := o.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	a.PasswordHash = hashed
	if err := o.accounts.UpdateVersioned(ctx, a); err != nil {
		return err
	}
	if err := o.sessions.RevokeAllExcept(ctx, a.ID, sessionID, sessiondomain.RevokeReasonPasswordChanged); err != nil {
		o.log.Error("revoke sessions on password change failed", zap.String("account_id", a.ID), zap.Error(err))
	}
	o.auditor.Record(ctx, audit.Event{
		AccountID: a.ID,
		Kind:      auditdomain.EventPasswordChanged,
		Outcome:   auditdomain.OutcomeSuccess,
		Metadata:  fmt.Sprintf(`{"kept_session_id":%q}`, sessionID),
	})
	return nil
}
