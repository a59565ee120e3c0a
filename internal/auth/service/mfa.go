package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/DowellHd/smart-stock-auth/internal/audit"
	auditdomain "github.com/DowellHd/smart-stock-auth/internal/audit/domain"
	sessiondomain "github.com/DowellHd/smart-stock-auth/internal/session/domain"
)

// MFAEnrollment is returned by EnableMFA: the secret and otpauth URI the user
// loads into their authenticator app. The enrollment is pending until
// ConfirmMFA proves the app produces valid codes.
type MFAEnrollment struct {
	Secret string
	URI    string
}

// EnableMFA starts TOTP enrollment. Requires the password again so a hijacked
// session cannot silently arm a second factor. Repeated calls before
// confirmation replace the pending secret.
func (o *Orchestrator) EnableMFA(ctx context.Context, accountID, password string) (*MFAEnrollment, error) {
	a, err := o.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrInvalidCredentials
	}
	ok, err := o.hasher.Verify(password, a.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if a.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}

	secret, uri, sealed, err := o.mfa.Provision(a.Email)
	if err != nil {
		return nil, err
	}
	now := o.now()
	a.MFASecretSealed = sealed
	a.MFAPendingAt = &now
	if err := o.accounts.UpdateVersioned(ctx, a); err != nil {
		return nil, err
	}
	o.auditor.Record(ctx, audit.Event{
		AccountID: a.ID,
		Kind:      auditdomain.EventMFAEnabled,
		Outcome:   auditdomain.OutcomeSuccess,
		Metadata:  "enrollment pending confirmation",
	})
	return &MFAEnrollment{Secret: secret, URI: uri}, nil
}

// ConfirmMFA activates a pending enrollment with a code from the app. On
// success every existing session is revoked (they predate the second factor)
// and the single batch of backup codes is returned. This is the only time the
// backup codes are visible.
func (o *Orchestrator) ConfirmMFA(ctx context.Context, accountID, code string) ([]string, error) {
	a, err := o.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if a == nil || a.MFASecretSealed == "" || a.MFAPendingAt == nil {
		return nil, ErrMFANotEnabled
	}
	if a.MFAEnabled {
		return nil, ErrMFAAlreadyEnabled
	}
	if err := o.verifyTOTP(a, code); err != nil {
		o.auditor.Record(ctx, audit.Event{
			AccountID: a.ID,
			Kind:      auditdomain.EventMFAFailure,
			Outcome:   auditdomain.OutcomeFailure,
			Metadata:  "enrollment confirmation failed",
		})
		return nil, ErrInvalidMFACode
	}

	a.MFAEnabled = true
	a.MFAPendingAt = nil
	if err := o.accounts.UpdateVersioned(ctx, a); err != nil {
		return nil, err
	}
	if err := o.sessions.RevokeAll(ctx, a.ID, sessiondomain.RevokeReasonMFAEnabled); err != nil {
		o.log.Error("revoke sessions on mfa confirmation failed", zap.String("account_id", a.ID), zap.Error(err))
	}
	codes, err := o.mfa.IssueBackupCodes(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	if err := o.mail.SendMFAEnabled(ctx, a.Email); err != nil {
		o.log.Warn("mfa enabled notification failed", zap.String("account_id", a.ID), zap.Error(err))
	}
	o.auditor.Record(ctx, audit.Event{
		AccountID: a.ID,
		Kind:      auditdomain.EventMFAConfirmed,
		Outcome:   auditdomain.OutcomeSuccess,
	})
	return codes, nil
}

// DisableMFA turns the second factor off. Requires both the password and a
// currently valid code (TOTP or backup) so neither a stolen password nor a
// stolen session suffices alone. Clears the secret and all backup codes.
func (o *Orchestrator) DisableMFA(ctx context.Context, accountID, password, code string) error {
	a, err := o.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if a == nil {
		return ErrInvalidCredentials
	}
	if !a.MFAEnabled {
		return ErrMFANotEnabled
	}
	ok, err := o.hasher.Verify(password, a.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}
	if err := o.verifyTOTP(a, code); err != nil {
		if backupErr := o.mfa.ConsumeBackupCode(ctx, a.ID, code); backupErr != nil {
			o.auditor.Record(ctx, audit.Event{
				AccountID: a.ID,
				Kind:      auditdomain.EventMFAFailure,
				Outcome:   auditdomain.OutcomeFailure,
				Metadata:  "disable attempt with invalid code",
			})
			return ErrInvalidMFACode
		}
	}

	a.MFAEnabled = false
	a.MFASecretSealed = ""
	a.MFAPendingAt = nil
	if err := o.accounts.UpdateVersioned(ctx, a); err != nil {
		return err
	}
	if err := o.mfa.ClearBackupCodes(ctx, a.ID); err != nil {
		o.log.Error("clear backup codes failed", zap.String("account_id", a.ID), zap.Error(err))
	}
	o.auditor.Record(ctx, audit.Event{
		AccountID: a.ID,
		Kind:      auditdomain.EventMFADisabled,
		Outcome:   auditdomain.OutcomeSuccess,
	})
	return nil
}

// RemainingBackupCodes reports how many backup codes the account has left.
func (o *Orchestrator) RemainingBackupCodes(ctx context.Context, accountID string) (int, error) {
	a, err := o.accounts.GetByID(ctx, accountID)
	if err != nil {
		return 0, err
	}
	if a == nil || !a.MFAEnabled {
		return 0, ErrMFANotEnabled
	}
	return o.mfa.RemainingBackupCodes(ctx, accountID)
}
