// Package service implements the authentication orchestrator: the single
// entry point the API layer calls for registration, login, token refresh, MFA
// enrollment, and password lifecycle. It sequences the credential store,
// session registry, MFA engine, lockout policy, and audit log; it owns no
// state of its own.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	accountdomain "github.com/DowellHd/smart-stock-auth/internal/account/domain"
	accountrepo "github.com/DowellHd/smart-stock-auth/internal/account/repository"
	"github.com/DowellHd/smart-stock-auth/internal/audit"
	auditdomain "github.com/DowellHd/smart-stock-auth/internal/audit/domain"
	"github.com/DowellHd/smart-stock-auth/internal/challenge"
	"github.com/DowellHd/smart-stock-auth/internal/email"
	"github.com/DowellHd/smart-stock-auth/internal/lockout"
	"github.com/DowellHd/smart-stock-auth/internal/mfa"
	"github.com/DowellHd/smart-stock-auth/internal/policy/engine"
	"github.com/DowellHd/smart-stock-auth/internal/security"
	sessionsvc "github.com/DowellHd/smart-stock-auth/internal/session/service"
)

// Sentinel errors for the orchestrator; the API layer maps them to status codes.
var (
	ErrEmailAlreadyRegistered   = errors.New("email already registered")
	ErrInvalidEmail             = errors.New("malformed email address")
	ErrInvalidCredentials       = errors.New("invalid credentials")
	ErrInvalidMFACode           = errors.New("invalid mfa code")
	ErrInvalidRefreshToken      = errors.New("invalid or expired refresh token")
	ErrSessionNotFound          = errors.New("session not found")
	ErrEmailNotVerified         = errors.New("email not verified")
	ErrInvalidVerificationToken = errors.New("invalid or expired verification token")
	ErrInvalidResetToken        = errors.New("invalid or expired reset token")
	ErrMFAAlreadyEnabled        = errors.New("mfa already enabled")
	ErrMFANotEnabled            = errors.New("mfa not enabled")
)

// AccountLockedError reports a lockout with the remaining wait.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked, retry after %s", e.RetryAfter.Round(time.Second))
}

// MFARequiredError signals that the password step passed and a second factor
// must be submitted against the challenge.
type MFARequiredError struct {
	ChallengeID string
}

func (e *MFARequiredError) Error() string { return "mfa required" }

// TokenPair is the result of a fully authenticated login or refresh. The
// refresh token appears here exactly once; only its digest is stored.
type TokenPair struct {
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
	SessionID       string
}

const (
	verificationTTL = 24 * time.Hour
	resetTTL        = time.Hour
)

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Orchestrator wires the collaborators behind the caller-facing operations.
type Orchestrator struct {
	accounts   accountrepo.Repository
	sessions   *sessionsvc.Registry
	mfa        *mfa.Engine
	lockout    *lockout.Policy
	challenges challenge.Store
	mail       email.Sender
	auditor    audit.AuditLogger
	admission  *engine.LoginEvaluator
	hasher     *security.PasswordHasher
	tokens     *security.TokenCodec
	log        *zap.Logger

	now func() time.Time
}

// New returns an Orchestrator with the given dependencies. auditor and mail
// must be non-nil; use the no-op implementations when a deployment does not
// configure them.
func New(
	accounts accountrepo.Repository,
	sessions *sessionsvc.Registry,
	mfaEngine *mfa.Engine,
	lockoutPolicy *lockout.Policy,
	challenges challenge.Store,
	mail email.Sender,
	auditor audit.AuditLogger,
	admission *engine.LoginEvaluator,
	hasher *security.PasswordHasher,
	tokens *security.TokenCodec,
	log *zap.Logger,
) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		accounts:   accounts,
		sessions:   sessions,
		mfa:        mfaEngine,
		lockout:    lockoutPolicy,
		challenges: challenges,
		mail:       mail,
		auditor:    auditor,
		admission:  admission,
		hasher:     hasher,
		tokens:     tokens,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an account with a hashed password and sends a verification
// email carrying a 24-hour single-use token. Mail failure does not fail the
// registration. Returns the new account ID.
func (o *Orchestrator) Register(ctx context.Context, emailAddr, password, fullName string) (string, error) {
	emailAddr = strings.TrimSpace(strings.ToLower(emailAddr))
	if !emailRe.MatchString(emailAddr) {
		return "", ErrInvalidEmail
	}
	hashed, err := o.hasher.Hash(password)
	if err != nil {
		return "", err
	}
	existing, err := o.accounts.GetByEmail(ctx, emailAddr)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", ErrEmailAlreadyRegistered
	}

	verifyToken, err := security.GenerateOpaqueToken()
	if err != nil {
		return "", err
	}
	now := o.now()
	a := &accountdomain.Account{
		ID:                      uuid.NewString(),
		Email:                   emailAddr,
		PasswordHash:            hashed,
		FullName:                strings.TrimSpace(fullName),
		Role:                    accountdomain.RoleUser,
		Status:                  accountdomain.StatusActive,
		EmailVerificationDigest: security.DigestToken(verifyToken),
		EmailVerificationSentAt: &now,
		Version:                 1,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := a.Validate(); err != nil {
		return "", err
	}
	if err := o.accounts.Create(ctx, a); err != nil {
		return "", err
	}
	if err := o.mail.SendVerification(ctx, a.Email, verifyToken); err != nil {
		o.log.Warn("verification email failed", zap.String("account_id", a.ID), zap.Error(err))
	}
	o.auditor.Record(ctx, audit.Event{
		AccountID: a.ID,
		Kind:      auditdomain.EventRegistered,
		Outcome:   auditdomain.OutcomeSuccess,
	})
	return a.ID, nil
}

// VerifyEmail redeems a verification token. The token is single-use: success
// clears the stored digest.
func (o *Orchestrator) VerifyEmail(ctx context.Context, token string) error {
	a, err := o.accounts.GetByEmailVerificationDigest(ctx, security.DigestToken(token))
	if err != nil {
		return err
	}
	if a == nil || a.EmailVerificationSentAt == nil || o.now().After(a.EmailVerificationSentAt.Add(verificationTTL)) {
		return ErrInvalidVerificationToken
	}
	a.EmailVerified = true
	a.EmailVerificationDigest = ""
	a.EmailVerificationSentAt = nil
	if err := o.accounts.UpdateVersioned(ctx, a); err != nil {
		return err
	}
	o.auditor.Record(ctx, audit.Event{
		AccountID: a.ID,
		Kind:      auditdomain.EventEmailVerified,
		Outcome:   auditdomain.OutcomeSuccess,
	})
	return nil
}

// ResendVerification issues a fresh verification token. Silent for unknown or
// already-verified addresses so the endpoint cannot be used to probe emails.
func (o *Orchestrator) ResendVerification(ctx context.Context, emailAddr string) error {
	emailAddr = strings.TrimSpace(strings.ToLower(emailAddr))
	a, err := o.accounts.GetByEmail(ctx, emailAddr)
	if err != nil {
		return err
	}
	if a == nil || a.EmailVerified {
		return nil
	}
	token, err := security.GenerateOpaqueToken()
	if err != nil {
		return err
	}
	now := o.now()
	a.EmailVerificationDigest = security.DigestToken(token)
	a.EmailVerificationSentAt = &now
	if err := o.accounts.UpdateVersioned(ctx, a); err != nil {
		return err
	}
	if err := o.mail.SendVerification(ctx, a.Email, token); err != nil {
		o.log.Warn("verification email failed", zap.String("account_id", a.ID), zap.Error(err))
	}
	o.auditor.Record(ctx, audit.Event{
		AccountID: a.ID,
		Kind:      auditdomain.EventVerificationResent,
		Outcome:   auditdomain.OutcomeSuccess,
	})
	return nil
}

func normalizeEmail(emailAddr string) string {
	return strings.TrimSpace(strings.ToLower(emailAddr))
}

// issueTokens creates a session and mints the access token for it.
func (o *Orchestrator) issueTokens(ctx context.Context, a *accountdomain.Account, fingerprint, parentID string) (*TokenPair, error) {
	sess, refresh, err := o.sessions.Create(ctx, a.ID, fingerprint, parentID)
	if err != nil {
		return nil, err
	}
	access, expiresAt, err := o.tokens.MintAccess(a.ID, string(a.Role), sess.ID)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:     access,
		AccessExpiresAt: expiresAt,
		RefreshToken:    refresh,
		SessionID:       sess.ID,
	}, nil
}

// markLoginSuccess resets the failure counter and stamps last_login_at. The
// stamp is best-effort: losing the version race to a concurrent writer only
// costs the timestamp.
func (o *Orchestrator) markLoginSuccess(ctx context.Context, a *accountdomain.Account) {
	if err := o.lockout.RecordSuccess(ctx, a.ID); err != nil {
		o.log.Warn("failure counter reset failed", zap.String("account_id", a.ID), zap.Error(err))
	}
	now := o.now()
	a.LastLoginAt = &now
	a.FailedLoginAttempts = 0
	a.LockedUntil = nil
	if err := o.accounts.UpdateVersioned(ctx, a); err != nil {
		if !errors.Is(err, accountrepo.ErrStaleAccount) {
			o.log.Warn("last login stamp failed", zap.String("account_id", a.ID), zap.Error(err))
		}
	}
}
