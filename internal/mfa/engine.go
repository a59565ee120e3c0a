package mfa

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DowellHd/smart-stock-auth/internal/mfa/domain"
	"github.com/DowellHd/smart-stock-auth/internal/mfa/repository"
	"github.com/DowellHd/smart-stock-auth/internal/security"
)

const backupCodeCount = 10

// backupCodeAlphabet excludes ambiguous characters (0/O, 1/I/L).
const backupCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// Engine provisions and verifies second factors. TOTP secrets are sealed with
// the secret box before they leave this package; backup codes are stored only
// as digests.
type Engine struct {
	codes  repository.Repository
	box    *security.SecretBox
	issuer string
}

func NewEngine(codes repository.Repository, box *security.SecretBox, issuer string) *Engine {
	return &Engine{codes: codes, box: box, issuer: issuer}
}

// Provision generates a fresh TOTP secret for the account and returns the
// base32 secret and otpauth URI for the enrollment prompt, plus the sealed
// form for storage. The caller persists the sealed secret as pending; nothing
// is armed until Confirm succeeds.
func (e *Engine) Provision(accountEmail string) (secret, uri, sealed string, err error) {
	secret, uri, err = GenerateSecret(e.issuer, accountEmail)
	if err != nil {
		return "", "", "", fmt.Errorf("generate totp secret: %w", err)
	}
	sealed, err = e.box.Seal(secret)
	if err != nil {
		return "", "", "", fmt.Errorf("seal totp secret: %w", err)
	}
	return secret, uri, sealed, nil
}

// VerifySealed opens the stored secret and checks the presented code.
func (e *Engine) VerifySealed(sealed string, code string) error {
	plain, err := e.box.Open(sealed)
	if err != nil {
		return fmt.Errorf("open totp secret: %w", err)
	}
	return VerifyCode(plain, code)
}

// IssueBackupCodes replaces the account's backup codes with a fresh batch and
// returns the plaintext codes. This is the only time the codes are visible;
// only digests are persisted.
func (e *Engine) IssueBackupCodes(ctx context.Context, accountID string) ([]string, error) {
	if err := e.codes.DeleteByAccount(ctx, accountID); err != nil {
		return nil, fmt.Errorf("clear backup codes: %w", err)
	}
	plain := make([]string, 0, backupCodeCount)
	batch := make([]domain.BackupCode, 0, backupCodeCount)
	now := time.Now().UTC()
	for i := 0; i < backupCodeCount; i++ {
		code, err := newBackupCode()
		if err != nil {
			return nil, err
		}
		plain = append(plain, code)
		batch = append(batch, domain.BackupCode{
			ID:         uuid.NewString(),
			AccountID:  accountID,
			CodeDigest: security.DigestToken(normalizeBackupCode(code)),
			CreatedAt:  now,
		})
	}
	if err := e.codes.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("store backup codes: %w", err)
	}
	return plain, nil
}

// ConsumeBackupCode burns a backup code. Matching is case-insensitive and a
// code can be used exactly once; concurrent submissions of the same code
// resolve to a single winner at the repository.
func (e *Engine) ConsumeBackupCode(ctx context.Context, accountID, code string) error {
	normalized := normalizeBackupCode(code)
	unconsumed, err := e.codes.ListUnconsumed(ctx, accountID)
	if err != nil {
		return fmt.Errorf("list backup codes: %w", err)
	}
	for _, bc := range unconsumed {
		if security.DigestEqual(normalized, bc.CodeDigest) {
			ok, err := e.codes.MarkConsumed(ctx, bc.ID)
			if err != nil {
				return fmt.Errorf("consume backup code: %w", err)
			}
			if !ok {
				return ErrInvalidCode
			}
			return nil
		}
	}
	return ErrInvalidCode
}

// RemainingBackupCodes reports how many codes the account can still use.
func (e *Engine) RemainingBackupCodes(ctx context.Context, accountID string) (int, error) {
	return e.codes.CountUnconsumed(ctx, accountID)
}

// ClearBackupCodes removes all of the account's codes, used when the second
// factor is disabled.
func (e *Engine) ClearBackupCodes(ctx context.Context, accountID string) error {
	return e.codes.DeleteByAccount(ctx, accountID)
}

// newBackupCode returns a code like "XXXX-XXXX" drawn from the unambiguous
// alphabet.
func newBackupCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.New("backup code entropy unavailable")
	}
	var b strings.Builder
	for i, c := range buf {
		if i == 4 {
			b.WriteByte('-')
		}
		b.WriteByte(backupCodeAlphabet[int(c)%len(backupCodeAlphabet)])
	}
	return b.String(), nil
}

func normalizeBackupCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
