package mfa

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/DowellHd/smart-stock-auth/internal/mfa/domain"
	"github.com/DowellHd/smart-stock-auth/internal/security"
)

type fakeCodeRepo struct {
	mu    sync.Mutex
	codes map[string]*domain.BackupCode
}

func newFakeCodeRepo() *fakeCodeRepo {
	return &fakeCodeRepo{codes: make(map[string]*domain.BackupCode)}
}

func (f *fakeCodeRepo) CreateBatch(_ context.Context, batch []domain.BackupCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range batch {
		bc := batch[i]
		f.codes[bc.ID] = &bc
	}
	return nil
}

func (f *fakeCodeRepo) ListUnconsumed(_ context.Context, accountID string) ([]domain.BackupCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.BackupCode
	for _, bc := range f.codes {
		if bc.AccountID == accountID && !bc.Consumed {
			out = append(out, *bc)
		}
	}
	return out, nil
}

func (f *fakeCodeRepo) CountUnconsumed(_ context.Context, accountID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, bc := range f.codes {
		if bc.AccountID == accountID && !bc.Consumed {
			n++
		}
	}
	return n, nil
}

func (f *fakeCodeRepo) MarkConsumed(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bc, ok := f.codes[id]
	if !ok || bc.Consumed {
		return false, nil
	}
	now := time.Now().UTC()
	bc.Consumed = true
	bc.ConsumedAt = &now
	return true, nil
}

func (f *fakeCodeRepo) DeleteByAccount(_ context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, bc := range f.codes {
		if bc.AccountID == accountID {
			delete(f.codes, id)
		}
	}
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *fakeCodeRepo) {
	t.Helper()
	box, err := security.NewSecretBox([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatalf("secret box: %v", err)
	}
	repo := newFakeCodeRepo()
	return NewEngine(repo, box, "smart-stock"), repo
}

func TestEngine_ProvisionAndVerify(t *testing.T) {
	eng, _ := newTestEngine(t)

	secret, uri, sealed, err := eng.Provision("trader@example.com")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	if !strings.HasPrefix(uri, "otpauth://totp/") {
		t.Fatalf("unexpected provisioning uri %q", uri)
	}
	if !strings.Contains(uri, "smart-stock") {
		t.Fatalf("uri missing issuer: %q", uri)
	}

	code, err := totp.GenerateCode(secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	if err := eng.VerifySealed(sealed, code); err != nil {
		t.Fatalf("verify valid code: %v", err)
	}
	if err := eng.VerifySealed(sealed, "000000"); err != ErrInvalidCode {
		t.Fatalf("expected ErrInvalidCode for bogus code, got %v", err)
	}
}

func TestEngine_SealedSecretIsOpaque(t *testing.T) {
	eng, _ := newTestEngine(t)

	secret, _, sealed, err := eng.Provision("trader@example.com")
	if err != nil {
		t.Fatalf("provision: %v", err)
	}
	// The sealed form goes straight onto the account row; it must never leak
	// the base32 secret and must verify as stored.
	if sealed == secret || strings.Contains(sealed, secret) {
		t.Fatal("sealed secret exposes plaintext")
	}
	stored := sealed
	code, err := totp.GenerateCode(secret, time.Now().UTC())
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	if err := eng.VerifySealed(stored, code); err != nil {
		t.Fatalf("verify against stored form: %v", err)
	}
	if err := eng.VerifySealed(stored[:len(stored)-1], code); err == nil {
		t.Fatal("truncated sealed secret verified")
	}
}

func TestVerifyCodeAt_AcceptsAdjacentWindow(t *testing.T) {
	secret, _, err := GenerateSecret("smart-stock", "trader@example.com")
	if err != nil {
		t.Fatalf("generate secret: %v", err)
	}
	now := time.Now().UTC()
	code, err := totp.GenerateCode(secret, now)
	if err != nil {
		t.Fatalf("generate code: %v", err)
	}
	if err := VerifyCodeAt(secret, code, now.Add(30*time.Second)); err != nil {
		t.Fatalf("code from previous window rejected: %v", err)
	}
	if err := VerifyCodeAt(secret, code, now.Add(120*time.Second)); err != ErrInvalidCode {
		t.Fatalf("stale code accepted, want ErrInvalidCode, got %v", err)
	}
}

func TestEngine_IssueBackupCodes(t *testing.T) {
	eng, repo := newTestEngine(t)
	ctx := context.Background()

	first, err := eng.IssueBackupCodes(ctx, "acct-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(first) != backupCodeCount {
		t.Fatalf("got %d codes, want %d", len(first), backupCodeCount)
	}
	seen := make(map[string]bool)
	for _, c := range first {
		if seen[c] {
			t.Fatalf("duplicate backup code %q", c)
		}
		seen[c] = true
	}

	// Re-issuing replaces the old batch wholesale.
	if _, err := eng.IssueBackupCodes(ctx, "acct-1"); err != nil {
		t.Fatalf("reissue: %v", err)
	}
	if err := eng.ConsumeBackupCode(ctx, "acct-1", first[0]); err != ErrInvalidCode {
		t.Fatalf("old batch still valid after reissue, got %v", err)
	}
	n, err := repo.CountUnconsumed(ctx, "acct-1")
	if err != nil || n != backupCodeCount {
		t.Fatalf("count after reissue = %d, %v", n, err)
	}
}

func TestEngine_ConsumeBackupCodeOnce(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	codes, err := eng.IssueBackupCodes(ctx, "acct-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Case-insensitive match on first use.
	if err := eng.ConsumeBackupCode(ctx, "acct-1", strings.ToLower(codes[0])); err != nil {
		t.Fatalf("consume: %v", err)
	}
	// Second use of the same code fails.
	if err := eng.ConsumeBackupCode(ctx, "acct-1", codes[0]); err != ErrInvalidCode {
		t.Fatalf("reused code accepted, got %v", err)
	}
	// Another account cannot spend this account's codes.
	if err := eng.ConsumeBackupCode(ctx, "acct-2", codes[1]); err != ErrInvalidCode {
		t.Fatalf("cross-account consume accepted, got %v", err)
	}

	remaining, err := eng.RemainingBackupCodes(ctx, "acct-1")
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	if remaining != backupCodeCount-1 {
		t.Fatalf("remaining = %d, want %d", remaining, backupCodeCount-1)
	}
}

func TestEngine_ClearBackupCodes(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := eng.IssueBackupCodes(ctx, "acct-1"); err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := eng.ClearBackupCodes(ctx, "acct-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	n, err := eng.RemainingBackupCodes(ctx, "acct-1")
	if err != nil || n != 0 {
		t.Fatalf("remaining after clear = %d, %v", n, err)
	}
}
