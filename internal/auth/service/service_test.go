package service

import (
	"context"
	"sync"
	"time"

	accountdomain "github.com/DowellHd/smart-stock-auth/internal/account/domain"
	accountrepo "github.com/DowellHd/smart-stock-auth/internal/account/repository"
	"github.com/DowellHd/smart-stock-auth/internal/audit"
	mfadomain "github.com/DowellHd/smart-stock-auth/internal/mfa/domain"
	sessiondomain "github.com/DowellHd/smart-stock-auth/internal/session/domain"
)

// fakeAccountRepo is an in-memory account store with the same conditional
// update semantics as the Postgres implementation.
type fakeAccountRepo struct {
	mu   sync.Mutex
	byID map[string]*accountdomain.Account
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{byID: make(map[string]*accountdomain.Account)}
}

func copyAccount(a *accountdomain.Account) *accountdomain.Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

func (f *fakeAccountRepo) GetByID(_ context.Context, id string) (*accountdomain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyAccount(f.byID[id]), nil
}

func (f *fakeAccountRepo) GetByEmail(_ context.Context, email string) (*accountdomain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.Email == email {
			return copyAccount(a), nil
		}
	}
	return nil, nil
}

func (f *fakeAccountRepo) GetByEmailVerificationDigest(_ context.Context, digest string) (*accountdomain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.EmailVerificationDigest != "" && a.EmailVerificationDigest == digest {
			return copyAccount(a), nil
		}
	}
	return nil, nil
}

func (f *fakeAccountRepo) GetByResetDigest(_ context.Context, digest string) (*accountdomain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.byID {
		if a.ResetDigest != "" && a.ResetDigest == digest {
			return copyAccount(a), nil
		}
	}
	return nil, nil
}

func (f *fakeAccountRepo) Create(_ context.Context, a *accountdomain.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[a.ID] = copyAccount(a)
	return nil
}

func (f *fakeAccountRepo) UpdateVersioned(_ context.Context, a *accountdomain.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.byID[a.ID]
	if !ok || stored.Version != a.Version {
		return accountrepo.ErrStaleAccount
	}
	c := copyAccount(a)
	c.Version++
	f.byID[a.ID] = c
	a.Version++
	return nil
}

func (f *fakeAccountRepo) IncrementFailedLogins(_ context.Context, id string, threshold int, window time.Duration) (bool, *time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.byID[id]
	if !ok {
		return false, nil, nil
	}
	a.FailedLoginAttempts++
	if a.FailedLoginAttempts >= threshold {
		until := time.Now().UTC().Add(window)
		a.LockedUntil = &until
		u := until
		return true, &u, nil
	}
	return false, nil, nil
}

func (f *fakeAccountRepo) ResetFailedLogins(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.byID[id]; ok {
		a.FailedLoginAttempts = 0
		a.LockedUntil = nil
	}
	return nil
}

// setLockedUntil lets tests move a lock into the past to simulate the window
// elapsing without a real clock.
func (f *fakeAccountRepo) setLockedUntil(id string, until *time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.byID[id]; ok {
		a.LockedUntil = until
	}
}

// fakeSessionRepo mirrors the Postgres session repository's CAS contract,
// including the superseded-digest history used for reuse detection.
type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*sessiondomain.Session
	history  map[string]string // superseded digest -> session id
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{
		sessions: make(map[string]*sessiondomain.Session),
		history:  make(map[string]string),
	}
}

func copySession(s *sessiondomain.Session) *sessiondomain.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func (f *fakeSessionRepo) GetByID(_ context.Context, id string) (*sessiondomain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copySession(f.sessions[id]), nil
}

func (f *fakeSessionRepo) GetByTokenDigest(_ context.Context, digest string) (*sessiondomain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.TokenDigest == digest {
			return copySession(s), nil
		}
	}
	return nil, nil
}

func (f *fakeSessionRepo) FindSupersededDigest(_ context.Context, digest string) (*sessiondomain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.history[digest]
	if !ok {
		return nil, nil
	}
	return copySession(f.sessions[id]), nil
}

func (f *fakeSessionRepo) Create(_ context.Context, s *sessiondomain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions[s.ID] = copySession(s)
	return nil
}

func (f *fakeSessionRepo) CASRotate(_ context.Context, sessionID string, expectedGeneration int64, oldDigest, newDigest string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok || s.RevokedAt != nil || s.Generation != expectedGeneration || s.TokenDigest != oldDigest {
		return false, nil
	}
	f.history[oldDigest] = sessionID
	s.TokenDigest = newDigest
	s.Generation++
	t := at
	s.LastUsedAt = &t
	return true, nil
}

func (f *fakeSessionRepo) Revoke(_ context.Context, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.RevokedAt != nil {
		return nil
	}
	now := time.Now().UTC()
	s.RevokedAt = &now
	s.RevokeReason = reason
	return nil
}

func (f *fakeSessionRepo) RevokeAllByAccount(_ context.Context, accountID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	for _, s := range f.sessions {
		if s.AccountID == accountID && s.RevokedAt == nil {
			t := now
			s.RevokedAt = &t
			s.RevokeReason = reason
		}
	}
	return nil
}

func (f *fakeSessionRepo) RevokeChain(_ context.Context, accountID, fingerprint, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	for _, s := range f.sessions {
		if s.AccountID == accountID && s.Fingerprint == fingerprint && s.RevokedAt == nil {
			t := now
			s.RevokedAt = &t
			s.RevokeReason = reason
		}
	}
	return nil
}

func (f *fakeSessionRepo) ListByAccount(_ context.Context, accountID string) ([]*sessiondomain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*sessiondomain.Session
	for _, s := range f.sessions {
		if s.AccountID == accountID {
			out = append(out, copySession(s))
		}
	}
	return out, nil
}

// fakeBackupCodeRepo is an in-memory backup-code store with single-winner
// consumption.
type fakeBackupCodeRepo struct {
	mu    sync.Mutex
	codes map[string]*mfadomain.BackupCode
}

func newFakeBackupCodeRepo() *fakeBackupCodeRepo {
	return &fakeBackupCodeRepo{codes: make(map[string]*mfadomain.BackupCode)}
}

func (f *fakeBackupCodeRepo) CreateBatch(_ context.Context, batch []mfadomain.BackupCode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range batch {
		bc := batch[i]
		f.codes[bc.ID] = &bc
	}
	return nil
}

func (f *fakeBackupCodeRepo) ListUnconsumed(_ context.Context, accountID string) ([]mfadomain.BackupCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []mfadomain.BackupCode
	for _, bc := range f.codes {
		if bc.AccountID == accountID && !bc.Consumed {
			out = append(out, *bc)
		}
	}
	return out, nil
}

func (f *fakeBackupCodeRepo) CountUnconsumed(_ context.Context, accountID string) (int, error) {
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

func (f *fakeBackupCodeRepo) MarkConsumed(_ context.Context, id string) (bool, error) {
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

func (f *fakeBackupCodeRepo) DeleteByAccount(_ context.Context, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, bc := range f.codes {
		if bc.AccountID == accountID {
			delete(f.codes, id)
		}
	}
	return nil
}

// fakeMail captures outbound mail so tests can read the tokens.
type fakeMail struct {
	mu               sync.Mutex
	verifyTokens     map[string]string // email -> last verification token
	resetTokens      map[string]string // email -> last reset token
	mfaEnabledSentTo []string
}

func newFakeMail() *fakeMail {
	return &fakeMail{
		verifyTokens: make(map[string]string),
		resetTokens:  make(map[string]string),
	}
}

func (m *fakeMail) SendVerification(_ context.Context, to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifyTokens[to] = token
	return nil
}

func (m *fakeMail) SendPasswordReset(_ context.Context, to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetTokens[to] = token
	return nil
}

func (m *fakeMail) SendMFAEnabled(_ context.Context, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mfaEnabledSentTo = append(m.mfaEnabledSentTo, to)
	return nil
}

func (m *fakeMail) verifyToken(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verifyTokens[email]
}

func (m *fakeMail) resetToken(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetTokens[email]
}

// fakeAudit records events in memory.
type fakeAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (f *fakeAudit) Record(_ context.Context, e audit.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeAudit) last(kind string) (audit.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].Kind == kind {
			return f.events[i], true
		}
	}
	return audit.Event{}, false
}

func (f *fakeAudit) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
