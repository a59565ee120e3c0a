package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/DowellHd/smart-stock-auth/internal/account/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an account repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const accountColumns = `id, email, password_hash, full_name, role, status,
	email_verified, email_verification_digest, email_verification_sent_at,
	mfa_enabled, mfa_secret_sealed, mfa_pending_at,
	reset_digest, reset_sent_at,
	failed_login_attempts, locked_until, last_login_at,
	version, created_at, updated_at`

// GetByID returns the account for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// GetByEmail returns the account for the lowercase email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	return scanAccount(row)
}

// GetByEmailVerificationDigest returns the account holding the given pending
// verification-token digest, or nil if none.
func (r *PostgresRepository) GetByEmailVerificationDigest(ctx context.Context, digest string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email_verification_digest = $1`, digest)
	return scanAccount(row)
}

// GetByResetDigest returns the account holding the given outstanding
// password-reset token digest, or nil if none.
func (r *PostgresRepository) GetByResetDigest(ctx context.Context, digest string) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE reset_digest = $1`, digest)
	return scanAccount(row)
}

// Create persists the account. The account must have ID and Version set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Account) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		a.ID, a.Email, a.PasswordHash, a.FullName, string(a.Role), string(a.Status),
		a.EmailVerified, nullString(a.EmailVerificationDigest), nullTime(a.EmailVerificationSentAt),
		a.MFAEnabled, nullString(a.MFASecretSealed), nullTime(a.MFAPendingAt),
		nullString(a.ResetDigest), nullTime(a.ResetSentAt),
		a.FailedLoginAttempts, nullTime(a.LockedUntil), nullTime(a.LastLoginAt),
		a.Version, a.CreatedAt, a.UpdatedAt)
	return err
}

// UpdateVersioned writes all mutable fields conditionally on a.Version and
// increments it, updating a.Version in place on success. Returns
// ErrStaleAccount when a concurrent writer won.
func (r *PostgresRepository) UpdateVersioned(ctx context.Context, a *domain.Account) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET
			email = $1, password_hash = $2, full_name = $3, role = $4, status = $5,
			email_verified = $6, email_verification_digest = $7, email_verification_sent_at = $8,
			mfa_enabled = $9, mfa_secret_sealed = $10, mfa_pending_at = $11,
			reset_digest = $12, reset_sent_at = $13,
			failed_login_attempts = $14, locked_until = $15, last_login_at = $16,
			version = version + 1, updated_at = now()
		WHERE id = $17 AND version = $18`,
		a.Email, a.PasswordHash, a.FullName, string(a.Role), string(a.Status),
		a.EmailVerified, nullString(a.EmailVerificationDigest), nullTime(a.EmailVerificationSentAt),
		a.MFAEnabled, nullString(a.MFASecretSealed), nullTime(a.MFAPendingAt),
		nullString(a.ResetDigest), nullTime(a.ResetSentAt),
		a.FailedLoginAttempts, nullTime(a.LockedUntil), nullTime(a.LastLoginAt),
		a.ID, a.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleAccount
	}
	a.Version++
	return nil
}

// IncrementFailedLogins bumps the counter in a single statement so concurrent
// failures cannot lose updates, and sets locked_until when the threshold is
// reached.
func (r *PostgresRepository) IncrementFailedLogins(ctx context.Context, id string, threshold int, window time.Duration) (bool, *time.Time, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE accounts SET
			failed_login_attempts = failed_login_attempts + 1,
			locked_until = CASE WHEN failed_login_attempts + 1 >= $2 THEN now() + $3::interval ELSE locked_until END,
			updated_at = now()
		WHERE id = $1
		RETURNING failed_login_attempts, locked_until`,
		id, threshold, window.String())
	var attempts int
	var lockedUntil sql.NullTime
	if err := row.Scan(&attempts, &lockedUntil); err != nil {
		return false, nil, err
	}
	if attempts >= threshold && lockedUntil.Valid {
		t := lockedUntil.Time
		return true, &t, nil
	}
	return false, nil, nil
}

// ResetFailedLogins zeroes the counter and clears the lockout timestamp.
func (r *PostgresRepository) ResetFailedLogins(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET failed_login_attempts = 0, locked_until = NULL, updated_at = now()
		WHERE id = $1`, id)
	return err
}

func scanAccount(row *sql.Row) (*domain.Account, error) {
	var a domain.Account
	var role, status string
	var verificationDigest, mfaSecret, resetDigest sql.NullString
	var verificationSentAt, mfaPendingAt, resetSentAt, lockedUntil, lastLoginAt sql.NullTime
	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.FullName, &role, &status,
		&a.EmailVerified, &verificationDigest, &verificationSentAt,
		&a.MFAEnabled, &mfaSecret, &mfaPendingAt,
		&resetDigest, &resetSentAt,
		&a.FailedLoginAttempts, &lockedUntil, &lastLoginAt,
		&a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	a.Role = domain.Role(role)
	a.Status = domain.Status(status)
	a.EmailVerificationDigest = verificationDigest.String
	a.MFASecretSealed = mfaSecret.String
	a.ResetDigest = resetDigest.String
	a.EmailVerificationSentAt = timePtr(verificationSentAt)
	a.MFAPendingAt = timePtr(mfaPendingAt)
	a.ResetSentAt = timePtr(resetSentAt)
	a.LockedUntil = timePtr(lockedUntil)
	a.LastLoginAt = timePtr(lastLoginAt)
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}
