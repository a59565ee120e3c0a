package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/DowellHd/smart-stock-auth/internal/session/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, account_id, token_digest, generation, parent_id, fingerprint,
	created_at, last_used_at, expires_at, revoked_at, revoke_reason`

// GetByID returns the session for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	return scanSession(row)
}

// GetByTokenDigest returns the session whose current digest matches, or nil.
func (r *PostgresRepository) GetByTokenDigest(ctx context.Context, digest string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token_digest = $1`, digest)
	return scanSession(row)
}

// FindSupersededDigest returns the session that rotated away the digest, or nil.
func (r *PostgresRepository) FindSupersededDigest(ctx context.Context, digest string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+qualifiedSessionColumns+`
		FROM sessions s
		JOIN session_token_history h ON h.session_id = s.id
		WHERE h.token_digest = $1`, digest)
	return scanSession(row)
}

const qualifiedSessionColumns = `s.id, s.account_id, s.token_digest, s.generation, s.parent_id, s.fingerprint,
	s.created_at, s.last_used_at, s.expires_at, s.revoked_at, s.revoke_reason`

// Create persists the session. The session must have ID and TokenDigest set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (`+sessionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		s.ID, s.AccountID, s.TokenDigest, s.Generation,
		sql.NullString{String: s.ParentID, Valid: s.ParentID != ""},
		s.Fingerprint, s.CreatedAt, nullTime(s.LastUsedAt), s.ExpiresAt,
		nullTime(s.RevokedAt), sql.NullString{String: s.RevokeReason, Valid: s.RevokeReason != ""})
	return err
}

// CASRotate replaces the session's digest and bumps the generation in a single
// conditional update, then records the superseded digest. Both writes run in
// one transaction so the row is always either old-generation-valid or
// new-generation-valid.
func (r *PostgresRepository) CASRotate(ctx context.Context, sessionID string, expectedGeneration int64, oldDigest, newDigest string, at time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE sessions
		SET token_digest = $1, generation = generation + 1, last_used_at = $2
		WHERE id = $3 AND generation = $4 AND revoked_at IS NULL`,
		newDigest, at, sessionID, expectedGeneration)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO session_token_history (session_id, generation, token_digest, superseded_at)
		VALUES ($1, $2, $3, $4)`,
		sessionID, expectedGeneration, oldDigest, at); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// Revoke marks the session revoked. Idempotent: an already-revoked session keeps
// its original timestamp and reason.
func (r *PostgresRepository) Revoke(ctx context.Context, id, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET revoked_at = now(), revoke_reason = $2
		WHERE id = $1 AND revoked_at IS NULL`, id, reason)
	return err
}

// RevokeAllByAccount revokes every unrevoked session for the account.
func (r *PostgresRepository) RevokeAllByAccount(ctx context.Context, accountID, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET revoked_at = now(), revoke_reason = $2
		WHERE account_id = $1 AND revoked_at IS NULL`, accountID, reason)
	return err
}

// RevokeChain revokes the account's sessions sharing the device fingerprint.
func (r *PostgresRepository) RevokeChain(ctx context.Context, accountID, fingerprint, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET revoked_at = now(), revoke_reason = $3
		WHERE account_id = $1 AND fingerprint = $2 AND revoked_at IS NULL`,
		accountID, fingerprint, reason)
	return err
}

// ListByAccount returns all sessions for the account, newest first.
func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE account_id = $1 ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSessionRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSession(row *sql.Row) (*domain.Session, error) {
	s, err := scanSessionFrom(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return s, nil
}

func scanSessionRows(rows *sql.Rows) (*domain.Session, error) {
	return scanSessionFrom(rows.Scan)
}

func scanSessionFrom(scan func(...any) error) (*domain.Session, error) {
	var s domain.Session
	var parentID, revokeReason sql.NullString
	var lastUsedAt, revokedAt sql.NullTime
	err := scan(
		&s.ID, &s.AccountID, &s.TokenDigest, &s.Generation, &parentID, &s.Fingerprint,
		&s.CreatedAt, &lastUsedAt, &s.ExpiresAt, &revokedAt, &revokeReason)
	if err != nil {
		return nil, err
	}
	s.ParentID = parentID.String
	s.RevokeReason = revokeReason.String
	s.LastUsedAt = timePtr(lastUsedAt)
	s.RevokedAt = timePtr(revokedAt)
	return &s, nil
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
