package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/DowellHd/smart-stock-auth/internal/mfa/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a backup-code repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateBatch inserts the batch issued when MFA is confirmed.
func (r *PostgresRepository) CreateBatch(ctx context.Context, codes []domain.BackupCode) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, c := range codes {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO mfa_backup_codes (id, account_id, code_digest, consumed, consumed_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, c.AccountID, c.CodeDigest, c.Consumed, nullTime(c.ConsumedAt), c.CreatedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListUnconsumed returns the account's unconsumed codes.
func (r *PostgresRepository) ListUnconsumed(ctx context.Context, accountID string) ([]domain.BackupCode, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, account_id, code_digest, consumed, consumed_at, created_at
		FROM mfa_backup_codes WHERE account_id = $1 AND NOT consumed`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.BackupCode
	for rows.Next() {
		var c domain.BackupCode
		var consumedAt sql.NullTime
		if err := rows.Scan(&c.ID, &c.AccountID, &c.CodeDigest, &c.Consumed, &consumedAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		if consumedAt.Valid {
			t := consumedAt.Time
			c.ConsumedAt = &t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountUnconsumed returns how many codes remain usable.
func (r *PostgresRepository) CountUnconsumed(ctx context.Context, accountID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT count(*) FROM mfa_backup_codes WHERE account_id = $1 AND NOT consumed`, accountID).Scan(&n)
	return n, err
}

// MarkConsumed flips the consumed flag once. The WHERE NOT consumed guard makes
// concurrent consumption of the same code resolve to a single winner.
func (r *PostgresRepository) MarkConsumed(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE mfa_backup_codes SET consumed = TRUE, consumed_at = now()
		WHERE id = $1 AND NOT consumed`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteByAccount removes all codes; called only when MFA is disabled.
func (r *PostgresRepository) DeleteByAccount(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM mfa_backup_codes WHERE account_id = $1`, accountID)
	return err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
