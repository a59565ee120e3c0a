package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/DowellHd/smart-stock-auth/internal/audit/domain"
)

const auditColumns = "id, account_id, kind, outcome, fingerprint, ip, metadata, created_at"

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an audit log repository backed by db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the audit log for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.AuditLog, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+auditColumns+" FROM audit_log WHERE id = $1", id)
	a, err := scanAuditLog(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// ListByAccount returns the account's audit trail, newest first, paginated by
// limit and offset.
func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string, limit, offset int32) ([]*domain.AuditLog, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+auditColumns+" FROM audit_log WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3",
		accountID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		a, err := scanAuditLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Create appends one audit log entry. The entry must have ID and CreatedAt set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_log (`+auditColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID,
		sql.NullString{String: a.AccountID, Valid: a.AccountID != ""},
		a.Kind,
		a.Outcome,
		sql.NullString{String: a.Fingerprint, Valid: a.Fingerprint != ""},
		a.IP,
		sql.NullString{String: a.Metadata, Valid: a.Metadata != ""},
		a.CreatedAt,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuditLog(row rowScanner) (*domain.AuditLog, error) {
	var a domain.AuditLog
	var accountID, fingerprint, metadata sql.NullString
	if err := row.Scan(&a.ID, &accountID, &a.Kind, &a.Outcome, &fingerprint, &a.IP, &metadata, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.AccountID = accountID.String
	a.Fingerprint = fingerprint.String
	a.Metadata = metadata.String
	return &a, nil
}
