package repository

import (
	"context"

	"github.com/DowellHd/smart-stock-auth/internal/mfa/domain"
)

// Repository defines persistence for MFA backup codes.
type Repository interface {
	CreateBatch(ctx context.Context, codes []domain.BackupCode) error
	ListUnconsumed(ctx context.Context, accountID string) ([]domain.BackupCode, error)
	CountUnconsumed(ctx context.Context, accountID string) (int, error)
	// MarkConsumed sets the consumed flag iff it is not already set; returns
	// false when another request consumed the code first.
	MarkConsumed(ctx context.Context, id string) (bool, error)
	DeleteByAccount(ctx context.Context, accountID string) error
}
