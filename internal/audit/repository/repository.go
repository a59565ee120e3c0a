package repository

import (
	"context"

	"github.com/DowellHd/smart-stock-auth/internal/audit/domain"
)

// Repository defines persistence for audit logs. The log is append-only;
// there is no update or delete path.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.AuditLog, error)
	ListByAccount(ctx context.Context, accountID string, limit, offset int32) ([]*domain.AuditLog, error)
	Create(ctx context.Context, a *domain.AuditLog) error
}
