package repository

import (
	"context"
	"errors"
	"time"

	"github.com/DowellHd/smart-stock-auth/internal/account/domain"
)

// ErrStaleAccount is returned by UpdateVersioned when the stored version no
// longer matches; the caller lost a concurrent update and must re-read.
var ErrStaleAccount = errors.New("account was modified concurrently")

// Repository defines persistence for accounts.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	GetByEmailVerificationDigest(ctx context.Context, digest string) (*domain.Account, error)
	GetByResetDigest(ctx context.Context, digest string) (*domain.Account, error)
	Create(ctx context.Context, a *domain.Account) error
	// UpdateVersioned writes all mutable fields conditionally on a.Version and
	// increments it. Returns ErrStaleAccount when the condition fails.
	UpdateVersioned(ctx context.Context, a *domain.Account) error
	// IncrementFailedLogins atomically bumps the failure counter and, when the
	// counter reaches threshold, sets locked_until = now + window. Returns the
	// lockout state after the increment.
	IncrementFailedLogins(ctx context.Context, id string, threshold int, window time.Duration) (locked bool, lockedUntil *time.Time, err error)
	// ResetFailedLogins zeroes the counter and clears locked_until.
	ResetFailedLogins(ctx context.Context, id string) error
}
