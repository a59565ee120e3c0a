package repository

import (
	"context"
	"time"

	"github.com/DowellHd/smart-stock-auth/internal/session/domain"
)

// Repository defines persistence for sessions and their refresh-token lineage.
//
// CASRotate is the core's sole synchronization point (see the registry):
// implementations must replace the digest conditionally on the expected
// generation in one atomic step, and record the superseded digest so that any
// later presentation of a rotated token is detectable.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// GetByTokenDigest returns the session whose current-generation digest
	// matches, or nil if none.
	GetByTokenDigest(ctx context.Context, digest string) (*domain.Session, error)
	// FindSupersededDigest returns the session that once owned the digest in a
	// prior generation, or nil. Used for reuse detection.
	FindSupersededDigest(ctx context.Context, digest string) (*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	// CASRotate atomically supersedes oldDigest with newDigest iff the session
	// is unrevoked and still at expectedGeneration. Returns false when the
	// condition fails (a concurrent rotation won or the session was revoked).
	CASRotate(ctx context.Context, sessionID string, expectedGeneration int64, oldDigest, newDigest string, at time.Time) (bool, error)
	// Revoke is idempotent; the first call's reason wins.
	Revoke(ctx context.Context, id, reason string) error
	RevokeAllByAccount(ctx context.Context, accountID, reason string) error
	// RevokeChain revokes every unrevoked session of the account sharing the
	// device fingerprint (the rotation chain's ancestors and descendants).
	RevokeChain(ctx context.Context, accountID, fingerprint, reason string) error
	ListByAccount(ctx context.Context, accountID string) ([]*domain.Session, error)
}
