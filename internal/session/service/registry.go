// Package service implements the session registry: the durable record of
// refresh-token lineage per device, with rotation and reuse detection.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DowellHd/smart-stock-auth/internal/security"
	"github.com/DowellHd/smart-stock-auth/internal/session/domain"
	sessionrepo "github.com/DowellHd/smart-stock-auth/internal/session/repository"
)

var (
	// ErrSessionNotFound is returned when the presented token matches no live session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrReuseDetected is returned when an already-superseded refresh token is
	// presented. The presenting chain has been revoked by the time this returns.
	ErrReuseDetected = errors.New("refresh token reuse detected")
)

// ReuseError identifies the chain that owned a reused refresh token so the
// caller can attribute the event. Matches ErrReuseDetected under errors.Is.
type ReuseError struct {
	AccountID   string
	Fingerprint string
}

func (e *ReuseError) Error() string { return ErrReuseDetected.Error() }

func (e *ReuseError) Unwrap() error { return ErrReuseDetected }

// Registry manages session lifecycle and refresh-token rotation. Rotation is
// linearizable per session: the repository's conditional digest replacement is
// the only synchronization point, so concurrent rotations of one session
// resolve to exactly one winner.
type Registry struct {
	repo       sessionrepo.Repository
	refreshTTL time.Duration
	log        *zap.Logger
}

// NewRegistry returns a Registry persisting through repo. Sessions expire
// refreshTTL after creation.
func NewRegistry(repo sessionrepo.Repository, refreshTTL time.Duration, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{repo: repo, refreshTTL: refreshTTL, log: log}
}

// Create starts a new session at generation zero for the account and device.
// The raw refresh token is returned exactly once; only its digest is stored.
// parentID links a re-login onto the device's prior session and may be empty.
func (r *Registry) Create(ctx context.Context, accountID, fingerprint, parentID string) (*domain.Session, string, error) {
	raw, err := security.GenerateOpaqueToken()
	if err != nil {
		return nil, "", err
	}
	now := time.Now().UTC()
	s := &domain.Session{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		TokenDigest: security.DigestToken(raw),
		Generation:  0,
		ParentID:    parentID,
		Fingerprint: fingerprint,
		CreatedAt:   now,
		ExpiresAt:   now.Add(r.refreshTTL),
	}
	if err := r.repo.Create(ctx, s); err != nil {
		return nil, "", err
	}
	return s, raw, nil
}

// Rotate exchanges a presented refresh token for a fresh one, incrementing the
// session's generation. Presenting a superseded token revokes the whole device
// chain and fails with ErrReuseDetected; a concurrent double-submit of the same
// token is indistinguishable from theft and is treated as theft.
func (r *Registry) Rotate(ctx context.Context, presented string) (*domain.Session, string, error) {
	digest := security.DigestToken(presented)

	sess, err := r.repo.GetByTokenDigest(ctx, digest)
	if err != nil {
		return nil, "", err
	}
	if sess == nil {
		return nil, "", r.failSuperseded(ctx, digest)
	}
	if sess.Revoked() || time.Now().UTC().After(sess.ExpiresAt) {
		return nil, "", ErrSessionNotFound
	}

	raw, err := security.GenerateOpaqueToken()
	if err != nil {
		return nil, "", err
	}
	now := time.Now().UTC()
	won, err := r.repo.CASRotate(ctx, sess.ID, sess.Generation, digest, security.DigestToken(raw), now)
	if err != nil {
		return nil, "", err
	}
	if !won {
		// Lost the race: by now the presented token is superseded (benign
		// retry and theft look identical here) or the session was revoked.
		return nil, "", r.failSuperseded(ctx, digest)
	}

	sess.TokenDigest = security.DigestToken(raw)
	sess.Generation++
	sess.LastUsedAt = &now
	return sess, raw, nil
}

// failSuperseded classifies a digest that matched no current generation: if it
// was rotated away at some point this is a reuse event and the chain is
// revoked; otherwise the token is simply unknown.
func (r *Registry) failSuperseded(ctx context.Context, digest string) error {
	owner, err := r.repo.FindSupersededDigest(ctx, digest)
	if err != nil {
		return err
	}
	if owner == nil {
		return ErrSessionNotFound
	}
	if err := r.repo.RevokeChain(ctx, owner.AccountID, owner.Fingerprint, domain.RevokeReasonTokenReuse); err != nil {
		r.log.Error("revoke chain after reuse detection failed",
			zap.String("session_id", owner.ID), zap.Error(err))
	}
	r.log.Warn("refresh token reuse detected",
		zap.String("session_id", owner.ID),
		zap.String("account_id", owner.AccountID))
	return &ReuseError{AccountID: owner.AccountID, Fingerprint: owner.Fingerprint}
}

// Validate returns the live session for id, ErrSessionNotFound otherwise.
func (r *Registry) Validate(ctx context.Context, id string) (*domain.Session, error) {
	s, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if s == nil || s.Revoked() || time.Now().UTC().After(s.ExpiresAt) {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Revoke marks one session revoked. Idempotent.
func (r *Registry) Revoke(ctx context.Context, id, reason string) error {
	return r.repo.Revoke(ctx, id, reason)
}

// RevokeAll revokes every unrevoked session of the account. Used on MFA
// enable, password change, and detected compromise.
func (r *Registry) RevokeAll(ctx context.Context, accountID, reason string) error {
	return r.repo.RevokeAllByAccount(ctx, accountID, reason)
}

// RevokeAllExcept revokes every unrevoked session of the account except keep.
// Used by password change so the current device stays signed in.
func (r *Registry) RevokeAllExcept(ctx context.Context, accountID, keep, reason string) error {
	sessions, err := r.repo.ListByAccount(ctx, accountID)
	if err != nil {
		return err
	}
	for _, s := range sessions {
		if s.ID == keep || s.Revoked() {
			continue
		}
		if err := r.repo.Revoke(ctx, s.ID, reason); err != nil {
			return err
		}
	}
	return nil
}

// List returns caller-safe session summaries for the account. No token
// material leaves the registry.
func (r *Registry) List(ctx context.Context, accountID string) ([]domain.Summary, error) {
	sessions, err := r.repo.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Summary, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, domain.Summary{
			ID:          s.ID,
			Fingerprint: s.Fingerprint,
			CreatedAt:   s.CreatedAt,
			LastUsedAt:  s.LastUsedAt,
			Revoked:     s.Revoked(),
		})
	}
	return out, nil
}
