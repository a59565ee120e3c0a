// Package challenge holds pending MFA challenges between the password step and
// the second-factor step of a login. A challenge is single-use: taking it
// removes it, so a code can only be submitted against a challenge once.
package challenge

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is how long a login may sit between password and second factor.
const DefaultTTL = 5 * time.Minute

// ErrNotFound is returned when a challenge is unknown, expired, or already
// consumed.
var ErrNotFound = errors.New("challenge not found")

// Challenge is the server-side state for a login awaiting its second factor.
// The fingerprint pins the challenge to the client that started the login.
type Challenge struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	Fingerprint string    `json:"fingerprint"`
	IssuedAt    time.Time `json:"issued_at"`
}

// Store persists pending challenges with a TTL.
type Store interface {
	// Put stores the challenge under its ID for ttl.
	Put(ctx context.Context, ch *Challenge, ttl time.Duration) error
	// Take atomically fetches and removes the challenge. Returns ErrNotFound
	// when it is missing or expired; concurrent takes of the same ID resolve
	// to a single winner.
	Take(ctx context.Context, id string) (*Challenge, error)
}
