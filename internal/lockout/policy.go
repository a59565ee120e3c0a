// Package lockout enforces the failed-login throttle. Counting and locking are
// delegated to the account repository so the increment-and-maybe-lock step is a
// single atomic statement under concurrent failures.
package lockout

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/DowellHd/smart-stock-auth/internal/account/domain"
)

const (
	DefaultThreshold = 5
	DefaultWindow    = 30 * time.Minute
)

// Counter is the slice of the account repository the policy needs.
type Counter interface {
	IncrementFailedLogins(ctx context.Context, id string, threshold int, window time.Duration) (locked bool, lockedUntil *time.Time, err error)
	ResetFailedLogins(ctx context.Context, id string) error
}

// Policy tracks consecutive credential failures per account. Locks expire
// lazily: nothing clears locked_until in the background, Locked simply compares
// it against the clock.
type Policy struct {
	counter   Counter
	threshold int
	window    time.Duration
	log       *zap.Logger

	now func() time.Time
}

func NewPolicy(counter Counter, threshold int, window time.Duration, log *zap.Logger) *Policy {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Policy{counter: counter, threshold: threshold, window: window, log: log, now: time.Now}
}

// Locked reports whether the account is currently locked and, if so, when the
// lock expires. An expired lock reads as unlocked even though the row still
// carries the old timestamp.
func (p *Policy) Locked(a *domain.Account) (bool, time.Time) {
	if a.LockedUntil == nil {
		return false, time.Time{}
	}
	until := *a.LockedUntil
	if p.now().Before(until) {
		return true, until
	}
	return false, time.Time{}
}

// RecordFailure counts one failed attempt and reports whether it tripped the
// lock. The repository performs the count and lock decision in one statement,
// so two racing failures cannot both read the pre-increment counter.
func (p *Policy) RecordFailure(ctx context.Context, accountID string) (locked bool, until *time.Time, err error) {
	locked, until, err = p.counter.IncrementFailedLogins(ctx, accountID, p.threshold, p.window)
	if err != nil {
		return false, nil, err
	}
	if locked {
		p.log.Warn("account locked after repeated failures",
			zap.String("account_id", accountID),
			zap.Int("threshold", p.threshold),
			zap.Timep("locked_until", until))
	}
	return locked, until, nil
}

// RecordSuccess clears the failure counter after a fully authenticated login.
// A correct password blocked by a pending second factor must not call this.
func (p *Policy) RecordSuccess(ctx context.Context, accountID string) error {
	return p.counter.ResetFailedLogins(ctx, accountID)
}

// RetryAfter converts a lock expiry into the wait the caller can surface.
func (p *Policy) RetryAfter(until time.Time) time.Duration {
	d := until.Sub(p.now())
	if d < 0 {
		return 0
	}
	return d
}
