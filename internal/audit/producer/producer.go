// Package producer defines the interface for emitting high-severity security
// events to an external stream (e.g. Kafka).
package producer

import (
	"context"
	"time"
)

// SecurityEvent is the wire form published for events that warrant alerting,
// such as refresh token reuse or an account lockout.
type SecurityEvent struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id,omitempty"`
	Kind        string    `json:"kind"`
	Outcome     string    `json:"outcome"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	IP          string    `json:"ip,omitempty"`
	Metadata    string    `json:"metadata,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Producer emits security events. Callers use it best-effort: log and ignore
// errors.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly; call from
	// a goroutine if needed. Returns an error only on write failure.
	Emit(ctx context.Context, event *SecurityEvent) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
