// Package audit records security events for the authentication flows. The log
// is best-effort on the hot path: a write failure is logged and never surfaced
// to the caller, so an audit outage cannot take logins down with it.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DowellHd/smart-stock-auth/internal/audit/domain"
	"github.com/DowellHd/smart-stock-auth/internal/audit/producer"
	auditrepo "github.com/DowellHd/smart-stock-auth/internal/audit/repository"
)

// IPExtractor returns the client IP from the request context (e.g. gRPC
// metadata or peer).
type IPExtractor func(context.Context) string

// Event carries the caller-supplied fields for one audit entry. AccountID may
// be empty for events not tied to a known account.
type Event struct {
	AccountID   string
	Kind        string
	Outcome     string
	Fingerprint string
	Metadata    string
}

// AuditLogger records a single security event. Used by the auth orchestrator
// and session code paths. Record is best-effort: failures are logged and do
// not affect the caller.
type AuditLogger interface {
	Record(ctx context.Context, e Event)
}

// Logger implements AuditLogger using the audit repository, an optional
// security-event producer for high-severity kinds, and an optional IP
// extractor.
type Logger struct {
	repo        auditrepo.Repository
	stream      producer.Producer
	ipExtractor IPExtractor
	log         *zap.Logger
	now         func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo. stream may be nil
// when no event bus is configured; ipExtractor may be nil, then IP is recorded
// as "unknown".
func NewLogger(repo auditrepo.Repository, stream producer.Producer, ipExtractor IPExtractor, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{repo: repo, stream: stream, ipExtractor: ipExtractor, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Record writes one audit log entry and, for high-severity kinds, publishes it
// to the security event stream. Best-effort: errors are logged and not
// returned.
func (l *Logger) Record(ctx context.Context, e Event) {
	if l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	entry := &domain.AuditLog{
		ID:          uuid.NewString(),
		AccountID:   e.AccountID,
		Kind:        e.Kind,
		Outcome:     e.Outcome,
		Fingerprint: e.Fingerprint,
		IP:          ip,
		Metadata:    e.Metadata,
		CreatedAt:   l.now(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.log.Error("audit write failed",
			zap.String("kind", e.Kind),
			zap.String("account_id", e.AccountID),
			zap.Error(err))
	}
	if l.stream != nil && domain.HighSeverity(e.Kind) {
		ev := &producer.SecurityEvent{
			ID:          entry.ID,
			AccountID:   entry.AccountID,
			Kind:        entry.Kind,
			Outcome:     entry.Outcome,
			Fingerprint: entry.Fingerprint,
			IP:          entry.IP,
			Metadata:    entry.Metadata,
			OccurredAt:  entry.CreatedAt,
		}
		if err := l.stream.Emit(ctx, ev); err != nil {
			l.log.Warn("security event publish failed", zap.String("kind", e.Kind), zap.Error(err))
		}
	}
}
