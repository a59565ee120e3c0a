package email

import (
	"context"

	"go.uber.org/zap"
)

// LogSender implements Sender by logging the tokens instead of sending mail.
// Used in development when no SMTP relay is configured.
type LogSender struct {
	log *zap.Logger
}

func NewLogSender(log *zap.Logger) *LogSender {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSender{log: log}
}

func (s *LogSender) SendVerification(_ context.Context, to, token string) error {
	s.log.Info("verification email (not sent, no smtp configured)",
		zap.String("to", to), zap.String("token", token))
	return nil
}

func (s *LogSender) SendPasswordReset(_ context.Context, to, token string) error {
	s.log.Info("password reset email (not sent, no smtp configured)",
		zap.String("to", to), zap.String("token", token))
	return nil
}

func (s *LogSender) SendMFAEnabled(_ context.Context, to string) error {
	s.log.Info("mfa enabled notification (not sent, no smtp configured)", zap.String("to", to))
	return nil
}
