package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPSender implements Sender over plain SMTP with optional AUTH. BaseURL is
// the public origin the links point at, e.g. "https://app.example.com".
type SMTPSender struct {
	addr    string
	auth    smtp.Auth
	from    string
	baseURL string
}

// NewSMTPSender returns a sender that relays through the SMTP server at addr
// ("host:port"). username may be empty for unauthenticated relays.
func NewSMTPSender(addr, username, password, from, baseURL string) *SMTPSender {
	var auth smtp.Auth
	if username != "" {
		host := addr
		if i := strings.LastIndex(addr, ":"); i >= 0 {
			host = addr[:i]
		}
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPSender{addr: addr, auth: auth, from: from, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *SMTPSender) SendVerification(_ context.Context, to, token string) error {
	link := fmt.Sprintf("%s/verify-email?token=%s", s.baseURL, token)
	body := fmt.Sprintf("Confirm your email address by opening this link:\r\n\r\n%s\r\n\r\nThe link expires in 24 hours.", link)
	return s.send(to, "Verify your email", body)
}

func (s *SMTPSender) SendPasswordReset(_ context.Context, to, token string) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, token)
	body := fmt.Sprintf("A password reset was requested for this address. Open this link to choose a new password:\r\n\r\n%s\r\n\r\nThe link expires in 1 hour. If you did not request this, ignore this message.", link)
	return s.send(to, "Reset your password", body)
}

func (s *SMTPSender) SendMFAEnabled(_ context.Context, to string) error {
	body := "Two-factor authentication was enabled on your account. If this was not you, reset your password immediately."
	return s.send(to, "Two-factor authentication enabled", body)
}

func (s *SMTPSender) send(to, subject, body string) error {
	msg := strings.Join([]string{
		"From: " + s.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")
	if err := smtp.SendMail(s.addr, s.auth, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}
