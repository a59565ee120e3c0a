// Package email delivers verification and password-reset mail. Delivery is
// best-effort from the caller's point of view; the authentication flows never
// block on the mail provider being healthy.
package email

import "context"

// Sender delivers transactional mail for the auth flows.
type Sender interface {
	// SendVerification mails the address a link carrying the verification token.
	SendVerification(ctx context.Context, to, token string) error
	// SendPasswordReset mails the address a link carrying the reset token.
	SendPasswordReset(ctx context.Context, to, token string) error
	// SendMFAEnabled notifies the address that a second factor was turned on.
	SendMFAEnabled(ctx context.Context, to string) error
}
