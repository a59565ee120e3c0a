// Package mfa implements the second-factor engine: TOTP provisioning and
// verification plus single-use backup codes. It has no knowledge of sessions;
// repeated failures are the lockout policy's concern, not this package's.
package mfa

import (
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// ErrInvalidCode is returned when a TOTP or backup code does not verify.
var ErrInvalidCode = errors.New("invalid mfa code")

// totpOpts are the standard authenticator-app parameters. Skew 1 accepts the
// current and both adjacent 30-second windows to absorb clock drift.
var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// GenerateSecret creates a new TOTP secret for the account and returns the
// base32 secret and the otpauth provisioning URI. The secret is pending until
// confirmed with a valid code.
func GenerateSecret(issuer, accountEmail string) (secret, uri string, err error) {
	if strings.TrimSpace(accountEmail) == "" {
		return "", "", errors.New("account email required for totp provisioning")
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountEmail,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		SecretSize:  20,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// VerifyCode checks a 6-digit code against the secret within the tolerated
// window. Returns ErrInvalidCode on mismatch.
func VerifyCode(secret, code string) error {
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, time.Now().UTC(), totpOpts)
	if err != nil || !ok {
		return ErrInvalidCode
	}
	return nil
}

// VerifyCodeAt is VerifyCode against an explicit time; used by tests to cover
// the clock-skew windows deterministically.
func VerifyCodeAt(secret, code string, at time.Time) error {
	ok, err := totp.ValidateCustom(strings.TrimSpace(code), secret, at, totpOpts)
	if err != nil || !ok {
		return ErrInvalidCode
	}
	return nil
}
