package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/argon2"
)

var (
	// ErrWeakPassword is returned by Hash when the password fails the minimum policy.
	ErrWeakPassword = errors.New("password does not meet minimum requirements")
	// ErrCorruptHash is returned by Verify when the stored hash is not a valid argon2id string.
	ErrCorruptHash = errors.New("stored password hash is malformed")
)

// Argon2Params holds the argon2id cost parameters. Zero values are rejected by NewPasswordHasher.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params returns moderate interactive-login parameters (64 MiB, t=3, p=2).
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// PasswordHasher hashes and verifies passwords using argon2id. Callers must not
// log or persist plaintext passwords.
type PasswordHasher struct {
	params Argon2Params
}

// NewPasswordHasher returns a PasswordHasher with the given parameters.
func NewPasswordHasher(params Argon2Params) (*PasswordHasher, error) {
	if params.Memory == 0 || params.Iterations == 0 || params.Parallelism == 0 || params.SaltLength == 0 || params.KeyLength == 0 {
		return nil, errors.New("argon2 params must be fully configured")
	}
	return &PasswordHasher{params: params}, nil
}

// CheckPolicy validates the minimum password policy: at least 8 characters,
// containing at least one letter and one digit. Returns ErrWeakPassword on violation.
func CheckPolicy(password string) error {
	if len(password) < 8 {
		return ErrWeakPassword
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return ErrWeakPassword
	}
	return nil
}

// Hash checks the password policy and produces an argon2id hash in PHC string
// format: $argon2id$v=19$m=<memory>,t=<iterations>,p=<parallelism>$<salt>$<key>.
func (h *PasswordHasher) Hash(password string) (string, error) {
	if err := CheckPolicy(password); err != nil {
		return "", err
	}
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.Memory, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

// Verify recomputes the hash with the parameters embedded in encoded and
// compares in constant time. A mismatch is (false, nil); only a malformed
// stored hash produces an error (ErrCorruptHash).
func (h *PasswordHasher) Verify(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false, ErrCorruptHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, ErrCorruptHash
	}
	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false, ErrCorruptHash
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, ErrCorruptHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, ErrCorruptHash
	}
	// Parameters come from the stored hash so verification survives parameter upgrades.
	computed := argon2.IDKey([]byte(password), salt, iterations, memory, parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, computed) == 1, nil
}
