package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// GenerateOpaqueToken returns a URL-safe random token of 32 bytes of entropy.
// Used for refresh tokens, email-verification tokens, and MFA backup codes;
// callers store only the digest.
func GenerateOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DigestToken returns a SHA-256 digest of the token string, hex-encoded.
// Used for storing and comparing opaque tokens without storing the raw token.
func DigestToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// DigestEqual performs constant-time comparison of the provided token's digest
// with the stored digest. Returns true only if they match.
func DigestEqual(providedToken, storedDigest string) bool {
	providedDigest := DigestToken(providedToken)
	return subtle.ConstantTimeCompare([]byte(providedDigest), []byte(storedDigest)) == 1
}
