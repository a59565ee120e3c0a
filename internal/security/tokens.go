package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, tampered with, or
	// presented in the wrong namespace.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when a structurally valid token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
)

// Token namespaces. Reset tokens must never validate as access tokens and vice versa.
const (
	tokenUseAccess = "access"
	tokenUseReset  = "reset"
)

// AccessClaims holds JWT claims for the short-lived access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
	TokenUse  string `json:"token_use"`
}

// ResetClaims holds JWT claims for the single-use password-reset token.
type ResetClaims struct {
	jwt.RegisteredClaims
	TokenUse string `json:"token_use"`
}

// TokenCodec issues and validates signed tokens using RS256 or ES256. The key
// pair is injected at construction and lives for the process lifetime; key
// rotation is an external concern.
type TokenCodec struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	accessTTL  time.Duration
	resetTTL   time.Duration
}

// NewTokenCodec returns a TokenCodec that signs with the given private key.
// issuer and audience are set on claims and checked on validation.
func NewTokenCodec(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, accessTTL, resetTTL time.Duration) *TokenCodec {
	return &TokenCodec{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		resetTTL:   resetTTL,
	}
}

// MintAccess issues a short-lived access token for the given account, role, and session.
// Returns the signed token and its expiry.
func (c *TokenCodec) MintAccess(accountID, role, sessionID string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(c.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role:      role,
		SessionID: sessionID,
		TokenUse:  tokenUseAccess,
	}
	token, err := c.sign(claims)
	return token, expiresAt, err
}

// MintReset issues a password-reset token in its own namespace with the reset TTL.
func (c *TokenCodec) MintReset(accountID string) (string, time.Time, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(c.resetTTL)
	claims := ResetClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TokenUse: tokenUseReset,
	}
	token, err := c.sign(claims)
	return token, expiresAt, err
}

func (c *TokenCodec) sign(claims jwt.Claims) (string, error) {
	var method jwt.SigningMethod
	switch c.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", ErrInvalidToken
	}
	t := jwt.NewWithClaims(method, claims)
	return t.SignedString(c.privateKey)
}

// ValidateAccess parses and validates an access token (signature, exp, iss, aud,
// namespace). Pure function over the configured public key; safe for concurrent
// use. Returns accountID, role, sessionID, or ErrTokenExpired / ErrInvalidToken.
func (c *TokenCodec) ValidateAccess(tokenString string) (accountID, role, sessionID string, err error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, c.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", "", ErrTokenExpired
		}
		return "", "", "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return "", "", "", ErrInvalidToken
	}
	if claims.TokenUse != tokenUseAccess {
		return "", "", "", ErrInvalidToken
	}
	if err := c.checkIssuerAudience(claims.Issuer, claims.Audience); err != nil {
		return "", "", "", err
	}
	return claims.Subject, claims.Role, claims.SessionID, nil
}

// ValidateReset parses and validates a password-reset token. Returns the
// accountID, or ErrTokenExpired / ErrInvalidToken.
func (c *TokenCodec) ValidateReset(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ResetClaims{}, c.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrTokenExpired
		}
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(*ResetClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.TokenUse != tokenUseReset {
		return "", ErrInvalidToken
	}
	if err := c.checkIssuerAudience(claims.Issuer, claims.Audience); err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (c *TokenCodec) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodRSA); ok {
		return c.publicKey, nil
	}
	if _, ok := token.Method.(*jwt.SigningMethodECDSA); ok {
		return c.publicKey, nil
	}
	return nil, ErrInvalidToken
}

func (c *TokenCodec) checkIssuerAudience(issuer string, audience jwt.ClaimStrings) error {
	if issuer != c.issuer {
		return ErrInvalidToken
	}
	for _, a := range audience {
		if a == c.audience {
			return nil
		}
	}
	return ErrInvalidToken
}
