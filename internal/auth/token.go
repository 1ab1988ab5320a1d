package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/zkvault/zkvault/internal/apperr"
	"github.com/zkvault/zkvault/internal/identity"
)

// Claims are the registered claims plus the identity's credential version.
// Tokens minted before a password change carry a stale version and are
// rejected on verification against the stored identity.
type Claims struct {
	jwt.RegisteredClaims
	TokenVersion int `json:"ver"`
}

// TokenIssuer mints and verifies signed, time-bounded bearer tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer builds an issuer around a server-held HS256 secret.
func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, ttl: ttl}
}

// Issue creates a token with the identity id as subject and an absolute expiry.
func (t *TokenIssuer) Issue(user identity.User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		TokenVersion: user.TokenVersion,
	})
	return token.SignedString(t.secret)
}

// Verify checks signature and expiry and returns the subject identity id and
// the embedded credential version. Any parse failure, signature mismatch, or
// expired token yields AuthenticationFailed; there is no partial trust.
func (t *TokenIssuer) Verify(tokenString string) (string, int, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", 0, apperr.AuthFailed("invalid or expired token")
	}
	return claims.Subject, claims.TokenVersion, nil
}
