// Package jwtx signs and verifies the compact JWTs used as bearer
// credentials. Tokens are HS256-signed with rotating symmetric secrets; the
// secret generation used for a given token is recorded in the "kid" header
// so verification can match it against currently-known secrets.
package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token use values embedded in the "use" claim. A refresh token must never
// verify as an access token, even if both secrets were equal.
const (
	UseAccess  = "access"
	UseRefresh = "refresh"
)

// Claims carried by both access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims

	// Use discriminates access tokens from refresh tokens.
	Use string `json:"use"`

	// Username of the authenticated user.
	Username string `json:"username,omitempty"`

	// Email of the authenticated user.
	Email string `json:"email,omitempty"`

	// AccessLevel is the user's level at issue time. Authoritative decisions
	// re-resolve the level from the store; this claim exists so relying
	// sites can make cheap first-pass decisions.
	AccessLevel string `json:"access_level,omitempty"`
}

// NewClaims builds minimally-correct claims for a token of the given use.
func NewClaims(
	use, subject, username, email, accessLevel string,
	issuer string,
	ttl time.Duration,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Use:         use,
		Username:    username,
		Email:       email,
		AccessLevel: accessLevel,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
