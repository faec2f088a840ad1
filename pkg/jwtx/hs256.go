package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Signer signs claims with a single HS256 secret identified by its key id.
type Signer struct {
	keyID  string
	secret []byte
}

// NewSigner builds a Signer. The secret must be at least 32 bytes; shorter
// HMAC keys undermine the 256-bit entropy requirement.
func NewSigner(keyID string, secret []byte) (*Signer, error) {
	if keyID == "" {
		return nil, errors.New("jwtx: key id is required")
	}
	if len(secret) < 32 {
		return nil, fmt.Errorf("jwtx: secret too short: %d bytes, need at least 32", len(secret))
	}
	return &Signer{keyID: keyID, secret: secret}, nil
}

// KeyID returns the key id embedded in tokens produced by this signer.
func (s *Signer) KeyID() string { return s.keyID }

// Sign produces a compact JWT with the signer's key id in the "kid" header.
func (s *Signer) Sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = s.keyID
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: failed to sign token: %w", err)
	}
	return signed, nil
}

// KeyResolver maps a key id from a token header to secret material. The
// second return reports whether the key id is known.
type KeyResolver interface {
	ResolveKey(keyID string) ([]byte, bool)
}

// Verifier validates HS256 tokens against secrets resolved by key id.
type Verifier struct {
	Keys   KeyResolver
	Issuer string // empty means issuer is not enforced
	Leeway time.Duration
}

// Verify parses and validates a compact JWT of the expected use. It returns
// a sentinel error from this package on every failure path so callers can
// map failures to their own taxonomy without string matching.
func (v *Verifier) Verify(tokenString, expectedUse string) (Claims, error) {
	var claims Claims

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.Leeway),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}

	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok || kid == "" {
			return nil, ErrUnknownKeyID
		}
		secret, ok := v.Keys.ResolveKey(kid)
		if !ok {
			return nil, ErrUnknownKeyID
		}
		return secret, nil
	}, opts...)
	if err != nil {
		return Claims{}, mapParseError(err)
	}

	if claims.Use != expectedUse {
		return Claims{}, ErrWrongUse
	}

	return claims, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, ErrUnknownKeyID):
		return ErrUnknownKeyID
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuer
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrUnknownKeyID
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		return ErrMalformed
	}
}
