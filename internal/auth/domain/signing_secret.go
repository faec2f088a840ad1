package domain

import (
	"fmt"
	"time"
)

// SecretType discriminates the two independent secret lineages. Access and
// refresh tokens are never signed with the same material.
type SecretType string

const (
	SecretTypeAccess  SecretType = "access"
	SecretTypeRefresh SecretType = "refresh"
)

// SecretTypes lists both lineages, in the order rotation processes them.
var SecretTypes = []SecretType{SecretTypeAccess, SecretTypeRefresh}

// ParseSecretType validates a secret type string.
func ParseSecretType(s string) (SecretType, error) {
	switch SecretType(s) {
	case SecretTypeAccess:
		return SecretTypeAccess, nil
	case SecretTypeRefresh:
		return SecretTypeRefresh, nil
	}
	return "", fmt.Errorf("unknown secret type %q", s)
}

// SigningSecret is one generation of HMAC key material for one token type.
// The plaintext secret is never stored: SecretSealed holds the bytes
// encrypted under the master key, SecretHash a SHA-256 fingerprint for
// tamper detection.
//
// Invariant: at most one row per type has IsActive set at any committed
// instant. Rotation deactivates the old row and inserts the new one in a
// single transaction; deactivated rows are immutable and are only ever
// removed by housekeeping once they are past verification age.
type SigningSecret struct {
	ID            string
	KeyID         string // opaque identifier embedded in token "kid" headers
	Type          SecretType
	SecretSealed  []byte
	SecretHash    string
	IsActive      bool
	CreatedAt     time.Time
	DeactivatedAt *time.Time // nil while active
	ExpiresAt     *time.Time // optional hard cutoff for verification
}

// UsableForVerification reports whether a token signed with this secret may
// still verify at the given instant: the secret is active, or was
// deactivated no longer than grace ago, and is not past its hard expiry.
func (s *SigningSecret) UsableForVerification(now time.Time, grace time.Duration) bool {
	if s.ExpiresAt != nil && now.After(*s.ExpiresAt) {
		return false
	}
	if s.IsActive {
		return true
	}
	return s.DeactivatedAt != nil && now.Sub(*s.DeactivatedAt) <= grace
}
