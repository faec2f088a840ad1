package domain

import "time"

// TokenPair is what login and refresh return: the short-lived access token
// and the long-lived refresh token, both compact JWTs.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"` // typically "Bearer"
	ExpiresIn    int64  `json:"expires_in"`           // access-token lifetime in seconds
}

// RefreshTokenRecord is the stored shadow of an issued refresh token. Only
// the SHA-256 fingerprint of the token is persisted.
type RefreshTokenRecord struct {
	ID        string
	UserID    string
	SessionID string // login session this token belongs to
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time // nil until logout or explicit invalidation
	CreatedAt time.Time
}

// Usable reports the single validity rule for refresh tokens: not revoked
// and not expired. Checked against the store on every use, never cached.
func (r *RefreshTokenRecord) Usable(now time.Time) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt)
}
