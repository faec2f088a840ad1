package domain

import "time"

// Session is an audit record of a login. It carries no authority: token and
// refresh validity never depend on it. Expired sessions are swept by
// housekeeping, not enforced at request time.
type Session struct {
	ID           string
	UserID       string
	SessionID    string // random, unguessable; returned to the client for support tooling
	IPAddress    string
	UserAgent    string
	LastAccessed time.Time
	ExpiresAt    time.Time
	CreatedAt    time.Time
}
