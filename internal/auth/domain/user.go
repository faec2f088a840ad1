package domain

import "time"

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string // argon2id encoded, produced by the password capability
	FirstName    string
	LastName     string
	AccessLevel  AccessLevel // defaults to LevelBasic at registration
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
