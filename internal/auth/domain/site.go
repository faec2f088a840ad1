package domain

import "time"

// Site is a registered relying site in the SSO federation. Its API key is
// stored only as a fingerprint.
type Site struct {
	ID            string
	Name          string // unique
	URL           string
	APIKeyHash    string
	RequiredLevel AccessLevel // defaults to LevelBasic
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
