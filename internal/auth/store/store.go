package store

import (
	"context"
	"errors"
	"time"

	"github.com/sitepass/sitepass/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable.
type Store interface {
	Users() Users
	Sites() Sites
	RefreshTokens() RefreshTokens
	Sessions() Sessions
	SigningSecrets() SigningSecrets

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. This is the
	// recommended way to run multi-row mutations like secret rotation.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds
// Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// CreateUser inserts a new user (id is provided by the app via ULID).
	// Duplicate username or email maps to ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) error

	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsernameOrEmail is used during login; it matches either
	// column exactly.
	GetUserByUsernameOrEmail(ctx context.Context, usernameOrEmail string) (domain.User, error)

	// UpdateUserAccessLevel sets access_level and bumps updated_at.
	UpdateUserAccessLevel(ctx context.Context, userID string, level domain.AccessLevel) error

	// SetUserActive toggles is_active.
	SetUserActive(ctx context.Context, userID string, active bool) error

	// ListUsersByAccessLevel returns users at exactly the given level,
	// ordered by username.
	ListUsersByAccessLevel(ctx context.Context, level domain.AccessLevel) ([]domain.User, error)
}

type Sites interface {
	// CreateSite inserts a new site. Duplicate site name maps to
	// ErrAlreadyExists.
	CreateSite(ctx context.Context, s domain.Site) error

	// GetSiteByID returns a site by id.
	GetSiteByID(ctx context.Context, id string) (domain.Site, error)

	// GetSiteByName returns a site by its unique name.
	GetSiteByName(ctx context.Context, name string) (domain.Site, error)

	// ListActiveSites returns all active sites ordered by name.
	ListActiveSites(ctx context.Context) ([]domain.Site, error)

	// UpdateSiteRequiredLevel sets access_level_required and bumps updated_at.
	UpdateSiteRequiredLevel(ctx context.Context, siteID string, level domain.AccessLevel) error

	// SetSiteActive toggles is_active.
	SetSiteActive(ctx context.Context, siteID string, active bool) error
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new refresh token record.
	CreateRefreshToken(ctx context.Context, t domain.RefreshTokenRecord) error

	// GetRefreshTokenByHash returns the record matching a token fingerprint.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshTokenRecord, error)

	// RevokeRefreshToken sets revoked_at on the matching non-revoked
	// record. Revoking an already-revoked or unknown token is a no-op.
	RevokeRefreshToken(ctx context.Context, hash string, at time.Time) error

	// ConsumeRefreshToken revokes the matching live record and fails with
	// ErrNotFound when no live row matched. Used by the rotate-on-use
	// refresh policy so a token spends at most once even under races.
	ConsumeRefreshToken(ctx context.Context, hash string, at time.Time) error

	// RevokeAllUserRefreshTokens bulk-revokes every live token of a user.
	RevokeAllUserRefreshTokens(ctx context.Context, userID string, at time.Time) error

	// DeleteExpiredRefreshTokens is housekeeping.
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) error
}

type Sessions interface {
	// CreateSession records a login.
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSessionByID returns a session by its session_id value.
	GetSessionByID(ctx context.Context, sessionID string) (domain.Session, error)

	// TouchSession bumps last_accessed.
	TouchSession(ctx context.Context, sessionID string, at time.Time) error

	// DeleteExpiredSessions is housekeeping.
	DeleteExpiredSessions(ctx context.Context, now time.Time) error
}

type SigningSecrets interface {
	// CreateSigningSecret stores a new secret generation (sealed material
	// plus fingerprint).
	CreateSigningSecret(ctx context.Context, s domain.SigningSecret) error

	// GetActiveSigningSecret returns the single active secret for a type.
	GetActiveSigningSecret(ctx context.Context, typ domain.SecretType) (domain.SigningSecret, error)

	// GetSigningSecretByKeyID returns a secret by its key id, active or not.
	GetSigningSecretByKeyID(ctx context.Context, keyID string) (domain.SigningSecret, error)

	// DeactivateActiveSigningSecrets clears is_active for the type and
	// stamps deactivated_at. Called only inside the rotation transaction,
	// paired with the insert of the replacement.
	DeactivateActiveSigningSecrets(ctx context.Context, typ domain.SecretType, at time.Time) error

	// ListActiveSigningSecrets returns the active secret set across types.
	ListActiveSigningSecrets(ctx context.Context) ([]domain.SigningSecret, error)

	// DeleteExpiredSigningSecrets removes secrets deactivated before the
	// cutoff. Housekeeping; keeps the table from growing unbounded.
	DeleteExpiredSigningSecrets(ctx context.Context, deactivatedBefore time.Time) error
}
