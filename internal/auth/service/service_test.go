package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sitepass/sitepass/internal/auth/domain"
	"github.com/sitepass/sitepass/internal/auth/store"
	"github.com/sitepass/sitepass/internal/auth/store/drivers/sqlite"
	"github.com/sitepass/sitepass/pkg/cryptox"
	"github.com/sitepass/sitepass/pkg/idx"
	"github.com/sitepass/sitepass/pkg/jwtx"
)

// env wires a full service stack over an in-memory database with a
// controllable clock.
type env struct {
	store      store.Store
	rotation   *RotationService
	tokens     *TokenService
	auth       *AuthService
	authorizer *AuthorizerService
	clock      *fakeClock
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newEnv(t *testing.T) *env {
	t.Helper()

	s, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })

	sealer, err := cryptox.NewSealerFromKey([]byte("test master key"))
	require.NoError(t, err)

	clock := &fakeClock{t: time.Now().UTC().Truncate(time.Second)}

	rotation := &RotationService{
		Store:   s,
		Sealer:  sealer,
		Keyring: jwtx.NewKeyring(),
		Now:     clock.now,
	}
	tokens := &TokenService{
		Keyring:    rotation.Keyring,
		Rotation:   rotation,
		Issuer:     "sitepass-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		Grace:      time.Hour,
		Now:        clock.now,
	}
	auth := &AuthService{
		Store:      s,
		Tokens:     tokens,
		SessionTTL: 24 * time.Hour,
		Now:        clock.now,
	}
	authorizer := &AuthorizerService{Store: s, Now: clock.now}

	require.NoError(t, rotation.InitializeOnStartup(context.Background()))

	return &env{
		store:      s,
		rotation:   rotation,
		tokens:     tokens,
		auth:       auth,
		authorizer: authorizer,
		clock:      clock,
	}
}

func (e *env) register(t *testing.T, username string) domain.User {
	t.Helper()
	user, err := e.auth.Register(context.Background(), RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "correct horse battery",
	})
	require.NoError(t, err)
	return user
}

func (e *env) seedSite(t *testing.T, name string, level domain.AccessLevel) domain.Site {
	t.Helper()
	now := e.clock.now()
	site := domain.Site{
		ID:            idx.New().String(),
		Name:          name,
		URL:           "https://" + name + ".example.com",
		APIKeyHash:    "h",
		RequiredLevel: level,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, e.store.Sites().CreateSite(context.Background(), site))
	return site
}

func (e *env) promote(t *testing.T, userID string, level domain.AccessLevel) {
	t.Helper()
	require.NoError(t, e.store.Users().UpdateUserAccessLevel(context.Background(), userID, level))
}

func TestRegisterAndLogin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	user := e.register(t, "alice")
	require.Equal(t, domain.LevelBasic, user.AccessLevel, "new accounts start at the lowest level")

	t.Run("duplicate registration", func(t *testing.T) {
		_, err := e.auth.Register(ctx, RegisterRequest{
			Username: "alice",
			Email:    "different@example.com",
			Password: "another password",
		})
		require.ErrorIs(t, err, ErrDuplicateUser)
	})

	t.Run("login by username", func(t *testing.T) {
		pair, got, err := e.auth.Login(ctx, LoginRequest{
			UsernameOrEmail: "alice",
			Password:        "correct horse battery",
		})
		require.NoError(t, err)
		require.Equal(t, user.ID, got.ID)
		require.NotEmpty(t, pair.AccessToken)
		require.NotEmpty(t, pair.RefreshToken)
		require.Equal(t, "Bearer", pair.TokenType)

		claims, err := e.tokens.VerifyAccess(ctx, pair.AccessToken)
		require.NoError(t, err)
		require.Equal(t, user.ID, claims.Subject)
		require.Equal(t, "basic", claims.AccessLevel)
	})

	t.Run("wrong password and unknown user look identical", func(t *testing.T) {
		_, _, errWrong := e.auth.Login(ctx, LoginRequest{UsernameOrEmail: "alice", Password: "nope"})
		_, _, errUnknown := e.auth.Login(ctx, LoginRequest{UsernameOrEmail: "ghost", Password: "nope"})
		require.ErrorIs(t, errWrong, ErrInvalidCredentials)
		require.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	})

	t.Run("disabled account", func(t *testing.T) {
		require.NoError(t, e.store.Users().SetUserActive(ctx, user.ID, false))
		_, _, err := e.auth.Login(ctx, LoginRequest{
			UsernameOrEmail: "alice",
			Password:        "correct horse battery",
		})
		require.ErrorIs(t, err, ErrUserInactive)
		require.NoError(t, e.store.Users().SetUserActive(ctx, user.ID, true))
	})
}

func TestRefreshFlow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.register(t, "bob")
	pair, _, err := e.auth.Login(ctx, LoginRequest{
		UsernameOrEmail: "bob",
		Password:        "correct horse battery",
	})
	require.NoError(t, err)

	t.Run("valid refresh mints a new access token", func(t *testing.T) {
		e.clock.advance(time.Minute)
		next, err := e.auth.Refresh(ctx, pair.RefreshToken)
		require.NoError(t, err)
		require.NotEqual(t, pair.AccessToken, next.AccessToken)
		require.Equal(t, pair.RefreshToken, next.RefreshToken, "multi-use policy keeps the refresh token")

		_, err = e.tokens.VerifyAccess(ctx, next.AccessToken)
		require.NoError(t, err)
	})

	t.Run("access token cannot be replayed as refresh", func(t *testing.T) {
		_, err := e.auth.Refresh(ctx, pair.AccessToken)
		require.ErrorIs(t, err, ErrRefreshTokenInvalid)
	})

	t.Run("garbage and forged tokens fail the same way", func(t *testing.T) {
		_, errGarbage := e.auth.Refresh(ctx, "not-a-token")
		_, errForged := e.auth.Refresh(ctx, pair.RefreshToken+"x")
		require.ErrorIs(t, errGarbage, ErrRefreshTokenInvalid)
		require.ErrorIs(t, errForged, ErrRefreshTokenInvalid)
	})

	t.Run("refresh touches the login session", func(t *testing.T) {
		record, err := e.store.RefreshTokens().GetRefreshTokenByHash(ctx,
			cryptox.FingerprintToken(pair.RefreshToken))
		require.NoError(t, err)
		require.NotEmpty(t, record.SessionID)

		before, err := e.store.Sessions().GetSessionByID(ctx, record.SessionID)
		require.NoError(t, err)

		e.clock.advance(time.Minute)
		_, err = e.auth.Refresh(ctx, pair.RefreshToken)
		require.NoError(t, err)

		after, err := e.store.Sessions().GetSessionByID(ctx, record.SessionID)
		require.NoError(t, err)
		require.True(t, after.LastAccessed.After(before.LastAccessed))
	})

	t.Run("logout revokes and is idempotent", func(t *testing.T) {
		require.NoError(t, e.auth.Logout(ctx, pair.RefreshToken))
		require.NoError(t, e.auth.Logout(ctx, pair.RefreshToken))
		require.NoError(t, e.auth.Logout(ctx, "never-issued-token"))

		_, err := e.auth.Refresh(ctx, pair.RefreshToken)
		require.ErrorIs(t, err, ErrRefreshTokenInvalid)
	})

	t.Run("expired refresh token", func(t *testing.T) {
		fresh, _, err := e.auth.Login(ctx, LoginRequest{
			UsernameOrEmail: "bob",
			Password:        "correct horse battery",
		})
		require.NoError(t, err)

		e.clock.advance(25 * time.Hour)
		_, err = e.auth.Refresh(ctx, fresh.RefreshToken)
		require.ErrorIs(t, err, ErrRefreshTokenInvalid)
	})
}

func TestRefreshRotateOnUse(t *testing.T) {
	e := newEnv(t)
	e.auth.RotateRefreshOnUse = true
	ctx := context.Background()

	e.register(t, "carol")
	pair, _, err := e.auth.Login(ctx, LoginRequest{
		UsernameOrEmail: "carol",
		Password:        "correct horse battery",
	})
	require.NoError(t, err)

	e.clock.advance(time.Minute)
	next, err := e.auth.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// The consumed token is revoked; the replacement works.
	_, err = e.auth.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshTokenInvalid)
	_, err = e.auth.Refresh(ctx, next.RefreshToken)
	require.NoError(t, err)
}

func TestRotation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.register(t, "dana")
	pair, _, err := e.auth.Login(ctx, LoginRequest{
		UsernameOrEmail: "dana",
		Password:        "correct horse battery",
	})
	require.NoError(t, err)

	t.Run("rotation swaps both types atomically", func(t *testing.T) {
		before, err := e.store.SigningSecrets().ListActiveSigningSecrets(ctx)
		require.NoError(t, err)
		require.Len(t, before, 2)

		result, err := e.rotation.Rotate(ctx)
		require.NoError(t, err)
		require.Len(t, result.KeyIDs, 2)

		after, err := e.store.SigningSecrets().ListActiveSigningSecrets(ctx)
		require.NoError(t, err)
		require.Len(t, after, 2, "exactly one active secret per type")
		for _, secret := range after {
			require.Equal(t, result.KeyIDs[string(secret.Type)], secret.KeyID)
		}
	})

	t.Run("old tokens verify inside the grace window", func(t *testing.T) {
		e.clock.advance(10 * time.Minute)
		_, err := e.tokens.VerifyAccess(ctx, pair.AccessToken)
		require.NoError(t, err, "token signed before rotation must verify during grace")
	})

	t.Run("new tokens use the new secret", func(t *testing.T) {
		fresh, _, err := e.auth.Login(ctx, LoginRequest{
			UsernameOrEmail: "dana",
			Password:        "correct horse battery",
		})
		require.NoError(t, err)
		_, err = e.tokens.VerifyAccess(ctx, fresh.AccessToken)
		require.NoError(t, err)
	})

	t.Run("stale secret rejected beyond grace", func(t *testing.T) {
		// The token itself is kept alive by a long TTL; only the
		// signing secret ages out.
		e.tokens.AccessTTL = 48 * time.Hour
		longLived, err := e.tokens.IssueAccess(domain.User{ID: "u", AccessLevel: domain.LevelBasic})
		require.NoError(t, err)

		_, err = e.rotation.Rotate(ctx)
		require.NoError(t, err)

		e.clock.advance(2 * time.Hour) // grace is one hour
		_, err = e.tokens.VerifyAccess(ctx, longLived)
		require.Error(t, err)
	})
}

func TestRestartRecoversSecrets(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.register(t, "erin")
	pair, _, err := e.auth.Login(ctx, LoginRequest{
		UsernameOrEmail: "erin",
		Password:        "correct horse battery",
	})
	require.NoError(t, err)

	// Simulate a restart: new keyring and services over the same store
	// and master key.
	sealer, err := cryptox.NewSealerFromKey([]byte("test master key"))
	require.NoError(t, err)
	rotation2 := &RotationService{
		Store:   e.store,
		Sealer:  sealer,
		Keyring: jwtx.NewKeyring(),
		Now:     e.clock.now,
	}
	require.NoError(t, rotation2.InitializeOnStartup(ctx))

	tokens2 := &TokenService{
		Keyring:    rotation2.Keyring,
		Rotation:   rotation2,
		Issuer:     "sitepass-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		Grace:      time.Hour,
		Now:        e.clock.now,
	}

	_, err = tokens2.VerifyAccess(ctx, pair.AccessToken)
	require.NoError(t, err, "tokens issued before restart must survive it")

	t.Run("wrong master key fails closed", func(t *testing.T) {
		badSealer, err := cryptox.NewSealerFromKey([]byte("some other key"))
		require.NoError(t, err)
		rotation3 := &RotationService{
			Store:   e.store,
			Sealer:  badSealer,
			Keyring: jwtx.NewKeyring(),
			Now:     e.clock.now,
		}
		require.Error(t, rotation3.InitializeOnStartup(ctx))
	})
}

func TestStartupMintsOnlyMissingType(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	refreshBefore, err := e.store.SigningSecrets().GetActiveSigningSecret(ctx, domain.SecretTypeRefresh)
	require.NoError(t, err)
	accessBefore, err := e.store.SigningSecrets().GetActiveSigningSecret(ctx, domain.SecretTypeAccess)
	require.NoError(t, err)

	// Kill the access lineage only, then restart over the same store.
	require.NoError(t, e.store.SigningSecrets().DeactivateActiveSigningSecrets(ctx,
		domain.SecretTypeAccess, e.clock.now()))

	sealer, err := cryptox.NewSealerFromKey([]byte("test master key"))
	require.NoError(t, err)
	rotation2 := &RotationService{
		Store:   e.store,
		Sealer:  sealer,
		Keyring: jwtx.NewKeyring(),
		Now:     e.clock.now,
	}
	require.NoError(t, rotation2.InitializeOnStartup(ctx))

	refreshAfter, err := e.store.SigningSecrets().GetActiveSigningSecret(ctx, domain.SecretTypeRefresh)
	require.NoError(t, err)
	require.Equal(t, refreshBefore.KeyID, refreshAfter.KeyID,
		"a healthy refresh secret must survive startup untouched")

	accessAfter, err := e.store.SigningSecrets().GetActiveSigningSecret(ctx, domain.SecretTypeAccess)
	require.NoError(t, err)
	require.NotEqual(t, accessBefore.KeyID, accessAfter.KeyID)
}

func TestAuthorizer(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	alice := e.register(t, "alice")
	admin := e.register(t, "root")
	e.promote(t, admin.ID, domain.LevelAdmin)

	e.seedSite(t, "reports", domain.LevelPremium)
	e.seedSite(t, "wiki", domain.LevelBasic)

	t.Run("basic user denied premium site", func(t *testing.T) {
		ok, err := e.authorizer.HasAccess(ctx, alice.ID, "reports")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("elevation grants access", func(t *testing.T) {
		updated, err := e.authorizer.SetUserAccessLevel(ctx, admin.ID, alice.ID, "premium")
		require.NoError(t, err)
		require.Equal(t, domain.LevelPremium, updated.AccessLevel)

		ok, err := e.authorizer.HasAccess(ctx, alice.ID, "reports")
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("non-admin cannot mutate levels", func(t *testing.T) {
		_, err := e.authorizer.SetUserAccessLevel(ctx, alice.ID, admin.ID, "basic")
		require.ErrorIs(t, err, ErrInsufficientPermissions)
	})

	t.Run("unknown level rejected", func(t *testing.T) {
		_, err := e.authorizer.SetUserAccessLevel(ctx, admin.ID, alice.ID, "superuser")
		require.ErrorIs(t, err, ErrInvalidAccessLevel)
	})

	t.Run("unknown user or site denies without error", func(t *testing.T) {
		ok, err := e.authorizer.HasAccess(ctx, "ghost", "reports")
		require.NoError(t, err)
		require.False(t, ok)

		ok, err = e.authorizer.HasAccess(ctx, alice.ID, "no-such-site")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("disabled site denies everyone", func(t *testing.T) {
		site, err := e.store.Sites().GetSiteByName(ctx, "wiki")
		require.NoError(t, err)
		require.NoError(t, e.store.Sites().SetSiteActive(ctx, site.ID, false))

		ok, err := e.authorizer.HasAccess(ctx, admin.ID, "wiki")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("accessible sites filtered by level", func(t *testing.T) {
		sites, err := e.authorizer.AccessibleSites(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, sites, 1)
		require.Equal(t, "reports", sites[0].Name)
	})

	t.Run("admin site management", func(t *testing.T) {
		created, err := e.authorizer.CreateSite(ctx, admin.ID, CreateSiteRequest{
			Name:          "billing",
			URL:           "https://billing.example.com",
			RequiredLevel: "standard",
		})
		require.NoError(t, err)
		require.NotEmpty(t, created.APIKey)
		require.Equal(t, cryptox.FingerprintToken(created.APIKey), created.Site.APIKeyHash)

		updated, err := e.authorizer.SetSiteRequiredLevel(ctx, admin.ID, created.Site.ID, "admin")
		require.NoError(t, err)
		require.Equal(t, domain.LevelAdmin, updated.RequiredLevel)
	})

	t.Run("list users by level is admin-gated", func(t *testing.T) {
		users, err := e.authorizer.ListUsersByLevel(ctx, admin.ID, "premium")
		require.NoError(t, err)
		require.Len(t, users, 1)
		require.Equal(t, "alice", users[0].Username)

		_, err = e.authorizer.ListUsersByLevel(ctx, alice.ID, "premium")
		require.ErrorIs(t, err, ErrInsufficientPermissions)
	})

	t.Run("demoted admin loses rights immediately", func(t *testing.T) {
		require.NoError(t, e.store.Users().UpdateUserAccessLevel(ctx, admin.ID, domain.LevelBasic))
		_, err := e.authorizer.SetUserAccessLevel(ctx, admin.ID, alice.ID, "basic")
		require.ErrorIs(t, err, ErrInsufficientPermissions)
	})
}

func TestHousekeeping(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	user := e.register(t, "frank")

	now := e.clock.now()
	expired := domain.RefreshTokenRecord{
		ID:        idx.New().String(),
		UserID:    user.ID,
		TokenHash: "stale-hash",
		ExpiresAt: now.Add(-time.Hour),
		CreatedAt: now.Add(-2 * time.Hour),
	}
	require.NoError(t, e.store.RefreshTokens().CreateRefreshToken(ctx, expired))

	hk := NewHousekeepingService(e.store, e.rotation, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Hour)
	hk.SecretRetention = 24 * time.Hour
	hk.Start()
	hk.Stop()

	_, err := e.store.RefreshTokens().GetRefreshTokenByHash(ctx, "stale-hash")
	require.ErrorIs(t, err, store.ErrNotFound)
}
