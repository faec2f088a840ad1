package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sitepass/sitepass/internal/auth/domain"
	"github.com/sitepass/sitepass/internal/auth/store"
	"github.com/sitepass/sitepass/pkg/cryptox"
	"github.com/sitepass/sitepass/pkg/idx"
)

// AuthService implements the user-facing authentication flows: register,
// login, refresh and logout. Refresh tokens are persisted only as SHA-256
// fingerprints; the plaintext JWT exists solely in the response body.
type AuthService struct {
	Store  store.Store
	Tokens *TokenService

	SessionTTL time.Duration

	// RotateRefreshOnUse makes every refresh mint (and persist) a new
	// refresh token and revoke the presented one. When false, a refresh
	// token stays valid until expiry or explicit logout.
	RotateRefreshOnUse bool

	Now func() time.Time
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (r RegisterRequest) validate() error {
	switch {
	case strings.TrimSpace(r.Username) == "":
		return errors.New("username is required")
	case !strings.Contains(r.Email, "@"):
		return errors.New("email is invalid")
	case len(r.Password) < 8:
		return errors.New("password must be at least 8 characters")
	}
	return nil
}

// Register creates a new account at the lowest access level. Elevation is
// a separate admin-only operation.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (domain.User, error) {
	if err := req.validate(); err != nil {
		return domain.User{}, err
	}

	hash, err := cryptox.HashPassword(req.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	user := domain.User{
		ID:           idx.New().String(),
		Username:     strings.TrimSpace(req.Username),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		AccessLevel:  domain.LevelBasic,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrDuplicateUser
		}
		return domain.User{}, err
	}

	slog.Info("user registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

type LoginRequest struct {
	UsernameOrEmail string
	Password        string
	IPAddress       string
	UserAgent       string
}

// Login authenticates a user and mints a token pair. Unknown accounts and
// wrong passwords both return ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (domain.TokenPair, domain.User, error) {
	user, err := s.Store.Users().GetUserByUsernameOrEmail(ctx, req.UsernameOrEmail)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.TokenPair{}, domain.User{}, ErrInvalidCredentials
		}
		return domain.TokenPair{}, domain.User{}, err
	}

	if err := cryptox.VerifyPassword(req.Password, user.PasswordHash); err != nil {
		return domain.TokenPair{}, domain.User{}, ErrInvalidCredentials
	}

	if !user.IsActive {
		return domain.TokenPair{}, domain.User{}, ErrUserInactive
	}

	pair, err := s.Tokens.IssuePair(user)
	if err != nil {
		return domain.TokenPair{}, domain.User{}, err
	}

	now := s.now()
	sessionID := uuid.NewString()
	if err := s.persistRefresh(ctx, user.ID, sessionID, pair.RefreshToken, now); err != nil {
		return domain.TokenPair{}, domain.User{}, err
	}

	session := domain.Session{
		ID:           idx.New().String(),
		UserID:       user.ID,
		SessionID:    sessionID,
		IPAddress:    req.IPAddress,
		UserAgent:    req.UserAgent,
		LastAccessed: now,
		ExpiresAt:    now.Add(s.SessionTTL),
		CreatedAt:    now,
	}
	if err := s.Store.Sessions().CreateSession(ctx, session); err != nil {
		return domain.TokenPair{}, domain.User{}, err
	}

	slog.Info("user logged in", "user_id", user.ID, "session_id", session.SessionID)
	return pair, user, nil
}

// Refresh exchanges a valid refresh token for a fresh access token. Every
// failure mode (bad signature, expired, revoked, never issued) returns the
// same ErrRefreshTokenInvalid.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	claims, err := s.Tokens.VerifyRefresh(ctx, refreshToken)
	if err != nil {
		return domain.TokenPair{}, ErrRefreshTokenInvalid
	}

	now := s.now()
	record, err := s.Store.RefreshTokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintToken(refreshToken))
	if err != nil || !record.Usable(now) {
		return domain.TokenPair{}, ErrRefreshTokenInvalid
	}

	user, err := s.Store.Users().GetUserByID(ctx, claims.Subject)
	if err != nil || !user.IsActive {
		return domain.TokenPair{}, ErrRefreshTokenInvalid
	}

	// Keep the session's last_accessed current. Touching an expired
	// session that housekeeping already removed updates nothing.
	if record.SessionID != "" {
		if err := s.Store.Sessions().TouchSession(ctx, record.SessionID, now); err != nil {
			return domain.TokenPair{}, err
		}
	}

	access, err := s.Tokens.IssueAccess(user)
	if err != nil {
		return domain.TokenPair{}, err
	}

	pair := domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.Tokens.AccessTTL / time.Second),
	}

	if s.RotateRefreshOnUse {
		next, err := s.Tokens.IssueRefresh(user)
		if err != nil {
			return domain.TokenPair{}, err
		}
		err = s.Store.WithTx(ctx, func(tx store.Tx) error {
			// Consume, not revoke: a concurrent refresh that already
			// spent this token makes the update match zero rows, and the
			// whole transaction fails instead of minting a second
			// successor.
			if err := tx.RefreshTokens().ConsumeRefreshToken(ctx, record.TokenHash, now); err != nil {
				return err
			}
			return tx.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshTokenRecord{
				ID:        idx.New().String(),
				UserID:    user.ID,
				SessionID: record.SessionID,
				TokenHash: cryptox.FingerprintToken(next),
				ExpiresAt: now.Add(s.Tokens.RefreshTTL),
				CreatedAt: now,
			})
		})
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.TokenPair{}, ErrRefreshTokenInvalid
			}
			return domain.TokenPair{}, err
		}
		pair.RefreshToken = next
	}

	return pair, nil
}

// Logout revokes the presented refresh token. Unknown and already-revoked
// tokens succeed the same way as live ones, so callers learn nothing about
// token state from the response.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	return s.Store.RefreshTokens().RevokeRefreshToken(ctx,
		cryptox.FingerprintToken(refreshToken), s.now())
}

// LogoutAll revokes every live refresh token of a user, ending all their
// sessions at once.
func (s *AuthService) LogoutAll(ctx context.Context, userID string) error {
	return s.Store.RefreshTokens().RevokeAllUserRefreshTokens(ctx, userID, s.now())
}

func (s *AuthService) persistRefresh(ctx context.Context, userID, sessionID, token string, now time.Time) error {
	return s.Store.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshTokenRecord{
		ID:        idx.New().String(),
		UserID:    userID,
		SessionID: sessionID,
		TokenHash: cryptox.FingerprintToken(token),
		ExpiresAt: now.Add(s.Tokens.RefreshTTL),
		CreatedAt: now,
	})
}
