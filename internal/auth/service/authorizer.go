package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/sitepass/sitepass/internal/auth/domain"
	"github.com/sitepass/sitepass/internal/auth/store"
	"github.com/sitepass/sitepass/pkg/cryptox"
	"github.com/sitepass/sitepass/pkg/idx"
)

// AuthorizerService answers "may this user reach this site" and carries
// the admin-gated mutations of the access hierarchy. Authorization always
// fails closed: an unknown user, an unknown site, a disabled record or an
// unparseable level all deny.
type AuthorizerService struct {
	Store store.Store
	Now   func() time.Time
}

func (s *AuthorizerService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// HasAccess reports whether the user's level satisfies the site's
// requirement. Both records are re-read from the store, so a revoked or
// demoted user is denied even while holding a token minted at a higher
// level.
func (s *AuthorizerService) HasAccess(ctx context.Context, userID, siteName string) (bool, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !user.IsActive {
		return false, nil
	}

	site, err := s.Store.Sites().GetSiteByName(ctx, siteName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if !site.IsActive {
		return false, nil
	}

	return user.AccessLevel.Satisfies(site.RequiredLevel), nil
}

// AccessibleSites returns the active sites the user's level satisfies,
// ordered by name.
func (s *AuthorizerService) AccessibleSites(ctx context.Context, userID string) ([]domain.Site, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, nil
	}

	sites, err := s.Store.Sites().ListActiveSites(ctx)
	if err != nil {
		return nil, err
	}

	accessible := make([]domain.Site, 0, len(sites))
	for _, site := range sites {
		if user.AccessLevel.Satisfies(site.RequiredLevel) {
			accessible = append(accessible, site)
		}
	}
	return accessible, nil
}

// RequireAdmin re-resolves the acting user from the store rather than
// trusting claims, so a demoted admin loses mutation rights immediately.
func (s *AuthorizerService) RequireAdmin(ctx context.Context, actorID string) error {
	actor, err := s.Store.Users().GetUserByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrInsufficientPermissions
		}
		return err
	}
	if !actor.IsActive || !actor.AccessLevel.Satisfies(domain.LevelAdmin) {
		return ErrInsufficientPermissions
	}
	return nil
}

// SetUserAccessLevel changes a user's level. Admin only.
func (s *AuthorizerService) SetUserAccessLevel(ctx context.Context, actorID, userID string, level string) (domain.User, error) {
	if err := s.RequireAdmin(ctx, actorID); err != nil {
		return domain.User{}, err
	}

	parsed, err := domain.ParseAccessLevel(level)
	if err != nil {
		return domain.User{}, ErrInvalidAccessLevel
	}

	if err := s.Store.Users().UpdateUserAccessLevel(ctx, userID, parsed); err != nil {
		return domain.User{}, err
	}

	slog.Info("user access level changed",
		"actor_id", actorID, "user_id", userID, "level", parsed)
	return s.Store.Users().GetUserByID(ctx, userID)
}

// SetSiteRequiredLevel changes the minimum level a site demands. Admin only.
func (s *AuthorizerService) SetSiteRequiredLevel(ctx context.Context, actorID, siteID string, level string) (domain.Site, error) {
	if err := s.RequireAdmin(ctx, actorID); err != nil {
		return domain.Site{}, err
	}

	parsed, err := domain.ParseAccessLevel(level)
	if err != nil {
		return domain.Site{}, ErrInvalidAccessLevel
	}

	if err := s.Store.Sites().UpdateSiteRequiredLevel(ctx, siteID, parsed); err != nil {
		return domain.Site{}, err
	}

	slog.Info("site required level changed",
		"actor_id", actorID, "site_id", siteID, "level", parsed)
	return s.Store.Sites().GetSiteByID(ctx, siteID)
}

type CreateSiteRequest struct {
	Name          string `json:"site_name"`
	URL           string `json:"site_url"`
	RequiredLevel string `json:"access_level_required"`
}

// CreateSiteResult carries the created site plus its API key. The key is
// shown exactly once; only its fingerprint is stored.
type CreateSiteResult struct {
	Site   domain.Site `json:"site"`
	APIKey string      `json:"api_key"`
}

// CreateSite registers a new protected site. Admin only.
func (s *AuthorizerService) CreateSite(ctx context.Context, actorID string, req CreateSiteRequest) (CreateSiteResult, error) {
	if err := s.RequireAdmin(ctx, actorID); err != nil {
		return CreateSiteResult{}, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return CreateSiteResult{}, errors.New("site name is required")
	}
	if _, err := url.ParseRequestURI(req.URL); err != nil {
		return CreateSiteResult{}, fmt.Errorf("site url is invalid: %w", err)
	}

	level := domain.LevelBasic
	if req.RequiredLevel != "" {
		parsed, err := domain.ParseAccessLevel(req.RequiredLevel)
		if err != nil {
			return CreateSiteResult{}, ErrInvalidAccessLevel
		}
		level = parsed
	}

	apiKey, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return CreateSiteResult{}, fmt.Errorf("generate api key: %w", err)
	}

	now := s.now()
	site := domain.Site{
		ID:            idx.New().String(),
		Name:          name,
		URL:           req.URL,
		APIKeyHash:    cryptox.FingerprintToken(apiKey),
		RequiredLevel: level,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Store.Sites().CreateSite(ctx, site); err != nil {
		return CreateSiteResult{}, err
	}

	slog.Info("site created", "actor_id", actorID, "site_id", site.ID, "site_name", site.Name)
	return CreateSiteResult{Site: site, APIKey: apiKey}, nil
}

// ListUsersByLevel returns users at exactly the given level. Admin only.
func (s *AuthorizerService) ListUsersByLevel(ctx context.Context, actorID string, level string) ([]domain.User, error) {
	if err := s.RequireAdmin(ctx, actorID); err != nil {
		return nil, err
	}

	parsed, err := domain.ParseAccessLevel(level)
	if err != nil {
		return nil, ErrInvalidAccessLevel
	}
	return s.Store.Users().ListUsersByAccessLevel(ctx, parsed)
}
