package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sitepass/sitepass/internal/auth/domain"
	"github.com/sitepass/sitepass/pkg/jwtx"
)

// TokenService issues and verifies the JWTs minted for users. Every token
// carries the key id of the secret that signed it, so verification can
// pick the right secret even across rotations.
type TokenService struct {
	Keyring  *jwtx.Keyring
	Rotation *RotationService

	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Grace bounds how long a retired secret still verifies tokens.
	// Tokens signed by secrets retired longer ago than this are rejected
	// even if otherwise valid.
	Grace time.Duration

	// Leeway absorbs small clock skew on exp/nbf checks.
	Leeway time.Duration

	Now func() time.Time
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// IssueAccess mints a short-lived access token for the user with the
// currently active access secret.
func (s *TokenService) IssueAccess(user domain.User) (string, error) {
	return s.issue(jwtx.UseAccess, user, s.AccessTTL)
}

// IssueRefresh mints a refresh token. The caller is responsible for
// persisting its fingerprint before handing it out.
func (s *TokenService) IssueRefresh(user domain.User) (string, error) {
	return s.issue(jwtx.UseRefresh, user, s.RefreshTTL)
}

// IssuePair mints the access/refresh pair returned by login and refresh.
func (s *TokenService) IssuePair(user domain.User) (domain.TokenPair, error) {
	access, err := s.IssueAccess(user)
	if err != nil {
		return domain.TokenPair{}, err
	}
	refresh, err := s.IssueRefresh(user)
	if err != nil {
		return domain.TokenPair{}, err
	}
	return domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.AccessTTL / time.Second),
	}, nil
}

func (s *TokenService) issue(use string, user domain.User, ttl time.Duration) (string, error) {
	signer, err := s.Keyring.ActiveSigner(use)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNoActiveSecret, use)
	}
	claims := jwtx.NewClaims(use, user.ID, user.Username, user.Email,
		string(user.AccessLevel), s.Issuer, ttl, s.now())
	return signer.Sign(claims)
}

// VerifyAccess validates an access token. Satisfies the authn middleware's
// verifier contract.
func (s *TokenService) VerifyAccess(ctx context.Context, token string) (jwtx.Claims, error) {
	return s.verify(ctx, token, jwtx.UseAccess)
}

// VerifyRefresh validates a refresh token's signature and claims. Revocation
// state lives in the store and is checked separately by AuthService.
func (s *TokenService) VerifyRefresh(ctx context.Context, token string) (jwtx.Claims, error) {
	return s.verify(ctx, token, jwtx.UseRefresh)
}

func (s *TokenService) verify(ctx context.Context, token, use string) (jwtx.Claims, error) {
	verifier := jwtx.Verifier{
		Keys: &storeFallbackResolver{
			primary: s.Keyring.GraceResolver(s.Grace, s.now),
			ctx:     ctx,
			svc:     s,
			use:     use,
		},
		Issuer: s.Issuer,
		Leeway: s.Leeway,
	}
	return verifier.Verify(token, use)
}

// storeFallbackResolver first consults the in-memory keyring, then the
// persisted secret set. The keyring only remembers secrets retired since
// this process started; after a restart, tokens signed by the previous
// generation resolve through the store as long as they are inside the
// grace window.
type storeFallbackResolver struct {
	primary jwtx.KeyResolver
	ctx     context.Context
	svc     *TokenService
	use     string
}

func (r *storeFallbackResolver) ResolveKey(keyID string) ([]byte, bool) {
	if secret, ok := r.primary.ResolveKey(keyID); ok {
		return secret, true
	}
	record, secret, err := r.svc.Rotation.LookupRetired(r.ctx, keyID)
	if err != nil {
		return nil, false
	}
	if string(record.Type) != r.use {
		return nil, false
	}
	if !record.UsableForVerification(r.svc.now(), r.svc.Grace) {
		return nil, false
	}
	return secret, true
}
