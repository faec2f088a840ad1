package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sitepass/sitepass/internal/auth/domain"
	"github.com/sitepass/sitepass/internal/auth/service"
	"github.com/sitepass/sitepass/pkg/httpx"
	"github.com/sitepass/sitepass/pkg/slogx"
)

type RegisterHandler struct {
	AuthService *service.AuthService
}

type registerResponse struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	AccessLevel string `json:"access_level"`
}

// ServeHTTP creates a new account. New accounts always start at the
// lowest access level.
func (h *RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	user, err := h.AuthService.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrDuplicateUser) {
			httpx.WriteError(w, http.StatusConflict, "conflict", err.Error())
			return
		}
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, registerResponse{
		UserID:      user.ID,
		Username:    user.Username,
		Email:       user.Email,
		AccessLevel: string(user.AccessLevel),
	})
}

type LoginHandler struct {
	AuthService       *service.AuthService
	AuthorizerService *service.AuthorizerService
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	domain.TokenPair
	UserID          string         `json:"user_id"`
	AccessLevel     string         `json:"access_level"`
	AccessibleSites []siteResponse `json:"accessible_sites"`
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	pair, user, err := h.AuthService.Login(r.Context(), service.LoginRequest{
		UsernameOrEmail: req.Username,
		Password:        req.Password,
		IPAddress:       httpx.IPKeyExtractor(r),
		UserAgent:       r.UserAgent(),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid username or password")
		case errors.Is(err, service.ErrUserInactive):
			httpx.WriteError(w, http.StatusForbidden, "account_disabled", "account is disabled")
		default:
			log.Error("login failed", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	sites, err := h.AuthorizerService.AccessibleSites(r.Context(), user.ID)
	if err != nil {
		log.Error("failed to list accessible sites", "user_id", user.ID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	accessible := make([]siteResponse, 0, len(sites))
	for _, site := range sites {
		accessible = append(accessible, siteResponse{
			SiteID:        site.ID,
			Name:          site.Name,
			URL:           site.URL,
			RequiredLevel: string(site.RequiredLevel),
		})
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		TokenPair:       pair,
		UserID:          user.ID,
		AccessLevel:     string(user.AccessLevel),
		AccessibleSites: accessible,
	})
}

type RefreshHandler struct {
	AuthService *service.AuthService
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ServeHTTP exchanges a refresh token for a new access token. Every
// failure mode returns the same 401 so callers cannot probe token state.
func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	pair, err := h.AuthService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, service.ErrRefreshTokenInvalid) {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_grant", "refresh token is invalid or expired")
			return
		}
		log.Error("refresh failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, pair)
}

type LogoutHandler struct {
	AuthService *service.AuthService
}

// ServeHTTP revokes the presented refresh token. Always returns 204:
// revoking an unknown or already-revoked token looks the same as
// revoking a live one.
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "refresh_token is required")
		return
	}

	if err := h.AuthService.Logout(r.Context(), req.RefreshToken); err != nil {
		log.Error("logout failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
