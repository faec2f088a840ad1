package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sitepass/sitepass/internal/auth/service"
	"github.com/sitepass/sitepass/internal/auth/store"
	"github.com/sitepass/sitepass/pkg/httpx"
	"github.com/sitepass/sitepass/pkg/slogx"
)

// writeAdminError maps the shared admin failure modes to HTTP statuses.
func writeAdminError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInsufficientPermissions):
		httpx.WriteError(w, http.StatusForbidden, "forbidden", "admin access required")
	case errors.Is(err, service.ErrInvalidAccessLevel):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "unknown access level")
	case errors.Is(err, store.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", "no such record")
	case errors.Is(err, store.ErrAlreadyExists):
		httpx.WriteError(w, http.StatusConflict, "conflict", "record already exists")
	default:
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

type accessLevelRequest struct {
	AccessLevel string `json:"access_level"`
}

type AdminUserLevelHandler struct {
	AuthorizerService *service.AuthorizerService
}

// ServeHTTP changes a user's access level. Admin only; the acting user is
// re-checked against the store on every call.
func (h *AdminUserLevelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	actorID, _ := httpx.UserIDFromContext(ctx)
	targetID := r.PathValue("id")

	var req accessLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	user, err := h.AuthorizerService.SetUserAccessLevel(ctx, actorID, targetID, req.AccessLevel)
	if err != nil {
		log.Warn("user level change rejected", "actor_id", actorID, "target_id", targetID, "err", err)
		writeAdminError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, userResponse{
		UserID:      user.ID,
		Username:    user.Username,
		Email:       user.Email,
		AccessLevel: string(user.AccessLevel),
		IsActive:    user.IsActive,
	})
}

type AdminSiteLevelHandler struct {
	AuthorizerService *service.AuthorizerService
}

func (h *AdminSiteLevelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	actorID, _ := httpx.UserIDFromContext(ctx)
	siteID := r.PathValue("id")

	var req accessLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	site, err := h.AuthorizerService.SetSiteRequiredLevel(ctx, actorID, siteID, req.AccessLevel)
	if err != nil {
		log.Warn("site level change rejected", "actor_id", actorID, "site_id", siteID, "err", err)
		writeAdminError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, siteResponse{
		SiteID:        site.ID,
		Name:          site.Name,
		URL:           site.URL,
		RequiredLevel: string(site.RequiredLevel),
	})
}

type AdminCreateSiteHandler struct {
	AuthorizerService *service.AuthorizerService
}

type createSiteResponse struct {
	siteResponse
	APIKey string `json:"api_key"`
}

// ServeHTTP registers a new protected site. The generated API key appears
// once in the response and is never retrievable again.
func (h *AdminCreateSiteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	actorID, _ := httpx.UserIDFromContext(ctx)

	var req service.CreateSiteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	result, err := h.AuthorizerService.CreateSite(ctx, actorID, req)
	if err != nil {
		log.Warn("site creation rejected", "actor_id", actorID, "err", err)
		writeAdminError(w, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusCreated, createSiteResponse{
		siteResponse: siteResponse{
			SiteID:        result.Site.ID,
			Name:          result.Site.Name,
			URL:           result.Site.URL,
			RequiredLevel: string(result.Site.RequiredLevel),
		},
		APIKey: result.APIKey,
	})
}

type AdminListUsersHandler struct {
	AuthorizerService *service.AuthorizerService
}

// ServeHTTP lists users at exactly the level given by ?level=.
func (h *AdminListUsersHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	actorID, _ := httpx.UserIDFromContext(ctx)
	level := r.URL.Query().Get("level")

	users, err := h.AuthorizerService.ListUsersByLevel(ctx, actorID, level)
	if err != nil {
		log.Warn("user listing rejected", "actor_id", actorID, "level", level, "err", err)
		writeAdminError(w, err)
		return
	}

	out := make([]userResponse, 0, len(users))
	for _, user := range users {
		out = append(out, userResponse{
			UserID:      user.ID,
			Username:    user.Username,
			Email:       user.Email,
			AccessLevel: string(user.AccessLevel),
			IsActive:    user.IsActive,
		})
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"users": out})
}

type AdminRotateHandler struct {
	AuthorizerService *service.AuthorizerService
	RotationService   *service.RotationService
}

// ServeHTTP triggers an immediate rotation of both signing secrets.
func (h *AdminRotateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	actorID, _ := httpx.UserIDFromContext(ctx)
	if err := h.AuthorizerService.RequireAdmin(ctx, actorID); err != nil {
		log.Warn("manual rotation rejected", "actor_id", actorID, "err", err)
		writeAdminError(w, err)
		return
	}

	result, err := h.RotationService.Rotate(ctx)
	if err != nil {
		log.Error("manual rotation failed", "actor_id", actorID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "rotation failed")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, result)
}
