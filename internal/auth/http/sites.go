package http

import (
	"net/http"

	"github.com/sitepass/sitepass/internal/auth/service"
	"github.com/sitepass/sitepass/pkg/httpx"
	"github.com/sitepass/sitepass/pkg/slogx"
)

type SitesHandler struct {
	AuthorizerService *service.AuthorizerService
}

type siteResponse struct {
	SiteID        string `json:"site_id"`
	Name          string `json:"site_name"`
	URL           string `json:"site_url"`
	RequiredLevel string `json:"access_level_required"`
}

// ServeHTTP lists the active sites the authenticated user's access level
// satisfies.
func (h *SitesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "invalid or expired token")
		return
	}

	sites, err := h.AuthorizerService.AccessibleSites(ctx, userID)
	if err != nil {
		log.Error("failed to list accessible sites", "user_id", userID, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		return
	}

	out := make([]siteResponse, 0, len(sites))
	for _, site := range sites {
		out = append(out, siteResponse{
			SiteID:        site.ID,
			Name:          site.Name,
			URL:           site.URL,
			RequiredLevel: string(site.RequiredLevel),
		})
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"sites": out})
}
