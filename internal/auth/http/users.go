package http

import (
	"net/http"

	"github.com/sitepass/sitepass/internal/auth/store"
	"github.com/sitepass/sitepass/pkg/httpx"
	"github.com/sitepass/sitepass/pkg/slogx"
)

type MeHandler struct {
	Store store.Store
}

type userResponse struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	AccessLevel string `json:"access_level"`
	IsActive    bool   `json:"is_active"`
}

// ServeHTTP returns the authenticated user's profile, re-read from the
// store so level changes show up without waiting for a new token.
func (h *MeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "invalid or expired token")
		return
	}

	user, err := h.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		log.Warn("failed to load user", "user_id", userID, "err", err)
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "invalid or expired token")
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, userResponse{
		UserID:      user.ID,
		Username:    user.Username,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		AccessLevel: string(user.AccessLevel),
		IsActive:    user.IsActive,
	})
}
