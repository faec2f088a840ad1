package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sitepass/sitepass/internal/auth/domain"
	"github.com/sitepass/sitepass/internal/auth/service"
	"github.com/sitepass/sitepass/internal/auth/store/drivers/sqlite"
	"github.com/sitepass/sitepass/pkg/cryptox"
	"github.com/sitepass/sitepass/pkg/jwtx"
)

type testServer struct {
	srv    *httptest.Server
	store  *sqlite.Store
	tokens *service.TokenService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	sealer, err := cryptox.NewSealerFromKey([]byte("router test key"))
	require.NoError(t, err)

	keyring := jwtx.NewKeyring()
	rotation := &service.RotationService{Store: st, Sealer: sealer, Keyring: keyring}
	require.NoError(t, rotation.InitializeOnStartup(context.Background()))

	tokens := &service.TokenService{
		Keyring:    keyring,
		Rotation:   rotation,
		Issuer:     "sitepass-test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 24 * time.Hour,
		Grace:      time.Hour,
	}
	auth := &service.AuthService{
		Store:      st,
		Tokens:     tokens,
		SessionTTL: 24 * time.Hour,
	}
	authorizer := &service.AuthorizerService{Store: st}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(keyring, "test", st, logger)
	router.AuthService = auth
	router.TokenService = tokens
	router.AuthorizerService = authorizer
	router.RotationService = rotation
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, store: st, tokens: tokens}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	var decoded map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func (ts *testServer) registerAndLogin(t *testing.T, username string) (userID, access, refresh string) {
	t.Helper()

	resp, body := ts.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	userID = body["user_id"].(string)

	resp, body = ts.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"username": username,
		"password": "correct horse battery",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return userID, body["access_token"].(string), body["refresh_token"].(string)
}

func (ts *testServer) promote(t *testing.T, userID string, level domain.AccessLevel) {
	t.Helper()
	require.NoError(t, ts.store.Users().UpdateUserAccessLevel(context.Background(), userID, level))
}

func TestAuthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	_, access, refresh := ts.registerAndLogin(t, "alice")

	t.Run("register rejects duplicates", func(t *testing.T) {
		resp, _ := ts.do(t, http.MethodPost, "/v1/auth/register", "", map[string]string{
			"username": "alice",
			"email":    "alice2@example.com",
			"password": "correct horse battery",
		})
		require.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("login rejects bad credentials", func(t *testing.T) {
		resp, body := ts.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
			"username": "alice",
			"password": "wrong",
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Equal(t, "invalid_credentials", body["error"])
	})

	t.Run("refresh mints a new access token", func(t *testing.T) {
		resp, body := ts.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{
			"refresh_token": refresh,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotEmpty(t, body["access_token"])
	})

	t.Run("me requires a token", func(t *testing.T) {
		resp, _ := ts.do(t, http.MethodGet, "/v1/users/me", "", nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		resp, body := ts.do(t, http.MethodGet, "/v1/users/me", access, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "alice", body["username"])
		require.Equal(t, "basic", body["access_level"])
	})

	t.Run("logout then refresh fails", func(t *testing.T) {
		resp, _ := ts.do(t, http.MethodPost, "/v1/auth/logout", "", map[string]string{
			"refresh_token": refresh,
		})
		require.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp, _ = ts.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{
			"refresh_token": refresh,
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestSitesEndpoint(t *testing.T) {
	ts := newTestServer(t)

	aliceID, access, _ := ts.registerAndLogin(t, "alice")
	adminID, adminAccess, _ := ts.registerAndLogin(t, "root")
	ts.promote(t, adminID, domain.LevelAdmin)

	// Admin creates a premium site.
	resp, created := ts.do(t, http.MethodPost, "/v1/admin/sites", adminAccess, map[string]string{
		"site_name":             "reports",
		"site_url":              "https://reports.example.com",
		"access_level_required": "premium",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotEmpty(t, created["api_key"])

	t.Run("basic user sees no premium sites", func(t *testing.T) {
		resp, body := ts.do(t, http.MethodGet, "/v1/sites", access, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Empty(t, body["sites"])
	})

	t.Run("after elevation the site appears", func(t *testing.T) {
		resp, _ := ts.do(t, http.MethodPut, "/v1/admin/users/"+aliceID+"/access-level", adminAccess,
			map[string]string{"access_level": "premium"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body := ts.do(t, http.MethodGet, "/v1/sites", access, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		sites := body["sites"].([]any)
		require.Len(t, sites, 1)
	})

	t.Run("login response lists accessible sites", func(t *testing.T) {
		resp, body := ts.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
			"username": "alice",
			"password": "correct horse battery",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		sites := body["accessible_sites"].([]any)
		require.Len(t, sites, 1)
		site := sites[0].(map[string]any)
		require.Equal(t, "reports", site["site_name"])
	})
}

func TestAdminEndpoints(t *testing.T) {
	ts := newTestServer(t)

	aliceID, aliceAccess, _ := ts.registerAndLogin(t, "alice")
	adminID, adminAccess, _ := ts.registerAndLogin(t, "root")
	ts.promote(t, adminID, domain.LevelAdmin)

	t.Run("non-admin is forbidden", func(t *testing.T) {
		resp, _ := ts.do(t, http.MethodPut, "/v1/admin/users/"+adminID+"/access-level", aliceAccess,
			map[string]string{"access_level": "basic"})
		require.Equal(t, http.StatusForbidden, resp.StatusCode)

		resp, _ = ts.do(t, http.MethodPost, "/v1/admin/secrets/rotate", aliceAccess, nil)
		require.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("unknown level is a bad request", func(t *testing.T) {
		resp, _ := ts.do(t, http.MethodPut, "/v1/admin/users/"+aliceID+"/access-level", adminAccess,
			map[string]string{"access_level": "superuser"})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown user is a 404", func(t *testing.T) {
		resp, _ := ts.do(t, http.MethodPut, "/v1/admin/users/ghost/access-level", adminAccess,
			map[string]string{"access_level": "basic"})
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("list users by level", func(t *testing.T) {
		resp, _ := ts.do(t, http.MethodPut, "/v1/admin/users/"+aliceID+"/access-level", adminAccess,
			map[string]string{"access_level": "standard"})
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, body := ts.do(t, http.MethodGet, "/v1/admin/users?level=standard", adminAccess, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		users := body["users"].([]any)
		require.Len(t, users, 1)
	})

	t.Run("rotation keeps existing tokens valid in grace", func(t *testing.T) {
		resp, body := ts.do(t, http.MethodPost, "/v1/admin/secrets/rotate", adminAccess, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, body["key_ids"].(map[string]any), 2)

		// Token minted before the rotation still authenticates.
		resp, _ = ts.do(t, http.MethodGet, "/v1/users/me", adminAccess, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodGet, "/livez", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])

	resp, body = ts.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", body["status"])
}
