package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-rbac/internal/auth"
	"github.com/odyssey-erp/odyssey-rbac/internal/captcha"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

type stubProfiles struct{}

func (stubProfiles) GetUserInfo(ctx context.Context, userID string) (rbac.UserInfo, error) {
	if userID != "u1" {
		return rbac.UserInfo{}, shared.NotFound("user not found")
	}
	return rbac.UserInfo{UserID: userID, UserName: "alice", Name: "Alice", Roles: []string{"staff"}, Permissions: []string{"system:user:query"}}, nil
}

type envelope struct {
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func newRouter(f *fixture) http.Handler {
	h := auth.NewHandler(nil, f.svc, f.captcha, stubProfiles{})
	r := chi.NewRouter()
	r.Route("/auth", func(r chi.Router) {
		h.MountPublicRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(f.svc, nil))
			h.MountRoutes(r)
		})
	})
	return r
}

func do(t *testing.T, h http.Handler, method, target, token, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("User-Agent", testUA)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	return rr.Code, env
}

func TestHTTPLoginFlow(t *testing.T) {
	f := newFixture(t, auth.Options{})
	f.repo.add(t, "u1", "alice", "a.12345")
	router := newRouter(f)

	status, env := do(t, router, http.MethodGet, "/auth/captcha", "", "")
	require.Equal(t, http.StatusOK, status)
	var img map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &img))
	assert.True(t, strings.HasPrefix(img["captcha"], "data:image/svg+xml;base64,"))

	// httptest requests come from 192.0.2.1; the port is not part of the fingerprint.
	code, err := f.mr.Get(captcha.Key(testIP, testUA))
	require.NoError(t, err)

	status, env = do(t, router, http.MethodPost, "/auth/login", "",
		`{"userName":"alice","password":"a.12345","captcha":"`+strings.ToLower(code)+`"}`)
	require.Equal(t, http.StatusOK, status, env.Message)
	var pair auth.TokenPair
	require.NoError(t, json.Unmarshal(env.Data, &pair))
	require.NotEmpty(t, pair.AccessToken)

	status, env = do(t, router, http.MethodGet, "/auth/userinfo", pair.AccessToken, "")
	require.Equal(t, http.StatusOK, status)
	var info rbac.UserInfo
	require.NoError(t, json.Unmarshal(env.Data, &info))
	assert.Equal(t, "Alice", info.Name)

	status, _ = do(t, router, http.MethodGet, "/auth/refresh_token?refreshToken="+pair.RefreshToken, pair.AccessToken, "")
	require.Equal(t, http.StatusOK, status)
}

func TestHTTPLoginWrongCaptcha(t *testing.T) {
	f := newFixture(t, auth.Options{})
	f.repo.add(t, "u1", "alice", "a.12345")
	router := newRouter(f)
	f.issueCaptcha(t)

	status, env := do(t, router, http.MethodPost, "/auth/login", "",
		`{"userName":"alice","password":"a.12345","captcha":"zzzz"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, http.StatusBadRequest, env.Code)
	assert.Equal(t, "null", string(env.Data))
	assert.Equal(t, shared.ErrInvalidCredentials.Message, env.Message)
}

func TestHTTPLoginValidatesShape(t *testing.T) {
	f := newFixture(t, auth.Options{})
	router := newRouter(f)

	status, env := do(t, router, http.MethodPost, "/auth/login", "",
		`{"userName":"1x","password":"short","captcha":"ab"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, env.Message, "UserName failed username")
}

func TestHTTPGatedRoutesNeedToken(t *testing.T) {
	f := newFixture(t, auth.Options{})
	router := newRouter(f)

	status, env := do(t, router, http.MethodGet, "/auth/userinfo", "", "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "missing bearer token", env.Message)

	status, _ = do(t, router, http.MethodGet, "/auth/userinfo", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestHTTPLogoutThenRejected(t *testing.T) {
	f := newFixture(t, auth.Options{})
	f.repo.add(t, "u1", "alice", "a.12345")
	router := newRouter(f)
	pair := f.login(t, "alice", "a.12345")

	status, _ := do(t, router, http.MethodGet, "/auth/logout", pair.AccessToken, "")
	require.Equal(t, http.StatusOK, status)

	status, env := do(t, router, http.MethodGet, "/auth/userinfo", pair.AccessToken, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "token has been revoked", env.Message)

	status, _ = do(t, router, http.MethodGet, "/auth/refresh_token?refreshToken="+pair.RefreshToken, pair.AccessToken, "")
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestHTTPChangePassword(t *testing.T) {
	f := newFixture(t, auth.Options{})
	f.repo.add(t, "u1", "alice", "a.12345")
	router := newRouter(f)
	pair := f.login(t, "alice", "a.12345")

	status, _ := do(t, router, http.MethodPost, "/auth/password", pair.AccessToken,
		`{"oldPassword":"a.12345","newPassword":"n.54321"}`)
	require.Equal(t, http.StatusOK, status)

	status, env := do(t, router, http.MethodPost, "/auth/password", pair.AccessToken,
		`{"oldPassword":"a.12345","newPassword":"n.54321"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "old password is incorrect", env.Message)
}

func TestHTTPRefreshNeedsQuery(t *testing.T) {
	f := newFixture(t, auth.Options{})
	router := newRouter(f)
	status, env := do(t, router, http.MethodGet, "/auth/refresh_token", "", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "refreshToken is required", env.Message)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, auth.BearerToken(req))
	req.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, auth.BearerToken(req))
	req.Header.Set("Authorization", "bearer abc")
	assert.Equal(t, "abc", auth.BearerToken(req))
}
