package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bravo68web/tableidentity/internal/application/dto"
	"github.com/bravo68web/tableidentity/internal/application/service"
	"github.com/bravo68web/tableidentity/internal/config"
	"github.com/bravo68web/tableidentity/internal/injectable"
	"github.com/bravo68web/tableidentity/internal/server"
	"github.com/bravo68web/tableidentity/pkg/logger"
)

type testAPI struct {
	t      *testing.T
	server *server.Server
	deps   *injectable.Dependencies
	token  string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`
server:
  mode: test
  jwt_secret: router-test-secret
store:
  backend: memory
snapshot:
  type: filesystem
  base_path: %s
lockout:
  max_failed_attempts: 2
`, filepath.Join(dir, "snapshots"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	log := logger.NewNop()
	logger.SetGlobal(log)
	deps, err := injectable.LoadDependencies(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })

	s := server.New(cfg, deps, log, nil)
	NewRouter(s).RegisterRoutes()

	api := &testAPI{t: t, server: s, deps: deps}

	ctx := context.Background()
	admin, err := deps.UserService.Register(ctx, service.RegisterRequest{
		Username: "root",
		Email:    "root@example.com",
		Password: "root password",
	})
	require.NoError(t, err)
	require.NoError(t, deps.UserService.AddToRole(ctx, admin.ID, cfg.Server.AdminRole))

	var login dto.LoginResponse
	rec := api.do(http.MethodPost, "/api/v1/auth/token", dto.LoginRequest{Username: "root", Password: "root password"}, &login)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.True(t, login.Admin)
	api.token = login.Token
	return api
}

func (a *testAPI) request(method, path, token string, body any, out any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.server.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec
}

func (a *testAPI) do(method, path string, body any, out any) *httptest.ResponseRecorder {
	a.t.Helper()
	return a.request(method, path, a.token, body, out)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)
	assert.Equal(t, http.StatusOK, api.request(http.MethodGet, "/health", "", nil, nil).Code)

	var ready struct {
		Status string            `json:"status"`
		Tables map[string]string `json:"tables"`
	}
	require.Equal(t, http.StatusOK, api.request(http.MethodGet, "/ready", "", nil, &ready).Code)
	assert.Equal(t, "ready", ready.Status)
	for _, name := range api.deps.Store.TableNames().Names() {
		assert.Equal(t, "ok", ready.Tables[name], name)
	}
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	api := newTestAPI(t)

	rec := api.request(http.MethodGet, "/api/v1/users", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.request(http.MethodGet, "/api/v1/users", "garbage", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var created dto.UserInfo
	rec = api.do(http.MethodPost, "/api/v1/users", dto.CreateUserRequest{Username: "bob", Password: "bob password"}, &created)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var login dto.LoginResponse
	rec = api.request(http.MethodPost, "/api/v1/auth/token", "", dto.LoginRequest{Username: "bob", Password: "bob password"}, &login)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, login.Admin)

	rec = api.request(http.MethodGet, "/api/v1/users", login.Token, nil, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var me dto.UserProfile
	rec = api.request(http.MethodGet, "/api/v1/auth/me", login.Token, nil, &me)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob", me.User.Username)
}

func TestUserLifecycle(t *testing.T) {
	api := newTestAPI(t)

	var alice dto.UserInfo
	rec := api.do(http.MethodPost, "/api/v1/users", dto.CreateUserRequest{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "alice password",
		Logins:   []dto.LoginInfo{{Provider: "GitHub", Key: "1001"}},
	}, &alice)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, alice.HasPassword)

	rec = api.do(http.MethodPost, "/api/v1/users", dto.CreateUserRequest{Username: "alice"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(http.MethodPost, "/api/v1/users", dto.CreateUserRequest{Username: "other", Email: "alice@example.com"}, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var found dto.UserInfo
	rec = api.do(http.MethodGet, "/api/v1/users/lookup?email=alice@example.com", nil, &found)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, alice.ID, found.ID)

	rec = api.do(http.MethodGet, "/api/v1/users/lookup?provider=GitHub&key=1001", nil, &found)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, alice.ID, found.ID)

	rec = api.do(http.MethodGet, "/api/v1/users/lookup?username=nobody", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodPost, "/api/v1/users/"+alice.ID+"/roles", dto.RoleRequest{Role: "Editors"}, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = api.do(http.MethodPost, "/api/v1/users/"+alice.ID+"/claims", dto.ClaimInfo{Type: "scope", Value: "read"}, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	var profile dto.UserProfile
	rec = api.do(http.MethodGet, "/api/v1/users/"+alice.ID, nil, &profile)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Editors"}, profile.Roles)
	assert.Equal(t, []dto.ClaimInfo{{Type: "scope", Value: "read"}}, profile.Claims)
	assert.Equal(t, []dto.LoginInfo{{Provider: "GitHub", Key: "1001"}}, profile.Logins)

	email := "alice@new.example.com"
	var updated dto.UserInfo
	rec = api.do(http.MethodPatch, "/api/v1/users/"+alice.ID, dto.UpdateUserRequest{Email: &email}, &updated)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, email, updated.Email)

	var search dto.SearchUsersResponse
	rec = api.do(http.MethodGet, "/api/v1/users?prefix=al", nil, &search)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"alice"}, search.Usernames)

	rec = api.do(http.MethodDelete, "/api/v1/users/"+alice.ID+"/claims?type=scope&value=read", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = api.do(http.MethodDelete, "/api/v1/users/"+alice.ID+"/roles/Editors", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(http.MethodDelete, "/api/v1/users/"+alice.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = api.do(http.MethodGet, "/api/v1/users/"+alice.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLockoutOverHTTP(t *testing.T) {
	api := newTestAPI(t)

	var carol dto.UserInfo
	rec := api.do(http.MethodPost, "/api/v1/users", dto.CreateUserRequest{Username: "carol", Password: "carol password"}, &carol)
	require.Equal(t, http.StatusCreated, rec.Code)

	for i := 0; i < 2; i++ {
		rec = api.request(http.MethodPost, "/api/v1/auth/token", "", dto.LoginRequest{Username: "carol", Password: "wrong password"}, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec = api.request(http.MethodPost, "/api/v1/auth/token", "", dto.LoginRequest{Username: "carol", Password: "carol password"}, nil)
	assert.Equal(t, http.StatusLocked, rec.Code)

	rec = api.do(http.MethodPost, "/api/v1/users/"+carol.ID+"/unlock", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var check dto.PasswordCheckResponse
	rec = api.do(http.MethodPost, "/api/v1/auth/password/check", dto.LoginRequest{Username: "carol", Password: "carol password"}, &check)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, check.Valid)
}

func TestChangePasswordRevokesSession(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/api/v1/users", dto.CreateUserRequest{Username: "dave", Password: "dave password"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var login dto.LoginResponse
	rec = api.request(http.MethodPost, "/api/v1/auth/token", "", dto.LoginRequest{Username: "dave", Password: "dave password"}, &login)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.request(http.MethodPut, "/api/v1/auth/me/password", login.Token, dto.ChangePasswordRequest{
		CurrentPassword: "dave password",
		NewPassword:     "dave new password",
	}, nil)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = api.request(http.MethodGet, "/api/v1/auth/me", login.Token, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIndexRebuildAndSnapshots(t *testing.T) {
	api := newTestAPI(t)

	var rebuilt dto.RebuildIndexResponse
	rec := api.do(http.MethodPost, "/api/v1/admin/indexes/rebuild", dto.RebuildIndexRequest{Indexes: []string{"username", "email"}}, &rebuilt)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, rebuilt.Indexes, 2)
	assert.Equal(t, "username", rebuilt.Indexes[0].Index)
	assert.Equal(t, 1, rebuilt.Indexes[0].Written)

	rec = api.do(http.MethodPost, "/api/v1/admin/indexes/rebuild", dto.RebuildIndexRequest{Indexes: []string{"phone"}}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var manifest dto.SnapshotManifest
	rec = api.do(http.MethodPost, "/api/v1/admin/snapshots", dto.CreateSnapshotRequest{Name: "before.jsonl"}, &manifest)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, manifest.Counts["users"])

	var list dto.ListSnapshotsResponse
	rec = api.do(http.MethodGet, "/api/v1/admin/snapshots", nil, &list)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "before.jsonl", list.Snapshots[0].Name)

	rec = api.do(http.MethodPost, "/api/v1/admin/snapshots/restore", dto.CreateSnapshotRequest{Name: "before.jsonl"}, &manifest)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(http.MethodPost, "/api/v1/admin/snapshots/restore", dto.CreateSnapshotRequest{Name: "missing.jsonl"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodPost, "/api/v1/admin/snapshots", dto.CreateSnapshotRequest{Name: "after.jsonl"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = api.do(http.MethodPost, "/api/v1/admin/snapshots/prune", dto.PruneSnapshotsRequest{Keep: 0}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var pruned dto.PruneSnapshotsResponse
	rec = api.do(http.MethodPost, "/api/v1/admin/snapshots/prune", dto.PruneSnapshotsRequest{Keep: 1}, &pruned)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, pruned.Removed, 1)

	rec = api.do(http.MethodGet, "/api/v1/admin/snapshots", nil, &list)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, list.Total)
	left := list.Snapshots[0].Name

	rec = api.do(http.MethodDelete, "/api/v1/admin/snapshots?name="+left, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = api.do(http.MethodDelete, "/api/v1/admin/snapshots?name="+left, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = api.do(http.MethodDelete, "/api/v1/admin/snapshots", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOpenAPIDocument(t *testing.T) {
	api := newTestAPI(t)

	var doc map[string]any
	rec := api.request(http.MethodGet, "/openapi.json", "", nil, &doc)
	require.Equal(t, http.StatusOK, rec.Code)
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/api/v1/users/{id}")
	assert.Contains(t, paths, "/api/v1/auth/token")
	assert.Contains(t, paths["/api/v1/admin/snapshots"], "delete")
	assert.Contains(t, paths, "/api/v1/admin/snapshots/prune")

	token := paths["/api/v1/auth/token"].(map[string]any)["post"].(map[string]any)
	assert.NotContains(t, token, "security")
	me := paths["/api/v1/auth/me"].(map[string]any)["get"].(map[string]any)
	assert.Contains(t, me, "security")
	components := doc["components"].(map[string]any)
	assert.Contains(t, components["securitySchemes"], "bearerAuth")

	rec = api.request(http.MethodGet, "/openapi.yaml", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
