package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"todo-serverless/app"
	"todo-serverless/internal/config"
	"todo-serverless/internal/db/dbtest"
	"todo-serverless/internal/observability"
	"todo-serverless/internal/todo"
	"todo-serverless/internal/user"
)

type pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type client struct {
	t       *testing.T
	handler http.Handler
}

func newClient(t *testing.T, mutate func(*config.Config)) *client {
	t.Helper()

	cfg := config.Config{
		JWTSecret:            "http-test-secret",
		AccessTokenTTL:       15 * time.Minute,
		RefreshTokenTTL:      24 * time.Hour,
		Hasher:               config.HasherConfig{Workers: 2, QueueDepth: 32, Cost: bcrypt.MinCost},
		LoginRateLimitMax:    100,
		LoginRateLimitWindow: time.Minute,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	database := dbtest.NewSQLite(t, (*user.User)(nil), (*todo.Todo)(nil))
	runtime, err := app.Assemble(context.Background(), cfg, database, observability.NewLoggerTo(io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { _ = runtime.Close() })

	return &client{t: t, handler: runtime.Handler}
}

func (c *client) do(method, path, bearer string, body any) *httptest.ResponseRecorder {
	c.t.Helper()

	var reader io.Reader = http.NoBody
	if body != nil {
		raw, ok := body.(string)
		if !ok {
			encoded, err := json.Marshal(body)
			require.NoError(c.t, err)
			raw = string(encoded)
		}
		reader = bytes.NewBufferString(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (c *client) signUp(username, password string) pair {
	c.t.Helper()
	rec := c.do(http.MethodPost, "/api/v1/auth/sign-up", "", map[string]string{"username": username, "password": password})
	require.Equal(c.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[pair](c.t, rec)
}

func TestAuthFlow(t *testing.T) {
	c := newClient(t, nil)

	tokens := c.signUp("alice", "longpassword1")
	assert.NotEmpty(t, tokens.Access)
	assert.NotEmpty(t, tokens.Refresh)

	tests := []struct {
		name   string
		method string
		path   string
		bearer string
		body   any
		status int
	}{
		{name: "duplicate sign-up", method: http.MethodPost, path: "/api/v1/auth/sign-up", body: map[string]string{"username": "alice", "password": "whatever123"}, status: http.StatusConflict},
		{name: "short username", method: http.MethodPost, path: "/api/v1/auth/sign-up", body: map[string]string{"username": "bob", "password": "longpassword1"}, status: http.StatusUnprocessableEntity},
		{name: "short password", method: http.MethodPost, path: "/api/v1/auth/sign-up", body: map[string]string{"username": "bobby", "password": "short"}, status: http.StatusUnprocessableEntity},
		{name: "unknown field", method: http.MethodPost, path: "/api/v1/auth/sign-in", body: `{"username":"alice","password":"longpassword1","admin":true}`, status: http.StatusBadRequest},
		{name: "sign-in", method: http.MethodPost, path: "/api/v1/auth/sign-in", body: map[string]string{"username": "alice", "password": "longpassword1"}, status: http.StatusOK},
		{name: "wrong password", method: http.MethodPost, path: "/api/v1/auth/sign-in", body: map[string]string{"username": "alice", "password": "wrongpassword"}, status: http.StatusUnauthorized},
		{name: "unknown user", method: http.MethodPost, path: "/api/v1/auth/sign-in", body: map[string]string{"username": "nobody", "password": "longpassword1"}, status: http.StatusUnauthorized},
		{name: "refresh by header", method: http.MethodPost, path: "/api/v1/auth/refresh", bearer: tokens.Refresh, status: http.StatusOK},
		{name: "refresh by body", method: http.MethodPost, path: "/api/v1/auth/refresh", body: map[string]string{"refresh_token": tokens.Refresh}, status: http.StatusOK},
		{name: "refresh with access token", method: http.MethodPost, path: "/api/v1/auth/refresh", bearer: tokens.Access, status: http.StatusUnauthorized},
		{name: "profile with refresh token", method: http.MethodGet, path: "/api/v1/user/profile", bearer: tokens.Refresh, status: http.StatusUnauthorized},
		{name: "profile without token", method: http.MethodGet, path: "/api/v1/user/profile", status: http.StatusUnauthorized},
		{name: "health", method: http.MethodGet, path: "/health", status: http.StatusOK},
		{name: "unknown route", method: http.MethodGet, path: "/nope", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := c.do(tt.method, tt.path, tt.bearer, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	t.Run("wrong audience message", func(t *testing.T) {
		rec := c.do(http.MethodPost, "/api/v1/auth/refresh", tokens.Access, nil)
		assert.JSONEq(t, `{"error":"wrong token audience"}`, rec.Body.String())
	})

	t.Run("profile hides the hash", func(t *testing.T) {
		rec := c.do(http.MethodGet, "/api/v1/user/profile", tokens.Access, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		profile := decode[map[string]any](t, rec)
		assert.Equal(t, "alice", profile["username"])
		assert.NotContains(t, profile, "hashed_password")
		_, err := uuid.Parse(profile["id"].(string))
		assert.NoError(t, err)
	})

	t.Run("change password", func(t *testing.T) {
		rec := c.do(http.MethodPut, "/api/v1/user/password", tokens.Access, map[string]string{"old_password": "nope-nope-nope", "new_password": "newpassword12"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec = c.do(http.MethodPut, "/api/v1/user/password", tokens.Access, map[string]string{"old_password": "longpassword1", "new_password": "newpassword12"})
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		rec = c.do(http.MethodPost, "/api/v1/auth/sign-in", "", map[string]string{"username": "alice", "password": "newpassword12"})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestTodoFlow(t *testing.T) {
	c := newClient(t, nil)
	alice := c.signUp("alice", "longpassword1")
	bob := c.signUp("bobby", "longpassword1")

	rec := c.do(http.MethodPost, "/api/v1/todos", alice.Access, map[string]string{"name": "buy milk"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[todo.Todo](t, rec)
	assert.False(t, created.IsCompleted)
	assert.Nil(t, created.CompletedAt)

	item := "/api/v1/todos/" + created.ID.String()

	rec = c.do(http.MethodPost, item+"/complete", alice.Access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	completed := decode[todo.Todo](t, rec)
	assert.True(t, completed.IsCompleted)
	assert.NotNil(t, completed.CompletedAt)

	rec = c.do(http.MethodPatch, item, bob.Access, map[string]string{"name": "sell milk"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = c.do(http.MethodGet, item, alice.Access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "buy milk", decode[todo.Todo](t, rec).Name)

	statuses := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{name: "missing todo", method: http.MethodGet, path: "/api/v1/todos/" + uuid.NewString(), status: http.StatusNotFound},
		{name: "bad id", method: http.MethodGet, path: "/api/v1/todos/not-a-uuid", status: http.StatusBadRequest},
		{name: "short name", method: http.MethodPost, path: "/api/v1/todos", body: map[string]string{"name": "abc"}, status: http.StatusUnprocessableEntity},
		{name: "limit zero", method: http.MethodGet, path: "/api/v1/todos?limit=0", status: http.StatusUnprocessableEntity},
		{name: "limit too large", method: http.MethodGet, path: "/api/v1/todos?limit=26", status: http.StatusUnprocessableEntity},
		{name: "negative offset", method: http.MethodGet, path: "/api/v1/todos?offset=-1", status: http.StatusUnprocessableEntity},
		{name: "bad completed flag", method: http.MethodGet, path: "/api/v1/todos?completed=maybe", status: http.StatusBadRequest},
		{name: "revert", method: http.MethodPost, path: item + "/revert", status: http.StatusOK},
	}
	for _, tt := range statuses {
		t.Run(tt.name, func(t *testing.T) {
			rec := c.do(tt.method, tt.path, alice.Access, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	for _, name := range []string{"second task", "third task"} {
		rec := c.do(http.MethodPost, "/api/v1/todos", alice.Access, map[string]string{"name": name})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec = c.do(http.MethodGet, "/api/v1/todos?limit=2", alice.Access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[todo.Page](t, rec)
	assert.Equal(t, 3, page.Count)
	assert.Len(t, page.Data, 2)

	rec = c.do(http.MethodGet, "/api/v1/todos", bob.Access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[todo.Page](t, rec).Count)

	rec = c.do(http.MethodDelete, item, bob.Access, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = c.do(http.MethodDelete, item, alice.Access, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = c.do(http.MethodDelete, "/api/v1/todos?completed=false", alice.Access, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"deleted":2}`, rec.Body.String())
}

func TestSignInRateLimit(t *testing.T) {
	c := newClient(t, func(cfg *config.Config) {
		cfg.LoginRateLimitMax = 2
	})

	body := map[string]string{"username": "nobody", "password": "longpassword1"}
	for range 2 {
		rec := c.do(http.MethodPost, "/api/v1/auth/sign-in", "", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := c.do(http.MethodPost, "/api/v1/auth/sign-in", "", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestSeedUser(t *testing.T) {
	c := newClient(t, func(cfg *config.Config) {
		cfg.SeedUsername = "seeded"
		cfg.SeedPassword = "longpassword1"
	})

	rec := c.do(http.MethodPost, "/api/v1/auth/sign-in", "", map[string]string{"username": "seeded", "password": "longpassword1"})
	assert.Equal(t, http.StatusOK, rec.Code)
}
