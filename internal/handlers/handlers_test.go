package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autocare/internal/client"
	"autocare/internal/config"
	"autocare/internal/middleware"
	"autocare/internal/models"
	"autocare/internal/repository"
	"autocare/internal/service"
	"autocare/internal/session"
)

const testAnonKey = "anon-key"

func init() {
	gin.SetMode(gin.TestMode)
}

type testAPI struct {
	engine   *gin.Engine
	hub      *hub
	profiles *memProfiles
	sessions *memSessions
}

func newTestAPI(checks map[string]HealthCheck) *testAPI {
	cfg := &config.AppConfig{
		Environment: "test",
		Security: config.SecurityConfig{
			AnonKey:         testAnonKey,
			JWTAccessSecret: "test-secret",
			JWTAccessTTL:    time.Hour,
			JWTRefreshTTL:   24 * time.Hour,
			MaxSessions:     5,
		},
	}
	log := zerolog.Nop()
	bus := newHub()
	users := &memUsers{byID: map[string]models.User{}}
	sessions := &memSessions{byID: map[string]models.Session{}}
	profiles := &memProfiles{byID: map[string]models.Profile{}}

	h := NewHandlerSet(log, cfg, Dependencies{
		Auth:     service.NewAuthService(users, sessions, nil, bus, cfg.Security, log),
		Profiles: service.NewProfileService(profiles, bus, log),
		Events:   bus,
		Checks:   checks,
	})

	engine := gin.New()
	engine.Use(middleware.RequestID(), middleware.Recovery(log))
	h.Register(engine)
	return &testAPI{engine: engine, hub: bus, profiles: profiles, sessions: sessions}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", testAnonKey)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func TestFailMapsErrors(t *testing.T) {
	h := HandlerSet{log: zerolog.Nop()}
	tests := []struct {
		err     error
		status  int
		code    string
		message string
	}{
		{service.ErrInvalidCredentials, http.StatusBadRequest, "invalid_grant", "invalid login credentials"},
		{fmt.Errorf("insert: %w", repository.ErrProfileExists), http.StatusConflict, "conflict", `duplicate key value violates unique constraint "profiles_pkey"`},
		{repository.ErrEmailTaken, http.StatusUnprocessableEntity, "user_already_exists", "User already registered"},
		{service.ErrForbidden, http.StatusForbidden, "forbidden", service.ErrForbidden.Error()},
		{&service.ValidationError{Err: errors.New("year out of range")}, http.StatusBadRequest, "validation_failed", ""},
		{errors.New("connection reset"), http.StatusInternalServerError, "internal_error", "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			h.fail(c, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			body := decode[errorBody](t, rec)
			assert.Equal(t, tt.code, body.Error)
			if tt.message != "" {
				assert.Equal(t, tt.message, body.Message)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("down") }

	api := newTestAPI(map[string]HealthCheck{"database": ok, "cache": ok})
	rec := api.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[healthResponse](t, rec).Status)

	api = newTestAPI(map[string]HealthCheck{"database": ok, "cache": down})
	rec = api.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode[healthResponse](t, rec)
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, map[string]string{"database": "ok", "cache": "error"}, body.Checks)
}

func TestAPIKeyRequired(t *testing.T) {
	api := newTestAPI(nil)
	req := httptest.NewRequest(http.MethodPost, "/auth/v1/token?grant_type=password", nil)
	rec := httptest.NewRecorder()
	api.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_api_key", decode[errorBody](t, rec).Error)
}

func TestAuthAndProfileFlow(t *testing.T) {
	api := newTestAPI(nil)

	rec := api.do(t, http.MethodPost, "/auth/v1/signup", "", map[string]any{
		"email": "Ana@Example.com", "password": "secret123", "data": map[string]any{"name": "Ana"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	signup := decode[models.AuthResponse](t, rec)
	require.NotNil(t, signup.User)
	assert.Equal(t, "ana@example.com", signup.User.Email)

	rec = api.do(t, http.MethodPost, "/auth/v1/signup", "", map[string]any{"email": "ana@example.com", "password": "secret123"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = api.do(t, http.MethodPost, "/auth/v1/token?grant_type=password", "", map[string]any{"email": "ana@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_grant", decode[errorBody](t, rec).Error)

	rec = api.do(t, http.MethodPost, "/auth/v1/token?grant_type=password", "", map[string]any{"email": "ana@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	token := decode[models.AuthResponse](t, rec).Session.AccessToken
	userID := signup.User.ID

	rec = api.do(t, http.MethodGet, "/rest/v1/profiles/"+userID, token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodPost, "/rest/v1/profiles", token, map[string]any{"name": "Ana"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[models.Profile](t, rec)
	assert.Equal(t, userID, created.ID)
	assert.Equal(t, "ana@example.com", created.Email)

	rec = api.do(t, http.MethodPost, "/rest/v1/profiles", token, map[string]any{"name": "Ana"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPatch, "/rest/v1/profiles/"+userID, token, map[string]any{"name": "Ana Souza", "email": "evil@example.com", "role": "admin"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[models.Profile](t, rec)
	assert.Equal(t, "Ana Souza", updated.Name)
	assert.Equal(t, "ana@example.com", updated.Email)

	rec = api.do(t, http.MethodGet, "/rest/v1/profiles/someone-else", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(t, http.MethodGet, "/auth/v1/sessions", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sessions := decode[[]models.DeviceSession](t, rec)
	require.Len(t, sessions, 2)

	rec = api.do(t, http.MethodPost, "/auth/v1/logout?scope=sideways", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/auth/v1/logout?scope=local", token, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, "/auth/v1/user", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Len(t, api.sessions.forUser(userID), 1)
}

func TestRefreshTokenIsSingleUse(t *testing.T) {
	api := newTestAPI(nil)
	rec := api.do(t, http.MethodPost, "/auth/v1/signup", "", map[string]any{"email": "ana@example.com", "password": "secret123"})
	require.Equal(t, http.StatusOK, rec.Code)
	refresh := decode[models.AuthResponse](t, rec).Session.RefreshToken

	rec = api.do(t, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", map[string]any{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotEqual(t, refresh, decode[models.AuthResponse](t, rec).Session.RefreshToken)

	rec = api.do(t, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", map[string]any{"refresh_token": refresh})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodPost, "/auth/v1/token?grant_type=magic", "", nil)
	assert.Equal(t, "unsupported_grant_type", decode[errorBody](t, rec).Error)
}

func TestSessionManagerAgainstServer(t *testing.T) {
	api := newTestAPI(nil)
	srv := httptest.NewServer(api.engine)
	defer srv.Close()
	ctx := context.Background()

	start := func(c *client.Client) *session.Manager {
		m := session.New(c.Auth, c.Profiles, zerolog.Nop())
		require.NoError(t, m.Start(ctx))
		return m
	}

	first := client.New(srv.URL, testAnonKey)
	defer first.Close()
	firstMgr := start(first)
	defer firstMgr.Close()

	require.NoError(t, firstMgr.Register(ctx, "Ana", "ana@example.com", "secret123"))
	require.NotNil(t, firstMgr.Profile())
	assert.Equal(t, "Ana", firstMgr.Profile().Name)
	userID := firstMgr.Profile().ID
	assert.Never(t, func() bool { return firstMgr.Profile() == nil }, 200*time.Millisecond, 10*time.Millisecond)

	name := "Ana Souza"
	require.True(t, firstMgr.UpdateUser(ctx, models.ProfileUpdate{Name: &name}))
	assert.Equal(t, "Ana Souza", firstMgr.Profile().Name)

	second := client.New(srv.URL, testAnonKey)
	defer second.Close()
	secondMgr := start(second)
	defer secondMgr.Close()

	require.True(t, secondMgr.Login(ctx, "ana@example.com", "secret123"))
	assert.Equal(t, "Ana Souza", secondMgr.Profile().Name)
	assert.Never(t, func() bool { return secondMgr.Profile() == nil }, 200*time.Millisecond, 10*time.Millisecond)

	// Both devices hold an open event stream before the global sign-out.
	require.Eventually(t, func() bool { return api.hub.subscribers(userID) >= 2 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, firstMgr.Logout(ctx))

	assert.Nil(t, firstMgr.Profile())
	assert.Eventually(t, func() bool { return secondMgr.Profile() == nil }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, secondMgr.Login(ctx, "ana@example.com", "wrong-pass"))
}
