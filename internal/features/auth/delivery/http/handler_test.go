package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backbencher-auth-gateway/internal/common/middleware"
	authservice "backbencher-auth-gateway/internal/features/auth/service"
	"backbencher-auth-gateway/internal/features/gate"
	profilemodels "backbencher-auth-gateway/internal/features/profile/models"
	"backbencher-auth-gateway/internal/features/profile/repository/memory"
	profileservice "backbencher-auth-gateway/internal/features/profile/service"
	sessionservice "backbencher-auth-gateway/internal/features/session/service"
	"backbencher-auth-gateway/internal/platform/backendapi"
	"backbencher-auth-gateway/internal/platform/identity"
)

// stackBackend is the in-memory stand-in for the user/site-settings service,
// shared by the auth flows and the profile synchronizer.
type stackBackend struct {
	profiles           map[string]profilemodels.Profile
	allowRegistrations bool
}

func (b *stackBackend) GetUser(ctx context.Context, uid string) (*profilemodels.Profile, error) {
	p, ok := b.profiles[uid]
	if !ok {
		return nil, backendapi.ErrUserNotFound
	}
	return &p, nil
}

func (b *stackBackend) CreateUser(ctx context.Context, user profilemodels.NewUser) (*profilemodels.Profile, error) {
	p := profilemodels.Profile{UID: user.UID, Name: user.Name, Email: user.Email, Age: user.Age, Role: profilemodels.DefaultRole}
	b.profiles[user.UID] = p
	return &p, nil
}

func (b *stackBackend) UpdateLastLogin(ctx context.Context, uid string, at time.Time) error {
	return nil
}

func (b *stackBackend) RegistrationsAllowed(ctx context.Context) bool {
	return b.allowRegistrations
}

func newTestRouter(t *testing.T) (*gin.Engine, *identity.FakeProvider, *stackBackend) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	provider := identity.NewFakeProvider()
	backend := &stackBackend{profiles: make(map[string]profilemodels.Profile), allowRegistrations: true}
	profiles := profileservice.NewService(backend, memory.NewSnapshotStore(), time.Hour)
	store := sessionservice.NewStore()
	sessions := sessionservice.NewService(provider, store, profiles)
	t.Cleanup(sessions.Close)
	auth := authservice.NewService(sessions, provider, backend, profiles)

	limiter := middleware.NewRateLimiter(600, 100)
	t.Cleanup(limiter.Stop)

	router := gin.New()
	handler := NewAuthHandler(auth, store, profiles, gate.New("", ""), limiter)
	handler.RegisterRoutes(router.Group("/api/v1"))
	return router, provider, backend
}

func postJSON(router *gin.Engine, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestLoginEndpoint(t *testing.T) {
	router, provider, backend := newTestRouter(t)
	provider.AddAccount("u1", "rahim@example.com", "secret123", "Rahim")
	backend.profiles["u1"] = profilemodels.Profile{UID: "u1", Name: "Rahim", Role: "admin"}

	w := postJSON(router, "/api/v1/auth/login", `{"email":"rahim@example.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"admin"`)
	assert.Contains(t, w.Body.String(), `"uid":"u1"`)
}

func TestLoginEndpointWrongPassword(t *testing.T) {
	router, provider, _ := newTestRouter(t)
	provider.AddAccount("u1", "rahim@example.com", "secret123", "Rahim")

	w := postJSON(router, "/api/v1/auth/login", `{"email":"rahim@example.com","password":"wrong"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_CREDENTIALS")
}

func TestLoginEndpointRejectsMalformedPayload(t *testing.T) {
	router, _, _ := newTestRouter(t)

	w := postJSON(router, "/api/v1/auth/login", `{"email":"not-an-email"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "VALIDATION_ERROR")
}

func TestRegisterEndpointCreatesProfile(t *testing.T) {
	router, _, backend := newTestRouter(t)

	w := postJSON(router, "/api/v1/auth/register", `{"name":"Nila","email":"nila@example.com","password":"secret123","age":21}`)
	require.Equal(t, http.StatusCreated, w.Code)

	created, ok := backend.profiles["uid-nila@example.com"]
	require.True(t, ok)
	assert.Equal(t, "Nila", created.Name)
}

func TestRegisterEndpointDisabled(t *testing.T) {
	router, _, backend := newTestRouter(t)
	backend.allowRegistrations = false

	w := postJSON(router, "/api/v1/auth/register", `{"name":"Nila","email":"nila@example.com","password":"secret123"}`)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "REGISTRATIONS_DISABLED")
}

func TestSessionEndpointReportsResolvingThenSession(t *testing.T) {
	router, provider, backend := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"resolving":true`)

	provider.AddAccount("u1", "rahim@example.com", "secret123", "Rahim")
	backend.profiles["u1"] = profilemodels.Profile{UID: "u1", Role: "user"}
	postJSON(router, "/api/v1/auth/login", `{"email":"rahim@example.com","password":"secret123"}`)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil))
	assert.Contains(t, w.Body.String(), `"resolving":false`)
	assert.Contains(t, w.Body.String(), `"uid":"u1"`)
}

func TestMeEndpointRedirectsWhenSignedOut(t *testing.T) {
	router, provider, _ := newTestRouter(t)
	provider.EmitSession(nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/auth/login", w.Header().Get("Location"))
}

func TestMeEndpointReturnsProfile(t *testing.T) {
	router, provider, backend := newTestRouter(t)
	provider.AddAccount("u1", "rahim@example.com", "secret123", "Rahim")
	backend.profiles["u1"] = profilemodels.Profile{UID: "u1", Name: "Rahim", Role: "mentor"}
	postJSON(router, "/api/v1/auth/login", `{"email":"rahim@example.com","password":"secret123"}`)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"mentor"`)
}

func TestLogoutEndpointClearsSession(t *testing.T) {
	router, provider, backend := newTestRouter(t)
	provider.AddAccount("u1", "rahim@example.com", "secret123", "Rahim")
	backend.profiles["u1"] = profilemodels.Profile{UID: "u1", Role: "user"}
	postJSON(router, "/api/v1/auth/login", `{"email":"rahim@example.com","password":"secret123"}`)

	w := postJSON(router, "/api/v1/auth/logout", "")
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/auth/session", nil))
	assert.Contains(t, w.Body.String(), `"session":null`)
}

func TestCredentialEndpointsAreRateLimited(t *testing.T) {
	gin.SetMode(gin.TestMode)

	provider := identity.NewFakeProvider()
	backend := &stackBackend{profiles: make(map[string]profilemodels.Profile), allowRegistrations: true}
	profiles := profileservice.NewService(backend, memory.NewSnapshotStore(), time.Hour)
	store := sessionservice.NewStore()
	sessions := sessionservice.NewService(provider, store, profiles)
	defer sessions.Close()
	auth := authservice.NewService(sessions, provider, backend, profiles)

	limiter := middleware.NewRateLimiter(10, 2)
	defer limiter.Stop()

	router := gin.New()
	NewAuthHandler(auth, store, profiles, gate.New("", ""), limiter).RegisterRoutes(router.Group("/api/v1"))

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = postJSON(router, "/api/v1/auth/login", `{"email":"rahim@example.com","password":"secret123"}`)
	}
	require.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Contains(t, last.Body.String(), "RATE_LIMITED")
}
