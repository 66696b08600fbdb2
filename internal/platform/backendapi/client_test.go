package backendapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backbencher-auth-gateway/internal/features/profile/models"
)

func TestGetUserDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/users/u1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":{"uid":"u1","name":"Rahim","email":"rahim@example.com","age":24,"role":"mentor"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	p, err := c.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UID)
	assert.Equal(t, "Rahim", p.Name)
	assert.Equal(t, "mentor", p.Role)
	require.NotNil(t, p.Age)
	assert.Equal(t, 24, *p.Age)
}

func TestGetUserNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGetUserServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.GetUser(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestGetUserConnectionRefusedIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.GetUser(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCreateUserSendsPayload(t *testing.T) {
	var got models.NewUser
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/users", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"success":true,"data":{"uid":"u1","name":"Nila","email":"nila@example.com","role":"user"}}`))
	}))
	defer srv.Close()

	age := 21
	c := NewClient(srv.URL, time.Second)
	p, err := c.CreateUser(context.Background(), models.NewUser{
		UID:   "u1",
		Name:  "Nila",
		Email: "nila@example.com",
		Age:   &age,
	})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultRole, p.Role)
	assert.Equal(t, "u1", got.UID)
	require.NotNil(t, got.Age)
	assert.Equal(t, 21, *got.Age)
}

func TestUpdateLastLoginPatchesRFC3339(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/users/u1/last-login", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	at := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	c := NewClient(srv.URL, time.Second)
	require.NoError(t, c.UpdateLastLogin(context.Background(), "u1", at))
	assert.Equal(t, "2025-03-14T09:30:00Z", body["lastLogin"])
}

func TestRegistrationsAllowedReadsFlag(t *testing.T) {
	for _, allowed := range []bool{true, false} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/site-settings/status", r.URL.Path)
			resp := map[string]interface{}{
				"success": true,
				"data":    map[string]bool{"allow_registrations": allowed},
			}
			json.NewEncoder(w).Encode(resp)
		}))

		c := NewClient(srv.URL, time.Second)
		assert.Equal(t, allowed, c.RegistrationsAllowed(context.Background()))
		srv.Close()
	}
}

func TestRegistrationsAllowedDegradesOpen(t *testing.T) {
	// Unreachable settings service must not lock new users out.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	assert.True(t, c.RegistrationsAllowed(context.Background()))

	// Same when the flag is simply absent from the payload.
	srv2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"data":{}}`))
	}))
	defer srv2.Close()

	c2 := NewClient(srv2.URL, time.Second)
	assert.True(t, c2.RegistrationsAllowed(context.Background()))
}
