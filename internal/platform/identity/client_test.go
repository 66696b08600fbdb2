package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-key", time.Second)
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"code": code},
	})
}

func TestSignInWithPasswordDispatchesSessionEvent(t *testing.T) {
	c := identityServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/sessions", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "rahim@example.com", body["email"])

		json.NewEncoder(w).Encode(Principal{UID: "u1", DisplayName: "Rahim", Email: body["email"]})
	})

	var events []*Principal
	c.OnSessionChange(func(p *Principal) { events = append(events, p) })

	p, err := c.SignInWithPassword(context.Background(), "rahim@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.UID)

	require.Len(t, events, 1)
	assert.Equal(t, "u1", events[0].UID)
}

func TestSignInErrorsMapToSentinels(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
		want   error
	}{
		{"provider code wins", http.StatusBadRequest, "INVALID_PASSWORD", ErrInvalidCredentials},
		{"unknown email", http.StatusBadRequest, "EMAIL_NOT_FOUND", ErrAccountNotFound},
		{"duplicate account", http.StatusBadRequest, "EMAIL_EXISTS", ErrAccountExists},
		{"weak password", http.StatusBadRequest, "WEAK_PASSWORD", ErrWeakCredential},
		{"throttled", http.StatusBadRequest, "TOO_MANY_ATTEMPTS", ErrRateLimited},
		{"status fallback 401", http.StatusUnauthorized, "", ErrInvalidCredentials},
		{"status fallback 404", http.StatusNotFound, "", ErrAccountNotFound},
		{"status fallback 409", http.StatusConflict, "", ErrAccountExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := identityServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeError(w, tt.status, tt.code)
			})
			_, err := c.SignInWithPassword(context.Background(), "a@b.c", "pw")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSignInFailureDoesNotDispatch(t *testing.T) {
	c := identityServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnauthorized, "INVALID_PASSWORD")
	})

	calls := 0
	c.OnSessionChange(func(*Principal) { calls++ })

	_, err := c.SignInWithPassword(context.Background(), "a@b.c", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Zero(t, calls)
}

func TestStartRestoresPersistedSession(t *testing.T) {
	c := identityServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/sessions/current", r.URL.Path)
		json.NewEncoder(w).Encode(Principal{UID: "u1", Email: "rahim@example.com"})
	})

	var events []*Principal
	c.OnSessionChange(func(p *Principal) { events = append(events, p) })

	require.NoError(t, c.Start(context.Background()))
	require.Len(t, events, 1)
	assert.Equal(t, "u1", events[0].UID)
}

func TestStartWithoutSessionDispatchesSignedOut(t *testing.T) {
	c := identityServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "ACCOUNT_NOT_FOUND")
	})

	var events []*Principal
	c.OnSessionChange(func(p *Principal) { events = append(events, p) })

	require.NoError(t, c.Start(context.Background()))
	require.Len(t, events, 1)
	assert.Nil(t, events[0])
}

func TestStartOfflineStartsSignedOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	c := NewClient(srv.URL, "", time.Second)

	var events []*Principal
	c.OnSessionChange(func(p *Principal) { events = append(events, p) })

	require.NoError(t, c.Start(context.Background()))
	require.Len(t, events, 1)
	assert.Nil(t, events[0])
}

func TestSignOutSucceedsWhenOffline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	c := NewClient(srv.URL, "", time.Second)

	var events []*Principal
	c.OnSessionChange(func(p *Principal) { events = append(events, p) })

	// Local teardown completes, so the sign-out is a success even though
	// the service never saw the DELETE.
	require.NoError(t, c.SignOut(context.Background()))
	require.Len(t, events, 1)
	assert.Nil(t, events[0])
}

func TestDispatchSerializesConcurrentSignIns(t *testing.T) {
	c := identityServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Principal{UID: "u1"})
	})

	// A slow listener must never observe a second delivery starting
	// before the current one finishes.
	var depth, maxDepth int32
	c.OnSessionChange(func(*Principal) {
		d := atomic.AddInt32(&depth, 1)
		for {
			m := atomic.LoadInt32(&maxDepth)
			if d <= m || atomic.CompareAndSwapInt32(&maxDepth, m, d) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&depth, -1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.SignInWithPassword(context.Background(), "a@b.c", "pw")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxDepth))
}

func TestFakeProviderSerializesDispatch(t *testing.T) {
	f := NewFakeProvider()

	var depth, maxDepth int32
	f.OnSessionChange(func(*Principal) {
		d := atomic.AddInt32(&depth, 1)
		for {
			m := atomic.LoadInt32(&maxDepth)
			if d <= m || atomic.CompareAndSwapInt32(&maxDepth, m, d) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		atomic.AddInt32(&depth, -1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.EmitSession(&Principal{UID: "u1"})
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxDepth))
}

func TestSendPasswordReset(t *testing.T) {
	var gotEmail string
	c := identityServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/password-resets", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotEmail = body["email"]
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.SendPasswordReset(context.Background(), "rahim@example.com"))
	assert.Equal(t, "rahim@example.com", gotEmail)
}

func TestDeletePrincipalSignsOutCurrentSession(t *testing.T) {
	c := identityServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/sessions":
			json.NewEncoder(w).Encode(Principal{UID: "u1"})
		case "/v1/accounts/u1":
			assert.Equal(t, http.MethodDelete, r.Method)
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	var events []*Principal
	c.OnSessionChange(func(p *Principal) { events = append(events, p) })

	_, err := c.SignInWithPassword(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	require.NoError(t, c.DeletePrincipal(context.Background(), "u1"))

	// Sign-in event followed by the signed-out event from the deletion.
	require.Len(t, events, 2)
	assert.Nil(t, events[1])
}
