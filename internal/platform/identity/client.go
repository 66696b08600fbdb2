package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"backbencher-auth-gateway/internal/common/logger"
)

// Client talks to the hosted identity service over its REST surface and
// fans session transitions out to registered listeners.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string

	// dispatchMu is held across the whole listener loop so session events
	// are delivered one at a time, in order, even when operations that
	// trigger them run concurrently.
	dispatchMu sync.Mutex

	mu        sync.Mutex
	listeners map[int]func(*Principal)
	nextID    int
	current   *Principal
	started   bool
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		listeners:  make(map[int]func(*Principal)),
	}
}

// Start restores any persisted session and delivers the initial session
// event. Listeners registered before Start see exactly one startup value.
func (c *Client) Start(ctx context.Context) error {
	var p Principal
	err := c.do(ctx, http.MethodGet, "/v1/sessions/current", nil, &p)
	switch {
	case err == nil:
		c.dispatch(&p)
	case err == ErrAccountNotFound || err == ErrInvalidCredentials:
		c.dispatch(nil)
	case err == ErrNetworkUnavailable:
		// No session can be restored while offline, start signed out.
		logger.Warn().Msg("identity service unreachable on startup, starting signed out")
		c.dispatch(nil)
	default:
		return err
	}
	c.mu.Lock()
	c.started = true
	c.mu.Unlock()
	return nil
}

func (c *Client) OnSessionChange(fn func(*Principal)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Principal, error) {
	body := map[string]string{"email": email, "password": password}
	var p Principal
	if err := c.do(ctx, http.MethodPost, "/v1/sessions", body, &p); err != nil {
		return nil, err
	}
	c.dispatch(&p)
	return &p, nil
}

func (c *Client) SignInWithOAuthPopup(ctx context.Context) (*Principal, error) {
	var p Principal
	if err := c.do(ctx, http.MethodPost, "/v1/oauth/sessions", map[string]string{"provider": "google"}, &p); err != nil {
		return nil, err
	}
	c.dispatch(&p)
	return &p, nil
}

func (c *Client) CreateAccount(ctx context.Context, email, password string) (*Principal, error) {
	body := map[string]string{"email": email, "password": password}
	var p Principal
	if err := c.do(ctx, http.MethodPost, "/v1/accounts", body, &p); err != nil {
		return nil, err
	}
	c.dispatch(&p)
	return &p, nil
}

func (c *Client) SendPasswordReset(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/v1/password-resets", map[string]string{"email": email}, nil)
}

func (c *Client) SignOut(ctx context.Context) error {
	err := c.do(ctx, http.MethodDelete, "/v1/sessions/current", nil, nil)
	if err != nil && err != ErrNetworkUnavailable {
		return err
	}
	if err == ErrNetworkUnavailable {
		logger.Warn().Msg("identity service unreachable on sign-out, clearing local session anyway")
	}
	// The local session is gone either way; an unreachable service only
	// delays the server-side teardown, it does not fail the sign-out.
	c.dispatch(nil)
	return nil
}

func (c *Client) DeletePrincipal(ctx context.Context, uid string) error {
	if err := c.do(ctx, http.MethodDelete, "/v1/accounts/"+uid, nil, nil); err != nil {
		return err
	}
	c.mu.Lock()
	deleted := c.current != nil && c.current.UID == uid
	c.mu.Unlock()
	if deleted {
		c.dispatch(nil)
	}
	return nil
}

// dispatch records the new current session and notifies listeners. The
// dispatch mutex stays held while listeners run, so a delivery completes
// before the next one starts. Listeners must not call back into the
// provider.
func (c *Client) dispatch(p *Principal) {
	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()

	c.mu.Lock()
	c.current = p
	fns := make([]func(*Principal), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ErrNetworkUnavailable
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			return nil
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}

	var envelope errorEnvelope
	_ = json.NewDecoder(resp.Body).Decode(&envelope)
	return mapProviderError(resp.StatusCode, envelope.Error.Code)
}

// mapProviderError normalizes the provider's error codes to sentinels.
func mapProviderError(status int, code string) error {
	switch code {
	case "INVALID_CREDENTIALS", "INVALID_PASSWORD":
		return ErrInvalidCredentials
	case "ACCOUNT_NOT_FOUND", "EMAIL_NOT_FOUND":
		return ErrAccountNotFound
	case "ACCOUNT_EXISTS", "EMAIL_EXISTS":
		return ErrAccountExists
	case "WEAK_PASSWORD":
		return ErrWeakCredential
	case "POPUP_CLOSED_BY_USER":
		return ErrPopupCancelled
	case "POPUP_BLOCKED":
		return ErrPopupBlocked
	case "TOO_MANY_ATTEMPTS":
		return ErrRateLimited
	}

	switch status {
	case http.StatusUnauthorized:
		return ErrInvalidCredentials
	case http.StatusNotFound:
		return ErrAccountNotFound
	case http.StatusConflict:
		return ErrAccountExists
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return fmt.Errorf("identity: unexpected status %d (code %q)", status, code)
}
