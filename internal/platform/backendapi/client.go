package backendapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"backbencher-auth-gateway/internal/features/profile/models"
)

var (
	// ErrUserNotFound maps the user service's 404 for an unknown uid.
	ErrUserNotFound = errors.New("backendapi: user not found")
	// ErrUnavailable covers connection failures and 5xx responses.
	ErrUnavailable = errors.New("backendapi: service unavailable")
)

// Client consumes the platform's user and site-settings REST services.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// envelope is the backend's uniform response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
	}
}

// GetUser fetches the profile record for uid.
func (c *Client) GetUser(ctx context.Context, uid string) (*models.Profile, error) {
	data, err := c.do(ctx, http.MethodGet, "/users/"+uid, nil)
	if err != nil {
		return nil, err
	}

	var p models.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", uid, err)
	}
	return &p, nil
}

// CreateUser registers a new profile. The backend assigns the default role.
func (c *Client) CreateUser(ctx context.Context, user models.NewUser) (*models.Profile, error) {
	data, err := c.do(ctx, http.MethodPost, "/users", user)
	if err != nil {
		return nil, err
	}

	var p models.Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode created user: %w", err)
	}
	return &p, nil
}

// UpdateLastLogin records a successful sign-in. Best effort from callers'
// perspective, failures here never block a login.
func (c *Client) UpdateLastLogin(ctx context.Context, uid string, at time.Time) error {
	body := map[string]string{"lastLogin": at.UTC().Format(time.RFC3339)}
	_, err := c.do(ctx, http.MethodPatch, "/users/"+uid+"/last-login", body)
	return err
}

type siteStatus struct {
	AllowRegistrations *bool `json:"allow_registrations"`
}

// RegistrationsAllowed consults the site settings. When the backend cannot
// answer, registration degrades open, matching the site's behavior.
func (c *Client) RegistrationsAllowed(ctx context.Context) bool {
	data, err := c.do(ctx, http.MethodGet, "/site-settings/status", nil)
	if err != nil {
		return true
	}

	var status siteStatus
	if err := json.Unmarshal(data, &status); err != nil || status.AllowRegistrations == nil {
		return true
	}
	return *status.AllowRegistrations
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ErrUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrUserNotFound
	case resp.StatusCode >= 500:
		return nil, ErrUnavailable
	case resp.StatusCode >= 400:
		var env envelope
		_ = json.NewDecoder(resp.Body).Decode(&env)
		if env.Message != "" {
			return nil, fmt.Errorf("backendapi: %s", env.Message)
		}
		return nil, fmt.Errorf("backendapi: unexpected status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return env.Data, nil
}
