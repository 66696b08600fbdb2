package identity

import (
	"context"
	"errors"
)

// Principal is an authenticated identity-provider user.
type Principal struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
}

// Sentinel errors the provider adapters normalize to. Callers translate
// these into user-facing messages, nothing here is retried automatically.
var (
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrAccountNotFound    = errors.New("identity: account not found")
	ErrAccountExists      = errors.New("identity: account already exists")
	ErrWeakCredential     = errors.New("identity: credential too weak")
	ErrPopupCancelled     = errors.New("identity: popup cancelled by user")
	ErrPopupBlocked       = errors.New("identity: popup blocked")
	ErrRateLimited        = errors.New("identity: rate limited")
	ErrNetworkUnavailable = errors.New("identity: network unavailable")
)

// Provider is the identity backend consumed as a black box. It owns session
// issuance and teardown; the rest of the application only observes it.
type Provider interface {
	// OnSessionChange registers a callback invoked on every session
	// transition, including once at startup with the restored session or
	// nil. Deliveries are serialized, at most one current value at a time.
	OnSessionChange(fn func(*Principal)) (unsubscribe func())

	SignInWithPassword(ctx context.Context, email, password string) (*Principal, error)
	SignInWithOAuthPopup(ctx context.Context) (*Principal, error)
	CreateAccount(ctx context.Context, email, password string) (*Principal, error)
	SendPasswordReset(ctx context.Context, email string) error
	SignOut(ctx context.Context) error

	// DeletePrincipal removes a just-created identity. Used only to roll
	// back an OAuth sign-in when backend registration is disabled.
	DeletePrincipal(ctx context.Context, uid string) error
}
