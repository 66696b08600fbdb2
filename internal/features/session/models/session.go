package models

import "backbencher-auth-gateway/internal/platform/identity"

// Session is the live authenticated identity. It carries only what the
// identity provider asserts; everything else lives on the Profile.
type Session struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName,omitempty"`
	Email       string `json:"email,omitempty"`
}

// FromPrincipal converts a provider principal, nil stays nil.
func FromPrincipal(p *identity.Principal) *Session {
	if p == nil {
		return nil
	}
	return &Session{UID: p.UID, DisplayName: p.DisplayName, Email: p.Email}
}
