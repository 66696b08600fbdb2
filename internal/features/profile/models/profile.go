package models

import "time"

// Roles recognized by the platform. Route gating compares these with exact
// string equality, there is no hierarchy between them.
const (
	RoleUser    = "user"
	RoleAdmin   = "admin"
	RoleMentor  = "mentor"
	RoleStudent = "student"
)

// DefaultRole is assigned server-side when a profile is created and used
// locally when no fresher information is available.
const DefaultRole = RoleUser

// Profile is the backend's durable record for an authenticated user. Field
// names mirror the user service's JSON payloads.
type Profile struct {
	UID          string     `json:"uid"`
	Name         string     `json:"name,omitempty"`
	Email        string     `json:"email,omitempty"`
	Age          *int       `json:"age,omitempty"`
	Role         string     `json:"role"`
	ProfileImage string     `json:"profileimage,omitempty"`
	CoverPhoto   string     `json:"coverphoto,omitempty"`
	CreatedAt    *time.Time `json:"createdat,omitempty"`
	UpdatedAt    *time.Time `json:"updatedat,omitempty"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
}

// DefaultProfile is the degraded fallback when neither the network nor the
// cache can produce a profile. Role stays conservative.
func DefaultProfile(uid string) *Profile {
	return &Profile{UID: uid, Role: DefaultRole}
}

// Snapshot is a locally cached copy of a Profile plus the time it was
// fetched. Snapshots older than the configured staleness window trigger a
// forced refresh instead of being served.
type Snapshot struct {
	Profile  Profile   `json:"profile"`
	Role     string    `json:"role"`
	SyncedAt time.Time `json:"synced_at"`
}

// Stale reports whether the snapshot is older than staleAfter at now.
func (s *Snapshot) Stale(now time.Time, staleAfter time.Duration) bool {
	return now.Sub(s.SyncedAt) >= staleAfter
}

// NewUser is the creation payload for POST /users. Role is intentionally
// absent, the backend assigns the default.
type NewUser struct {
	UID       string     `json:"uid"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Age       *int       `json:"age"`
	LastLogin *time.Time `json:"lastLogin,omitempty"`
}
