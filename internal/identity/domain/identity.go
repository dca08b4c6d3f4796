package domain

import (
	"errors"
	"time"
)

// Identity is a resolved user of the portal: either a profile linked from the
// external media-server provider, or a local account with a password.
type Identity struct {
	ID string
	// ExternalID is the provider's user id; empty for local-only accounts.
	// At most one Identity exists per ExternalID; repeated logins update the
	// existing record instead of creating a new one.
	ExternalID   string
	Username     string
	Email        string
	DisplayName  string
	Role         Role
	PasswordHash string // local credential; empty for provider-linked accounts
	Disabled     bool
	// RawProfile is the provider profile blob as returned at link time, kept
	// verbatim for later display without re-fetching.
	RawProfile string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Role is the identity's portal role.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Validate validates the identity for persistence. Returns an error describing the first validation failure.
func (i *Identity) Validate() error {
	if i.Username == "" {
		return errors.New("username is required")
	}
	if i.ExternalID == "" && i.PasswordHash == "" {
		return errors.New("identity needs an external link or a local credential")
	}
	if i.Role == "" {
		i.Role = RoleUser
	}
	if i.Role != RoleUser && i.Role != RoleAdmin {
		return errors.New("invalid role")
	}
	return nil
}
