package domain

import "time"

// Session is a server-issued credential bound to one identity and one device.
// The signed token handed to the client only points at this record: deleting
// the record revokes the session regardless of the token's expiry.
type Session struct {
	ID                string
	IdentityID        string
	Role              string
	DeviceFingerprint string
	IssuedAt          time.Time
	ExpiresAt         time.Time
	LastSeenAt        *time.Time
	IPAddress         string
}

// Expired reports whether the session has passed its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// RememberToken is the stored half of a long-lived re-authentication
// credential. Only the SHA-256 hash of the raw token is ever persisted; each
// successful use rotates the token, so a leaked value is good for one use at
// most.
type RememberToken struct {
	TokenHash  string
	IdentityID string
	ExpiresAt  time.Time
	LastUsedAt *time.Time
	CreatedAt  time.Time
}
