package domain

import (
	"errors"
	"time"
)

// ErrAlreadyExpired is returned when an attempt is written with a deadline
// in the past.
var ErrAlreadyExpired = errors.New("pin session already expired")

// Status is the lifecycle state of a link attempt.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAuthorized Status = "authorized"
	StatusConsumed   Status = "consumed"
	StatusExpired    Status = "expired"
)

var validStatus = map[Status]bool{
	StatusPending:    true,
	StatusAuthorized: true,
	StatusConsumed:   true,
	StatusExpired:    true,
}

// PinSession tracks a single account-link attempt from creation until it is
// consumed or expires. The provider auth token is held server-side only and
// never leaves this record.
type PinSession struct {
	ID            string
	ProviderPinID int64
	Code          string
	Status        Status
	AuthToken     string
	IdentityID    string
	SessionID     string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	NextCheckAt   time.Time
	CheckInterval time.Duration
}

func (p *PinSession) Validate() error {
	if p.ID == "" {
		return errors.New("pin session id is required")
	}
	if p.Code == "" {
		return errors.New("pin code is required")
	}
	if !validStatus[p.Status] {
		return errors.New("invalid pin session status")
	}
	if !p.ExpiresAt.After(p.CreatedAt) {
		return errors.New("pin session must expire after creation")
	}
	return nil
}

// Expired reports whether the session's deadline has passed. The backing
// store's key TTL remains the final authority; this only covers records read
// shortly before eviction.
func (p *PinSession) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}
