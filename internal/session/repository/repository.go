// Package repository defines the session and remember-token stores and their
// Postgres implementations.
package repository

import (
	"context"
	"time"

	"medianest/backend/internal/session/domain"
)

// Repository is the session store. GetByID returns (nil, nil) when the
// session does not exist; errors are reserved for store failures.
// Revocation is a hard delete: a deleted session fails validation on the very
// next request, regardless of the token's remaining lifetime.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	UpdateLastSeen(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteAllByIdentity(ctx context.Context, identityID string) error
}

// RememberTokenRepository stores remember-token hashes.
type RememberTokenRepository interface {
	Create(ctx context.Context, t *domain.RememberToken) error
	// Claim atomically removes the unexpired token with the given hash and
	// returns it. Exactly one of any number of concurrent Claim calls for the
	// same hash succeeds; the rest get (nil, nil). This is the primitive that
	// makes remember-token rotation race-safe.
	Claim(ctx context.Context, tokenHash string) (*domain.RememberToken, error)
	DeleteAllByIdentity(ctx context.Context, identityID string) error
}
