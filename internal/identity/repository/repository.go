// Package repository defines the identity repository interface and its Postgres implementation.
package repository

import (
	"context"

	"medianest/backend/internal/identity/domain"
)

// Repository is the identity store. Get methods return (nil, nil) when the
// identity does not exist; errors are reserved for store failures.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Identity, error)
	GetByUsername(ctx context.Context, username string) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
	Create(ctx context.Context, i *domain.Identity) error
	// UpdateProfile refreshes the mutable profile fields (username, email,
	// display name, raw profile) of an existing identity. Role and Disabled
	// are not touched.
	UpdateProfile(ctx context.Context, i *domain.Identity) error
	// SetDisabled flips the disabled flag; disabled identities fail session
	// validation immediately.
	SetDisabled(ctx context.Context, id string, disabled bool) error
}
