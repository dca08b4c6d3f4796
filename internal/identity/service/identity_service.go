// Package service implements local credential auth: password login for
// accounts provisioned by an admin, and admin-only registration. Provider
// account linking lives in the pin service; both paths converge on the same
// identity records.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"medianest/backend/internal/apperr"
	"medianest/backend/internal/audit"
	"medianest/backend/internal/identity/domain"
	"medianest/backend/internal/identity/repository"
	"medianest/backend/internal/security"
)

const minPasswordLength = 8

type IdentityService struct {
	identities repository.Repository
	hasher     *security.Hasher
	auditor    audit.AuditLogger

	nowF func() time.Time
}

func NewIdentityService(identities repository.Repository, hasher *security.Hasher, auditor audit.AuditLogger) *IdentityService {
	if auditor == nil {
		auditor = audit.Nop{}
	}
	return &IdentityService{
		identities: identities,
		hasher:     hasher,
		auditor:    auditor,
		nowF:       time.Now,
	}
}

// SetNow overrides the clock in tests.
func (s *IdentityService) SetNow(f func() time.Time) { s.nowF = f }

// Login verifies local credentials. All failure modes return the same
// unauthorized error so responses do not reveal which accounts exist.
func (s *IdentityService) Login(ctx context.Context, username, password string) (*domain.Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, apperr.Unauthorized("invalid credentials")
	}

	identity, err := s.identities.GetByUsername(ctx, username)
	if err != nil {
		return nil, apperr.Internal("lookup identity", err)
	}
	if identity == nil || identity.PasswordHash == "" {
		s.auditor.LogEvent(ctx, "", audit.ActionLoginFailure, "session", `{"reason":"unknown_account"}`)
		return nil, apperr.Unauthorized("invalid credentials")
	}
	if err := s.hasher.Compare(identity.PasswordHash, []byte(password)); err != nil {
		s.auditor.LogEvent(ctx, identity.ID, audit.ActionLoginFailure, "session", `{"reason":"bad_password"}`)
		return nil, apperr.Unauthorized("invalid credentials")
	}
	if identity.Disabled {
		s.auditor.LogEvent(ctx, identity.ID, audit.ActionLoginFailure, "session", `{"reason":"disabled"}`)
		return nil, apperr.Unauthorized("invalid credentials")
	}

	s.auditor.LogEvent(ctx, identity.ID, audit.ActionLoginSuccess, "session", "")
	return identity, nil
}

// Register creates a local account. Only admins reach this; the handler
// enforces that.
func (s *IdentityService) Register(ctx context.Context, username, email, password string, role domain.Role) (*domain.Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperr.Invalid("username is required")
	}
	if len(password) < minPasswordLength {
		return nil, apperr.Invalid("password must be at least 8 characters")
	}
	if role == "" {
		role = domain.RoleUser
	}

	existing, err := s.identities.GetByUsername(ctx, username)
	if err != nil {
		return nil, apperr.Internal("lookup identity", err)
	}
	if existing != nil {
		return nil, apperr.Conflict("username already taken")
	}
	email = strings.TrimSpace(email)
	if email != "" {
		existing, err = s.identities.GetByEmail(ctx, email)
		if err != nil {
			return nil, apperr.Internal("lookup identity", err)
		}
		if existing != nil {
			return nil, apperr.Conflict("email already registered")
		}
	}

	hash, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, apperr.Internal("hash password", err)
	}

	now := s.nowF()
	identity := &domain.Identity{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := identity.Validate(); err != nil {
		return nil, apperr.Invalid(err.Error())
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		return nil, apperr.Internal("create identity", err)
	}

	s.auditor.LogEvent(ctx, identity.ID, audit.ActionRegister, "identity", `{"role":"`+string(role)+`"}`)
	return identity, nil
}

// Get returns the identity by id, or a not-found error.
func (s *IdentityService) Get(ctx context.Context, id string) (*domain.Identity, error) {
	identity, err := s.identities.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal("lookup identity", err)
	}
	if identity == nil {
		return nil, apperr.NotFound("identity not found")
	}
	return identity, nil
}

// SetDisabled disables or re-enables an account. Disabling takes effect on
// the next session validation.
func (s *IdentityService) SetDisabled(ctx context.Context, id string, disabled bool) error {
	identity, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.identities.SetDisabled(ctx, identity.ID, disabled); err != nil {
		return apperr.Internal("update identity", err)
	}
	return nil
}
