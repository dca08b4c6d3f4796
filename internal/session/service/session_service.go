// Package service implements the session and token manager: issuing signed
// session tokens backed by server-side records, validating them fail-closed,
// and handling remember-token rotation.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"medianest/backend/internal/apperr"
	"medianest/backend/internal/counterstore"
	identitydomain "medianest/backend/internal/identity/domain"
	"medianest/backend/internal/security"
	"medianest/backend/internal/session/domain"
	sessionrepo "medianest/backend/internal/session/repository"
)

// rememberUsedWindow is how long a rotated remember-token hash is remembered
// so a replay can be reported as Conflict instead of a plain invalid token.
const rememberUsedWindow = 24 * time.Hour

// IdentityRepo is the minimal identity repository needed by the session service.
type IdentityRepo interface {
	GetByID(ctx context.Context, id string) (*identitydomain.Identity, error)
}

// SessionService issues, validates, and revokes sessions and remember tokens.
type SessionService struct {
	sessions    sessionrepo.Repository
	remember    sessionrepo.RememberTokenRepository
	identities  IdentityRepo
	tokens      *security.TokenProvider
	store       counterstore.Store
	rememberTTL time.Duration
	nowF        func() time.Time
}

// NewSessionService returns a SessionService with the given dependencies.
func NewSessionService(
	sessions sessionrepo.Repository,
	remember sessionrepo.RememberTokenRepository,
	identities IdentityRepo,
	tokens *security.TokenProvider,
	store counterstore.Store,
	rememberTTL time.Duration,
) *SessionService {
	return &SessionService{
		sessions:    sessions,
		remember:    remember,
		identities:  identities,
		tokens:      tokens,
		store:       store,
		rememberTTL: rememberTTL,
		nowF:        func() time.Time { return time.Now().UTC() },
	}
}

// SetNow overrides the service clock. Test helper.
func (s *SessionService) SetNow(f func() time.Time) { s.nowF = f }

// IssueSession creates a session record for the identity and returns the
// signed token pointing at it.
func (s *SessionService) IssueSession(ctx context.Context, identity *identitydomain.Identity, deviceFingerprint, ip string) (string, *domain.Session, error) {
	if identity == nil || identity.Disabled {
		return "", nil, apperr.Unauthorized("identity unavailable")
	}
	sessionID := uuid.New().String()
	token, expiresAt, err := s.tokens.IssueSessionToken(sessionID, identity.ID, string(identity.Role))
	if err != nil {
		return "", nil, apperr.Internal("sign session token", err)
	}
	sess := &domain.Session{
		ID:                sessionID,
		IdentityID:        identity.ID,
		Role:              string(identity.Role),
		DeviceFingerprint: deviceFingerprint,
		IssuedAt:          s.nowF(),
		ExpiresAt:         expiresAt,
		IPAddress:         ip,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return "", nil, apperr.Internal("create session", err)
	}
	return token, sess, nil
}

// ValidateSession verifies the token signature and expiry, then confirms the
// session record still exists and the owning identity is enabled. Any
// ambiguity (store error, malformed token, missing record) fails closed as
// Unauthorized.
func (s *SessionService) ValidateSession(ctx context.Context, token string) (*identitydomain.Identity, *domain.Session, error) {
	sessionID, _, _, err := s.tokens.ParseSessionToken(token)
	if err != nil {
		return nil, nil, apperr.Unauthorized("invalid session token")
	}
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil || sess == nil {
		return nil, nil, apperr.Unauthorized("session not found")
	}
	now := s.nowF()
	if sess.Expired(now) {
		// Expired rows are garbage; drop eagerly so a forged-but-unexpired
		// token cannot reference them either.
		_ = s.sessions.Delete(ctx, sessionID)
		return nil, nil, apperr.Unauthorized("session expired")
	}
	identity, err := s.identities.GetByID(ctx, sess.IdentityID)
	if err != nil || identity == nil || identity.Disabled {
		return nil, nil, apperr.Unauthorized("identity unavailable")
	}
	_ = s.sessions.UpdateLastSeen(ctx, sessionID, now)
	return identity, sess, nil
}

// SessionAlive reports whether the session record still exists and is
// unexpired. Used by the status broadcaster to close channels whose backing
// session was revoked mid-connection. Fails closed on store errors.
func (s *SessionService) SessionAlive(ctx context.Context, sessionID string) bool {
	sess, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil || sess == nil {
		return false
	}
	return !sess.Expired(s.nowF())
}

// IssueRememberToken generates a remember token for the identity, persists
// its hash, and returns the raw value. The raw value is never retrievable
// again.
func (s *SessionService) IssueRememberToken(ctx context.Context, identityID string) (string, error) {
	raw, err := security.GenerateRememberToken()
	if err != nil {
		return "", apperr.Internal("generate remember token", err)
	}
	now := s.nowF()
	t := &domain.RememberToken{
		TokenHash:  security.HashRememberToken(raw),
		IdentityID: identityID,
		ExpiresAt:  now.Add(s.rememberTTL),
		CreatedAt:  now,
	}
	if err := s.remember.Create(ctx, t); err != nil {
		return "", apperr.Internal("store remember token", err)
	}
	return raw, nil
}

// RedeemRememberToken atomically rotates the remember token: the old hash is
// claimed (exactly one concurrent redeemer wins), a new token is issued with
// a fresh TTL, and the identity is returned. A token whose hash was rotated
// within the last day fails with Conflict, which signals a replay, while an
// unknown or expired token fails with Unauthorized.
func (s *SessionService) RedeemRememberToken(ctx context.Context, rawToken string) (*identitydomain.Identity, string, error) {
	if rawToken == "" {
		return nil, "", apperr.Unauthorized("missing remember token")
	}
	hash := security.HashRememberToken(rawToken)
	claimed, err := s.remember.Claim(ctx, hash)
	if err != nil {
		return nil, "", apperr.Internal("claim remember token", err)
	}
	if claimed == nil {
		if _, used, _ := s.store.Get(ctx, counterstore.RememberUsedKey(hash)); used {
			return nil, "", apperr.Conflict("remember token already rotated")
		}
		return nil, "", apperr.Unauthorized("invalid remember token")
	}
	// Tombstone the old hash so a concurrent or later replay is identifiable.
	_ = s.store.Set(ctx, counterstore.RememberUsedKey(hash), "1", rememberUsedWindow)

	identity, err := s.identities.GetByID(ctx, claimed.IdentityID)
	if err != nil || identity == nil || identity.Disabled {
		return nil, "", apperr.Unauthorized("identity unavailable")
	}
	now := s.nowF()
	newRaw, err := security.GenerateRememberToken()
	if err != nil {
		return nil, "", apperr.Internal("generate remember token", err)
	}
	replacement := &domain.RememberToken{
		TokenHash:  security.HashRememberToken(newRaw),
		IdentityID: claimed.IdentityID,
		ExpiresAt:  now.Add(s.rememberTTL),
		LastUsedAt: &now,
		CreatedAt:  now,
	}
	if err := s.remember.Create(ctx, replacement); err != nil {
		return nil, "", apperr.Internal("store remember token", err)
	}
	return identity, newRaw, nil
}

// RevokeSession hard-deletes the session; the token fails validation on the
// next request.
func (s *SessionService) RevokeSession(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return apperr.Internal("revoke session", err)
	}
	return nil
}

// RevokeAllSessions hard-deletes every session and remember token for the
// identity. Used on security incidents.
func (s *SessionService) RevokeAllSessions(ctx context.Context, identityID string) error {
	if err := s.sessions.DeleteAllByIdentity(ctx, identityID); err != nil {
		return apperr.Internal("revoke sessions", err)
	}
	if err := s.remember.DeleteAllByIdentity(ctx, identityID); err != nil {
		return apperr.Internal("revoke remember tokens", err)
	}
	return nil
}
