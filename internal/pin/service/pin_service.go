// Package service implements the account-link state machine: create a
// provider PIN, poll it until the user authorizes, then exchange the
// authorized attempt for exactly one session.
package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"medianest/backend/internal/apperr"
	"medianest/backend/internal/counterstore"
	identitydomain "medianest/backend/internal/identity/domain"
	"medianest/backend/internal/pin/domain"
	"medianest/backend/internal/pin/registry"
	"medianest/backend/internal/plex"
	"medianest/backend/internal/resilience"
	sessiondomain "medianest/backend/internal/session/domain"
)

const (
	pollInitialInterval = time.Second
	pollMaxInterval     = 8 * time.Second
)

// Provider is the identity provider's PIN API.
type Provider interface {
	CreatePin(ctx context.Context) (*plex.Pin, error)
	CheckPin(ctx context.Context, id int64) (*plex.Pin, error)
	GetProfile(ctx context.Context, authToken string) (*plex.Profile, error)
}

// IdentityRepo is the subset of the identity repository the link flow needs.
type IdentityRepo interface {
	GetByID(ctx context.Context, id string) (*identitydomain.Identity, error)
	GetByExternalID(ctx context.Context, externalID string) (*identitydomain.Identity, error)
	Create(ctx context.Context, i *identitydomain.Identity) error
	UpdateProfile(ctx context.Context, i *identitydomain.Identity) error
}

// SessionIssuer issues sessions and remember tokens for consumed attempts.
type SessionIssuer interface {
	IssueSession(ctx context.Context, identity *identitydomain.Identity, deviceFingerprint, ip string) (string, *sessiondomain.Session, error)
	IssueRememberToken(ctx context.Context, identityID string) (string, error)
}

// StartLinkResult is what the client needs to display the linking code.
type StartLinkResult struct {
	PinID     string
	Code      string
	ExpiresAt time.Time
}

// ConsumeResult is the issued session for the single winning consumer.
type ConsumeResult struct {
	Token         string
	Session       *sessiondomain.Session
	Identity      *identitydomain.Identity
	RememberToken string
}

type PinService struct {
	registry   *registry.Registry
	provider   Provider
	rc         *resilience.Client
	identities IdentityRepo
	sessions   SessionIssuer
	store      counterstore.Store

	pinTTL      time.Duration
	pollCeiling int64

	nowF func() time.Time
}

func NewPinService(
	reg *registry.Registry,
	provider Provider,
	rc *resilience.Client,
	identities IdentityRepo,
	sessions SessionIssuer,
	store counterstore.Store,
	pinTTL time.Duration,
	pollCeiling int64,
) *PinService {
	return &PinService{
		registry:    reg,
		provider:    provider,
		rc:          rc,
		identities:  identities,
		sessions:    sessions,
		store:       store,
		pinTTL:      pinTTL,
		pollCeiling: pollCeiling,
		nowF:        time.Now,
	}
}

// SetNow overrides the clock in tests.
func (s *PinService) SetNow(f func() time.Time) { s.nowF = f }

// StartLink requests a fresh PIN from the provider and registers a pending
// attempt. The attempt's deadline is the provider's, capped by the local TTL.
func (s *PinService) StartLink(ctx context.Context) (*StartLinkResult, error) {
	pin, err := resilience.Call(ctx, s.rc, s.provider.CreatePin, passthrough[*plex.Pin])
	if err != nil {
		return nil, err
	}

	now := s.nowF()
	expiresAt := now.Add(s.pinTTL)
	if !pin.ExpiresAt.IsZero() && pin.ExpiresAt.Before(expiresAt) {
		expiresAt = pin.ExpiresAt
	}

	attempt := &domain.PinSession{
		ID:            uuid.NewString(),
		ProviderPinID: pin.ID,
		Code:          pin.Code,
		Status:        domain.StatusPending,
		CreatedAt:     now,
		ExpiresAt:     expiresAt,
		NextCheckAt:   now,
		CheckInterval: pollInitialInterval,
	}
	if err := s.registry.Create(ctx, attempt); err != nil {
		return nil, apperr.Internal("register link attempt", err)
	}
	return &StartLinkResult{PinID: attempt.ID, Code: attempt.Code, ExpiresAt: expiresAt}, nil
}

// PollStatus reports the attempt's current state. The client drives the
// cadence; provider checks are spaced by a doubling interval capped at
// pollMaxInterval, and a per-attempt ceiling bounds total provider work no
// matter how often the client asks.
func (s *PinService) PollStatus(ctx context.Context, pinID string) (domain.Status, error) {
	attempt, err := s.registry.Get(ctx, pinID)
	if err != nil {
		return "", apperr.Internal("load link attempt", err)
	}
	if attempt == nil {
		return "", apperr.NotFound("link attempt not found")
	}

	now := s.nowF()
	if attempt.Expired(now) {
		return domain.StatusExpired, nil
	}
	if attempt.Status != domain.StatusPending {
		return attempt.Status, nil
	}
	if now.Before(attempt.NextCheckAt) {
		return domain.StatusPending, nil
	}

	polls, _, err := s.store.IncrWindow(ctx, counterstore.PinPollsKey(pinID), s.pinTTL)
	if err == nil && polls > s.pollCeiling {
		return domain.StatusPending, nil
	}

	pin, err := resilience.Call(ctx, s.rc, func(ctx context.Context) (*plex.Pin, error) {
		return s.provider.CheckPin(ctx, attempt.ProviderPinID)
	}, passthrough[*plex.Pin])
	if err != nil {
		if apperr.IsKind(err, apperr.KindDependencyUnavailable) {
			// Provider outage: stay pending and let the client keep polling.
			s.reschedule(ctx, attempt, now)
			return domain.StatusPending, nil
		}
		// The provider no longer knows this PIN.
		if _, cerr := s.registry.Cancel(ctx, pinID); cerr != nil {
			log.Printf("pin: cancel %s failed: %v", pinID, cerr)
		}
		return domain.StatusExpired, nil
	}

	if pin.AuthToken == "" {
		s.reschedule(ctx, attempt, now)
		return domain.StatusPending, nil
	}

	identity, err := s.resolveIdentity(ctx, pin.AuthToken)
	if err != nil {
		if apperr.IsKind(err, apperr.KindDependencyUnavailable) {
			s.reschedule(ctx, attempt, now)
			return domain.StatusPending, nil
		}
		return "", err
	}

	swapped, current, err := s.registry.MarkAuthorized(ctx, pinID, pin.AuthToken, identity.ID)
	if err != nil {
		return "", apperr.Internal("authorize link attempt", err)
	}
	if !swapped {
		switch current {
		case domain.StatusAuthorized, domain.StatusConsumed:
			return current, nil
		default:
			return domain.StatusExpired, nil
		}
	}
	return domain.StatusAuthorized, nil
}

// Remaining reports the attempt's time to deadline as tracked by the store
// key's TTL. Returns false for unknown or already expired attempts.
func (s *PinService) Remaining(ctx context.Context, pinID string) (time.Duration, bool) {
	ttl, ok, err := s.store.TTL(ctx, counterstore.PinKey(pinID))
	if err != nil || !ok {
		return 0, false
	}
	return ttl, true
}

// Consume exchanges an authorized attempt for a session. Concurrent callers
// race on the stored status; exactly one wins and receives the new session,
// the rest get a conflict.
func (s *PinService) Consume(ctx context.Context, pinID, deviceFingerprint, ip string, remember bool) (*ConsumeResult, error) {
	attempt, err := s.registry.Get(ctx, pinID)
	if err != nil {
		return nil, apperr.Internal("load link attempt", err)
	}
	if attempt == nil {
		return nil, apperr.NotFound("link attempt not found")
	}
	if attempt.Expired(s.nowF()) {
		return nil, apperr.Expired("link attempt expired")
	}

	switch attempt.Status {
	case domain.StatusPending:
		return nil, apperr.Invalid("link attempt not yet authorized")
	case domain.StatusExpired:
		return nil, apperr.Expired("link attempt expired")
	case domain.StatusConsumed:
		return nil, apperr.Conflict("link attempt already consumed")
	}

	swapped, current, err := s.registry.Consume(ctx, pinID)
	if err != nil {
		return nil, apperr.Internal("consume link attempt", err)
	}
	if !swapped {
		if current == domain.StatusConsumed {
			return nil, apperr.Conflict("link attempt already consumed")
		}
		return nil, apperr.Expired("link attempt expired")
	}

	identity, err := s.identities.GetByID(ctx, attempt.IdentityID)
	if err != nil {
		return nil, apperr.Internal("load identity", err)
	}
	if identity == nil {
		return nil, apperr.Internal("identity for consumed attempt missing", nil)
	}
	if identity.Disabled {
		return nil, apperr.Unauthorized("account is disabled")
	}

	token, session, err := s.sessions.IssueSession(ctx, identity, deviceFingerprint, ip)
	if err != nil {
		return nil, apperr.Internal("issue session", err)
	}
	if err := s.registry.RecordSession(ctx, pinID, session.ID); err != nil {
		log.Printf("pin: record session for %s failed: %v", pinID, err)
	}

	result := &ConsumeResult{Token: token, Session: session, Identity: identity}
	if remember {
		rt, err := s.sessions.IssueRememberToken(ctx, identity.ID)
		if err != nil {
			log.Printf("pin: remember token for %s failed: %v", identity.ID, err)
		} else {
			result.RememberToken = rt
		}
	}
	return result, nil
}

// resolveIdentity fetches the provider profile and finds or creates the
// matching local identity, refreshing its profile fields on every link.
func (s *PinService) resolveIdentity(ctx context.Context, authToken string) (*identitydomain.Identity, error) {
	profile, err := resilience.Call(ctx, s.rc, func(ctx context.Context) (*plex.Profile, error) {
		return s.provider.GetProfile(ctx, authToken)
	}, passthrough[*plex.Profile])
	if err != nil {
		return nil, err
	}

	existing, err := s.identities.GetByExternalID(ctx, profile.ExternalID())
	if err != nil {
		return nil, apperr.Internal("lookup identity", err)
	}
	if existing != nil {
		existing.Username = profile.Username
		existing.Email = profile.Email
		existing.DisplayName = profile.Title
		existing.RawProfile = profile.Raw
		if err := s.identities.UpdateProfile(ctx, existing); err != nil {
			return nil, apperr.Internal("update identity profile", err)
		}
		return existing, nil
	}

	now := s.nowF()
	identity := &identitydomain.Identity{
		ID:          uuid.NewString(),
		ExternalID:  profile.ExternalID(),
		Username:    profile.Username,
		Email:       profile.Email,
		DisplayName: profile.Title,
		Role:        identitydomain.RoleUser,
		RawProfile:  profile.Raw,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		return nil, apperr.Internal("create identity", err)
	}
	return identity, nil
}

func (s *PinService) reschedule(ctx context.Context, attempt *domain.PinSession, now time.Time) {
	interval := attempt.CheckInterval * 2
	if interval > pollMaxInterval {
		interval = pollMaxInterval
	}
	if interval <= 0 {
		interval = pollInitialInterval
	}
	if err := s.registry.Reschedule(ctx, attempt.ID, now.Add(attempt.CheckInterval), interval); err != nil {
		log.Printf("pin: reschedule %s failed: %v", attempt.ID, err)
	}
}

// passthrough surfaces the degraded-path cause unchanged; the link flow has
// no cached result to fall back to.
func passthrough[T any](_ context.Context, cause error) (T, error) {
	var zero T
	return zero, cause
}
