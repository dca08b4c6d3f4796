package registry

import (
	"context"
	"strconv"
	"time"

	"medianest/backend/internal/counterstore"
	"medianest/backend/internal/pin/domain"
)

const (
	fieldProviderPinID = "provider_pin_id"
	fieldCode          = "code"
	fieldStatus        = "status"
	fieldAuthToken     = "auth_token"
	fieldIdentityID    = "identity_id"
	fieldSessionID     = "session_id"
	fieldCreatedAt     = "created_at"
	fieldExpiresAt     = "expires_at"
	fieldNextCheckAt   = "next_check_at"
	fieldCheckInterval = "check_interval_ms"
)

// Registry persists link attempts in the counter store. The key TTL matches
// the attempt's deadline, so an evicted key and an expired attempt are the
// same thing.
type Registry struct {
	store counterstore.Store
}

func NewRegistry(store counterstore.Store) *Registry {
	return &Registry{store: store}
}

func (r *Registry) Create(ctx context.Context, p *domain.PinSession) error {
	if err := p.Validate(); err != nil {
		return err
	}
	ttl := time.Until(p.ExpiresAt)
	if ttl <= 0 {
		return domain.ErrAlreadyExpired
	}
	fields := map[string]string{
		fieldProviderPinID: strconv.FormatInt(p.ProviderPinID, 10),
		fieldCode:          p.Code,
		fieldStatus:        string(p.Status),
		fieldCreatedAt:     strconv.FormatInt(p.CreatedAt.Unix(), 10),
		fieldExpiresAt:     strconv.FormatInt(p.ExpiresAt.Unix(), 10),
		fieldNextCheckAt:   strconv.FormatInt(p.NextCheckAt.Unix(), 10),
		fieldCheckInterval: strconv.FormatInt(p.CheckInterval.Milliseconds(), 10),
	}
	return r.store.SetFields(ctx, counterstore.PinKey(p.ID), fields, ttl)
}

// Get returns the stored attempt, or nil when the key is gone.
func (r *Registry) Get(ctx context.Context, pinID string) (*domain.PinSession, error) {
	fields, err := r.store.GetFields(ctx, counterstore.PinKey(pinID))
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	p := &domain.PinSession{
		ID:         pinID,
		Code:       fields[fieldCode],
		Status:     domain.Status(fields[fieldStatus]),
		AuthToken:  fields[fieldAuthToken],
		IdentityID: fields[fieldIdentityID],
		SessionID:  fields[fieldSessionID],
	}
	p.ProviderPinID, _ = strconv.ParseInt(fields[fieldProviderPinID], 10, 64)
	p.CreatedAt = unixField(fields[fieldCreatedAt])
	p.ExpiresAt = unixField(fields[fieldExpiresAt])
	p.NextCheckAt = unixField(fields[fieldNextCheckAt])
	if ms, err := strconv.ParseInt(fields[fieldCheckInterval], 10, 64); err == nil {
		p.CheckInterval = time.Duration(ms) * time.Millisecond
	}
	return p, nil
}

// MarkAuthorized moves a pending attempt to authorized, storing the provider
// token and resolved identity alongside. Returns the status actually held
// when the swap did not happen.
func (r *Registry) MarkAuthorized(ctx context.Context, pinID, authToken, identityID string) (bool, domain.Status, error) {
	extra := map[string]string{
		fieldAuthToken:  authToken,
		fieldIdentityID: identityID,
	}
	swapped, current, err := r.store.CompareAndSwapField(ctx, counterstore.PinKey(pinID),
		fieldStatus, string(domain.StatusPending), string(domain.StatusAuthorized), extra)
	return swapped, domain.Status(current), err
}

// Consume moves an authorized attempt to consumed. At most one caller wins
// the swap for a given attempt.
func (r *Registry) Consume(ctx context.Context, pinID string) (bool, domain.Status, error) {
	swapped, current, err := r.store.CompareAndSwapField(ctx, counterstore.PinKey(pinID),
		fieldStatus, string(domain.StatusAuthorized), string(domain.StatusConsumed), nil)
	return swapped, domain.Status(current), err
}

// RecordSession attaches the issued session to a consumed attempt, best effort.
func (r *Registry) RecordSession(ctx context.Context, pinID, sessionID string) error {
	_, _, err := r.store.CompareAndSwapField(ctx, counterstore.PinKey(pinID),
		fieldStatus, string(domain.StatusConsumed), string(domain.StatusConsumed),
		map[string]string{fieldSessionID: sessionID})
	return err
}

// Reschedule advances the provider check window for a pending attempt.
func (r *Registry) Reschedule(ctx context.Context, pinID string, nextCheckAt time.Time, interval time.Duration) error {
	_, _, err := r.store.CompareAndSwapField(ctx, counterstore.PinKey(pinID),
		fieldStatus, string(domain.StatusPending), string(domain.StatusPending),
		map[string]string{
			fieldNextCheckAt:   strconv.FormatInt(nextCheckAt.Unix(), 10),
			fieldCheckInterval: strconv.FormatInt(interval.Milliseconds(), 10),
		})
	return err
}

// Cancel marks a pending attempt expired ahead of its deadline.
func (r *Registry) Cancel(ctx context.Context, pinID string) (bool, error) {
	swapped, _, err := r.store.CompareAndSwapField(ctx, counterstore.PinKey(pinID),
		fieldStatus, string(domain.StatusPending), string(domain.StatusExpired), nil)
	return swapped, err
}

func unixField(v string) time.Time {
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
