package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"medianest/backend/internal/session/domain"
)

// PostgresRepository implements Repository on a Postgres database.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a session repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the session for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, identity_id, role, device_fingerprint, issued_at, expires_at, last_seen_at, ip_address
		FROM sessions WHERE id = $1`, id)
	var s domain.Session
	var lastSeen sql.NullTime
	var fingerprint, ip sql.NullString
	err := row.Scan(&s.ID, &s.IdentityID, &s.Role, &fingerprint, &s.IssuedAt, &s.ExpiresAt, &lastSeen, &ip)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.DeviceFingerprint = fingerprint.String
	s.IPAddress = ip.String
	if lastSeen.Valid {
		t := lastSeen.Time
		s.LastSeenAt = &t
	}
	return &s, nil
}

// Create persists the session. The session must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, identity_id, role, device_fingerprint, issued_at, expires_at, ip_address)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''))`,
		s.ID, s.IdentityID, s.Role, s.DeviceFingerprint, s.IssuedAt, s.ExpiresAt, s.IPAddress)
	return err
}

// UpdateLastSeen records session activity. Best-effort from callers.
func (r *PostgresRepository) UpdateLastSeen(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET last_seen_at = $2 WHERE id = $1`, id, at)
	return err
}

// Delete removes the session. Deleting a missing session is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// DeleteAllByIdentity removes every session for the identity. Used on
// security incidents and remember-token reuse.
func (r *PostgresRepository) DeleteAllByIdentity(ctx context.Context, identityID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE identity_id = $1`, identityID)
	return err
}

// PostgresRememberTokenRepository implements RememberTokenRepository on Postgres.
type PostgresRememberTokenRepository struct {
	db *sql.DB
}

// NewPostgresRememberTokenRepository returns a remember-token repository backed by db.
func NewPostgresRememberTokenRepository(db *sql.DB) *PostgresRememberTokenRepository {
	return &PostgresRememberTokenRepository{db: db}
}

// Create persists the token hash.
func (r *PostgresRememberTokenRepository) Create(ctx context.Context, t *domain.RememberToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO remember_tokens (token_hash, identity_id, expires_at, last_used_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		t.TokenHash, t.IdentityID, t.ExpiresAt, t.LastUsedAt, t.CreatedAt)
	return err
}

// Claim removes and returns the unexpired token with the given hash. The
// conditional DELETE ... RETURNING makes concurrent claims race-safe: the row
// exists for exactly one winner.
func (r *PostgresRememberTokenRepository) Claim(ctx context.Context, tokenHash string) (*domain.RememberToken, error) {
	row := r.db.QueryRowContext(ctx, `
		DELETE FROM remember_tokens
		WHERE token_hash = $1 AND expires_at > now()
		RETURNING token_hash, identity_id, expires_at, last_used_at, created_at`, tokenHash)
	var t domain.RememberToken
	var lastUsed sql.NullTime
	err := row.Scan(&t.TokenHash, &t.IdentityID, &t.ExpiresAt, &lastUsed, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if lastUsed.Valid {
		at := lastUsed.Time
		t.LastUsedAt = &at
	}
	return &t, nil
}

// DeleteAllByIdentity removes every remember token for the identity.
func (r *PostgresRememberTokenRepository) DeleteAllByIdentity(ctx context.Context, identityID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM remember_tokens WHERE identity_id = $1`, identityID)
	return err
}
