package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"medianest/backend/internal/identity/domain"
)

// PostgresRepository implements Repository on a Postgres database.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an identity repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const identityColumns = `id, external_id, username, email, display_name, role, password_hash, disabled, raw_profile, created_at, updated_at`

func scanIdentity(row *sql.Row) (*domain.Identity, error) {
	var i domain.Identity
	var externalID, email, displayName, passwordHash, rawProfile sql.NullString
	err := row.Scan(&i.ID, &externalID, &i.Username, &email, &displayName, &i.Role, &passwordHash, &i.Disabled, &rawProfile, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	i.ExternalID = externalID.String
	i.Email = email.String
	i.DisplayName = displayName.String
	i.PasswordHash = passwordHash.String
	i.RawProfile = rawProfile.String
	return &i, nil
}

// GetByID returns the identity for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Identity, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	return scanIdentity(row)
}

// GetByExternalID returns the identity linked to the given provider user id, or nil if not found.
func (r *PostgresRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Identity, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE external_id = $1`, externalID)
	return scanIdentity(row)
}

// GetByUsername returns the identity with the given username, or nil if not found.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*domain.Identity, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE username = $1`, username)
	return scanIdentity(row)
}

// GetByEmail returns the identity with the given email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	if email == "" {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE lower(email) = lower($1)`, email)
	return scanIdentity(row)
}

// Create persists the identity. The identity must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, i *domain.Identity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identities (`+identityColumns+`)
		VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), NULLIF($5, ''), $6, NULLIF($7, ''), $8, NULLIF($9, ''), $10, $11)`,
		i.ID, i.ExternalID, i.Username, i.Email, i.DisplayName, i.Role, i.PasswordHash, i.Disabled, i.RawProfile, i.CreatedAt, i.UpdatedAt)
	return err
}

// UpdateProfile refreshes the mutable profile fields of an existing identity.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, i *domain.Identity) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE identities
		SET username = $2, email = NULLIF($3, ''), display_name = NULLIF($4, ''), raw_profile = NULLIF($5, ''), updated_at = $6
		WHERE id = $1`,
		i.ID, i.Username, i.Email, i.DisplayName, i.RawProfile, time.Now().UTC())
	return err
}

// SetDisabled flips the disabled flag for the identity.
func (r *PostgresRepository) SetDisabled(ctx context.Context, id string, disabled bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE identities SET disabled = $2, updated_at = $3 WHERE id = $1`,
		id, disabled, time.Now().UTC())
	return err
}
