package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/justestif/go-spotify-now-playing/internal/auth"
)

// CredentialRepository stores the credential record as a single PostgreSQL row.
type CredentialRepository struct {
	pool *pgxpool.Pool
}

// Get retrieves the credential row.
func (r *CredentialRepository) Get(ctx context.Context) (*Credentials, error) {
	query := `
		SELECT access_token, refresh_token, expires_at, grant_id, updated_at
		FROM spotify_credentials
		WHERE id = $1
	`
	var c Credentials
	err := r.pool.QueryRow(ctx, query, credentialID).Scan(
		&c.AccessToken,
		&c.RefreshToken,
		&c.ExpiresAt,
		&c.GrantID,
		&c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	return &c, nil
}

// Load implements auth.Store.
func (r *CredentialRepository) Load(ctx context.Context) (auth.Record, error) {
	c, err := r.Get(ctx)
	if errors.Is(err, ErrNotFound) {
		return auth.Record{}, nil
	}
	if err != nil {
		return auth.Record{}, err
	}
	return c.Record(), nil
}

// Save replaces every column of the credential row in one statement.
func (r *CredentialRepository) Save(ctx context.Context, rec auth.Record) error {
	if rec.IsZero() {
		return errors.New("cannot save empty record")
	}

	c := credentialsFromRecord(rec)
	query := `
		INSERT INTO spotify_credentials (id, access_token, refresh_token, expires_at, grant_id, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			grant_id = EXCLUDED.grant_id,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.pool.Exec(ctx, query,
		credentialID,
		c.AccessToken,
		c.RefreshToken,
		c.ExpiresAt,
		c.GrantID,
		c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting credentials: %w", err)
	}
	return nil
}

// Clear deletes the credential row. Deleting a missing row is not an error.
func (r *CredentialRepository) Clear(ctx context.Context) error {
	query := `DELETE FROM spotify_credentials WHERE id = $1`
	_, err := r.pool.Exec(ctx, query, credentialID)
	if err != nil {
		return fmt.Errorf("deleting credentials: %w", err)
	}
	return nil
}

var _ auth.Store = (*CredentialRepository)(nil)
