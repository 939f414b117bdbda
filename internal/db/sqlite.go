package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/justestif/go-spotify-now-playing/internal/auth"
)

// SQLiteStore stores the credential record as a single SQLite row.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
// The path can be ":memory:" for an in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// One connection keeps ":memory:" databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite database: %w", err)
	}

	schema, err := schemaFS.ReadFile("schema/sqlite.sql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("reading schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, string(schema)); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load implements auth.Store.
func (s *SQLiteStore) Load(ctx context.Context) (auth.Record, error) {
	query := `
		SELECT access_token, refresh_token, expires_at_ms, grant_id, updated_at_ms
		FROM spotify_credentials
		WHERE id = ?
	`
	var (
		c         Credentials
		expiresMs sql.NullInt64
		updatedMs int64
	)
	err := s.db.QueryRowContext(ctx, query, credentialID).Scan(
		&c.AccessToken,
		&c.RefreshToken,
		&expiresMs,
		&c.GrantID,
		&updatedMs,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Record{}, nil
	}
	if err != nil {
		return auth.Record{}, fmt.Errorf("querying credentials: %w", err)
	}

	if expiresMs.Valid {
		exp := time.UnixMilli(expiresMs.Int64).UTC()
		c.ExpiresAt = &exp
	}
	c.UpdatedAt = time.UnixMilli(updatedMs).UTC()
	return c.Record(), nil
}

// Save implements auth.Store with a single upsert.
func (s *SQLiteStore) Save(ctx context.Context, rec auth.Record) error {
	if rec.IsZero() {
		return errors.New("cannot save empty record")
	}

	c := credentialsFromRecord(rec)
	var expiresMs sql.NullInt64
	if c.ExpiresAt != nil {
		expiresMs = sql.NullInt64{Int64: c.ExpiresAt.UnixMilli(), Valid: true}
	}

	query := `
		INSERT INTO spotify_credentials (id, access_token, refresh_token, expires_at_ms, grant_id, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at_ms = excluded.expires_at_ms,
			grant_id = excluded.grant_id,
			updated_at_ms = excluded.updated_at_ms
	`
	_, err := s.db.ExecContext(ctx, query,
		credentialID,
		c.AccessToken,
		c.RefreshToken,
		expiresMs,
		c.GrantID,
		c.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upserting credentials: %w", err)
	}
	return nil
}

// Clear implements auth.Store.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM spotify_credentials WHERE id = ?`, credentialID)
	if err != nil {
		return fmt.Errorf("deleting credentials: %w", err)
	}
	return nil
}

var _ auth.Store = (*SQLiteStore)(nil)
