package db

import (
	"time"

	"github.com/justestif/go-spotify-now-playing/internal/auth"
)

// credentialID is the key of the only credential row.
const credentialID = 1

// Credentials is the stored row behind auth.Record.
type Credentials struct {
	AccessToken  *string    // nullable
	RefreshToken *string    // nullable
	ExpiresAt    *time.Time // nullable
	GrantID      *string    // nullable
	UpdatedAt    time.Time
}

func credentialsFromRecord(rec auth.Record) Credentials {
	c := Credentials{
		AccessToken:  nullString(rec.AccessToken),
		RefreshToken: nullString(rec.RefreshToken),
		GrantID:      nullString(rec.GrantID),
		UpdatedAt:    rec.UpdatedAt,
	}
	if !rec.ExpiresAt.IsZero() {
		exp := rec.ExpiresAt
		c.ExpiresAt = &exp
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = time.Now()
	}
	return c
}

// Record converts the row back into a credential record. An access token
// without an expiry is dropped so the record invariant holds.
func (c Credentials) Record() auth.Record {
	rec := auth.Record{
		AccessToken:  deref(c.AccessToken),
		RefreshToken: deref(c.RefreshToken),
		GrantID:      deref(c.GrantID),
		UpdatedAt:    c.UpdatedAt,
	}
	if c.ExpiresAt != nil {
		rec.ExpiresAt = *c.ExpiresAt
	}
	if rec.ExpiresAt.IsZero() {
		rec.AccessToken = ""
	}
	return rec
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
