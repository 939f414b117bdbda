package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// State is the lifecycle state of the stored credentials.
type State int

const (
	// StateUnauthorized means no refresh token is stored.
	StateUnauthorized State = iota
	// StateValid means the access token can be used as is.
	StateValid
	// StateExpiring means the access token is missing or within the skew of its expiry.
	StateExpiring
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateExpiring:
		return "expiring"
	default:
		return "unauthorized"
	}
}

// Record is the single persisted credential pair.
// A non-empty AccessToken always comes with a non-zero ExpiresAt.
type Record struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`

	// GrantID identifies the authorization this record descends from.
	// Refreshes keep it; it only exists to correlate log lines.
	GrantID   string    `json:"grant_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// recordJSON is the on-disk form. expires_at is Unix milliseconds, the
// layout token files have always used.
type recordJSON struct {
	AccessToken  string          `json:"access_token,omitempty"`
	RefreshToken string          `json:"refresh_token,omitempty"`
	ExpiresAt    json.RawMessage `json:"expires_at,omitempty"`
	GrantID      string          `json:"grant_id,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at,omitzero"`
}

// MarshalJSON encodes the record with ExpiresAt as Unix milliseconds.
func (r Record) MarshalJSON() ([]byte, error) {
	w := recordJSON{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		GrantID:      r.GrantID,
		UpdatedAt:    r.UpdatedAt,
	}
	if !r.ExpiresAt.IsZero() {
		w.ExpiresAt = json.RawMessage(strconv.FormatInt(r.ExpiresAt.UnixMilli(), 10))
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes expires_at given either as Unix milliseconds or as
// an RFC 3339 string.
func (r *Record) UnmarshalJSON(data []byte) error {
	var w recordJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	expires, err := parseExpiresAt(w.ExpiresAt)
	if err != nil {
		return err
	}
	*r = Record{
		AccessToken:  w.AccessToken,
		RefreshToken: w.RefreshToken,
		ExpiresAt:    expires,
		GrantID:      w.GrantID,
		UpdatedAt:    w.UpdatedAt,
	}
	return nil
}

func parseExpiresAt(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}
	if raw[0] == '"' {
		var t time.Time
		if err := json.Unmarshal(raw, &t); err != nil {
			return time.Time{}, fmt.Errorf("expires_at: %w", err)
		}
		return t, nil
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err != nil {
		return time.Time{}, fmt.Errorf("expires_at: %w", err)
	}
	if ms <= 0 {
		return time.Time{}, nil
	}
	return time.UnixMilli(int64(ms)).UTC(), nil
}

// IsZero reports whether the record holds no credentials at all.
func (r Record) IsZero() bool {
	return r.AccessToken == "" && r.RefreshToken == "" && r.ExpiresAt.IsZero()
}

// State classifies the record at the given instant.
func (r Record) State(now time.Time, skew time.Duration) State {
	if r.RefreshToken == "" {
		return StateUnauthorized
	}
	if r.AccessToken == "" || r.ExpiresAt.IsZero() {
		return StateExpiring
	}
	if now.Before(r.ExpiresAt.Add(-skew)) {
		return StateValid
	}
	return StateExpiring
}

// Store persists exactly one Record.
//
// Load returns a zero Record and a nil error when nothing is stored or the
// stored document cannot be decoded. Save replaces the whole record in one
// step; Clear is idempotent.
type Store interface {
	Load(ctx context.Context) (Record, error)
	Save(ctx context.Context, rec Record) error
	Clear(ctx context.Context) error
}
