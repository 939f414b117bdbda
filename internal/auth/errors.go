package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when no refresh token is stored and the
	// account has to be authorized again via /login.
	ErrUnauthorized = errors.New("no refresh token stored, authorize via /login")

	// ErrExchangeFailed is returned when the token endpoint rejects an authorization code.
	ErrExchangeFailed = errors.New("token exchange failed")

	// ErrRefreshFailed is returned when the token endpoint rejects a refresh.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrStoreCorrupt marks a stored record that could not be decoded.
	// Stores report such records as absent; the error only shows up in logs.
	ErrStoreCorrupt = errors.New("stored credential record is corrupt")

	// ErrMissingCode is returned when the callback carries no authorization code.
	ErrMissingCode = errors.New("missing authorization code")
)

// TokenError describes a failed call to the token endpoint.
// Status is zero when the request never got a response.
type TokenError struct {
	Op     string // "exchange" or "refresh"
	Status int
	Body   string
	Err    error
}

func (e *TokenError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("token %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("token %s failed %d %s", e.Op, e.Status, e.Body)
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// Is matches ErrExchangeFailed or ErrRefreshFailed depending on Op.
func (e *TokenError) Is(target error) bool {
	switch target {
	case ErrExchangeFailed:
		return e.Op == opExchange
	case ErrRefreshFailed:
		return e.Op == opRefresh
	}
	return false
}

// Temporary reports whether the failure happened before the provider answered.
func (e *TokenError) Temporary() bool {
	return e.Status == 0
}

const (
	opExchange = "exchange"
	opRefresh  = "refresh"
)
