package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultSkew is how long before expiry an access token is treated as expiring.
	DefaultSkew = 5 * time.Second

	// DefaultHTTPTimeout bounds every call to the token endpoint.
	DefaultHTTPTimeout = 10 * time.Second

	// defaultExpiresIn applies when the provider omits expires_in.
	defaultExpiresIn = time.Hour

	refreshKey = "refresh"
)

// ErrMissingCredentials is returned when the client id, secret or redirect URI is empty.
var ErrMissingCredentials = errors.New("missing Spotify client id, client secret or redirect URI")

// Scopes are the only permissions requested: read-only playback state.
var Scopes = []string{
	spotifyauth.ScopeUserReadCurrentlyPlaying,
	spotifyauth.ScopeUserReadPlaybackState,
}

// Config configures a Manager.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string

	// AuthURL and TokenURL default to Spotify's accounts service.
	AuthURL  string
	TokenURL string

	Skew        time.Duration
	HTTPTimeout time.Duration
}

// Authorization is the redirect target produced by BeginAuthorization.
type Authorization struct {
	URL   string
	State string
}

// Status summarizes the stored credentials without exposing them.
type Status struct {
	State     State
	ExpiresAt time.Time
	GrantID   string
}

// Manager is the only reader and writer of the credential Store.
// It hands out valid access tokens, refreshing them when they are close to expiry.
type Manager struct {
	oauth      *oauth2.Config
	store      Store
	httpClient *http.Client
	skew       time.Duration
	now        func() time.Time
	logger     *log.Logger

	refreshes singleflight.Group

	// mu serializes writes; gen changes on every authorization and revocation
	// so an in-flight refresh of a superseded grant is never persisted.
	mu  sync.Mutex
	gen uint64
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithHTTPClient sets the client used for the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// NewManager creates a Manager.
// Returns ErrMissingCredentials if the client id, secret or redirect URI is empty.
func NewManager(cfg Config, store Store, opts ...Option) (*Manager, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURI == "" {
		return nil, ErrMissingCredentials
	}
	if store == nil {
		return nil, errors.New("nil credential store")
	}

	if cfg.AuthURL == "" {
		cfg.AuthURL = spotifyauth.AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = spotifyauth.TokenURL
	}
	if cfg.Skew <= 0 {
		cfg.Skew = DefaultSkew
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = DefaultHTTPTimeout
	}

	m := &Manager{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		store:      store,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		skew:       cfg.Skew,
		now:        time.Now,
		logger:     log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// BeginAuthorization builds the provider redirect with a fresh anti-forgery state.
// The caller is responsible for checking the state echoed back on the callback.
func (m *Manager) BeginAuthorization() (Authorization, error) {
	state, err := generateState()
	if err != nil {
		return Authorization{}, fmt.Errorf("generating state: %w", err)
	}
	return Authorization{
		URL:   m.oauth.AuthCodeURL(state, spotifyauth.ShowDialog),
		State: state,
	}, nil
}

// CompleteAuthorization exchanges an authorization code for a token pair and persists it.
func (m *Manager) CompleteAuthorization(ctx context.Context, code string) (Record, error) {
	if code == "" {
		return Record{}, ErrMissingCode
	}

	tok, err := m.oauth.Exchange(m.clientContext(ctx), code)
	if err != nil {
		return Record{}, m.tokenError(opExchange, err)
	}

	rec := m.recordFrom(tok, Record{GrantID: uuid.NewString()})

	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	if err := m.store.Save(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("saving credentials: %w", err)
	}

	m.logger.Info("spotify authorization stored", "grant", rec.GrantID, "expires_at", rec.ExpiresAt, "refresh_token", rec.RefreshToken != "")
	return rec, nil
}

// AccessToken returns a usable access token, refreshing the stored one if it
// is missing or about to expire. A valid stored token is returned without any
// network call.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	rec, err := m.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("loading credentials: %w", err)
	}

	switch rec.State(m.now(), m.skew) {
	case StateUnauthorized:
		return "", ErrUnauthorized
	case StateValid:
		return rec.AccessToken, nil
	}

	rec, err = m.refresh(ctx, false)
	if err != nil {
		return "", err
	}
	return rec.AccessToken, nil
}

// ForceRefresh refreshes the access token even if the stored one looks valid.
// Used after the API rejected a token the store still considered valid.
func (m *Manager) ForceRefresh(ctx context.Context) (string, error) {
	rec, err := m.refresh(ctx, true)
	if err != nil {
		return "", err
	}
	return rec.AccessToken, nil
}

// Revoke deletes the stored credentials. Revoking an empty store is not an error.
func (m *Manager) Revoke(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	if err := m.store.Clear(ctx); err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}
	m.logger.Info("spotify credentials revoked")
	return nil
}

// Status reports the current lifecycle state.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	rec, err := m.store.Load(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("loading credentials: %w", err)
	}
	return Status{
		State:     rec.State(m.now(), m.skew),
		ExpiresAt: rec.ExpiresAt,
		GrantID:   rec.GrantID,
	}, nil
}

// refresh runs at most one refresh at a time; concurrent callers share its result.
func (m *Manager) refresh(ctx context.Context, force bool) (Record, error) {
	ch := m.refreshes.DoChan(refreshKey, func() (any, error) {
		// Detached from the first caller so its cancellation does not fail the others.
		return m.doRefresh(context.WithoutCancel(ctx), force)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return Record{}, res.Err
		}
		return res.Val.(Record), nil
	case <-ctx.Done():
		return Record{}, ctx.Err()
	}
}

func (m *Manager) doRefresh(ctx context.Context, force bool) (Record, error) {
	m.mu.Lock()
	gen := m.gen
	m.mu.Unlock()

	rec, err := m.store.Load(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("loading credentials: %w", err)
	}

	switch rec.State(m.now(), m.skew) {
	case StateUnauthorized:
		return Record{}, ErrUnauthorized
	case StateValid:
		if !force {
			return rec, nil
		}
	}

	logger := m.logger.With("grant", rec.GrantID)
	logger.Debug("refreshing spotify access token", "force", force, "expires_at", rec.ExpiresAt)

	src := m.oauth.TokenSource(m.clientContext(ctx), &oauth2.Token{RefreshToken: rec.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		terr := m.tokenError(opRefresh, err)
		logger.Error("spotify token refresh failed", "err", terr)
		return Record{}, terr
	}

	next := m.recordFrom(tok, rec)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		// Revoked or re-authorized while the refresh was in flight.
		return Record{}, ErrUnauthorized
	}
	if err := m.store.Save(ctx, next); err != nil {
		// The new token is still good for this process; the next call retries the write.
		logger.Error("saving refreshed credentials", "err", err)
	}

	logger.Info("spotify access token refreshed", "expires_at", next.ExpiresAt)
	return next, nil
}

// recordFrom builds a complete record from a token response, carrying over the
// previous refresh token and grant when the response omits them.
func (m *Manager) recordFrom(tok *oauth2.Token, prev Record) Record {
	now := m.now()

	expiresIn := time.Duration(tok.ExpiresIn) * time.Second
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}

	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = prev.RefreshToken
	}

	return Record{
		AccessToken:  tok.AccessToken,
		RefreshToken: refresh,
		ExpiresAt:    now.Add(expiresIn),
		GrantID:      prev.GrantID,
		UpdatedAt:    now,
	}
}

func (m *Manager) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

func (m *Manager) tokenError(op string, err error) error {
	terr := &TokenError{Op: op, Err: err}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		terr.Status = re.Response.StatusCode
		terr.Body = string(re.Body)
	}
	return terr
}

// generateState creates a random state string for OAuth.
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
