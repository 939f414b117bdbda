package spotify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/zmb3/spotify/v2"
)

var (
	// ErrRetryable is returned after the API rejected the access token and a
	// forced refresh succeeded; the caller should simply try again.
	ErrRetryable = errors.New("unauthorized, token refresh attempted, try again")
)

// UpstreamError is a non-auth failure of the Web API.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("spotify API error %d", e.Status)
	}
	return fmt.Sprintf("spotify API error %d: %s", e.Status, e.Message)
}

// TokenSource supplies access tokens. *auth.Manager implements it.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// Fetcher turns the Web API playback state into Snapshots.
type Fetcher struct {
	tokens    TokenSource
	baseURL   string
	transport http.RoundTripper
	timeout   time.Duration
	now       func() time.Time
	logger    *log.Logger
}

// FetcherOption customizes a Fetcher.
type FetcherOption func(*Fetcher)

// WithBaseURL points the Fetcher at another API root (must end with "/").
func WithBaseURL(u string) FetcherOption {
	return func(f *Fetcher) { f.baseURL = u }
}

// WithTransport sets the base HTTP transport.
func WithTransport(rt http.RoundTripper) FetcherOption {
	return func(f *Fetcher) { f.transport = rt }
}

// WithTimeout bounds each API call. Non-positive values keep DefaultTimeout.
func WithTimeout(d time.Duration) FetcherOption {
	return func(f *Fetcher) { f.timeout = d }
}

// WithClock replaces time.Now for CapturedAt.
func WithClock(now func() time.Time) FetcherOption {
	return func(f *Fetcher) { f.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = l }
}

// NewFetcher creates a Fetcher drawing tokens from tokens.
func NewFetcher(tokens TokenSource, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		tokens:  tokens,
		baseURL: DefaultBaseURL,
		timeout: DefaultTimeout,
		now:     time.Now,
		logger:  log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.timeout <= 0 {
		f.timeout = DefaultTimeout
	}
	return f
}

// Current fetches the current playback state.
//
// Nothing playing (204 or no active item) is a normal not-playing Snapshot.
// A 401 forces one token refresh and returns ErrRetryable; other API failures
// return *UpstreamError.
func (f *Fetcher) Current(ctx context.Context) (Snapshot, error) {
	token, err := f.tokens.AccessToken(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	client, st := newAPIClient(token, f.baseURL, f.transport, f.timeout)
	state, err := client.PlayerState(ctx)
	captured := f.now()
	if err != nil {
		return Snapshot{}, f.classify(ctx, err, st.status)
	}

	return convertState(state, captured), nil
}

func (f *Fetcher) classify(ctx context.Context, err error, status int) error {
	msg := err.Error()
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		if apiErr.Status != 0 {
			status = apiErr.Status
		}
		msg = apiErr.Message
	}

	switch {
	case status == http.StatusUnauthorized:
		f.logger.Warn("spotify rejected access token, forcing refresh")
		if _, rerr := f.tokens.ForceRefresh(ctx); rerr != nil {
			return rerr
		}
		return ErrRetryable
	case status >= 400:
		return &UpstreamError{Status: status, Message: msg}
	default:
		return fmt.Errorf("fetching playback state: %w", err)
	}
}

// convertState maps the API playback state to a Snapshot.
func convertState(state *spotify.PlayerState, captured time.Time) Snapshot {
	snap := Snapshot{CapturedAt: captured}
	if state == nil || state.Item == nil || !state.Playing {
		return snap
	}

	item := state.Item

	// Artist names in credit order
	artists := make([]string, len(item.Artists))
	for i, a := range item.Artists {
		artists[i] = a.Name
	}

	var image string
	if len(item.Album.Images) > 0 {
		image = item.Album.Images[0].URL
	}

	progress := max(int(state.Progress), 0)
	duration := int(item.Duration)

	snap.IsPlaying = true
	snap.ProgressMs = progress
	snap.DurationMs = &duration
	snap.Track = &Track{
		ID:            item.ID.String(),
		Name:          item.Name,
		ArtistNames:   artists,
		AlbumName:     item.Album.Name,
		AlbumImageURL: image,
		ExternalURL:   item.ExternalURLs["spotify"],
	}
	if state.Device.ID != "" || state.Device.Name != "" {
		snap.Device = &Device{
			ID:   state.Device.ID.String(),
			Name: state.Device.Name,
			Type: state.Device.Type,
		}
	}

	return snap
}
