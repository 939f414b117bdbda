package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/justestif/go-spotify-now-playing/internal/spotify"
)

const (
	// DefaultPollInterval is how often the Poller fetches a new snapshot.
	DefaultPollInterval = 15 * time.Second

	// DefaultFetchTimeout bounds a single snapshot fetch.
	DefaultFetchTimeout = 10 * time.Second
)

// Source produces snapshots. *spotify.Fetcher and *HTTPSource implement it.
type Source interface {
	Current(ctx context.Context) (spotify.Snapshot, error)
}

// HTTPSource reads snapshots from a running server's /spotify/now-playing.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource creates a source for the server at baseURL. A nil client uses
// one bounded by DefaultFetchTimeout.
func NewHTTPSource(baseURL string, client *http.Client) *HTTPSource {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	return &HTTPSource{
		url:    strings.TrimRight(baseURL, "/") + "/spotify/now-playing",
		client: client,
	}
}

// Current implements Source.
func (s *HTTPSource) Current(ctx context.Context) (spotify.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return spotify.Snapshot{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return spotify.Snapshot{}, fmt.Errorf("fetching now playing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
		return spotify.Snapshot{}, fmt.Errorf("now playing returned %d: %s", resp.StatusCode, body.Error)
	}

	var snap spotify.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return spotify.Snapshot{}, fmt.Errorf("decoding now playing: %w", err)
	}
	return snap, nil
}

// Poller periodically feeds snapshots from a Source into an Interpolator.
type Poller struct {
	source   Source
	interp   *Interpolator
	interval time.Duration
	limiter  *rate.Limiter
	logger   *log.Logger

	refresh chan struct{}

	mu       sync.Mutex
	inflight context.CancelFunc
}

// PollerOption customizes a Poller.
type PollerOption func(*Poller)

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) { p.interval = d }
}

// WithRefreshLimit sets how often RefreshNow may start a fetch.
func WithRefreshLimit(every time.Duration) PollerOption {
	return func(p *Poller) { p.limiter = rate.NewLimiter(rate.Every(every), 1) }
}

// WithPollerLogger sets the logger.
func WithPollerLogger(l *log.Logger) PollerOption {
	return func(p *Poller) { p.logger = l }
}

// NewPoller creates a Poller. Manual refreshes are limited to one per second
// unless overridden.
func NewPoller(source Source, interp *Interpolator, opts ...PollerOption) *Poller {
	p := &Poller{
		source:   source,
		interp:   interp,
		interval: DefaultPollInterval,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		logger:   log.New(io.Discard),
		refresh:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run fetches immediately and then on every interval or manual refresh until
// ctx is done. The interpolator is stopped on return.
func (p *Poller) Run(ctx context.Context) error {
	defer p.interp.Stop()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.fetch(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.fetch(ctx)
		case <-p.refresh:
			p.fetch(ctx)
		}
	}
}

// RefreshNow cancels any in-flight fetch and requests a new one. It returns
// false when the request was throttled.
func (p *Poller) RefreshNow() bool {
	if !p.limiter.Allow() {
		return false
	}

	p.mu.Lock()
	if p.inflight != nil {
		p.inflight()
	}
	p.mu.Unlock()

	select {
	case p.refresh <- struct{}{}:
	default:
	}
	return true
}

func (p *Poller) fetch(ctx context.Context) {
	fctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.inflight = cancel
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.inflight = nil
		p.mu.Unlock()
		cancel()
	}()

	snap, err := p.source.Current(fctx)
	if fctx.Err() != nil {
		// Superseded by RefreshNow or shutdown; its result is stale.
		return
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.logger.Warn("now playing unavailable", "err", err)
		}
		p.interp.Unavailable(err)
		return
	}

	p.logger.Debug("snapshot", "playing", snap.IsPlaying, "progress_ms", snap.ProgressMs)
	p.interp.OnSnapshot(snap)
}
