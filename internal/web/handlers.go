package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/justestif/go-spotify-now-playing/internal/auth"
	"github.com/justestif/go-spotify-now-playing/internal/github"
	"github.com/justestif/go-spotify-now-playing/internal/spotify"
)

// Authorizer is the part of *auth.Manager the handlers use.
type Authorizer interface {
	BeginAuthorization() (auth.Authorization, error)
	CompleteAuthorization(ctx context.Context, code string) (auth.Record, error)
	Revoke(ctx context.Context) error
	Status(ctx context.Context) (auth.Status, error)
}

// NowPlaying produces playback snapshots. *spotify.Fetcher implements it.
type NowPlaying interface {
	Current(ctx context.Context) (spotify.Snapshot, error)
}

// StatsSource produces GitHub statistics. *github.StatsClient implements it.
type StatsSource interface {
	Stats(ctx context.Context) (github.Stats, error)
}

// Handlers contains HTTP handlers for the web application.
type Handlers struct {
	auth       Authorizer
	nowPlaying NowPlaying
	stats      StatsSource
	states     *StateStore
	templates  *Templates
	logger     *log.Logger
}

// NewHandlers creates a new Handlers instance. stats may be nil.
func NewHandlers(a Authorizer, np NowPlaying, stats StatsSource, states *StateStore, templates *Templates, logger *log.Logger) *Handlers {
	return &Handlers{
		auth:       a,
		nowPlaying: np,
		stats:      stats,
		states:     states,
		templates:  templates,
		logger:     logger,
	}
}

// Home handles the home page (GET /).
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	data := HomePageData{
		PageData: PageData{
			Title:       "Now Playing",
			CurrentPath: r.URL.Path,
		},
		ShowStats: h.stats != nil,
	}

	status, err := h.auth.Status(r.Context())
	if err != nil {
		h.logger.Warn("reading auth status", "err", err)
	} else {
		data.Authorized = status.State != auth.StateUnauthorized
		data.TokenState = status.State.String()
		data.ExpiresAt = status.ExpiresAt
		data.GrantID = status.GrantID
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.Render(w, "home", data); err != nil {
		h.logger.Error("rendering home", "err", err)
		http.Error(w, "Failed to render template", http.StatusInternalServerError)
		return
	}
}

// Login starts the Spotify authorization flow (GET /login).
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	authz, err := h.auth.BeginAuthorization()
	if err != nil {
		h.logger.Error("beginning authorization", "err", err)
		writeError(w, r, h.logger, "failed to generate state", http.StatusInternalServerError)
		return
	}

	h.states.Add(authz.State)
	setStateCookie(w, authz.State)

	http.Redirect(w, r, authz.URL, http.StatusFound)
}

// callbackResponse is returned once the authorization is stored.
type callbackResponse struct {
	Success   bool  `json:"success"`
	Stored    bool  `json:"stored"`
	ExpiresAt int64 `json:"expires_at"`
}

// Callback handles the OAuth redirect from Spotify (GET /callback).
func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	// The state is single use whatever the outcome.
	state := q.Get("state")
	issued := h.states.Consume(state)
	clearStateCookie(w)

	if errMsg := q.Get("error"); errMsg != "" {
		writeError(w, r, h.logger, "spotify authorization error: "+errMsg, http.StatusBadRequest)
		return
	}

	code := q.Get("code")
	if code == "" {
		writeError(w, r, h.logger, "missing code", http.StatusBadRequest)
		return
	}

	cookie, err := r.Cookie(stateCookieName)
	if err != nil || !issued || cookie.Value != state {
		h.logger.Warn("rejected callback with unknown state", "issued", issued, "cookie", err == nil)
		writeError(w, r, h.logger, "state mismatch", http.StatusBadRequest)
		return
	}

	rec, err := h.auth.CompleteAuthorization(r.Context(), code)
	if err != nil {
		h.logger.Error("completing authorization", "err", err)
		writeError(w, r, h.logger, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, r, h.logger, callbackResponse{
		Success:   true,
		Stored:    rec.RefreshToken != "",
		ExpiresAt: rec.ExpiresAt.UnixMilli(),
	}, http.StatusOK)
}

// NowPlaying serves the current playback snapshot (GET /spotify/now-playing).
func (h *Handlers) NowPlaying(w http.ResponseWriter, r *http.Request) {
	snap, err := h.nowPlaying.Current(r.Context())
	if err != nil {
		status := nowPlayingStatus(err)
		h.logger.Warn("now playing failed", "status", status, "err", err)
		writeError(w, r, h.logger, err.Error(), status)
		return
	}
	writeJSON(w, r, h.logger, snap, http.StatusOK)
}

// nowPlayingStatus maps a fetch error to the response status.
func nowPlayingStatus(err error) int {
	var upErr *spotify.UpstreamError
	switch {
	case errors.Is(err, spotify.ErrRetryable):
		return http.StatusBadGateway
	case errors.As(err, &upErr):
		return upErr.Status
	default:
		return http.StatusInternalServerError
	}
}

// Logout deletes the stored credentials (GET /spotify/logout).
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.auth.Revoke(r.Context()); err != nil {
		h.logger.Error("revoking credentials", "err", err)
		writeError(w, r, h.logger, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, h.logger, map[string]bool{"ok": true}, http.StatusOK)
}

// GitHubStats serves repository statistics (GET /github/stats).
func (h *Handlers) GitHubStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		writeError(w, r, h.logger, "github stats not configured", http.StatusServiceUnavailable)
		return
	}
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		h.logger.Error("github stats", "err", err)
		writeError(w, r, h.logger, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, r, h.logger, stats, http.StatusOK)
}

// Health is the liveness probe (GET /healthz).
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, h.logger, map[string]bool{"ok": true}, http.StatusOK)
}
