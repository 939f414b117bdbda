package web

import (
	"net/http"
	"sync"
	"time"
)

const (
	stateCookieName = "oauth_state"
	stateTTL        = 5 * time.Minute
	// maxStates bounds outstanding /login states; the oldest is evicted first.
	maxStates = 64
)

// StateStore remembers anti-forgery states issued by /login until they are
// consumed by /callback or expire.
type StateStore struct {
	mu     sync.Mutex
	states map[string]time.Time
	ttl    time.Duration
	now    func() time.Time
}

// NewStateStore creates an in-memory state store.
func NewStateStore() *StateStore {
	return &StateStore{
		states: make(map[string]time.Time),
		ttl:    stateTTL,
		now:    time.Now,
	}
}

// Add records state as issued.
func (s *StateStore) Add(state string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.pruneLocked(now)
	for len(s.states) >= maxStates {
		s.evictOldestLocked()
	}
	s.states[state] = now.Add(s.ttl)
}

// Consume reports whether state was issued and has not expired. A state can
// be consumed once.
func (s *StateStore) Consume(state string) bool {
	if state == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expires, ok := s.states[state]
	delete(s.states, state)
	return ok && s.now().Before(expires)
}

// Len returns the number of outstanding states.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

func (s *StateStore) pruneLocked(now time.Time) {
	for state, expires := range s.states {
		if !now.Before(expires) {
			delete(s.states, state)
		}
	}
}

func (s *StateStore) evictOldestLocked() {
	var (
		oldest       string
		oldestExpiry time.Time
		found        bool
	)
	for state, expires := range s.states {
		if !found || expires.Before(oldestExpiry) {
			oldest, oldestExpiry, found = state, expires, true
		}
	}
	delete(s.states, oldest)
}

// setStateCookie stores state in a short-lived cookie for the callback.
func setStateCookie(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(stateTTL.Seconds()),
	})
}

// clearStateCookie removes the state cookie.
func clearStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
