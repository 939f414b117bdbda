// Package spotify reads the account's playback state from the Spotify Web API.
package spotify

import (
	"net/http"
	"time"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
)

const (
	// DefaultBaseURL is the Spotify Web API root.
	DefaultBaseURL = "https://api.spotify.com/v1/"

	// DefaultTimeout bounds each call to the Web API.
	DefaultTimeout = 10 * time.Second
)

// statusTransport remembers the status of the last response so API failures
// can be classified even when the error body is empty.
type statusTransport struct {
	base   http.RoundTripper
	status int
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if resp != nil {
		t.status = resp.StatusCode
	}
	return resp, err
}

// newAPIClient builds a single-use API client authorized with accessToken.
func newAPIClient(accessToken, baseURL string, base http.RoundTripper, timeout time.Duration) (*spotify.Client, *statusTransport) {
	if base == nil {
		base = http.DefaultTransport
	}
	st := &statusTransport{base: base}
	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &oauth2.Transport{
			Base:   st,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
		},
	}
	return spotify.New(httpClient, spotify.WithBaseURL(baseURL)), st
}
