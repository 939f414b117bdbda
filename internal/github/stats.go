// Package github reads public profile statistics for the site owner.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/go-github/v80/github"
)

// DefaultTimeout bounds each call to the GitHub API.
const DefaultTimeout = 10 * time.Second

// maxRepoPages caps repository pagination.
const maxRepoPages = 10

// Stats is the payload served at /github/stats.
type Stats struct {
	RepoCount   int `json:"repoCount"`
	StarCount   int `json:"starCount"`
	CommitCount int `json:"commitCount"`
}

// StatsClient computes Stats for one GitHub user. It keeps no state between
// calls.
type StatsClient struct {
	client *github.Client
	user   string
	logger *log.Logger
}

// Option customizes a StatsClient.
type Option func(*StatsClient) error

// WithBaseURL points the client at another API root.
func WithBaseURL(baseURL string) Option {
	return func(c *StatsClient) error {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return fmt.Errorf("parsing github base URL: %w", err)
		}
		c.client.BaseURL = u
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *StatsClient) error {
		c.logger = l
		return nil
	}
}

// NewStatsClient creates a client for user. token may be empty, in which case
// requests are unauthenticated and subject to the anonymous rate limit.
func NewStatsClient(user, token string, timeout time.Duration, opts ...Option) (*StatsClient, error) {
	if user == "" {
		return nil, fmt.Errorf("github user is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := github.NewClient(&http.Client{Timeout: timeout})
	if token != "" {
		client = client.WithAuthToken(token)
	}

	c := &StatsClient{
		client: client,
		user:   user,
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Stats counts the user's repositories, the stars across them, and the commits
// in the most recent page of public push events.
func (c *StatsClient) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	opts := &github.RepositoryListByUserOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for page := 0; page < maxRepoPages; page++ {
		repos, resp, err := c.client.Repositories.ListByUser(ctx, c.user, opts)
		if err != nil {
			return Stats{}, fmt.Errorf("listing repositories for %s: %w", c.user, err)
		}
		for _, repo := range repos {
			stats.RepoCount++
			stats.StarCount += repo.GetStargazersCount()
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	events, _, err := c.client.Activity.ListEventsPerformedByUser(ctx, c.user, true, &github.ListOptions{PerPage: 100})
	if err != nil {
		return Stats{}, fmt.Errorf("listing events for %s: %w", c.user, err)
	}
	for _, ev := range events {
		if ev.GetType() != "PushEvent" {
			continue
		}
		stats.CommitCount += pushCommits(ev)
	}

	c.logger.Debug("github stats", "user", c.user, "repos", stats.RepoCount, "stars", stats.StarCount, "commits", stats.CommitCount)
	return stats, nil
}

// pushPayload is the part of a PushEvent payload we count.
type pushPayload struct {
	Commits []json.RawMessage `json:"commits"`
}

func pushCommits(ev *github.Event) int {
	if ev.RawPayload == nil {
		return 0
	}
	var p pushPayload
	if err := json.Unmarshal(*ev.RawPayload, &p); err != nil {
		return 0
	}
	return len(p.Commits)
}
