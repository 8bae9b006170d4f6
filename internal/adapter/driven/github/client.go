// Package github implements the PlatformAccountAdapter port for GitHub user
// blocking using the go-github library.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/blocksync/internal/adapter/driven/session"
	"github.com/ericfisherdev/blocksync/internal/domain/model"
	"github.com/ericfisherdev/blocksync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PlatformAccountAdapter = (*Client)(nil)

// Client blocks and unblocks GitHub users for the account owning the stored
// bearer token. The underlying go-github client is rebuilt whenever the
// session yields a different token.
type Client struct {
	session *session.Session
	build   func(token string) *gh.Client

	mu    sync.Mutex
	token string
	gh    *gh.Client
}

// NewClient creates a GitHub adapter with the following transport stack:
//  1. httpcache (ETag-based conditional request caching for lookups and lists)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with bearer auth)
func NewClient(sess *session.Session, timeout time.Duration) *Client {
	return &Client{
		session: sess,
		build: func(token string) *gh.Client {
			cacheTransport := httpcache.NewMemoryCacheTransport()
			rateLimitClient := github_ratelimit.NewClient(cacheTransport)
			rateLimitClient.Timeout = timeout
			return gh.NewClient(rateLimitClient).WithAuthToken(token)
		},
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(sess *session.Session, httpClient *http.Client, baseURL string) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	return &Client{
		session: sess,
		build: func(token string) *gh.Client {
			client := gh.NewClient(httpClient).WithAuthToken(token)
			client.BaseURL = u
			return client
		},
	}, nil
}

// Platform returns model.PlatformGitHub.
func (c *Client) Platform() model.Platform {
	return model.PlatformGitHub
}

// Block blocks the user. GitHub answers 204 on success; a 404 means the user
// does not exist and is treated as success.
func (c *Client) Block(ctx context.Context, handle string) bool {
	client, ok := c.client(ctx, "block", handle)
	if !ok {
		return false
	}

	resp, err := client.Users.BlockUser(ctx, handle)
	logRateLimit(resp, "block")
	return c.outcome("block", handle, resp, err)
}

// Unblock looks the user up before unblocking. A lookup 404 means there is
// nothing to unblock; any other lookup failure aborts without the DELETE call.
func (c *Client) Unblock(ctx context.Context, handle string) bool {
	client, ok := c.client(ctx, "unblock", handle)
	if !ok {
		return false
	}

	user, resp, err := client.Users.Get(ctx, handle)
	logRateLimit(resp, "user")
	if err != nil {
		if isStatus(resp, http.StatusNotFound) {
			slog.Info("github user not found, nothing to unblock", "handle", handle)
			return true
		}
		c.checkAuth(resp)
		slog.Warn("github user lookup failed", "handle", handle, "error", err)
		return false
	}

	resp, err = client.Users.UnblockUser(ctx, user.GetLogin())
	logRateLimit(resp, "unblock")
	return c.outcome("unblock", handle, resp, err)
}

// BlockedAccounts lists every user blocked by the authenticated account.
// It handles pagination automatically.
func (c *Client) BlockedAccounts(ctx context.Context) ([]model.RemoteAccount, error) {
	client, err := c.currentClient(ctx)
	if err != nil {
		return nil, err
	}

	opts := &gh.ListOptions{PerPage: 100}
	accounts := []model.RemoteAccount{}

	for {
		users, resp, err := client.Users.ListBlockedUsers(ctx, opts)
		if err != nil {
			c.checkAuth(resp)
			return nil, fmt.Errorf("listing blocked users (page %d): %w", opts.Page, err)
		}

		logRateLimit(resp, "blocks")

		for _, u := range users {
			accounts = append(accounts, model.RemoteAccount{
				ID:     strconv.FormatInt(u.GetID(), 10),
				Handle: u.GetLogin(),
				Name:   u.GetName(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return accounts, nil
}

// client returns a go-github client or logs why none is available.
func (c *Client) client(ctx context.Context, op, handle string) (*gh.Client, bool) {
	client, err := c.currentClient(ctx)
	if err != nil {
		slog.Warn("github credentials unavailable", "op", op, "handle", handle, "error", err)
		return nil, false
	}
	return client, true
}

// currentClient returns the go-github client for the session's current token.
func (c *Client) currentClient(ctx context.Context) (*gh.Client, error) {
	bundle, err := c.session.Bundle(ctx)
	if err != nil {
		return nil, err
	}

	token := strings.TrimSpace(strings.TrimPrefix(bundle.JWT, "Bearer "))
	if token == "" {
		return nil, fmt.Errorf("github: bearer token missing: %w", session.ErrNoCredentials)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gh == nil || c.token != token {
		c.gh = c.build(token)
		c.token = token
	}
	return c.gh, nil
}

// outcome maps a block/unblock result to the boolean contract.
func (c *Client) outcome(op, handle string, resp *gh.Response, err error) bool {
	if err == nil {
		slog.Debug("github "+op+" succeeded", "handle", handle)
		return true
	}
	if isStatus(resp, http.StatusNotFound) {
		slog.Info("github user not found, treating "+op+" as done", "handle", handle)
		return true
	}

	c.checkAuth(resp)

	var rateErr *gh.RateLimitError
	if errors.As(err, &rateErr) {
		slog.Warn("github "+op+" rate limited", "handle", handle, "reset_in", time.Until(rateErr.Rate.Reset.Time).Round(time.Second))
		return false
	}

	slog.Warn("github "+op+" failed", "handle", handle, "error", err)
	return false
}

// checkAuth drops cached credentials when GitHub rejects them.
func (c *Client) checkAuth(resp *gh.Response) {
	if isStatus(resp, http.StatusUnauthorized) {
		c.session.Invalidate()
	}
}

func isStatus(resp *gh.Response, status int) bool {
	return resp != nil && resp.Response != nil && resp.StatusCode == status
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}
