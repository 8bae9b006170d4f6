// Package twitter implements the PlatformAccountAdapter port against the X
// (Twitter) v1.1 REST API, authenticating with credentials captured from the
// user's browser session.
package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/blocksync/internal/adapter/driven/session"
	"github.com/ericfisherdev/blocksync/internal/domain/model"
	"github.com/ericfisherdev/blocksync/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PlatformAccountAdapter = (*Account)(nil)

// DefaultBaseURL is the production X REST API host.
const DefaultBaseURL = "https://api.x.com"

const (
	blockPath     = "/1.1/blocks/create.json"
	unblockPath   = "/1.1/blocks/destroy.json"
	listPath      = "/1.1/blocks/list.json"
	userShowPath  = "/1.1/users/show.json"
	maxListPages  = 500
	maxErrorBytes = 2048
	maxBodyBytes  = 4 << 20
)

// Account blocks and unblocks X handles for the authenticated user.
type Account struct {
	session *session.Session
	http    *http.Client
	baseURL string
}

// NewAccount creates an Account using an HTTP client with the given per-request timeout.
func NewAccount(sess *session.Session, baseURL string, timeout time.Duration) (*Account, error) {
	return NewAccountWithHTTPClient(sess, &http.Client{Timeout: timeout}, baseURL)
}

// NewAccountWithHTTPClient creates an Account with a custom http.Client and base URL.
// Tests use it to point the adapter at an httptest server.
func NewAccountWithHTTPClient(sess *session.Session, httpClient *http.Client, baseURL string) (*Account, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parsing base URL %q: scheme and host required", baseURL)
	}

	return &Account{
		session: sess,
		http:    httpClient,
		baseURL: strings.TrimRight(u.String(), "/"),
	}, nil
}

// Platform returns model.PlatformTwitter.
func (a *Account) Platform() model.Platform {
	return model.PlatformTwitter
}

// Block blocks the handle by screen name. A 404 means the account no longer
// exists and counts as success.
func (a *Account) Block(ctx context.Context, handle string) bool {
	bundle, ok := a.credentials(ctx, "block", handle)
	if !ok {
		return false
	}

	status, body, err := a.do(ctx, bundle, http.MethodPost, blockPath, url.Values{"screen_name": {handle}})
	if err != nil {
		slog.Warn("twitter block request failed", "handle", handle, "error", err)
		return false
	}
	return a.outcome("block", handle, status, body)
}

// Unblock resolves the handle to its numeric user ID and unblocks it. If the
// lookup fails for any reason other than 404 the unblock call is not made.
func (a *Account) Unblock(ctx context.Context, handle string) bool {
	bundle, ok := a.credentials(ctx, "unblock", handle)
	if !ok {
		return false
	}

	userID, found, err := a.lookupUserID(ctx, bundle, handle)
	if err != nil {
		slog.Warn("twitter user lookup failed", "handle", handle, "error", err)
		return false
	}
	if !found {
		slog.Info("twitter user not found, nothing to unblock", "handle", handle)
		return true
	}

	status, body, err := a.do(ctx, bundle, http.MethodPost, unblockPath, url.Values{"user_id": {userID}})
	if err != nil {
		slog.Warn("twitter unblock request failed", "handle", handle, "error", err)
		return false
	}
	return a.outcome("unblock", handle, status, body)
}

// BlockedAccounts pages through the authenticated user's block list.
func (a *Account) BlockedAccounts(ctx context.Context) ([]model.RemoteAccount, error) {
	bundle, err := a.session.Bundle(ctx)
	if err != nil {
		return nil, err
	}
	if !hasRequiredTokens(bundle) {
		return nil, fmt.Errorf("twitter: missing jwt or csrf token: %w", session.ErrNoCredentials)
	}

	accounts := []model.RemoteAccount{}
	cursor := "-1"

	for page := 0; page < maxListPages; page++ {
		q := url.Values{
			"cursor":           {cursor},
			"skip_status":      {"true"},
			"include_entities": {"false"},
		}
		status, body, err := a.do(ctx, bundle, http.MethodGet, listPath+"?"+q.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("listing twitter blocks (cursor %s): %w", cursor, err)
		}
		if status != http.StatusOK {
			a.checkAuth(status)
			return nil, fmt.Errorf("listing twitter blocks (cursor %s): status %d: %s", cursor, status, snippet(body))
		}

		var resp blockListResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("decoding twitter block list: %w", err)
		}
		for _, u := range resp.Users {
			accounts = append(accounts, model.RemoteAccount{
				ID:     u.IDStr,
				Handle: u.ScreenName,
				Name:   u.Name,
			})
		}

		next := resp.NextCursorStr
		if next == "" && resp.NextCursor != 0 {
			next = strconv.FormatInt(resp.NextCursor, 10)
		}
		if next == "" || next == "0" {
			return accounts, nil
		}
		cursor = next
	}

	return nil, fmt.Errorf("listing twitter blocks: exceeded %d pages", maxListPages)
}

// credentials loads the session bundle and checks the tokens every call needs.
func (a *Account) credentials(ctx context.Context, op, handle string) (model.CredentialBundle, bool) {
	bundle, err := a.session.Bundle(ctx)
	if err != nil {
		slog.Warn("twitter credentials unavailable", "op", op, "handle", handle, "error", err)
		return model.CredentialBundle{}, false
	}
	if !hasRequiredTokens(bundle) {
		slog.Warn("twitter credentials incomplete: jwt and csrf token required", "op", op, "handle", handle)
		return model.CredentialBundle{}, false
	}
	return bundle, true
}

// lookupUserID resolves a screen name to its id_str. found is false on 404.
func (a *Account) lookupUserID(ctx context.Context, bundle model.CredentialBundle, handle string) (string, bool, error) {
	q := url.Values{"screen_name": {handle}, "include_entities": {"false"}}
	status, body, err := a.do(ctx, bundle, http.MethodGet, userShowPath+"?"+q.Encode(), nil)
	if err != nil {
		return "", false, err
	}

	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", false, nil
	default:
		a.checkAuth(status)
		return "", false, fmt.Errorf("status %d: %s", status, snippet(body))
	}

	var u userJSON
	if err := json.Unmarshal(body, &u); err != nil {
		return "", false, fmt.Errorf("decoding user: %w", err)
	}
	if u.IDStr == "" {
		return "", false, fmt.Errorf("user %q has no id_str", handle)
	}
	return u.IDStr, true, nil
}

// outcome maps a block/unblock response status to the boolean contract.
func (a *Account) outcome(op, handle string, status int, body []byte) bool {
	switch status {
	case http.StatusOK:
		slog.Debug("twitter "+op+" succeeded", "handle", handle)
		return true
	case http.StatusNotFound:
		slog.Info("twitter user not found, treating "+op+" as done", "handle", handle)
		return true
	default:
		a.checkAuth(status)
		slog.Warn("twitter "+op+" failed", "handle", handle, "status", status, "body", snippet(body))
		return false
	}
}

// checkAuth drops cached credentials when the remote rejects them.
func (a *Account) checkAuth(status int) {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		a.session.Invalidate()
	}
}

// do issues an authenticated request. form, when non-nil, is sent as an
// application/x-www-form-urlencoded body.
func (a *Account) do(ctx context.Context, bundle model.CredentialBundle, method, path string, form url.Values) (int, []byte, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return 0, nil, fmt.Errorf("building request: %w", err)
	}
	setAuthHeaders(req, bundle)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	logRateLimit(resp, path)

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}
	if len(data) > maxBodyBytes {
		return resp.StatusCode, nil, fmt.Errorf("response body exceeds %d bytes", maxBodyBytes)
	}
	return resp.StatusCode, data, nil
}

// setAuthHeaders applies the bearer token, CSRF header and session cookies.
func setAuthHeaders(req *http.Request, bundle model.CredentialBundle) {
	authz := bundle.JWT
	if !strings.HasPrefix(authz, "Bearer ") {
		authz = "Bearer " + authz
	}
	req.Header.Set("Authorization", authz)
	req.Header.Set("X-Csrf-Token", bundle.CSRFToken)

	cookie := "ct0=" + bundle.CSRFToken
	if bundle.AuthCookie != "" {
		cookie += "; auth_token=" + bundle.AuthCookie
	}
	req.Header.Set("Cookie", cookie)
}

func hasRequiredTokens(b model.CredentialBundle) bool {
	return b.JWT != "" && b.CSRFToken != ""
}

// logRateLimit logs the X rate limit headers after each call.
func logRateLimit(resp *http.Response, endpoint string) {
	remaining := resp.Header.Get("X-Rate-Limit-Remaining")
	if remaining == "" {
		return
	}

	slog.Debug("twitter api call",
		"endpoint", endpoint,
		"status", resp.StatusCode,
		"rate_remaining", remaining,
		"rate_limit", resp.Header.Get("X-Rate-Limit-Limit"),
	)

	if n, err := strconv.Atoi(remaining); err == nil && n < 5 {
		var resetIn time.Duration
		if reset, err := strconv.ParseInt(resp.Header.Get("X-Rate-Limit-Reset"), 10, 64); err == nil {
			resetIn = time.Until(time.Unix(reset, 0)).Round(time.Second)
		}
		slog.Warn("twitter rate limit low", "endpoint", endpoint, "remaining", n, "reset_in", resetIn)
	}
}

// snippet truncates a response body for logging.
func snippet(body []byte) string {
	if len(body) > maxErrorBytes {
		return string(body[:maxErrorBytes]) + "..."
	}
	return string(body)
}
