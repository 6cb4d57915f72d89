// Package api is the client for the Semgrep AppSec Platform REST API. It
// serves the findings tool and the remote rule resources.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// bodyExcerptLimit bounds upstream error bodies quoted in error messages.
const bodyExcerptLimit = 2 * 1024

// AuthError means the credential is missing or was rejected upstream. It is
// detected before any network call when no token is configured at all.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "authentication failed: " + e.Reason }

// NetworkError wraps transport-level failures (DNS, connect, TLS, timeout).
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return "network error: " + e.Err.Error() }
func (e *NetworkError) Unwrap() error { return e.Err }

// UpstreamError is a non-2xx response from the platform that is not an
// authentication failure.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Body)
}

// FindingsQuery narrows the findings listing. All fields are optional.
type FindingsQuery struct {
	IssueType  string
	Status     string
	Repos      []string
	Severities []string
}

// Client talks to the Semgrep platform. The token is read-only after
// construction and is shared by all calls; it is never logged and never
// appears in returned errors.
type Client struct {
	baseURL string
	token   string
	http    *http.Client

	mu   sync.Mutex
	slug string // cached deployment slug
}

// NewClient creates a platform client. An empty token is allowed; only
// Findings requires one and fails fast without it.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Findings fetches the findings collection for the token's deployment.
// No retry is performed; callers needing resilience compose it themselves.
func (c *Client) Findings(ctx context.Context, q FindingsQuery) (json.RawMessage, error) {
	if c.token == "" {
		return nil, &AuthError{
			Reason: "no Semgrep app token configured; set SEMGREP_APP_TOKEN or run \"sidero auth set-token\"",
		}
	}

	slug, err := c.deploymentSlug(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/api/v1/deployments/%s/findings", c.baseURL, url.PathEscape(slug))
	body, err := c.get(ctx, endpoint, q.values())
	if err != nil {
		return nil, err
	}

	var out json.RawMessage
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &UpstreamError{Status: http.StatusOK, Body: "malformed findings payload"}
	}
	return out, nil
}

// FetchURL retrieves an arbitrary unauthenticated resource body (rule
// schema, published rule YAML).
func (c *Client) FetchURL(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &NetworkError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &UpstreamError{Status: resp.StatusCode, Body: excerpt(body)}
	}
	return string(body), nil
}

// deploymentSlug resolves the deployment the token belongs to. The slug is
// immutable for a token's lifetime, so the first answer is cached.
func (c *Client) deploymentSlug(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slug != "" {
		return c.slug, nil
	}

	body, err := c.get(ctx, c.baseURL+"/api/v1/deployments", nil)
	if err != nil {
		return "", err
	}

	var payload struct {
		Deployments []struct {
			Slug string `json:"slug"`
		} `json:"deployments"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", &UpstreamError{Status: http.StatusOK, Body: "malformed deployments payload"}
	}
	if len(payload.Deployments) == 0 {
		return "", &AuthError{Reason: "token has no deployments"}
	}

	c.slug = payload.Deployments[0].Slug
	return c.slug, nil
}

// get performs an authenticated GET and maps failures onto the error
// taxonomy. The response body is returned for 2xx only.
func (c *Client) get(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if len(query) > 0 {
		req.URL.RawQuery = query.Encode()
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &AuthError{Reason: fmt.Sprintf("platform rejected the token (status %d)", resp.StatusCode)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &UpstreamError{Status: resp.StatusCode, Body: excerpt(body)}
	}
	return body, nil
}

func (q FindingsQuery) values() url.Values {
	v := url.Values{}
	if q.IssueType != "" {
		v.Set("issue_type", q.IssueType)
	}
	if q.Status != "" {
		v.Set("status", q.Status)
	}
	if len(q.Repos) > 0 {
		v.Set("repos", strings.Join(q.Repos, ","))
	}
	if len(q.Severities) > 0 {
		v.Set("severities", strings.Join(q.Severities, ","))
	}
	return v
}

func excerpt(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > bodyExcerptLimit {
		return s[:bodyExcerptLimit] + "... [truncated]"
	}
	return s
}
