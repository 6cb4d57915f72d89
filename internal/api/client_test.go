package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindings(t *testing.T) {
	t.Run("missing token fails before any network call", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "")
		_, err := c.Findings(context.Background(), FindingsQuery{})

		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Contains(t, authErr.Reason, "SEMGREP_APP_TOKEN")
		assert.Zero(t, calls.Load())
	})

	t.Run("resolves slug then fetches findings", func(t *testing.T) {
		var deployments, findings atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
			switch r.URL.Path {
			case "/api/v1/deployments":
				deployments.Add(1)
				_, _ = w.Write([]byte(`{"deployments":[{"slug":"acme"},{"slug":"other"}]}`))
			case "/api/v1/deployments/acme/findings":
				findings.Add(1)
				assert.Equal(t, "high,critical", r.URL.Query().Get("severities"))
				assert.Equal(t, "acme/app,acme/api", r.URL.Query().Get("repos"))
				assert.Equal(t, "open", r.URL.Query().Get("status"))
				_, _ = w.Write([]byte(`{"findings":[{"rule_name":"x","severity":"high"}]}`))
			default:
				t.Errorf("unexpected path %s", r.URL.Path)
			}
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "tok-123")
		q := FindingsQuery{
			Status:     "open",
			Repos:      []string{"acme/app", "acme/api"},
			Severities: []string{"high", "critical"},
		}

		out, err := c.Findings(context.Background(), q)
		require.NoError(t, err)

		var payload map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(out, &payload))
		assert.Contains(t, payload, "findings")

		// Second call reuses the cached slug.
		_, err = c.Findings(context.Background(), q)
		require.NoError(t, err)
		assert.Equal(t, int32(1), deployments.Load())
		assert.Equal(t, int32(2), findings.Load())
	})

	t.Run("rejected token is an auth error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad token", http.StatusUnauthorized)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "stale")
		_, err := c.Findings(context.Background(), FindingsQuery{})

		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		// The token itself never appears in the error.
		assert.NotContains(t, err.Error(), "stale")
	})

	t.Run("no deployments is an auth error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"deployments":[]}`))
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "tok")
		_, err := c.Findings(context.Background(), FindingsQuery{})

		var authErr *AuthError
		assert.ErrorAs(t, err, &authErr)
	})

	t.Run("server error is an upstream error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "internal", http.StatusInternalServerError)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "tok")
		_, err := c.Findings(context.Background(), FindingsQuery{})

		var upErr *UpstreamError
		require.ErrorAs(t, err, &upErr)
		assert.Equal(t, http.StatusInternalServerError, upErr.Status)
		assert.Contains(t, upErr.Body, "internal")
	})

	t.Run("unreachable host is a network error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close() // immediately, so the port refuses connections

		c := NewClient(srv.URL, "tok")
		_, err := c.Findings(context.Background(), FindingsQuery{})

		var netErr *NetworkError
		assert.ErrorAs(t, err, &netErr)
	})
}

func TestFetchURL(t *testing.T) {
	t.Run("returns body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("rules:\n- id: x\n"))
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "")
		body, err := c.FetchURL(context.Background(), srv.URL+"/schema.yaml")
		require.NoError(t, err)
		assert.Contains(t, body, "id: x")
	})

	t.Run("non-2xx is an upstream error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "")
		_, err := c.FetchURL(context.Background(), srv.URL+"/missing")

		var upErr *UpstreamError
		require.ErrorAs(t, err, &upErr)
		assert.Equal(t, http.StatusNotFound, upErr.Status)
	})
}

func TestFindingsQueryValues(t *testing.T) {
	assert.Empty(t, FindingsQuery{}.values())

	v := FindingsQuery{IssueType: "sast", Severities: []string{"low"}}.values()
	assert.Equal(t, "sast", v.Get("issue_type"))
	assert.Equal(t, "low", v.Get("severities"))
	assert.Empty(t, v.Get("repos"))
}
