// Package jina provides a client for the Jina AI reader and search API.
package jina

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enrich/internal/resilience"
)

// Client defines the Jina operations used for source discovery.
type Client interface {
	// Read fetches a URL through the reader and returns markdown content.
	Read(ctx context.Context, targetURL string) (*ReadResponse, error)
	// Search runs a web search and returns ranked results.
	Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error)
}

// Option configures the Jina client.
type Option func(*httpClient)

// WithBaseURL sets the reader base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = u }
}

// WithSearchBaseURL sets the search base URL.
func WithSearchBaseURL(u string) Option {
	return func(c *httpClient) { c.searchBaseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithBackoff overrides the retry policy for transient HTTP failures.
func WithBackoff(b resilience.Backoff) Option {
	return func(c *httpClient) { c.backoff = b }
}

type httpClient struct {
	apiKey        string
	baseURL       string
	searchBaseURL string
	http          *http.Client
	backoff       resilience.Backoff
}

// NewClient creates a Jina client.
func NewClient(apiKey string, opts ...Option) Client {
	b := resilience.DefaultBackoff()
	b.InitialBackoff = time.Second
	b.OnRetry = resilience.RetryLogger("jina", "http")

	c := &httpClient{
		apiKey:        apiKey,
		baseURL:       "https://r.jina.ai",
		searchBaseURL: "https://s.jina.ai",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		backoff: b,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type httpResult struct {
	status int
	body   []byte
}

// do sends req, retrying network errors and transient statuses. The final
// status is returned even when it is not 200 so callers can special-case it.
func (c *httpClient) do(ctx context.Context, req *http.Request) (httpResult, error) {
	return resilience.DoVal(ctx, c.backoff, func(ctx context.Context) (httpResult, error) {
		resp, err := c.http.Do(req.Clone(ctx))
		if err != nil {
			return httpResult{}, resilience.NewTransientError(err, 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return httpResult{}, eris.Wrap(err, "jina: read response body")
		}
		if resilience.IsTransientStatus(resp.StatusCode) {
			return httpResult{}, resilience.NewTransientError(
				eris.Errorf("jina: status %d: %s", resp.StatusCode, truncate(body)), resp.StatusCode)
		}
		return httpResult{status: resp.StatusCode, body: body}, nil
	})
}

func (c *httpClient) newRequest(ctx context.Context, u string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, eris.Wrap(err, "jina: create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func truncate(b []byte) string {
	const limit = 200
	if len(b) > limit {
		return string(b[:limit])
	}
	return string(b)
}
