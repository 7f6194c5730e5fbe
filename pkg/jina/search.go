package jina

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rotisserie/eris"
)

// SearchResponse is the parsed search response.
type SearchResponse struct {
	Code int            `json:"code"`
	Data []SearchResult `json:"data"`
}

// SearchResult is a single search hit.
type SearchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Content     string `json:"content"`
	Description string `json:"description"`
}

// SearchOption configures a search request.
type SearchOption func(*searchOpts)

type searchOpts struct {
	siteFilter string
	count      int
}

// WithSiteFilter restricts results to one domain.
func WithSiteFilter(domain string) SearchOption {
	return func(o *searchOpts) { o.siteFilter = domain }
}

// WithResultCount caps the number of results returned.
func WithResultCount(n int) SearchOption {
	return func(o *searchOpts) { o.count = n }
}

func (c *httpClient) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error) {
	so := &searchOpts{}
	for _, opt := range opts {
		opt(so)
	}

	params := url.Values{}
	if so.siteFilter != "" {
		params.Set("site", so.siteFilter)
	}
	if so.count > 0 {
		params.Set("num", strconv.Itoa(so.count))
	}
	u := c.searchBaseURL + "/" + url.PathEscape(query)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := c.newRequest(ctx, u)
	if err != nil {
		return nil, err
	}
	// Skip full-page reads; discovery hydrates pages separately.
	req.Header.Set("X-Respond-With", "no-content")

	res, err := c.do(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "jina: search request failed")
	}

	// 422 means the query produced no results.
	if res.status == http.StatusUnprocessableEntity {
		return &SearchResponse{Code: res.status}, nil
	}
	if res.status != http.StatusOK {
		return nil, eris.Errorf("jina: search unexpected status %d: %s", res.status, truncate(res.body))
	}

	var out SearchResponse
	if err := json.Unmarshal(res.body, &out); err != nil {
		return nil, eris.Wrap(err, "jina: unmarshal search response")
	}
	if so.count > 0 && len(out.Data) > so.count {
		out.Data = out.Data[:so.count]
	}
	return &out, nil
}
