// Package discovery finds candidate reference pages for a catalog item,
// ranks them by source-domain trust and hydrates their content.
package discovery

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/catalog-enrich/internal/config"
	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/resilience"
	"github.com/sells-group/catalog-enrich/internal/scrape"
	"github.com/sells-group/catalog-enrich/pkg/jina"
)

// Fetcher hydrates a single page. *scrape.Chain satisfies it.
type Fetcher interface {
	Scrape(ctx context.Context, url string) (*scrape.Page, error)
}

// Discoverer is the source discovery boundary the pipeline consumes.
type Discoverer interface {
	Discover(ctx context.Context, itemName string, v model.VisionResult, cfg config.PipelineConfig) ([]model.SourceCandidate, error)
	FetchContent(ctx context.Context, cands []model.SourceCandidate) ([]model.SourceCandidate, error)
}

// Service implements Discoverer over Jina search and a page fetcher.
type Service struct {
	search      jina.Client
	fetcher     Fetcher
	trust       *TrustTable
	limiter     *rate.Limiter
	cfg         config.DiscoveryConfig
	concurrency int
}

// New creates a discovery Service.
func New(search jina.Client, fetcher Fetcher, trust *TrustTable, cfg config.DiscoveryConfig) *Service {
	if trust == nil {
		trust = NewTrustTable(cfg.ManufacturerDomains)
	}
	if cfg.ResultsPerQuery <= 0 {
		cfg.ResultsPerQuery = 5
	}
	if cfg.FetchTimeoutSecs <= 0 {
		cfg.FetchTimeoutSecs = 20
	}
	return &Service{
		search:      search,
		fetcher:     fetcher,
		trust:       trust,
		limiter:     rate.NewLimiter(rate.Limit(2), 1),
		cfg:         cfg,
		concurrency: 5,
	}
}

// Discover searches for pages describing the item and returns them ranked
// by trust, capped at cfg.MaxSourcesPerItem. It errors only when every
// search query failed.
func (s *Service) Discover(ctx context.Context, itemName string, v model.VisionResult, cfg config.PipelineConfig) ([]model.SourceCandidate, error) {
	log := zap.L().With(zap.String("item_name", itemName))
	queries := BuildQueries(itemName, v)
	if len(queries) == 0 {
		return nil, eris.New("discovery: no search query for empty item name")
	}

	seen := make(map[string]bool)
	var cands []model.SourceCandidate
	var failures int
	var lastErr error

	for _, q := range queries {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "discovery: rate limiter")
		}
		resp, err := s.search.Search(ctx, q, jina.WithResultCount(s.cfg.ResultsPerQuery))
		if err != nil {
			failures++
			lastErr = err
			log.Warn("discovery: search failed", zap.String("query", q), zap.Error(err))
			continue
		}
		for _, r := range resp.Data {
			key := NormalizeURL(r.URL)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			cands = append(cands, s.candidate(r))
		}
	}

	if failures == len(queries) {
		return nil, eris.Wrap(lastErr, "discovery: all search queries failed")
	}

	ranked := Rank(cands, cfg.MaxSourcesPerItem)
	log.Info("discovery: candidates found",
		zap.Int("queries", len(queries)),
		zap.Int("unique", len(cands)),
		zap.Int("kept", len(ranked)),
	)
	return ranked, nil
}

func (s *Service) candidate(r jina.SearchResult) model.SourceCandidate {
	trust := s.trust.Level(r.URL)
	content := r.Content
	if content == "" {
		content = r.Description
	}
	site := hostOf(r.URL)
	c := model.SourceCandidate{
		URL:        r.URL,
		SourceType: SourceTypeFor(trust),
		SourceName: site,
		TrustLevel: trust,
		PageTitle:  r.Title,
	}
	applyContent(&c, r.Title, content, nil)
	return c
}

// FetchContent hydrates candidates whose content is shorter than the
// configured minimum. A failed fetch leaves the candidate as it was.
func (s *Service) FetchContent(ctx context.Context, cands []model.SourceCandidate) ([]model.SourceCandidate, error) {
	out := make([]model.SourceCandidate, len(cands))
	copy(out, cands)

	var mu sync.Mutex
	hydrated := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range out {
		if len(strings.TrimSpace(out[i].PageContent)) >= s.cfg.MinContentChars {
			continue
		}
		g.Go(func() error {
			defer resilience.Recover("discovery: fetch "+out[i].URL, nil)
			fctx, cancel := context.WithTimeout(gctx, time.Duration(s.cfg.FetchTimeoutSecs)*time.Second)
			defer cancel()

			page, err := s.fetcher.Scrape(fctx, out[i].URL)
			if err != nil {
				zap.L().Warn("discovery: fetch failed, keeping snippet",
					zap.String("url", out[i].URL), zap.Error(err))
				return nil
			}
			title := page.Title
			if title == "" {
				title = out[i].PageTitle
			}
			applyContent(&out[i], title, page.Content, page.Images)
			mu.Lock()
			hydrated++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return out, eris.Wrap(err, "discovery: fetch content")
	}
	zap.L().Debug("discovery: content hydrated", zap.Int("hydrated", hydrated), zap.Int("candidates", len(out)))
	return out, nil
}

func applyContent(c *model.SourceCandidate, title, content string, images []string) {
	c.PageTitle = title
	c.PageContent = content
	c.ExtractedProductName = ProductNameFromTitle(title, c.SourceName)
	c.ExtractedSKU = ExtractSKU(content)
	imgs := append([]string(nil), images...)
	for _, u := range ExtractImages(content) {
		if !contains(imgs, u) {
			imgs = append(imgs, u)
		}
	}
	c.ExtractedImages = imgs
}

// BuildQueries returns the distinct search queries for an item: its name,
// its name with each SKU-like detected token, and its name with category and
// first material.
func BuildQueries(itemName string, v model.VisionResult) []string {
	name := strings.TrimSpace(itemName)
	if name == "" {
		return nil
	}
	queries := []string{name}
	add := func(q string) {
		q = strings.Join(strings.Fields(q), " ")
		if !contains(queries, q) {
			queries = append(queries, q)
		}
	}
	for _, tok := range v.DetectedText {
		tok = strings.TrimSpace(tok)
		if looksLikeSKU(tok) && !strings.Contains(strings.ToLower(name), strings.ToLower(tok)) {
			add(name + " " + tok)
		}
	}
	if v.Category != "" && v.Category != "unknown" {
		q := name + " " + v.Category
		if len(v.Materials) > 0 {
			q += " " + v.Materials[0]
		}
		add(q)
	}
	return queries
}

// Rank orders candidates by trust (highest first, stable on ties) and
// truncates to limit when limit > 0.
func Rank(cands []model.SourceCandidate, limit int) []model.SourceCandidate {
	out := make([]model.SourceCandidate, len(cands))
	copy(out, cands)
	sort.SliceStable(out, func(i, j int) bool { return out[i].TrustLevel > out[j].TrustLevel })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// NormalizeURL returns a comparison key for a URL: lowercased host without
// www, no fragment, no tracking parameters and no trailing slash.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	q := u.Query()
	for k := range q {
		if strings.HasPrefix(strings.ToLower(k), "utm_") {
			q.Del(k)
		}
	}
	key := normalizeHost(u.Hostname()) + strings.TrimSuffix(u.EscapedPath(), "/")
	if enc := q.Encode(); enc != "" {
		key += "?" + enc
	}
	return key
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
