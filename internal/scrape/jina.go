package scrape

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enrich/internal/resilience"
	"github.com/sells-group/catalog-enrich/pkg/jina"
)

// JinaScraper reads pages through the Jina reader. Three consecutive
// failures open its breaker for a minute so the chain falls through fast.
type JinaScraper struct {
	client  jina.Client
	breaker *resilience.CircuitBreaker
}

// NewJinaScraper wraps a Jina client.
func NewJinaScraper(client jina.Client) *JinaScraper {
	return &JinaScraper{client: client, breaker: resilience.NewCircuitBreaker(3, time.Minute)}
}

func (j *JinaScraper) Name() string { return "jina" }

func (j *JinaScraper) Scrape(ctx context.Context, targetURL string) (*Page, error) {
	return resilience.BreakerVal(ctx, j.breaker, func(ctx context.Context) (*Page, error) {
		resp, err := j.client.Read(ctx, targetURL)
		if err != nil {
			return nil, err
		}
		if unusable(resp) {
			return nil, eris.Errorf("jina: unusable content for %s", targetURL)
		}
		u := resp.Data.URL
		if u == "" {
			u = targetURL
		}
		return &Page{
			URL:     u,
			Title:   resp.Data.Title,
			Content: resp.Data.Content,
			Images:  resp.Data.ImageURLs(),
			Source:  j.Name(),
		}, nil
	})
}

var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"just a moment",
	"attention required",
}

// unusable reports whether a reader response is empty or a bot-challenge
// page rather than the product page.
func unusable(resp *jina.ReadResponse) bool {
	if resp == nil || (resp.Code != 0 && resp.Code != 200) {
		return true
	}
	content := strings.TrimSpace(resp.Data.Content)
	if len(content) < 100 {
		return true
	}
	if len(content) < 1000 {
		lower := strings.ToLower(content)
		for _, sig := range challengeSignatures {
			if strings.Contains(lower, sig) {
				return true
			}
		}
	}
	return false
}
