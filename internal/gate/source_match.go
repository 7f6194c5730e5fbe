// Package gate holds the verification gates an enrichment run passes
// through: source match, extraction, cross-source truth and write-back.
package gate

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/catalog-enrich/internal/config"
	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/oracle"
	"github.com/sells-group/catalog-enrich/internal/resilience"
)

// Gate 1 subscore weights.
const (
	skuWeight      = 0.40
	visualWeight   = 0.35
	semanticWeight = 0.25
)

// SourceMatcher decides whether a candidate page describes the item.
type SourceMatcher struct {
	oracle oracle.Oracle
}

// NewSourceMatcher creates a SourceMatcher.
func NewSourceMatcher(o oracle.Oracle) *SourceMatcher {
	return &SourceMatcher{oracle: o}
}

// Verify scores one candidate. Oracle failures zero the affected subscore.
func (m *SourceMatcher) Verify(ctx context.Context, v model.VisionResult, cand model.SourceCandidate, imageRef string, cfg config.PipelineConfig) model.Gate1Result {
	log := zap.L().With(zap.String("source_url", cand.URL))

	res := model.Gate1Result{
		SourceURL:     cand.URL,
		SKUMatchScore: SKUScore(v.DetectedText, cand.ExtractedSKU),
	}

	if cfg.EnableVisualComparison && imageRef != "" && len(cand.ExtractedImages) > 0 {
		cmp, err := m.oracle.CompareImages(ctx, imageRef, cand.ExtractedImages[0])
		switch {
		case err != nil:
			log.Warn("gate1: image comparison failed", zap.Error(err))
		case cmp != nil && cmp.Similar:
			res.VisualSimilarityScore = cmp.Confidence
		}
	}

	if cfg.EnableSemanticVerification {
		page := strings.TrimSpace(cand.PageTitle + "\n\n" + oracle.Window(cand.PageContent, oracle.ClaimWindow))
		cmp, err := m.oracle.CompareAttributes(ctx, v, page)
		switch {
		case err != nil:
			log.Warn("gate1: attribute comparison failed", zap.Error(err))
		case cmp != nil && cmp.Similar:
			res.SemanticMatchScore = cmp.Confidence
		}
	}

	res.Confidence = int(math.Round(
		float64(res.SKUMatchScore)*skuWeight +
			float64(res.VisualSimilarityScore)*visualWeight +
			float64(res.SemanticMatchScore)*semanticWeight,
	))
	res.Recommendation = Recommend(res.Confidence, cfg)
	res.Passed = res.Recommendation != model.RecommendSkip
	return res
}

// VerifyAll scores candidates concurrently, bounded by the config's
// concurrency. Results keep input order. A candidate whose check panics
// scores zero and is skipped.
func (m *SourceMatcher) VerifyAll(ctx context.Context, v model.VisionResult, cands []model.SourceCandidate, imageRef string, cfg config.PipelineConfig) []model.Gate1Result {
	results := make([]model.Gate1Result, len(cands))
	var g errgroup.Group
	g.SetLimit(cfg.Concurrency())
	for i := range cands {
		g.Go(func() error {
			defer resilience.Recover("gate1: verify "+cands[i].URL, func(error) {
				results[i] = model.Gate1Result{SourceURL: cands[i].URL, Recommendation: model.RecommendSkip}
			})
			results[i] = m.Verify(ctx, v, cands[i], imageRef, cfg)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Recommend maps a Gate 1 confidence to its recommendation.
func Recommend(confidence int, cfg config.PipelineConfig) model.Recommendation {
	switch {
	case confidence >= cfg.Gate1PassThreshold:
		return model.RecommendUse
	case confidence >= cfg.Gate1CautionThreshold:
		return model.RecommendUseWithCaution
	default:
		return model.RecommendSkip
	}
}

// SKUScore compares detected text tokens against a candidate SKU: 100 for
// an exact normalized match, 85 when one contains the other, otherwise the
// similarity percentage if it exceeds 0.8. The best token wins. Containment
// needs both sides to be at least 3 characters, so a stray "5" or "SB"
// never scores as a part number.
func SKUScore(detected []string, candidateSKU string) int {
	sku := NormalizeSKU(candidateSKU)
	if sku == "" {
		return 0
	}
	best := 0
	for _, tok := range detected {
		t := NormalizeSKU(tok)
		if t == "" {
			continue
		}
		score := 0
		switch {
		case t == sku:
			return 100
		case len(t) >= 3 && len(sku) >= 3 && (strings.Contains(t, sku) || strings.Contains(sku, t)):
			score = 85
		default:
			if sim := Similarity(t, sku); sim > 0.8 {
				score = int(math.Round(sim * 100))
			}
		}
		best = max(best, score)
	}
	return best
}
