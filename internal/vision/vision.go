// Package vision labels catalog item images with visual attributes.
package vision

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enrich/internal/model"
)

// Classifier is the vision boundary the pipeline consumes.
type Classifier interface {
	Analyze(ctx context.Context, item model.Item, forceRefresh bool) (*model.VisionResult, error)
}

// ImageAnalyzer labels a single image. *oracle.Claude satisfies it.
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, imageURL, name string) (*model.VisionResult, error)
}

// Cache persists classifier output per item. store.Store satisfies it.
type Cache interface {
	GetCachedVision(ctx context.Context, itemID string) (*model.VisionResult, error)
	SetCachedVision(ctx context.Context, itemID string, v model.VisionResult) error
}

// CachedClassifier analyzes item images and caches the result per item.
type CachedClassifier struct {
	analyzer ImageAnalyzer
	cache    Cache
}

// NewClassifier creates a CachedClassifier. cache may be nil.
func NewClassifier(analyzer ImageAnalyzer, cache Cache) *CachedClassifier {
	return &CachedClassifier{analyzer: analyzer, cache: cache}
}

// Analyze returns the cached result for the item unless forceRefresh is set,
// otherwise classifies the item image and caches the result. Cache errors
// are logged and never fail the call.
func (c *CachedClassifier) Analyze(ctx context.Context, item model.Item, forceRefresh bool) (*model.VisionResult, error) {
	log := zap.L().With(zap.String("item_id", item.ID))

	if c.cache != nil && !forceRefresh {
		cached, err := c.cache.GetCachedVision(ctx, item.ID)
		if err != nil {
			log.Warn("vision: cache read failed", zap.Error(err))
		} else if cached != nil {
			log.Debug("vision: cache hit")
			return cached, nil
		}
	}

	if item.ImageURL == "" {
		return nil, eris.Errorf("vision: item %s has no image", item.ID)
	}

	res, err := c.analyzer.AnalyzeImage(ctx, item.ImageURL, item.Name)
	if err != nil {
		return nil, eris.Wrapf(err, "vision: analyze item %s", item.ID)
	}
	if item.SKU != "" && !containsFold(res.DetectedText, item.SKU) {
		res.DetectedText = append(res.DetectedText, item.SKU)
	}

	if c.cache != nil {
		if err := c.cache.SetCachedVision(ctx, item.ID, *res); err != nil {
			log.Warn("vision: cache write failed", zap.Error(err))
		}
	}
	return res, nil
}

// Minimal is the zero-confidence fallback used when classification fails.
func Minimal(item model.Item) model.VisionResult {
	v := model.VisionResult{Category: "unknown"}
	if item.SKU != "" {
		v.DetectedText = []string{item.SKU}
	}
	return v
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), strings.TrimSpace(s)) {
			return true
		}
	}
	return false
}
