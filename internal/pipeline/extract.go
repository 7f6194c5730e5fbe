package pipeline

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/catalog-enrich/internal/config"
	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/oracle"
	"github.com/sells-group/catalog-enrich/internal/resilience"
)

// Extractor structures a verified source page into an ExtractedRecord.
type Extractor struct {
	oracle oracle.Oracle
}

// NewExtractor creates an Extractor.
func NewExtractor(o oracle.Oracle) *Extractor {
	return &Extractor{oracle: o}
}

// Extract always returns a usable record. When the page has no content or
// the oracle fails, the record is minimal (empty fields, RawExtract kept)
// and err explains why.
func (e *Extractor) Extract(ctx context.Context, cand model.SourceCandidate, nameHint string) (model.ExtractedRecord, error) {
	window := oracle.Window(cand.PageContent, oracle.RecordWindow)
	rec := model.ExtractedRecord{
		SourceURL:      cand.URL,
		Specifications: map[string]string{},
		RawExtract:     window,
	}
	if strings.TrimSpace(window) == "" {
		return rec, eris.Errorf("extract: no content for %s", cand.URL)
	}

	out, err := e.oracle.ExtractRecord(ctx, oracle.RecordRequest{URL: cand.URL, Content: window, NameHint: nameHint})
	if err != nil {
		return rec, eris.Wrapf(err, "extract: %s", cand.URL)
	}
	if out == nil {
		return rec, eris.Errorf("extract: empty extraction for %s", cand.URL)
	}

	rec.ProductName = strings.TrimSpace(out.ProductName)
	rec.Description = strings.TrimSpace(out.Description)
	rec.InstallationInfo = strings.TrimSpace(out.InstallationInfo)
	for k, v := range out.Specifications {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" && v != "" {
			rec.Specifications[k] = v
		}
	}
	rec.Certifications = nonEmpty(out.Certifications)
	rec.RelatedProducts = nonEmpty(out.RelatedProducts)
	return rec, nil
}

// ExtractAll extracts every candidate concurrently. Records keep input
// order; failed holds the URLs that fell back to a minimal record.
func (e *Extractor) ExtractAll(ctx context.Context, cands []model.SourceCandidate, nameHint string, cfg config.PipelineConfig) (records []model.ExtractedRecord, failed []string) {
	records = make([]model.ExtractedRecord, len(cands))
	errs := make([]error, len(cands))

	var g errgroup.Group
	g.SetLimit(cfg.Concurrency())
	for i := range cands {
		g.Go(func() error {
			defer resilience.Recover("extract: "+cands[i].URL, func(err error) {
				records[i] = model.ExtractedRecord{
					SourceURL:      cands[i].URL,
					Specifications: map[string]string{},
					RawExtract:     oracle.Window(cands[i].PageContent, oracle.RecordWindow),
				}
				errs[i] = err
			})
			records[i], errs[i] = e.Extract(ctx, cands[i], nameHint)
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err != nil {
			zap.L().Warn("pipeline: extraction degraded", zap.String("source_url", cands[i].URL), zap.Error(err))
			failed = append(failed, cands[i].URL)
		}
	}
	return records, failed
}

func nonEmpty(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
