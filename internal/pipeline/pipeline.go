// Package pipeline sequences vision, discovery, the four verification gates
// and the catalog write into one auditable enrichment run per item.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enrich/internal/config"
	"github.com/sells-group/catalog-enrich/internal/discovery"
	"github.com/sells-group/catalog-enrich/internal/gate"
	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/oracle"
	"github.com/sells-group/catalog-enrich/internal/resilience"
	"github.com/sells-group/catalog-enrich/internal/vision"
)

// Store is the persistence a pipeline run needs. store.Store satisfies it.
type Store interface {
	gate.CatalogStore
	GetItem(ctx context.Context, id string) (*model.Item, error)
	ListPendingItems(ctx context.Context, minDescriptionChars, limit int) ([]model.Item, error)
	SetEnrichmentStatus(ctx context.Context, id string, status model.EnrichmentStatus) error
	SaveReport(ctx context.Context, r *model.EnrichmentReport) error
}

// Pipeline runs enrichment for catalog items.
type Pipeline struct {
	store      Store
	vision     vision.Classifier
	discovery  discovery.Discoverer
	matcher    *gate.SourceMatcher
	extractor  *Extractor
	extraction *gate.ExtractionVerifier
	truth      *gate.TruthVerifier
	writer     *gate.WriteVerifier
	cfg        config.PipelineConfig
	batch      config.BatchConfig
	sleep      resilience.Sleeper
	now        func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSleeper replaces the pause used between batch items and write retries.
func WithSleeper(s resilience.Sleeper) Option {
	return func(p *Pipeline) { p.sleep = s }
}

// WithClock replaces the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a Pipeline. cfg is the base configuration every run starts
// from; per-run overrides never modify it.
func New(
	st Store,
	classifier vision.Classifier,
	disc discovery.Discoverer,
	o oracle.Oracle,
	cfg config.PipelineConfig,
	batch config.BatchConfig,
	opts ...Option,
) *Pipeline {
	p := &Pipeline{
		store:      st,
		vision:     classifier,
		discovery:  disc,
		matcher:    gate.NewSourceMatcher(o),
		extractor:  NewExtractor(o),
		extraction: gate.NewExtractionVerifier(o),
		truth:      gate.NewTruthVerifier(o),
		cfg:        cfg,
		batch:      batch,
		sleep:      resilience.SleepContext,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.writer = gate.NewWriteVerifier(st, gate.WithSleeper(p.sleep))
	return p
}

// run carries the state of one enrichment run.
type run struct {
	id          string
	log         *zap.Logger
	adaptations []string
}

func (r *run) adapt(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.adaptations = append(r.adaptations, msg)
	r.log.Warn("pipeline: adaptation", zap.String("adaptation", msg))
}

func (r *run) step(name string, fn func()) {
	start := time.Now()
	fn()
	r.log.Info("pipeline: step complete",
		zap.String("step", name),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
}

// Run enriches one item. It always returns an output: collaborator
// failures become adaptations in the report, and only an unexpected failure
// (missing item, panic) yields Success=false with an empty report.
func (p *Pipeline) Run(ctx context.Context, itemID string, forceRefresh bool, overrides *config.PipelineOverrides) (out model.EnrichmentOutput) {
	r := &run{id: uuid.NewString()}
	r.log = zap.L().With(zap.String("item_id", itemID), zap.String("run_id", r.id))
	start := p.now()

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("pipeline: run panicked", zap.Any("panic", rec))
			out = p.fatal(r, itemID, start, eris.Errorf("pipeline: panic: %v", rec))
		}
	}()

	cfg := p.cfg.WithOverrides(overrides)
	item, err := p.store.GetItem(ctx, itemID)
	if err != nil {
		r.log.Error("pipeline: load item failed", zap.Error(err))
		return p.fatal(r, itemID, start, eris.Wrapf(err, "pipeline: load item %s", itemID))
	}
	r.log.Info("pipeline: starting enrichment", zap.String("item_name", item.Name))

	report := p.enrich(ctx, r, *item, forceRefresh, cfg)
	report.Timestamp = start
	report.DurationMs = p.now().Sub(start).Milliseconds()

	if err := p.store.SaveReport(ctx, report); err != nil {
		r.adapt("Report could not be persisted: %v", err)
		report.Adaptations = r.adaptations
	}

	r.log.Info("pipeline: enrichment complete",
		zap.String("confidence", string(report.OverallConfidence)),
		zap.Bool("all_gates_passed", report.AllGatesPassed),
		zap.Int("adaptations", len(report.Adaptations)),
		zap.Int64("duration_ms", report.DurationMs),
	)
	return model.EnrichmentOutput{Success: true, ItemID: itemID, Report: report}
}

func (p *Pipeline) fatal(r *run, itemID string, start time.Time, err error) model.EnrichmentOutput {
	return model.EnrichmentOutput{
		Success: false,
		ItemID:  itemID,
		Report: &model.EnrichmentReport{
			RunID:             r.id,
			ItemID:            itemID,
			Timestamp:         start,
			SourcesUsed:       []string{},
			OverallConfidence: model.ConfidenceLow,
			Adaptations:       []string{},
		},
		Error: err.Error(),
	}
}

func (p *Pipeline) enrich(ctx context.Context, r *run, item model.Item, forceRefresh bool, cfg config.PipelineConfig) *model.EnrichmentReport {
	report := &model.EnrichmentReport{
		RunID:    r.id,
		ItemID:   item.ID,
		ItemName: item.Name,
		Gates:    model.GateResults{Gate1: []model.Gate1Result{}, Gate2: []model.Gate2Result{}},
	}

	// 1. Vision.
	var v model.VisionResult
	r.step("vision", func() {
		res, err := p.vision.Analyze(ctx, item, forceRefresh)
		if err != nil || res == nil {
			r.log.Warn("pipeline: vision failed", zap.Error(err))
			v = vision.Minimal(item)
			r.adapt("Vision classification failed; continuing with a minimal zero-confidence vision result")
			return
		}
		v = *res
	})

	// 2. Source discovery and content hydration.
	var cands []model.SourceCandidate
	r.step("discovery", func() {
		found, err := p.discovery.Discover(ctx, item.Name, v, cfg)
		if err != nil {
			r.log.Warn("pipeline: discovery failed", zap.Error(err))
			r.adapt("Source discovery failed; continuing with no sources")
			return
		}
		if len(found) == 0 {
			return
		}
		hydrated, err := p.discovery.FetchContent(ctx, found)
		if err != nil {
			r.log.Warn("pipeline: content hydration failed", zap.Error(err))
			r.adapt("Content fetch failed; using search snippets as page content")
			if hydrated == nil {
				hydrated = found
			}
		}
		cands = hydrated
	})

	// 3. Gate 1.
	var matched []model.SourceCandidate
	r.step("gate1", func() {
		report.Gates.Gate1 = p.matcher.VerifyAll(ctx, v, cands, item.ImageURL, cfg)
		for i, res := range report.Gates.Gate1 {
			if res.Passed {
				matched = append(matched, cands[i])
			}
		}
		if len(cands) > 0 && len(matched) == 0 {
			r.adapt("No discovered source passed source matching (%d checked)", len(cands))
		}
	})

	// 4. Extraction.
	var records []model.ExtractedRecord
	r.step("extract", func() {
		var failed []string
		records, failed = p.extractor.ExtractAll(ctx, matched, item.Name, cfg)
		for _, u := range failed {
			r.adapt("Extraction failed for %s; minimal record used", u)
		}
	})

	// 5. Gate 2.
	var verified []model.ExtractedRecord
	r.step("gate2", func() {
		report.Gates.Gate2 = p.extraction.VerifyAll(ctx, matched, records, cfg)
		for i, res := range report.Gates.Gate2 {
			vr := gate.VerifiedFields(records[i], res)
			if vr.IsEmpty() {
				if !records[i].IsEmpty() {
					r.adapt("No field from %s could be verified; source dropped", records[i].SourceURL)
				}
				continue
			}
			verified = append(verified, vr)
		}
	})

	// 6. Aggregation.
	trust := model.TrustByURL(cands)
	var agg model.AggregatedRecord
	r.step("aggregate", func() {
		if len(verified) == 0 {
			agg = AggregateVisionOnly(item, v)
			r.adapt("No verified sources; using vision-only aggregation")
			return
		}
		agg = Aggregate(verified, trust)
	})

	// 7. Gate 4.
	contradictionsLeft := false
	if !agg.VisionOnly {
		r.step("gate4", func() {
			res, err := p.truth.Verify(ctx, verified, agg)
			if err != nil {
				r.log.Warn("pipeline: truth verification degraded", zap.Error(err))
				r.adapt("Claim verification unavailable; aggregated description used as-is")
			}
			res = gate.ResolveConflicts(res, trust)
			agg = gate.ApplyResolutions(agg, res)
			if n := countConflicts(res); n > 0 {
				r.adapt("Resolved %d conflicting field(s) by trust-weighted source agreement", n)
			}
			if res.HasContradictions() {
				filtered := gate.FilterContradictedClaims(agg.Description, res.TruthChecks)
				if filtered != agg.Description {
					agg.Description = filtered
					if fs, ok := agg.FieldSources[model.FieldDescription]; ok {
						fs.Value = filtered
						agg.FieldSources[model.FieldDescription] = fs
					}
					r.adapt("Removed contradicted claims from the description")
				} else {
					contradictionsLeft = true
				}
			}
			report.Gates.Gate4 = &res
		})
	}

	// 8. Payload and Gate 3.
	payload := BuildPayload(item, v, agg)
	r.step("gate3", func() {
		res := p.writer.WriteAndVerify(ctx, payload, cfg)
		report.Gates.Gate3 = &res
		if !res.Passed {
			r.adapt("Write verification failed after %d retries", res.RetryCount)
			if err := p.store.SetEnrichmentStatus(ctx, item.ID, model.EnrichmentFailed); err != nil {
				r.log.Warn("pipeline: set status failed", zap.Error(err))
			}
		}
	})

	// 9. Report.
	gate2Passed := 0
	for _, g := range report.Gates.Gate2 {
		if g.Passed {
			gate2Passed++
		}
	}
	report.SourcesUsed = sourcesUsed(agg)
	report.FieldSources = agg.FieldSources
	report.AllGatesPassed = allGatesPassed(report.Gates)
	unresolved := 0
	if report.Gates.Gate4 != nil {
		unresolved = report.Gates.Gate4.UnresolvedConflicts()
	}
	report.OverallConfidence = OverallConfidence(ConfidenceInputs{
		VisionOnly:              agg.VisionOnly,
		VerifiedSources:         len(verified),
		Gate2Passed:             gate2Passed,
		Gate3Passed:             report.Gates.Gate3.Passed,
		UnfilteredContradiction: contradictionsLeft,
		UnresolvedConflicts:     unresolved,
		AllGatesPassed:          report.AllGatesPassed,
		MinSourcesForHigh:       cfg.MinSourcesForHighConfidence,
	})
	if report.Gates.Gate3.Passed {
		report.Written = summarize(gate.CleanPayload(payload))
	}
	report.Adaptations = r.adaptations
	if report.Adaptations == nil {
		report.Adaptations = []string{}
	}
	return report
}

func countConflicts(res model.Gate4Result) int {
	n := 0
	for _, c := range res.Conflicts {
		if c.Resolution == model.ResolutionConflict {
			n++
		}
	}
	return n
}

// allGatesPassed requires at least one matched source, every Gate 2 result
// passing, a passing Gate 4 and a verified write.
func allGatesPassed(g model.GateResults) bool {
	matched := false
	for _, r := range g.Gate1 {
		if r.Passed {
			matched = true
			break
		}
	}
	if !matched || len(g.Gate2) == 0 {
		return false
	}
	for _, r := range g.Gate2 {
		if !r.Passed {
			return false
		}
	}
	return g.Gate4 != nil && g.Gate4.Passed && g.Gate3 != nil && g.Gate3.Passed
}

func sourcesUsed(agg model.AggregatedRecord) []string {
	if agg.VisionOnly {
		return []string{}
	}
	return append([]string{}, agg.Sources...)
}

func summarize(p model.CatalogPayload) *model.WriteSummary {
	return &model.WriteSummary{
		DescriptionChars: len([]rune(p.Description)),
		Specifications:   len(p.Specifications),
		Features:         len(p.Features),
		Benefits:         len(p.Benefits),
		Tags:             len(p.Tags),
		Sources:          p.Sources,
		EnrichmentSource: p.EnrichmentSource,
	}
}
