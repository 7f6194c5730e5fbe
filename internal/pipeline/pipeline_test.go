package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-enrich/internal/config"
	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/oracle"
	"github.com/sells-group/catalog-enrich/internal/oracle/mocks"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func spacerItem() model.Item {
	return model.Item{
		ID:               "item-1",
		Name:             "50mm Spacer Bar",
		SKU:              "SB-50",
		ImageURL:         "https://cdn.example.com/sb-50.jpg",
		EnrichmentStatus: model.EnrichmentPending,
	}
}

func spacerVision() *model.VisionResult {
	return &model.VisionResult{
		Category:     "hardware",
		Subcategory:  "spacer",
		Materials:    []string{"steel"},
		Colors:       []string{"silver"},
		Confidence:   80,
		DetectedText: []string{"SB-50"},
	}
}

type harness struct {
	store   *fakeStore
	vision  *mockClassifier
	disc    *mockDiscoverer
	oracle  *mocks.MockOracle
	sleeper *recordingSleeper
	p       *Pipeline
}

func newHarness(t *testing.T, items ...model.Item) *harness {
	t.Helper()
	h := &harness{
		store:   newFakeStore(items...),
		vision:  &mockClassifier{},
		disc:    &mockDiscoverer{},
		oracle:  mocks.NewMockOracle(t),
		sleeper: &recordingSleeper{},
	}
	batch := config.BatchConfig{InterItemDelayMs: 2000, PendingLimit: 50, MinDescriptionChars: 50}
	h.p = New(h.store, h.vision, h.disc, h.oracle, config.DefaultPipelineConfig(), batch,
		WithSleeper(h.sleeper.sleep),
		WithClock(func() time.Time { return fixedNow }),
	)
	return h
}

func TestRun_SingleVerifiedSource(t *testing.T) {
	item := spacerItem()
	h := newHarness(t, item)

	v := spacerVision()
	h.vision.On("Analyze", mock.Anything, item, false).Return(v, nil)

	content := "50mm Spacer Bar. SKU: SB-50. Made of steel. Width: 50 mm."
	cand := model.SourceCandidate{
		URL:             "https://maker.example.com/sb-50",
		SourceType:      model.SourceTypePrimary,
		TrustLevel:      10,
		PageTitle:       "50mm Spacer Bar",
		PageContent:     content,
		ExtractedSKU:    "SB-50",
		ExtractedImages: []string{"https://maker.example.com/sb-50.jpg"},
	}
	h.disc.On("Discover", mock.Anything, item.Name, *v, mock.Anything).Return([]model.SourceCandidate{cand}, nil)
	h.disc.On("FetchContent", mock.Anything, mock.Anything).Return([]model.SourceCandidate{cand}, nil)

	h.oracle.On("CompareImages", mock.Anything, item.ImageURL, cand.ExtractedImages[0]).
		Return(&oracle.CompareResult{Similar: true, Confidence: 95}, nil)
	h.oracle.On("CompareAttributes", mock.Anything, *v, mock.Anything).
		Return(&oracle.CompareResult{Similar: true, Confidence: 90}, nil)
	h.oracle.On("ExtractRecord", mock.Anything, mock.Anything).Return(&oracle.RecordExtraction{
		ProductName:    "50mm Spacer Bar",
		Description:    "Made of steel.",
		Specifications: map[string]string{"Width": "50 mm"},
	}, nil)
	h.oracle.On("ExtractClaims", mock.Anything, "Made of steel.").
		Return([]oracle.Claim{{Text: "Made of steel", Importance: "high"}}, nil)
	h.oracle.On("VerifyClaim", mock.Anything, content, "Made of steel").
		Return(&oracle.ClaimVerdict{Supported: true}, nil)

	out := h.p.Run(context.Background(), item.ID, false, nil)
	require.True(t, out.Success, out.Error)
	r := out.Report

	require.Len(t, r.Gates.Gate1, 1)
	assert.Equal(t, 96, r.Gates.Gate1[0].Confidence)
	assert.Equal(t, model.RecommendUse, r.Gates.Gate1[0].Recommendation)

	require.Len(t, r.Gates.Gate2, 1)
	assert.Equal(t, 100, r.Gates.Gate2[0].OverallAccuracy)
	assert.True(t, r.Gates.Gate2[0].Passed)

	require.NotNil(t, r.Gates.Gate4)
	assert.Equal(t, model.AllVerified, r.Gates.Gate4.OverallVerdict)
	require.NotNil(t, r.Gates.Gate3)
	assert.True(t, r.Gates.Gate3.Passed)

	assert.True(t, r.AllGatesPassed)
	// One source never earns more than LOW.
	assert.Equal(t, model.ConfidenceLow, r.OverallConfidence)
	assert.Equal(t, []string{cand.URL}, r.SourcesUsed)
	assert.Empty(t, r.Adaptations)
	assert.Equal(t, fixedNow, r.Timestamp)
	assert.NotEmpty(t, r.RunID)

	require.NotNil(t, r.Written)
	assert.Equal(t, 1, r.Written.Specifications)
	assert.Equal(t, model.EnrichmentSourceMultiSource, r.Written.EnrichmentSource)

	stored := h.store.records[item.ID]
	assert.Equal(t, "Made of steel.", stored.Description)
	assert.Equal(t, map[string]string{"Width": "50 mm"}, stored.Specifications)
	assert.Equal(t, model.EnrichmentEnriched, h.store.statuses[item.ID])
	require.Len(t, h.store.reports, 1)
	assert.Same(t, r, h.store.reports[0])
}

func TestRun_VisionOnlyWhenNothingDiscovered(t *testing.T) {
	item := spacerItem()
	item.Description = "Old copy."
	h := newHarness(t, item)

	v := spacerVision()
	h.vision.On("Analyze", mock.Anything, item, true).Return(v, nil)
	h.disc.On("Discover", mock.Anything, item.Name, *v, mock.Anything).Return([]model.SourceCandidate{}, nil)

	out := h.p.Run(context.Background(), item.ID, true, nil)
	require.True(t, out.Success)
	r := out.Report

	assert.Empty(t, r.Gates.Gate1)
	assert.Empty(t, r.Gates.Gate2)
	assert.Nil(t, r.Gates.Gate4)
	require.NotNil(t, r.Gates.Gate3)
	assert.True(t, r.Gates.Gate3.Passed)

	assert.False(t, r.AllGatesPassed)
	assert.Equal(t, model.ConfidenceLow, r.OverallConfidence)
	assert.Empty(t, r.SourcesUsed)
	require.Len(t, r.Adaptations, 1)
	assert.Contains(t, r.Adaptations[0], "vision-only")

	stored := h.store.records[item.ID]
	assert.Equal(t, model.EnrichmentPartial, stored.EnrichmentStatus)
	assert.Equal(t, model.EnrichmentSourceVisionOnly, stored.EnrichmentSource)
	assert.Equal(t, "Old copy.", stored.Description)
	assert.Equal(t, "steel", stored.Specifications["Material"])
	h.disc.AssertNotCalled(t, "FetchContent", mock.Anything, mock.Anything)
}

func TestRun_VisionOnlyFillsEmptyDescription(t *testing.T) {
	item := spacerItem()
	h := newHarness(t, item)

	v := spacerVision()
	h.vision.On("Analyze", mock.Anything, item, false).Return(v, nil)
	h.disc.On("Discover", mock.Anything, item.Name, *v, mock.Anything).Return(nil, nil)

	out := h.p.Run(context.Background(), item.ID, false, nil)
	require.True(t, out.Success)

	stored := h.store.records[item.ID]
	assert.Equal(t, "50mm Spacer Bar is a spacer made of steel in silver.", stored.Description)
	assert.Equal(t, []string{model.VisionSourceURL}, out.Report.FieldSources[model.FieldDescription].AgreedBy)
}

func TestRun_ConflictResolvedToHighestTrust(t *testing.T) {
	item := spacerItem()
	h := newHarness(t, item)

	v := spacerVision()
	h.vision.On("Analyze", mock.Anything, item, false).Return(v, nil)

	steel := model.SourceCandidate{
		URL:          "https://maker.example.com/sb-50",
		TrustLevel:   10,
		PageContent:  "Spacer Bar. SKU: SB-50. Material: Steel.",
		ExtractedSKU: "SB-50",
	}
	alu := model.SourceCandidate{
		URL:          "https://shop.example.com/sb-50",
		TrustLevel:   6,
		PageContent:  "Spacer Bar. SKU: SB-50. Material: Aluminum.",
		ExtractedSKU: "SB-50",
	}
	cands := []model.SourceCandidate{steel, alu}
	h.disc.On("Discover", mock.Anything, item.Name, *v, mock.Anything).Return(cands, nil)
	h.disc.On("FetchContent", mock.Anything, cands).Return(cands, nil)

	h.oracle.On("CompareAttributes", mock.Anything, *v, mock.Anything).
		Return(&oracle.CompareResult{Similar: true, Confidence: 100}, nil)
	h.oracle.On("ExtractRecord", mock.Anything, mock.MatchedBy(func(r oracle.RecordRequest) bool { return r.URL == steel.URL })).
		Return(&oracle.RecordExtraction{ProductName: "Spacer Bar", Specifications: map[string]string{"Material": "Steel"}}, nil)
	h.oracle.On("ExtractRecord", mock.Anything, mock.MatchedBy(func(r oracle.RecordRequest) bool { return r.URL == alu.URL })).
		Return(&oracle.RecordExtraction{ProductName: "Spacer Bar", Specifications: map[string]string{"Material": "Aluminum"}}, nil)
	h.oracle.On("CheckEquivalence", mock.Anything, "spec:Material", []string{"Steel", "Aluminum"}).
		Return(&oracle.Equivalence{Reasoning: "different metals"}, nil)

	noVisual := false
	out := h.p.Run(context.Background(), item.ID, false, &config.PipelineOverrides{EnableVisualComparison: &noVisual})
	require.True(t, out.Success)
	r := out.Report

	require.Len(t, r.Gates.Gate1, 2)
	for _, g := range r.Gates.Gate1 {
		assert.Equal(t, 65, g.Confidence)
		assert.Equal(t, model.RecommendUseWithCaution, g.Recommendation)
	}

	require.NotNil(t, r.Gates.Gate4)
	require.Len(t, r.Gates.Gate4.Conflicts, 1)
	c := r.Gates.Gate4.Conflicts[0]
	assert.Equal(t, model.ResolutionConflict, c.Resolution)
	require.NotNil(t, c.ResolvedValue)
	assert.Equal(t, "Steel", *c.ResolvedValue)
	assert.Equal(t, model.ConflictsFound, r.Gates.Gate4.OverallVerdict)

	assert.False(t, r.AllGatesPassed)
	assert.Equal(t, model.ConfidenceMedium, r.OverallConfidence)
	assert.Contains(t, r.Adaptations, "Resolved 1 conflicting field(s) by trust-weighted source agreement")
	assert.Equal(t, "Steel", h.store.records[item.ID].Specifications["Material"])
	assert.Equal(t, model.FieldSource{
		Value:           "Steel",
		AgreedBy:        []string{steel.URL},
		ConfidenceLevel: model.ConfidenceLow,
	}, r.FieldSources["spec:Material"])
}

func TestRun_AgreementOutweighsHigherTrustDissent(t *testing.T) {
	item := spacerItem()
	h := newHarness(t, item)

	v := spacerVision()
	h.vision.On("Analyze", mock.Anything, item, false).Return(v, nil)

	cand := func(url string, trust int, material string) model.SourceCandidate {
		return model.SourceCandidate{
			URL:          url,
			TrustLevel:   trust,
			PageContent:  "Spacer Bar. SKU: SB-50. Material: " + material + ".",
			ExtractedSKU: "SB-50",
		}
	}
	maker := cand("https://maker.example.com/sb-50", 10, "Steel")
	shopB := cand("https://b.example.com/sb-50", 8, "Aluminum")
	shopC := cand("https://c.example.com/sb-50", 8, "Aluminum")
	cands := []model.SourceCandidate{maker, shopB, shopC}
	h.disc.On("Discover", mock.Anything, item.Name, *v, mock.Anything).Return(cands, nil)
	h.disc.On("FetchContent", mock.Anything, cands).Return(cands, nil)

	h.oracle.On("CompareAttributes", mock.Anything, *v, mock.Anything).
		Return(&oracle.CompareResult{Similar: true, Confidence: 100}, nil)
	h.oracle.On("ExtractRecord", mock.Anything, mock.MatchedBy(func(r oracle.RecordRequest) bool { return r.URL == maker.URL })).
		Return(&oracle.RecordExtraction{ProductName: "Spacer Bar", Specifications: map[string]string{"Material": "Steel"}}, nil)
	h.oracle.On("ExtractRecord", mock.Anything, mock.MatchedBy(func(r oracle.RecordRequest) bool { return r.URL != maker.URL })).
		Return(&oracle.RecordExtraction{ProductName: "Spacer Bar", Specifications: map[string]string{"Material": "Aluminum"}}, nil)
	h.oracle.On("CheckEquivalence", mock.Anything, "spec:Material", []string{"Steel", "Aluminum", "Aluminum"}).
		Return(&oracle.Equivalence{Reasoning: "different metals"}, nil)

	noVisual := false
	out := h.p.Run(context.Background(), item.ID, false, &config.PipelineOverrides{EnableVisualComparison: &noVisual})
	require.True(t, out.Success)
	r := out.Report

	require.NotNil(t, r.Gates.Gate4)
	require.Len(t, r.Gates.Gate4.Conflicts, 1)
	require.NotNil(t, r.Gates.Gate4.Conflicts[0].ResolvedValue)
	assert.Equal(t, "Aluminum", *r.Gates.Gate4.Conflicts[0].ResolvedValue)

	assert.Equal(t, "Aluminum", h.store.records[item.ID].Specifications["Material"])
	assert.Equal(t, model.FieldSource{
		Value:           "Aluminum",
		AgreedBy:        []string{shopB.URL, shopC.URL},
		ConfidenceLevel: model.ConfidenceMedium,
	}, r.FieldSources["spec:Material"])
}

func TestRun_VisionFailureDegrades(t *testing.T) {
	item := spacerItem()
	h := newHarness(t, item)

	h.vision.On("Analyze", mock.Anything, item, false).Return(nil, errors.New("vision offline"))
	h.disc.On("Discover", mock.Anything, item.Name, model.VisionResult{Category: "unknown", DetectedText: []string{"SB-50"}}, mock.Anything).
		Return(nil, errors.New("search offline"))

	out := h.p.Run(context.Background(), item.ID, false, nil)
	require.True(t, out.Success)
	r := out.Report
	require.Len(t, r.Adaptations, 3)
	assert.Contains(t, r.Adaptations[0], "Vision classification failed")
	assert.Contains(t, r.Adaptations[1], "Source discovery failed")
	assert.Contains(t, r.Adaptations[2], "vision-only")
	assert.Equal(t, model.ConfidenceLow, r.OverallConfidence)
}

func TestRun_ItemNotFound(t *testing.T) {
	h := newHarness(t)

	out := h.p.Run(context.Background(), "missing", false, nil)
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "missing")
	require.NotNil(t, out.Report)
	assert.Equal(t, "missing", out.Report.ItemID)
	assert.Equal(t, model.ConfidenceLow, out.Report.OverallConfidence)
	assert.Empty(t, out.Report.Adaptations)
	assert.Empty(t, h.store.reports)
}

func TestRun_PanicBecomesFailedOutput(t *testing.T) {
	item := spacerItem()
	store := newFakeStore(item)
	p := New(store, panickingClassifier{}, &mockDiscoverer{}, mocks.NewMockOracle(t),
		config.DefaultPipelineConfig(), config.BatchConfig{})

	out := p.Run(context.Background(), item.ID, false, nil)
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "classifier exploded")
	require.NotNil(t, out.Report)
	assert.Equal(t, item.ID, out.Report.ItemID)
	assert.NotEmpty(t, out.Report.RunID)
}

func TestRun_CandidatePanicIsIsolated(t *testing.T) {
	item := spacerItem()
	h := newHarness(t, item)

	v := spacerVision()
	h.vision.On("Analyze", mock.Anything, item, false).Return(v, nil)

	good := model.SourceCandidate{
		URL:          "https://maker.example.com/sb-50",
		TrustLevel:   10,
		PageTitle:    "Good",
		PageContent:  "Spacer Bar. SKU: SB-50. Material: Steel.",
		ExtractedSKU: "SB-50",
	}
	bad := model.SourceCandidate{
		URL:          "https://broken.example.com/sb-50",
		TrustLevel:   8,
		PageTitle:    "Broken",
		PageContent:  "Spacer Bar. SKU: SB-50.",
		ExtractedSKU: "SB-50",
	}
	cands := []model.SourceCandidate{good, bad}
	h.disc.On("Discover", mock.Anything, item.Name, *v, mock.Anything).Return(cands, nil)
	h.disc.On("FetchContent", mock.Anything, cands).Return(cands, nil)

	h.oracle.On("CompareAttributes", mock.Anything, *v, mock.MatchedBy(func(page string) bool {
		return strings.HasPrefix(page, "Broken")
	})).Panic("oracle bug")
	h.oracle.On("CompareAttributes", mock.Anything, *v, mock.Anything).
		Return(&oracle.CompareResult{Similar: true, Confidence: 100}, nil)
	h.oracle.On("ExtractRecord", mock.Anything, mock.Anything).
		Return(&oracle.RecordExtraction{ProductName: "Spacer Bar", Specifications: map[string]string{"Material": "Steel"}}, nil)

	noVisual := false
	out := h.p.Run(context.Background(), item.ID, false, &config.PipelineOverrides{EnableVisualComparison: &noVisual})
	require.True(t, out.Success, out.Error)
	r := out.Report

	require.Len(t, r.Gates.Gate1, 2)
	assert.True(t, r.Gates.Gate1[0].Passed)
	assert.Equal(t, bad.URL, r.Gates.Gate1[1].SourceURL)
	assert.Zero(t, r.Gates.Gate1[1].Confidence)
	assert.Equal(t, model.RecommendSkip, r.Gates.Gate1[1].Recommendation)
	assert.Equal(t, []string{good.URL}, r.SourcesUsed)
	assert.Equal(t, "Steel", h.store.records[item.ID].Specifications["Material"])
}

func TestRun_ReportSaveFailureIsAdaptation(t *testing.T) {
	item := spacerItem()
	h := newHarness(t, item)
	h.store.saveErr = errors.New("disk full")

	v := spacerVision()
	h.vision.On("Analyze", mock.Anything, item, false).Return(v, nil)
	h.disc.On("Discover", mock.Anything, item.Name, *v, mock.Anything).Return(nil, nil)

	out := h.p.Run(context.Background(), item.ID, false, nil)
	require.True(t, out.Success)
	last := out.Report.Adaptations[len(out.Report.Adaptations)-1]
	assert.Contains(t, last, "disk full")
}

func TestRun_WriteFailureMarksItemFailed(t *testing.T) {
	item := spacerItem()
	h := newHarness(t, item)
	h.store.writeErr = errors.New("connection reset")

	v := spacerVision()
	h.vision.On("Analyze", mock.Anything, item, false).Return(v, nil)
	h.disc.On("Discover", mock.Anything, item.Name, *v, mock.Anything).Return(nil, nil)

	out := h.p.Run(context.Background(), item.ID, false, nil)
	require.True(t, out.Success)
	r := out.Report

	require.NotNil(t, r.Gates.Gate3)
	assert.False(t, r.Gates.Gate3.Passed)
	assert.Equal(t, 3, r.Gates.Gate3.RetryCount)
	assert.Nil(t, r.Written)
	assert.Equal(t, model.ConfidenceLow, r.OverallConfidence)
	assert.Contains(t, r.Adaptations, "Write verification failed after 3 retries")
	assert.Equal(t, model.EnrichmentFailed, h.store.statuses[item.ID])
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond, 500 * time.Millisecond}, h.sleeper.delays)
}

func TestRunBatch(t *testing.T) {
	a := model.Item{ID: "a", Name: "Bracket"}
	b := model.Item{ID: "b", Name: "Hinge"}
	h := newHarness(t, a, b)

	h.vision.On("Analyze", mock.Anything, mock.Anything, false).Return(&model.VisionResult{Category: "hardware"}, nil)
	h.disc.On("Discover", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	var progress []int
	results := h.p.RunBatch(context.Background(), []string{"a", "missing", "b"}, nil,
		func(done, total int, _ model.EnrichmentOutput) {
			assert.Equal(t, 3, total)
			progress = append(progress, done)
		})

	require.Len(t, results, 3)
	assert.True(t, results["a"].Success)
	assert.False(t, results["missing"].Success)
	assert.True(t, results["b"].Success)
	assert.Equal(t, []int{1, 2, 3}, progress)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, h.sleeper.delays)
}

func TestRunBatch_StopsWhenCancelled(t *testing.T) {
	a := model.Item{ID: "a", Name: "Bracket"}
	h := newHarness(t, a)

	ctx, cancel := context.WithCancel(context.Background())
	h.vision.On("Analyze", mock.Anything, mock.Anything, false).
		Run(func(mock.Arguments) { cancel() }).
		Return(&model.VisionResult{Category: "hardware"}, nil)
	h.disc.On("Discover", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	results := h.p.RunBatch(ctx, []string{"a", "b", "c"}, nil, nil)
	assert.Len(t, results, 1)
	assert.Contains(t, results, "a")
}

func TestRunForPendingItems(t *testing.T) {
	short := model.Item{ID: "short", Name: "Bracket", Description: "tiny"}
	done := model.Item{
		ID:               "done",
		Name:             "Hinge",
		Description:      "A long enough description that clears the fifty character minimum.",
		EnrichmentStatus: model.EnrichmentEnriched,
	}
	h := newHarness(t, short, done)

	h.vision.On("Analyze", mock.Anything, mock.Anything, false).Return(&model.VisionResult{Category: "hardware"}, nil)
	h.disc.On("Discover", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, nil)

	results, err := h.p.RunForPendingItems(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Contains(t, results, "short")

	h.store.pendingErr = errors.New("db down")
	_, err = h.p.RunForPendingItems(context.Background(), nil, nil)
	assert.ErrorContains(t, err, "list pending items")
}
