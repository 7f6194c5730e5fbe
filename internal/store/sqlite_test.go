package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-enrich/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedItems(t *testing.T, s Store, items ...model.Item) {
	t.Helper()
	n, err := s.UpsertItems(context.Background(), items)
	require.NoError(t, err)
	require.Equal(t, len(items), n)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	s := newTestSQLite(t)
	assert.NoError(t, s.Migrate(context.Background()))
}

func TestSQLite_Items(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	seedItems(t, s,
		model.Item{ID: "i1", Name: "Acme Widget", SKU: "AW-100", ImageURL: "https://cdn/a.jpg"},
		model.Item{ID: "i2", Name: "Gadget", Description: "A long enough description for the catalog listing page.", EnrichmentStatus: model.EnrichmentEnriched},
		model.Item{ID: "i3", Name: "Thing", Description: "short", EnrichmentStatus: model.EnrichmentEnriched},
	)

	it, err := s.GetItem(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Widget", it.Name)
	assert.Equal(t, "AW-100", it.SKU)
	assert.Equal(t, model.EnrichmentPending, it.EnrichmentStatus)
	assert.Empty(t, it.Description)

	_, err = s.GetItem(ctx, "missing")
	assert.True(t, eris.Is(err, ErrNotFound))

	pending, err := s.ListPendingItems(ctx, 20, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}
	assert.ElementsMatch(t, []string{"i1", "i3"}, ids)

	require.NoError(t, s.SetEnrichmentStatus(ctx, "i1", model.EnrichmentFailed))
	it, err = s.GetItem(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, model.EnrichmentFailed, it.EnrichmentStatus)

	err = s.SetEnrichmentStatus(ctx, "missing", model.EnrichmentFailed)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_WriteReadEnrichment(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	seedItems(t, s, model.Item{ID: "i1", Name: "Acme Widget"})

	p := model.CatalogPayload{
		ItemID:           "i1",
		Description:      "Solid brass faucet.",
		Specifications:   map[string]string{"Width": "30 in", "Finish": "Brass"},
		Features:         []string{"UL listed"},
		Benefits:         []string{"Suited to kitchens"},
		Tags:             []string{"faucet", "brass"},
		Sources:          []string{"https://acme.com/w"},
		EnrichmentStatus: model.EnrichmentEnriched,
		EnrichmentSource: model.EnrichmentSourceMultiSource,
	}
	require.NoError(t, s.WriteEnrichment(ctx, p))

	rec, err := s.ReadEnrichment(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, p.Description, rec.Description)
	assert.Equal(t, p.Specifications, rec.Specifications)
	assert.Equal(t, p.Features, rec.Features)
	assert.Equal(t, p.Tags, rec.Tags)
	assert.Equal(t, p.Sources, rec.Sources)
	assert.Equal(t, model.EnrichmentSourceMultiSource, rec.EnrichmentSource)

	it, err := s.GetItem(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, "Solid brass faucet.", it.Description)
	assert.Equal(t, model.EnrichmentEnriched, it.EnrichmentStatus)

	// Overwrite replaces every field.
	p.Tags = []string{"faucet"}
	p.Benefits = nil
	require.NoError(t, s.WriteEnrichment(ctx, p))
	rec, err = s.ReadEnrichment(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, []string{"faucet"}, rec.Tags)
	assert.Empty(t, rec.Benefits)
}

func TestSQLite_WriteEnrichment_UnknownItem(t *testing.T) {
	s := newTestSQLite(t)
	err := s.WriteEnrichment(context.Background(), model.CatalogPayload{ItemID: "ghost"})
	assert.True(t, eris.Is(err, ErrNotFound))

	_, err = s.ReadEnrichment(context.Background(), "ghost")
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_VisionCache(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	v, err := s.GetCachedVision(ctx, "i1")
	require.NoError(t, err)
	assert.Nil(t, v)

	want := model.VisionResult{Category: "faucet", Materials: []string{"brass"}, Confidence: 80}
	require.NoError(t, s.SetCachedVision(ctx, "i1", want))
	want.Confidence = 90
	require.NoError(t, s.SetCachedVision(ctx, "i1", want))

	v, err = s.GetCachedVision(ctx, "i1")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, want, *v)
}

func TestSQLite_Reports(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-a", "run-b", "run-c"} {
		item := "i1"
		if id == "run-c" {
			item = "i2"
		}
		require.NoError(t, s.SaveReport(ctx, &model.EnrichmentReport{
			RunID:             id,
			ItemID:            item,
			Timestamp:         base.Add(time.Duration(i) * time.Minute),
			OverallConfidence: model.ConfidenceMedium,
			AllGatesPassed:    id == "run-b",
			Adaptations:       []string{"note"},
		}))
	}

	r, err := s.GetReport(ctx, "run-b")
	require.NoError(t, err)
	assert.True(t, r.AllGatesPassed)
	assert.Equal(t, []string{"note"}, r.Adaptations)

	_, err = s.GetReport(ctx, "nope")
	assert.True(t, eris.Is(err, ErrNotFound))

	all, err := s.ListReports(ctx, ReportFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "run-c", all[0].RunID)

	forItem, err := s.ListReports(ctx, ReportFilter{ItemID: "i1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, forItem, 1)
	assert.Equal(t, "run-b", forItem[0].RunID)
	assert.True(t, forItem[0].AllGatesPassed)
}
