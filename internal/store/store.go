// Package store persists catalog items, their enrichment, cached vision
// results, and run reports.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/catalog-enrich/internal/config"
	"github.com/sells-group/catalog-enrich/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = eris.New("store: not found")

// ReportFilter narrows ListReports.
type ReportFilter struct {
	ItemID string `json:"item_id,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// Store is the persistence boundary for the enrichment pipeline.
type Store interface {
	// Catalog items
	GetItem(ctx context.Context, id string) (*model.Item, error)
	UpsertItems(ctx context.Context, items []model.Item) (int, error)
	ListPendingItems(ctx context.Context, minDescriptionChars, limit int) ([]model.Item, error)
	SetEnrichmentStatus(ctx context.Context, id string, status model.EnrichmentStatus) error

	// Enrichment write/read-back
	WriteEnrichment(ctx context.Context, p model.CatalogPayload) error
	ReadEnrichment(ctx context.Context, itemID string) (*model.CatalogRecord, error)

	// Vision cache; a miss returns (nil, nil).
	GetCachedVision(ctx context.Context, itemID string) (*model.VisionResult, error)
	SetCachedVision(ctx context.Context, itemID string, v model.VisionResult) error

	// Run reports
	SaveReport(ctx context.Context, r *model.EnrichmentReport) error
	GetReport(ctx context.Context, runID string) (*model.EnrichmentReport, error)
	ListReports(ctx context.Context, f ReportFilter) ([]model.ReportSummary, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return NewSQLite(cfg.DatabaseURL)
	case "postgres":
		return NewPostgres(ctx, cfg.DatabaseURL, cfg.MaxConns)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// enrichmentColumns is the JSON-encoded half of a payload row.
type enrichmentColumns struct {
	specs, features, benefits, tags, sources []byte
}

func encodeEnrichment(p model.CatalogPayload) (enrichmentColumns, error) {
	var cols enrichmentColumns
	var err error
	enc := func(v any) []byte {
		if err != nil {
			return nil
		}
		var b []byte
		b, err = json.Marshal(v)
		return b
	}
	specs := p.Specifications
	if specs == nil {
		specs = map[string]string{}
	}
	cols.specs = enc(specs)
	cols.features = enc(nonNil(p.Features))
	cols.benefits = enc(nonNil(p.Benefits))
	cols.tags = enc(nonNil(p.Tags))
	cols.sources = enc(nonNil(p.Sources))
	return cols, eris.Wrap(err, "store: encode enrichment")
}

func decodeEnrichment(rec *model.CatalogRecord, cols enrichmentColumns) error {
	for _, f := range []struct {
		raw []byte
		dst any
	}{
		{cols.specs, &rec.Specifications},
		{cols.features, &rec.Features},
		{cols.benefits, &rec.Benefits},
		{cols.tags, &rec.Tags},
		{cols.sources, &rec.Sources},
	} {
		if len(f.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(f.raw, f.dst); err != nil {
			return eris.Wrap(err, "store: decode enrichment")
		}
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func statusOrPending(s model.EnrichmentStatus) model.EnrichmentStatus {
	if s == "" {
		return model.EnrichmentPending
	}
	return s
}
