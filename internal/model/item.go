package model

import "time"

// EnrichmentStatus tracks where a catalog item sits in the enrichment lifecycle.
type EnrichmentStatus string

const (
	EnrichmentPending  EnrichmentStatus = "pending"
	EnrichmentEnriched EnrichmentStatus = "enriched"
	EnrichmentPartial  EnrichmentStatus = "partial"
	EnrichmentFailed   EnrichmentStatus = "failed"
)

// EnrichmentSource marks how the persisted content was produced.
type EnrichmentSource string

const (
	EnrichmentSourceMultiSource EnrichmentSource = "multi_source"
	EnrichmentSourceVisionOnly  EnrichmentSource = "vision_only"
)

// Item is a catalog record as read from the catalog store.
type Item struct {
	ID               string           `json:"id" yaml:"id"`
	Name             string           `json:"name" yaml:"name"`
	SKU              string           `json:"sku,omitempty" yaml:"sku"`
	ImageURL         string           `json:"image_url,omitempty" yaml:"image_url"`
	Description      string           `json:"description,omitempty" yaml:"description"`
	EnrichmentStatus EnrichmentStatus `json:"enrichment_status,omitempty" yaml:"enrichment_status"`
	UpdatedAt        time.Time        `json:"updated_at,omitempty" yaml:"-"`
}

// CatalogPayload is the canonical set of enriched fields written back to the
// catalog by the write gate.
type CatalogPayload struct {
	ItemID           string            `json:"item_id"`
	Description      string            `json:"description"`
	Specifications   map[string]string `json:"specifications"`
	Features         []string          `json:"features"`
	Benefits         []string          `json:"benefits"`
	Tags             []string          `json:"tags"`
	Sources          []string          `json:"sources"`
	EnrichmentStatus EnrichmentStatus  `json:"enrichment_status"`
	EnrichmentSource EnrichmentSource  `json:"enrichment_source"`
}

// CatalogRecord is the persisted enrichment as read back from the catalog.
// It mirrors CatalogPayload so the write gate can compare field by field.
type CatalogRecord struct {
	ItemID           string            `json:"item_id"`
	Description      string            `json:"description"`
	Specifications   map[string]string `json:"specifications"`
	Features         []string          `json:"features"`
	Benefits         []string          `json:"benefits"`
	Tags             []string          `json:"tags"`
	Sources          []string          `json:"sources"`
	EnrichmentStatus EnrichmentStatus  `json:"enrichment_status"`
	EnrichmentSource EnrichmentSource  `json:"enrichment_source"`
	UpdatedAt        time.Time         `json:"updated_at"`
}
