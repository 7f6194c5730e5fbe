package model

import "time"

// GateResults bundles the four gate outcomes of a run.
type GateResults struct {
	Gate1 []Gate1Result `json:"gate1"`
	Gate2 []Gate2Result `json:"gate2"`
	Gate3 *Gate3Result  `json:"gate3,omitempty"`
	Gate4 *Gate4Result  `json:"gate4,omitempty"`
}

// WriteSummary describes what was written to the catalog.
type WriteSummary struct {
	DescriptionChars int              `json:"description_chars"`
	Specifications   int              `json:"specifications"`
	Features         int              `json:"features"`
	Benefits         int              `json:"benefits"`
	Tags             int              `json:"tags"`
	Sources          []string         `json:"sources"`
	EnrichmentSource EnrichmentSource `json:"enrichment_source"`
}

// EnrichmentReport is the auditable outcome of one pipeline run.
type EnrichmentReport struct {
	RunID             string                 `json:"run_id"`
	ItemID            string                 `json:"item_id"`
	ItemName          string                 `json:"item_name"`
	Timestamp         time.Time              `json:"timestamp"`
	SourcesUsed       []string               `json:"sources_used"`
	Gates             GateResults            `json:"gates"`
	Written           *WriteSummary          `json:"written,omitempty"`
	// FieldSources is the provenance of every aggregated field.
	FieldSources      map[string]FieldSource `json:"field_sources,omitempty"`
	OverallConfidence ConfidenceLevel        `json:"overall_confidence"`
	AllGatesPassed    bool                   `json:"all_gates_passed"`
	Adaptations       []string               `json:"adaptations"`
	DurationMs        int64                  `json:"duration_ms"`
}

// EnrichmentOutput is what runPipeline returns to its caller.
type EnrichmentOutput struct {
	Success bool              `json:"success"`
	ItemID  string            `json:"item_id"`
	Report  *EnrichmentReport `json:"report"`
	Error   string            `json:"error,omitempty"`
}

// ReportSummary is a compact listing row for stored reports.
type ReportSummary struct {
	RunID             string          `json:"run_id"`
	ItemID            string          `json:"item_id"`
	OverallConfidence ConfidenceLevel `json:"overall_confidence"`
	AllGatesPassed    bool            `json:"all_gates_passed"`
	CreatedAt         time.Time       `json:"created_at"`
}
