package model

// SourceType ranks a reference page by how authoritative its domain is.
type SourceType string

const (
	SourceTypePrimary   SourceType = "primary"
	SourceTypeSecondary SourceType = "secondary"
	SourceTypeTertiary  SourceType = "tertiary"
)

// SourceCandidate is a reference page that may describe the item being enriched.
type SourceCandidate struct {
	URL                  string     `json:"url"`
	SourceType           SourceType `json:"source_type"`
	SourceName           string     `json:"source_name"`
	TrustLevel           int        `json:"trust_level"` // 1-10
	PageTitle            string     `json:"page_title"`
	PageContent          string     `json:"page_content"`
	ExtractedProductName string     `json:"extracted_product_name"`
	ExtractedSKU         string     `json:"extracted_sku,omitempty"`
	ExtractedImages      []string   `json:"extracted_images,omitempty"`
}

// TrustByURL indexes candidate trust levels by URL.
func TrustByURL(cands []SourceCandidate) map[string]int {
	m := make(map[string]int, len(cands))
	for _, c := range cands {
		m[c.URL] = c.TrustLevel
	}
	return m
}

// ExtractedRecord holds the structured facts pulled from one source page.
type ExtractedRecord struct {
	SourceURL        string            `json:"source_url"`
	ProductName      string            `json:"product_name"`
	Description      string            `json:"description"`
	Specifications   map[string]string `json:"specifications"`
	RelatedProducts  []string          `json:"related_products"`
	InstallationInfo string            `json:"installation_info"`
	Certifications   []string          `json:"certifications"`
	RawExtract       string            `json:"raw_extract"`
}

// IsEmpty reports whether no structured field was populated.
func (r ExtractedRecord) IsEmpty() bool {
	return r.ProductName == "" && r.Description == "" && len(r.Specifications) == 0 &&
		r.InstallationInfo == "" && len(r.Certifications) == 0
}
