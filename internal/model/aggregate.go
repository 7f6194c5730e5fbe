package model

// ConfidenceLevel labels how much a field (or a whole run) can be trusted.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "HIGH"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceLow    ConfidenceLevel = "LOW"
)

// VisionSourceURL is the provenance entry used when content was synthesized
// from the vision result alone.
const VisionSourceURL = "vision://classifier"

// FieldSource is the provenance of one aggregated field.
type FieldSource struct {
	Value           string          `json:"value"`
	AgreedBy        []string        `json:"agreed_by"`
	ConfidenceLevel ConfidenceLevel `json:"confidence_level"`
}

// AggregatedRecord is the single merged record produced from every verified source.
// Every populated field has a FieldSources entry whose AgreedBy URLs appear in Sources.
type AggregatedRecord struct {
	ProductName      string                 `json:"product_name"`
	Description      string                 `json:"description"`
	Specifications   map[string]string      `json:"specifications"`
	InstallationInfo string                 `json:"installation_info,omitempty"`
	Certifications   []string               `json:"certifications,omitempty"`
	RelatedProducts  []string               `json:"related_products,omitempty"`
	Sources          []string               `json:"sources"`
	FieldSources     map[string]FieldSource `json:"field_sources"`
	VisionOnly       bool                   `json:"vision_only,omitempty"`
}

// Aggregated field keys shared by the aggregator, the truth gate and reports.
const (
	FieldProductName      = "productName"
	FieldDescription      = "description"
	FieldInstallationInfo = "installationInfo"
	SpecFieldPrefix       = "spec:"
	CertFieldPrefix       = "certification:"
	RelatedFieldPrefix    = "relatedProduct:"
)

// SpecField returns the field key for a specification entry.
func SpecField(key string) string { return SpecFieldPrefix + key }

// LevelForAgreement labels a field by how many sources agreed on it.
// A single source is LOW, never HIGH.
func LevelForAgreement(n int) ConfidenceLevel {
	switch {
	case n >= 3:
		return ConfidenceHigh
	case n == 2:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
