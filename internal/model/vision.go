package model

// VisionResult holds the visual attributes a vision classifier assigned to an
// item image. It is produced once per run and never mutated afterwards.
type VisionResult struct {
	Category          string   `json:"category"`
	Subcategory       string   `json:"subcategory"`
	Materials         []string `json:"materials"`
	Colors            []string `json:"colors"`
	Style             string   `json:"style"`
	UsageContext      string   `json:"usage_context"`
	TargetDemographic string   `json:"target_demographic"`
	Confidence        int      `json:"confidence"` // 0-100
	DetectedText      []string `json:"detected_text"`
}

// HasSignal reports whether the classifier produced anything usable.
func (v VisionResult) HasSignal() bool {
	return v.Confidence > 0 || v.Category != "" || len(v.Materials) > 0 || len(v.DetectedText) > 0
}
