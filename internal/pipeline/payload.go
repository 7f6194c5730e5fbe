package pipeline

import (
	"strings"

	"github.com/sells-group/catalog-enrich/internal/model"
)

// BuildPayload turns the aggregated record and vision result into the
// catalog write payload. The item's existing description is kept when no
// description survived verification, and always on a vision-only run: an
// unverified synthesized description only fills an empty record.
func BuildPayload(item model.Item, v model.VisionResult, agg model.AggregatedRecord) model.CatalogPayload {
	p := model.CatalogPayload{
		ItemID:           item.ID,
		Description:      agg.Description,
		Specifications:   make(map[string]string, len(agg.Specifications)),
		Features:         []string{},
		Benefits:         []string{},
		Tags:             []string{},
		Sources:          append([]string{}, agg.Sources...),
		EnrichmentStatus: model.EnrichmentEnriched,
		EnrichmentSource: model.EnrichmentSourceMultiSource,
	}
	if strings.TrimSpace(p.Description) == "" || (agg.VisionOnly && strings.TrimSpace(item.Description) != "") {
		p.Description = item.Description
	}
	for k, val := range agg.Specifications {
		p.Specifications[k] = val
	}

	for _, c := range agg.Certifications {
		p.Features = append(p.Features, "Certified: "+c)
	}
	if agg.InstallationInfo != "" {
		p.Features = append(p.Features, "Installation: "+agg.InstallationInfo)
	}

	if v.UsageContext != "" {
		p.Benefits = append(p.Benefits, "Suited for "+v.UsageContext)
	}
	if v.TargetDemographic != "" {
		p.Benefits = append(p.Benefits, "Designed for "+v.TargetDemographic)
	}

	addTag := func(t string) {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || t == "unknown" {
			return
		}
		for _, existing := range p.Tags {
			if existing == t {
				return
			}
		}
		p.Tags = append(p.Tags, t)
	}
	addTag(v.Category)
	addTag(v.Subcategory)
	for _, m := range v.Materials {
		addTag(m)
	}
	for _, c := range v.Colors {
		addTag(c)
	}
	addTag(v.Style)

	if agg.VisionOnly {
		p.EnrichmentStatus = model.EnrichmentPartial
		p.EnrichmentSource = model.EnrichmentSourceVisionOnly
	}
	return p
}
