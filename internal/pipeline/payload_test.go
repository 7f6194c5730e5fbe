package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/catalog-enrich/internal/model"
)

func TestBuildPayload(t *testing.T) {
	item := model.Item{ID: "item-1", Name: "Spacer", Description: "old"}
	v := model.VisionResult{
		Category:          "Hardware",
		Subcategory:       "unknown",
		Materials:         []string{"Steel", "steel"},
		Colors:            []string{"Black"},
		UsageContext:      "cabinets",
		TargetDemographic: "installers",
	}
	agg := model.AggregatedRecord{
		Description:      "Steel spacer bar.",
		Specifications:   map[string]string{"Width": "50 mm"},
		InstallationInfo: "Screw mount.",
		Certifications:   []string{"UL"},
		Sources:          []string{"https://a"},
	}

	p := BuildPayload(item, v, agg)
	assert.Equal(t, "item-1", p.ItemID)
	assert.Equal(t, "Steel spacer bar.", p.Description)
	assert.Equal(t, map[string]string{"Width": "50 mm"}, p.Specifications)
	assert.Equal(t, []string{"Certified: UL", "Installation: Screw mount."}, p.Features)
	assert.Equal(t, []string{"Suited for cabinets", "Designed for installers"}, p.Benefits)
	assert.Equal(t, []string{"hardware", "steel", "black"}, p.Tags)
	assert.Equal(t, []string{"https://a"}, p.Sources)
	assert.Equal(t, model.EnrichmentEnriched, p.EnrichmentStatus)
	assert.Equal(t, model.EnrichmentSourceMultiSource, p.EnrichmentSource)

	// The payload owns its maps.
	p.Specifications["Width"] = "60 mm"
	assert.Equal(t, "50 mm", agg.Specifications["Width"])
}

func TestBuildPayload_VisionOnlyKeepsExistingDescription(t *testing.T) {
	item := model.Item{ID: "item-2", Description: "Existing copy."}
	agg := model.AggregatedRecord{
		VisionOnly:  true,
		Description: "Item is a spacer made of steel.",
		Sources:     []string{model.VisionSourceURL},
	}

	p := BuildPayload(item, model.VisionResult{}, agg)
	assert.Equal(t, "Existing copy.", p.Description)
	assert.Equal(t, model.EnrichmentPartial, p.EnrichmentStatus)
	assert.Equal(t, model.EnrichmentSourceVisionOnly, p.EnrichmentSource)
	assert.NotNil(t, p.Features)
	assert.NotNil(t, p.Benefits)
	assert.NotNil(t, p.Tags)

	blank := BuildPayload(model.Item{ID: "item-3"}, model.VisionResult{}, agg)
	assert.Equal(t, "Item is a spacer made of steel.", blank.Description)
}
