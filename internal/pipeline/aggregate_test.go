package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/catalog-enrich/internal/model"
)

func TestAggregate_AgreementOutweighsSingleHigherTrust(t *testing.T) {
	records := []model.ExtractedRecord{
		{SourceURL: "a", Specifications: map[string]string{"Material": "Stainless Steel"}},
		{SourceURL: "b", Specifications: map[string]string{"material": "stainless-steel"}},
		{SourceURL: "c", Specifications: map[string]string{"Material": "Aluminum"}},
	}
	trust := map[string]int{"a": 10, "b": 8, "c": 10}

	agg := Aggregate(records, trust)
	assert.Equal(t, map[string]string{"Material": "Stainless Steel"}, agg.Specifications)
	fs := agg.FieldSources["spec:Material"]
	assert.Equal(t, []string{"a", "b"}, fs.AgreedBy)
	assert.Equal(t, model.ConfidenceMedium, fs.ConfidenceLevel)
}

func TestAggregate_RepresentativeIsHighestTrustSpelling(t *testing.T) {
	records := []model.ExtractedRecord{
		{SourceURL: "low", ProductName: "spacer bar"},
		{SourceURL: "high", ProductName: "Spacer Bar"},
	}
	agg := Aggregate(records, map[string]int{"low": 4, "high": 10})
	assert.Equal(t, "Spacer Bar", agg.ProductName)
	assert.Equal(t, []string{"low", "high"}, agg.Sources)
}

func TestAggregate_ConfidenceLabels(t *testing.T) {
	tests := []struct {
		name    string
		sources int
		want    model.ConfidenceLevel
	}{
		{"single source is low", 1, model.ConfidenceLow},
		{"two sources medium", 2, model.ConfidenceMedium},
		{"three sources high", 3, model.ConfidenceHigh},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var recs []model.ExtractedRecord
			trust := map[string]int{}
			for i := 0; i < tc.sources; i++ {
				u := string(rune('a' + i))
				recs = append(recs, model.ExtractedRecord{SourceURL: u, Description: "Steel spacer bar."})
				trust[u] = 5
			}
			agg := Aggregate(recs, trust)
			assert.Equal(t, tc.want, agg.FieldSources["description"].ConfidenceLevel)
		})
	}
}

func TestAggregate_UnionAndProvenance(t *testing.T) {
	records := []model.ExtractedRecord{
		{SourceURL: "a", Certifications: []string{"UL Listed", "CE"}, RelatedProducts: []string{"SB-75"}},
		{SourceURL: "b", Certifications: []string{"ul listed", "RoHS"}},
	}
	agg := Aggregate(records, map[string]int{"a": 10, "b": 8})
	assert.Equal(t, []string{"UL Listed", "CE", "RoHS"}, agg.Certifications)
	assert.Equal(t, []string{"SB-75"}, agg.RelatedProducts)
	assert.Equal(t, []string{"a", "b"}, agg.FieldSources["certification:0"].AgreedBy)
	assert.Equal(t, []string{"b"}, agg.FieldSources["certification:2"].AgreedBy)
	assert.Equal(t, "SB-75", agg.FieldSources["relatedProduct:0"].Value)

	// Every provenance entry points at a listed source.
	for field, fs := range agg.FieldSources {
		require.NotEmpty(t, fs.AgreedBy, field)
		for _, u := range fs.AgreedBy {
			assert.Contains(t, agg.Sources, u, field)
		}
	}
}

func TestAggregate_SpecKeyDisplay(t *testing.T) {
	records := []model.ExtractedRecord{
		{SourceURL: "low", Specifications: map[string]string{"width": "50 mm"}},
		{SourceURL: "high", Specifications: map[string]string{"Width": "50 mm"}},
	}
	agg := Aggregate(records, map[string]int{"low": 3, "high": 9})
	assert.Equal(t, map[string]string{"Width": "50 mm"}, agg.Specifications)
	assert.Equal(t, model.ConfidenceMedium, agg.FieldSources["spec:Width"].ConfidenceLevel)
}

func TestAggregate_Empty(t *testing.T) {
	agg := Aggregate(nil, nil)
	assert.Empty(t, agg.ProductName)
	assert.Empty(t, agg.Specifications)
	assert.Empty(t, agg.Sources)
}

func TestAggregateVisionOnly(t *testing.T) {
	item := model.Item{ID: "1", Name: "50mm Spacer Bar"}
	v := model.VisionResult{
		Category:     "hardware",
		Subcategory:  "spacer",
		Materials:    []string{"steel", "rubber"},
		Colors:       []string{"black"},
		UsageContext: "cabinet assembly",
	}
	agg := AggregateVisionOnly(item, v)
	assert.True(t, agg.VisionOnly)
	assert.Equal(t, "50mm Spacer Bar", agg.ProductName)
	assert.Equal(t, "50mm Spacer Bar is a spacer made of steel and rubber in black. Suited for cabinet assembly.", agg.Description)
	assert.Equal(t, map[string]string{"Material": "steel, rubber", "Color": "black"}, agg.Specifications)
	assert.Equal(t, []string{model.VisionSourceURL}, agg.Sources)
	for _, fs := range agg.FieldSources {
		assert.Equal(t, model.ConfidenceLow, fs.ConfidenceLevel)
	}

	minimal := AggregateVisionOnly(model.Item{ID: "2", Name: "Widget"}, model.VisionResult{Category: "unknown"})
	assert.Empty(t, minimal.Description)
	assert.Equal(t, "Widget", minimal.ProductName)
}

func TestAggregateVisionOnly_ExistingDescriptionNotReplaced(t *testing.T) {
	item := model.Item{ID: "1", Name: "50mm Spacer Bar", Description: "Hand-written copy."}
	agg := AggregateVisionOnly(item, model.VisionResult{Category: "hardware", Subcategory: "spacer", Materials: []string{"steel"}})
	assert.Empty(t, agg.Description)
	assert.NotContains(t, agg.FieldSources, model.FieldDescription)
	assert.Equal(t, "steel", agg.Specifications["Material"])
}
