package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/catalog-enrich/internal/model"
)

func TestOverallConfidence(t *testing.T) {
	healthy := ConfidenceInputs{
		VerifiedSources:   3,
		Gate2Passed:       3,
		Gate3Passed:       true,
		AllGatesPassed:    true,
		MinSourcesForHigh: 3,
	}

	tests := []struct {
		name   string
		modify func(*ConfidenceInputs)
		want   model.ConfidenceLevel
	}{
		{"all gates with enough sources", func(*ConfidenceInputs) {}, model.ConfidenceHigh},
		{"vision only", func(in *ConfidenceInputs) { in.VisionOnly = true }, model.ConfidenceLow},
		{"no verified sources", func(in *ConfidenceInputs) { in.VerifiedSources = 0 }, model.ConfidenceLow},
		{"write not verified", func(in *ConfidenceInputs) { in.Gate3Passed = false }, model.ConfidenceLow},
		{"contradiction left in description", func(in *ConfidenceInputs) { in.UnfilteredContradiction = true }, model.ConfidenceLow},
		{"unresolved conflict", func(in *ConfidenceInputs) { in.UnresolvedConflicts = 1 }, model.ConfidenceLow},
		{"two sources without all gates", func(in *ConfidenceInputs) {
			in.AllGatesPassed = false
			in.VerifiedSources, in.Gate2Passed = 2, 2
		}, model.ConfidenceMedium},
		{"too few sources for high", func(in *ConfidenceInputs) {
			in.VerifiedSources, in.Gate2Passed = 2, 2
		}, model.ConfidenceMedium},
		{"single source with all gates", func(in *ConfidenceInputs) {
			in.VerifiedSources, in.Gate2Passed = 1, 1
		}, model.ConfidenceLow},
		{"two sources but one gate 2 pass", func(in *ConfidenceInputs) {
			in.AllGatesPassed = false
			in.VerifiedSources, in.Gate2Passed = 2, 1
		}, model.ConfidenceLow},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := healthy
			tc.modify(&in)
			assert.Equal(t, tc.want, OverallConfidence(in))
		})
	}
}
