package pipeline

import "github.com/sells-group/catalog-enrich/internal/model"

// ConfidenceInputs are the facts the final confidence label depends on.
type ConfidenceInputs struct {
	VisionOnly              bool
	VerifiedSources         int
	Gate2Passed             int
	Gate3Passed             bool
	UnfilteredContradiction bool
	UnresolvedConflicts     int
	AllGatesPassed          bool
	MinSourcesForHigh       int
}

// OverallConfidence applies the decision table top to bottom; the first
// matching rule wins.
func OverallConfidence(in ConfidenceInputs) model.ConfidenceLevel {
	switch {
	case in.VisionOnly || in.VerifiedSources == 0:
		return model.ConfidenceLow
	case !in.Gate3Passed:
		return model.ConfidenceLow
	case in.UnfilteredContradiction || in.UnresolvedConflicts > 0:
		return model.ConfidenceLow
	case in.AllGatesPassed && in.VerifiedSources >= in.MinSourcesForHigh:
		return model.ConfidenceHigh
	case in.VerifiedSources >= 2 && in.Gate2Passed >= 2:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}
