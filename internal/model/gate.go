package model

// Recommendation is the source-match verdict for a candidate.
type Recommendation string

const (
	RecommendUse            Recommendation = "USE"
	RecommendUseWithCaution Recommendation = "USE_WITH_CAUTION"
	RecommendSkip           Recommendation = "SKIP"
)

// Gate1Result records whether a candidate source describes the item.
type Gate1Result struct {
	SourceURL             string         `json:"source_url"`
	Passed                bool           `json:"passed"`
	Confidence            int            `json:"confidence"`
	SKUMatchScore         int            `json:"sku_match_score"`
	VisualSimilarityScore int            `json:"visual_similarity_score"`
	SemanticMatchScore    int            `json:"semantic_match_score"`
	Recommendation        Recommendation `json:"recommendation"`
}

// VerifyMethod names the technique that verified (or failed to verify) a field.
type VerifyMethod string

const (
	MethodDirectMatch         VerifyMethod = "DIRECT_MATCH"
	MethodWordOverlap         VerifyMethod = "WORD_OVERLAP"
	MethodNumericMatch        VerifyMethod = "NUMERIC_MATCH"
	MethodAIReextract         VerifyMethod = "AI_REEXTRACT"
	MethodAIReextractSemantic VerifyMethod = "AI_REEXTRACT_SEMANTIC"
	MethodAISemantic          VerifyMethod = "AI_SEMANTIC"
	MethodNone                VerifyMethod = "NONE"
)

// FieldVerification is the per-field outcome of the extraction gate.
type FieldVerification struct {
	Field      string       `json:"field"`
	Extracted  string       `json:"extracted"`
	Verified   bool         `json:"verified"`
	Method     VerifyMethod `json:"method"`
	Confidence int          `json:"confidence"`
}

// Gate2Result records how much of an extraction is supported by its source.
type Gate2Result struct {
	SourceURL       string              `json:"source_url"`
	Passed          bool                `json:"passed"`
	VerifiedFields  []FieldVerification `json:"verified_fields"`
	OverallAccuracy int                 `json:"overall_accuracy"`
}

// IsVerified reports whether the named field passed verification.
func (g Gate2Result) IsVerified(field string) bool {
	for _, f := range g.VerifiedFields {
		if f.Field == field {
			return f.Verified
		}
	}
	return false
}

// Resolution classifies a cross-source disagreement.
type Resolution string

const (
	ResolutionEquivalent Resolution = "EQUIVALENT"
	ResolutionCompatible Resolution = "COMPATIBLE"
	ResolutionConflict   Resolution = "CONFLICT"
)

// SourceValue is one source's value for a contested field.
type SourceValue struct {
	Source string `json:"source"`
	Value  string `json:"value"`
}

// Conflict is a field on which sources disagree.
type Conflict struct {
	Field         string        `json:"field"`
	Values        []SourceValue `json:"values"`
	Resolution    Resolution    `json:"resolution"`
	ResolvedValue *string       `json:"resolved_value"`
	Reasoning     string        `json:"reasoning"`
}

// Verdict is the cross-source outcome for one claim.
type Verdict string

const (
	VerdictVerified     Verdict = "VERIFIED"
	VerdictUnverified   Verdict = "UNVERIFIED"
	VerdictContradicted Verdict = "CONTRADICTED"
)

// TruthCheck is one atomic claim checked against every source.
type TruthCheck struct {
	Claim          string   `json:"claim"`
	Importance     string   `json:"importance,omitempty"`
	SupportedBy    []string `json:"supported_by"`
	ContradictedBy []string `json:"contradicted_by"`
	Verdict        Verdict  `json:"verdict"`
}

// OverallVerdict summarizes a truth-gate run.
type OverallVerdict string

const (
	AllVerified    OverallVerdict = "ALL_VERIFIED"
	SomeUnverified OverallVerdict = "SOME_UNVERIFIED"
	ConflictsFound OverallVerdict = "CONFLICTS_FOUND"
)

// Gate4Result records claim checks and conflicts across sources.
type Gate4Result struct {
	Passed         bool           `json:"passed"`
	Conflicts      []Conflict     `json:"conflicts"`
	TruthChecks    []TruthCheck   `json:"truth_checks"`
	OverallVerdict OverallVerdict `json:"overall_verdict"`
}

// HasContradictions reports whether any claim was contradicted.
func (g Gate4Result) HasContradictions() bool {
	for _, c := range g.TruthChecks {
		if c.Verdict == VerdictContradicted {
			return true
		}
	}
	return false
}

// UnresolvedConflicts counts CONFLICT entries without a resolved value.
func (g Gate4Result) UnresolvedConflicts() int {
	n := 0
	for _, c := range g.Conflicts {
		if c.Resolution == ResolutionConflict && c.ResolvedValue == nil {
			n++
		}
	}
	return n
}

// WriteIssue classifies a persisted-value mismatch.
type WriteIssue string

const (
	IssueTruncated    WriteIssue = "TRUNCATED"
	IssueCorrupted    WriteIssue = "CORRUPTED"
	IssueMissing      WriteIssue = "MISSING"
	IssueEncoding     WriteIssue = "ENCODING"
	IssueTypeMismatch WriteIssue = "TYPE_MISMATCH"
)

// Discrepancy is one field whose read-back differs from what was written.
type Discrepancy struct {
	Field    string     `json:"field"`
	Intended any        `json:"intended"`
	Actual   any        `json:"actual"`
	Issue    WriteIssue `json:"issue"`
}

// Gate3Result records the outcome of the verified catalog write.
type Gate3Result struct {
	Passed        bool          `json:"passed"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	RetryCount    int           `json:"retry_count"`
}
