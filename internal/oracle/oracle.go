// Package oracle is the typed boundary to the generative model used by the
// verification gates. Every call may fail; callers treat an error as "no
// signal" and never abort a run because of one.
package oracle

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/catalog-enrich/internal/model"
)

// Content windows bound how much page text goes into one prompt.
const (
	RecordWindow  = 12000
	ClaimWindow   = 6000
	ExcerptWindow = 3000
)

// Oracle compares, extracts, and verifies product information.
type Oracle interface {
	CompareImages(ctx context.Context, referenceImage, candidateImage string) (*CompareResult, error)
	CompareAttributes(ctx context.Context, vision model.VisionResult, pageText string) (*CompareResult, error)

	ExtractRecord(ctx context.Context, req RecordRequest) (*RecordExtraction, error)
	ExtractField(ctx context.Context, content, field string) (*FieldExtraction, error)
	ExtractClaims(ctx context.Context, text string) ([]Claim, error)

	VerifyClaim(ctx context.Context, content, claim string) (*ClaimVerdict, error)
	CheckEquivalence(ctx context.Context, field string, values []string) (*Equivalence, error)
}

// CompareResult is the outcome of an image or attribute comparison.
type CompareResult struct {
	Similar    bool   `json:"similar"`
	Confidence int    `json:"confidence"`
	Reasoning  string `json:"reasoning"`
}

// RecordRequest asks for a structured record from one page.
type RecordRequest struct {
	URL      string
	Content  string
	NameHint string
}

// RecordExtraction is the structured product data found on a page.
type RecordExtraction struct {
	ProductName      string            `json:"productName"`
	Description      string            `json:"description"`
	Specifications   map[string]string `json:"specifications"`
	RelatedProducts  []string          `json:"relatedProducts"`
	InstallationInfo string            `json:"installationInfo"`
	Certifications   []string          `json:"certifications"`
}

// FieldExtraction is a single re-extracted field value.
type FieldExtraction struct {
	Value string `json:"value"`
	Found bool   `json:"found"`
}

// Claim is one atomic, checkable statement from a description.
type Claim struct {
	Text       string `json:"claim"`
	Importance string `json:"importance"`
}

// ClaimVerdict says whether a source supports or contradicts a claim.
// Neither flag set means the source is silent.
type ClaimVerdict struct {
	Supported    bool   `json:"supported"`
	Contradicted bool   `json:"contradicted"`
	Reasoning    string `json:"reasoning"`
}

// Equivalence reports whether differing field values mean the same thing.
type Equivalence struct {
	Equivalent      bool   `json:"equivalent"`
	Compatible      bool   `json:"compatible"`
	NormalizedValue string `json:"normalizedValue"`
	Reasoning       string `json:"reasoning"`
}

// Window truncates s to at most n bytes without splitting a rune.
func Window(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Excerpt returns an n-byte window of content centred on the first
// case-insensitive occurrence of needle, or the leading window when the
// needle is absent.
func Excerpt(content, needle string, n int) string {
	if len(content) <= n {
		return content
	}
	idx := -1
	if needle != "" {
		idx = strings.Index(strings.ToLower(content), strings.ToLower(needle))
	}
	if idx < 0 {
		return Window(content, n)
	}

	start := idx - n/2
	if start < 0 {
		start = 0
	}
	if start+n > len(content) {
		start = len(content) - n
	}
	for start > 0 && !utf8.RuneStart(content[start]) {
		start--
	}
	return Window(content[start:], n)
}
