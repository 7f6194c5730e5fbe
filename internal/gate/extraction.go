package gate

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/catalog-enrich/internal/config"
	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/oracle"
	"github.com/sells-group/catalog-enrich/internal/resilience"
)

const longValueChars = 20

// ExtractionVerifier proves extracted fields against their source page.
type ExtractionVerifier struct {
	oracle oracle.Oracle
}

// NewExtractionVerifier creates an ExtractionVerifier.
func NewExtractionVerifier(o oracle.Oracle) *ExtractionVerifier {
	return &ExtractionVerifier{oracle: o}
}

type fieldValue struct {
	key   string // productName, spec:<k>, certification:<i>, ...
	label string // human name used in prompts
	value string
}

// recordFields lists the verifiable non-empty fields of rec in a stable order.
func recordFields(rec model.ExtractedRecord) []fieldValue {
	var out []fieldValue
	add := func(key, label, value string) {
		if strings.TrimSpace(value) != "" {
			out = append(out, fieldValue{key: key, label: label, value: value})
		}
	}
	add(model.FieldProductName, "product name", rec.ProductName)
	add(model.FieldDescription, "product description", rec.Description)

	keys := make([]string, 0, len(rec.Specifications))
	for k := range rec.Specifications {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(model.SpecField(k), "specification "+strconv.Quote(k), rec.Specifications[k])
	}

	add(model.FieldInstallationInfo, "installation information", rec.InstallationInfo)
	for i, c := range rec.Certifications {
		add(model.CertFieldPrefix+strconv.Itoa(i), "certification", c)
	}
	return out
}

// Verify checks every non-empty field of rec against the candidate's page.
func (e *ExtractionVerifier) Verify(ctx context.Context, cand model.SourceCandidate, rec model.ExtractedRecord, cfg config.PipelineConfig) model.Gate2Result {
	content := cand.PageContent
	if content == "" {
		content = rec.RawExtract
	}
	normContent := NormalizeText(content)
	measures := FindMeasurements(content)

	fields := recordFields(rec)
	res := model.Gate2Result{SourceURL: cand.URL, VerifiedFields: make([]model.FieldVerification, 0, len(fields))}
	verified := 0
	for _, f := range fields {
		fv := e.verifyField(ctx, f, content, normContent, measures, cfg)
		if fv.Verified {
			verified++
		}
		res.VerifiedFields = append(res.VerifiedFields, fv)
	}

	if len(fields) > 0 {
		res.OverallAccuracy = int(math.Round(100 * float64(verified) / float64(len(fields))))
	}
	res.Passed = len(fields) > 0 && res.OverallAccuracy >= cfg.Gate2PassThreshold

	zap.L().Debug("gate2: source verified",
		zap.String("source_url", cand.URL),
		zap.Int("fields", len(fields)),
		zap.Int("verified", verified),
		zap.Int("accuracy", res.OverallAccuracy),
	)
	return res
}

func (e *ExtractionVerifier) verifyField(ctx context.Context, f fieldValue, content, normContent string, measures []Measurement, cfg config.PipelineConfig) model.FieldVerification {
	fv := model.FieldVerification{Field: f.key, Extracted: f.value, Method: model.MethodNone}
	ok := func(m model.VerifyMethod, conf int) model.FieldVerification {
		fv.Verified, fv.Method, fv.Confidence = true, m, conf
		return fv
	}

	// Direct match.
	normValue := NormalizeText(f.value)
	if containsPhrase(normContent, normValue) {
		return ok(model.MethodDirectMatch, 100)
	}
	if len(f.value) > longValueChars {
		if ratio := wordOverlap(normValue, normContent); ratio >= 0.8 {
			return ok(model.MethodWordOverlap, int(math.Round(ratio*95)))
		}
	}
	if want, isNum := ParseMeasurement(f.value); isNum {
		if conf := matchMeasurement(want, measures); conf > 0 {
			return ok(model.MethodNumericMatch, conf)
		}
	}

	if !cfg.EnableSemanticVerification {
		return fv
	}

	log := zap.L().With(zap.String("field", f.key))
	claim := claimFor(f)
	excerpt := oracle.Excerpt(content, f.value, oracle.ExcerptWindow)

	// AI re-extraction.
	askedSemantic := false
	re, err := e.oracle.ExtractField(ctx, oracle.Window(content, oracle.RecordWindow), f.label)
	switch {
	case err != nil:
		log.Warn("gate2: re-extraction failed", zap.Error(err))
	case re != nil && re.Found && sameValue(re.Value, f.value):
		return ok(model.MethodAIReextract, 85)
	case re != nil && re.Found && strings.TrimSpace(re.Value) != "":
		askedSemantic = true
		verdict, err := e.oracle.VerifyClaim(ctx, excerpt, claim)
		switch {
		case err != nil:
			log.Warn("gate2: semantic check failed", zap.Error(err))
		case verdict == nil:
		case verdict.Contradicted:
			fv.Method = model.MethodAIReextractSemantic
			return fv
		case verdict.Supported:
			return ok(model.MethodAIReextractSemantic, 75)
		}
	}

	// Semantic fallback, unless the same question was already asked above.
	if askedSemantic {
		return fv
	}
	verdict, err := e.oracle.VerifyClaim(ctx, excerpt, claim)
	switch {
	case err != nil:
		log.Warn("gate2: semantic check failed", zap.Error(err))
	case verdict == nil:
	case verdict.Contradicted:
		fv.Method = model.MethodAISemantic
	case verdict.Supported:
		return ok(model.MethodAISemantic, 70)
	}
	return fv
}

// VerifyAll verifies records against their candidates concurrently. Records
// whose source URL matches no candidate are checked against their raw extract.
func (e *ExtractionVerifier) VerifyAll(ctx context.Context, cands []model.SourceCandidate, recs []model.ExtractedRecord, cfg config.PipelineConfig) []model.Gate2Result {
	byURL := make(map[string]model.SourceCandidate, len(cands))
	for _, c := range cands {
		byURL[c.URL] = c
	}

	results := make([]model.Gate2Result, len(recs))
	var g errgroup.Group
	g.SetLimit(cfg.Concurrency())
	for i := range recs {
		g.Go(func() error {
			defer resilience.Recover("gate2: verify "+recs[i].SourceURL, func(error) {
				results[i] = model.Gate2Result{SourceURL: recs[i].SourceURL, VerifiedFields: []model.FieldVerification{}}
			})
			cand, found := byURL[recs[i].SourceURL]
			if !found {
				cand = model.SourceCandidate{URL: recs[i].SourceURL}
			}
			results[i] = e.Verify(ctx, cand, recs[i], cfg)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// VerifiedFields returns a copy of rec holding only the fields res verified.
// Related products are not verified individually and are kept as-is.
func VerifiedFields(rec model.ExtractedRecord, res model.Gate2Result) model.ExtractedRecord {
	out := model.ExtractedRecord{
		SourceURL:       rec.SourceURL,
		RawExtract:      rec.RawExtract,
		RelatedProducts: append([]string(nil), rec.RelatedProducts...),
		Specifications:  make(map[string]string),
	}
	if res.IsVerified(model.FieldProductName) {
		out.ProductName = rec.ProductName
	}
	if res.IsVerified(model.FieldDescription) {
		out.Description = rec.Description
	}
	if res.IsVerified(model.FieldInstallationInfo) {
		out.InstallationInfo = rec.InstallationInfo
	}
	for k, v := range rec.Specifications {
		if res.IsVerified(model.SpecField(k)) {
			out.Specifications[k] = v
		}
	}
	for i, c := range rec.Certifications {
		if res.IsVerified(model.CertFieldPrefix + strconv.Itoa(i)) {
			out.Certifications = append(out.Certifications, c)
		}
	}
	return out
}

func claimFor(f fieldValue) string {
	switch f.key {
	case model.FieldDescription:
		return f.value
	case model.FieldProductName:
		return fmt.Sprintf("The product is named %q.", f.value)
	case model.FieldInstallationInfo:
		return "Installation: " + f.value
	}
	if strings.HasPrefix(f.key, model.CertFieldPrefix) {
		return fmt.Sprintf("The product is certified %s.", f.value)
	}
	return fmt.Sprintf("The product's %s is %s.", strings.TrimPrefix(f.key, model.SpecFieldPrefix), f.value)
}

func sameValue(a, b string) bool {
	return strings.EqualFold(strings.Join(strings.Fields(a), " "), strings.Join(strings.Fields(b), " "))
}
