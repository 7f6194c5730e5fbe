package gate

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/oracle"
	"github.com/sells-group/catalog-enrich/internal/resilience"
)

const (
	claimConcurrency = 4
	// sentenceTermShare is the share of a contradicted claim's key terms a
	// sentence must contain to be removed.
	sentenceTermShare = 0.6
)

// TruthVerifier reconciles facts across sources.
type TruthVerifier struct {
	oracle oracle.Oracle
}

// NewTruthVerifier creates a TruthVerifier.
func NewTruthVerifier(o oracle.Oracle) *TruthVerifier {
	return &TruthVerifier{oracle: o}
}

// Verify detects field conflicts between records and checks every claim of
// the aggregated description against each record's source text. It returns
// an error only when claims could not be extracted; the result then carries
// the conflicts alone.
func (t *TruthVerifier) Verify(ctx context.Context, records []model.ExtractedRecord, agg model.AggregatedRecord) (model.Gate4Result, error) {
	res := model.Gate4Result{
		Conflicts:   t.findConflicts(ctx, records),
		TruthChecks: []model.TruthCheck{},
	}

	var err error
	if strings.TrimSpace(agg.Description) != "" {
		var claims []oracle.Claim
		claims, err = t.oracle.ExtractClaims(ctx, agg.Description)
		if err != nil {
			err = eris.Wrap(err, "gate4: extract claims")
		} else {
			res.TruthChecks = t.checkClaims(ctx, claims, records)
		}
	}

	finalize(&res)
	return res, err
}

func finalize(res *model.Gate4Result) {
	conflicts := 0
	for _, c := range res.Conflicts {
		if c.Resolution == model.ResolutionConflict {
			conflicts++
		}
	}
	contradicted := res.HasContradictions()
	res.Passed = conflicts == 0 && !contradicted
	switch {
	case conflicts > 0:
		res.OverallVerdict = model.ConflictsFound
	case contradicted:
		res.OverallVerdict = model.SomeUnverified
	default:
		res.OverallVerdict = model.AllVerified
	}
}

func (t *TruthVerifier) checkClaims(ctx context.Context, claims []oracle.Claim, records []model.ExtractedRecord) []model.TruthCheck {
	checks := make([]model.TruthCheck, len(claims))
	var g errgroup.Group
	g.SetLimit(claimConcurrency)
	for i := range claims {
		g.Go(func() error {
			defer resilience.Recover("gate4: check claim", func(error) {
				checks[i] = model.TruthCheck{
					Claim:          claims[i].Text,
					Importance:     claims[i].Importance,
					SupportedBy:    []string{},
					ContradictedBy: []string{},
					Verdict:        model.VerdictUnverified,
				}
			})
			checks[i] = t.checkClaim(ctx, claims[i], records)
			return nil
		})
	}
	_ = g.Wait()
	return checks
}

func (t *TruthVerifier) checkClaim(ctx context.Context, claim oracle.Claim, records []model.ExtractedRecord) model.TruthCheck {
	tc := model.TruthCheck{
		Claim:          claim.Text,
		Importance:     claim.Importance,
		SupportedBy:    []string{},
		ContradictedBy: []string{},
	}
	for _, rec := range records {
		if strings.TrimSpace(rec.RawExtract) == "" {
			continue
		}
		v, err := t.oracle.VerifyClaim(ctx, oracle.Window(rec.RawExtract, oracle.ClaimWindow), claim.Text)
		if err != nil {
			zap.L().Warn("gate4: claim check failed",
				zap.String("source_url", rec.SourceURL), zap.Error(err))
			continue
		}
		switch {
		case v == nil:
		case v.Contradicted:
			tc.ContradictedBy = append(tc.ContradictedBy, rec.SourceURL)
		case v.Supported:
			tc.SupportedBy = append(tc.SupportedBy, rec.SourceURL)
		}
	}
	switch {
	case len(tc.ContradictedBy) > 0:
		tc.Verdict = model.VerdictContradicted
	case len(tc.SupportedBy) > 0:
		tc.Verdict = model.VerdictVerified
	default:
		tc.Verdict = model.VerdictUnverified
	}
	return tc
}

type fieldValues struct {
	field  string
	values []model.SourceValue
}

// conflictCandidates collects productName and every specification key that
// at least two records report, in a stable order.
func conflictCandidates(records []model.ExtractedRecord) []fieldValues {
	var out []fieldValues

	var names []model.SourceValue
	for _, r := range records {
		if strings.TrimSpace(r.ProductName) != "" {
			names = append(names, model.SourceValue{Source: r.SourceURL, Value: r.ProductName})
		}
	}
	if len(names) >= 2 {
		out = append(out, fieldValues{field: model.FieldProductName, values: names})
	}

	specs := make(map[string]*fieldValues)
	var order []string
	for _, r := range records {
		keys := make([]string, 0, len(r.Specifications))
		for k := range r.Specifications {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			v := r.Specifications[k]
			if strings.TrimSpace(v) == "" {
				continue
			}
			nk := NormalizeKey(k)
			fv, ok := specs[nk]
			if !ok {
				fv = &fieldValues{field: model.SpecField(k)}
				specs[nk] = fv
				order = append(order, nk)
			}
			fv.values = append(fv.values, model.SourceValue{Source: r.SourceURL, Value: v})
		}
	}
	for _, nk := range order {
		if len(specs[nk].values) >= 2 {
			out = append(out, *specs[nk])
		}
	}
	return out
}

func (t *TruthVerifier) findConflicts(ctx context.Context, records []model.ExtractedRecord) []model.Conflict {
	conflicts := []model.Conflict{}
	for _, fv := range conflictCandidates(records) {
		if allAgree(fv.values) {
			continue
		}
		c := model.Conflict{Field: fv.field, Values: fv.values}

		vals := make([]string, len(fv.values))
		for i, sv := range fv.values {
			vals[i] = sv.Value
		}
		eq, err := t.oracle.CheckEquivalence(ctx, fv.field, vals)
		switch {
		case err != nil:
			zap.L().Warn("gate4: equivalence check failed", zap.String("field", fv.field), zap.Error(err))
			c.Resolution = model.ResolutionConflict
			c.Reasoning = "equivalence check unavailable"
		case eq == nil:
			c.Resolution = model.ResolutionConflict
			c.Reasoning = "equivalence check returned no answer"
		case eq.Equivalent || eq.Compatible:
			c.Resolution = model.ResolutionEquivalent
			if !eq.Equivalent {
				c.Resolution = model.ResolutionCompatible
			}
			resolved := eq.NormalizedValue
			if strings.TrimSpace(resolved) == "" {
				resolved = vals[0]
			}
			c.ResolvedValue = &resolved
			c.Reasoning = eq.Reasoning
		default:
			c.Resolution = model.ResolutionConflict
			c.Reasoning = eq.Reasoning
		}
		conflicts = append(conflicts, c)
	}
	return conflicts
}

func allAgree(values []model.SourceValue) bool {
	first := NormalizeText(values[0].Value)
	for _, v := range values[1:] {
		if NormalizeText(v.Value) != first {
			return false
		}
	}
	return true
}

// ResolveConflicts settles each unresolved CONFLICT with the value Elect
// picks from its sources, so agreeing sources outweigh a single higher-trust
// dissent. Between single sources the highest trust wins; on equal trust the
// first-listed source wins.
func ResolveConflicts(res model.Gate4Result, trustByURL map[string]int) model.Gate4Result {
	out := res
	out.Conflicts = make([]model.Conflict, len(res.Conflicts))
	copy(out.Conflicts, res.Conflicts)

	for i, c := range out.Conflicts {
		if c.Resolution != model.ResolutionConflict || c.ResolvedValue != nil {
			continue
		}
		ballots := make([]Ballot, len(c.Values))
		for j, sv := range c.Values {
			ballots[j] = Ballot{URL: sv.Source, Value: sv.Value, Trust: trustByURL[sv.Source]}
		}
		g := Elect(ballots)
		if g == nil {
			continue
		}
		v := g.Representative()
		out.Conflicts[i].ResolvedValue = &v
		out.Conflicts[i].Reasoning = strings.TrimSpace(fmt.Sprintf("%s Resolved to %q from %d source(s) led by %s.",
			c.Reasoning, v, len(g.Ballots), g.LeadURL()))
	}
	return out
}

// ApplyResolutions writes every resolved conflict value into a copy of agg.
// The field's provenance is rebuilt from the sources backing the applied
// value: all of them for an equivalence, only the matching ones for a
// resolved CONFLICT.
func ApplyResolutions(agg model.AggregatedRecord, res model.Gate4Result) model.AggregatedRecord {
	out := agg
	out.Specifications = make(map[string]string, len(agg.Specifications))
	for k, v := range agg.Specifications {
		out.Specifications[k] = v
	}
	out.FieldSources = make(map[string]model.FieldSource, len(agg.FieldSources))
	for k, v := range agg.FieldSources {
		out.FieldSources[k] = v
	}

	for _, c := range res.Conflicts {
		if c.ResolvedValue == nil {
			continue
		}
		value := *c.ResolvedValue
		field := c.Field
		switch {
		case field == model.FieldProductName:
			out.ProductName = value
		case strings.HasPrefix(field, model.SpecFieldPrefix):
			key := specKeyIn(out.Specifications, strings.TrimPrefix(field, model.SpecFieldPrefix))
			out.Specifications[key] = value
			field = model.SpecField(key)
		default:
			continue
		}
		agreed := backers(c)
		out.FieldSources[field] = model.FieldSource{
			Value:           value,
			AgreedBy:        agreed,
			ConfidenceLevel: model.LevelForAgreement(len(agreed)),
		}
	}
	return out
}

// backers lists the sources supporting a conflict's resolved value.
func backers(c model.Conflict) []string {
	want := NormalizeText(*c.ResolvedValue)
	agreed := []string{}
	for _, sv := range c.Values {
		if c.Resolution != model.ResolutionConflict || NormalizeText(sv.Value) == want {
			agreed = append(agreed, sv.Source)
		}
	}
	return agreed
}

// specKeyIn returns the key in specs matching k after normalization, or k.
func specKeyIn(specs map[string]string, k string) string {
	nk := NormalizeKey(k)
	for existing := range specs {
		if NormalizeKey(existing) == nk {
			return existing
		}
	}
	return k
}

// FilterContradictedClaims removes the sentences of description that carry
// a contradicted claim's key terms. Other sentences are kept verbatim.
func FilterContradictedClaims(description string, checks []model.TruthCheck) string {
	var termSets [][]string
	for _, c := range checks {
		if c.Verdict != model.VerdictContradicted {
			continue
		}
		if terms := KeyTerms(c.Claim); len(terms) > 0 {
			termSets = append(termSets, terms)
		}
	}
	if len(termSets) == 0 {
		return description
	}

	var b strings.Builder
	for _, s := range splitSentences(description) {
		if !matchesAny(s, termSets) {
			b.WriteString(s)
		}
	}
	return strings.TrimSpace(b.String())
}

func matchesAny(sentence string, termSets [][]string) bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(NormalizeText(sentence)) {
		words[w] = true
	}
	for _, terms := range termSets {
		hit := 0
		for _, t := range terms {
			if words[t] {
				hit++
			}
		}
		if float64(hit)/float64(len(terms)) >= sentenceTermShare {
			return true
		}
	}
	return false
}

// splitSentences cuts text after each ., ! or ? followed by whitespace. The
// pieces keep their trailing whitespace so they rejoin verbatim.
func splitSentences(text string) []string {
	var out []string
	rs := []rune(text)
	start := 0
	for i := 0; i < len(rs); i++ {
		if rs[i] != '.' && rs[i] != '!' && rs[i] != '?' {
			continue
		}
		j := i + 1
		if j < len(rs) && !unicode.IsSpace(rs[j]) {
			continue
		}
		for j < len(rs) && unicode.IsSpace(rs[j]) {
			j++
		}
		out = append(out, string(rs[start:j]))
		start = j
		i = j - 1
	}
	if start < len(rs) {
		out = append(out, string(rs[start:]))
	}
	return out
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "this": true, "that": true,
	"are": true, "was": true, "has": true, "have": true, "its": true, "from": true,
	"into": true, "can": true, "will": true, "your": true, "you": true, "not": true,
	"but": true, "all": true, "any": true, "our": true, "made": true, "which": true,
	"product": true, "item": true, "also": true, "been": true, "than": true, "per": true,
}

// KeyTerms returns the distinct normalized words of at least three
// characters in text, minus stop words.
func KeyTerms(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, w := range strings.Fields(NormalizeText(text)) {
		if len([]rune(w)) < 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}
