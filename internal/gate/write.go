package gate

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/catalog-enrich/internal/config"
	"github.com/sells-group/catalog-enrich/internal/model"
	"github.com/sells-group/catalog-enrich/internal/resilience"
)

var errReadBackMismatch = eris.New("gate3: read-back does not match written payload")

// CatalogStore is the persistence the write verifier needs.
type CatalogStore interface {
	WriteEnrichment(ctx context.Context, p model.CatalogPayload) error
	ReadEnrichment(ctx context.Context, itemID string) (*model.CatalogRecord, error)
}

// WriteVerifier writes an enrichment payload and proves the stored record
// matches it.
type WriteVerifier struct {
	store CatalogStore
	sleep resilience.Sleeper
}

// WriteOption configures a WriteVerifier.
type WriteOption func(*WriteVerifier)

// WithSleeper replaces the pause between write attempts.
func WithSleeper(s resilience.Sleeper) WriteOption {
	return func(w *WriteVerifier) { w.sleep = s }
}

// NewWriteVerifier creates a WriteVerifier over store.
func NewWriteVerifier(store CatalogStore, opts ...WriteOption) *WriteVerifier {
	w := &WriteVerifier{store: store, sleep: resilience.SleepContext}
	for _, o := range opts {
		o(w)
	}
	return w
}

// WriteAndVerify cleans and writes payload, reads it back and compares.
// A failed write or a mismatch is retried cfg.MaxWriteRetries times with a
// fixed delay. Exhausting retries yields a failed result, never an error.
func (w *WriteVerifier) WriteAndVerify(ctx context.Context, payload model.CatalogPayload, cfg config.PipelineConfig) model.Gate3Result {
	clean := CleanPayload(payload)
	log := zap.L().With(zap.String("item_id", clean.ItemID))

	var discrepancies []model.Discrepancy
	retry := resilience.FixedRetry{
		MaxRetries: cfg.MaxWriteRetries,
		Delay:      cfg.RetryDelay(),
		Sleep:      w.sleep,
		OnRetry:    resilience.RetryLogger("catalog_store", "write_and_verify"),
	}
	retries, err := retry.Do(ctx, func(ctx context.Context, _ int) error {
		discrepancies = nil
		if err := w.store.WriteEnrichment(ctx, clean); err != nil {
			return eris.Wrap(err, "gate3: write")
		}
		rec, err := w.store.ReadEnrichment(ctx, clean.ItemID)
		if err != nil {
			return eris.Wrap(err, "gate3: read back")
		}
		if d := Compare(clean, rec); len(d) > 0 {
			discrepancies = d
			return errReadBackMismatch
		}
		return nil
	})

	res := model.Gate3Result{Passed: err == nil, Discrepancies: discrepancies, RetryCount: retries}
	if res.Discrepancies == nil {
		res.Discrepancies = []model.Discrepancy{}
	}
	if err != nil {
		if len(res.Discrepancies) == 0 {
			res.Discrepancies = []model.Discrepancy{{
				Field:    "record",
				Intended: "written",
				Actual:   err.Error(),
				Issue:    model.IssueMissing,
			}}
		}
		log.Warn("gate3: write verification failed",
			zap.Int("retries", retries),
			zap.Int("discrepancies", len(res.Discrepancies)),
			zap.Error(err),
		)
	}
	return res
}

// CleanPayload trims strings, drops empty specification entries and list
// items, and removes case-insensitive duplicates from list fields.
func CleanPayload(p model.CatalogPayload) model.CatalogPayload {
	out := p
	out.ItemID = strings.TrimSpace(p.ItemID)
	out.Description = strings.TrimSpace(p.Description)
	out.Specifications = make(map[string]string, len(p.Specifications))
	for k, v := range p.Specifications {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k != "" && v != "" {
			out.Specifications[k] = v
		}
	}
	out.Features = dedupe(p.Features)
	out.Benefits = dedupe(p.Benefits)
	out.Tags = dedupe(p.Tags)
	out.Sources = dedupe(p.Sources)
	return out
}

func dedupe(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, s := range items {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

// Compare lists every difference between the intended payload and the
// stored record. Specifications compare per key regardless of order; list
// fields compare element by element in order.
func Compare(intended model.CatalogPayload, actual *model.CatalogRecord) []model.Discrepancy {
	if actual == nil {
		actual = &model.CatalogRecord{}
	}
	var out []model.Discrepancy

	if intended.Description != actual.Description {
		out = append(out, model.Discrepancy{
			Field:    "description",
			Intended: intended.Description,
			Actual:   actual.Description,
			Issue:    classifyString(intended.Description, actual.Description),
		})
	}

	keys := make([]string, 0, len(intended.Specifications))
	for k := range intended.Specifications {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		want := intended.Specifications[k]
		got, ok := actual.Specifications[k]
		if ok && got == want {
			continue
		}
		issue := model.IssueMissing
		if ok {
			issue = classifyString(want, got)
		}
		out = append(out, model.Discrepancy{Field: "specifications." + k, Intended: want, Actual: got, Issue: issue})
	}
	extra := make([]string, 0)
	for k := range actual.Specifications {
		if _, ok := intended.Specifications[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		out = append(out, model.Discrepancy{Field: "specifications." + k, Intended: nil, Actual: actual.Specifications[k], Issue: model.IssueCorrupted})
	}

	for _, lf := range []struct {
		name      string
		want, got []string
	}{
		{"features", intended.Features, actual.Features},
		{"benefits", intended.Benefits, actual.Benefits},
		{"tags", intended.Tags, actual.Tags},
	} {
		if equalLists(lf.want, lf.got) {
			continue
		}
		out = append(out, model.Discrepancy{Field: lf.name, Intended: lf.want, Actual: lf.got, Issue: classifyList(lf.want, lf.got)})
	}
	return out
}

func equalLists(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var (
	htmlEntityRe   = regexp.MustCompile(`&(?:amp|lt|gt|quot|apos|nbsp|#\d+|#x[0-9a-fA-F]+);`)
	mojibakeMarks  = []string{"�", "Ã", "â€", "Â"}
	listSeparators = []string{", ", ",", "; ", ";", "\n", " | "}
)

func hasEncodingArtifacts(intended, actual string) bool {
	for _, m := range mojibakeMarks {
		if strings.Contains(actual, m) && !strings.Contains(intended, m) {
			return true
		}
	}
	return htmlEntityRe.MatchString(actual) && !htmlEntityRe.MatchString(intended)
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return err == nil
}

// classifyString names the way actual differs from intended. Checks run in
// order: missing, truncated, encoding, type mismatch, otherwise corrupted.
func classifyString(intended, actual string) model.WriteIssue {
	switch {
	case strings.TrimSpace(actual) == "":
		return model.IssueMissing
	case len(actual) < len(intended) && strings.HasPrefix(intended, actual):
		return model.IssueTruncated
	case hasEncodingArtifacts(intended, actual):
		return model.IssueEncoding
	case isNumeric(intended) && !isNumeric(actual):
		return model.IssueTypeMismatch
	default:
		return model.IssueCorrupted
	}
}

func classifyList(intended, actual []string) model.WriteIssue {
	switch {
	case len(actual) == 0:
		return model.IssueMissing
	case len(actual) < len(intended) && equalLists(intended[:len(actual)], actual):
		return model.IssueTruncated
	}
	for i, a := range actual {
		want := ""
		if i < len(intended) {
			want = intended[i]
		}
		if hasEncodingArtifacts(want, a) {
			return model.IssueEncoding
		}
	}
	if len(actual) == 1 && len(intended) > 1 {
		for _, sep := range listSeparators {
			if actual[0] == strings.Join(intended, sep) {
				return model.IssueTypeMismatch
			}
		}
	}
	return model.IssueCorrupted
}
