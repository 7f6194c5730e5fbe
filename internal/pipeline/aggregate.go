package pipeline

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sells-group/catalog-enrich/internal/gate"
	"github.com/sells-group/catalog-enrich/internal/model"
)

// Aggregate merges verified records into one record. Scalar fields and each
// specification are elected independently by trust-weighted agreement;
// certifications and related products are unioned.
func Aggregate(records []model.ExtractedRecord, trustByURL map[string]int) model.AggregatedRecord {
	agg := model.AggregatedRecord{
		Specifications: map[string]string{},
		Sources:        []string{},
		FieldSources:   map[string]model.FieldSource{},
	}
	for _, r := range records {
		agg.Sources = append(agg.Sources, r.SourceURL)
	}

	pick := func(field string, get func(model.ExtractedRecord) string) string {
		var ballots []gate.Ballot
		for _, r := range records {
			if v := strings.TrimSpace(get(r)); v != "" {
				ballots = append(ballots, gate.Ballot{URL: r.SourceURL, Value: v, Trust: trustByURL[r.SourceURL]})
			}
		}
		g := gate.Elect(ballots)
		if g == nil {
			return ""
		}
		value := g.Representative()
		agg.FieldSources[field] = model.FieldSource{
			Value:           value,
			AgreedBy:        g.URLs(),
			ConfidenceLevel: model.LevelForAgreement(len(g.Ballots)),
		}
		return value
	}

	agg.ProductName = pick(model.FieldProductName, func(r model.ExtractedRecord) string { return r.ProductName })
	agg.Description = pick(model.FieldDescription, func(r model.ExtractedRecord) string { return r.Description })
	agg.InstallationInfo = pick(model.FieldInstallationInfo, func(r model.ExtractedRecord) string { return r.InstallationInfo })

	for _, sk := range specKeys(records, trustByURL) {
		nk := gate.NormalizeKey(sk)
		value := pick(model.SpecField(sk), func(r model.ExtractedRecord) string {
			for k, v := range r.Specifications {
				if gate.NormalizeKey(k) == nk {
					return v
				}
			}
			return ""
		})
		if value != "" {
			agg.Specifications[sk] = value
		}
	}

	agg.Certifications = union(records, model.CertFieldPrefix, agg.FieldSources, func(r model.ExtractedRecord) []string { return r.Certifications })
	agg.RelatedProducts = union(records, model.RelatedFieldPrefix, agg.FieldSources, func(r model.ExtractedRecord) []string { return r.RelatedProducts })
	return agg
}

// specKeys returns one display key per normalized specification key: the
// spelling used by the highest-trust record reporting it. Keys are ordered
// by first appearance.
func specKeys(records []model.ExtractedRecord, trustByURL map[string]int) []string {
	display := make(map[string]string)
	trust := make(map[string]int)
	var order []string
	for _, r := range records {
		keys := make([]string, 0, len(r.Specifications))
		for k := range r.Specifications {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			nk := gate.NormalizeKey(k)
			if nk == "" {
				continue
			}
			t := trustByURL[r.SourceURL]
			if _, ok := display[nk]; !ok {
				order = append(order, nk)
				display[nk], trust[nk] = k, t
			} else if t > trust[nk] {
				display[nk], trust[nk] = k, t
			}
		}
	}
	out := make([]string, len(order))
	for i, nk := range order {
		out[i] = display[nk]
	}
	return out
}

// union merges list values across records without voting, keyed by
// normalized form, and records which sources listed each.
func union(records []model.ExtractedRecord, prefix string, fs map[string]model.FieldSource, get func(model.ExtractedRecord) []string) []string {
	index := make(map[string]int)
	var values []string
	var agreed [][]string
	for _, r := range records {
		for _, v := range get(r) {
			key := gate.NormalizeText(v)
			if key == "" {
				continue
			}
			i, ok := index[key]
			if !ok {
				i = len(values)
				index[key] = i
				values = append(values, strings.TrimSpace(v))
				agreed = append(agreed, nil)
			}
			if !contains(agreed[i], r.SourceURL) {
				agreed[i] = append(agreed[i], r.SourceURL)
			}
		}
	}
	for i, v := range values {
		fs[prefix+strconv.Itoa(i)] = model.FieldSource{
			Value:           v,
			AgreedBy:        agreed[i],
			ConfidenceLevel: model.LevelForAgreement(len(agreed[i])),
		}
	}
	return values
}

// AggregateVisionOnly synthesizes a record from the item and its vision
// result when no source survived verification. A description is generated
// only for items that have none.
func AggregateVisionOnly(item model.Item, v model.VisionResult) model.AggregatedRecord {
	src := []string{model.VisionSourceURL}
	agg := model.AggregatedRecord{
		ProductName:    item.Name,
		Specifications: map[string]string{},
		Sources:        src,
		FieldSources:   map[string]model.FieldSource{},
		VisionOnly:     true,
	}
	set := func(field, value string) {
		agg.FieldSources[field] = model.FieldSource{Value: value, AgreedBy: src, ConfidenceLevel: model.ConfidenceLow}
	}
	if agg.ProductName != "" {
		set(model.FieldProductName, agg.ProductName)
	}

	if len(v.Materials) > 0 {
		agg.Specifications["Material"] = strings.Join(v.Materials, ", ")
	}
	if len(v.Colors) > 0 {
		agg.Specifications["Color"] = strings.Join(v.Colors, ", ")
	}
	if v.Style != "" {
		agg.Specifications["Style"] = v.Style
	}
	for k, val := range agg.Specifications {
		set(model.SpecField(k), val)
	}

	if strings.TrimSpace(item.Description) != "" {
		return agg
	}
	if d := visionDescription(item.Name, v); d != "" {
		agg.Description = d
		set(model.FieldDescription, d)
	}
	return agg
}

func visionDescription(name string, v model.VisionResult) string {
	kind := v.Subcategory
	if kind == "" && v.Category != "unknown" {
		kind = v.Category
	}
	if name == "" && kind == "" {
		return ""
	}

	var b strings.Builder
	subject := name
	if subject == "" {
		subject = "This item"
	}
	b.WriteString(subject)
	if kind != "" {
		article := "a"
		lead := strings.TrimSpace(v.Style + " " + kind)
		if strings.ContainsRune("aeiouAEIOU", rune(lead[0])) {
			article = "an"
		}
		fmt.Fprintf(&b, " is %s %s", article, lead)
	}
	if len(v.Materials) > 0 {
		fmt.Fprintf(&b, " made of %s", joinAnd(v.Materials))
	}
	if len(v.Colors) > 0 {
		fmt.Fprintf(&b, " in %s", joinAnd(v.Colors))
	}
	b.WriteString(".")
	if v.UsageContext != "" {
		fmt.Fprintf(&b, " Suited for %s.", v.UsageContext)
	}
	if b.Len() == len(subject)+1 {
		return ""
	}
	return b.String()
}

func joinAnd(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	}
	return strings.Join(items[:len(items)-1], ", ") + " and " + items[len(items)-1]
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
