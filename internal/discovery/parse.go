package discovery

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var skuLabelRe = regexp.MustCompile(`(?i)\b(?:sku|mpn|model|part|item)(?:\s*(?:no\.?|number|#))?\s*[:#]?\s*([A-Za-z0-9][A-Za-z0-9\-_./]{2,30})`)

const maxImages = 10

// ExtractSKU returns the first labelled part number in content
// (SKU, MPN, Model, Part, Item No) that contains a digit.
func ExtractSKU(content string) string {
	for _, m := range skuLabelRe.FindAllStringSubmatch(content, -1) {
		v := strings.TrimRight(m[1], "./-_")
		if looksLikeSKU(v) {
			return v
		}
	}
	return ""
}

// ExtractImages returns the distinct absolute image URLs of the markdown
// images in content, in document order.
func ExtractImages(content string) []string {
	doc := goldmark.DefaultParser().Parse(text.NewReader([]byte(content)))

	var out []string
	seen := map[string]bool{}
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		img, ok := n.(*ast.Image)
		if !entering || !ok {
			return ast.WalkContinue, nil
		}
		u := string(img.Destination)
		absolute := strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
		if !absolute || seen[u] {
			return ast.WalkContinue, nil
		}
		seen[u] = true
		out = append(out, u)
		if len(out) == maxImages {
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return out
}

var titleSeparators = []string{" | ", " – ", " — ", " - ", " :: "}

// ProductNameFromTitle strips a trailing site-name segment from a page title.
// The segment goes when separated by a pipe or when it names the site.
func ProductNameFromTitle(title, siteName string) string {
	title = strings.TrimSpace(title)
	site := strings.ToLower(strings.Split(siteName, ".")[0])
	for _, sep := range titleSeparators {
		i := strings.LastIndex(title, sep)
		if i <= 0 {
			continue
		}
		tail := strings.ToLower(strings.TrimSpace(title[i+len(sep):]))
		if sep == " | " || sep == " :: " || (site != "" && strings.Contains(strings.ReplaceAll(tail, " ", ""), site)) {
			return strings.TrimSpace(title[:i])
		}
	}
	return title
}

// looksLikeSKU reports whether a token resembles a part number: 3-30 chars,
// no spaces, at least one digit.
func looksLikeSKU(tok string) bool {
	if len(tok) < 3 || len(tok) > 30 {
		return false
	}
	hasDigit := false
	for _, r := range tok {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLetter(r), r == '-', r == '_', r == '.', r == '/':
		default:
			return false
		}
	}
	return hasDigit
}
