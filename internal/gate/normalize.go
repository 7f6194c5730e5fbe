package gate

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldAccents strips combining marks ("Café" → "Cafe"). A transformer
// chain carries state, so one is built per call.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeText lowercases, folds accents, replaces punctuation with spaces
// (keeping decimal points) and collapses whitespace.
func NormalizeText(s string) string {
	rs := []rune(strings.ToLower(foldAccents(s)))
	var b strings.Builder
	b.Grow(len(rs))
	for i, r := range rs {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '.' && i > 0 && i+1 < len(rs) && unicode.IsDigit(rs[i-1]) && unicode.IsDigit(rs[i+1]):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// NormalizeKey canonicalizes a specification key for cross-source matching.
func NormalizeKey(k string) string {
	return NormalizeText(k)
}

// NormalizeSKU uppercases and keeps only letters and digits.
func NormalizeSKU(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(foldAccents(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// containsPhrase reports whether normalized needle appears in normalized
// haystack on word boundaries.
func containsPhrase(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	return strings.Contains(" "+haystack+" ", " "+needle+" ")
}

// Similarity returns 1 - levenshtein(a,b)/max(len) over runes.
func Similarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	longest := max(len(ra), len(rb))
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// wordOverlap is the share of distinct words in value that also occur in
// source. Both are expected normalized.
func wordOverlap(value, source string) float64 {
	words := uniqueWords(value)
	if len(words) == 0 {
		return 0
	}
	srcWords := make(map[string]bool)
	for _, w := range strings.Fields(source) {
		srcWords[w] = true
	}
	hit := 0
	for _, w := range words {
		if srcWords[w] {
			hit++
		}
	}
	return float64(hit) / float64(len(words))
}

func uniqueWords(s string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range strings.Fields(s) {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

// Measurement is a number with an optional canonical unit.
type Measurement struct {
	Value float64
	Unit  string // "", mm, cm, m, in, ft, g, kg, lb, oz
}

var (
	measureRe        = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(mm|cm|inches|inch|in|feet|foot|ft|kg|lbs|lb|pounds|pound|oz|g|m|"|')?`)
	numericValueRe   = regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*(mm|cm|inches|inch|in|feet|foot|ft|kg|lbs|lb|pounds|pound|oz|g|m|"|')?\s*$`)
	canonicalUnits   = map[string]string{"inches": "in", "inch": "in", `"`: "in", "feet": "ft", "foot": "ft", "'": "ft", "lbs": "lb", "pounds": "lb", "pound": "lb"}
	unitDimension    = map[string]string{"mm": "length", "cm": "length", "m": "length", "in": "length", "ft": "length", "g": "mass", "kg": "mass", "lb": "mass", "oz": "mass"}
	unitToBase       = map[string]float64{"mm": 1, "cm": 10, "m": 1000, "in": 25.4, "ft": 304.8, "g": 1, "kg": 1000, "lb": 453.592, "oz": 28.3495}
	numericTolerance = 0.02
)

func canonicalUnit(u string) string {
	u = strings.ToLower(u)
	if c, ok := canonicalUnits[u]; ok {
		return c
	}
	return u
}

// ParseMeasurement parses a value that is only a number and optional unit.
func ParseMeasurement(s string) (Measurement, bool) {
	m := numericValueRe.FindStringSubmatch(s)
	if m == nil {
		return Measurement{}, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Measurement{}, false
	}
	return Measurement{Value: v, Unit: canonicalUnit(m[2])}, true
}

// FindMeasurements returns every number in text with the unit that follows
// it. An alphabetic unit running into further letters ("5 meters") is
// dropped rather than guessed.
func FindMeasurements(text string) []Measurement {
	var out []Measurement
	for _, idx := range measureRe.FindAllStringSubmatchIndex(text, -1) {
		v, err := strconv.ParseFloat(text[idx[2]:idx[3]], 64)
		if err != nil {
			continue
		}
		unit := ""
		if idx[4] >= 0 {
			unit = text[idx[4]:idx[5]]
			if end := idx[5]; end < len(text) && isASCIILetter(text[end]) && isASCIILetter(unit[0]) {
				unit = ""
			}
		}
		out = append(out, Measurement{Value: v, Unit: canonicalUnit(unit)})
	}
	return out
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func withinTolerance(a, b float64) bool {
	if a == b {
		return true
	}
	ref := math.Max(math.Abs(a), math.Abs(b))
	return math.Abs(a-b) <= ref*numericTolerance
}

// matchMeasurement scores how well want is found among candidates:
// 90 for the same number in the same (or no) unit, 85 for an equivalent
// value in a convertible unit, 0 otherwise.
func matchMeasurement(want Measurement, candidates []Measurement) int {
	best := 0
	for _, c := range candidates {
		switch {
		case want.Unit == c.Unit || want.Unit == "" || c.Unit == "":
			if withinTolerance(want.Value, c.Value) {
				return 90
			}
		case unitDimension[want.Unit] != "" && unitDimension[want.Unit] == unitDimension[c.Unit]:
			if withinTolerance(want.Value*unitToBase[want.Unit], c.Value*unitToBase[c.Unit]) {
				best = 85
			}
		}
	}
	return best
}
