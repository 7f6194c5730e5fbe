package discovery

import (
	"net/url"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/catalog-enrich/internal/model"
)

const (
	defaultTrust      = 4
	manufacturerTrust = 10
	institutionTrust  = 8
)

// builtinTrust scores well-known distributors and retailers.
var builtinTrust = map[string]int{
	"grainger.com":         7,
	"mcmaster.com":         7,
	"fastenal.com":         7,
	"zoro.com":             6,
	"homedepot.com":        6,
	"lowes.com":            6,
	"menards.com":          6,
	"acehardware.com":      6,
	"build.com":            6,
	"ferguson.com":         6,
	"globalindustrial.com": 6,
	"uline.com":            6,
	"wayfair.com":          5,
	"amazon.com":           5,
	"walmart.com":          5,
	"target.com":           5,
	"ebay.com":             3,
	"aliexpress.com":       2,
	"alibaba.com":          2,
	"pinterest.com":        2,
	"reddit.com":           2,
}

// TrustTable assigns a 1-10 reputation to source domains.
type TrustTable struct {
	levels map[string]int
}

type trustFile struct {
	Domains map[string]int `yaml:"domains"`
}

// NewTrustTable builds a table from the built-in entries plus the
// configured manufacturer domains, which always score highest.
func NewTrustTable(manufacturers []string) *TrustTable {
	levels := make(map[string]int, len(builtinTrust)+len(manufacturers))
	for d, l := range builtinTrust {
		levels[d] = l
	}
	for _, d := range manufacturers {
		if d = normalizeHost(d); d != "" {
			levels[d] = manufacturerTrust
		}
	}
	return &TrustTable{levels: levels}
}

// LoadTrustTable builds a table and overlays entries from a YAML file of the
// form `domains: {example.com: 7}`. An empty path skips the file.
func LoadTrustTable(path string, manufacturers []string) (*TrustTable, error) {
	t := NewTrustTable(manufacturers)
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: read trust file %s", path)
	}
	var f trustFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "discovery: parse trust file %s", path)
	}
	for d, l := range f.Domains {
		if d = normalizeHost(d); d != "" {
			t.levels[d] = clampTrust(l)
		}
	}
	return t, nil
}

// Level returns the trust level for a URL, matching the exact host first and
// then each parent domain.
func (t *TrustTable) Level(rawURL string) int {
	host := hostOf(rawURL)
	if host == "" {
		return defaultTrust
	}
	for h := host; h != ""; h = parentDomain(h) {
		if l, ok := t.levels[h]; ok {
			return l
		}
	}
	if strings.HasSuffix(host, ".gov") || strings.HasSuffix(host, ".edu") {
		return institutionTrust
	}
	return defaultTrust
}

// SourceTypeFor maps a trust level to its source tier.
func SourceTypeFor(trust int) model.SourceType {
	switch {
	case trust >= 8:
		return model.SourceTypePrimary
	case trust >= 5:
		return model.SourceTypeSecondary
	default:
		return model.SourceTypeTertiary
	}
}

func clampTrust(l int) int {
	return max(1, min(10, l))
}

func hostOf(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return normalizeHost(u.Hostname())
}

func normalizeHost(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimSuffix(h, ".")
	return strings.TrimPrefix(h, "www.")
}

func parentDomain(h string) string {
	i := strings.IndexByte(h, '.')
	if i < 0 {
		return ""
	}
	rest := h[i+1:]
	if !strings.Contains(rest, ".") {
		return ""
	}
	return rest
}
