package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  Café-Style, 2.5 MM! ", "cafe style 2.5 mm"},
		{"Über\tBrass\n\nFitting", "uber brass fitting"},
		{"End.", "end"},
		{"", ""},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, NormalizeText(tc.in), tc.in)
	}
}

func TestNormalizeSKU(t *testing.T) {
	assert.Equal(t, "SB50A", NormalizeSKU("sb-50 a"))
	assert.Equal(t, "AW100", NormalizeSKU(" aw/100. "))
	assert.Empty(t, NormalizeSKU("--"))
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 0.8, Similarity("ABCDE", "ABCDF"), 1e-9)
	assert.InDelta(t, 1.0, Similarity("", ""), 1e-9)
	assert.InDelta(t, 0.0, Similarity("ABC", ""), 1e-9)
	assert.InDelta(t, 0.5, Similarity("ABCD", "AB"), 1e-9)
}

func TestParseMeasurement(t *testing.T) {
	tests := []struct {
		in   string
		want Measurement
		ok   bool
	}{
		{"50 mm", Measurement{50, "mm"}, true},
		{"2 inches", Measurement{2, "in"}, true},
		{`3"`, Measurement{3, "in"}, true},
		{"1.5kg", Measurement{1.5, "kg"}, true},
		{"12", Measurement{12, ""}, true},
		{"Steel", Measurement{}, false},
		{"50mm wide", Measurement{}, false},
	}
	for _, tc := range tests {
		got, ok := ParseMeasurement(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestFindMeasurements(t *testing.T) {
	got := FindMeasurements("Width 50mm, length 2 ft, 5 meters")
	assert.Equal(t, []Measurement{{50, "mm"}, {2, "ft"}, {5, ""}}, got)
}

func TestMatchMeasurement(t *testing.T) {
	tests := []struct {
		name  string
		want  Measurement
		cands []Measurement
		score int
	}{
		{"same unit", Measurement{50, "mm"}, []Measurement{{50, "mm"}}, 90},
		{"unitless source", Measurement{50, "mm"}, []Measurement{{50, ""}}, 90},
		{"within tolerance", Measurement{100, "mm"}, []Measurement{{101.5, "mm"}}, 90},
		{"inch to mm", Measurement{2, "in"}, []Measurement{{50.8, "mm"}}, 85},
		{"kg to lb", Measurement{1, "kg"}, []Measurement{{2.2, "lb"}}, 85},
		{"m to ft", Measurement{1, "m"}, []Measurement{{3.28, "ft"}}, 85},
		{"different dimension", Measurement{2, "kg"}, []Measurement{{2, "mm"}}, 0},
		{"too far", Measurement{2, "in"}, []Measurement{{60, "mm"}}, 0},
		{"same unit beats converted", Measurement{2, "in"}, []Measurement{{50.8, "mm"}, {2, "in"}}, 90},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.score, matchMeasurement(tc.want, tc.cands))
		})
	}
}

func TestWordOverlap(t *testing.T) {
	assert.InDelta(t, 0.75, wordOverlap("steel spacer bar black", "a steel bar spacer"), 1e-9)
	assert.Zero(t, wordOverlap("", "anything"))
}

func TestContainsPhrase(t *testing.T) {
	assert.True(t, containsPhrase("solid steel bar", "steel"))
	assert.False(t, containsPhrase("stainless steel 100", "10"))
	assert.False(t, containsPhrase("anything", ""))
}

func TestKeyTerms(t *testing.T) {
	assert.Equal(t, []string{"solid", "steel"}, KeyTerms("The product is made of Solid Steel! steel"))
	assert.Empty(t, KeyTerms("it is of an"))
}
