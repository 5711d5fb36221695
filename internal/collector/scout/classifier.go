// Package scout implements the scout collector (C6): turns raw
// crowdsourced text (a social feed poll, or a replayed scenario file in
// simulation mode) into classified, geocoded, severity-scored reports.
package scout

import "strings"

// floodKeywords is the rule+keyword baseline relevance classifier. A
// report mentioning any of these terms is treated as flood-related; this
// deliberately stays a fixed vocabulary rather than a model, per the
// spec's "abstract away any ML" instruction.
var floodKeywords = []string{
	"baha", "flood", "flooding", "tubig", "binaha", "lumubog", "submerged",
	"overflow", "rising water", "nagbaha", "umapaw",
}

// depthVocabulary maps a Filipino/English flood-depth idiom to a
// fractional severity. Entries are checked in order, deepest first, so
// text that names several depths gets the highest matching severity.
var depthVocabulary = []struct {
	term     string
	severity float64
}{
	{"chest deep", 0.90},
	{"chest-deep", 0.90},
	{"dibdib", 0.90},
	{"waist deep", 0.80},
	{"waist-deep", 0.80},
	{"baywang", 0.80},
	{"knee deep", 0.50},
	{"knee-deep", 0.50},
	{"tuhod", 0.50},
	{"ankle deep", 0.15},
	{"ankle-deep", 0.15},
	{"bukung-bukong", 0.15},
}

// defaultSeverity is used when flood-related text carries no recognizable
// depth term; it reflects "something is happening here" without a
// specific measurement.
const defaultSeverity = 0.35

// IsFloodRelated runs the keyword classifier over text.
func IsFloodRelated(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range floodKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Severity extracts a depth term from text and maps it to a fractional
// severity, falling back to defaultSeverity when no term is found.
func Severity(text string) float64 {
	lower := strings.ToLower(text)
	for _, v := range depthVocabulary {
		if strings.Contains(lower, v.term) {
			return v.severity
		}
	}
	return defaultSeverity
}
