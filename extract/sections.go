package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// minSectionLength is the threshold below which a primary span is considered
// suspicious and the keyword re-scan kicks in. Headers alone plus a line or
// two fall under it; any real section body clears it.
const minSectionLength = 100

// SectionPattern names one section boundary: the literal header that starts
// it and the keyword used by the secondary re-scan when the primary span
// comes back suspiciously short.
type SectionPattern struct {
	Header  string
	Keyword string
}

// Section is one extracted span. Text runs from the header match to the next
// header's match (or end of input for the last section), byte for byte. When
// the keyword re-scan replaced a short or missing primary span, Degraded is
// set and Text holds the re-scanned content instead.
type Section struct {
	Header   string
	Text     string
	Found    bool
	Degraded bool
}

// Sections splits text into ordered spans bounded by the given headers.
// Headers are located in order; a header that never appears yields an empty,
// not-found section and does not shift the remaining boundaries.
func Sections(text string, patterns []SectionPattern) []Section {
	starts := make([]int, len(patterns))
	cursor := 0
	for i, p := range patterns {
		idx := strings.Index(text[cursor:], p.Header)
		if idx == -1 {
			starts[i] = -1
			continue
		}
		starts[i] = cursor + idx
		cursor += idx + len(p.Header)
	}

	sections := make([]Section, len(patterns))
	for i, p := range patterns {
		sec := Section{Header: p.Header}
		if starts[i] >= 0 {
			sec.Found = true
			end := len(text)
			for j := i + 1; j < len(patterns); j++ {
				if starts[j] >= 0 {
					end = starts[j]
					break
				}
			}
			sec.Text = text[starts[i]:end]
		}

		if len(sec.Text) < minSectionLength && p.Keyword != "" {
			if rescued := keywordScan(text, p.Keyword); len(rescued) > len(sec.Text) {
				sec.Text = rescued
				sec.Degraded = true
			}
		}
		sections[i] = sec
	}
	return sections
}

// keywordScan is the secondary strategy: collect every paragraph mentioning
// the keyword, case-insensitively. Guards against header wording drift in
// provider output without failing the whole parse.
func keywordScan(text, keyword string) string {
	needle := strings.ToLower(keyword)
	var matched []string
	for _, para := range strings.Split(text, "\n\n") {
		if strings.Contains(strings.ToLower(para), needle) {
			matched = append(matched, strings.TrimSpace(para))
		}
	}
	return strings.Join(matched, "\n\n")
}

// ScenarioAnalysis is the structured form of one scenario's narrative
// section. Missing sub-fields carry a placeholder instead of an empty
// string so every consumer has something to display; Degraded marks that at
// least one placeholder was substituted.
type ScenarioAnalysis struct {
	Impact                string `json:"impact"`
	RisksAndOpportunities string `json:"risksAndOpportunities"`
	SuccessProbability    string `json:"successProbability"`
	Recommendations       string `json:"recommendations"`
	Timeline              string `json:"timeline"`
	FullText              string `json:"fullText"`
	Degraded              bool   `json:"degraded,omitempty"`
}

// analysisField describes one numbered sub-field of a scenario section:
// its expected position, the label keyword that identifies it, and the
// placeholder used when it cannot be found.
type analysisField struct {
	numbered    *regexp.Regexp
	loose       *regexp.Regexp
	placeholder string
}

// Sub-field content runs from the label's colon to the next numbered line
// or end of section.
func newAnalysisField(n int, keyword, placeholder string) analysisField {
	return analysisField{
		numbered:    regexp.MustCompile(fmt.Sprintf(`(?is)%d\.\s*[^:]*?%s[^:\n]*:(.*?)(?:\n\s*\d\.|\z)`, n, keyword)),
		loose:       regexp.MustCompile(fmt.Sprintf(`(?is)%s[^:\n]*:(.*?)(?:\n\s*\d\.|\z)`, keyword)),
		placeholder: placeholder,
	}
}

var analysisFields = []analysisField{
	newAnalysisField(1, "impatto", "Valutazione dell'impatto non disponibile."),
	newAnalysisField(2, "rischi", "Rischi e opportunità non disponibili."),
	newAnalysisField(3, "probabilità", "Stima della probabilità di successo non disponibile."),
	newAnalysisField(4, "raccomandaz", "Raccomandazioni non disponibili."),
	newAnalysisField(5, "timeline", "Timeline di implementazione non disponibile."),
}

// AnalyzeScenario decomposes one scenario section into its five numbered
// sub-fields. Each field is tried against its numbered pattern first, then a
// loose keyword pattern, then resolved to its placeholder.
func AnalyzeScenario(sectionText string) ScenarioAnalysis {
	values := make([]string, len(analysisFields))
	degraded := false

	for i, field := range analysisFields {
		if m := field.numbered.FindStringSubmatch(sectionText); len(m) > 1 && strings.TrimSpace(m[1]) != "" {
			values[i] = strings.TrimSpace(m[1])
			continue
		}
		if m := field.loose.FindStringSubmatch(sectionText); len(m) > 1 && strings.TrimSpace(m[1]) != "" {
			values[i] = strings.TrimSpace(m[1])
			continue
		}
		values[i] = field.placeholder
		degraded = true
	}

	return ScenarioAnalysis{
		Impact:                values[0],
		RisksAndOpportunities: values[1],
		SuccessProbability:    values[2],
		Recommendations:       values[3],
		Timeline:              values[4],
		FullText:              strings.TrimSpace(sectionText),
		Degraded:              degraded,
	}
}
