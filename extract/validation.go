package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// EvaluationPoint is one of the five validation criteria with its textual
// rating and supporting explanation.
type EvaluationPoint struct {
	Rating      string `json:"rating"`
	Explanation string `json:"explanation"`
}

// ValidationExtract is the structured form of a validation response:
// five rated evaluation points plus the free-text conflict, coverage and
// suggestion sections.
type ValidationExtract struct {
	Coherence      EvaluationPoint `json:"coherence"`
	Adequacy       EvaluationPoint `json:"adequacy"`
	TimeBalance    EvaluationPoint `json:"timeBalance"`
	CriticalAreas  EvaluationPoint `json:"coverageCriticalAreas"`
	ImpactMix      EvaluationPoint `json:"impactMix"`
	Conflicts      string          `json:"conflicts"`
	UncoveredAreas string          `json:"uncoveredAreas"`
	Suggestions    string          `json:"suggestions"`
}

// Points returns the five evaluation points in their canonical order.
func (v ValidationExtract) Points() []EvaluationPoint {
	return []EvaluationPoint{v.Coherence, v.Adequacy, v.TimeBalance, v.CriticalAreas, v.ImpactMix}
}

const (
	RatingOttimale   = "Ottimale"
	RatingAdeguato   = "Adeguato"
	RatingInadeguato = "Inadeguato"
)

var (
	ratingPattern = regexp.MustCompile(`(?i)(Ottimale|Adeguato|Inadeguato)`)

	conflictsStart  = regexp.MustCompile(`(?i)conflitti`)
	uncoveredStart  = regexp.MustCompile(`(?i)aree critiche`)
	suggestionStart = regexp.MustCompile(`(?i)suggerimenti`)
)

// Validation parses a validation response. Each numbered point (1 to 5)
// yields a rating (defaulting to Adeguato when none is recognizable) and an
// explanation; the trailing sections are recovered by keyword boundaries.
func Validation(text string) ValidationExtract {
	return ValidationExtract{
		Coherence:      extractEvaluationPoint(text, 1),
		Adequacy:       extractEvaluationPoint(text, 2),
		TimeBalance:    extractEvaluationPoint(text, 3),
		CriticalAreas:  extractEvaluationPoint(text, 4),
		ImpactMix:      extractEvaluationPoint(text, 5),
		Conflicts:      spanBetween(text, conflictsStart, uncoveredStart),
		UncoveredAreas: spanBetween(text, uncoveredStart, suggestionStart),
		Suggestions:    spanBetween(text, suggestionStart, nil),
	}
}

// extractEvaluationPoint pulls the rating and explanation for the numbered
// point. The rating is taken from the point's own line; the explanation from
// the following line when present, otherwise from the remainder of the
// point's line.
func extractEvaluationPoint(text string, number int) EvaluationPoint {
	linePattern := regexp.MustCompile(fmt.Sprintf(`(?i)%d[.)]\s*([^\n]+)`, number))
	match := linePattern.FindStringSubmatch(text)
	if match == nil {
		return EvaluationPoint{Rating: RatingAdeguato}
	}

	pointLine := match[1]
	rating := RatingAdeguato
	ratingToken := ""
	if m := ratingPattern.FindString(pointLine); m != "" {
		ratingToken = m
		rating = canonicalRating(m)
	}

	nextLinePattern := regexp.MustCompile(fmt.Sprintf(`%d[.)]\s*[^\n]*\n+\s*([^\n]+)`, number))
	if m := nextLinePattern.FindStringSubmatch(text); len(m) > 1 {
		next := strings.TrimSpace(m[1])
		// A following numbered point is a boundary, not an explanation.
		if next != "" && !regexp.MustCompile(`^\d[.)]`).MatchString(next) {
			return EvaluationPoint{Rating: rating, Explanation: next}
		}
	}

	explanation := strings.TrimSpace(strings.Replace(pointLine, ratingToken, "", 1))
	explanation = strings.Trim(explanation, ":,-() \t")
	return EvaluationPoint{Rating: rating, Explanation: strings.TrimSpace(explanation)}
}

func canonicalRating(token string) string {
	switch strings.ToLower(token) {
	case "ottimale":
		return RatingOttimale
	case "inadeguato":
		return RatingInadeguato
	default:
		return RatingAdeguato
	}
}

// spanBetween returns the trimmed text from the start pattern's match up to
// the end pattern's match, or to the end of input when end is nil or absent.
func spanBetween(text string, start, end *regexp.Regexp) string {
	loc := start.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	stop := len(text)
	if end != nil {
		if endLoc := end.FindStringIndex(text[loc[1]:]); endLoc != nil {
			stop = loc[1] + endLoc[0]
		}
	}
	return strings.TrimSpace(text[loc[0]:stop])
}
