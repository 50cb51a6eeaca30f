package advisor

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/c360studio/finadvisor/finance"
)

const reportTitle = "Report di Analisi Finanziaria e Scenari di Ottimizzazione"

// Analysis breakdown boundaries. The analysis prompt asks for these
// sections; wording drifts, so each boundary is a small alternation.
var (
	overviewStart  = regexp.MustCompile(`(?i)stato di salute|panoramica|overview`)
	strengthsStart = regexp.MustCompile(`(?i)punti di forza|strengths`)
	weakStart      = regexp.MustCompile(`(?i)criticità|aree di miglioramento|debolezze`)
	riskStart      = regexp.MustCompile(`(?i)valutazione del rischio|risk assessment`)
	conclusions    = regexp.MustCompile(`(?i)conclusioni`)
)

// composeReport assembles the final report from the accumulated session
// state and the three report-stage completions.
func composeReport(now time.Time, state SessionState, executive, recommendations, implementation string) *Report {
	set := state.Scenarios

	sections := ReportSections{
		Executive: executive,
		Financial: breakdownAnalysis(state.Analysis),
		Optimizations: OptimizationsSection{
			Selected:   state.SelectedOptimizations(),
			Validation: state.Validation,
		},
		Scenarios: []ScenarioSummary{
			summarizeScenario(set.Base),
			summarizeScenario(set.Pessimistic),
			summarizeScenario(set.Realistic),
			summarizeScenario(set.Optimistic),
		},
		Comparison:      set.Comparison,
		Recommendations: recommendations,
		Implementation:  implementation,
	}

	report := &Report{
		Title:    reportTitle,
		Date:     now.Format("2006-01-02"),
		Sections: sections,
		Degraded: set.Degraded || (state.Validation != nil && state.Validation.Degraded),
	}
	report.FullText = renderReport(report)
	return report
}

// breakdownAnalysis splits the analysis text into the report's four
// subsections by keyword boundaries. A missing boundary yields an empty
// subsection, never an error.
func breakdownAnalysis(analysis string) FinancialBreakdown {
	return FinancialBreakdown{
		Overview:       textBetween(analysis, overviewStart, strengthsStart),
		Strengths:      textBetween(analysis, strengthsStart, weakStart),
		Weaknesses:     textBetween(analysis, weakStart, riskStart),
		RiskAssessment: textBetween(analysis, riskStart, conclusions),
	}
}

func textBetween(text string, start, end *regexp.Regexp) string {
	loc := start.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	stop := len(text)
	if endLoc := end.FindStringIndex(text[loc[1]:]); endLoc != nil {
		stop = loc[1] + endLoc[0]
	}
	return strings.TrimSpace(text[loc[0]:stop])
}

// summarizeScenario keeps the headline metrics only.
func summarizeScenario(s Scenario) ScenarioSummary {
	keyMetrics := make(finance.IndicatorSet)
	for _, key := range keyMetricKeys {
		if value, ok := s.Projections.Indicators[key]; ok {
			keyMetrics[key] = value
		}
	}
	return ScenarioSummary{
		Name:          s.Name,
		Description:   s.Description,
		KeyMetrics:    keyMetrics,
		Analysis:      s.Analysis,
		Optimizations: optimizationTitles(s.Optimizations),
	}
}

// renderReport combines the sections into one markdown document.
func renderReport(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", r.Title)
	fmt.Fprintf(&b, "Data: %s\n\n", r.Date)

	fmt.Fprintf(&b, "## Executive Summary\n\n%s\n\n", r.Sections.Executive)

	b.WriteString("## Analisi Finanziaria\n\n")
	writeSubsection(&b, "Panoramica", r.Sections.Financial.Overview)
	writeSubsection(&b, "Punti di Forza", r.Sections.Financial.Strengths)
	writeSubsection(&b, "Criticità", r.Sections.Financial.Weaknesses)
	writeSubsection(&b, "Valutazione del Rischio", r.Sections.Financial.RiskAssessment)

	b.WriteString("## Ottimizzazioni Selezionate\n\n")
	for i, opt := range r.Sections.Optimizations.Selected {
		fmt.Fprintf(&b, "### %d. %s\n\n", i+1, opt.Title)
		fmt.Fprintf(&b, "**Categoria**: %s\n**Impatto**: %s\n**Timeframe**: %s\n\n", opt.Category, opt.Impact, opt.Timeframe)
		if opt.Description != "" {
			fmt.Fprintf(&b, "%s\n\n", opt.Description)
		}
	}
	if v := r.Sections.Optimizations.Validation; v != nil {
		fmt.Fprintf(&b, "**Valutazione complessiva della selezione**: %s\n\n", v.OverallRating)
	}

	b.WriteString("## Scenari\n\n")
	for _, s := range r.Sections.Scenarios {
		fmt.Fprintf(&b, "### %s\n\n%s\n\n", s.Name, s.Description)
		if s.Analysis.FullText != "" {
			fmt.Fprintf(&b, "%s\n\n", s.Analysis.FullText)
		}
	}
	writeSubsection(&b, "Confronto tra Scenari", r.Sections.Comparison)

	fmt.Fprintf(&b, "## Raccomandazioni\n\n%s\n\n", r.Sections.Recommendations)
	fmt.Fprintf(&b, "## Piano di Implementazione\n\n%s\n", r.Sections.Implementation)

	return b.String()
}

func writeSubsection(b *strings.Builder, title, body string) {
	if body == "" {
		body = "Non disponibile"
	}
	fmt.Fprintf(b, "### %s\n\n%s\n\n", title, body)
}
