// Package advisor implements the advisory pipeline: a per-session
// orchestrator drives financial indicators through analysis, optimization
// discovery, selection validation, scenario simulation and report synthesis,
// combining deterministic transforms from the finance package with
// completion calls whose output is recovered by the extract package.
package advisor

import (
	"github.com/c360studio/finadvisor/extract"
	"github.com/c360studio/finadvisor/finance"
)

// Stage is the orchestrator's lifecycle position. Stages advance in strict
// order and never roll back.
type Stage string

const (
	StageCreated                 Stage = "created"
	StageAnalyzed                Stage = "analyzed"
	StageOptimizationsIdentified Stage = "optimizations_identified"
	StageSelectionsUpdated       Stage = "selections_updated"
	StageValidated               Stage = "validated"
	StageScenariosGenerated      Stage = "scenarios_generated"
	StageReportGenerated         Stage = "report_generated"
)

var stageOrder = map[Stage]int{
	StageCreated:                 0,
	StageAnalyzed:                1,
	StageOptimizationsIdentified: 2,
	StageSelectionsUpdated:       3,
	StageValidated:               4,
	StageScenariosGenerated:      5,
	StageReportGenerated:         6,
}

// IsValid reports whether s is a known stage.
func (s Stage) IsValid() bool {
	_, ok := stageOrder[s]
	return ok
}

// AtLeast reports whether s is other or a later stage.
func (s Stage) AtLeast(other Stage) bool {
	return stageOrder[s] >= stageOrder[other]
}

// ValidationResult is the validation stage's structured verdict: the five
// extracted evaluation points plus the aggregate rating computed by the
// scorer.
type ValidationResult struct {
	extract.ValidationExtract
	OverallRating string `json:"overallRating"`
	RawValidation string `json:"rawValidation,omitempty"`
	Degraded      bool   `json:"degraded,omitempty"`
}

// Scenario is one simulated variant: the optimizations applied, the
// projected indicators with recomputed derived metrics, and the narrative
// analysis recovered from the provider response.
type Scenario struct {
	Name          string                   `json:"name"`
	Description   string                   `json:"description"`
	Optimizations []finance.Optimization   `json:"optimizations"`
	Projections   finance.Projection       `json:"projections"`
	Analysis      extract.ScenarioAnalysis `json:"analysis"`
}

// ScenarioSet holds the base projection plus the three canonical variants
// and the free-text cross-scenario comparison.
type ScenarioSet struct {
	Base        Scenario `json:"base"`
	Pessimistic Scenario `json:"pessimistic"`
	Realistic   Scenario `json:"realistic"`
	Optimistic  Scenario `json:"optimistic"`
	Comparison  string   `json:"comparison"`
	Degraded    bool     `json:"degraded,omitempty"`
}

// FinancialBreakdown splits the analysis text into report subsections.
type FinancialBreakdown struct {
	Overview       string `json:"overview"`
	Strengths      string `json:"strengths"`
	Weaknesses     string `json:"weaknesses"`
	RiskAssessment string `json:"riskAssessment"`
}

// ScenarioSummary is a scenario condensed for the report: headline metrics
// only, with the narrative analysis and the titles of applied optimizations.
type ScenarioSummary struct {
	Name          string                   `json:"name"`
	Description   string                   `json:"description"`
	KeyMetrics    finance.IndicatorSet     `json:"keyMetrics"`
	Analysis      extract.ScenarioAnalysis `json:"analysis"`
	Optimizations []string                 `json:"optimizations,omitempty"`
}

// OptimizationsSection pairs the selected optimizations with the validation
// verdict for the report.
type OptimizationsSection struct {
	Selected   []finance.Optimization `json:"selected"`
	Validation *ValidationResult      `json:"validation,omitempty"`
}

// ReportSections are the composed parts of the final report.
type ReportSections struct {
	Executive       string               `json:"executive"`
	Financial       FinancialBreakdown   `json:"financial"`
	Optimizations   OptimizationsSection `json:"optimizations"`
	Scenarios       []ScenarioSummary    `json:"scenarios"`
	Comparison      string               `json:"comparison"`
	Recommendations string               `json:"recommendations"`
	Implementation  string               `json:"implementation"`
}

// Report is the final artifact of the pipeline.
type Report struct {
	Title    string         `json:"title"`
	Date     string         `json:"date"`
	Sections ReportSections `json:"sections"`
	FullText string         `json:"fullText"`
	Degraded bool           `json:"degraded,omitempty"`
}

// SessionState is the orchestrator's owned aggregate. Each field is
// populated only by its corresponding stage; only Reset clears them.
type SessionState struct {
	Stage         Stage                  `json:"stage"`
	Indicators    finance.IndicatorSet   `json:"indicators,omitempty"`
	Derived       finance.Derived        `json:"derived"`
	Analysis      string                 `json:"analysis,omitempty"`
	Optimizations []finance.Optimization `json:"optimizations,omitempty"`
	SelectedIDs   []string               `json:"selectedIds,omitempty"`
	Validation    *ValidationResult      `json:"validation,omitempty"`
	Scenarios     *ScenarioSet           `json:"scenarios,omitempty"`
	Report        *Report                `json:"report,omitempty"`
}

// clone returns a snapshot safe to hand out while the session keeps
// mutating. Slices and maps are copied; large immutable sub-structures are
// shared.
func (s SessionState) clone() SessionState {
	out := s
	out.Indicators = s.Indicators.Clone()
	if s.Optimizations != nil {
		out.Optimizations = make([]finance.Optimization, len(s.Optimizations))
		copy(out.Optimizations, s.Optimizations)
	}
	if s.SelectedIDs != nil {
		out.SelectedIDs = make([]string, len(s.SelectedIDs))
		copy(out.SelectedIDs, s.SelectedIDs)
	}
	if s.Validation != nil {
		v := *s.Validation
		out.Validation = &v
	}
	if s.Scenarios != nil {
		sc := *s.Scenarios
		out.Scenarios = &sc
	}
	if s.Report != nil {
		r := *s.Report
		out.Report = &r
	}
	return out
}

// SelectedOptimizations returns the optimizations currently marked selected,
// in creation order.
func (s SessionState) SelectedOptimizations() []finance.Optimization {
	var selected []finance.Optimization
	for _, opt := range s.Optimizations {
		if opt.Selected {
			selected = append(selected, opt)
		}
	}
	return selected
}
