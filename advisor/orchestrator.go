package advisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/c360studio/finadvisor/extract"
	"github.com/c360studio/finadvisor/finance"
	"github.com/c360studio/finadvisor/llm"
)

// maxAnalysisLength caps the stored analysis text. Provider responses
// rarely approach it; the cap guards against runaway generations blowing
// up session snapshots and report prompts.
const maxAnalysisLength = 50_000

const truncationNote = "\n\n[Analisi troncata per superamento della lunghezza massima]"

// CompletionClient is the slice of the llm client the orchestrator needs.
type CompletionClient interface {
	Complete(ctx context.Context, prompt string, opts llm.CompletionOptions) (string, error)
}

// Hooks receive orchestrator events. Nil funcs are skipped; the server
// wires these to metrics.
type Hooks struct {
	StageChanged func(from, to Stage)
	Degraded     func(operation string)
}

// scenarioPatterns are the section boundaries expected in the scenario
// enrichment response.
var scenarioPatterns = []extract.SectionPattern{
	{Header: "SCENARIO PESSIMISTICO", Keyword: "pessimistico"},
	{Header: "SCENARIO REALISTICO", Keyword: "realistico"},
	{Header: "SCENARIO OTTIMISTICO", Keyword: "ottimistico"},
	{Header: "CONFRONTO TRA SCENARI", Keyword: "confronto"},
}

// Orchestrator owns one session's state and drives it through the stages in
// strict order. All operations serialize on the session mutex: one in-flight
// stage per session, including the remote call it contains.
type Orchestrator struct {
	id string

	mu    sync.Mutex
	state SessionState

	client      CompletionClient
	logger      *slog.Logger
	multipliers func() finance.Multipliers
	hooks       Hooks
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithMultipliers sets the scenario multiplier source. The source is read
// at scenario-generation time, so hot-reloaded configuration takes effect
// without restarting sessions.
func WithMultipliers(source func() finance.Multipliers) Option {
	return func(o *Orchestrator) { o.multipliers = source }
}

// WithHooks sets event hooks.
func WithHooks(hooks Hooks) Option {
	return func(o *Orchestrator) { o.hooks = hooks }
}

// New creates an orchestrator for one session.
func New(id string, client CompletionClient, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		id:          id,
		state:       SessionState{Stage: StageCreated},
		client:      client,
		logger:      slog.Default(),
		multipliers: finance.DefaultMultipliers,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("session_id", id)
	return o
}

// ID returns the session id.
func (o *Orchestrator) ID() string { return o.id }

// Stage returns the current stage.
func (o *Orchestrator) Stage() Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.Stage
}

// State returns a snapshot of the session state.
func (o *Orchestrator) State() SessionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Reset returns the session to Created, discarding all accumulated state.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	from := o.state.Stage
	o.state = SessionState{Stage: StageCreated}
	o.logger.Info("Session reset", "from_stage", from)
	o.stageChanged(from, StageCreated)
}

func (o *Orchestrator) stageChanged(from, to Stage) {
	if o.hooks.StageChanged != nil {
		o.hooks.StageChanged(from, to)
	}
}

func (o *Orchestrator) degraded(operation string) {
	if o.hooks.Degraded != nil {
		o.hooks.Degraded(operation)
	}
}

func (o *Orchestrator) advance(to Stage) {
	from := o.state.Stage
	o.state.Stage = to
	o.stageChanged(from, to)
}

// requireStage returns a PreconditionError unless the session is exactly at
// the required stage.
func (o *Orchestrator) requireStage(operation string, required Stage) error {
	if o.state.Stage != required {
		return &PreconditionError{Operation: operation, Required: required, Current: o.state.Stage}
	}
	return nil
}

// Analyze stores the indicators, computes derived metrics and obtains the
// narrative analysis. Provider failure is absorbed into the deterministic
// fallback text, so the stage still advances; only cancellation or a
// precondition violation fails it.
func (o *Orchestrator) Analyze(ctx context.Context, indicators finance.IndicatorSet) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.requireStage("analyze", StageCreated); err != nil {
		return "", err
	}
	if len(indicators) == 0 {
		return "", fmt.Errorf("session %s: at least one indicator is required", o.id)
	}

	projection := finance.ComputeDerivedMetrics(indicators)

	analysis, err := o.client.Complete(ctx, buildAnalysisPrompt(indicators), llm.CompletionOptions{
		SystemPrompt: analysisSystemPrompt,
	})
	if err != nil {
		return "", fmt.Errorf("analyze session %s: %w", o.id, err)
	}
	if len(analysis) > maxAnalysisLength {
		analysis = truncateOnRuneBoundary(analysis, maxAnalysisLength) + truncationNote
		o.logger.Warn("Analysis truncated", "max_length", maxAnalysisLength)
	}

	o.state.Indicators = indicators.Clone()
	o.state.Derived = projection.Derived
	o.state.Analysis = analysis
	o.advance(StageAnalyzed)

	o.logger.Info("Analysis completed", "indicators", len(indicators))
	return analysis, nil
}

// IdentifyOptimizations asks the provider for candidate interventions and
// extracts them as structured records. Unlike the narrative stages this one
// propagates provider failure: without structured optimizations nothing
// downstream is meaningful.
func (o *Orchestrator) IdentifyOptimizations(ctx context.Context) ([]finance.Optimization, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.requireStage("identifyOptimizations", StageAnalyzed); err != nil {
		return nil, err
	}

	text, err := o.client.Complete(ctx, buildOptimizationPrompt(o.state.Analysis), llm.CompletionOptions{
		SystemPrompt: optimizationSystemPrompt,
		Strict:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("identify optimizations for session %s: %w", o.id, err)
	}

	result := extract.OptimizationList(text)
	if result.Degraded {
		o.logger.Warn("Optimization extraction degraded", "reason", result.Reason)
		o.degraded("identifyOptimizations")
	}

	o.state.Optimizations = result.Optimizations
	o.state.SelectedIDs = nil
	o.advance(StageOptimizationsIdentified)

	o.logger.Info("Optimizations identified", "count", len(result.Optimizations), "degraded", result.Degraded)
	return append([]finance.Optimization(nil), result.Optimizations...), nil
}

// UpdateSelection marks the optimizations with the given ids selected and
// all others unselected. Idempotent, last call wins; unknown ids are
// ignored. Allowed any time at or after OptimizationsIdentified.
func (o *Orchestrator) UpdateSelection(ids []string) ([]finance.Optimization, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.state.Stage.AtLeast(StageOptimizationsIdentified) {
		return nil, &PreconditionError{
			Operation: "updateSelection",
			Required:  StageOptimizationsIdentified,
			Current:   o.state.Stage,
		}
	}

	requested := make(map[string]bool, len(ids))
	for _, id := range ids {
		requested[id] = true
	}

	var selectedIDs []string
	var selected []finance.Optimization
	for i := range o.state.Optimizations {
		opt := &o.state.Optimizations[i]
		opt.Selected = requested[opt.ID]
		if opt.Selected {
			selectedIDs = append(selectedIDs, opt.ID)
			selected = append(selected, *opt)
		}
	}
	o.state.SelectedIDs = selectedIDs

	if o.state.Stage == StageOptimizationsIdentified {
		o.advance(StageSelectionsUpdated)
	}

	o.logger.Info("Selection updated", "requested", len(ids), "selected", len(selectedIDs))
	return selected, nil
}

// ValidateSelections asks the provider to assess the selected optimizations
// and scores the verdict. Provider failure is absorbed: the fallback text
// yields default Adeguato points and the stage advances with a degraded
// result.
func (o *Orchestrator) ValidateSelections(ctx context.Context) (*ValidationResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.requireStage("validateSelections", StageSelectionsUpdated); err != nil {
		return nil, err
	}
	selections := o.state.SelectedOptimizations()
	if len(selections) == 0 {
		return nil, &EmptySelectionError{SessionID: o.id}
	}

	text, err := o.client.Complete(ctx, buildValidationPrompt(o.state.Analysis, selections), llm.CompletionOptions{
		SystemPrompt: validationSystemPrompt,
		Temperature:  floatPtr(0.2),
	})
	if err != nil {
		return nil, fmt.Errorf("validate selections for session %s: %w", o.id, err)
	}

	parsed := extract.Validation(text)
	result := &ValidationResult{
		ValidationExtract: parsed,
		OverallRating:     OverallRating(parsed.Points()),
		RawValidation:     text,
	}
	if parsed.Conflicts == "" && parsed.UncoveredAreas == "" && parsed.Suggestions == "" {
		result.Degraded = true
		o.degraded("validateSelections")
	}

	o.state.Validation = result
	o.advance(StageValidated)

	o.logger.Info("Selections validated", "overall_rating", result.OverallRating, "selected", len(selections))
	return result, nil
}

// GenerateScenarios simulates the canonical variants over the selected
// optimizations, then enriches them with a provider analysis recovered via
// section extraction. Provider failure is absorbed: scenarios keep their
// deterministic projections with placeholder narratives.
func (o *Orchestrator) GenerateScenarios(ctx context.Context) (*ScenarioSet, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.requireStage("generateScenarios", StageValidated); err != nil {
		return nil, err
	}

	selected := o.state.SelectedOptimizations()
	m := o.multipliers()
	set := &ScenarioSet{
		Base: Scenario{
			Name:        "Scenario Base",
			Description: "Proiezione finanziaria senza implementare alcuna ottimizzazione",
			Projections: finance.ComputeDerivedMetrics(o.state.Indicators),
		},
		Pessimistic: Scenario{
			Name:          "Scenario Pessimistico",
			Description:   "Proiezione assumendo un'implementazione parziale o difficoltosa delle ottimizzazioni",
			Optimizations: selected,
			Projections:   finance.Simulate(o.state.Indicators, selected, m.Pessimistic),
		},
		Realistic: Scenario{
			Name:          "Scenario Realistico",
			Description:   "Proiezione con implementazione ragionevole delle ottimizzazioni selezionate",
			Optimizations: selected,
			Projections:   finance.Simulate(o.state.Indicators, selected, m.Realistic),
		},
		Optimistic: Scenario{
			Name:          "Scenario Ottimistico",
			Description:   "Proiezione assumendo un'implementazione particolarmente efficace delle ottimizzazioni",
			Optimizations: selected,
			Projections:   finance.Simulate(o.state.Indicators, selected, m.Optimistic),
		},
	}

	text, err := o.client.Complete(ctx, buildScenarioPrompt(set), llm.CompletionOptions{
		SystemPrompt: scenarioSystemPrompt,
		Temperature:  floatPtr(0.4),
	})
	if err != nil {
		return nil, fmt.Errorf("generate scenarios for session %s: %w", o.id, err)
	}

	sections := extract.Sections(text, scenarioPatterns)
	set.Pessimistic.Analysis = extract.AnalyzeScenario(sections[0].Text)
	set.Realistic.Analysis = extract.AnalyzeScenario(sections[1].Text)
	set.Optimistic.Analysis = extract.AnalyzeScenario(sections[2].Text)
	set.Comparison = strings.TrimSpace(sections[3].Text)

	for _, sec := range sections {
		if sec.Degraded || !sec.Found {
			set.Degraded = true
		}
	}
	if set.Pessimistic.Analysis.Degraded || set.Realistic.Analysis.Degraded || set.Optimistic.Analysis.Degraded {
		set.Degraded = true
	}
	if set.Degraded {
		o.degraded("generateScenarios")
	}

	o.state.Scenarios = set
	o.advance(StageScenariosGenerated)

	o.logger.Info("Scenarios generated",
		"selected", len(selected),
		"multipliers", fmt.Sprintf("%g/%g/%g", m.Pessimistic, m.Realistic, m.Optimistic),
		"degraded", set.Degraded)
	return set, nil
}

// GenerateReport composes the final report: three further completions
// (executive summary, recommendations, implementation plan) plus
// deterministic formatting of the accumulated state. Provider failures are
// absorbed into fallback texts.
func (o *Orchestrator) GenerateReport(ctx context.Context) (*Report, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.requireStage("generateReport", StageScenariosGenerated); err != nil {
		return nil, err
	}

	set := o.state.Scenarios
	selected := o.state.SelectedOptimizations()

	executive, err := o.client.Complete(ctx, buildExecutivePrompt(o.state.Analysis, set), llm.CompletionOptions{
		SystemPrompt: executiveSystemPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("generate report for session %s: %w", o.id, err)
	}
	recommendations, err := o.client.Complete(ctx, buildRecommendationsPrompt(set), llm.CompletionOptions{
		SystemPrompt: recommendationsSystemPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("generate report for session %s: %w", o.id, err)
	}
	implementation, err := o.client.Complete(ctx, buildImplementationPrompt(selected), llm.CompletionOptions{
		SystemPrompt: implementationSystemPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("generate report for session %s: %w", o.id, err)
	}

	report := composeReport(time.Now(), o.state, executive, recommendations, implementation)

	o.state.Report = report
	o.advance(StageReportGenerated)

	o.logger.Info("Report generated", "sections", 7, "degraded", report.Degraded)
	return report, nil
}

func floatPtr(v float64) *float64 { return &v }

// truncateOnRuneBoundary cuts s to at most max bytes without splitting a
// multi-byte rune.
func truncateOnRuneBoundary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
