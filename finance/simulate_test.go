package finance_test

import (
	"testing"

	"github.com/c360studio/finadvisor/finance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseIndicators() finance.IndicatorSet {
	return finance.IndicatorSet{
		"liquiditaCorrente":                160,
		"liquiditaSecca":                   110,
		"capitaleCircolanteNetto":          50000,
		"margineTesoreria":                 20000,
		"ebitda":                           300000,
		"redditCapitaleInvestito":          12,
		"redditCapitaleProprio":            9,
		"indiceCapitalizzazione":           35,
		"patrimonioNettoTangCap":           28,
		"margineStruttura":                 15000,
		"posizioneFinanziariaNetta":        500000,
		"leverage":                         2.5,
		"debitiTotaliEbitda":               1.67,
		"pfnPn":                            0.8,
		"emScore":                          3.4,
		"capitaleCircolanteNettoOperativo": 40000,
	}
}

func TestSimulate_NoOptimizationsMatchesDerivedRecompute(t *testing.T) {
	base := baseIndicators()

	for _, m := range []float64{0.5, 0.7, 1.0, 1.3, 1.5, 2.0} {
		simulated := finance.Simulate(base, nil, m)
		derived := finance.ComputeDerivedMetrics(base)
		assert.Equal(t, derived.Indicators, simulated.Indicators, "multiplier %v", m)
		assert.Equal(t, derived.Derived.DebtSustainability, simulated.Derived.DebtSustainability)
		assert.Equal(t, derived.Derived.FinancialBalance, simulated.Derived.FinancialBalance)
		assert.Equal(t, derived.Derived.OverallHealthStatus, simulated.Derived.OverallHealthStatus)
	}
}

func TestSimulate_DoesNotMutateBase(t *testing.T) {
	base := baseIndicators()
	before := base.Clone()

	opt := finance.Optimization{
		ID: "opt_1", Title: "Migliorare la liquidità", Impact: finance.ImpactAlto,
		Category: finance.CategoryLiquidita, Selected: true,
	}
	finance.Simulate(base, []finance.Optimization{opt}, 1.0)

	assert.Equal(t, before, base)
}

func TestSimulate_MonotonicInMultiplier(t *testing.T) {
	base := baseIndicators()
	opt := finance.Optimization{
		ID: "opt_1", Title: "Incrementare la marginalità", Impact: finance.ImpactAlto,
		Category: finance.CategoryRedditivita, Selected: true,
	}

	low := finance.Simulate(base, []finance.Optimization{opt}, 0.8)
	mid := finance.Simulate(base, []finance.Optimization{opt}, 1.0)
	high := finance.Simulate(base, []finance.Optimization{opt}, 1.3)

	assert.Greater(t, mid.Indicators["ebitda"], low.Indicators["ebitda"])
	assert.Greater(t, high.Indicators["ebitda"], mid.Indicators["ebitda"])

	// A stronger multiplier must also cut debt harder.
	debtOpt := finance.Optimization{
		ID: "opt_2", Title: "Ridurre l'esposizione", Impact: finance.ImpactAlto,
		Category: finance.CategoryIndebitamento, Selected: true,
	}
	lowDebt := finance.Simulate(base, []finance.Optimization{debtOpt}, 0.8)
	highDebt := finance.Simulate(base, []finance.Optimization{debtOpt}, 1.3)
	assert.Less(t, highDebt.Indicators["debitiTotaliEbitda"], lowDebt.Indicators["debitiTotaliEbitda"])
}

func TestSimulate_RealisticFactors(t *testing.T) {
	base := finance.IndicatorSet{
		"liquiditaCorrente":  100,
		"debitiTotaliEbitda": 4.0,
		"ebitda":             100,
	}

	liquidity := finance.Optimization{
		ID: "opt_1", Title: "Ottimizzare gli incassi", Impact: finance.ImpactAlto,
		Category: finance.CategoryLiquidita, Selected: true,
	}
	out := finance.Simulate(base, []finance.Optimization{liquidity}, 1.0)
	assert.InDelta(t, 125, out.Indicators["liquiditaCorrente"], 1e-9)

	debt := finance.Optimization{
		ID: "opt_2", Title: "Rinegoziare il debito", Impact: finance.ImpactAlto,
		Category: finance.CategoryIndebitamento, Selected: true,
	}
	out = finance.Simulate(base, []finance.Optimization{debt}, 1.0)
	assert.InDelta(t, 2.8, out.Indicators["debitiTotaliEbitda"], 1e-9)
}

func TestSimulate_UnselectedIgnored(t *testing.T) {
	base := baseIndicators()
	opt := finance.Optimization{
		ID: "opt_1", Title: "Migliorare la liquidità", Impact: finance.ImpactAlto,
		Category: finance.CategoryLiquidita, Selected: false,
	}

	out := finance.Simulate(base, []finance.Optimization{opt}, 1.0)
	assert.Equal(t, base["liquiditaCorrente"], out.Indicators["liquiditaCorrente"])
}

func TestSimulate_CompoundsMultiplicativelyInOrder(t *testing.T) {
	base := finance.IndicatorSet{"liquiditaCorrente": 100}
	first := finance.Optimization{
		ID: "opt_1", Title: "Intervento uno", Impact: finance.ImpactAlto,
		Category: finance.CategoryLiquidita, Selected: true,
	}
	second := finance.Optimization{
		ID: "opt_2", Title: "Intervento due", Impact: finance.ImpactMedio,
		Category: finance.CategoryLiquidita, Selected: true,
	}

	out := finance.Simulate(base, []finance.Optimization{first, second}, 1.0)
	assert.InDelta(t, 100*1.25*1.15, out.Indicators["liquiditaCorrente"], 1e-9)
}

func TestSimulate_DebtReductionNeverFlipsSign(t *testing.T) {
	base := finance.IndicatorSet{"leverage": 2.5, "posizioneFinanziariaNetta": 500000}
	opt := finance.Optimization{
		ID: "opt_1", Title: "Rinegoziazione dei debiti", Impact: finance.ImpactAlto,
		Category: finance.CategoryIndebitamento, Selected: true,
	}

	// tier 1.3 at multiplier 1.6 would give a raw reduction of 2-2.08; the
	// floor keeps the projected debt small and positive.
	out := finance.Simulate(base, []finance.Optimization{opt}, 1.6)
	assert.InDelta(t, 2.5*0.05, out.Indicators["leverage"], 1e-9)
	assert.Greater(t, out.Indicators["posizioneFinanziariaNetta"], 0.0)

	// At the largest accepted multiplier the reduction lands exactly on the
	// floor without engaging it early.
	out = finance.Simulate(base, []finance.Optimization{opt}, 1.5)
	assert.InDelta(t, 2.5*(2-1.3*1.5), out.Indicators["leverage"], 1e-9)
}

func TestSimulate_TitleKeywordEffects(t *testing.T) {
	base := finance.IndicatorSet{
		"capitaleCircolanteNettoOperativo": 1000,
		"ebitda":                           1000,
	}

	opts := []finance.Optimization{
		{ID: "opt_1", Title: "Gestione del capitale circolante", Impact: finance.ImpactMedio, Category: finance.CategoryGenerale, Selected: true},
		{ID: "opt_2", Title: "Riduzione dei costi operativi", Impact: finance.ImpactMedio, Category: finance.CategoryGenerale, Selected: true},
	}

	out := finance.Simulate(base, opts, 1.0)
	assert.InDelta(t, 1200, out.Indicators["capitaleCircolanteNettoOperativo"], 1e-9)
	assert.InDelta(t, 1150, out.Indicators["ebitda"], 1e-9)
}

func TestComputeDerivedMetrics_DebtSustainability(t *testing.T) {
	tests := []struct {
		name string
		debt float64
		want string
	}{
		{"sostenibile below 5", 1.67, finance.DebtSostenibile},
		{"moderato between 5 and 7", 5.5, finance.DebtModerato},
		{"critico at 7 and above", 7.2, finance.DebtCritico},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := finance.ComputeDerivedMetrics(finance.IndicatorSet{
				"debitiTotaliEbitda": tt.debt,
				"ebitda":             100000,
			})
			assert.Equal(t, tt.want, p.Derived.DebtSustainability)
			require.NotNil(t, p.Derived.DebtRepaymentYears)
			assert.Equal(t, tt.debt, *p.Derived.DebtRepaymentYears)
		})
	}
}

func TestComputeDerivedMetrics_DebtNeedsEbitda(t *testing.T) {
	p := finance.ComputeDerivedMetrics(finance.IndicatorSet{"debitiTotaliEbitda": 1.67})
	assert.Empty(t, p.Derived.DebtSustainability)
	assert.Nil(t, p.Derived.DebtRepaymentYears)
}

func TestComputeDerivedMetrics_FinancialBalance(t *testing.T) {
	tests := []struct {
		name     string
		cap, liq float64
		want     string
	}{
		{"buono", 30, 130, finance.BalanceBuono},
		{"adeguato", 20, 110, finance.BalanceAdeguato},
		{"debole", 10, 90, finance.BalanceDebole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := finance.ComputeDerivedMetrics(finance.IndicatorSet{
				"indiceCapitalizzazione": tt.cap,
				"liquiditaCorrente":      tt.liq,
			})
			assert.Equal(t, tt.want, p.Derived.FinancialBalance)
		})
	}
}

func TestComputeDerivedMetrics_HealthScore(t *testing.T) {
	// All five checks pass.
	p := finance.ComputeDerivedMetrics(finance.IndicatorSet{
		"liquiditaCorrente":       160,
		"indiceCapitalizzazione":  35,
		"redditCapitaleInvestito": 12,
		"debitiTotaliEbitda":      2,
		"emScore":                 3.5,
		"ebitda":                  100,
	})
	require.NotNil(t, p.Derived.OverallHealthScore)
	assert.Equal(t, 100.0, *p.Derived.OverallHealthScore)
	assert.Equal(t, finance.HealthEccellente, p.Derived.OverallHealthStatus)

	// Three of five pass: 60% is Buono.
	p = finance.ComputeDerivedMetrics(finance.IndicatorSet{
		"liquiditaCorrente":       160,
		"indiceCapitalizzazione":  35,
		"redditCapitaleInvestito": 12,
		"debitiTotaliEbitda":      6,
		"emScore":                 2.0,
		"ebitda":                  100,
	})
	require.NotNil(t, p.Derived.OverallHealthScore)
	assert.Equal(t, 60.0, *p.Derived.OverallHealthScore)
	assert.Equal(t, finance.HealthBuono, p.Derived.OverallHealthStatus)

	// No health inputs at all: nothing computed.
	p = finance.ComputeDerivedMetrics(finance.IndicatorSet{"margineStruttura": 1})
	assert.Nil(t, p.Derived.OverallHealthScore)
	assert.Empty(t, p.Derived.OverallHealthStatus)
}

func TestCatalog_BenchmarkEvaluation(t *testing.T) {
	liq := finance.Lookup("liquiditaCorrente")
	require.NotNil(t, liq)
	assert.Equal(t, finance.StatusHealthy, liq.Evaluate(151))
	assert.Equal(t, finance.StatusUnhealthy, liq.Evaluate(150))

	debt := finance.Lookup("debitiTotaliEbitda")
	require.NotNil(t, debt)
	assert.Equal(t, finance.StatusHealthy, debt.Evaluate(3.9))
	assert.Equal(t, finance.StatusUnhealthy, debt.Evaluate(4.1))

	// Qualitative benchmark has no numeric threshold.
	pfn := finance.Lookup("posizioneFinanziariaNetta")
	require.NotNil(t, pfn)
	assert.Equal(t, finance.StatusNotEvaluated, pfn.Evaluate(123))

	assert.Nil(t, finance.Lookup("nonEsiste"))
	assert.Len(t, finance.Catalog(), 20)
}

func TestOptimization_PriorityScore(t *testing.T) {
	best := finance.Optimization{Impact: finance.ImpactAlto, Difficulty: finance.DifficultyBassa, Timeframe: finance.TimeframeBreve}
	worst := finance.Optimization{Impact: finance.ImpactBasso, Difficulty: finance.DifficultyAlta, Timeframe: finance.TimeframeLungo}

	assert.Equal(t, 12, best.PriorityScore())
	assert.Equal(t, 4, worst.PriorityScore())
	assert.Greater(t, best.PriorityScore(), worst.PriorityScore())
}
