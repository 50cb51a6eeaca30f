package finance

// Qualitative labels for derived metrics.
const (
	DebtSostenibile = "Sostenibile"
	DebtModerato    = "Moderato"
	DebtCritico     = "Critico"

	BalanceBuono    = "Buono"
	BalanceAdeguato = "Adeguato"
	BalanceDebole   = "Debole"

	HealthEccellente   = "Eccellente"
	HealthBuono        = "Buono"
	HealthAdeguato     = "Adeguato"
	HealthProblematico = "Problematico"
	HealthCritico      = "Critico"
)

// Derived holds metrics computed from an indicator set. Pointer fields are
// nil when the inputs needed to compute them are absent.
type Derived struct {
	DebtRepaymentYears  *float64 `json:"debtRepaymentYears,omitempty"`
	DebtSustainability  string   `json:"debtSustainability,omitempty"`
	FinancialBalance    string   `json:"financialBalance,omitempty"`
	OverallHealthScore  *float64 `json:"overallHealthScore,omitempty"`
	OverallHealthStatus string   `json:"overallHealthStatus,omitempty"`
}

// Projection is an indicator set together with its derived metrics.
type Projection struct {
	Indicators IndicatorSet `json:"indicators"`
	Derived    Derived      `json:"derived"`
}

// healthCheckKeys are the five indicators whose catalog benchmarks make up
// the overall health score (liquidity, capitalization, ROI, debt/EBITDA,
// risk score).
var healthCheckKeys = []string{
	"liquiditaCorrente",
	"indiceCapitalizzazione",
	"redditCapitaleInvestito",
	"debitiTotaliEbitda",
	"emScore",
}

// ComputeDerivedMetrics derives sustainability, balance and health metrics
// from an indicator set. The input is not modified.
func ComputeDerivedMetrics(s IndicatorSet) Projection {
	p := Projection{Indicators: s.Clone()}

	if debt, ok := s["debitiTotaliEbitda"]; ok {
		if _, hasEbitda := s["ebitda"]; hasEbitda {
			years := debt
			p.Derived.DebtRepaymentYears = &years
			switch {
			case years < 5:
				p.Derived.DebtSustainability = DebtSostenibile
			case years < 7:
				p.Derived.DebtSustainability = DebtModerato
			default:
				p.Derived.DebtSustainability = DebtCritico
			}
		}
	}

	cap, hasCap := s["indiceCapitalizzazione"]
	liq, hasLiq := s["liquiditaCorrente"]
	if hasCap && hasLiq {
		switch {
		case cap > 25 && liq > 120:
			p.Derived.FinancialBalance = BalanceBuono
		case cap > 15 && liq > 100:
			p.Derived.FinancialBalance = BalanceAdeguato
		default:
			p.Derived.FinancialBalance = BalanceDebole
		}
	}

	healthy, total := 0, 0
	for _, key := range healthCheckKeys {
		value, ok := s[key]
		if !ok {
			continue
		}
		total++
		if Lookup(key).Evaluate(value) == StatusHealthy {
			healthy++
		}
	}
	if total > 0 {
		score := float64(healthy) / float64(total) * 100
		p.Derived.OverallHealthScore = &score
		switch {
		case score >= 80:
			p.Derived.OverallHealthStatus = HealthEccellente
		case score >= 60:
			p.Derived.OverallHealthStatus = HealthBuono
		case score >= 40:
			p.Derived.OverallHealthStatus = HealthAdeguato
		case score >= 20:
			p.Derived.OverallHealthStatus = HealthProblematico
		default:
			p.Derived.OverallHealthStatus = HealthCritico
		}
	}

	return p
}
