// Package finance defines the fixed financial indicator catalog, derived
// metric computation, and the deterministic scenario simulation engine.
// Indicator keys and qualitative labels are the Italian terms used across
// the product; Go identifiers stay English.
package finance

import (
	"fmt"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Category classifies an indicator or an optimization intervention.
type Category string

const (
	CategoryStruttura     Category = "struttura"
	CategoryLiquidita     Category = "liquidità"
	CategoryRedditivita   Category = "redditività"
	CategoryIndebitamento Category = "indebitamento"
	CategoryRischio       Category = "rischio"
	CategoryOperativita   Category = "operatività"
	CategoryEfficienza    Category = "efficienza"
	CategoryGenerale      Category = "generale"
)

// BenchmarkStatus is the result of checking a value against its benchmark.
type BenchmarkStatus string

const (
	StatusHealthy      BenchmarkStatus = "in linea"
	StatusUnhealthy    BenchmarkStatus = "fuori soglia"
	StatusNotEvaluated BenchmarkStatus = "non valutabile"
)

// Indicator describes one entry of the fixed catalog.
type Indicator struct {
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Category    Category `json:"category"`
	Unit        string   `json:"unit"`
	Description string   `json:"description"`

	// Benchmark is the human-readable healthy range (e.g. "> 150%").
	Benchmark string `json:"benchmark"`

	// healthyExpr is the benchmark as a boolean expression over "value".
	// Empty for qualitative benchmarks that have no numeric threshold.
	healthyExpr string
	program     *vm.Program
}

// Evaluate checks a value against the indicator's benchmark threshold.
func (i *Indicator) Evaluate(value float64) BenchmarkStatus {
	if i.program == nil {
		return StatusNotEvaluated
	}
	out, err := expr.Run(i.program, map[string]any{"value": value})
	if err != nil {
		return StatusNotEvaluated
	}
	if ok, _ := out.(bool); ok {
		return StatusHealthy
	}
	return StatusUnhealthy
}

// catalog is the fixed set of ~20 indicators. Read-only after init.
var catalog = map[string]*Indicator{
	"margineStruttura": {
		Name: "Margine di struttura", Category: CategoryStruttura, Unit: "EUR",
		Description: "Differenza tra capitale proprio e attivo immobilizzato",
		Benchmark:   "> 0", healthyExpr: "value > 0",
	},
	"margineTesoreria": {
		Name: "Margine di tesoreria", Category: CategoryLiquidita, Unit: "EUR",
		Description: "Differenza tra liquidità immediate e differite e passività correnti",
		Benchmark:   "> 0", healthyExpr: "value > 0",
	},
	"capitaleCircolanteNetto": {
		Name: "Capitale circolante netto", Category: CategoryLiquidita, Unit: "EUR",
		Description: "Differenza tra attività correnti e passività correnti",
		Benchmark:   "> 0", healthyExpr: "value > 0",
	},
	"capitaleCircolanteNettoOperativo": {
		Name: "Capitale circolante netto operativo", Category: CategoryOperativita, Unit: "EUR",
		Description: "Capitale circolante al netto delle componenti finanziarie",
		Benchmark:   "Positivo e controllato",
	},
	"indiceCapitalizzazione": {
		Name: "Indice di capitalizzazione", Category: CategoryStruttura, Unit: "%",
		Description: "Rapporto tra capitale proprio e totale fonti",
		Benchmark:   "> 30%", healthyExpr: "value > 30",
	},
	"patrimonioNettoTangCap": {
		Name: "Patrimonio netto tang./ capitale investito", Category: CategoryStruttura, Unit: "%",
		Description: "Rapporto tra patrimonio netto tangibile e capitale investito",
		Benchmark:   "> 25%", healthyExpr: "value > 25",
	},
	"coperturaImmobilizzazioni": {
		Name: "Copertura immobilizzazioni", Category: CategoryStruttura, Unit: "%",
		Description: "Rapporto tra capitale permanente e immobilizzazioni",
		Benchmark:   "> 100%", healthyExpr: "value > 100",
	},
	"autocoperturaImmobilizzazioni": {
		Name: "Autocopertura immobilizzazioni", Category: CategoryStruttura, Unit: "%",
		Description: "Rapporto tra capitale proprio e immobilizzazioni",
		Benchmark:   "> 70%", healthyExpr: "value > 70",
	},
	"liquiditaCorrente": {
		Name: "Liquidità corrente", Category: CategoryLiquidita, Unit: "%",
		Description: "Rapporto tra attività correnti e passività correnti",
		Benchmark:   "> 150%", healthyExpr: "value > 150",
	},
	"liquiditaSecca": {
		Name: "Liquidità secca", Category: CategoryLiquidita, Unit: "%",
		Description: "Rapporto tra liquidità immediate e differite e passività correnti",
		Benchmark:   "> 100%", healthyExpr: "value > 100",
	},
	"indiceAutofinanziamento": {
		Name: "Indice di autofinanziamento", Category: CategoryLiquidita, Unit: "%",
		Description: "Capacità di generare liquidità dalla gestione",
		Benchmark:   "> 5%", healthyExpr: "value > 5",
	},
	"ebitda": {
		Name: "EBITDA", Category: CategoryRedditivita, Unit: "EUR",
		Description: "Margine operativo lordo",
		Benchmark:   "Positivo e in crescita", healthyExpr: "value > 0",
	},
	"redditCapitaleInvestito": {
		Name: "Redditività capitale investito", Category: CategoryRedditivita, Unit: "%",
		Description: "ROI - Return on Investment",
		Benchmark:   "> 10%", healthyExpr: "value > 10",
	},
	"redditCapitaleProprio": {
		Name: "Redditività capitale proprio", Category: CategoryRedditivita, Unit: "%",
		Description: "ROE - Return on Equity",
		Benchmark:   "> 8%", healthyExpr: "value > 8",
	},
	"posizioneFinanziariaNetta": {
		Name: "Posizione finanziaria netta", Category: CategoryIndebitamento, Unit: "EUR",
		Description: "Differenza tra debiti finanziari e attività finanziarie",
		Benchmark:   "Più bassa possibile",
	},
	"leverage": {
		Name: "Leverage", Category: CategoryIndebitamento, Unit: "%",
		Description: "Rapporto tra capitale investito e capitale proprio",
		Benchmark:   "< 3", healthyExpr: "value < 3",
	},
	"debitiTotaliEbitda": {
		Name: "Debiti totali/EBITDA", Category: CategoryIndebitamento, Unit: "%",
		Description: "Rapporto tra debito totale e margine operativo lordo",
		Benchmark:   "< 4", healthyExpr: "value < 4",
	},
	"oneriFinanziariRol": {
		Name: "Oneri finanziari/Reddito operativo lordo", Category: CategoryIndebitamento, Unit: "%",
		Description: "Incidenza degli oneri finanziari sul reddito operativo",
		Benchmark:   "< 10%", healthyExpr: "value < 10",
	},
	"pfnPn": {
		Name: "PFN / PN", Category: CategoryIndebitamento, Unit: "%",
		Description: "Rapporto tra posizione finanziaria netta e patrimonio netto",
		Benchmark:   "< 1", healthyExpr: "value < 1",
	},
	"emScore": {
		Name: "EM SCORE", Category: CategoryRischio, Unit: "",
		Description: "Indice di Altman per la previsione del rischio di insolvenza",
		Benchmark:   "> 3", healthyExpr: "value > 3",
	},
}

func init() {
	for key, ind := range catalog {
		ind.Key = key
		if ind.healthyExpr == "" {
			continue
		}
		program, err := expr.Compile(ind.healthyExpr,
			expr.Env(map[string]any{"value": float64(0)}),
			expr.AsBool(),
		)
		if err != nil {
			panic(fmt.Sprintf("finance: invalid benchmark expression for %s: %v", key, err))
		}
		ind.program = program
	}
}

// Lookup returns the catalog entry for a key, or nil if unknown.
func Lookup(key string) *Indicator {
	return catalog[key]
}

// Catalog returns all indicators sorted by key. The returned slice is a
// fresh copy; the entries themselves are shared and read-only.
func Catalog() []*Indicator {
	out := make([]*Indicator, 0, len(catalog))
	for _, ind := range catalog {
		out = append(out, ind)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// IndicatorSet maps catalog keys to captured values. Sets are never mutated
// in place: every transformation returns a derived copy.
type IndicatorSet map[string]float64

// Clone returns an independent copy of the set.
func (s IndicatorSet) Clone() IndicatorSet {
	out := make(IndicatorSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Keys returns the present indicator keys in sorted order.
func (s IndicatorSet) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
