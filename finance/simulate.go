package finance

import "strings"

// Multipliers holds the impact multipliers for the three canonical scenario
// variants. The optimistic constant has shipped as both 1.3 and 1.5 across
// product iterations, so these are configuration rather than constants.
type Multipliers struct {
	Pessimistic float64 `yaml:"pessimistic" json:"pessimistic"`
	Realistic   float64 `yaml:"realistic" json:"realistic"`
	Optimistic  float64 `yaml:"optimistic" json:"optimistic"`
}

// DefaultMultipliers returns the current product defaults.
func DefaultMultipliers() Multipliers {
	return Multipliers{Pessimistic: 0.7, Realistic: 1.0, Optimistic: 1.3}
}

// categoryImpact maps an optimization category to the indicators it moves.
// For higherIsBetter categories the projected value is multiplied by
// tier*multiplier; for debt-type categories (lower is better) the value is
// multiplied by (2 - tier*multiplier), so a tier of 1.3 at multiplier 1
// cuts debt to 70%.
// minDebtReduction floors the lower-is-better reduction factor. The
// largest tier (1.3) at the largest accepted optimistic multiplier (1.5)
// lands exactly on it.
const minDebtReduction = 0.05

type categoryImpact struct {
	affected       []string
	tier           map[Impact]float64
	higherIsBetter bool
}

var impactTable = map[Category]categoryImpact{
	CategoryLiquidita: {
		affected:       []string{"liquiditaCorrente", "liquiditaSecca", "capitaleCircolanteNetto", "margineTesoreria"},
		tier:           map[Impact]float64{ImpactAlto: 1.25, ImpactMedio: 1.15, ImpactBasso: 1.05},
		higherIsBetter: true,
	},
	CategoryRedditivita: {
		affected:       []string{"ebitda", "redditCapitaleInvestito", "redditCapitaleProprio"},
		tier:           map[Impact]float64{ImpactAlto: 1.3, ImpactMedio: 1.15, ImpactBasso: 1.05},
		higherIsBetter: true,
	},
	CategoryStruttura: {
		affected:       []string{"indiceCapitalizzazione", "patrimonioNettoTangCap", "margineStruttura"},
		tier:           map[Impact]float64{ImpactAlto: 1.2, ImpactMedio: 1.1, ImpactBasso: 1.05},
		higherIsBetter: true,
	},
	CategoryIndebitamento: {
		affected:       []string{"posizioneFinanziariaNetta", "leverage", "debitiTotaliEbitda", "pfnPn"},
		tier:           map[Impact]float64{ImpactAlto: 1.3, ImpactMedio: 1.15, ImpactBasso: 1.05},
		higherIsBetter: false,
	},
}

// Simulate projects an indicator set under the selected optimizations and an
// impact multiplier from the variant being simulated. Effects of multiple
// optimizations touching the same indicator compound multiplicatively, in
// the order the optimizations appear.
func Simulate(base IndicatorSet, optimizations []Optimization, impactMultiplier float64) Projection {
	projected := base.Clone()

	for _, opt := range optimizations {
		if !opt.Selected {
			continue
		}

		if mapping, ok := impactTable[Category(strings.ToLower(string(opt.Category)))]; ok {
			tier, ok := mapping.tier[opt.Impact]
			if !ok {
				tier = 1.0
			}
			factor := tier * impactMultiplier
			for _, key := range mapping.affected {
				value, present := projected[key]
				if !present {
					continue
				}
				if mapping.higherIsBetter {
					projected[key] = value * factor
				} else {
					// factor beyond 2 would flip the indicator's sign,
					// so debt can shrink to the floor but never invert.
					reduction := 2 - factor
					if reduction < minDebtReduction {
						reduction = minDebtReduction
					}
					projected[key] = value * reduction
				}
			}
		}

		// Title-keyword effects from the original heuristic table.
		title := strings.ToLower(opt.Title)
		if strings.Contains(title, "capitale circolante") {
			if value, ok := projected["capitaleCircolanteNettoOperativo"]; ok {
				projected["capitaleCircolanteNettoOperativo"] = value * 1.2 * impactMultiplier
			}
		}
		if strings.Contains(title, "costo del lavoro") || strings.Contains(title, "costi operativi") {
			if value, ok := projected["ebitda"]; ok {
				projected["ebitda"] = value * 1.15 * impactMultiplier
			}
		}
	}

	return ComputeDerivedMetrics(projected)
}
