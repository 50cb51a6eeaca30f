package finance

// Impact is the expected magnitude of an optimization's effect.
type Impact string

const (
	ImpactAlto  Impact = "Alto"
	ImpactMedio Impact = "Medio"
	ImpactBasso Impact = "Basso"
)

// Difficulty is the expected implementation effort.
type Difficulty string

const (
	DifficultyAlta  Difficulty = "Alta"
	DifficultyMedia Difficulty = "Media"
	DifficultyBassa Difficulty = "Bassa"
)

// Timeframe is the expected implementation horizon.
type Timeframe string

const (
	TimeframeBreve Timeframe = "Breve"
	TimeframeMedio Timeframe = "Medio"
	TimeframeLungo Timeframe = "Lungo"
)

// Optimization is a proposed intervention extracted from a provider response.
// IDs are assigned sequentially at creation (opt_1 … opt_n). Selected is the
// only field mutated after creation, and only by the selection stage.
type Optimization struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Impact      Impact     `json:"impact"`
	Difficulty  Difficulty `json:"difficulty"`
	Timeframe   Timeframe  `json:"timeframe"`
	Category    Category   `json:"category"`
	Selected    bool       `json:"selected"`
}

var (
	impactScore     = map[Impact]int{ImpactAlto: 3, ImpactMedio: 2, ImpactBasso: 1}
	difficultyScore = map[Difficulty]int{DifficultyBassa: 3, DifficultyMedia: 2, DifficultyAlta: 1}
	timeframeScore  = map[Timeframe]int{TimeframeBreve: 3, TimeframeMedio: 2, TimeframeLungo: 1}
)

// PriorityScore ranks an optimization for presentation. Impact counts double.
func (o Optimization) PriorityScore() int {
	return impactScore[o.Impact]*2 + difficultyScore[o.Difficulty] + timeframeScore[o.Timeframe]
}
