package extract_test

import (
	"testing"

	"github.com/c360studio/finadvisor/extract"
	"github.com/stretchr/testify/assert"
)

const validationResponse = `Valutazione delle ottimizzazioni selezionate:

1. Coerenza: Ottimale
Le ottimizzazioni sono complementari e non presentano conflitti evidenti.

2. Adeguatezza alla situazione finanziaria: Adeguato
Gli interventi rispondono alle criticità di liquidità evidenziate.

3. Equilibrio temporale: Inadeguato
Tutti gli interventi sono concentrati sul breve termine.

4. Copertura delle aree di criticità: Adeguato
La struttura patrimoniale resta parzialmente scoperta.

5. Mix di impatto e implementazione: Ottimale
Buona combinazione di interventi ad alto impatto e bassa difficoltà.

Possibili conflitti tra le ottimizzazioni: la riduzione del circolante può rallentare le vendite.

Aree critiche non affrontate: la capitalizzazione resta debole.

Suggerimenti: aggiungere un intervento di rafforzamento patrimoniale a medio termine.`

func TestValidation_ExtractsRatingsAndExplanations(t *testing.T) {
	v := extract.Validation(validationResponse)

	assert.Equal(t, extract.RatingOttimale, v.Coherence.Rating)
	assert.Contains(t, v.Coherence.Explanation, "complementari")

	assert.Equal(t, extract.RatingAdeguato, v.Adequacy.Rating)
	assert.Equal(t, extract.RatingInadeguato, v.TimeBalance.Rating)
	assert.Contains(t, v.TimeBalance.Explanation, "breve termine")

	assert.Equal(t, extract.RatingAdeguato, v.CriticalAreas.Rating)
	assert.Equal(t, extract.RatingOttimale, v.ImpactMix.Rating)
}

func TestValidation_ExtractsTrailingSections(t *testing.T) {
	v := extract.Validation(validationResponse)

	assert.Contains(t, v.Conflicts, "riduzione del circolante")
	assert.NotContains(t, v.Conflicts, "capitalizzazione")

	assert.Contains(t, v.UncoveredAreas, "capitalizzazione resta debole")
	assert.NotContains(t, v.UncoveredAreas, "Suggerimenti")

	assert.Contains(t, v.Suggestions, "rafforzamento patrimoniale")
}

func TestValidation_DefaultsWhenPointsMissing(t *testing.T) {
	v := extract.Validation("Risposta non strutturata senza punti numerati.")

	for _, point := range v.Points() {
		assert.Equal(t, extract.RatingAdeguato, point.Rating)
		assert.Empty(t, point.Explanation)
	}
	assert.Empty(t, v.Conflicts)
	assert.Empty(t, v.Suggestions)
}

func TestValidation_RatingOnSameLineWithoutFollowUp(t *testing.T) {
	v := extract.Validation("1. Inadeguato, le scelte sono in conflitto tra loro\n\n2. Ottimale")

	assert.Equal(t, extract.RatingInadeguato, v.Coherence.Rating)
	assert.Contains(t, v.Coherence.Explanation, "conflitto")
	assert.Equal(t, extract.RatingOttimale, v.Adequacy.Rating)
}

func TestValidation_PointsOrder(t *testing.T) {
	v := extract.Validation(validationResponse)
	points := v.Points()
	assert.Len(t, points, 5)
	assert.Equal(t, v.Coherence, points[0])
	assert.Equal(t, v.ImpactMix, points[4])
}
