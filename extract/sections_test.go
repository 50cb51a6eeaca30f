package extract_test

import (
	"strings"
	"testing"

	"github.com/c360studio/finadvisor/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scenarioPatterns = []extract.SectionPattern{
	{Header: "SCENARIO PESSIMISTICO", Keyword: "pessimistico"},
	{Header: "SCENARIO REALISTICO", Keyword: "realistico"},
	{Header: "SCENARIO OTTIMISTICO", Keyword: "ottimistico"},
	{Header: "CONFRONTO TRA SCENARI", Keyword: "confronto"},
}

func TestSections_ByteExactSpans(t *testing.T) {
	pad := strings.Repeat("Analisi dettagliata degli indicatori e delle proiezioni finanziarie. ", 3)
	text := "Premessa generale sull'azienda.\n\n" +
		"SCENARIO PESSIMISTICO\n" + pad + "\n\n" +
		"SCENARIO REALISTICO\n" + pad + "\n\n" +
		"SCENARIO OTTIMISTICO\n" + pad + "\n\n" +
		"CONFRONTO TRA SCENARI\n" + pad

	sections := extract.Sections(text, scenarioPatterns)
	require.Len(t, sections, 4)

	for i, sec := range sections {
		assert.True(t, sec.Found, sec.Header)
		assert.False(t, sec.Degraded, sec.Header)
		assert.True(t, strings.HasPrefix(sec.Text, sec.Header), "span must start at its own header")

		start := strings.Index(text, sec.Header)
		if i < len(sections)-1 {
			next := strings.Index(text, sections[i+1].Header)
			assert.Equal(t, text[start:next], sec.Text, "span must end exactly at the next header")
		} else {
			assert.Equal(t, text[start:], sec.Text, "last span must run to end of input")
		}
	}
}

func TestSections_MissingHeaderDoesNotShiftBoundaries(t *testing.T) {
	pad := strings.Repeat("Testo di riempimento per superare la soglia minima di lunghezza. ", 3)
	text := "SCENARIO PESSIMISTICO\n" + pad + "\nSCENARIO OTTIMISTICO\n" + pad

	sections := extract.Sections(text, []extract.SectionPattern{
		{Header: "SCENARIO PESSIMISTICO"},
		{Header: "SCENARIO REALISTICO"},
		{Header: "SCENARIO OTTIMISTICO"},
	})

	assert.True(t, sections[0].Found)
	assert.False(t, sections[1].Found)
	assert.Empty(t, sections[1].Text)
	assert.True(t, sections[2].Found)

	// The missing middle header must not swallow the third section: the
	// first span ends where the third begins.
	assert.Equal(t, text[:strings.Index(text, "SCENARIO OTTIMISTICO")], sections[0].Text)
}

func TestSections_MissingHeaderTriggersKeywordRescan(t *testing.T) {
	// The expected header never appears; the content sits in a paragraph
	// that mentions the keyword with different wording.
	text := "Nello scenario peggiore:\n\n" +
		"Nel caso pessimistico la liquidità scende sotto la soglia di guardia e il rapporto " +
		"debito su EBITDA peggiora sensibilmente, rendendo necessario un intervento immediato."

	sections := extract.Sections(text, []extract.SectionPattern{
		{Header: "SCENARIO PESSIMISTICO", Keyword: "pessimistico"},
	})

	require.Len(t, sections, 1)
	assert.False(t, sections[0].Found)
	assert.True(t, sections[0].Degraded)
	assert.Contains(t, sections[0].Text, "soglia di guardia")
}

func TestAnalyzeScenario_NumberedSubFields(t *testing.T) {
	section := `SCENARIO REALISTICO

1. Valutazione dell'impatto sugli indicatori chiave: La liquidità corrente migliora del 15% e l'EBITDA cresce in misura proporzionale.
2. Principali rischi e opportunità: Il rischio principale è il ritardo di implementazione; l'opportunità è il rafforzamento patrimoniale.
3. Probabilità di successo: Stimata intorno al 70% date le condizioni attuali.
4. Raccomandazioni: Dare priorità agli interventi sul capitale circolante.
5. Timeline di implementazione: 6-12 mesi con verifiche trimestrali.`

	analysis := extract.AnalyzeScenario(section)
	assert.False(t, analysis.Degraded)
	assert.Equal(t, "La liquidità corrente migliora del 15% e l'EBITDA cresce in misura proporzionale.", analysis.Impact)
	assert.Contains(t, analysis.RisksAndOpportunities, "ritardo di implementazione")
	assert.Contains(t, analysis.SuccessProbability, "70%")
	assert.Contains(t, analysis.Recommendations, "capitale circolante")
	assert.Contains(t, analysis.Timeline, "6-12 mesi")
	assert.Equal(t, strings.TrimSpace(section), analysis.FullText)
}

func TestAnalyzeScenario_MissingFieldsGetPlaceholders(t *testing.T) {
	analysis := extract.AnalyzeScenario("SCENARIO OTTIMISTICO\nNessuna struttura riconoscibile qui.")
	assert.True(t, analysis.Degraded)
	assert.Equal(t, "Valutazione dell'impatto non disponibile.", analysis.Impact)
	assert.Equal(t, "Rischi e opportunità non disponibili.", analysis.RisksAndOpportunities)
	assert.Equal(t, "Timeline di implementazione non disponibile.", analysis.Timeline)
	assert.NotEmpty(t, analysis.FullText)
}

func TestAnalyzeScenario_LooseLabelsWithoutNumbers(t *testing.T) {
	section := `Impatto sugli indicatori: miglioramento moderato della redditività.
Rischi individuati: dipendenza dal ciclo economico.`

	analysis := extract.AnalyzeScenario(section)
	assert.True(t, analysis.Degraded, "missing fields still degrade the result")
	assert.Contains(t, analysis.Impact, "miglioramento moderato")
	assert.Contains(t, analysis.RisksAndOpportunities, "ciclo economico")
}
