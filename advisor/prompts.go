package advisor

import (
	"fmt"
	"strings"

	"github.com/c360studio/finadvisor/finance"
)

// System prompts for the five stages. Kept as fixed Italian strings: the
// product's prompt wording is part of its observable behavior.
const (
	analysisSystemPrompt = "Sei un esperto analista finanziario. Fornisci una valutazione dettagliata e consigli pratici basati sugli indicatori finanziari forniti."

	optimizationSystemPrompt = "Sei un consulente finanziario esperto in ottimizzazione aziendale. Basandoti sull'analisi finanziaria, identifica opportunità concrete di miglioramento."

	validationSystemPrompt = "Sei un esperto finanziario specializzato nella valutazione della fattibilità e coerenza di interventi di ottimizzazione aziendale."

	scenarioSystemPrompt = "Sei un esperto in pianificazione finanziaria strategica e modellazione di scenari. Analizza gli scenari con approccio analitico e formula raccomandazioni concrete."

	executiveSystemPrompt = "Sei un consulente finanziario senior specializzato nella comunicazione efficace con i decisori aziendali."

	recommendationsSystemPrompt = "Sei un consulente strategico finanziario esperto in trasformazioni aziendali."

	implementationSystemPrompt = "Sei un project manager specializzato nell'implementazione di trasformazioni finanziarie aziendali."
)

// keyMetricKeys are the headline indicators condensed into prompts and
// report summaries.
var keyMetricKeys = []string{
	"ebitda",
	"redditCapitaleInvestito",
	"redditCapitaleProprio",
	"liquiditaCorrente",
	"indiceCapitalizzazione",
	"debitiTotaliEbitda",
}

// buildAnalysisPrompt groups the known indicators by catalog category and
// asks for a structured five-part assessment.
func buildAnalysisPrompt(indicators finance.IndicatorSet) string {
	grouped := make(map[finance.Category][]string)
	var order []finance.Category
	for _, ind := range finance.Catalog() {
		value, ok := indicators[ind.Key]
		if !ok {
			continue
		}
		if _, seen := grouped[ind.Category]; !seen {
			order = append(order, ind.Category)
		}
		grouped[ind.Category] = append(grouped[ind.Category],
			fmt.Sprintf("%s: %g %s", ind.Name, value, ind.Unit))
	}

	var b strings.Builder
	b.WriteString("Analizza i seguenti indicatori finanziari e fornisci una valutazione approfondita dello stato di salute dell'azienda:\n\n")
	for _, cat := range order {
		fmt.Fprintf(&b, "## %s\n", strings.ToUpper(string(cat)))
		for _, line := range grouped[cat] {
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(`Fornisci un'analisi strutturata che includa:
1. Valutazione generale dello stato di salute finanziaria
2. Analisi dettagliata di ciascuna area (struttura, liquidità, redditività, sostenibilità del debito)
3. Identificazione di 3-5 punti di forza principali
4. Identificazione di 3-5 criticità o aree di miglioramento
5. Valutazione del rischio finanziario complessivo

Formatta la risposta in modo strutturato con sezioni chiaramente identificabili.
`)
	return b.String()
}

// buildOptimizationPrompt asks for 8-10 interventions as a JSON array with
// the enum vocabulary the extraction engine expects.
func buildOptimizationPrompt(analysis string) string {
	return fmt.Sprintf(`Basandoti sulla seguente analisi finanziaria:

%s

Identifica 8-10 potenziali ottimizzazioni concrete che l'azienda potrebbe implementare.

Per ciascuna ottimizzazione, fornisci le seguenti informazioni nel formato JSON:

[
  {
    "title": "Titolo conciso dell'ottimizzazione",
    "description": "Descrizione dettagliata dell'intervento proposto",
    "impact": "Alto|Medio|Basso",
    "difficulty": "Alta|Media|Bassa",
    "timeframe": "Breve|Medio|Lungo",
    "category": "liquidità|redditività|struttura|indebitamento|efficienza|operatività"
  }
]

Le ottimizzazioni devono essere specifiche, praticabili e direttamente correlate ai problemi o opportunità identificati nell'analisi.
`, analysis)
}

// buildValidationPrompt lists the selected optimizations and asks for the
// five rated evaluation points plus conflicts, uncovered areas and
// suggestions.
func buildValidationPrompt(analysis string, selections []finance.Optimization) string {
	var list strings.Builder
	for i, opt := range selections {
		fmt.Fprintf(&list, "%d. %s\n   Descrizione: %s\n   Impatto: %s\n   Difficoltà: %s\n   Timeframe: %s\n   Categoria: %s\n\n",
			i+1, opt.Title, opt.Description, opt.Impact, opt.Difficulty, opt.Timeframe, opt.Category)
	}

	return fmt.Sprintf(`Analizza la coerenza e fattibilità delle seguenti ottimizzazioni selezionate dall'utente, tenendo conto dell'analisi finanziaria dell'azienda:

ANALISI FINANZIARIA:
%s

OTTIMIZZAZIONI SELEZIONATE:
%s
Valuta se queste ottimizzazioni:
1. Sono coerenti tra loro o presentano conflitti
2. Sono adeguate alla situazione finanziaria dell'azienda
3. Hanno un equilibrio adeguato tra breve, medio e lungo termine
4. Coprono le principali aree di criticità evidenziate nell'analisi
5. Rappresentano un mix efficace di interventi ad alto impatto e facile implementazione

Per ciascuno di questi 5 punti, fornisci una valutazione (Ottimale, Adeguato, Inadeguato) e una breve spiegazione.

Inoltre, identifica:
- Possibili conflitti tra le ottimizzazioni selezionate
- Aree critiche non affrontate dalle ottimizzazioni scelte
- Suggerimenti per migliorare l'efficacia complessiva delle ottimizzazioni

Formula la risposta in un formato strutturato.
`, analysis, list.String())
}

// buildScenarioPrompt presents the simulated variants and asks for one
// five-point analysis per scenario under fixed headers, so the section
// scanner can recover the spans.
func buildScenarioPrompt(set *ScenarioSet) string {
	return fmt.Sprintf(`Analizza i seguenti scenari finanziari generati in base all'implementazione di diverse ottimizzazioni:

SCENARIO BASE (nessuna ottimizzazione):
%s
SCENARIO PESSIMISTICO:
%s
SCENARIO REALISTICO:
%s
SCENARIO OTTIMISTICO:
%s
Per ciascuno degli scenari pessimistico, realistico e ottimistico, fornisci una sezione introdotta esattamente dall'intestazione "SCENARIO PESSIMISTICO", "SCENARIO REALISTICO" o "SCENARIO OTTIMISTICO" contenente:
1. Una valutazione dettagliata dell'impatto sugli indicatori chiave
2. I principali rischi e opportunità
3. Una stima della probabilità di successo
4. Raccomandazioni su come massimizzare i benefici
5. Una timeline ottimale di implementazione

Chiudi con una sezione introdotta dall'intestazione "CONFRONTO TRA SCENARI" che evidenzi i trade-off e le considerazioni strategiche.
`,
		formatScenarioForPrompt(set.Base),
		formatScenarioForPrompt(set.Pessimistic),
		formatScenarioForPrompt(set.Realistic),
		formatScenarioForPrompt(set.Optimistic))
}

// formatScenarioForPrompt condenses a scenario to its description, applied
// optimizations and headline projections.
func formatScenarioForPrompt(s Scenario) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Nome: %s\nDescrizione: %s\n", s.Name, s.Description)

	if len(s.Optimizations) > 0 {
		b.WriteString("\nOttimizzazioni implementate:\n")
		for _, opt := range s.Optimizations {
			fmt.Fprintf(&b, "- %s (Impatto: %s, Timeframe: %s)\n", opt.Title, opt.Impact, opt.Timeframe)
		}
	}

	b.WriteString("\nProiezioni finanziarie:\n")
	for _, key := range keyMetricKeys {
		if value, ok := s.Projections.Indicators[key]; ok {
			fmt.Fprintf(&b, "- %s: %.2f\n", key, value)
		}
	}
	b.WriteString("\n")
	return b.String()
}

// buildExecutivePrompt asks for a short decision-maker summary of the
// analysis and scenario outcomes.
func buildExecutivePrompt(analysis string, set *ScenarioSet) string {
	excerpt := analysis
	if len(excerpt) > 500 {
		excerpt = excerpt[:500] + "..."
	}
	return fmt.Sprintf(`Crea un executive summary conciso (massimo 300 parole) di un'analisi finanziaria aziendale.

L'analisi ha identificato il seguente stato di salute finanziaria:
%s

Sono stati sviluppati quattro scenari: base (senza cambiamenti), pessimistico, realistico e ottimistico.
Lo scenario realistico prevede interventi su: %s

L'executive summary deve:
1. Sintetizzare lo stato attuale
2. Evidenziare le principali opportunità di miglioramento
3. Descrivere brevemente il potenziale impatto degli interventi
4. Fornire indicazioni chiare su quali dovrebbero essere le prossime azioni

Usa un tono professionale ma diretto, adatto per decisori aziendali.
`, excerpt, strings.Join(optimizationTitles(set.Realistic.Optimizations), ", "))
}

// buildRecommendationsPrompt asks for prioritized strategic recommendations
// grounded in the realistic scenario and the cross-scenario comparison.
func buildRecommendationsPrompt(set *ScenarioSet) string {
	var list strings.Builder
	for _, opt := range set.Realistic.Optimizations {
		fmt.Fprintf(&list, "- %s (%s, %s)\n", opt.Title, opt.Impact, opt.Timeframe)
	}

	realistic := set.Realistic.Analysis.FullText
	if realistic == "" {
		realistic = "Non disponibile"
	}
	comparison := set.Comparison
	if comparison == "" {
		comparison = "Non disponibile"
	}

	return fmt.Sprintf(`Basandoti sui seguenti scenari e ottimizzazioni selezionate, formula raccomandazioni strategiche concrete:

OTTIMIZZAZIONI SELEZIONATE:
%s
ANALISI SCENARIO REALISTICO:
%s

CONFRONTO TRA SCENARI:
%s

Genera 5-7 raccomandazioni strategiche concrete che l'azienda dovrebbe implementare.
Per ciascuna raccomandazione, indica:
1. Titolo della raccomandazione
2. Descrizione dettagliata
3. Priorità (Alta, Media, Bassa)
4. Benefici attesi
5. Rischi potenziali

Organizza le raccomandazioni in ordine di priorità.
`, list.String(), realistic, comparison)
}

// buildImplementationPrompt asks for a phased implementation plan over the
// selected optimizations.
func buildImplementationPrompt(selected []finance.Optimization) string {
	var list strings.Builder
	for i, opt := range selected {
		fmt.Fprintf(&list, "%d. %s (Impatto: %s, Difficoltà: %s, Timeframe: %s)\n",
			i+1, opt.Title, opt.Impact, opt.Difficulty, opt.Timeframe)
	}

	return fmt.Sprintf(`Crea un piano di implementazione per le seguenti ottimizzazioni:

%s
Il piano deve includere:
1. Una sequenza logica di implementazione
2. Timeline di attuazione (con milestones)
3. Risorse necessarie
4. KPI per monitorare il successo
5. Potenziali ostacoli e strategie di mitigazione

Organizza il piano in fasi chiare, considerando le interdipendenze tra le ottimizzazioni.
`, list.String())
}

func optimizationTitles(opts []finance.Optimization) []string {
	titles := make([]string, len(opts))
	for i, opt := range opts {
		titles[i] = opt.Title
	}
	return titles
}
