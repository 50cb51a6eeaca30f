// Package main implements a mock LLM server for e2e testing.
// It serves OpenAI-compatible /v1/chat/completions responses, routing by the
// pipeline stage inferred from the system message. This eliminates the need
// for a real LLM while exercising the full advisory pipeline, making e2e runs
// fast, deterministic, and offline-capable.
//
// Usage:
//
//	mock-llm -fixtures /path/to/fixtures -port 11434
//
// Fixture files are named by stage ("analysis.md", "optimizations.json",
// "validation.md", "scenarios.md", "report.md", "chat.md"); the file content
// is returned as the assistant message. Stages without a fixture fall back to
// built-in responses, so the server works with no fixtures directory at all.
//
// Sequential fixtures: if numbered files exist (e.g. "report.1.md",
// "report.2.md"), the Nth call for that stage returns the Nth fixture. After
// exhausting numbered fixtures, the base file repeats. Report synthesis makes
// three sequential calls (executive, recommendations, implementation), so a
// numbered report sequence exercises exactly that.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// --- OpenAI-compatible types ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// --- Stage routing ---

// stageMarkers map a system prompt fragment to a pipeline stage. The
// fragments come from the Italian system prompts each stage sends.
var stageMarkers = []struct {
	fragment string
	stage    string
}{
	{"analista finanziario", "analysis"},
	{"ottimizzazione aziendale", "optimizations"},
	{"fattibilità e coerenza", "validation"},
	{"modellazione di scenari", "scenarios"},
	{"assistente finanziario", "chat"},
}

func inferStage(messages []chatMessage) string {
	for _, msg := range messages {
		if msg.Role != "system" {
			continue
		}
		for _, marker := range stageMarkers {
			if strings.Contains(msg.Content, marker.fragment) {
				return marker.stage
			}
		}
	}
	// Executive, recommendations and implementation prompts share no single
	// marker; everything unmatched is a report synthesis call.
	return "report"
}

// --- Built-in fixtures ---

const defaultAnalysis = `Valutazione generale dello stato di salute finanziaria: l'azienda presenta una situazione complessivamente equilibrata, con una liquidità corrente adeguata a coprire gli impegni di breve termine.

Punti di forza principali: buona redditività del capitale investito e rapporto debiti su EBITDA entro la soglia di sostenibilità.

Criticità o aree di miglioramento: indice di capitalizzazione inferiore al benchmark di settore e capitale circolante in crescita oltre il fatturato.

Valutazione del rischio finanziario complessivo: moderato.`

const defaultOptimizations = `[
  {"title": "Rinegoziazione dei debiti a breve", "description": "Consolidare le linee a breve termine in un finanziamento a medio termine", "impact": "Alto", "difficulty": "Media", "timeframe": "Medio", "category": "indebitamento"},
  {"title": "Riduzione del capitale circolante", "description": "Accelerare gli incassi e rinegoziare i termini con i fornitori", "impact": "Medio", "difficulty": "Bassa", "timeframe": "Breve", "category": "liquidità"},
  {"title": "Rafforzamento patrimoniale", "description": "Aumento di capitale o conversione di finanziamenti soci", "impact": "Alto", "difficulty": "Alta", "timeframe": "Lungo", "category": "struttura"}
]`

const defaultValidation = `1. Coerenza: Ottimale
Le ottimizzazioni selezionate sono complementari e non si sovrappongono.

2. Adeguatezza: Adeguato
Gli interventi rispondono alle criticità evidenziate nell'analisi.

3. Equilibrio temporale: Adeguato
Buona copertura di breve e lungo termine.

4. Copertura delle aree di criticità: Ottimale
Tutte le aree principali risultano coperte.

5. Mix di impatto: Adeguato
Il mix tra interventi ad alto e medio impatto è ragionevole.

Possibili conflitti: nessuno rilevante.

Aree critiche non affrontate: nessuna.

Suggerimenti: monitorare la tempistica del rafforzamento patrimoniale.`

const defaultScenarioBlock = `1. Valutazione dell'impatto sugli indicatori chiave: gli indicatori di liquidità e redditività migliorano in misura coerente con il moltiplicatore applicato allo scenario.
2. Principali rischi e opportunità: il rischio di esecuzione resta il fattore dominante; l'opportunità principale è il rafforzamento della posizione finanziaria netta.
3. Probabilità di successo: stimata tra il 60% e l'80% a seconda delle condizioni di mercato.
4. Raccomandazioni: concentrare le risorse sugli interventi di breve termine prima di avviare quelli strutturali.
5. Timeline di implementazione: dai 6 ai 18 mesi complessivi.
`

var defaultScenarios = "Analisi degli scenari richiesti.\n\n" +
	"SCENARIO PESSIMISTICO\n" + defaultScenarioBlock + "\n" +
	"SCENARIO REALISTICO\n" + defaultScenarioBlock + "\n" +
	"SCENARIO OTTIMISTICO\n" + defaultScenarioBlock + "\n" +
	"CONFRONTO TRA SCENARI\n" +
	"Lo scenario realistico offre il miglior rapporto tra rischio e beneficio; quello ottimistico richiede condizioni di mercato favorevoli."

const defaultReport = `Panoramica generale: la situazione finanziaria complessiva è equilibrata, con margini di miglioramento sulla struttura patrimoniale.

Punti di forza: liquidità corrente e redditività del capitale investito.

Punti di debolezza: capitalizzazione sotto il benchmark di settore.

Valutazione del rischio: moderato, con esposizione contenuta al rischio di tasso.`

const defaultChat = `In base al report, il rischio principale resta la fase di esecuzione delle ottimizzazioni selezionate; le proiezioni degli scenari restano favorevoli nella variante realistica.`

func defaultFixtures() map[string][]string {
	return map[string][]string{
		"analysis":      {defaultAnalysis},
		"optimizations": {defaultOptimizations},
		"validation":    {defaultValidation},
		"scenarios":     {defaultScenarios},
		"report":        {defaultReport},
		"chat":          {defaultChat},
	}
}

// --- Server ---

// capturedRequest stores the key fields of an incoming LLM request for test verification.
type capturedRequest struct {
	Stage     string        `json:"stage"`
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	CallIndex int           `json:"call_index"` // 1-indexed per-stage call number
	Timestamp int64         `json:"timestamp"`
}

type server struct {
	fixtures map[string][]string // stage → ordered fixture contents (sequential)
	calls    atomic.Int64        // total calls served

	// Per-stage call counters for sequential fixture selection.
	stageCalls   map[string]*atomic.Int64
	stageCallsMu sync.Mutex // protects lazy init of stageCalls entries

	// Per-stage request capture for prompt verification in e2e tests.
	stageRequests   map[string][]capturedRequest
	stageRequestsMu sync.Mutex
}

func newServer(fixtures map[string][]string) *server {
	return &server{
		fixtures:      fixtures,
		stageCalls:    make(map[string]*atomic.Int64),
		stageRequests: make(map[string][]capturedRequest),
	}
}

// captureRequest stores a request for later retrieval via /requests endpoint.
func (s *server) captureRequest(stage string, req chatRequest, callIndex int) {
	s.stageRequestsMu.Lock()
	defer s.stageRequestsMu.Unlock()
	s.stageRequests[stage] = append(s.stageRequests[stage], capturedRequest{
		Stage:     stage,
		Model:     req.Model,
		Messages:  req.Messages,
		CallIndex: callIndex,
		Timestamp: time.Now().UnixMilli(),
	})
}

// getStageCounter returns the call counter for a stage, creating it lazily.
func (s *server) getStageCounter(stage string) *atomic.Int64 {
	s.stageCallsMu.Lock()
	defer s.stageCallsMu.Unlock()
	if c, ok := s.stageCalls[stage]; ok {
		return c
	}
	c := &atomic.Int64{}
	s.stageCalls[stage] = c
	return c
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory containing fixture response files")
	port := flag.Int("port", 11434, "port to listen on")
	flag.Parse()

	// Allow env var override
	if envDir := os.Getenv("MOCK_LLM_FIXTURES"); envDir != "" && *fixtureDir == "" {
		*fixtureDir = envDir
	}

	fixtures := defaultFixtures()
	if *fixtureDir != "" {
		loaded, err := loadFixtures(*fixtureDir)
		if err != nil {
			log.Fatalf("Failed to load fixtures from %s: %v", *fixtureDir, err)
		}
		// Loaded fixtures override the built-in ones per stage.
		for stage, seq := range loaded {
			fixtures[stage] = seq
		}
		log.Printf("Loaded %d stage override(s) from %s", len(loaded), *fixtureDir)
	}
	for stage, seq := range fixtures {
		log.Printf("  stage: %s (%d fixture(s))", stage, len(seq))
	}

	s := newServer(fixtures)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	mux.HandleFunc("/stats", s.handleStats)
	mux.HandleFunc("/requests", s.handleRequests)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Mock LLM server listening on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	callNum := s.calls.Add(1)
	stage := inferStage(req.Messages)
	log.Printf("[call %d] stage=%s model=%s messages=%d", callNum, stage, req.Model, len(req.Messages))

	seq, ok := s.fixtures[stage]
	if !ok || len(seq) == 0 {
		log.Printf("[call %d] WARNING: no fixture for stage=%q", callNum, stage)
		http.Error(w, fmt.Sprintf("no fixture for stage %q", stage), http.StatusNotFound)
		return
	}

	// Select fixture from sequence based on per-stage call count
	counter := s.getStageCounter(stage)
	callIndex := int(counter.Add(1) - 1) // 0-indexed

	// Capture request for prompt verification (e2e /requests endpoint)
	s.captureRequest(stage, req, callIndex+1)
	var content string
	if callIndex < len(seq) {
		content = seq[callIndex]
	} else {
		content = seq[len(seq)-1] // repeat last fixture
	}

	// Wrap in OpenAI response envelope
	resp := chatResponse{
		ID:      fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{
			{
				Index: 0,
				Message: chatMessage{
					Role:    "assistant",
					Content: content,
				},
				FinishReason: "stop",
			},
		},
		Usage: chatUsage{
			PromptTokens:     len(content) / 4, // rough estimate
			CompletionTokens: len(content) / 4,
			TotalTokens:      len(content) / 2,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
	log.Printf("[call %d] responded with %d bytes for stage=%s", callNum, len(content), stage)
}

// handleStats returns call counts for test assertions.
// Returns total_calls and per-stage calls_by_stage breakdown.
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.stageCallsMu.Lock()
	callsByStage := make(map[string]int64, len(s.stageCalls))
	for stage, counter := range s.stageCalls {
		callsByStage[stage] = counter.Load()
	}
	s.stageCallsMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"total_calls":    s.calls.Load(),
		"calls_by_stage": callsByStage,
	})
}

// handleRequests returns captured request bodies for test assertions.
// Query params:
//   - stage: filter by stage name (optional, returns all stages if omitted)
//   - call: filter by call index, 1-indexed (optional)
//
// Returns {"requests_by_stage": {"analysis": [...], ...}}
func (s *server) handleRequests(w http.ResponseWriter, r *http.Request) {
	stageFilter := r.URL.Query().Get("stage")
	callFilter := r.URL.Query().Get("call")

	s.stageRequestsMu.Lock()
	result := make(map[string][]capturedRequest)
	for stage, reqs := range s.stageRequests {
		if stageFilter != "" && stage != stageFilter {
			continue
		}
		if callFilter != "" {
			callIdx, err := strconv.Atoi(callFilter)
			if err == nil {
				for _, req := range reqs {
					if req.CallIndex == callIdx {
						result[stage] = append(result[stage], req)
					}
				}
				continue
			}
		}
		result[stage] = reqs
	}
	s.stageRequestsMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"requests_by_stage": result,
	})
}

// numberedFileRe matches files like "report.1.md", "validation.2.md".
var numberedFileRe = regexp.MustCompile(`^(.+)\.(\d+)\.(md|txt|json)$`)

// fixtureExt matches supported fixture extensions.
var fixtureExt = map[string]bool{".md": true, ".txt": true, ".json": true}

// loadFixtures reads fixture files from dir and returns a map of
// stage → content sequence.
//
// For each stage, fixtures are ordered:
//  1. Numbered files (stage.1.md, stage.2.md, ...) in numeric order
//  2. Base file (stage.md) appended as the final fallback
func loadFixtures(dir string) (map[string][]string, error) {
	baseFiles := make(map[string]string)             // stage → content
	numberedFiles := make(map[string]map[int]string) // stage → {index → content}

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !fixtureExt[filepath.Ext(info.Name())] {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		content := string(data)

		// Check for numbered pattern: stage.N.ext
		if matches := numberedFileRe.FindStringSubmatch(info.Name()); matches != nil {
			stage := matches[1]
			index, _ := strconv.Atoi(matches[2])
			if numberedFiles[stage] == nil {
				numberedFiles[stage] = make(map[int]string)
			}
			numberedFiles[stage][index] = content
			return nil
		}

		// Base file: stage.ext
		stage := strings.TrimSuffix(info.Name(), filepath.Ext(info.Name()))
		baseFiles[stage] = content
		return nil
	})

	if err != nil {
		return nil, err
	}

	// Build ordered sequences
	fixtures := make(map[string][]string)

	allStages := make(map[string]bool)
	for s := range baseFiles {
		allStages[s] = true
	}
	for s := range numberedFiles {
		allStages[s] = true
	}

	for stage := range allStages {
		var seq []string

		if numbered, ok := numberedFiles[stage]; ok {
			indices := make([]int, 0, len(numbered))
			for idx := range numbered {
				indices = append(indices, idx)
			}
			sort.Ints(indices)

			for _, idx := range indices {
				seq = append(seq, numbered[idx])
			}
		}

		if base, ok := baseFiles[stage]; ok {
			seq = append(seq, base)
		}

		if len(seq) > 0 {
			fixtures[stage] = seq
		}
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture files found in %s", dir)
	}

	return fixtures, nil
}
