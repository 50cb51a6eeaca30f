package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/c360studio/finadvisor/advisor"
	"github.com/c360studio/finadvisor/llm"
	_ "github.com/c360studio/finadvisor/llm/providers"
	"github.com/c360studio/finadvisor/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipelineClient returns canned stage responses keyed by system prompt, so
// the pipeline can run end to end without a provider. failOn makes a single
// stage fail with a provider error.
type pipelineClient struct {
	failOn string
}

const optimizationsJSON = `[
  {"title": "Rinegoziazione dei debiti", "description": "Consolidare le linee a breve", "impact": "Alto", "difficulty": "Media", "timeframe": "Medio", "category": "indebitamento"},
  {"title": "Riduzione del capitale circolante", "description": "Accelerare gli incassi", "impact": "Medio", "difficulty": "Bassa", "timeframe": "Breve", "category": "liquidità"}
]`

const validationText = `1. Coerenza: Ottimale
Le ottimizzazioni sono complementari.

2. Adeguatezza: Adeguato
Rispondono alle criticità evidenziate.

Suggerimenti: nessuno.`

const scenarioBody = "Gli indicatori di liquidità e redditività si muovono in linea con il moltiplicatore applicato; " +
	"il rischio di esecuzione resta il fattore dominante e la timeline stimata copre dai sei ai diciotto mesi.\n\n"

var scenarioText = "SCENARIO PESSIMISTICO\n" + scenarioBody +
	"SCENARIO REALISTICO\n" + scenarioBody +
	"SCENARIO OTTIMISTICO\n" + scenarioBody +
	"CONFRONTO TRA SCENARI\nIl realistico resta il riferimento: offre il miglior rapporto tra rischio e beneficio " +
	"e non dipende da condizioni di mercato eccezionali per produrre i risultati attesi."

func (c *pipelineClient) Complete(ctx context.Context, prompt string, opts llm.CompletionOptions) (string, error) {
	stage := "report"
	switch {
	case strings.Contains(opts.SystemPrompt, "analista finanziario"):
		stage = "analyze"
	case strings.Contains(opts.SystemPrompt, "fattibilità e coerenza"):
		stage = "validate"
	case strings.Contains(opts.SystemPrompt, "ottimizzazione aziendale"):
		stage = "optimizations"
	case strings.Contains(opts.SystemPrompt, "modellazione di scenari"):
		stage = "scenarios"
	}
	if c.failOn == stage {
		return "", &llm.ProviderError{Provider: "test", Attempts: 3, Err: errors.New("unavailable")}
	}

	switch stage {
	case "analyze":
		return "Valutazione generale: situazione equilibrata.", nil
	case "optimizations":
		return optimizationsJSON, nil
	case "validate":
		return validationText, nil
	case "scenarios":
		return scenarioText, nil
	default:
		return "Testo della sezione del report.", nil
	}
}

// chatBackend is an OpenAI-shaped stub so the conversation store has a real
// HTTP endpoint to talk to.
func chatBackend(t *testing.T) *httptest.Server {
	t.Helper()
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": "Risposta di prova sul report."}},
			},
		})
	}))
	t.Cleanup(backend.Close)
	return backend
}

type testEnv struct {
	server    *httptest.Server
	exportDir string
}

func newTestEnv(t *testing.T, client advisor.CompletionClient) *testEnv {
	t.Helper()

	registry := advisor.NewRegistry(func(id string) *advisor.Orchestrator {
		return advisor.New(id, client)
	})

	backend := chatBackend(t)
	chatClient := llm.NewClient(llm.Endpoint{Provider: "ollama", URL: backend.URL, Model: "test"})
	conversations := llm.NewConversationStore(chatClient, nil)

	exportDir := t.TempDir()
	srv := server.New(server.Config{
		Registry:      registry,
		Conversations: conversations,
		ExportDir:     exportDir,
	})

	mux := http.NewServeMux()
	srv.RegisterHTTPHandlers(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, exportDir: exportDir}
}

// call issues a JSON request and decodes the JSON response body.
func (e *testEnv) call(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func indicatorsBody() map[string]any {
	return map[string]any{
		"indicators": map[string]float64{
			"liquiditaCorrente":      140,
			"indiceCapitalizzazione": 22,
			"ebitda":                 1500,
		},
	}
}

// analyze creates a session over HTTP and returns its id.
func (e *testEnv) analyze(t *testing.T) string {
	t.Helper()
	status, body := e.call(t, http.MethodPost, "/api/analyze", indicatorsBody())
	require.Equal(t, http.StatusOK, status)
	id, _ := body["sessionId"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestServer_AnalyzeCreatesSession(t *testing.T) {
	env := newTestEnv(t, &pipelineClient{})

	status, body := env.call(t, http.MethodPost, "/api/analyze", indicatorsBody())
	require.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, body["sessionId"])
	assert.Contains(t, body["analysis"], "Valutazione generale")
	assert.NotNil(t, body["derived"])

	status, body = env.call(t, http.MethodGet, "/api/sessions/"+body["sessionId"].(string), nil)
	require.Equal(t, http.StatusOK, status)
	state := body["state"].(map[string]any)
	assert.Equal(t, "analyzed", state["stage"])
}

func TestServer_FullPipeline(t *testing.T) {
	env := newTestEnv(t, &pipelineClient{})
	id := env.analyze(t)

	status, body := env.call(t, http.MethodPost, "/api/sessions/"+id+"/optimizations", nil)
	require.Equal(t, http.StatusOK, status)
	opts := body["optimizations"].([]any)
	require.Len(t, opts, 2)
	first := opts[0].(map[string]any)
	assert.Equal(t, "opt_1", first["id"])
	assert.EqualValues(t, 10, first["priorityScore"], "Alto x2 + Media + Medio")

	status, body = env.call(t, http.MethodPut, "/api/sessions/"+id+"/selection", map[string]any{"ids": []string{"opt_1"}})
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["selectedOptimizations"].([]any), 1)

	status, body = env.call(t, http.MethodPost, "/api/sessions/"+id+"/validate", nil)
	require.Equal(t, http.StatusOK, status)
	validation := body["validation"].(map[string]any)
	assert.Equal(t, "Ottimale", validation["coherence"].(map[string]any)["rating"])

	status, body = env.call(t, http.MethodPost, "/api/sessions/"+id+"/scenarios", nil)
	require.Equal(t, http.StatusOK, status)
	scenarios := body["scenarios"].(map[string]any)
	assert.Contains(t, scenarios["comparison"], "riferimento")

	status, body = env.call(t, http.MethodPost, "/api/sessions/"+id+"/report", nil)
	require.Equal(t, http.StatusOK, status)
	report := body["report"].(map[string]any)
	assert.Contains(t, report["fullText"], "## Scenari")
}

func TestServer_ErrorMapping(t *testing.T) {
	env := newTestEnv(t, &pipelineClient{})
	id := env.analyze(t)

	// Skipping stages is a conflict.
	status, body := env.call(t, http.MethodPost, "/api/sessions/"+id+"/validate", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.NotEmpty(t, body["error"])

	// Unknown session.
	status, _ = env.call(t, http.MethodPost, "/api/sessions/missing/optimizations", nil)
	assert.Equal(t, http.StatusNotFound, status)

	// Malformed body.
	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/analyze", strings.NewReader("{broken"))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_EmptySelectionRejectedOnValidate(t *testing.T) {
	env := newTestEnv(t, &pipelineClient{})
	id := env.analyze(t)

	status, _ := env.call(t, http.MethodPost, "/api/sessions/"+id+"/optimizations", nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = env.call(t, http.MethodPut, "/api/sessions/"+id+"/selection", map[string]any{"ids": []string{}})
	require.Equal(t, http.StatusOK, status)

	status, body := env.call(t, http.MethodPost, "/api/sessions/"+id+"/validate", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Contains(t, body["error"], "no optimizations selected")
}

func TestServer_ProviderFailureIsBadGateway(t *testing.T) {
	env := newTestEnv(t, &pipelineClient{failOn: "optimizations"})
	id := env.analyze(t)

	status, body := env.call(t, http.MethodPost, "/api/sessions/"+id+"/optimizations", nil)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.NotEmpty(t, body["error"])
}

func TestServer_CloseSession(t *testing.T) {
	env := newTestEnv(t, &pipelineClient{})
	id := env.analyze(t)

	status, _ := env.call(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = env.call(t, http.MethodDelete, "/api/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_ResetSession(t *testing.T) {
	env := newTestEnv(t, &pipelineClient{})
	id := env.analyze(t)

	status, body := env.call(t, http.MethodPost, "/api/sessions/"+id+"/reset", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "created", body["stage"])
}

func TestServer_SaveAndLoadSession(t *testing.T) {
	env := newTestEnv(t, &pipelineClient{})
	id := env.analyze(t)

	status, body := env.call(t, http.MethodPost, "/api/sessions/"+id+"/save", map[string]any{})
	require.Equal(t, http.StatusOK, status)
	path := body["path"].(string)
	assert.True(t, strings.HasPrefix(path, env.exportDir))
	_, err := os.Stat(path)
	require.NoError(t, err)

	status, body = env.call(t, http.MethodPost, "/api/sessions/load", map[string]any{"path": path})
	require.Equal(t, http.StatusOK, status)
	restored := body["sessionId"].(string)
	assert.NotEqual(t, id, restored, "restored sessions get a fresh id")
	state := body["state"].(map[string]any)
	assert.Equal(t, "analyzed", state["stage"])

	// The restored session resumes the pipeline where the saved one stopped.
	status, _ = env.call(t, http.MethodPost, "/api/sessions/"+restored+"/optimizations", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestServer_SessionFilesConfinedToExportDir(t *testing.T) {
	env := newTestEnv(t, &pipelineClient{})
	id := env.analyze(t)

	// A traversal path is reduced to its sanitized base name inside the
	// sessions directory.
	status, body := env.call(t, http.MethodPost, "/api/sessions/"+id+"/save", map[string]any{
		"path": "../../../etc/cron.d/evil",
	})
	require.Equal(t, http.StatusOK, status)
	path := body["path"].(string)
	assert.Equal(t, filepath.Join(env.exportDir, "sessions"), filepath.Dir(path))
	assert.Equal(t, "evil.json", filepath.Base(path))
	_, err := os.Stat(path)
	require.NoError(t, err)

	// Loading with the same traversal string resolves to the same confined
	// file.
	status, body = env.call(t, http.MethodPost, "/api/sessions/load", map[string]any{
		"path": "../../../etc/cron.d/evil",
	})
	require.Equal(t, http.StatusOK, status)
	state := body["state"].(map[string]any)
	assert.Equal(t, "analyzed", state["stage"])

	// A name that sanitizes to nothing is rejected.
	status, _ = env.call(t, http.MethodPost, "/api/sessions/load", map[string]any{"path": "///"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServer_LoadRejectsBadFile(t *testing.T) {
	env := newTestEnv(t, &pipelineClient{})

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"version": 99}`), 0o644))

	status, body := env.call(t, http.MethodPost, "/api/sessions/load", map[string]any{"path": bad})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, body["error"])
}

func TestServer_ExportWritesSanitizedFile(t *testing.T) {
	env := newTestEnv(t, &pipelineClient{})

	status, body := env.call(t, http.MethodPost, "/api/export", map[string]any{
		"content":  "# Report\n\nContenuto.",
		"filename": "../../etc/report finale!.md",
	})
	require.Equal(t, http.StatusOK, status)

	path := body["path"].(string)
	assert.Equal(t, env.exportDir, filepath.Dir(path))
	assert.Equal(t, "report finale.md", filepath.Base(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# Report\n\nContenuto.", string(content))
}

func TestServer_ExportRequiresContent(t *testing.T) {
	env := newTestEnv(t, &pipelineClient{})
	status, _ := env.call(t, http.MethodPost, "/api/export", map[string]any{"filename": "x.md"})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestServer_ChatLifecycle(t *testing.T) {
	env := newTestEnv(t, &pipelineClient{})
	id := env.analyze(t)

	// Chat requires a generated report.
	status, _ := env.call(t, http.MethodPost, "/api/chat/init", map[string]any{"sessionId": id})
	assert.Equal(t, http.StatusConflict, status)

	for _, step := range []struct {
		method, path string
		body         any
	}{
		{http.MethodPost, "/api/sessions/" + id + "/optimizations", nil},
		{http.MethodPut, "/api/sessions/" + id + "/selection", map[string]any{"ids": []string{"opt_1"}}},
		{http.MethodPost, "/api/sessions/" + id + "/validate", nil},
		{http.MethodPost, "/api/sessions/" + id + "/scenarios", nil},
		{http.MethodPost, "/api/sessions/" + id + "/report", nil},
	} {
		st, _ := env.call(t, step.method, step.path, step.body)
		require.Equal(t, http.StatusOK, st, step.path)
	}

	status, body := env.call(t, http.MethodPost, "/api/chat/init", map[string]any{"sessionId": id})
	require.Equal(t, http.StatusOK, status)
	conversationID := body["conversationId"].(string)
	require.NotEmpty(t, conversationID)

	status, body = env.call(t, http.MethodPost, "/api/chat/send", map[string]any{
		"conversationId": conversationID,
		"question":       "Qual è il rischio principale?",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Risposta di prova sul report.", body["answer"])

	status, _ = env.call(t, http.MethodDelete, "/api/chat/"+conversationID, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = env.call(t, http.MethodDelete, "/api/chat/"+conversationID, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServer_Healthz(t *testing.T) {
	env := newTestEnv(t, &pipelineClient{})
	status, body := env.call(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}
