package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/c360studio/finadvisor/advisor"
	"github.com/c360studio/finadvisor/finance"
	"github.com/c360studio/finadvisor/llm"
)

// optimizationPayload adds the computed priority score to the wire shape.
type optimizationPayload struct {
	finance.Optimization
	PriorityScore int `json:"priorityScore"`
}

func optimizationPayloads(opts []finance.Optimization) []optimizationPayload {
	payloads := make([]optimizationPayload, len(opts))
	for i, opt := range opts {
		payloads[i] = optimizationPayload{Optimization: opt, PriorityScore: opt.PriorityScore()}
	}
	return payloads
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Indicators finance.IndicatorSet `json:"indicators"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}
	if len(req.Indicators) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "indicators are required"})
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	orchestrator := s.registry.Create()
	analysis, err := orchestrator.Analyze(ctx, req.Indicators)
	if err != nil {
		s.registry.Close(orchestrator.ID())
		s.writeError(w, err)
		return
	}

	state := orchestrator.State()
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": orchestrator.ID(),
		"analysis":  analysis,
		"derived":   state.Derived,
	})
}

func (s *Server) handleOptimizations(w http.ResponseWriter, r *http.Request) {
	orchestrator, ok := s.session(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	optimizations, err := orchestrator.IdentifyOptimizations(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"optimizations": optimizationPayloads(optimizations),
	})
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	orchestrator, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}

	selected, err := orchestrator.UpdateSelection(req.IDs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"selectedOptimizations": optimizationPayloads(selected),
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	orchestrator, ok := s.session(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	validation, err := orchestrator.ValidateSelections(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"validation": validation})
}

func (s *Server) handleScenarios(w http.ResponseWriter, r *http.Request) {
	orchestrator, ok := s.session(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	scenarios, err := orchestrator.GenerateScenarios(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": scenarios})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	orchestrator, ok := s.session(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	report, err := orchestrator.GenerateReport(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	orchestrator, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": orchestrator.ID(),
		"state":     orchestrator.State(),
	})
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.registry.Close(id) {
		s.writeError(w, advisor.ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"closed": true})
}

func (s *Server) handleResetSession(w http.ResponseWriter, r *http.Request) {
	orchestrator, ok := s.session(w, r)
	if !ok {
		return
	}
	orchestrator.Reset()
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": orchestrator.ID(),
		"stage":     orchestrator.Stage(),
	})
}

func (s *Server) handleSaveSession(w http.ResponseWriter, r *http.Request) {
	orchestrator, ok := s.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Path string `json:"path"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}
	path := s.sessionFilePath(req.Path, orchestrator.ID())

	if err := orchestrator.Save(path); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (s *Server) handleLoadSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := readJSON(w, r, &req); err != nil || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path is required"})
		return
	}

	path := s.sessionFilePath(req.Path, "")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path is required"})
		return
	}

	state, err := advisor.LoadState(path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	orchestrator := s.registry.Create()
	if err := orchestrator.Restore(state); err != nil {
		s.registry.Close(orchestrator.ID())
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sessionId": orchestrator.ID(),
		"state":     orchestrator.State(),
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content  string `json:"content"`
		Filename string `json:"filename"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body: " + err.Error()})
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content is required"})
		return
	}

	path := filepath.Join(s.exportDir, sanitizeFilename(req.Filename))
	if err := os.MkdirAll(s.exportDir, 0o755); err != nil {
		s.writeError(w, fmt.Errorf("create export directory: %w", err))
		return
	}
	if err := os.WriteFile(path, []byte(req.Content), 0o644); err != nil {
		s.writeError(w, fmt.Errorf("write export: %w", err))
		return
	}

	s.logger.Info("Report exported", "path", path, "bytes", len(req.Content))
	writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

// sanitizeName strips directory components and characters that are not safe
// across filesystems, leaving a bare file name or "".
func sanitizeName(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.' || r == ' ':
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), ". ")
}

// sanitizeFilename returns a safe export file name. Empty or fully stripped
// names fall back to a default markdown filename.
func sanitizeFilename(name string) string {
	cleaned := sanitizeName(name)
	if cleaned == "" {
		return "report.md"
	}
	if filepath.Ext(cleaned) == "" {
		cleaned += ".md"
	}
	return cleaned
}

// sessionFilePath confines a session file reference to the sessions
// directory under the export dir. Only the sanitized base name of the
// client value is used, so clients cannot name arbitrary filesystem paths.
// Returns "" when both the name and the fallback are empty.
func (s *Server) sessionFilePath(name, fallback string) string {
	cleaned := sanitizeName(name)
	if cleaned == "" {
		cleaned = fallback
	}
	if cleaned == "" {
		return ""
	}
	if filepath.Ext(cleaned) != ".json" {
		cleaned += ".json"
	}
	return filepath.Join(s.exportDir, "sessions", cleaned)
}

func (s *Server) handleChatInit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := readJSON(w, r, &req); err != nil || req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "sessionId is required"})
		return
	}

	orchestrator, err := s.registry.Get(req.SessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	state := orchestrator.State()
	if state.Report == nil {
		s.writeError(w, &advisor.PreconditionError{
			Operation: "chat",
			Required:  advisor.StageReportGenerated,
			Current:   state.Stage,
		})
		return
	}

	conversationID := s.conversations.Init(state.Report.FullText)
	writeJSON(w, http.StatusOK, map[string]string{"conversationId": conversationID})
}

func (s *Server) handleChatSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConversationID string `json:"conversationId"`
		Question       string `json:"question"`
	}
	if err := readJSON(w, r, &req); err != nil || req.ConversationID == "" || req.Question == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "conversationId and question are required"})
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	answer, err := s.conversations.Send(ctx, req.ConversationID, req.Question)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) handleChatDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("conversationId")
	if !s.conversations.Delete(id) {
		s.writeError(w, llm.ErrConversationNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}
