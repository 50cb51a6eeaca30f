// Package server exposes the advisory pipeline over HTTP JSON.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360studio/finadvisor/advisor"
	"github.com/c360studio/finadvisor/llm"
)

// maxRequestBodySize limits POST body sizes to prevent DoS.
const maxRequestBodySize = 1 << 20 // 1 MB

// Server holds the HTTP surface's dependencies.
type Server struct {
	registry       *advisor.Registry
	conversations  *llm.ConversationStore
	exportDir      string
	requestTimeout time.Duration
	logger         *slog.Logger
	metrics        *Metrics
}

// Config wires a Server.
type Config struct {
	Registry       *advisor.Registry
	Conversations  *llm.ConversationStore
	ExportDir      string
	RequestTimeout time.Duration
	Logger         *slog.Logger
	Metrics        *Metrics
}

// New creates a Server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Server{
		registry:       cfg.Registry,
		conversations:  cfg.Conversations,
		exportDir:      cfg.ExportDir,
		requestTimeout: timeout,
		logger:         logger,
		metrics:        cfg.Metrics,
	}
}

// RegisterHTTPHandlers registers all routes on the mux.
func (s *Server) RegisterHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/analyze", s.instrument("analyze", s.handleAnalyze))
	mux.HandleFunc("POST /api/sessions/{id}/optimizations", s.instrument("optimizations", s.handleOptimizations))
	mux.HandleFunc("PUT /api/sessions/{id}/selection", s.instrument("selection", s.handleSelection))
	mux.HandleFunc("POST /api/sessions/{id}/validate", s.instrument("validate", s.handleValidate))
	mux.HandleFunc("POST /api/sessions/{id}/scenarios", s.instrument("scenarios", s.handleScenarios))
	mux.HandleFunc("POST /api/sessions/{id}/report", s.instrument("report", s.handleReport))
	mux.HandleFunc("GET /api/sessions/{id}", s.instrument("session_get", s.handleGetSession))
	mux.HandleFunc("DELETE /api/sessions/{id}", s.instrument("session_close", s.handleCloseSession))
	mux.HandleFunc("POST /api/sessions/{id}/reset", s.instrument("session_reset", s.handleResetSession))
	mux.HandleFunc("POST /api/sessions/{id}/save", s.instrument("session_save", s.handleSaveSession))
	mux.HandleFunc("POST /api/sessions/load", s.instrument("session_load", s.handleLoadSession))
	mux.HandleFunc("POST /api/export", s.instrument("export", s.handleExport))
	mux.HandleFunc("POST /api/chat/init", s.instrument("chat_init", s.handleChatInit))
	mux.HandleFunc("POST /api/chat/send", s.instrument("chat_send", s.handleChatSend))
	mux.HandleFunc("DELETE /api/chat/{conversationId}", s.instrument("chat_delete", s.handleChatDelete))
	mux.HandleFunc("GET /healthz", s.handleHealthz)
}

// statusRecorder captures the response code for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		if s.metrics != nil {
			status := "2xx"
			switch {
			case recorder.status >= 500:
				status = "5xx"
			case recorder.status >= 400:
				status = "4xx"
			}
			s.metrics.requestDuration.WithLabelValues(route, status).Observe(time.Since(started).Seconds())
		}
	}
}

// requestContext bounds a request, including the provider calls inside it.
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.requestTimeout)
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*advisor.Orchestrator, bool) {
	orchestrator, err := s.registry.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return orchestrator, true
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readJSON decodes a size-limited JSON body.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var precondition *advisor.PreconditionError
	var emptySelection *advisor.EmptySelectionError
	var providerErr *llm.ProviderError
	switch {
	case errors.Is(err, advisor.ErrSessionNotFound), errors.Is(err, llm.ErrConversationNotFound):
		status = http.StatusNotFound
	case errors.As(err, &precondition):
		status = http.StatusConflict
	case errors.As(err, &emptySelection):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &providerErr):
		status = http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
