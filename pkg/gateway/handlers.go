package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/bashme-ai/bashme/pkg/agent"
	"github.com/bashme-ai/bashme/pkg/logger"
	"github.com/bashme-ai/bashme/pkg/tools"
)

// statusClientClosedRequest answers requests whose context ended before a
// response could be written. No body follows it.
const statusClientClosedRequest = 499

type generateRequest struct {
	agent.ShellSnapshot
	// SessionID groups requests from one shell. A new request cancels the
	// session's previous in-flight one: the shell fires per keystroke
	// burst and only the latest matters.
	SessionID string `json:"session_id,omitempty"`
}

type GenerateResponse struct {
	Suggestions []string `json:"suggestions"`
}

type HealthResponse struct {
	Status        string           `json:"status"`
	Degraded      bool             `json:"degraded"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Cache         tools.CacheStats `json:"cache"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.New().String()
	w.Header().Set("X-Request-Id", requestID)

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.CursorPosition < 0 {
		writeJSONError(w, http.StatusBadRequest, "cursor_position must not be negative")
		return
	}

	logger.InfoCF("gateway", "Completion request", map[string]any{
		"request_id":      requestID,
		"session_id":      req.SessionID,
		"current_command": req.CurrentCommand,
		"cursor":          req.CursorPosition,
	})

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout())
	defer cancel()

	if req.SessionID != "" {
		release := s.inflight.Replace(req.SessionID, cancel)
		defer release()
	}

	start := time.Now()
	suggestions, err := s.session.Generate(ctx, req.ShellSnapshot)
	if err != nil {
		// Superseded, timed out or the client went away; whoever still
		// listens gets a status line and nothing else.
		logger.InfoCF("gateway", "Request cancelled", map[string]any{
			"request_id": requestID,
			"reason":     err.Error(),
		})
		w.WriteHeader(statusClientClosedRequest)
		return
	}
	if suggestions == nil {
		suggestions = []string{}
	}

	logger.InfoCF("gateway", "Completion served", map[string]any{
		"request_id":  requestID,
		"suggestions": len(suggestions),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	writeJSON(w, http.StatusOK, GenerateResponse{Suggestions: suggestions})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		Degraded:      s.session.Degraded(),
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Cache:         s.session.CacheStats(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.ErrorCF("gateway", "failed to encode JSON response", map[string]any{"error": err.Error()})
	}
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, ErrorResponse{Error: message})
}
