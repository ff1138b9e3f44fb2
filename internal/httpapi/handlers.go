package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"radiocare-agent/internal/usecase"
)

type messageRequest struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Invalid request body",
			"message": "expected a JSON object with userId and message",
		})
		return
	}
	if req.UserID == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Missing required fields",
			"message": "userId and message are required",
		})
		return
	}
	if max := s.engine.MaxMessageLen(); len(req.Message) > max {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":         "Message too long",
			"message":       "Please keep your message under the maximum length",
			"currentLength": len(req.Message),
			"maxLength":     max,
		})
		return
	}

	result, err := s.engine.HandleMessage(r.Context(), req.UserID, req.Message)
	if err != nil {
		s.writeEngineError(w, err, "Failed to process message")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	turns, err := s.engine.ChatHistory(r.Context(), userID)
	if err != nil {
		s.writeEngineError(w, err, "Failed to load chat history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId":  userID,
		"history": turns,
		"count":   len(turns),
	})
}

func (s *Server) handleContexts(w http.ResponseWriter, r *http.Request) {
	contexts := s.engine.AvailableContexts()
	writeJSON(w, http.StatusOK, map[string]any{
		"contexts": contexts,
		"count":    len(contexts),
	})
}

func (s *Server) handleContextStats(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	stats, err := s.engine.ContextUsageStats(r.Context(), userID)
	if err != nil {
		s.writeEngineError(w, err, "Failed to compute context stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId": userID,
		"stats":  stats,
	})
}

func (s *Server) handleReloadContexts(w http.ResponseWriter, r *http.Request) {
	if !s.engine.ReloadContexts() {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": "Failed to reload contexts",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Contexts reloaded successfully",
	})
}

func (s *Server) handleValidateContexts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ValidateContexts())
}

// writeEngineError maps engine errors onto HTTP statuses. Validation
// failures become 400s with the reason; anything else is a generic 500 so
// internals never leak to the patient-facing app.
func (s *Server) writeEngineError(w http.ResponseWriter, err error, fallbackMsg string) {
	var engineErr *usecase.Error
	if errors.As(err, &engineErr) && engineErr.Code == usecase.ErrorInvalidInput {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Invalid request",
			"message": engineErr.Reason,
		})
		return
	}
	s.logger.Error("request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]any{
		"error": fallbackMsg,
	})
}
