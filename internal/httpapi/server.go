// Package httpapi exposes the chat engine and benefit store over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"radiocare-agent/internal/catalog"
	"radiocare-agent/internal/domain"
	"radiocare-agent/internal/usecase"
)

// ChatEngine is the orchestrator surface the HTTP layer consumes.
type ChatEngine interface {
	HandleMessage(ctx context.Context, userID, message string) (usecase.ChatResult, error)
	ChatHistory(ctx context.Context, userID string) ([]domain.ConversationTurn, error)
	ContextUsageStats(ctx context.Context, userID string) (map[string]int, error)
	AvailableContexts() []usecase.ContextSummary
	ReloadContexts() bool
	ValidateContexts() catalog.Validation
	MaxMessageLen() int
}

// BenefitStore is the coverage-record surface for the benefit routes.
type BenefitStore interface {
	Account(ctx context.Context, userID string) (domain.BenefitAccount, error)
	Save(ctx context.Context, userID string, acct domain.BenefitAccount) error
}

// Server routes HTTP requests to the engine.
type Server struct {
	engine   ChatEngine
	benefits BenefitStore
	logger   *zap.Logger
	router   chi.Router
	started  time.Time
}

// NewServer constructs the HTTP server around the engine and benefit store.
func NewServer(engine ChatEngine, benefits BenefitStore, logger *zap.Logger) (*Server, error) {
	if engine == nil {
		return nil, errors.New("httpapi: chat engine must not be nil")
	}
	if benefits == nil {
		return nil, errors.New("httpapi: benefit store must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:   engine,
		benefits: benefits,
		logger:   logger,
		started:  time.Now(),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Route("/chat", func(r chi.Router) {
			r.Post("/message", s.handleMessage)
			r.Get("/history/{userId}", s.handleHistory)
			r.Get("/contexts", s.handleContexts)
			r.Get("/context-stats/{userId}", s.handleContextStats)
			r.Post("/reload-contexts", s.handleReloadContexts)
			r.Get("/validate-contexts", s.handleValidateContexts)
		})
		r.Route("/benefits", func(r chi.Router) {
			r.Get("/{userId}", s.handleGetBenefits)
			r.Put("/{userId}", s.handleUpdateBenefits)
			r.Post("/{userId}/usage", s.handleAddUsage)
			r.Get("/{userId}/usage", s.handleGetUsage)
		})
	})
	r.Get("/health", s.handleHealth)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
