// Package usecase holds the chat engine: intent classification, the
// insurance follow-up state machine, severity classification, and the
// response orchestrator that ties them to the gateways.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"radiocare-agent/internal/catalog"
	"radiocare-agent/internal/domain"
)

const defaultMaxMessageLen = 2000

// fallbackReply is what the patient sees when reply generation fails.
// Internal failure detail is logged, never returned.
const fallbackReply = "I apologize, but I'm having trouble processing your message right now. " +
	"Please try again in a moment. If this keeps happening, try rephrasing your question."

// Oracle is the text-completion dependency. Quick calls carry a shorter
// timeout budget than detailed calls; selection must fail fast because it
// gates the rest of the turn.
type Oracle interface {
	GenerateQuick(ctx context.Context, prompt string) (string, error)
	GenerateDetailed(ctx context.Context, prompt string) (string, error)
}

// ConversationStore persists per-user turns and the follow-up marker.
type ConversationStore interface {
	Recent(ctx context.Context, userID string, limit int) ([]domain.ConversationTurn, error)
	History(ctx context.Context, userID string) ([]domain.ConversationTurn, error)
	AppendTurn(ctx context.Context, userID string, turn domain.ConversationTurn) error
	FollowUpState(ctx context.Context, userID string) (domain.FollowUpState, error)
	SetFollowUpState(ctx context.Context, userID string, state domain.FollowUpState) error
}

// BenefitStore reads and mutates the per-user coverage record.
type BenefitStore interface {
	Account(ctx context.Context, userID string) (domain.BenefitAccount, error)
	SetCardPossession(ctx context.Context, userID string, has bool) error
	Save(ctx context.Context, userID string, acct domain.BenefitAccount) error
}

// AlertCreator raises doctor-facing alerts.
type AlertCreator interface {
	Create(ctx context.Context, alert domain.Alert) error
}

// TaskRunner executes fire-and-forget work decoupled from the request.
type TaskRunner interface {
	Go(name string, fn func(context.Context) error)
}

// ChatService is the response orchestrator.
type ChatService struct {
	catalog       *catalog.Store
	oracle        Oracle
	conv          ConversationStore
	benefits      BenefitStore
	alerts        AlertCreator
	tasks         TaskRunner
	logger        *zap.Logger
	maxMessageLen int
}

// ChatResult is the caller-facing outcome of one turn.
type ChatResult struct {
	Response        string          `json:"response"`
	Severity        domain.Severity `json:"severity"`
	ContextKey      string          `json:"contextUsed,omitempty"`
	ContextName     string          `json:"contextName,omitempty"`
	ProcessingMs    int64           `json:"processingTime"`
	FollowUpStarted bool            `json:"hasFollowUp,omitempty"`
}

// ContextSummary is the public listing shape for a catalog entry.
type ContextSummary struct {
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

func NewChatService(cat *catalog.Store, oracle Oracle, conv ConversationStore, benefits BenefitStore, alerts AlertCreator, tasks TaskRunner, logger *zap.Logger) (*ChatService, error) {
	if cat == nil {
		return nil, errors.New("usecase: catalog store must not be nil")
	}
	if oracle == nil {
		return nil, errors.New("usecase: oracle must not be nil")
	}
	if conv == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if benefits == nil {
		return nil, errors.New("usecase: benefit store must not be nil")
	}
	if alerts == nil {
		return nil, errors.New("usecase: alert creator must not be nil")
	}
	if tasks == nil {
		return nil, errors.New("usecase: task runner must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		catalog:       cat,
		oracle:        oracle,
		conv:          conv,
		benefits:      benefits,
		alerts:        alerts,
		tasks:         tasks,
		logger:        logger,
		maxMessageLen: defaultMaxMessageLen,
	}, nil
}

// MaxMessageLen is the inclusive message-length cap enforced on input.
func (s *ChatService) MaxMessageLen() int { return s.maxMessageLen }

// HandleMessage processes one inbound patient message. Input validation
// failures return an *Error; everything past validation is absorbed into a
// user-safe result so a raw failure never reaches the caller.
func (s *ChatService) HandleMessage(ctx context.Context, userID, message string) (ChatResult, error) {
	started := time.Now()
	userID = strings.TrimSpace(userID)
	message = strings.TrimSpace(message)
	if userID == "" {
		return ChatResult{}, newError(ErrorInvalidInput, "missing_user_id", nil)
	}
	if message == "" {
		return ChatResult{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if len(message) > s.maxMessageLen {
		return ChatResult{}, newError(ErrorInvalidInput, "message_too_long", nil)
	}

	res := s.processTurn(ctx, userID, message, started)
	res.ProcessingMs = time.Since(started).Milliseconds()
	return res, nil
}

func (s *ChatService) processTurn(ctx context.Context, userID, message string, started time.Time) ChatResult {
	state, err := s.conv.FollowUpState(ctx, userID)
	if err != nil {
		// Degrade to a fresh turn; a broken state read must not eat the reply.
		s.logger.Error("load follow-up state failed", zap.String("userId", userID), zap.Error(err))
		state = domain.FollowUpNone
	}
	if state != domain.FollowUpNone {
		return s.followUpTurn(ctx, userID, message, state, started)
	}
	return s.freshTurn(ctx, userID, message, started)
}

// freshTurn is the normal path: classify intent, generate the reply,
// classify severity, fan out side effects, and maybe open the follow-up.
func (s *ChatService) freshTurn(ctx context.Context, userID, message string, started time.Time) ChatResult {
	snap := s.catalog.Load()

	recent, err := s.conv.Recent(ctx, userID, historyWindow)
	if err != nil {
		s.logger.Error("load recent history failed", zap.String("userId", userID), zap.Error(err))
		recent = nil
	}
	transcript := flattenTranscript(recent)

	key := s.selectContext(ctx, snap, message, transcript)
	def, ok := snap.Get(key)
	if !ok {
		def = snap.Default()
		key = def.Key
	}

	reply, genErr := s.oracle.GenerateDetailed(ctx, buildResponsePrompt(def, transcript, message))
	if genErr != nil {
		return s.failedTurn(userID, message, genErr, started)
	}

	severity := ClassifySeverity(reply)
	result := ChatResult{
		Response:    reply,
		Severity:    severity,
		ContextKey:  key,
		ContextName: def.Name,
	}

	if severity == domain.SeverityMedium || severity == domain.SeverityHigh {
		s.raiseAlertAsync(userID, severity, reply)
	}

	if key == InsuranceContextKey && s.startFollowUp(ctx, userID) {
		result.Response += "\n\n" + cardPossessionQuestion
		result.FollowUpStarted = true
	}

	s.persistTurnAsync(userID, domain.ConversationTurn{
		UserMessage:  message,
		BotReply:     result.Response,
		Timestamp:    time.Now().UTC(),
		Severity:     severity,
		ContextKey:   key,
		ContextName:  def.Name,
		ProcessingMs: time.Since(started).Milliseconds(),
	})
	return result
}

// followUpTurn routes a message through the questionnaire instead of the
// classifier. Its reply is final for the turn; no generation call is made.
func (s *ChatService) followUpTurn(ctx context.Context, userID, message string, state domain.FollowUpState, started time.Time) ChatResult {
	reply, next, err := s.advanceFollowUp(ctx, userID, message, state)
	if err != nil {
		return s.failedTurn(userID, message, err, started)
	}
	if next != state {
		// Synchronous: the next message must see the new state.
		if err := s.conv.SetFollowUpState(ctx, userID, next); err != nil {
			s.logger.Error("persist follow-up state failed",
				zap.String("userId", userID), zap.String("state", string(next)), zap.Error(err))
		}
	}

	severity := ClassifySeverity(reply)
	result := ChatResult{Response: reply, Severity: severity}
	if severity == domain.SeverityMedium || severity == domain.SeverityHigh {
		s.raiseAlertAsync(userID, severity, reply)
	}
	s.persistTurnAsync(userID, domain.ConversationTurn{
		UserMessage:  message,
		BotReply:     reply,
		Timestamp:    time.Now().UTC(),
		Severity:     severity,
		ProcessingMs: time.Since(started).Milliseconds(),
	})
	return result
}

// failedTurn converts any reply-path failure into the apologetic result,
// tagged internally as a timeout or service error.
func (s *ChatService) failedTurn(userID, message string, cause error, started time.Time) ChatResult {
	tag := "service_error"
	if errors.Is(cause, context.DeadlineExceeded) {
		tag = "timeout"
	}
	s.logger.Error("turn failed, returning fallback reply",
		zap.String("userId", userID), zap.String("errorTag", tag), zap.Error(cause))

	snap := s.catalog.Load()
	def := snap.Default()
	s.persistTurnAsync(userID, domain.ConversationTurn{
		UserMessage:  message,
		BotReply:     fallbackReply,
		Timestamp:    time.Now().UTC(),
		Severity:     domain.SeverityLow,
		ContextKey:   def.Key,
		ContextName:  def.Name,
		ProcessingMs: time.Since(started).Milliseconds(),
	})
	return ChatResult{
		Response:    fallbackReply,
		Severity:    domain.SeverityLow,
		ContextKey:  def.Key,
		ContextName: def.Name,
	}
}

// startFollowUp opens the questionnaire when the card question has never
// been answered. The marker write is synchronous; if it fails we do not ask
// the question, so the user is never asked something we cannot track.
func (s *ChatService) startFollowUp(ctx context.Context, userID string) bool {
	acct, err := s.benefits.Account(ctx, userID)
	if err != nil {
		s.logger.Error("load benefit account failed", zap.String("userId", userID), zap.Error(err))
		return false
	}
	if acct.HasCard != nil {
		return false
	}
	if err := s.conv.SetFollowUpState(ctx, userID, domain.FollowUpAwaitingCard); err != nil {
		s.logger.Error("open follow-up failed", zap.String("userId", userID), zap.Error(err))
		return false
	}
	return true
}

func (s *ChatService) raiseAlertAsync(userID string, severity domain.Severity, message string) {
	alert := domain.Alert{
		ID:       uuid.NewString(),
		UserID:   userID,
		Severity: severity,
		Message:  message,
		Date:     time.Now().UTC(),
	}
	s.tasks.Go("create-alert", func(ctx context.Context) error {
		if err := s.alerts.Create(ctx, alert); err != nil {
			return fmt.Errorf("create alert for %s: %w", userID, err)
		}
		return nil
	})
}

func (s *ChatService) persistTurnAsync(userID string, turn domain.ConversationTurn) {
	s.tasks.Go("persist-turn", func(ctx context.Context) error {
		if err := s.conv.AppendTurn(ctx, userID, turn); err != nil {
			return fmt.Errorf("append turn for %s: %w", userID, err)
		}
		return nil
	})
}

// ChatHistory returns every persisted turn for the user in insertion order.
func (s *ChatService) ChatHistory(ctx context.Context, userID string) ([]domain.ConversationTurn, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, newError(ErrorInvalidInput, "missing_user_id", nil)
	}
	turns, err := s.conv.History(ctx, userID)
	if err != nil {
		return nil, newError(ErrorInternal, "history_read_error", err)
	}
	return turns, nil
}

// ContextUsageStats counts how often each context served the user.
// Follow-up and fallback turns without a context key are skipped.
func (s *ChatService) ContextUsageStats(ctx context.Context, userID string) (map[string]int, error) {
	turns, err := s.ChatHistory(ctx, userID)
	if err != nil {
		return nil, err
	}
	stats := map[string]int{}
	for _, t := range turns {
		if t.ContextKey != "" {
			stats[t.ContextKey]++
		}
	}
	return stats, nil
}

// AvailableContexts lists the catalog minus metadata, in declaration order.
func (s *ChatService) AvailableContexts() []ContextSummary {
	snap := s.catalog.Load()
	out := make([]ContextSummary, 0, snap.Len())
	for _, key := range snap.Keys() {
		def, _ := snap.Get(key)
		out = append(out, ContextSummary{
			Key:         def.Key,
			Name:        def.Name,
			Description: def.Description,
			Keywords:    def.Keywords,
		})
	}
	return out
}

// ReloadContexts swaps in a freshly-read catalog snapshot.
func (s *ChatService) ReloadContexts() bool {
	ok := s.catalog.Reload()
	if !ok {
		s.logger.Error("context catalog reload failed, keeping previous snapshot")
	}
	return ok
}

// ValidateContexts reports missing required fields without failing.
func (s *ChatService) ValidateContexts() catalog.Validation {
	return catalog.Validate(s.catalog.Load())
}
