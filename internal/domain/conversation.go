package domain

import "time"

// Severity is the coarse urgency classification derived from a generated
// reply. Medium and high severities trigger doctor alerts.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// FollowUpState marks where a user is inside the insurance-coverage
// questionnaire. Anything other than FollowUpNone routes the next message
// through the follow-up state machine instead of the classifier.
type FollowUpState string

const (
	FollowUpNone           FollowUpState = ""
	FollowUpAwaitingCard   FollowUpState = "awaiting_card_possession"
	FollowUpAwaitingAmount FollowUpState = "awaiting_usage_amount"
)

// ConversationTurn is a single persisted user/assistant exchange.
// Turns are append-only; insertion order is chronological order.
type ConversationTurn struct {
	UserMessage  string    `json:"user"`
	BotReply     string    `json:"bot"`
	Timestamp    time.Time `json:"timestamp"`
	Severity     Severity  `json:"severity"`
	ContextKey   string    `json:"contextUsed,omitempty"`
	ContextName  string    `json:"contextName,omitempty"`
	ProcessingMs int64     `json:"processingTime,omitempty"`
}

// Alert is a doctor-facing notification created when a reply classifies as
// medium or high severity.
type Alert struct {
	ID       string    `json:"id"`
	UserID   string    `json:"userId"`
	Severity Severity  `json:"severity"`
	Message  string    `json:"message"`
	Date     time.Time `json:"date"`
}
