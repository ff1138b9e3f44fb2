package usecase

import (
	"fmt"
	"strings"

	"radiocare-agent/internal/catalog"
	"radiocare-agent/internal/domain"
)

// historyWindow is how many recent turns are folded into prompts.
const historyWindow = 5

// flattenTranscript renders recent turns as alternating speaker lines for
// prompt context.
func flattenTranscript(turns []domain.ConversationTurn) string {
	if len(turns) == 0 {
		return ""
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, fmt.Sprintf("User: %s\nBot: %s", t.UserMessage, t.BotReply))
	}
	return strings.Join(lines, "\n")
}

// buildSelectionPrompt asks the oracle to name exactly one catalog key.
func buildSelectionPrompt(snap *catalog.Snapshot, transcript, message string) string {
	var b strings.Builder
	b.WriteString("You route messages from radiotherapy patients to a specialized response context.\n\n")
	b.WriteString("Available contexts:\n")
	for _, key := range snap.Keys() {
		def, _ := snap.Get(key)
		fmt.Fprintf(&b, "%s: %s\n", key, def.Description)
	}
	if transcript != "" {
		b.WriteString("\nRecent conversation:\n")
		b.WriteString(transcript)
		b.WriteString("\n")
	}
	b.WriteString("\nPatient message:\n\"")
	b.WriteString(message)
	b.WriteString("\"\n\nReply with exactly one context key from the list above and nothing else.")
	return b.String()
}

// buildResponsePrompt composes the selected context's system prompt with
// the recent transcript and the new message.
func buildResponsePrompt(def catalog.Definition, transcript, message string) string {
	var b strings.Builder
	b.WriteString(def.SystemPrompt)
	b.WriteString("\n\n---\n\nHere are some previous exchanges:\n")
	b.WriteString(transcript)
	b.WriteString("\n\n---\n\nHere is the patient's latest message:\n\"")
	b.WriteString(message)
	b.WriteString("\"\n")
	return b.String()
}
