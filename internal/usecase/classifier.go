package usecase

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"radiocare-agent/internal/catalog"
)

// InsuranceContextKey is the catalog entry whose selection can open the
// coverage follow-up questionnaire.
const InsuranceContextKey = "insurance_coverage"

// selectContext picks a context key for the message. The oracle gets the
// first try on the quick budget; an error, a timeout, or anything that is
// not an exact catalog key drops us to deterministic keyword scoring.
// Selection never fails: worst case is the default context.
func (s *ChatService) selectContext(ctx context.Context, snap *catalog.Snapshot, message, transcript string) string {
	raw, err := s.oracle.GenerateQuick(ctx, buildSelectionPrompt(snap, transcript, message))
	if err == nil {
		key := strings.TrimSpace(raw)
		if snap.Has(key) {
			return key
		}
		s.logger.Warn("context selection returned unknown key, using keyword fallback",
			zap.String("key", truncate(key, 60)))
	} else {
		s.logger.Warn("context selection call failed, using keyword fallback", zap.Error(err))
	}
	return FallbackContextKey(snap, message)
}

// FallbackContextKey scores the message against every context's keyword
// list with case-insensitive substring matches. The strictly greatest hit
// count wins; ties go to the earliest-declared context; zero hits across
// the whole catalog yield the default context. Pure, no external calls.
func FallbackContextKey(snap *catalog.Snapshot, message string) string {
	lower := strings.ToLower(message)
	bestKey := catalog.DefaultKey
	bestScore := 0
	for _, key := range snap.Keys() {
		def, ok := snap.Get(key)
		if !ok {
			continue
		}
		score := 0
		for _, kw := range def.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			bestKey = key
		}
	}
	return bestKey
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
