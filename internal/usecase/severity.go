package usecase

import (
	"strings"

	"radiocare-agent/internal/domain"
)

// Keyword sets scanned against generated replies. The high set always takes
// priority over the medium set.
var (
	highSeverityKeywords = []string{
		"emergency",
		"immediate medical attention",
		"urgent",
		"severe",
		"call 911",
		"life-threatening",
	}
	mediumSeverityKeywords = []string{
		"consult",
		"should see a doctor",
		"medical attention",
		"concerning",
	}
)

// ClassifySeverity derives the urgency of a generated reply from
// case-insensitive substring scans. It is deterministic and makes no
// external calls.
func ClassifySeverity(reply string) domain.Severity {
	lower := strings.ToLower(reply)
	for _, kw := range highSeverityKeywords {
		if strings.Contains(lower, kw) {
			return domain.SeverityHigh
		}
	}
	for _, kw := range mediumSeverityKeywords {
		if strings.Contains(lower, kw) {
			return domain.SeverityMedium
		}
	}
	return domain.SeverityLow
}
