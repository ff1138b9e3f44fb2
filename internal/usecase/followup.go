package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"radiocare-agent/internal/domain"
)

// Replies used by the coverage questionnaire. The flow is a strict two-step
// sequence: card possession first, then amount used.
const (
	cardPossessionQuestion = "By the way, do you have an Ayushman Bharat card? " +
		"It can cover a large part of your radiotherapy costs. Please reply yes or no."

	usageAmountQuestion = "Thank you! How much of your Ayushman coverage have you already used? " +
		"You can answer with an amount (for example 50000), a percentage (for example 10%), " +
		"or \"none\" if you haven't used it yet."

	noCardReply = "That's okay. You may still be eligible to enroll in Ayushman Bharat (PM-JAY) — " +
		"the hospital's Ayushman Mitra desk can check your eligibility and help with enrollment. " +
		"The medical social work office can also guide you through other financial-assistance " +
		"schemes for cancer treatment. Please ask at the helpdesk during your next visit."

	usageRetryReply = "Sorry, I couldn't read that as an amount. Please reply with a number " +
		"(for example 50000), a percentage (for example 10%), or \"none\" if you haven't used any coverage."
)

var (
	firstInteger = regexp.MustCompile(`\d+`)
	noneMarkers  = []string{"none", "nothing", "not used", "zero", "haven't used", "havent used"}
)

// affirmativeMarkers are scanned as case-insensitive substrings; a message
// matching none of them counts as a "no".
var affirmativeMarkers = []string{"yes", "have", "got", "possess"}

func isAffirmative(message string) bool {
	lower := strings.ToLower(message)
	for _, m := range affirmativeMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// parseUsageAmount interprets a free-text answer to the amount question.
// "none"-style answers mean zero; a percent sign makes the first integer a
// percentage of the total coverage; otherwise the first integer is taken as
// a rupee amount. ok is false when nothing interpretable was found.
func parseUsageAmount(message string, totalCoverage int64) (amount int64, ok bool) {
	lower := strings.ToLower(message)
	for _, m := range noneMarkers {
		if strings.Contains(lower, m) {
			return 0, true
		}
	}
	cleaned := strings.ReplaceAll(lower, ",", "")
	digits := firstInteger.FindString(cleaned)
	if digits == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	if strings.Contains(cleaned, "%") {
		return totalCoverage * n / 100, true
	}
	return n, true
}

// advanceFollowUp runs one step of the questionnaire and returns the reply
// plus the next state. Benefit-record writes happen synchronously here so
// the persisted state and the reply the user sees cannot drift apart.
func (s *ChatService) advanceFollowUp(ctx context.Context, userID, message string, state domain.FollowUpState) (string, domain.FollowUpState, error) {
	switch state {
	case domain.FollowUpAwaitingCard:
		has := isAffirmative(message)
		if err := s.benefits.SetCardPossession(ctx, userID, has); err != nil {
			return "", state, fmt.Errorf("set card possession: %w", err)
		}
		if has {
			return usageAmountQuestion, domain.FollowUpAwaitingAmount, nil
		}
		return noCardReply, domain.FollowUpNone, nil

	case domain.FollowUpAwaitingAmount:
		acct, err := s.benefits.Account(ctx, userID)
		if err != nil {
			return "", state, fmt.Errorf("load benefit account: %w", err)
		}
		amount, ok := parseUsageAmount(message, acct.TotalCoverage)
		if !ok {
			// Stay in the same state and re-ask rather than guessing.
			return usageRetryReply, state, nil
		}
		now := time.Now().UTC()
		acct.ApplyUsage(amount, now)
		if amount > 0 {
			acct.UsageHistory = append(acct.UsageHistory, domain.UsageEntry{
				Date:        now,
				Description: "Self-reported through chat assistant",
				Amount:      amount,
			})
		}
		if err := s.benefits.Save(ctx, userID, acct); err != nil {
			return "", state, fmt.Errorf("save benefit account: %w", err)
		}
		return coverageSummary(acct), domain.FollowUpNone, nil

	default:
		return "", domain.FollowUpNone, fmt.Errorf("unknown follow-up state %q", state)
	}
}

// coverageSummary renders the post-questionnaire balance overview.
func coverageSummary(acct domain.BenefitAccount) string {
	pct := 0.0
	if acct.TotalCoverage > 0 {
		pct = float64(acct.AmountUsed) / float64(acct.TotalCoverage) * 100
	}
	var b strings.Builder
	b.WriteString("Here is your Ayushman coverage summary:\n")
	fmt.Fprintf(&b, "- Total coverage: %s\n", FormatRupees(acct.TotalCoverage))
	fmt.Fprintf(&b, "- Amount used: %s (%.1f%%)\n", FormatRupees(acct.AmountUsed), pct)
	fmt.Fprintf(&b, "- Amount remaining: %s\n\n", FormatRupees(acct.AmountRemaining))
	if acct.AmountRemaining > 0 {
		fmt.Fprintf(&b, "Your remaining %s can cover radiotherapy sessions, hospitalization, "+
			"diagnostic scans and medicines at any empanelled hospital. Show your card at the "+
			"Ayushman desk before admission to claim cashless treatment.", FormatRupees(acct.AmountRemaining))
	} else {
		b.WriteString("Your coverage for this year is fully used. Please talk to the hospital's " +
			"medical social work office about top-up schemes and other financial assistance for " +
			"continuing your treatment.")
	}
	return b.String()
}
