package domain

import "time"

// DefaultCoverage is the scheme's standard total coverage in rupees.
const DefaultCoverage int64 = 500000

// UsageEntry records one draw against a benefit account.
type UsageEntry struct {
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Amount      int64     `json:"amountUsed"`
	Hospital    string    `json:"hospital"`
}

// BenefitAccount is the per-user insurance coverage record. HasCard is
// tri-state: nil means the user has never answered the card question, which
// is what triggers the follow-up questionnaire.
type BenefitAccount struct {
	HasCard         *bool        `json:"hasCard"`
	TotalCoverage   int64        `json:"totalCoverageAmount"`
	AmountUsed      int64        `json:"amountUsed"`
	AmountRemaining int64        `json:"amountRemaining"`
	LastUpdated     time.Time    `json:"lastUpdated"`
	UsageHistory    []UsageEntry `json:"usageHistory,omitempty"`
}

// NewBenefitAccount returns an untouched account with the given total
// coverage and an unanswered card question.
func NewBenefitAccount(total int64) BenefitAccount {
	if total <= 0 {
		total = DefaultCoverage
	}
	return BenefitAccount{
		TotalCoverage:   total,
		AmountRemaining: total,
	}
}

// ApplyUsage sets the absolute amount used, clamping it into [0, total], and
// recomputes the remaining balance.
func (b *BenefitAccount) ApplyUsage(used int64, now time.Time) {
	if used < 0 {
		used = 0
	}
	if used > b.TotalCoverage {
		used = b.TotalCoverage
	}
	b.AmountUsed = used
	b.AmountRemaining = b.TotalCoverage - used
	b.LastUpdated = now
}
