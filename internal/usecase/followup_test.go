package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"radiocare-agent/internal/domain"
)

func TestParseUsageAmount_PlainNumber(t *testing.T) {
	amount, ok := parseUsageAmount("50000", 500000)
	require.True(t, ok)
	require.Equal(t, int64(50000), amount)
}

func TestParseUsageAmount_NumberWithCommas(t *testing.T) {
	amount, ok := parseUsageAmount("about 1,25,000 rupees", 500000)
	require.True(t, ok)
	require.Equal(t, int64(125000), amount)
}

func TestParseUsageAmount_Percentage(t *testing.T) {
	amount, ok := parseUsageAmount("maybe 10%", 500000)
	require.True(t, ok)
	require.Equal(t, int64(50000), amount)
}

func TestParseUsageAmount_NoneMeansZero(t *testing.T) {
	for _, msg := range []string{"none", "Nothing yet", "I haven't used it", "zero"} {
		amount, ok := parseUsageAmount(msg, 500000)
		require.True(t, ok, msg)
		require.Zero(t, amount, msg)
	}
}

func TestParseUsageAmount_Unparseable(t *testing.T) {
	_, ok := parseUsageAmount("hmm, quite a bit I think", 500000)
	require.False(t, ok)
}

func TestAdvanceFollowUp_CardYes(t *testing.T) {
	env := newTestEnv(t)
	reply, next, err := env.svc.advanceFollowUp(context.Background(), "abc", "yes I have one", domain.FollowUpAwaitingCard)
	require.NoError(t, err)
	require.Equal(t, usageAmountQuestion, reply)
	require.Equal(t, domain.FollowUpAwaitingAmount, next)
	require.NotNil(t, env.benefits.cardSet)
	require.True(t, *env.benefits.cardSet)
}

func TestAdvanceFollowUp_CardNo(t *testing.T) {
	env := newTestEnv(t)
	reply, next, err := env.svc.advanceFollowUp(context.Background(), "abc", "no", domain.FollowUpAwaitingCard)
	require.NoError(t, err)
	require.Equal(t, noCardReply, reply)
	require.Equal(t, domain.FollowUpNone, next)
	require.NotNil(t, env.benefits.cardSet)
	require.False(t, *env.benefits.cardSet)
}

func TestAdvanceFollowUp_CardWriteFailure(t *testing.T) {
	env := newTestEnv(t)
	env.benefits.cardErr = errors.New("dynamo down")
	_, next, err := env.svc.advanceFollowUp(context.Background(), "abc", "yes", domain.FollowUpAwaitingCard)
	require.Error(t, err)
	require.Equal(t, domain.FollowUpAwaitingCard, next)
}

func TestAdvanceFollowUp_AmountRecordsUsageEntry(t *testing.T) {
	env := newTestEnv(t)
	reply, next, err := env.svc.advanceFollowUp(context.Background(), "abc", "50000", domain.FollowUpAwaitingAmount)
	require.NoError(t, err)
	require.Equal(t, domain.FollowUpNone, next)
	require.Contains(t, reply, "₹4,50,000")
	require.NotNil(t, env.benefits.saved)
	require.Len(t, env.benefits.saved.UsageHistory, 1)
	require.Equal(t, "Self-reported through chat assistant", env.benefits.saved.UsageHistory[0].Description)
}

func TestAdvanceFollowUp_ZeroUsageSkipsHistoryEntry(t *testing.T) {
	env := newTestEnv(t)
	reply, next, err := env.svc.advanceFollowUp(context.Background(), "abc", "none", domain.FollowUpAwaitingAmount)
	require.NoError(t, err)
	require.Equal(t, domain.FollowUpNone, next)
	require.Contains(t, reply, "₹5,00,000")
	require.NotNil(t, env.benefits.saved)
	require.Empty(t, env.benefits.saved.UsageHistory)
	require.Zero(t, env.benefits.saved.AmountUsed)
}

func TestAdvanceFollowUp_AmountClampedToTotal(t *testing.T) {
	env := newTestEnv(t)
	reply, next, err := env.svc.advanceFollowUp(context.Background(), "abc", "9000000", domain.FollowUpAwaitingAmount)
	require.NoError(t, err)
	require.Equal(t, domain.FollowUpNone, next)
	require.Equal(t, int64(500000), env.benefits.saved.AmountUsed)
	require.Zero(t, env.benefits.saved.AmountRemaining)
	require.Contains(t, reply, "fully used")
}

func TestAdvanceFollowUp_UnparseableStaysInState(t *testing.T) {
	env := newTestEnv(t)
	reply, next, err := env.svc.advanceFollowUp(context.Background(), "abc", "???", domain.FollowUpAwaitingAmount)
	require.NoError(t, err)
	require.Equal(t, usageRetryReply, reply)
	require.Equal(t, domain.FollowUpAwaitingAmount, next)
	require.Nil(t, env.benefits.saved)
}

func TestAdvanceFollowUp_UnknownState(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.svc.advanceFollowUp(context.Background(), "abc", "hi", domain.FollowUpState("awaiting_blood_type"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown follow-up state")
}

func TestIsAffirmative(t *testing.T) {
	require.True(t, isAffirmative("Yes, I do"))
	require.True(t, isAffirmative("i have one"))
	require.False(t, isAffirmative("no"))
	require.False(t, isAffirmative("nahi"))
}
