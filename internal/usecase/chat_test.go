package usecase

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"radiocare-agent/internal/catalog"
	"radiocare-agent/internal/domain"
)

const testCatalogYAML = `emotional_support:
  name: Emotional Support
  description: Fear, anxiety and emotional wellbeing
  keywords: [scared, anxious, worried, depressed]
  prompt: You provide emotional support.
treatment_information:
  name: Treatment Information
  description: How radiotherapy works
  keywords: [treatment, session, machine]
  prompt: You explain treatment.
nutrition_lifestyle:
  name: Nutrition and Lifestyle
  description: Diet and daily life during treatment
  keywords: [eat, diet, food]
  prompt: You advise on nutrition.
insurance_coverage:
  name: Insurance Coverage
  description: Ayushman Bharat coverage questions
  keywords: [ayushman, insurance, coverage]
  prompt: You explain insurance.
general_medical:
  name: General Medical Support
  description: Everything else
  keywords: []
  prompt: You are a general assistant.
`

func newTestCatalog(t *testing.T) *catalog.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contexts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalogYAML), 0o600))
	return catalog.NewStore(path)
}

type fakeOracle struct {
	quickReply    string
	quickErr      error
	detailedReply string
	detailedErr   error
	quickCalls    int
	detailedCalls int
}

func (f *fakeOracle) GenerateQuick(_ context.Context, _ string) (string, error) {
	f.quickCalls++
	return f.quickReply, f.quickErr
}

func (f *fakeOracle) GenerateDetailed(_ context.Context, _ string) (string, error) {
	f.detailedCalls++
	return f.detailedReply, f.detailedErr
}

type fakeConv struct {
	state      domain.FollowUpState
	stateErr   error
	recent     []domain.ConversationTurn
	recentErr  error
	history    []domain.ConversationTurn
	historyErr error
	appended   []domain.ConversationTurn
	appendErr  error
	setStates  []domain.FollowUpState
	setErr     error
}

func (f *fakeConv) Recent(_ context.Context, _ string, _ int) ([]domain.ConversationTurn, error) {
	return f.recent, f.recentErr
}

func (f *fakeConv) History(_ context.Context, _ string) ([]domain.ConversationTurn, error) {
	return f.history, f.historyErr
}

func (f *fakeConv) AppendTurn(_ context.Context, _ string, turn domain.ConversationTurn) error {
	f.appended = append(f.appended, turn)
	return f.appendErr
}

func (f *fakeConv) FollowUpState(_ context.Context, _ string) (domain.FollowUpState, error) {
	return f.state, f.stateErr
}

func (f *fakeConv) SetFollowUpState(_ context.Context, _ string, state domain.FollowUpState) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.setStates = append(f.setStates, state)
	f.state = state
	return nil
}

type fakeBenefits struct {
	acct    domain.BenefitAccount
	acctErr error
	saved   *domain.BenefitAccount
	saveErr error
	cardSet *bool
	cardErr error
}

func (f *fakeBenefits) Account(_ context.Context, _ string) (domain.BenefitAccount, error) {
	return f.acct, f.acctErr
}

func (f *fakeBenefits) SetCardPossession(_ context.Context, _ string, has bool) error {
	if f.cardErr != nil {
		return f.cardErr
	}
	f.cardSet = &has
	f.acct.HasCard = &has
	return nil
}

func (f *fakeBenefits) Save(_ context.Context, _ string, acct domain.BenefitAccount) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = &acct
	f.acct = acct
	return nil
}

type fakeAlerts struct {
	created []domain.Alert
	err     error
}

func (f *fakeAlerts) Create(_ context.Context, alert domain.Alert) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, alert)
	return nil
}

// syncRunner executes tasks inline so tests observe side effects
// deterministically.
type syncRunner struct {
	taskErrs []error
}

func (r *syncRunner) Go(_ string, fn func(context.Context) error) {
	if err := fn(context.Background()); err != nil {
		r.taskErrs = append(r.taskErrs, err)
	}
}

type testEnv struct {
	svc      *ChatService
	oracle   *fakeOracle
	conv     *fakeConv
	benefits *fakeBenefits
	alerts   *fakeAlerts
	runner   *syncRunner
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		oracle:   &fakeOracle{quickReply: "emotional_support", detailedReply: "Take a deep breath, this is very common."},
		conv:     &fakeConv{},
		benefits: &fakeBenefits{acct: domain.NewBenefitAccount(500000)},
		alerts:   &fakeAlerts{},
		runner:   &syncRunner{},
	}
	svc, err := NewChatService(newTestCatalog(t), env.oracle, env.conv, env.benefits, env.alerts, env.runner, nil)
	require.NoError(t, err)
	env.svc = svc
	return env
}

func TestHandleMessage_MissingUserID(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.HandleMessage(context.Background(), " ", "hello")
	var ue *Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, ErrorInvalidInput, ue.Code)
	require.Equal(t, "missing_user_id", ue.Reason)
}

func TestHandleMessage_EmptyMessage(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.HandleMessage(context.Background(), "abc", "   ")
	var ue *Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, "empty_message", ue.Reason)
}

func TestHandleMessage_MessageTooLong(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.HandleMessage(context.Background(), "abc", strings.Repeat("a", 2001))
	var ue *Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, "message_too_long", ue.Reason)
}

func TestHandleMessage_NormalTurn(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.svc.HandleMessage(context.Background(), "abc", "I'm really scared about my treatment")
	require.NoError(t, err)
	require.Equal(t, "Take a deep breath, this is very common.", res.Response)
	require.Equal(t, domain.SeverityLow, res.Severity)
	require.Equal(t, "emotional_support", res.ContextKey)
	require.Equal(t, "Emotional Support", res.ContextName)
	require.False(t, res.FollowUpStarted)

	require.Len(t, env.conv.appended, 1)
	require.Equal(t, "emotional_support", env.conv.appended[0].ContextKey)
	require.Empty(t, env.alerts.created)
	require.Empty(t, env.conv.setStates)
}

func TestHandleMessage_GenerationFailureReturnsFallback(t *testing.T) {
	env := newTestEnv(t)
	env.oracle.detailedErr = errors.New("upstream exploded")
	res, err := env.svc.HandleMessage(context.Background(), "abc", "hello")
	require.NoError(t, err)
	require.Equal(t, domain.SeverityLow, res.Severity)
	require.Equal(t, "general_medical", res.ContextKey)
	require.Contains(t, res.Response, "trouble processing")

	// The apologetic turn is still persisted.
	require.Len(t, env.conv.appended, 1)
	require.Equal(t, res.Response, env.conv.appended[0].BotReply)
}

func TestHandleMessage_SevereReplyRaisesAlert(t *testing.T) {
	env := newTestEnv(t)
	env.oracle.detailedReply = "This is an emergency, please go to the hospital now."
	res, err := env.svc.HandleMessage(context.Background(), "abc", "I am bleeding heavily")
	require.NoError(t, err)
	require.Equal(t, domain.SeverityHigh, res.Severity)
	require.Len(t, env.alerts.created, 1)
	require.Equal(t, domain.SeverityHigh, env.alerts.created[0].Severity)
	require.Equal(t, "abc", env.alerts.created[0].UserID)
	require.NotEmpty(t, env.alerts.created[0].ID)
}

func TestHandleMessage_MediumSeverityRaisesAlert(t *testing.T) {
	env := newTestEnv(t)
	env.oracle.detailedReply = "You should consult your doctor about this."
	res, err := env.svc.HandleMessage(context.Background(), "abc", "my skin is peeling")
	require.NoError(t, err)
	require.Equal(t, domain.SeverityMedium, res.Severity)
	require.Len(t, env.alerts.created, 1)
}

func TestHandleMessage_InsuranceSelectionOpensFollowUp(t *testing.T) {
	env := newTestEnv(t)
	env.oracle.quickReply = "insurance_coverage"
	res, err := env.svc.HandleMessage(context.Background(), "abc", "does insurance cover radiotherapy?")
	require.NoError(t, err)
	require.True(t, res.FollowUpStarted)
	require.Contains(t, res.Response, "Ayushman Bharat card")
	require.Equal(t, []domain.FollowUpState{domain.FollowUpAwaitingCard}, env.conv.setStates)

	// The persisted turn carries the combined reply.
	require.Len(t, env.conv.appended, 1)
	require.Equal(t, res.Response, env.conv.appended[0].BotReply)
}

func TestHandleMessage_InsuranceCardAlreadyAnswered(t *testing.T) {
	env := newTestEnv(t)
	env.oracle.quickReply = "insurance_coverage"
	has := true
	env.benefits.acct.HasCard = &has
	res, err := env.svc.HandleMessage(context.Background(), "abc", "does insurance cover radiotherapy?")
	require.NoError(t, err)
	require.False(t, res.FollowUpStarted)
	require.NotContains(t, res.Response, "Ayushman Bharat card?")
	require.Empty(t, env.conv.setStates)
}

func TestHandleMessage_MarkerWriteFailureSkipsQuestion(t *testing.T) {
	env := newTestEnv(t)
	env.oracle.quickReply = "insurance_coverage"
	env.conv.setErr = errors.New("dynamo down")
	res, err := env.svc.HandleMessage(context.Background(), "abc", "does insurance cover radiotherapy?")
	require.NoError(t, err)
	require.False(t, res.FollowUpStarted)
	require.NotContains(t, res.Response, "reply yes or no")
}

func TestHandleMessage_PendingCardStateShortCircuits(t *testing.T) {
	env := newTestEnv(t)
	env.conv.state = domain.FollowUpAwaitingCard
	res, err := env.svc.HandleMessage(context.Background(), "abc", "yes I do")
	require.NoError(t, err)
	require.Contains(t, res.Response, "How much of your Ayushman coverage")
	require.Empty(t, res.ContextKey)
	require.Zero(t, env.oracle.quickCalls)
	require.Zero(t, env.oracle.detailedCalls)
	require.NotNil(t, env.benefits.cardSet)
	require.True(t, *env.benefits.cardSet)
	require.Equal(t, domain.FollowUpAwaitingAmount, env.conv.state)
}

func TestHandleMessage_PendingCardStateNegativeAnswer(t *testing.T) {
	env := newTestEnv(t)
	env.conv.state = domain.FollowUpAwaitingCard
	res, err := env.svc.HandleMessage(context.Background(), "abc", "no")
	require.NoError(t, err)
	require.Contains(t, res.Response, "eligible to enroll")
	require.NotNil(t, env.benefits.cardSet)
	require.False(t, *env.benefits.cardSet)
	require.Equal(t, domain.FollowUpNone, env.conv.state)
}

func TestHandleMessage_PendingAmountStateRecordsUsage(t *testing.T) {
	env := newTestEnv(t)
	env.conv.state = domain.FollowUpAwaitingAmount
	res, err := env.svc.HandleMessage(context.Background(), "abc", "around 50000 I think")
	require.NoError(t, err)
	require.Contains(t, res.Response, "coverage summary")
	require.Contains(t, res.Response, "₹50,000")
	require.Equal(t, domain.FollowUpNone, env.conv.state)
	require.NotNil(t, env.benefits.saved)
	require.Equal(t, int64(50000), env.benefits.saved.AmountUsed)
	require.Equal(t, int64(450000), env.benefits.saved.AmountRemaining)
}

func TestHandleMessage_PendingAmountStateUnparseableReasks(t *testing.T) {
	env := newTestEnv(t)
	env.conv.state = domain.FollowUpAwaitingAmount
	res, err := env.svc.HandleMessage(context.Background(), "abc", "hmm maybe a lot?")
	require.NoError(t, err)
	require.Contains(t, res.Response, "couldn't read that as an amount")
	require.Equal(t, domain.FollowUpAwaitingAmount, env.conv.state)
	require.Nil(t, env.benefits.saved)
}

func TestHandleMessage_StateReadFailureDegradesToFreshTurn(t *testing.T) {
	env := newTestEnv(t)
	env.conv.stateErr = errors.New("dynamo down")
	res, err := env.svc.HandleMessage(context.Background(), "abc", "hello")
	require.NoError(t, err)
	require.Equal(t, 1, env.oracle.detailedCalls)
	require.NotEmpty(t, res.Response)
}

func TestHandleMessage_RecentHistoryFailureStillReplies(t *testing.T) {
	env := newTestEnv(t)
	env.conv.recentErr = errors.New("dynamo down")
	res, err := env.svc.HandleMessage(context.Background(), "abc", "hello")
	require.NoError(t, err)
	require.Equal(t, "Take a deep breath, this is very common.", res.Response)
}

func TestChatHistory_MissingUserID(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.ChatHistory(context.Background(), "")
	var ue *Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, ErrorInvalidInput, ue.Code)
}

func TestChatHistory_ReadError(t *testing.T) {
	env := newTestEnv(t)
	env.conv.historyErr = errors.New("boom")
	_, err := env.svc.ChatHistory(context.Background(), "abc")
	var ue *Error
	require.ErrorAs(t, err, &ue)
	require.Equal(t, ErrorInternal, ue.Code)
}

func TestContextUsageStats_SkipsTurnsWithoutContext(t *testing.T) {
	env := newTestEnv(t)
	env.conv.history = []domain.ConversationTurn{
		{UserMessage: "a", ContextKey: "emotional_support"},
		{UserMessage: "b", ContextKey: "emotional_support"},
		{UserMessage: "yes"},
		{UserMessage: "c", ContextKey: "nutrition_lifestyle"},
	}
	stats, err := env.svc.ContextUsageStats(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, map[string]int{"emotional_support": 2, "nutrition_lifestyle": 1}, stats)
}

func TestAvailableContexts_DeclarationOrder(t *testing.T) {
	env := newTestEnv(t)
	contexts := env.svc.AvailableContexts()
	require.Len(t, contexts, 5)
	require.Equal(t, "emotional_support", contexts[0].Key)
	require.Equal(t, "general_medical", contexts[4].Key)
	require.Equal(t, "Emotional Support", contexts[0].Name)
}

func TestReloadContexts_Succeeds(t *testing.T) {
	env := newTestEnv(t)
	require.True(t, env.svc.ReloadContexts())
}

func TestValidateContexts_CleanCatalog(t *testing.T) {
	env := newTestEnv(t)
	v := env.svc.ValidateContexts()
	require.True(t, v.Valid)
	require.Equal(t, 5, v.Count)
	require.Empty(t, v.Errors)
}
