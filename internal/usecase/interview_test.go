package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/interview-coach/internal/domain"
	"github.com/fairyhunter13/interview-coach/internal/domain/mocks"
)

const (
	testInterview = "iv-1"
	testCost      = 10
)

type interviewFixture struct {
	svc       *InterviewService
	store     *memStore
	ledger    *fakeLedger
	completer *scriptedCompleter
	publisher *mocks.MockEventPublisher
}

func newInterviewFixture(t *testing.T) *interviewFixture {
	t.Helper()
	f := &interviewFixture{
		store:     newMemStore(),
		ledger:    &fakeLedger{balance: 100},
		completer: &scriptedCompleter{},
		publisher: &mocks.MockEventPublisher{},
	}
	f.svc = NewInterviewService(f.store, f.ledger, f.completer, NewEvaluator(f.completer, 0.2), f.publisher, InterviewConfig{
		Cost:            testCost,
		TotalQuestions:  8,
		Temperature:     0.7,
		PersistDebounce: 5 * time.Millisecond,
		PersistTimeout:  time.Second,
		TickInterval:    time.Hour,
		IdleTTL:         time.Minute,
	})
	t.Cleanup(f.svc.Shutdown)
	return f
}

func setup() domain.InterviewSetup {
	return domain.InterviewSetup{Position: "Backend Engineer", Company: "Acme", InterviewType: "technical"}
}

func TestInterview_StartChargesOnceAndAsksOpeningQuestion(t *testing.T) {
	f := newInterviewFixture(t)
	ctx := context.Background()

	s, err := f.svc.Start(ctx, testUser, testInterview, setup())
	require.NoError(t, err)
	assert.Equal(t, domain.StageIntro, s.Stage)
	assert.Equal(t, 10, s.Progress)
	assert.Equal(t, 8, s.RemainingQuestions)
	assert.True(t, s.CreditsCharged)
	require.Len(t, s.Transcript, 1)
	assert.Equal(t, domain.RoleAssistant, s.Transcript[0].Role)
	assert.Nil(t, s.Transcript[0].Analysis)

	again, err := f.svc.Start(ctx, testUser, testInterview, setup())
	require.NoError(t, err)
	assert.Len(t, again.Transcript, 1)
	assert.Equal(t, 1, f.ledger.spendCount())
	assert.Equal(t, 1, f.completer.count(domain.CompletionInterview))
}

func TestInterview_StartValidation(t *testing.T) {
	f := newInterviewFixture(t)
	_, err := f.svc.Start(context.Background(), testUser, testInterview, domain.InterviewSetup{Position: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.svc.Start(context.Background(), "", testInterview, setup())
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestInterview_StartInsufficientCreditsSkipsGateway(t *testing.T) {
	f := newInterviewFixture(t)
	f.ledger.balance = 3

	_, err := f.svc.Start(context.Background(), testUser, testInterview, setup())
	require.ErrorIs(t, err, domain.ErrInsufficientCredits)
	assert.Zero(t, f.completer.count(domain.CompletionInterview))

	s, err := f.svc.Get(context.Background(), testUser, testInterview)
	require.NoError(t, err)
	assert.False(t, s.CreditsCharged)
	assert.Empty(t, s.Transcript)
}

func TestInterview_GatewayFailureAfterChargeDoesNotRebill(t *testing.T) {
	f := newInterviewFixture(t)
	fail := true
	f.completer.onInterview = func(int) (string, error) {
		if fail {
			return "", &domain.TransportError{Status: 503, Detail: "unavailable"}
		}
		return "Welcome! Tell me about yourself.", nil
	}

	_, err := f.svc.Start(context.Background(), testUser, testInterview, setup())
	require.Error(t, err)
	assert.True(t, domain.IsTransport(err))

	fail = false
	s, err := f.svc.Start(context.Background(), testUser, testInterview, setup())
	require.NoError(t, err)
	assert.Len(t, s.Transcript, 1)
	assert.Equal(t, 1, f.ledger.spendCount())
}

func TestInterview_MisroutedOpeningRefundsAndResets(t *testing.T) {
	f := newInterviewFixture(t)
	f.completer.onInterview = func(int) (string, error) {
		return "**Summary**\n**Experience**\n**Skills**\n[Your Name]", nil
	}

	s, err := f.svc.Start(context.Background(), testUser, testInterview, setup())
	require.ErrorIs(t, err, domain.ErrMisroutedResponse)
	require.NotNil(t, s)
	assert.False(t, s.CreditsCharged)
	assert.Empty(t, s.Transcript)
	assert.Equal(t, domain.StageIntro, s.Stage)
	require.Len(t, f.ledger.refunds, 1)
	assert.Equal(t, int64(testCost), f.ledger.refunds[0].amount)
	assert.Equal(t, int64(100), f.ledger.balance)
}

func TestInterview_MisroutedOpeningRefundFailureKeepsCharge(t *testing.T) {
	f := newInterviewFixture(t)
	f.ledger.refundErr = errors.New("ledger timeout")
	misroute := true
	f.completer.onInterview = func(int) (string, error) {
		if misroute {
			return "Professional Summary\nWork Experience\nEducation", nil
		}
		return "Hello! Walk me through your background.", nil
	}

	_, err := f.svc.Start(context.Background(), testUser, testInterview, setup())
	require.ErrorIs(t, err, domain.ErrRefundFailed)

	s, err := f.svc.Get(context.Background(), testUser, testInterview)
	require.NoError(t, err)
	assert.True(t, s.CreditsCharged)
	assert.Empty(t, s.Transcript)

	misroute = false
	_, err = f.svc.Start(context.Background(), testUser, testInterview, setup())
	require.NoError(t, err)
	assert.Equal(t, 1, f.ledger.spendCount())
}

func TestInterview_MisroutedOpeningRefundsPersistedCharge(t *testing.T) {
	f := newInterviewFixture(t)
	persisted := domain.NewInterviewSession(testUser, testInterview)
	persisted.CreditsCharged = true
	f.store.put(testUser, testInterview, persisted)
	f.completer.onInterview = func(int) (string, error) {
		return "Dear Hiring Manager, [Your Name] [Company Name]", nil
	}

	_, err := f.svc.Start(context.Background(), testUser, testInterview, setup())
	require.ErrorIs(t, err, domain.ErrMisroutedResponse)
	assert.Zero(t, f.ledger.spendCount())
	require.Len(t, f.ledger.refunds, 1)
}

func TestInterview_ResumedSessionIsNotRecharged(t *testing.T) {
	f := newInterviewFixture(t)
	persisted := domain.NewInterviewSession(testUser, testInterview)
	persisted.Setup = setup()
	persisted.CreditsCharged = true
	persisted.Transcript = []domain.Message{{Role: domain.RoleAssistant, Content: "Tell me about yourself.", CreatedAt: time.Now().Add(-30 * time.Second)}}
	persisted.Begin(8)
	f.store.put(testUser, testInterview, persisted)

	s, err := f.svc.Open(context.Background(), testUser, testInterview)
	require.NoError(t, err)
	assert.True(t, s.CreditsCharged)
	assert.Len(t, s.Transcript, 1)

	_, err = f.svc.Start(context.Background(), testUser, testInterview, setup())
	require.NoError(t, err)
	s, err = f.svc.Answer(context.Background(), testUser, testInterview, AnswerInput{Content: "I build APIs."})
	require.NoError(t, err)
	assert.Len(t, s.Transcript, 3)
	assert.Zero(t, f.ledger.spendCount())

	user := s.Transcript[1]
	require.NotNil(t, user.ThinkingTimeSeconds)
	assert.GreaterOrEqual(t, *user.ThinkingTimeSeconds, 29)
}

func TestInterview_FullRunCompletesOnce(t *testing.T) {
	f := newInterviewFixture(t)
	ctx := context.Background()
	f.publisher.On("PublishInterviewCompleted", mock.Anything, mock.MatchedBy(func(ev domain.InterviewCompletedEvent) bool {
		return ev.UserID == testUser && ev.InterviewID == testInterview && ev.EventID != "" && ev.Summary.ResponseCount == 8
	})).Return(nil).Once()

	_, err := f.svc.Start(ctx, testUser, testInterview, setup())
	require.NoError(t, err)

	var (
		s        *domain.InterviewSession
		progress = 10
		stage    = domain.StageIntro
	)
	thinking := 4
	for i := 0; i < 8; i++ {
		s, err = f.svc.Answer(ctx, testUser, testInterview, AnswerInput{Content: "answer", ThinkingTimeSeconds: &thinking})
		require.NoError(t, err, "turn %d", i)
		assert.GreaterOrEqual(t, s.Progress, progress)
		assert.True(t, s.Stage.AtLeast(stage))
		progress, stage = s.Progress, s.Stage
	}

	assert.True(t, s.IsComplete())
	assert.True(t, s.Completed)
	assert.Equal(t, 100, s.Progress)
	assert.Equal(t, domain.StageClosing, s.Stage)
	assert.Equal(t, domain.ViewSummary, s.ViewMode)
	require.NotNil(t, s.Summary)
	assert.Equal(t, 8, s.Summary.ResponseCount)
	assert.Equal(t, 75, s.Summary.Overall)
	assert.Equal(t, []string{"Clear structure"}, s.Summary.Strengths)

	// Seven follow-up questions; the final answer gets no new question.
	assert.Equal(t, 8, f.completer.count(domain.CompletionInterview))
	assert.Equal(t, 8, f.completer.count(domain.CompletionAnswerAnalysis))
	for _, m := range s.Transcript {
		if m.Role == domain.RoleUser {
			require.NotNil(t, m.Analysis)
			assert.Equal(t, 4, *m.ThinkingTimeSeconds)
		} else {
			assert.Nil(t, m.Analysis)
		}
	}

	_, err = f.svc.Answer(ctx, testUser, testInterview, AnswerInput{Content: "one more"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	sum, err := f.svc.Summary(ctx, testUser, testInterview)
	require.NoError(t, err)
	assert.Equal(t, *s.Summary, sum)
	f.publisher.AssertExpectations(t)
}

func TestInterview_QuestionsKeepEmbeddedCode(t *testing.T) {
	f := newInterviewFixture(t)
	ctx := context.Background()
	snippet := "Look at this snippet:\n```go\nfor i := range xs { go f(i) }\n```\nWhat could go wrong here?"
	f.completer.onInterview = func(n int) (string, error) {
		if n == 1 {
			return "```text\nWelcome! Tell me about a service you built in Go?\n```", nil
		}
		return snippet, nil
	}

	s, err := f.svc.Start(ctx, testUser, testInterview, setup())
	require.NoError(t, err)
	assert.Equal(t, "Welcome! Tell me about a service you built in Go?", s.Transcript[0].Content)

	s, err = f.svc.Answer(ctx, testUser, testInterview, AnswerInput{Content: "A billing API"})
	require.NoError(t, err)
	last := s.Transcript[len(s.Transcript)-1]
	assert.Equal(t, domain.RoleAssistant, last.Role)
	assert.Equal(t, snippet, last.Content)
	assert.Contains(t, last.Content, "What could go wrong here?")
}

func TestInterview_AnswerTransportFailureLeavesStateUnchanged(t *testing.T) {
	f := newInterviewFixture(t)
	ctx := context.Background()
	_, err := f.svc.Start(ctx, testUser, testInterview, setup())
	require.NoError(t, err)

	f.completer.onInterview = func(int) (string, error) {
		return "", &domain.TransportError{Status: 500, Detail: "boom"}
	}
	_, err = f.svc.Answer(ctx, testUser, testInterview, AnswerInput{Content: "my answer"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)

	s, err := f.svc.Get(ctx, testUser, testInterview)
	require.NoError(t, err)
	assert.Len(t, s.Transcript, 1)
	assert.Equal(t, 10, s.Progress)
	assert.Equal(t, 8, s.RemainingQuestions)
}

func TestInterview_AnswerGuards(t *testing.T) {
	f := newInterviewFixture(t)
	_, err := f.svc.Answer(context.Background(), testUser, testInterview, AnswerInput{Content: "hi"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.svc.Answer(context.Background(), testUser, testInterview, AnswerInput{Content: " \x00 "})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestInterview_ResetDeletesAndDoesNotRefund(t *testing.T) {
	f := newInterviewFixture(t)
	ctx := context.Background()
	_, err := f.svc.Start(ctx, testUser, testInterview, setup())
	require.NoError(t, err)
	_, err = f.svc.Answer(ctx, testUser, testInterview, AnswerInput{Content: "answer"})
	require.NoError(t, err)

	s, err := f.svc.Reset(ctx, testUser, testInterview)
	require.NoError(t, err)
	assert.Equal(t, domain.StageIntro, s.Stage)
	assert.Zero(t, s.Progress)
	assert.Zero(t, s.RemainingQuestions)
	assert.Zero(t, s.ElapsedSeconds)
	assert.Empty(t, s.Transcript)
	assert.False(t, s.CreditsCharged)
	assert.Empty(t, f.ledger.refunds)

	time.Sleep(30 * time.Millisecond)
	_, ok := f.store.session(testUser, testInterview)
	assert.False(t, ok)
	assert.Equal(t, 1, f.store.deletes)
}

func TestInterview_ResetDeleteFailure(t *testing.T) {
	f := newInterviewFixture(t)
	ctx := context.Background()
	_, err := f.svc.Start(ctx, testUser, testInterview, setup())
	require.NoError(t, err)
	f.store.deleteErr = errors.New("db down")

	_, err = f.svc.Reset(ctx, testUser, testInterview)
	require.Error(t, err)
	s, err := f.svc.Get(ctx, testUser, testInterview)
	require.NoError(t, err)
	assert.Len(t, s.Transcript, 1)
}

func TestInterview_OpenRestoresAndRecoversCorruptBlob(t *testing.T) {
	f := newInterviewFixture(t)
	persisted := domain.NewInterviewSession(testUser, testInterview)
	persisted.Setup = setup()
	persisted.Transcript = []domain.Message{{Role: domain.RoleAssistant, Content: "q"}}
	persisted.Begin(8)
	persisted.ElapsedSeconds = 42
	persisted.CreditsCharged = true
	f.store.put(testUser, testInterview, persisted)

	s, err := f.svc.Open(context.Background(), testUser, testInterview)
	require.NoError(t, err)
	assert.Equal(t, 42, s.ElapsedSeconds)
	assert.Equal(t, 10, s.Progress)
	assert.True(t, s.CreditsCharged)

	f.store.mu.Lock()
	f.store.blobs[storeKey(testUser, "iv-2")] = []byte(`{"stage":"nope"`)
	f.store.mu.Unlock()
	s, err = f.svc.Open(context.Background(), testUser, "iv-2")
	require.NoError(t, err)
	assert.Empty(t, s.Transcript)
	assert.False(t, s.CreditsCharged)
}

func TestInterview_OpenStoreErrorIsReturned(t *testing.T) {
	f := newInterviewFixture(t)
	f.store.getErr = errors.New("connection refused")
	_, err := f.svc.Open(context.Background(), testUser, testInterview)
	require.Error(t, err)

	f.store.getErr = nil
	s, err := f.svc.Open(context.Background(), testUser, testInterview)
	require.NoError(t, err)
	assert.Empty(t, s.Transcript)
}

func TestInterview_PersistDebouncedAndFlushedOnClose(t *testing.T) {
	f := newInterviewFixture(t)
	ctx := context.Background()
	_, err := f.svc.Start(ctx, testUser, testInterview, setup())
	require.NoError(t, err)
	_, err = f.svc.Answer(ctx, testUser, testInterview, AnswerInput{Content: "answer"})
	require.NoError(t, err)
	require.NoError(t, f.svc.Close(ctx, testUser, testInterview))

	stored, ok := f.store.session(testUser, testInterview)
	require.True(t, ok)
	assert.Len(t, stored.Transcript, 3)
	assert.True(t, stored.CreditsCharged)
	assert.LessOrEqual(t, f.store.upsertCount(), 4)
}

func TestInterview_ViewModeAndSummaryGuards(t *testing.T) {
	f := newInterviewFixture(t)
	ctx := context.Background()
	_, err := f.svc.Start(ctx, testUser, testInterview, setup())
	require.NoError(t, err)

	_, err = f.svc.SetViewMode(ctx, testUser, testInterview, domain.ViewSummary)
	assert.ErrorIs(t, err, domain.ErrConflict)
	_, err = f.svc.SetViewMode(ctx, testUser, testInterview, "grid")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	s, err := f.svc.SetViewMode(ctx, testUser, testInterview, domain.ViewChat)
	require.NoError(t, err)
	assert.Equal(t, domain.ViewChat, s.ViewMode)

	_, err = f.svc.Summary(ctx, testUser, testInterview)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestInterview_EvictIdle(t *testing.T) {
	f := newInterviewFixture(t)
	ctx := context.Background()
	_, err := f.svc.Start(ctx, testUser, testInterview, setup())
	require.NoError(t, err)

	assert.Zero(t, f.svc.EvictIdle(time.Now()))
	assert.Equal(t, 1, f.svc.EvictIdle(time.Now().Add(2*time.Minute)))

	stored, ok := f.store.session(testUser, testInterview)
	require.True(t, ok)
	assert.Len(t, stored.Transcript, 1)

	s, err := f.svc.Get(ctx, testUser, testInterview)
	require.NoError(t, err)
	assert.Len(t, s.Transcript, 1)
}

func TestInterview_ClockAdvancesWhileInProgress(t *testing.T) {
	f := newInterviewFixture(t)
	f.svc.cfg.TickInterval = 5 * time.Millisecond
	ctx := context.Background()
	_, err := f.svc.Start(ctx, testUser, testInterview, setup())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		s, err := f.svc.Get(ctx, testUser, testInterview)
		return err == nil && s.ElapsedSeconds >= 3
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, f.svc.Close(ctx, testUser, testInterview))
	stored, ok := f.store.session(testUser, testInterview)
	require.True(t, ok)
	assert.GreaterOrEqual(t, stored.ElapsedSeconds, 3)
}
