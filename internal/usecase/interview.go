package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fairyhunter13/interview-coach/internal/adapter/ai"
	"github.com/fairyhunter13/interview-coach/internal/adapter/observability"
	"github.com/fairyhunter13/interview-coach/internal/domain"
	obsctx "github.com/fairyhunter13/interview-coach/internal/observability"
	"github.com/fairyhunter13/interview-coach/pkg/textx"
)

// InterviewConfig holds the knobs of the interview flow.
type InterviewConfig struct {
	Cost            int64
	TotalQuestions  int
	Temperature     float64
	PersistDebounce time.Duration
	PersistTimeout  time.Duration
	TickInterval    time.Duration
	IdleTTL         time.Duration
}

// AnswerInput is one candidate reply. ThinkingTimeSeconds is optional; when
// absent it is measured from the previous question.
type AnswerInput struct {
	Content             string
	ThinkingTimeSeconds *int
}

type sessionKey struct {
	userID      string
	interviewID string
}

// activeSession is the authoritative in-memory copy of one interview.
type activeSession struct {
	mu          sync.Mutex
	sess        *domain.InterviewSession
	clock       *sessionClock
	persister   *sessionPersister
	loaded      bool
	closed      bool
	lastTouched time.Time
}

// InterviewService runs mock interview sessions. Mutations of one session are
// serialized; different sessions proceed independently.
type InterviewService struct {
	store     domain.SessionStore
	ledger    CreditLedger
	completer domain.Completer
	evaluator *Evaluator
	publisher domain.EventPublisher
	cleaner   *ai.ResponseCleaner
	cfg       InterviewConfig
	now       func() time.Time

	mu       sync.Mutex
	sessions map[sessionKey]*activeSession
}

// NewInterviewService constructs an InterviewService. publisher may be nil.
func NewInterviewService(store domain.SessionStore, ledger CreditLedger, completer domain.Completer, evaluator *Evaluator, publisher domain.EventPublisher, cfg InterviewConfig) *InterviewService {
	if cfg.TotalQuestions < 1 {
		cfg.TotalQuestions = 8
	}
	if cfg.PersistDebounce <= 0 {
		cfg.PersistDebounce = time.Second
	}
	return &InterviewService{
		store:     store,
		ledger:    ledger,
		completer: completer,
		evaluator: evaluator,
		publisher: publisher,
		cleaner:   ai.NewResponseCleaner(),
		cfg:       cfg,
		now:       time.Now,
		sessions:  make(map[sessionKey]*activeSession),
	}
}

// acquire returns the session locked. Callers must call release.
func (s *InterviewService) acquire(ctx domain.Context, userID, interviewID string) (*activeSession, error) {
	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	if strings.TrimSpace(interviewID) == "" {
		return nil, fmt.Errorf("%w: interview id is required", domain.ErrInvalidArgument)
	}
	key := sessionKey{userID: userID, interviewID: interviewID}
	for {
		s.mu.Lock()
		as, ok := s.sessions[key]
		if !ok {
			as = &activeSession{
				clock:     newSessionClock(s.cfg.TickInterval),
				persister: newSessionPersister(ctx, s.store, userID, interviewID, s.cfg.PersistDebounce, s.cfg.PersistTimeout),
			}
			s.sessions[key] = as
			observability.ActiveSessions.Inc()
		}
		s.mu.Unlock()

		as.mu.Lock()
		if as.closed {
			// Lost a race with Close or eviction; pick up a fresh entry.
			as.mu.Unlock()
			continue
		}
		if !as.loaded {
			if err := s.load(ctx, as, key); err != nil {
				as.mu.Unlock()
				return nil, err
			}
		}
		as.lastTouched = s.now()
		return as, nil
	}
}

func (s *InterviewService) release(as *activeSession) {
	as.lastTouched = s.now()
	as.mu.Unlock()
}

// load restores the persisted blob. Absent or unusable blobs yield a fresh session.
func (s *InterviewService) load(ctx domain.Context, as *activeSession, key sessionKey) error {
	lg := obsctx.LoggerFromContext(ctx)
	blob, err := s.store.Get(ctx, key.userID, key.interviewID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		as.sess = domain.NewInterviewSession(key.userID, key.interviewID)
	case err != nil:
		return fmt.Errorf("op=interview.load: %w", err)
	default:
		var restored domain.InterviewSession
		if uerr := json.Unmarshal(blob, &restored); uerr != nil || !restored.Normalize() {
			lg.Warn("discarding unusable session blob",
				slog.String("user_id", key.userID), slog.String("interview_id", key.interviewID), slog.Any("error", uerr))
			as.sess = domain.NewInterviewSession(key.userID, key.interviewID)
		} else {
			restored.UserID, restored.InterviewID = key.userID, key.interviewID
			as.sess = &restored
		}
	}
	as.loaded = true
	return nil
}

// Open loads the session and resumes its clock when it is in progress.
func (s *InterviewService) Open(ctx domain.Context, userID, interviewID string) (*domain.InterviewSession, error) {
	as, err := s.acquire(ctx, userID, interviewID)
	if err != nil {
		return nil, err
	}
	defer s.release(as)
	if as.sess.Started() && !as.sess.IsComplete() {
		s.startClock(as)
	}
	return s.snapshot(as), nil
}

// Get returns the current session without side effects.
func (s *InterviewService) Get(ctx domain.Context, userID, interviewID string) (*domain.InterviewSession, error) {
	as, err := s.acquire(ctx, userID, interviewID)
	if err != nil {
		return nil, err
	}
	defer s.release(as)
	return s.snapshot(as), nil
}

// Start charges the session cost at most once, asks the opening question and
// begins the interview. Starting an already started session returns it unchanged.
func (s *InterviewService) Start(ctx domain.Context, userID, interviewID string, setup domain.InterviewSetup) (*domain.InterviewSession, error) {
	setup = sanitizeSetup(setup)
	if setup.Position == "" {
		return nil, fmt.Errorf("%w: position is required", domain.ErrInvalidArgument)
	}
	as, err := s.acquire(ctx, userID, interviewID)
	if err != nil {
		return nil, err
	}
	defer s.release(as)
	lg := obsctx.LoggerFromContext(ctx).With(slog.String("user_id", userID), slog.String("interview_id", interviewID))

	if as.sess.IsComplete() {
		return nil, fmt.Errorf("%w: interview already completed", domain.ErrConflict)
	}
	if as.sess.Started() {
		return s.snapshot(as), nil
	}

	if !as.sess.CreditsCharged {
		ok, err := s.ledger.CheckAndSpend(ctx, userID, s.cfg.Cost, domain.FeatureMockInterview, "Mock interview: "+setup.Position)
		if err != nil {
			return nil, fmt.Errorf("op=interview.Start: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("op=interview.Start: %w", domain.ErrInsufficientCredits)
		}
		as.sess.CreditsCharged = true
		s.schedulePersist(as)
	}

	temp := s.cfg.Temperature
	raw, err := s.completer.Complete(ctx, domain.CompletionRequest{
		Prompt:      buildOpeningPrompt(setup),
		Type:        domain.CompletionInterview,
		Temperature: &temp,
	})
	if err != nil {
		// creditsCharged stays set so a retry is not billed twice.
		return nil, fmt.Errorf("op=interview.Start: %w", err)
	}
	text := s.cleaner.StripFences(raw)
	if text == "" {
		return nil, fmt.Errorf("op=interview.Start: %w: empty opening question", domain.ErrSchemaInvalid)
	}

	if c := ai.Classify(text); c.Kind == ai.LikelyTemplate {
		observability.MisroutedResponsesTotal.Inc()
		lg.Warn("opening response looks like a document template, aborting start",
			slog.Int("bold_headers", c.BoldHeaders), slog.Int("keywords", c.Keywords), slog.Bool("placeholder", c.Placeholder))
		if as.sess.CreditsCharged {
			if rerr := s.ledger.Refund(ctx, userID, s.cfg.Cost, "misrouted opening response"); rerr != nil {
				s.schedulePersist(as)
				return s.snapshot(as), fmt.Errorf("op=interview.Start: %w", rerr)
			}
		}
		as.sess.Reset()
		s.schedulePersist(as)
		return s.snapshot(as), fmt.Errorf("op=interview.Start: %w", domain.ErrMisroutedResponse)
	}

	as.sess.Setup = setup
	as.sess.Transcript = append(as.sess.Transcript, domain.Message{Role: domain.RoleAssistant, Content: text, CreatedAt: s.now().UTC()})
	as.sess.Begin(s.cfg.TotalQuestions)
	as.sess.ElapsedSeconds = 0
	as.sess.ViewMode = domain.ViewChat
	s.startClock(as)
	s.schedulePersist(as)
	lg.Info("interview started", slog.String("position", setup.Position), slog.Int("questions", s.cfg.TotalQuestions))
	return s.snapshot(as), nil
}

// Answer evaluates one reply, asks the next question and advances the session.
// A failed next-question request leaves the session untouched.
func (s *InterviewService) Answer(ctx domain.Context, userID, interviewID string, in AnswerInput) (*domain.InterviewSession, error) {
	content := textx.SanitizeText(in.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: answer is empty", domain.ErrInvalidArgument)
	}
	as, err := s.acquire(ctx, userID, interviewID)
	if err != nil {
		return nil, err
	}
	defer s.release(as)
	lg := obsctx.LoggerFromContext(ctx).With(slog.String("user_id", userID), slog.String("interview_id", interviewID))

	if !as.sess.Started() {
		return nil, fmt.Errorf("%w: interview has not started", domain.ErrConflict)
	}
	if as.sess.IsComplete() {
		return nil, fmt.Errorf("%w: interview already completed", domain.ErrConflict)
	}

	question, _ := as.sess.LastAssistant()
	receivedAt := s.now().UTC()
	analysis := s.evaluator.Evaluate(ctx, EvaluationInput{
		Setup:    as.sess.Setup,
		Stage:    as.sess.Stage,
		Question: question.Content,
		Answer:   content,
	})
	userMsg := domain.Message{
		Role:                domain.RoleUser,
		Content:             content,
		ThinkingTimeSeconds: thinkingTime(in.ThinkingTimeSeconds, question.CreatedAt, receivedAt),
		Analysis:            &analysis,
		CreatedAt:           receivedAt,
	}

	probe := *as.sess
	probe.Transcript = append(slices.Clone(as.sess.Transcript), userMsg)
	probe.ApplyAnsweredTurn()

	var next string
	if !probe.IsComplete() {
		temp := s.cfg.Temperature
		raw, err := s.completer.Complete(ctx, domain.CompletionRequest{
			Prompt:      buildNextQuestionPrompt(&probe),
			Type:        domain.CompletionInterview,
			Temperature: &temp,
		})
		if err != nil {
			return nil, fmt.Errorf("op=interview.Answer: %w", err)
		}
		if next = s.cleaner.StripFences(raw); next == "" {
			return nil, fmt.Errorf("op=interview.Answer: %w: empty question", domain.ErrSchemaInvalid)
		}
	}

	as.sess.Transcript = append(as.sess.Transcript, userMsg)
	if as.sess.ApplyAnsweredTurn() {
		lg.Info("interview stage advanced", slog.String("stage", string(as.sess.Stage)), slog.Int("progress", as.sess.Progress))
	}
	if next != "" {
		as.sess.Transcript = append(as.sess.Transcript, domain.Message{Role: domain.RoleAssistant, Content: next, CreatedAt: s.now().UTC()})
	}
	if as.sess.IsComplete() && as.sess.Summary == nil {
		s.complete(ctx, as)
	}
	s.schedulePersist(as)
	return s.snapshot(as), nil
}

// complete runs once when progress first reaches 100.
func (s *InterviewService) complete(ctx domain.Context, as *activeSession) {
	lg := obsctx.LoggerFromContext(ctx).With(slog.String("user_id", as.sess.UserID), slog.String("interview_id", as.sess.InterviewID))
	s.syncElapsed(as)
	as.clock.Stop()

	summary, ok := Summarize(as.sess.Transcript, as.sess.ElapsedSeconds)
	if !ok {
		lg.Warn("interview completed without analyzed responses")
		return
	}
	as.sess.Summary = &summary
	as.sess.ViewMode = domain.ViewSummary
	observability.InterviewsCompletedTotal.Inc()
	lg.Info("interview completed", slog.Int("overall", summary.Overall), slog.Int("responses", summary.ResponseCount), slog.Int("elapsed_seconds", summary.CompletionTimeSeconds))

	if s.publisher == nil {
		return
	}
	ev := domain.InterviewCompletedEvent{
		EventID:     uuid.NewString(),
		UserID:      as.sess.UserID,
		InterviewID: as.sess.InterviewID,
		Summary:     summary,
		CompletedAt: s.now().UTC(),
	}
	if err := s.publisher.PublishInterviewCompleted(obsctx.Detach(ctx), ev); err != nil {
		lg.Error("publish interview completed failed", slog.Any("error", err))
	}
}

// Reset deletes the persisted copy and returns the session to a fresh intro
// state. Spent credits are not refunded.
func (s *InterviewService) Reset(ctx domain.Context, userID, interviewID string) (*domain.InterviewSession, error) {
	as, err := s.acquire(ctx, userID, interviewID)
	if err != nil {
		return nil, err
	}
	defer s.release(as)

	as.persister.Cancel()
	if err := s.store.Delete(ctx, userID, interviewID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.schedulePersist(as)
		return nil, fmt.Errorf("op=interview.Reset: %w", err)
	}
	as.clock.Stop()
	as.clock = newSessionClock(s.cfg.TickInterval)
	as.sess.Reset()
	obsctx.LoggerFromContext(ctx).Info("interview reset", slog.String("user_id", userID), slog.String("interview_id", interviewID))
	return s.snapshot(as), nil
}

// SetViewMode records which view the client shows. The summary view requires
// a completed interview.
func (s *InterviewService) SetViewMode(ctx domain.Context, userID, interviewID string, mode domain.ViewMode) (*domain.InterviewSession, error) {
	if mode != domain.ViewChat && mode != domain.ViewSummary {
		return nil, fmt.Errorf("%w: unknown view mode %q", domain.ErrInvalidArgument, mode)
	}
	as, err := s.acquire(ctx, userID, interviewID)
	if err != nil {
		return nil, err
	}
	defer s.release(as)
	if mode == domain.ViewSummary && !as.sess.IsComplete() {
		return nil, fmt.Errorf("%w: interview is not complete", domain.ErrConflict)
	}
	if as.sess.ViewMode != mode {
		as.sess.ViewMode = mode
		s.schedulePersist(as)
	}
	return s.snapshot(as), nil
}

// Summary returns the performance summary of a completed interview.
func (s *InterviewService) Summary(ctx domain.Context, userID, interviewID string) (domain.PerformanceSummary, error) {
	as, err := s.acquire(ctx, userID, interviewID)
	if err != nil {
		return domain.PerformanceSummary{}, err
	}
	defer s.release(as)
	if !as.sess.IsComplete() {
		return domain.PerformanceSummary{}, fmt.Errorf("%w: interview is not complete", domain.ErrConflict)
	}
	if as.sess.Summary == nil {
		return domain.PerformanceSummary{}, fmt.Errorf("%w: no analyzed responses", domain.ErrNotFound)
	}
	out := *as.sess.Summary
	out.Strengths = slices.Clone(out.Strengths)
	out.Improvements = slices.Clone(out.Improvements)
	return out, nil
}

// Close stops the clock, writes any pending state and forgets the session.
func (s *InterviewService) Close(ctx domain.Context, userID, interviewID string) error {
	if userID == "" {
		return domain.ErrUnauthenticated
	}
	key := sessionKey{userID: userID, interviewID: interviewID}
	s.mu.Lock()
	as, ok := s.sessions[key]
	if ok {
		delete(s.sessions, key)
		observability.ActiveSessions.Dec()
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}
	as.mu.Lock()
	defer as.mu.Unlock()
	s.retire(as)
	obsctx.LoggerFromContext(ctx).Debug("interview closed", slog.String("user_id", userID), slog.String("interview_id", interviewID))
	return nil
}

// retire must be called with as.mu held after as left the map.
func (s *InterviewService) retire(as *activeSession) {
	as.closed = true
	if !as.loaded {
		return
	}
	running := as.clock.Running()
	s.syncElapsed(as)
	as.clock.Stop()
	if running {
		s.schedulePersist(as)
	}
	as.persister.Flush()
}

// EvictIdle retires sessions untouched for longer than the idle TTL and
// returns how many were retired. Busy sessions are skipped.
func (s *InterviewService) EvictIdle(now time.Time) int {
	if s.cfg.IdleTTL <= 0 {
		return 0
	}
	cutoff := now.Add(-s.cfg.IdleTTL)
	var idle []*activeSession
	s.mu.Lock()
	for key, as := range s.sessions {
		if !as.mu.TryLock() {
			continue
		}
		if as.lastTouched.After(cutoff) {
			as.mu.Unlock()
			continue
		}
		delete(s.sessions, key)
		observability.ActiveSessions.Dec()
		idle = append(idle, as)
	}
	s.mu.Unlock()

	for _, as := range idle {
		s.retire(as)
		as.mu.Unlock()
	}
	return len(idle)
}

// Shutdown retires every session, flushing pending writes.
func (s *InterviewService) Shutdown() {
	s.mu.Lock()
	all := make([]*activeSession, 0, len(s.sessions))
	for key, as := range s.sessions {
		all = append(all, as)
		delete(s.sessions, key)
		observability.ActiveSessions.Dec()
	}
	s.mu.Unlock()
	for _, as := range all {
		as.mu.Lock()
		s.retire(as)
		as.mu.Unlock()
	}
}

func (s *InterviewService) startClock(as *activeSession) {
	as.clock.Start(as.sess.ElapsedSeconds, func(elapsed int) {
		// Skip the tick when a request holds the session; the count still advances.
		if !as.mu.TryLock() {
			return
		}
		defer as.mu.Unlock()
		if as.closed {
			return
		}
		as.sess.ElapsedSeconds = elapsed
		s.schedulePersist(as)
	})
}

func (s *InterviewService) syncElapsed(as *activeSession) {
	if as.clock.Running() {
		as.sess.ElapsedSeconds = as.clock.Elapsed()
	}
}

func (s *InterviewService) schedulePersist(as *activeSession) {
	s.syncElapsed(as)
	as.sess.UpdatedAt = s.now().UTC()
	blob, err := json.Marshal(as.sess)
	if err != nil {
		as.persister.logger.Error("session encode failed", slog.Any("error", err))
		return
	}
	as.persister.Schedule(blob)
}

func (s *InterviewService) snapshot(as *activeSession) *domain.InterviewSession {
	s.syncElapsed(as)
	cp := *as.sess
	cp.Transcript = slices.Clone(as.sess.Transcript)
	if cp.Summary != nil {
		sum := *cp.Summary
		cp.Summary = &sum
	}
	return &cp
}

func sanitizeSetup(s domain.InterviewSetup) domain.InterviewSetup {
	return domain.InterviewSetup{
		Position:       textx.Truncate(textx.SanitizeText(s.Position), 200),
		Company:        textx.Truncate(textx.SanitizeText(s.Company), 200),
		JobDescription: textx.SanitizeText(s.JobDescription),
		InterviewType:  textx.Truncate(textx.SanitizeText(s.InterviewType), 100),
	}
}

func thinkingTime(supplied *int, askedAt, answeredAt time.Time) *int {
	if supplied != nil {
		v := max(*supplied, 0)
		return &v
	}
	if askedAt.IsZero() {
		return nil
	}
	v := max(int(answeredAt.Sub(askedAt).Seconds()), 0)
	return &v
}
