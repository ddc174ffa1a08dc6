package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/fairyhunter13/interview-coach/internal/adapter/ai"
	"github.com/fairyhunter13/interview-coach/internal/adapter/observability"
	"github.com/fairyhunter13/interview-coach/internal/domain"
	obsctx "github.com/fairyhunter13/interview-coach/internal/observability"
)

// Score recovery constants.
const (
	ScoreFallback       = 75
	FixedFallbackScore  = 60
	degenerateScore     = 70
	degenerateThreshold = 3
)

// Shape errors raised by ParseTurnAnalysis.
var (
	ErrMissingScores            = errors.New("analysis is missing scores")
	ErrMissingFeedback          = errors.New("analysis is missing feedback")
	ErrMissingScoresAndFeedback = errors.New("analysis is missing scores and feedback")
)

// RecoveryFeedback replaces feedback the upstream omitted.
const RecoveryFeedback = "Your answer was scored, but detailed feedback could not be generated this time. " +
	"Try structuring your next answer around a specific example and the result you achieved."

// ParseError reports a turn analysis that was not valid JSON.
type ParseError struct {
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("analysis is not valid JSON: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseReport lists the recoveries applied while parsing.
type ParseReport struct {
	DefaultedScores []string
	Degenerate      bool
}

var scoreFields = [4]string{"clarity", "relevance", "depth", "confidence"}

// ParseTurnAnalysis turns raw gateway text into a TurnAnalysis. With
// ErrMissingFeedback the returned analysis is still usable: scores are
// recovered and feedback is RecoveryFeedback.
func ParseTurnAnalysis(raw string) (domain.TurnAnalysis, ParseReport, error) {
	var rep ParseReport
	cleaned, err := ai.NewResponseCleaner().CleanAndValidateJSON(raw)
	if err != nil {
		return domain.TurnAnalysis{}, rep, &ParseError{Snippet: snippetOf(cleaned), Err: err}
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &top); err != nil {
		return domain.TurnAnalysis{}, rep, &ParseError{Snippet: snippetOf(cleaned), Err: err}
	}
	if top == nil {
		return domain.TurnAnalysis{}, rep, &ParseError{Snippet: snippetOf(cleaned), Err: errors.New("top level is not an object")}
	}

	scoresRaw, hasScores := present(top, "scores")
	feedback, hasFeedback := feedbackText(top)
	switch {
	case !hasScores && !hasFeedback:
		return domain.TurnAnalysis{}, rep, ErrMissingScoresAndFeedback
	case !hasScores:
		return domain.TurnAnalysis{}, rep, ErrMissingScores
	}

	var scores map[string]json.RawMessage
	if err := json.Unmarshal(scoresRaw, &scores); err != nil {
		return domain.TurnAnalysis{}, rep, &ParseError{Snippet: snippetOf(cleaned), Err: fmt.Errorf("scores: %w", err)}
	}

	var vals [4]int
	for i, f := range scoreFields {
		v, ok := scoreValue(scores[f])
		if !ok {
			rep.DefaultedScores = append(rep.DefaultedScores, f)
			v = ScoreFallback
		}
		vals[i] = v
	}
	a := domain.TurnAnalysis{Clarity: vals[0], Relevance: vals[1], Depth: vals[2], Confidence: vals[3]}
	rep.Degenerate = isDegenerate(vals)

	if !hasFeedback {
		a.Feedback = RecoveryFeedback
		a.Fallback = true
		return a, rep, ErrMissingFeedback
	}
	a.Feedback = feedback
	return a, rep, nil
}

// FixedFallbackAnalysis is returned when nothing could be recovered from the upstream reply.
func FixedFallbackAnalysis(cause error) domain.TurnAnalysis {
	return domain.TurnAnalysis{
		Clarity:    FixedFallbackScore,
		Relevance:  FixedFallbackScore,
		Depth:      FixedFallbackScore,
		Confidence: FixedFallbackScore,
		Feedback: fmt.Sprintf("We could not fully analyze this answer (%s). "+
			"Try answering in complete sentences, describe one concrete example, and finish with the outcome.", fallbackReason(cause)),
		Fallback: true,
	}
}

func fallbackReason(err error) string {
	var pe *ParseError
	switch {
	case err == nil:
		return "unknown error"
	case domain.IsTransport(err):
		return "the analysis service was unavailable"
	case errors.As(err, &pe):
		return pe.Error()
	default:
		return err.Error()
	}
}

func present(m map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	v, ok := m[key]
	if !ok || len(v) == 0 || string(v) == "null" {
		return nil, false
	}
	return v, true
}

func feedbackText(m map[string]json.RawMessage) (string, bool) {
	v, ok := present(m, "feedback")
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// scoreValue accepts JSON numbers inside [MinScore, MaxScore].
func scoreValue(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	if math.IsNaN(f) || f < domain.MinScore || f > domain.MaxScore {
		return 0, false
	}
	return int(math.Round(f)), true
}

func isDegenerate(v [4]int) bool {
	seventies := 0
	for _, s := range v {
		if s == degenerateScore {
			seventies++
		}
	}
	return seventies >= degenerateThreshold || (v[0] == v[1] && v[1] == v[2] && v[2] == v[3])
}

func snippetOf(s string) string {
	if len(s) > 200 {
		return s[:200]
	}
	return s
}

// EvaluationInput is one answered question.
type EvaluationInput struct {
	Setup    domain.InterviewSetup
	Stage    domain.Stage
	Question string
	Answer   string
}

// Evaluator scores candidate answers through the completion gateway.
type Evaluator struct {
	completer   domain.Completer
	temperature float64
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(c domain.Completer, temperature float64) *Evaluator {
	return &Evaluator{completer: c, temperature: temperature}
}

// Evaluate always returns an analysis; failures degrade to FixedFallbackAnalysis.
func (e *Evaluator) Evaluate(ctx domain.Context, in EvaluationInput) domain.TurnAnalysis {
	lg := obsctx.LoggerFromContext(ctx)
	temp := e.temperature
	raw, err := e.completer.Complete(ctx, domain.CompletionRequest{
		Prompt:      buildAnswerAnalysisPrompt(in),
		Type:        domain.CompletionAnswerAnalysis,
		Temperature: &temp,
	})
	if err != nil {
		lg.Warn("answer analysis request failed, using fallback", slog.Any("error", err))
		observability.EvaluationFallbacksTotal.WithLabelValues("transport").Inc()
		return FixedFallbackAnalysis(err)
	}

	a, rep, err := ParseTurnAnalysis(raw)
	switch {
	case err == nil:
	case errors.Is(err, ErrMissingFeedback):
		lg.Warn("answer analysis missing feedback, using recovery message")
		observability.EvaluationFallbacksTotal.WithLabelValues("missing_feedback").Inc()
	default:
		lg.Warn("answer analysis unusable, using fallback", slog.Any("error", err), slog.String("raw", snippetOf(raw)))
		observability.EvaluationFallbacksTotal.WithLabelValues(fallbackKind(err)).Inc()
		return FixedFallbackAnalysis(err)
	}

	if len(rep.DefaultedScores) > 0 {
		lg.Warn("answer analysis scores defaulted", slog.Any("fields", rep.DefaultedScores), slog.Int("fallback", ScoreFallback))
	}
	if rep.Degenerate {
		observability.DegenerateAnalysesTotal.Inc()
		lg.Warn("answer analysis looks degenerate",
			slog.Int("clarity", a.Clarity), slog.Int("relevance", a.Relevance),
			slog.Int("depth", a.Depth), slog.Int("confidence", a.Confidence))
	}
	observability.ObserveTurnScores(a.Clarity, a.Relevance, a.Depth, a.Confidence)
	return a
}

func fallbackKind(err error) string {
	var pe *ParseError
	switch {
	case errors.As(err, &pe):
		return "parse"
	case errors.Is(err, ErrMissingScoresAndFeedback):
		return "missing_scores_and_feedback"
	case errors.Is(err, ErrMissingScores):
		return "missing_scores"
	default:
		return "other"
	}
}
