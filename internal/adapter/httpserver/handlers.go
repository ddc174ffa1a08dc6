package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/interview-coach/internal/domain"
	"github.com/fairyhunter13/interview-coach/internal/usecase"
)

// InterviewAPI is the interview use case as seen by the handlers.
type InterviewAPI interface {
	Open(ctx context.Context, userID, interviewID string) (*domain.InterviewSession, error)
	Get(ctx context.Context, userID, interviewID string) (*domain.InterviewSession, error)
	Start(ctx context.Context, userID, interviewID string, setup domain.InterviewSetup) (*domain.InterviewSession, error)
	Answer(ctx context.Context, userID, interviewID string, in usecase.AnswerInput) (*domain.InterviewSession, error)
	Reset(ctx context.Context, userID, interviewID string) (*domain.InterviewSession, error)
	SetViewMode(ctx context.Context, userID, interviewID string, mode domain.ViewMode) (*domain.InterviewSession, error)
	Summary(ctx context.Context, userID, interviewID string) (domain.PerformanceSummary, error)
	Close(ctx context.Context, userID, interviewID string) error
}

// AnalysisAPI runs the one-shot analysis workflows.
type AnalysisAPI interface {
	AnalyzeResume(ctx context.Context, userID string, in usecase.ResumeAnalysisInput) (domain.ResumeAnalysis, error)
	AnalyzeJob(ctx context.Context, userID string, in usecase.JobAnalysisInput) (domain.JobAnalysis, error)
}

// BalanceReader reads a user's credit balance.
type BalanceReader interface {
	Balance(ctx context.Context, userID string) (int64, error)
}

// Server holds the use cases and readiness probes behind the HTTP API.
type Server struct {
	Interviews InterviewAPI
	Analysis   AnalysisAPI
	Credits    BalanceReader
	DBCheck    func(context.Context) error
	RedisCheck func(context.Context) error
	KafkaCheck func(context.Context) error
}

// NewServer constructs a Server. Nil checks are skipped by /readyz.
func NewServer(interviews InterviewAPI, analysis AnalysisAPI, credits BalanceReader, dbCheck, redisCheck, kafkaCheck func(context.Context) error) *Server {
	return &Server{Interviews: interviews, Analysis: analysis, Credits: credits, DBCheck: dbCheck, RedisCheck: redisCheck, KafkaCheck: kafkaCheck}
}

type startRequest struct {
	Position       string `json:"position" validate:"required,max=200"`
	Company        string `json:"company,omitempty" validate:"max=200"`
	JobDescription string `json:"jobDescription,omitempty" validate:"max=20000"`
	InterviewType  string `json:"interviewType,omitempty" validate:"max=50"`
}

type answerRequest struct {
	Content             string `json:"content" validate:"required,max=10000"`
	ThinkingTimeSeconds *int   `json:"thinkingTimeSeconds,omitempty" validate:"omitempty,min=0,max=86400"`
}

type viewRequest struct {
	Mode string `json:"mode" validate:"required,oneof=chat summary"`
}

type resumeRequest struct {
	ResumeText     string `json:"resumeText" validate:"required,max=50000"`
	TargetRole     string `json:"targetRole" validate:"required,max=200"`
	JobDescription string `json:"jobDescription,omitempty" validate:"max=20000"`
}

type jobRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Company     string `json:"company,omitempty" validate:"max=200"`
	Description string `json:"description" validate:"required,max=20000"`
}

// interviewHandler resolves the caller and path id before running fn.
func interviewHandler(fn func(w http.ResponseWriter, r *http.Request, userID, id string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := validateInterviewID(id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		fn(w, r, UserIDFrom(r.Context()), id)
	}
}

func writeSession(w http.ResponseWriter, r *http.Request, sess *domain.InterviewSession, err error) {
	if err != nil {
		var details any
		if sess != nil && errors.Is(err, domain.ErrMisroutedResponse) {
			details = map[string]any{"session": sess}
		}
		writeError(w, r, err, details)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// BalanceHandler returns the caller's credit balance.
func (s *Server) BalanceHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bal, err := s.Credits.Balance(r.Context(), UserIDFrom(r.Context()))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{"balance": bal})
	}
}

// OpenHandler loads or creates the session and resumes its clock.
func (s *Server) OpenHandler() http.HandlerFunc {
	return interviewHandler(func(w http.ResponseWriter, r *http.Request, userID, id string) {
		sess, err := s.Interviews.Open(r.Context(), userID, id)
		writeSession(w, r, sess, err)
	})
}

// GetHandler returns the current snapshot without side effects.
func (s *Server) GetHandler() http.HandlerFunc {
	return interviewHandler(func(w http.ResponseWriter, r *http.Request, userID, id string) {
		sess, err := s.Interviews.Get(r.Context(), userID, id)
		writeSession(w, r, sess, err)
	})
}

// StartHandler charges for and opens the interview.
func (s *Server) StartHandler() http.HandlerFunc {
	return interviewHandler(func(w http.ResponseWriter, r *http.Request, userID, id string) {
		var req startRequest
		if details, err := decodeAndValidate(w, r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		sess, err := s.Interviews.Start(r.Context(), userID, id, domain.InterviewSetup{
			Position:       req.Position,
			Company:        req.Company,
			JobDescription: req.JobDescription,
			InterviewType:  req.InterviewType,
		})
		writeSession(w, r, sess, err)
	})
}

// AnswerHandler records one candidate reply.
func (s *Server) AnswerHandler() http.HandlerFunc {
	return interviewHandler(func(w http.ResponseWriter, r *http.Request, userID, id string) {
		var req answerRequest
		if details, err := decodeAndValidate(w, r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		sess, err := s.Interviews.Answer(r.Context(), userID, id, usecase.AnswerInput{
			Content:             req.Content,
			ThinkingTimeSeconds: req.ThinkingTimeSeconds,
		})
		writeSession(w, r, sess, err)
	})
}

// ResetHandler discards the session; credits are not refunded.
func (s *Server) ResetHandler() http.HandlerFunc {
	return interviewHandler(func(w http.ResponseWriter, r *http.Request, userID, id string) {
		sess, err := s.Interviews.Reset(r.Context(), userID, id)
		writeSession(w, r, sess, err)
	})
}

// ViewHandler switches between the chat and summary views.
func (s *Server) ViewHandler() http.HandlerFunc {
	return interviewHandler(func(w http.ResponseWriter, r *http.Request, userID, id string) {
		var req viewRequest
		if details, err := decodeAndValidate(w, r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		sess, err := s.Interviews.SetViewMode(r.Context(), userID, id, domain.ViewMode(req.Mode))
		writeSession(w, r, sess, err)
	})
}

// SummaryHandler returns the performance summary of a completed interview.
func (s *Server) SummaryHandler() http.HandlerFunc {
	return interviewHandler(func(w http.ResponseWriter, r *http.Request, userID, id string) {
		sum, err := s.Interviews.Summary(r.Context(), userID, id)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	})
}

// CloseHandler flushes and releases the in-memory session.
func (s *Server) CloseHandler() http.HandlerFunc {
	return interviewHandler(func(w http.ResponseWriter, r *http.Request, userID, id string) {
		if err := s.Interviews.Close(r.Context(), userID, id); err != nil {
			writeError(w, r, err, nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// ResumeAnalysisHandler scores a resume for ATS compatibility.
func (s *Server) ResumeAnalysisHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resumeRequest
		if details, err := decodeAndValidate(w, r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		out, err := s.Analysis.AnalyzeResume(r.Context(), UserIDFrom(r.Context()), usecase.ResumeAnalysisInput{
			ResumeText:     req.ResumeText,
			TargetRole:     req.TargetRole,
			JobDescription: req.JobDescription,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// JobAnalysisHandler extracts requirements from a job posting.
func (s *Server) JobAnalysisHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req jobRequest
		if details, err := decodeAndValidate(w, r, &req); err != nil {
			writeError(w, r, err, details)
			return
		}
		out, err := s.Analysis.AnalyzeJob(r.Context(), UserIDFrom(r.Context()), usecase.JobAnalysisInput{
			Title:       req.Title,
			Company:     req.Company,
			Description: req.Description,
		})
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// HealthzHandler reports liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler probes the database, Redis and the event brokers.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		probes := []struct {
			name string
			fn   func(context.Context) error
		}{{"db", s.DBCheck}, {"redis", s.RedisCheck}, {"kafka", s.KafkaCheck}}

		checks := make([]check, 0, len(probes))
		ok := true
		for _, p := range probes {
			if p.fn == nil {
				continue
			}
			if err := p.fn(ctx); err != nil {
				ok = false
				checks = append(checks, check{Name: p.name, Details: err.Error()})
				continue
			}
			checks = append(checks, check{Name: p.name, OK: true})
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
