package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/interview-coach/internal/adapter/auth"
	"github.com/fairyhunter13/interview-coach/internal/domain"
	"github.com/fairyhunter13/interview-coach/internal/usecase"
)

const testUser = "7b0e4a0a-4c55-4b5e-9d7e-0d9a4f3c2b11"

type interviewsMock struct{ mock.Mock }

func (m *interviewsMock) session(args mock.Arguments) (*domain.InterviewSession, error) {
	s, _ := args.Get(0).(*domain.InterviewSession)
	return s, args.Error(1)
}

func (m *interviewsMock) Open(ctx context.Context, u, id string) (*domain.InterviewSession, error) {
	return m.session(m.Called(ctx, u, id))
}

func (m *interviewsMock) Get(ctx context.Context, u, id string) (*domain.InterviewSession, error) {
	return m.session(m.Called(ctx, u, id))
}

func (m *interviewsMock) Start(ctx context.Context, u, id string, setup domain.InterviewSetup) (*domain.InterviewSession, error) {
	return m.session(m.Called(ctx, u, id, setup))
}

func (m *interviewsMock) Answer(ctx context.Context, u, id string, in usecase.AnswerInput) (*domain.InterviewSession, error) {
	return m.session(m.Called(ctx, u, id, in))
}

func (m *interviewsMock) Reset(ctx context.Context, u, id string) (*domain.InterviewSession, error) {
	return m.session(m.Called(ctx, u, id))
}

func (m *interviewsMock) SetViewMode(ctx context.Context, u, id string, mode domain.ViewMode) (*domain.InterviewSession, error) {
	return m.session(m.Called(ctx, u, id, mode))
}

func (m *interviewsMock) Summary(ctx context.Context, u, id string) (domain.PerformanceSummary, error) {
	args := m.Called(ctx, u, id)
	s, _ := args.Get(0).(domain.PerformanceSummary)
	return s, args.Error(1)
}

func (m *interviewsMock) Close(ctx context.Context, u, id string) error {
	return m.Called(ctx, u, id).Error(0)
}

type analysisMock struct{ mock.Mock }

func (m *analysisMock) AnalyzeResume(ctx context.Context, u string, in usecase.ResumeAnalysisInput) (domain.ResumeAnalysis, error) {
	args := m.Called(ctx, u, in)
	out, _ := args.Get(0).(domain.ResumeAnalysis)
	return out, args.Error(1)
}

func (m *analysisMock) AnalyzeJob(ctx context.Context, u string, in usecase.JobAnalysisInput) (domain.JobAnalysis, error) {
	args := m.Called(ctx, u, in)
	out, _ := args.Get(0).(domain.JobAnalysis)
	return out, args.Error(1)
}

type balanceStub struct {
	balance int64
	err     error
}

func (b balanceStub) Balance(context.Context, string) (int64, error) { return b.balance, b.err }

type harness struct {
	interviews *interviewsMock
	analysis   *analysisMock
	srv        *Server
	router     http.Handler
	token      string
}

// newHarness mounts the handlers the way the application router does.
func newHarness(t *testing.T) *harness {
	t.Helper()
	v := auth.NewVerifier("s3cret")
	tok, err := v.Sign(testUser, time.Hour)
	require.NoError(t, err)

	h := &harness{interviews: &interviewsMock{}, analysis: &analysisMock{}, token: tok}
	h.srv = NewServer(h.interviews, h.analysis, balanceStub{balance: 12}, nil, nil, nil)

	r := chi.NewRouter()
	r.Use(RequestID(), Recoverer())
	r.Route("/v1", func(r chi.Router) {
		r.Use(Authenticate(v))
		r.Get("/credits/balance", h.srv.BalanceHandler())
		r.Route("/interviews/{id}", func(r chi.Router) {
			r.Get("/", h.srv.GetHandler())
			r.Post("/open", h.srv.OpenHandler())
			r.Post("/start", h.srv.StartHandler())
			r.Post("/answer", h.srv.AnswerHandler())
			r.Post("/reset", h.srv.ResetHandler())
			r.Post("/close", h.srv.CloseHandler())
			r.Put("/view", h.srv.ViewHandler())
			r.Get("/summary", h.srv.SummaryHandler())
		})
		r.Post("/analysis/resume", h.srv.ResumeAnalysisHandler())
		r.Post("/analysis/job", h.srv.JobAnalysisHandler())
	})
	h.router = r
	return h
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}
