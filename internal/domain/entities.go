package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrUnauthenticated     = errors.New("please sign in")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrRateLimited         = errors.New("rate limited")
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUpstreamRateLimit   = errors.New("upstream rate limit")
	ErrSchemaInvalid       = errors.New("schema invalid")
	ErrMisroutedResponse   = errors.New("misrouted response")
	ErrRefundFailed        = errors.New("refund failed, contact support")
	ErrInternal            = errors.New("internal error")
)

// Credit features identify what a spend was for in the ledger.
const (
	FeatureMockInterview  = "mock_interview"
	FeatureResumeAnalysis = "resume_analysis"
	FeatureJobAnalysis    = "job_analysis"
)

// CreditTxType enumerates ledger entry types.
type CreditTxType string

const (
	CreditTxUsage  CreditTxType = "usage"
	CreditTxRefund CreditTxType = "refund"
)

// CreditTransaction is one ledger movement. Amount is negative for usage.
type CreditTransaction struct {
	ID           string
	UserID       string
	Type         CreditTxType
	Amount       int64
	BalanceAfter int64
	Feature      string
	Description  string
	CreatedAt    time.Time
}

//go:generate mockery --name=SessionStore --structname=MockSessionStore --filename=session_store_mock.go
//go:generate mockery --name=CreditRepository --structname=MockCreditRepository --filename=credit_repository_mock.go
//go:generate mockery --name=BalanceCache --structname=MockBalanceCache --filename=balance_cache_mock.go
//go:generate mockery --name=BalanceNotifier --structname=MockBalanceNotifier --filename=balance_notifier_mock.go
//go:generate mockery --name=EventPublisher --structname=MockEventPublisher --filename=event_publisher_mock.go
//go:generate mockery --name=Completer --structname=MockCompleter --filename=completer_mock.go

// Repositories (ports)

// SessionStore is a keyed blob store for interview sessions.
// Get returns ErrNotFound when no blob exists for the key.
type SessionStore interface {
	Get(ctx Context, userID, interviewID string) ([]byte, error)
	Upsert(ctx Context, userID, interviewID string, blob []byte) error
	Delete(ctx Context, userID, interviewID string) error
}

// CreditRepository is the authoritative credit backend.
type CreditRepository interface {
	Balance(ctx Context, userID string) (int64, error)
	// Spend debits amount only if the balance covers it; it returns
	// ErrInsufficientCredits otherwise.
	Spend(ctx Context, userID string, amount int64, feature, description string) (CreditTransaction, error)
	Refund(ctx Context, userID string, amount int64, reason string) (CreditTransaction, error)
}

// BalanceCache holds the last known balance per user.
type BalanceCache interface {
	Get(ctx Context, userID string) (int64, bool, error)
	Set(ctx Context, userID string, balance int64) error
}

// BalanceNotifier is told about every balance refresh so clients can observe it.
type BalanceNotifier interface {
	NotifyBalance(ctx Context, userID string, balance int64) error
}

// EventPublisher emits domain events to downstream consumers.
type EventPublisher interface {
	PublishInterviewCompleted(ctx Context, ev InterviewCompletedEvent) error
}

// InterviewCompletedEvent is emitted once per completed session.
type InterviewCompletedEvent struct {
	EventID     string             `json:"event_id"`
	UserID      string             `json:"user_id"`
	InterviewID string             `json:"interview_id"`
	Summary     PerformanceSummary `json:"summary"`
	CompletedAt time.Time          `json:"completed_at"`
}

// AI gateway (port)

// CompletionRequest mirrors the completion endpoint body.
type CompletionRequest struct {
	Prompt      string   `json:"prompt"`
	Type        string   `json:"type"`
	Temperature *float64 `json:"temperature,omitempty"`
}

// Completion request types understood by the gateway.
const (
	CompletionInterview      = "interview"
	CompletionAnswerAnalysis = "interview-analysis"
	CompletionResumeAnalysis = "resume-analysis"
	CompletionJobAnalysis    = "job-analysis"
)

// Completer sends one prompt to the completion endpoint and returns the raw result text.
type Completer interface {
	Complete(ctx Context, req CompletionRequest) (string, error)
}

// Context is an alias to allow decoupling from std context in domain.
type Context = context.Context
