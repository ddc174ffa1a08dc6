package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of completion requests by type and result",
		},
		[]string{"type", "result"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "Completion request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"type"},
	)
	AITokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Estimated tokens sent and received by kind",
		},
		[]string{"type", "kind"},
	)

	CreditsSpentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credits_spent_total",
			Help: "Credits debited by feature",
		},
		[]string{"feature"},
	)
	CreditsRefundedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credits_refunded_total",
			Help: "Credits returned by compensating refunds",
		},
	)
	CreditSpendRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "credit_spend_rejected_total",
			Help: "Spend attempts that did not debit, by reason",
		},
		[]string{"feature", "reason"},
	)
	RefundFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "credit_refund_failures_total",
			Help: "Refunds that failed and need manual follow-up",
		},
	)

	SessionPersistTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_session_persist_total",
			Help: "Session blob writes by result (ok, error, suppressed)",
		},
		[]string{"result"},
	)
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "interview_sessions_active",
			Help: "Interview sessions held in memory",
		},
	)
	InterviewsCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "interviews_completed_total",
			Help: "Interview sessions that reached 100% progress",
		},
	)
	MisroutedResponsesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "interview_misrouted_responses_total",
			Help: "First assistant turns classified as template output",
		},
	)

	// Evaluation outcome distributions
	TurnScoreHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "interview_turn_score",
			Help:    "Distribution of per-turn sub-scores ([0,100])",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
		[]string{"metric"},
	)
	EvaluationFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_evaluation_fallbacks_total",
			Help: "Turn evaluations that used recovered or fixed fallback values",
		},
		[]string{"kind"},
	)
	DegenerateAnalysesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "interview_degenerate_analyses_total",
			Help: "Turn analyses that look like upstream default values",
		},
	)

	AnalysisRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_requests_total",
			Help: "Resume and job analyses by outcome",
		},
		[]string{"workflow", "outcome"},
	)
	AnalysisRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_retries_total",
			Help: "Transparent retries after cross-schema responses",
		},
		[]string{"workflow"},
	)

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Domain events produced by topic and result",
		},
		[]string{"topic", "result"},
	)
	WebsocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Open websocket connections",
		},
	)
)

var initOnce sync.Once

// InitMetrics registers all collectors with the default registry. Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AIRequestsTotal,
			AIRequestDuration,
			AITokensTotal,
			CreditsSpentTotal,
			CreditsRefundedTotal,
			CreditSpendRejectedTotal,
			RefundFailuresTotal,
			SessionPersistTotal,
			ActiveSessions,
			InterviewsCompletedTotal,
			MisroutedResponsesTotal,
			TurnScoreHistogram,
			EvaluationFallbacksTotal,
			DegenerateAnalysesTotal,
			AnalysisRequestsTotal,
			AnalysisRetriesTotal,
			EventsPublishedTotal,
			WebsocketConnections,
		)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = "unmatched"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// ObserveCompletion records one completion call.
func ObserveCompletion(kind, result string, d time.Duration) {
	AIRequestsTotal.WithLabelValues(kind, result).Inc()
	AIRequestDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveTokens records estimated prompt and completion tokens.
func ObserveTokens(kind string, prompt, completion int) {
	AITokensTotal.WithLabelValues(kind, "prompt").Add(float64(prompt))
	AITokensTotal.WithLabelValues(kind, "completion").Add(float64(completion))
}

// ObserveTurnScores records the four sub-scores of one evaluated turn.
func ObserveTurnScores(clarity, relevance, depth, confidence int) {
	TurnScoreHistogram.WithLabelValues("clarity").Observe(float64(clarity))
	TurnScoreHistogram.WithLabelValues("relevance").Observe(float64(relevance))
	TurnScoreHistogram.WithLabelValues("depth").Observe(float64(depth))
	TurnScoreHistogram.WithLabelValues("confidence").Observe(float64(confidence))
}

// SpendCredits counts a successful debit.
func SpendCredits(feature string, amount int64) {
	CreditsSpentTotal.WithLabelValues(feature).Add(float64(amount))
}

// RejectSpend counts a spend that did not debit.
func RejectSpend(feature, reason string) {
	CreditSpendRejectedTotal.WithLabelValues(feature, reason).Inc()
}

// RefundCredits counts a successful refund.
func RefundCredits(amount int64) {
	CreditsRefundedTotal.Add(float64(amount))
}

// RefundFailed counts a refund that needs manual follow-up.
func RefundFailed() {
	RefundFailuresTotal.Inc()
}

// PersistResult counts a session write by result.
func PersistResult(result string) {
	SessionPersistTotal.WithLabelValues(result).Inc()
}

// ObserveAnalysis counts a finished resume or job analysis.
func ObserveAnalysis(workflow, outcome string) {
	AnalysisRequestsTotal.WithLabelValues(workflow, outcome).Inc()
}

// RetryAnalysis counts a transparent analysis retry.
func RetryAnalysis(workflow string) {
	AnalysisRetriesTotal.WithLabelValues(workflow).Inc()
}

// PublishResult counts a produced event.
func PublishResult(topic, result string) {
	EventsPublishedTotal.WithLabelValues(topic, result).Inc()
}
