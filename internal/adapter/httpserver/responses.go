// Package httpserver contains HTTP handlers and middleware.
//
// It exposes the interview, credit and analysis use cases as JSON endpoints
// under /v1 and maps domain errors onto a stable error envelope.
package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fairyhunter13/interview-coach/internal/domain"
)

type errorEnvelope struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus maps err onto an HTTP status and a public error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, "UNAUTHENTICATED"
	case errors.Is(err, domain.ErrInsufficientCredits):
		return http.StatusPaymentRequired, "INSUFFICIENT_CREDITS"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED"
	case errors.Is(err, domain.ErrRefundFailed):
		// Checked before upstream errors: a failed refund usually wraps one.
		return http.StatusInternalServerError, "REFUND_FAILED"
	case errors.Is(err, domain.ErrMisroutedResponse):
		return http.StatusBadGateway, "MISROUTED_RESPONSE"
	case errors.Is(err, domain.ErrSchemaInvalid):
		return http.StatusBadGateway, "SCHEMA_INVALID"
	case errors.Is(err, domain.ErrUpstreamRateLimit):
		return http.StatusServiceUnavailable, "UPSTREAM_RATE_LIMIT"
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// publicMessage hides internal detail behind the sentinel text for 5xx codes
// that do not carry user-facing guidance.
func publicMessage(status int, code string, err error) string {
	if status == http.StatusInternalServerError && code == "INTERNAL" {
		return domain.ErrInternal.Error()
	}
	return err.Error()
}

func writeError(w http.ResponseWriter, r *http.Request, err error, details interface{}) {
	status, code := errorStatus(err)
	lg := LoggerFrom(r)
	if status >= http.StatusInternalServerError {
		lg.Error("request failed", slog.String("code", code), slog.Any("error", err))
	} else {
		lg.Debug("request rejected", slog.String("code", code), slog.Any("error", err))
	}
	writeJSON(w, status, errorEnvelope{Error: apiError{Code: code, Message: publicMessage(status, code, err), Details: details}})
}
