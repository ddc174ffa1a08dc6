package domain

import (
	"errors"
	"fmt"
)

// TransportError reports a gateway or ledger call that never produced a usable body.
type TransportError struct {
	Status int // 0 when the request never got a response
	Detail string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("transport status %d: %s", e.Status, e.Detail)
	}
	return "transport: " + e.Detail
}

func (e *TransportError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUpstreamUnavailable
}

// OutcomeKind tags an Outcome.
type OutcomeKind int

const (
	OutcomeOK OutcomeKind = iota
	OutcomeSchemaError
	OutcomeTransportError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOK:
		return "ok"
	case OutcomeSchemaError:
		return "schema_error"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Outcome is the result of asking the gateway for a structured value:
// Ok(Value) | SchemaError(Reason) | TransportError(Err).
type Outcome[T any] struct {
	Kind   OutcomeKind
	Value  T
	Reason string
	Err    error
}

// Ok wraps a parsed value.
func Ok[T any](v T) Outcome[T] { return Outcome[T]{Kind: OutcomeOK, Value: v} }

// SchemaFailure records a response whose shape could not be used.
func SchemaFailure[T any](reason string) Outcome[T] {
	return Outcome[T]{Kind: OutcomeSchemaError, Reason: reason, Err: fmt.Errorf("%w: %s", ErrSchemaInvalid, reason)}
}

// TransportFailure records a call that failed before any content arrived.
func TransportFailure[T any](err error) Outcome[T] {
	return Outcome[T]{Kind: OutcomeTransportError, Reason: err.Error(), Err: err}
}

// IsTransport reports whether err came from the transport layer.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
