package types

import (
	"context"
	"errors"
	"strconv"
)

// TransportError wraps an error surfaced by the transport layer together
// with its classification.
//
// The routing core never performs network I/O itself; transports are
// expected to wrap service responses and connection failures in a
// TransportError so the retry policy can classify them without inspecting
// driver-specific error types.
type TransportError struct {
	// Kind is the failure classification.
	Kind FailureKind

	// StatusCode is the service response status code, or 0 when the
	// failure happened before a response was received.
	StatusCode int

	// Cause is the underlying error.
	Cause error
}

// NewTransportError creates a TransportError from a status code.
//
// Parameters:
//   - statusCode: The service response status code
//   - cause: The underlying error
//
// Returns:
//   - *TransportError: An error classified via ClassifyStatusCode
func NewTransportError(statusCode int, cause error) *TransportError {
	return &TransportError{
		Kind:       ClassifyStatusCode(statusCode),
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// NewConnectionError creates a TransportError for a connection-level
// failure that produced no service response.
//
// Parameters:
//   - cause: The underlying error
//
// Returns:
//   - *TransportError: An error classified as FailureConnection
func NewConnectionError(cause error) *TransportError {
	return &TransportError{Kind: FailureConnection, Cause: cause}
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	msg := "meridian: transport failure (" + e.Kind.String()
	if e.StatusCode != 0 {
		msg += ", status " + strconv.Itoa(e.StatusCode)
	}
	msg += ")"
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}

	return msg
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Classify derives the FailureKind of an arbitrary attempt error.
//
// TransportError values carry their own classification. Context deadline
// errors map to FailureTimeout. Everything else is FailureUnknown and
// therefore non-retriable; transports that want failover must wrap their
// errors.
//
// Parameters:
//   - err: The attempt error
//
// Returns:
//   - FailureKind: The classification
func Classify(err error) FailureKind {
	if err == nil {
		return FailureUnknown
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}

	return FailureUnknown
}

// Outcome is the explicit result of one transport attempt.
//
// It replaces exception-driven retry signaling: transports return an Outcome
// (or an error the router converts into one) and the retry policy consumes
// it to decide between success, regional failover and immediate propagation.
type Outcome struct {
	// Kind is the failure classification. Meaningless when Err is nil.
	Kind FailureKind

	// Err is the attempt error, or nil on success.
	Err error
}

// Success returns a successful outcome.
func Success() Outcome {
	return Outcome{}
}

// Failure returns a failed outcome classified from the given error.
//
// Parameters:
//   - err: The attempt error
//
// Returns:
//   - Outcome: A failed outcome with Kind = Classify(err)
func Failure(err error) Outcome {
	return Outcome{Kind: Classify(err), Err: err}
}

// IsSuccess reports whether the attempt succeeded.
func (o Outcome) IsSuccess() bool {
	return o.Err == nil
}

// Retriable reports whether the outcome should drive regional failover.
func (o Outcome) Retriable() bool {
	return o.Err != nil && o.Kind.Retriable()
}
