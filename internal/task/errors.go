package task

import (
	"errors"
	"fmt"
)

// Common errors returned by the task package
var (
	// ErrInvalidStatus is returned when a status string is not one of the known values
	ErrInvalidStatus = errors.New("invalid task status")

	// ErrInvalidSnapshot is returned when a snapshot violates one of its invariants
	ErrInvalidSnapshot = errors.New("invalid task snapshot")

	// ErrTaskFailed marks an authoritative, server-reported task failure.
	// It is never used for query problems; see TransportError for those.
	ErrTaskFailed = errors.New("task failed")
)

// TransportError is the single failure shape a status source reports.
// Network errors, timeouts, non-2xx responses and malformed bodies all
// surface as a TransportError; consumers treat every one as transient.
type TransportError struct {
	// Op names the operation that failed, e.g. "fetch status"
	Op string

	// StatusCode is the HTTP status when a response was received, else 0
	StatusCode int

	// Message is the human-readable description shown to consumers
	Message string

	// Err is the underlying cause, if any
	Err error
}

func (e *TransportError) Error() string {
	if e.Op == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError builds a TransportError. If message is empty the cause's
// text is used instead.
func NewTransportError(op string, statusCode int, message string, cause error) *TransportError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	if message == "" {
		message = "request failed"
	}
	return &TransportError{
		Op:         op,
		StatusCode: statusCode,
		Message:    message,
		Err:        cause,
	}
}

// ErrorMessage extracts the consumer-facing message from err. TransportError
// contributes its Message; any other error its full text.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var te *TransportError
	if errors.As(err, &te) {
		return te.Message
	}
	return err.Error()
}
