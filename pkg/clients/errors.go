package clients

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates an identifier the network legitimately does not know.
// It is never retried.
var ErrNotFound = errors.New("not found")

// TransportError wraps connection, dial and timeout failures.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError indicates a malformed message or an exchange that violated
// the expected wire protocol (unexpected frame, server-side error notice).
type ProtocolError struct {
	Op  string
	Msg string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error during %s: %s", e.Op, e.Msg)
}

// PartialFailure reports that some batches or items of a larger call failed
// while the call still produced a usable partial result.
type PartialFailure struct {
	Succeeded int
	Failed    int
	Errs      []error
}

func (e *PartialFailure) Error() string {
	return fmt.Sprintf("partial failure: %d succeeded, %d failed (first: %v)", e.Succeeded, e.Failed, firstErr(e.Errs))
}

func (e *PartialFailure) Unwrap() []error { return e.Errs }

func firstErr(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errs[0]
}

// NewTransportError wraps err as a TransportError.
func NewTransportError(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// NewProtocolError builds a ProtocolError for op.
func NewProtocolError(op, format string, args ...interface{}) error {
	return &ProtocolError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IsRetryable reports whether err is worth another attempt. Transport and
// protocol failures are transient relay conditions; a NotFound is a final
// answer.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return false
	}
	var te *TransportError
	if errors.As(err, &te) {
		return true
	}
	var pe *ProtocolError
	return errors.As(err, &pe)
}
