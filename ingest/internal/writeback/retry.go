package writeback

import (
	"errors"
	"fmt"
)

// ErrorKind separates failures worth retrying from poison batches.
type ErrorKind int

const (
	NonTransient ErrorKind = iota
	Transient
)

func (k ErrorKind) String() string {
	if k == Transient {
		return "transient"
	}
	return "non_transient"
}

// Transient failure codes reported by sink adapters.
const (
	CodeConnectionRefused = "CONNECTION_REFUSED"
	CodeTimeout           = "TIMEOUT"
	CodeHostUnreachable   = "HOST_UNREACHABLE"
	CodeBrokenPipe        = "BROKEN_PIPE"
	CodeUnknown           = "UNKNOWN"
)

// SinkError is the classified failure a Sink returns from BulkInsert.
type SinkError struct {
	Kind ErrorKind
	Code string
	Err  error
}

func (e *SinkError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("sink %s error %s", e.Kind, e.Code)
	}
	return fmt.Sprintf("sink %s error %s: %v", e.Kind, e.Code, e.Err)
}

func (e *SinkError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as a retryable failure with the given code.
func NewTransientError(code string, err error) *SinkError {
	return &SinkError{Kind: Transient, Code: code, Err: err}
}

// NewNonTransientError wraps err as a failure that must not be retried.
func NewNonTransientError(code string, err error) *SinkError {
	if code == "" {
		code = CodeUnknown
	}
	return &SinkError{Kind: NonTransient, Code: code, Err: err}
}

// ShouldRetry reports whether a failed batch may be re-admitted.
// Only errors classified as Transient qualify; anything unclassified is
// treated as a poison batch.
func ShouldRetry(err error) bool {
	var se *SinkError
	if errors.As(err, &se) {
		return se.Kind == Transient
	}
	return false
}

// ErrorCode returns the classification code of err, or CodeUnknown.
func ErrorCode(err error) string {
	var se *SinkError
	if errors.As(err, &se) && se.Code != "" {
		return se.Code
	}
	return CodeUnknown
}
