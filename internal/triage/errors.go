package triage

import (
	"errors"
	"fmt"
)

// FailureClass partitions triage failures by retry policy.
type FailureClass int

const (
	// ClassFatal failures abort the run immediately: authentication,
	// network, rate limits, empty responses. Another attempt within the
	// same request cannot help.
	ClassFatal FailureClass = iota

	// ClassRecoverable failures are worth one more attempt: the model
	// produced output that failed schema validation or was malformed.
	ClassRecoverable
)

// Error is a classified triage failure.
type Error struct {
	Class FailureClass
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Recoverable tags a failure as retryable. err may be nil.
func Recoverable(msg string, err error) error {
	return &Error{Class: ClassRecoverable, Msg: msg, Err: err}
}

// Fatal tags a failure as non-retryable. err may be nil.
func Fatal(msg string, err error) error {
	return &Error{Class: ClassFatal, Msg: msg, Err: err}
}

// ClassOf reports the failure class of err. Errors that carry no
// classification are treated as fatal.
func ClassOf(err error) FailureClass {
	var te *Error
	if errors.As(err, &te) {
		return te.Class
	}
	return ClassFatal
}

// StorageError marks the case where triage itself succeeded but persisting
// the incident failed. Callers distinguish it from triage failure because
// the two are actionable differently.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("incident save failed: %v", e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// ErrLogNotFound is returned when an operation references a log entry that
// does not exist.
var ErrLogNotFound = errors.New("log entry not found")

// ErrEmptyRawText rejects ingestion of empty or whitespace-only input.
var ErrEmptyRawText = errors.New("rawText must not be empty")
