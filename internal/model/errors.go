package model

import (
	"errors"
	"fmt"
)

var (
	// ErrLockContention means another worker owns the delivery right now.
	// It is not a job failure.
	ErrLockContention = errors.New("delivery locked by another worker")

	ErrJobNotFound     = errors.New("job not found")
	ErrTargetNotFound  = errors.New("target not found")
	ErrReleaseNotFound = errors.New("release not found")
	ErrNotCancellable  = errors.New("job is not queued")
	ErrNoReceipt       = errors.New("job has no receipt")
)

// ValidationError is fatal: the job fails without retry.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// TransportError wraps any failure raised while talking to a destination.
// Transport errors are retryable under the retry policy.
type TransportError struct {
	Protocol Protocol
	File     string
	Cause    error
}

func (e *TransportError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s transport: %s: %v", e.Protocol, e.File, e.Cause)
	}
	return fmt.Sprintf("%s transport: %v", e.Protocol, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// PermanentFailure is recorded once a job has exhausted its attempts.
type PermanentFailure struct {
	Attempts int
	Last     error
}

func (e *PermanentFailure) Error() string {
	return fmt.Sprintf("delivery failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *PermanentFailure) Unwrap() error {
	return e.Last
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
