package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrNoActiveSession = errors.New("no active session")
	ErrStorage         = errors.New("storage failure")
	ErrScheduling      = errors.New("scheduling failure")
	ErrTabUnreachable  = errors.New("tab unreachable")
	ErrUnknownAction   = errors.New("unknown action")
)

// ValidationError rejects a request before any state is touched. Message is
// the text reported back to the presentation layer.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// StorageError reports a durable store operation that kept failing after the
// retry budget was spent.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// SchedulingError reports a wake timer that could not be armed.
type SchedulingError struct {
	Name string
	Err  error
}

func (e *SchedulingError) Error() string {
	return fmt.Sprintf("schedule %s: %v", e.Name, e.Err)
}

func (e *SchedulingError) Unwrap() error {
	return e.Err
}

func (e *SchedulingError) Is(target error) bool {
	return target == ErrScheduling
}

// Message returns the caller-facing text for err.
func Message(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Message
	}
	if errors.Is(err, ErrStorage) {
		return "Storage transaction failed after retries"
	}
	return err.Error()
}
