package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when no active session matches the id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionFinished is returned for answers submitted after a terminal state.
	ErrSessionFinished = errors.New("session already finished")
	// ErrNoQuestionAvailable indicates the question pool is exhausted for the
	// requested topic and difficulty. Callers must abort the flow, not crash.
	ErrNoQuestionAvailable = errors.New("no question available")
	// ErrNoUser is returned when session creation is attempted without an
	// authenticated user.
	ErrNoUser = errors.New("no authenticated user")
)

// ValidationError marks structurally invalid event or path data. It is fatal to
// the operation and never retried.
type ValidationError struct {
	Subject string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Subject, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// RecoverableError wraps a persistence failure during grading: the in-memory
// session state is intact and the caller may retry the same submission.
type RecoverableError struct {
	Op  string
	Err error
}

func (e *RecoverableError) Error() string {
	return fmt.Sprintf("%s failed (retry possible): %v", e.Op, e.Err)
}

func (e *RecoverableError) Unwrap() error { return e.Err }

// IsRecoverable reports whether err allows the caller to retry the operation.
func IsRecoverable(err error) bool {
	var re *RecoverableError
	return errors.As(err, &re)
}
