package services

import (
	"errors"
	"fmt"
)

// ===== SESSION ERRORS =====
//
// Failure taxonomy: fatal session errors abandon the session, submit
// errors are surfaced with a retry affordance, persistence errors are
// swallowed at the dispatch layer, and a failed duration lookup only
// degrades the attempt to untimed.

var (
	// Fatal: the session never comes up.
	ErrQuizEmpty    = errors.New("quiz has no questions")
	ErrStartFailed  = errors.New("failed to start attempt")
	ErrResumeFailed = errors.New("failed to resume attempt")

	// Lifecycle errors against a live engine.
	ErrSessionNotFound  = errors.New("attempt session not found")
	ErrSessionSubmitted = errors.New("attempt already submitted")
)

// SubmitError wraps a failed submitAttempt call. The session stays
// alive so the caller can retry without losing answers.
type SubmitError struct {
	AttemptID int64
	Err       error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit failed for attempt %d: %v", e.AttemptID, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// NewSubmitError wraps an upstream submit failure.
func NewSubmitError(attemptID int64, err error) *SubmitError {
	return &SubmitError{AttemptID: attemptID, Err: err}
}

// IsFatalSession reports whether the error means the session was
// abandoned (show message, leave screen).
func IsFatalSession(err error) bool {
	return errors.Is(err, ErrQuizEmpty) ||
		errors.Is(err, ErrStartFailed) ||
		errors.Is(err, ErrResumeFailed)
}

// IsRetryableSubmit reports whether the error is a surfaced submit
// failure the user may retry.
func IsRetryableSubmit(err error) bool {
	var se *SubmitError
	return errors.As(err, &se)
}

// IsNotFound reports whether the error refers to a session the engine
// does not hold.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}
