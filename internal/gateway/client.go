package gateway

import (
	"context"

	"github.com/edupath/attempt-engine/internal/models"
)

// Client is the engine's view of the upstream LMS. Everything beneath
// these six operations (transport, retries, auth) belongs to the
// implementation.
type Client interface {
	// CheckActiveAttempt reports whether the student already has an
	// in-progress attempt for the quiz.
	CheckActiveAttempt(ctx context.Context, quizID int64) (*models.ActiveAttempt, error)

	// StartAttempt creates a new attempt and returns its section tree.
	StartAttempt(ctx context.Context, quizID int64) (*models.AttemptPayload, error)

	// ResumeAttempt fetches an in-progress attempt, saved answers
	// embedded in the section tree.
	ResumeAttempt(ctx context.Context, attemptID int64) (*models.AttemptPayload, error)

	// GetQuizMeta is the secondary duration lookup used when the
	// attempt payload carries no duration.
	GetQuizMeta(ctx context.Context, quizID int64) (*models.QuizMeta, error)

	// SaveAnswer persists one answer value. Callers treat failures as
	// transient and never surface them.
	SaveAnswer(ctx context.Context, attemptID, questionID int64, value any) error

	// SubmitAttempt finalizes the attempt; scoring happens upstream.
	SubmitAttempt(ctx context.Context, attemptID int64) (*models.SubmitResult, error)
}
