package events

import (
	"time"

	"github.com/ThreeDotsLabs/watermill"
)

// EventType represents the attempt lifecycle events the engine emits
// for downstream consumers (badges, analytics).
type EventType string

const (
	EventAttemptStarted   EventType = "attempt.started"
	EventAttemptResumed   EventType = "attempt.resumed"
	EventAttemptSubmitted EventType = "attempt.submitted"
	EventAttemptExpired   EventType = "attempt.expired"
)

// AttemptEvent is the envelope shared by all lifecycle events.
type AttemptEvent struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Data      interface{} `json:"data"`
}

// Lifecycle event payloads

type AttemptStartedEvent struct {
	AttemptID     int64 `json:"attempt_id"`
	QuizID        int64 `json:"quiz_id"`
	QuestionCount int   `json:"question_count"`
	Timed         bool  `json:"timed"`
	Resumed       bool  `json:"resumed"`
}

type AttemptSubmittedEvent struct {
	AttemptID        int64   `json:"attempt_id"`
	QuizID           int64   `json:"quiz_id"`
	AnsweredCount    int     `json:"answered_count"`
	QuestionCount    int     `json:"question_count"`
	TotalScore       float64 `json:"total_score"`
	Passed           bool    `json:"passed"`
	TimeSpentSeconds int     `json:"time_spent_seconds"`
	AutoSubmitted    bool    `json:"auto_submitted"`
}

type AttemptExpiredEvent struct {
	AttemptID int64     `json:"attempt_id"`
	QuizID    int64     `json:"quiz_id"`
	ExpiredAt time.Time `json:"expired_at"`
}

// NewAttemptEvent builds the envelope around a payload.
func NewAttemptEvent(eventType EventType, data interface{}) *AttemptEvent {
	return &AttemptEvent{
		ID:        watermill.NewUUID(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    "attempt-engine",
		Version:   "1.0",
		Data:      data,
	}
}
