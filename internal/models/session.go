package models

import "time"

// TimerState anchors the countdown to server time: the server-issued
// start instant plus the resolved duration.
type TimerState struct {
	DurationSeconds int       `json:"duration_seconds"`
	StartedAt       time.Time `json:"started_at"`
	EndsAt          time.Time `json:"ends_at"`
}

// TimerSnapshot is the per-tick view handed to clients.
type TimerSnapshot struct {
	Active           bool `json:"active"`
	RemainingSeconds int  `json:"remaining_seconds"`
	Warning          bool `json:"warning"`
	Danger           bool `json:"danger"`
	Expired          bool `json:"expired"`
}

// AttemptResult is the displayed submission summary, mapped verbatim
// from the upstream scoring response.
type AttemptResult struct {
	AttemptID        int64             `json:"attempt_id"`
	TotalScore       float64           `json:"total_score"`
	Passed           bool              `json:"passed"`
	Percentage       float64           `json:"percentage"`
	TimeSpentSeconds int               `json:"time_spent_seconds"`
	CorrectCount     int               `json:"correct_count"`
	ScoresByQuestion map[int64]float64 `json:"scores_by_question,omitempty"`
}
