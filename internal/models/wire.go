package models

import (
	"encoding/json"
	"strconv"
	"time"
)

// ===== UPSTREAM WIRE SHAPES =====
//
// The upstream LMS delivers questions in two section layouts: a legacy
// shape (section.questions plus section.groups[].questions) and a newer
// tagged-item shape (section.items[] with a type discriminator). Both
// are accepted here and nowhere else; the normalizer flattens them into
// []Question immediately.

// SectionTree is the root of either section layout.
type SectionTree []Section

// Section carries both layouts; Items takes precedence when present.
type Section struct {
	Items     []SectionItem  `json:"items,omitempty"`
	Questions []WireQuestion `json:"questions,omitempty"`
	Groups    []WireGroup    `json:"groups,omitempty"`
}

// WireGroup wraps a run of grouped questions. The wrapper itself is
// never surfaced as a question.
type WireGroup struct {
	Questions []WireQuestion `json:"questions"`
}

// SectionItem is the tagged union of the newer layout: exactly one of
// Question or Group is set after decoding. Unrecognized tags decode to
// neither and are skipped downstream.
type SectionItem struct {
	Question *WireQuestion
	Group    *WireGroup
}

func (it *SectionItem) UnmarshalJSON(data []byte) error {
	var head struct {
		Type json.RawMessage `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	var tag string
	if len(head.Type) > 0 {
		// The discriminator is a string; a bare number in the type slot
		// means the item is an inline question carrying its own type code.
		if err := json.Unmarshal(head.Type, &tag); err != nil {
			tag = "question"
		}
	}

	switch tag {
	case "group":
		var g WireGroup
		if err := json.Unmarshal(data, &g); err != nil {
			return err
		}
		it.Group = &g
	case "question", "":
		var q WireQuestion
		if err := json.Unmarshal(data, &q); err != nil {
			return err
		}
		it.Question = &q
	default:
		// Unknown tag: tolerated, surfaced as nothing.
	}
	return nil
}

// TypeCode decodes the int-coded question type, tolerating numeric
// strings and falling back to 0 (rendered as SingleChoice) for
// anything else, including the "question" discriminator that occupies
// the same slot in the tagged-item layout.
type TypeCode QuestionType

func (c *TypeCode) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*c = TypeCode(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if n, perr := strconv.Atoi(s); perr == nil {
			*c = TypeCode(n)
			return nil
		}
	}
	*c = 0
	return nil
}

// WireQuestion is the upstream question record. Answer carries the
// previously saved answer when the tree comes from resumeAttempt; null
// or absent means not yet answered. QuestionType, when present,
// overrides Type (the tagged-item layout uses the type slot for its
// discriminator).
type WireQuestion struct {
	ID           int64           `json:"questionId"`
	Text         string          `json:"questionText"`
	Type         TypeCode        `json:"type"`
	QuestionType *TypeCode       `json:"questionType,omitempty"`
	Points       *float64        `json:"points,omitempty"`
	Answers      []WireOption    `json:"answers"`
	MetadataJSON string          `json:"metadataJson,omitempty"`
	Answer       json.RawMessage `json:"answer,omitempty"`
}

// WireOption is the upstream option record.
type WireOption struct {
	ID        int64 `json:"answerId"`
	Text      string `json:"answerText"`
	IsCorrect *bool `json:"isCorrect,omitempty"`
}

// EffectiveType resolves the question type across both layouts.
func (w *WireQuestion) EffectiveType() QuestionType {
	if w.QuestionType != nil {
		return QuestionType(*w.QuestionType)
	}
	return QuestionType(w.Type)
}

// ToQuestion converts the wire record into the engine's question model,
// decoding metadataJson when it carries matching columns. Malformed
// metadata degrades to nil (partition falls back to option hints).
func (w *WireQuestion) ToQuestion() Question {
	q := Question{
		ID:     w.ID,
		Text:   w.Text,
		Type:   w.EffectiveType(),
		Points: w.Points,
	}
	for _, o := range w.Answers {
		opt := Option{ID: o.ID, Text: o.Text}
		if o.IsCorrect != nil {
			opt.IsCorrect = *o.IsCorrect
		}
		q.Options = append(q.Options, opt)
	}
	if w.MetadataJSON != "" {
		var cols MatchingColumns
		if err := json.Unmarshal([]byte(w.MetadataJSON), &cols); err == nil {
			if len(cols.Left) > 0 || len(cols.Right) > 0 {
				q.Matching = &cols
			}
		}
	}
	return q
}

// ===== UPSTREAM PAYLOADS =====

// ActiveAttempt is the checkActiveAttempt response.
type ActiveAttempt struct {
	HasActiveAttempt bool  `json:"hasActiveAttempt"`
	AttemptID        int64 `json:"attemptId,omitempty"`
}

// AttemptPayload is the startAttempt / resumeAttempt response.
// DurationMinutes and EndTime are both optional; absence of both sends
// the controller to the secondary quiz-meta lookup.
type AttemptPayload struct {
	AttemptID       int64       `json:"attemptId"`
	QuizID          int64       `json:"quizId,omitempty"`
	StartedAt       time.Time   `json:"startedAt"`
	EndTime         *time.Time  `json:"endTime,omitempty"`
	DurationMinutes *int        `json:"duration,omitempty"`
	Sections        SectionTree `json:"sections"`
}

// QuizMeta is the secondary duration lookup response.
type QuizMeta struct {
	DurationMinutes *int `json:"duration,omitempty"`
}

// SubmitResult is the submitAttempt response. Scores are computed
// upstream only; the engine just relays them.
type SubmitResult struct {
	TotalScore       float64           `json:"totalScore"`
	IsPassed         bool              `json:"isPassed"`
	Percentage       float64           `json:"percentage"`
	TimeSpentSeconds int               `json:"timeSpentSeconds"`
	ScoresByQuestion map[int64]float64 `json:"scoresByQuestion"`
}
