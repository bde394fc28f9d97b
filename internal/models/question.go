package models

import "strings"

// QuestionType is the integer-coded question type used on the wire.
// The numeric code is authoritative; unrecognized codes are rendered
// and captured like SingleChoice.
type QuestionType int

const (
	SingleChoice    QuestionType = 1
	MultipleAnswers QuestionType = 2
	TrueFalse       QuestionType = 3
	FillBlank       QuestionType = 4
	Matching        QuestionType = 5
	Ordering        QuestionType = 6
)

func (t QuestionType) Valid() bool {
	return t >= SingleChoice && t <= Ordering
}

// Effective collapses unknown codes onto SingleChoice so the engine
// never branches on a code it does not know.
func (t QuestionType) Effective() QuestionType {
	if !t.Valid() {
		return SingleChoice
	}
	return t
}

func (t QuestionType) String() string {
	switch t {
	case SingleChoice:
		return "single_choice"
	case MultipleAnswers:
		return "multiple_answers"
	case TrueFalse:
		return "true_false"
	case FillBlank:
		return "fill_blank"
	case Matching:
		return "matching"
	case Ordering:
		return "ordering"
	default:
		return "unknown"
	}
}

// BlankMarker marks one fill-in slot inside a FillBlank question text.
const BlankMarker = "[...]"

// Option is one selectable answer option.
// IsCorrect is a partition hint for Matching columns only, never shown.
type Option struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"-"`
}

// MatchingColumns is the decoded metadataJson payload of a Matching
// question: the intended left/right column texts.
type MatchingColumns struct {
	Left  []string `json:"left"`
	Right []string `json:"right"`
}

// Question is the engine's normalized question record, independent of
// the wire layout it was parsed from.
type Question struct {
	ID       int64            `json:"id"`
	Text     string           `json:"text"`
	Type     QuestionType     `json:"type"`
	Points   *float64         `json:"points,omitempty"`
	Options  []Option         `json:"options"`
	Matching *MatchingColumns `json:"matching,omitempty"`
}

// BlankCount returns the number of fill-in slots for a FillBlank
// question. A text without markers still gets one freeform slot.
func (q *Question) BlankCount() int {
	n := strings.Count(q.Text, BlankMarker)
	if n < 1 {
		return 1
	}
	return n
}

// OptionByID returns the option with the given id, if any.
func (q *Question) OptionByID(id int64) (Option, bool) {
	for _, o := range q.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// MatchingPartition splits the options into left and right columns.
// Resolution order: metadataJson column texts, then the IsCorrect hint
// (correct = left), then a naive half/half split.
func (q *Question) MatchingPartition() (left, right []Option) {
	if q.Matching != nil {
		leftTexts := make(map[string]bool, len(q.Matching.Left))
		for _, t := range q.Matching.Left {
			leftTexts[t] = true
		}
		rightTexts := make(map[string]bool, len(q.Matching.Right))
		for _, t := range q.Matching.Right {
			rightTexts[t] = true
		}
		for _, o := range q.Options {
			switch {
			case leftTexts[o.Text]:
				left = append(left, o)
			case rightTexts[o.Text]:
				right = append(right, o)
			}
		}
		if len(left) > 0 && len(right) > 0 {
			return left, right
		}
		left, right = nil, nil
	}

	var hasCorrect, hasIncorrect bool
	for _, o := range q.Options {
		if o.IsCorrect {
			hasCorrect = true
		} else {
			hasIncorrect = true
		}
	}
	if hasCorrect && hasIncorrect {
		for _, o := range q.Options {
			if o.IsCorrect {
				left = append(left, o)
			} else {
				right = append(right, o)
			}
		}
		return left, right
	}

	half := len(q.Options) / 2
	return append(left, q.Options[:half]...), append(right, q.Options[half:]...)
}
