package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// AnswerValue is the canonical in-memory answer for one question.
// Wire() yields the value transmitted to saveAnswer, whose shape the
// upstream contract fixes per question type.
type AnswerValue interface {
	Type() QuestionType
	Wire() any
	// Answered reports whether the value counts toward attempt progress.
	Answered() bool
}

// ChoiceAnswer holds the selected option of SingleChoice and TrueFalse
// questions (and of unknown types captured as SingleChoice).
type ChoiceAnswer struct {
	OptionID int64
}

func (a ChoiceAnswer) Type() QuestionType { return SingleChoice }
func (a ChoiceAnswer) Wire() any          { return a.OptionID }
func (a ChoiceAnswer) Answered() bool     { return true }

// MultiAnswer holds the selected option set of a MultipleAnswers
// question. Stored as a slice for transmission but kept duplicate-free.
type MultiAnswer struct {
	OptionIDs []int64
}

func (a MultiAnswer) Type() QuestionType { return MultipleAnswers }

func (a MultiAnswer) Wire() any {
	out := make([]int64, len(a.OptionIDs))
	copy(out, a.OptionIDs)
	return out
}

func (a MultiAnswer) Answered() bool { return len(a.OptionIDs) > 0 }

// Contains reports set membership.
func (a MultiAnswer) Contains(id int64) bool {
	for _, v := range a.OptionIDs {
		if v == id {
			return true
		}
	}
	return false
}

// FillBlankAnswer holds one string per blank slot.
type FillBlankAnswer struct {
	Slots []string
}

func (a FillBlankAnswer) Type() QuestionType { return FillBlank }

// Wire serializes a single slot as its trimmed content and multiple
// slots as a comma-joined string. The join is a legacy upstream
// contract, not a storage format.
func (a FillBlankAnswer) Wire() any {
	if len(a.Slots) == 1 {
		return strings.TrimSpace(a.Slots[0])
	}
	trimmed := make([]string, len(a.Slots))
	for i, s := range a.Slots {
		trimmed[i] = strings.TrimSpace(s)
	}
	return strings.Join(trimmed, ", ")
}

func (a FillBlankAnswer) Answered() bool {
	for _, s := range a.Slots {
		if strings.TrimSpace(s) != "" {
			return true
		}
	}
	return false
}

// MatchingAnswer maps left option ids to right option ids. Partial
// mappings are normal mid-session.
type MatchingAnswer struct {
	Pairs map[int64]int64
}

func (a MatchingAnswer) Type() QuestionType { return Matching }

func (a MatchingAnswer) Wire() any {
	out := make(map[string]int64, len(a.Pairs))
	for l, r := range a.Pairs {
		out[strconv.FormatInt(l, 10)] = r
	}
	return out
}

func (a MatchingAnswer) Answered() bool { return len(a.Pairs) > 0 }

// RightUsed reports whether a right option is already matched to some left.
func (a MatchingAnswer) RightUsed(rightID int64) bool {
	for _, r := range a.Pairs {
		if r == rightID {
			return true
		}
	}
	return false
}

// OrderingAnswer is the user's chosen option sequence.
type OrderingAnswer struct {
	Order []int64
}

func (a OrderingAnswer) Type() QuestionType { return Ordering }

func (a OrderingAnswer) Wire() any {
	out := make([]int64, len(a.Order))
	copy(out, a.Order)
	return out
}

func (a OrderingAnswer) Answered() bool { return len(a.Order) > 0 }

// DecodeAnswerValue parses a previously saved wire answer for a
// question of the given type. A null value means "not yet answered"
// and decodes to nil without error.
func DecodeAnswerValue(t QuestionType, raw json.RawMessage) (AnswerValue, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	switch t.Effective() {
	case SingleChoice, TrueFalse:
		var id int64
		if err := json.Unmarshal(raw, &id); err != nil {
			// Some backends send option ids as strings.
			var s string
			if serr := json.Unmarshal(raw, &s); serr != nil {
				return nil, fmt.Errorf("decode choice answer: %w", err)
			}
			parsed, perr := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
			if perr != nil {
				return nil, fmt.Errorf("decode choice answer: %w", perr)
			}
			id = parsed
		}
		return ChoiceAnswer{OptionID: id}, nil

	case MultipleAnswers:
		var ids []int64
		if err := json.Unmarshal(raw, &ids); err != nil {
			return nil, fmt.Errorf("decode multi answer: %w", err)
		}
		return MultiAnswer{OptionIDs: dedupe(ids)}, nil

	case FillBlank:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("decode fill-blank answer: %w", err)
		}
		return FillBlankAnswer{Slots: []string{s}}, nil

	case Matching:
		var pairs map[int64]int64
		if err := json.Unmarshal(raw, &pairs); err != nil {
			return nil, fmt.Errorf("decode matching answer: %w", err)
		}
		if pairs == nil {
			pairs = map[int64]int64{}
		}
		return MatchingAnswer{Pairs: pairs}, nil

	case Ordering:
		var order []int64
		if err := json.Unmarshal(raw, &order); err != nil {
			return nil, fmt.Errorf("decode ordering answer: %w", err)
		}
		return OrderingAnswer{Order: order}, nil
	}

	return nil, fmt.Errorf("decode answer: unsupported question type %d", t)
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
