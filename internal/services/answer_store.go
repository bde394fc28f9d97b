package services

import (
	"strings"

	"github.com/edupath/attempt-engine/internal/models"
)

// ===== ANSWER STORE + TYPE EDITORS =====
//
// The store owns the canonical in-memory answer per question and
// translates one user interaction into (new canonical value, wire
// value). The caller persists the wire value fire-and-forget; the
// store never waits on the network. Every capture against an unknown
// question id is a no-op.

// AnswerStore holds the per-question answers of one attempt session.
// Not safe for concurrent use; the owning session serializes access.
type AnswerStore struct {
	questions map[int64]*models.Question
	order     []int64
	values    map[int64]models.AnswerValue

	// Transient editor state, never transmitted.
	pendingLeft  map[int64]int64   // matching: armed left option per question
	workingOrder map[int64][]int64 // ordering: current sequence per question
}

// NewAnswerStore builds an empty store over the normalized question
// list. Ordering questions get their working sequence initialized to
// the server-provided option order.
func NewAnswerStore(questions []models.Question) *AnswerStore {
	s := &AnswerStore{
		questions:    make(map[int64]*models.Question, len(questions)),
		order:        make([]int64, 0, len(questions)),
		values:       make(map[int64]models.AnswerValue),
		pendingLeft:  make(map[int64]int64),
		workingOrder: make(map[int64][]int64),
	}
	for i := range questions {
		q := &questions[i]
		if _, dup := s.questions[q.ID]; dup {
			continue
		}
		s.questions[q.ID] = q
		s.order = append(s.order, q.ID)
		if q.Type.Effective() == models.Ordering {
			s.workingOrder[q.ID] = optionIDs(q)
		}
	}
	return s
}

// Seed rehydrates the store from previously saved answers (resume).
// FillBlank single-string values are re-split across the question's
// blank slots; ordering sequences are re-resolved against the current
// option set, appending options missing from the saved sequence.
func (s *AnswerStore) Seed(saved map[int64]models.AnswerValue) {
	for qid, value := range saved {
		q, ok := s.questions[qid]
		if !ok || value == nil {
			continue
		}
		switch q.Type.Effective() {
		case models.FillBlank:
			fb, ok := value.(models.FillBlankAnswer)
			if !ok {
				continue
			}
			s.values[qid] = rehydrateBlanks(q, fb)
		case models.Ordering:
			oa, ok := value.(models.OrderingAnswer)
			if !ok {
				continue
			}
			resolved := resolveOrder(q, oa.Order)
			s.workingOrder[qid] = resolved
			s.values[qid] = models.OrderingAnswer{Order: resolved}
		case models.Matching:
			ma, ok := value.(models.MatchingAnswer)
			if !ok {
				continue
			}
			if ma.Pairs == nil {
				ma.Pairs = map[int64]int64{}
			}
			s.values[qid] = ma
		default:
			if value.Type().Effective() == q.Type.Effective() ||
				q.Type.Effective() == models.SingleChoice || q.Type.Effective() == models.TrueFalse {
				s.values[qid] = value
			}
		}
	}
}

// Value returns the current canonical answer for a question.
func (s *AnswerStore) Value(qid int64) (models.AnswerValue, bool) {
	v, ok := s.values[qid]
	return v, ok
}

// Answered reports whether the question counts as answered for
// progress purposes.
func (s *AnswerStore) Answered(qid int64) bool {
	v, ok := s.values[qid]
	return ok && v.Answered()
}

// AnsweredCount returns how many questions currently count as answered.
func (s *AnswerStore) AnsweredCount() int {
	n := 0
	for _, qid := range s.order {
		if s.Answered(qid) {
			n++
		}
	}
	return n
}

// QuestionCount returns the number of questions the store tracks.
func (s *AnswerStore) QuestionCount() int { return len(s.order) }

// ===== SINGLE CHOICE / TRUE-FALSE =====

// SelectOption replaces the stored value with the chosen option id
// unconditionally. Unknown question types capture here as well.
func (s *AnswerStore) SelectOption(qid, optionID int64) (any, bool) {
	q, ok := s.questions[qid]
	if !ok {
		return nil, false
	}
	switch q.Type.Effective() {
	case models.SingleChoice, models.TrueFalse:
	default:
		return nil, false
	}
	value := models.ChoiceAnswer{OptionID: optionID}
	s.values[qid] = value
	return value.Wire(), true
}

// ===== MULTIPLE ANSWERS =====

// ToggleOption adds the option to the selected set, or removes it when
// already present. Toggling is idempotent end to end.
func (s *AnswerStore) ToggleOption(qid, optionID int64) (any, bool) {
	q, ok := s.questions[qid]
	if !ok || q.Type.Effective() != models.MultipleAnswers {
		return nil, false
	}
	current, _ := s.values[qid].(models.MultiAnswer)
	var next []int64
	if current.Contains(optionID) {
		for _, id := range current.OptionIDs {
			if id != optionID {
				next = append(next, id)
			}
		}
	} else {
		next = append(append(next, current.OptionIDs...), optionID)
	}
	value := models.MultiAnswer{OptionIDs: next}
	s.values[qid] = value
	return value.Wire(), true
}

// ===== FILL IN BLANK =====

// SetBlank updates a single slot. Slots are created on first edit, one
// per blank marker in the question text (minimum one).
func (s *AnswerStore) SetBlank(qid int64, slot int, text string) (any, bool) {
	q, ok := s.questions[qid]
	if !ok || q.Type.Effective() != models.FillBlank {
		return nil, false
	}
	count := q.BlankCount()
	if slot < 0 || slot >= count {
		return nil, false
	}
	current, has := s.values[qid].(models.FillBlankAnswer)
	if !has || len(current.Slots) != count {
		current = models.FillBlankAnswer{Slots: make([]string, count)}
	}
	slots := make([]string, count)
	copy(slots, current.Slots)
	slots[slot] = text
	value := models.FillBlankAnswer{Slots: slots}
	s.values[qid] = value
	return value.Wire(), true
}

// ===== MATCHING =====

// SelectMatchLeft drives the left half of the two-phase protocol:
// tapping a matched left item removes its pairing (and transmits);
// tapping the armed left item disarms it; tapping any other left item
// arms it as pending. Only the removal changes the mapping.
func (s *AnswerStore) SelectMatchLeft(qid, optionID int64) (any, bool) {
	q, ok := s.questions[qid]
	if !ok || q.Type.Effective() != models.Matching {
		return nil, false
	}
	if !inColumn(leftColumn(q), optionID) {
		return nil, false
	}
	current := s.matchingValue(qid)
	if _, matched := current.Pairs[optionID]; matched {
		delete(current.Pairs, optionID)
		delete(s.pendingLeft, qid)
		s.values[qid] = current
		return current.Wire(), true
	}
	if armed, has := s.pendingLeft[qid]; has && armed == optionID {
		delete(s.pendingLeft, qid)
		return nil, false
	}
	s.pendingLeft[qid] = optionID
	return nil, false
}

// SelectMatchRight commits the pending pair. A right item already
// matched to some left item is ignored; without an armed left item the
// tap is a no-op.
func (s *AnswerStore) SelectMatchRight(qid, optionID int64) (any, bool) {
	q, ok := s.questions[qid]
	if !ok || q.Type.Effective() != models.Matching {
		return nil, false
	}
	if !inColumn(rightColumn(q), optionID) {
		return nil, false
	}
	left, armed := s.pendingLeft[qid]
	if !armed {
		return nil, false
	}
	current := s.matchingValue(qid)
	if current.RightUsed(optionID) {
		return nil, false
	}
	current.Pairs[left] = optionID
	delete(s.pendingLeft, qid)
	s.values[qid] = current
	return current.Wire(), true
}

// RemoveMatch drops an existing pairing directly.
func (s *AnswerStore) RemoveMatch(qid, leftID int64) (any, bool) {
	q, ok := s.questions[qid]
	if !ok || q.Type.Effective() != models.Matching {
		return nil, false
	}
	current := s.matchingValue(qid)
	if _, matched := current.Pairs[leftID]; !matched {
		return nil, false
	}
	delete(current.Pairs, leftID)
	s.values[qid] = current
	return current.Wire(), true
}

// PendingLeft returns the armed left option, if any.
func (s *AnswerStore) PendingLeft(qid int64) (int64, bool) {
	id, ok := s.pendingLeft[qid]
	return id, ok
}

// MatchingProgress reports matched pairs out of the left column size.
func (s *AnswerStore) MatchingProgress(qid int64) (matched, total int) {
	q, ok := s.questions[qid]
	if !ok || q.Type.Effective() != models.Matching {
		return 0, 0
	}
	current := s.matchingValue(qid)
	return len(current.Pairs), len(leftColumn(q))
}

// MatchedPairs returns a copy of the current mapping for rendering.
func (s *AnswerStore) MatchedPairs(qid int64) map[int64]int64 {
	current := s.matchingValue(qid)
	out := make(map[int64]int64, len(current.Pairs))
	for l, r := range current.Pairs {
		out[l] = r
	}
	return out
}

func (s *AnswerStore) matchingValue(qid int64) models.MatchingAnswer {
	if v, ok := s.values[qid].(models.MatchingAnswer); ok && v.Pairs != nil {
		return v
	}
	return models.MatchingAnswer{Pairs: map[int64]int64{}}
}

// ===== ORDERING =====

// WorkingOrder returns the current sequence for rendering.
func (s *AnswerStore) WorkingOrder(qid int64) []int64 {
	seq, ok := s.workingOrder[qid]
	if !ok {
		return nil
	}
	out := make([]int64, len(seq))
	copy(out, seq)
	return out
}

// MoveUp swaps the item at index with its predecessor. Moving the
// first item is a no-op. Each effective move transmits the full list.
func (s *AnswerStore) MoveUp(qid int64, index int) (any, bool) {
	return s.swap(qid, index-1, index)
}

// MoveDown swaps the item at index with its successor. Moving the last
// item is a no-op.
func (s *AnswerStore) MoveDown(qid int64, index int) (any, bool) {
	return s.swap(qid, index, index+1)
}

func (s *AnswerStore) swap(qid int64, i, j int) (any, bool) {
	q, ok := s.questions[qid]
	if !ok || q.Type.Effective() != models.Ordering {
		return nil, false
	}
	seq := s.workingOrder[qid]
	if i < 0 || j >= len(seq) {
		return nil, false
	}
	seq[i], seq[j] = seq[j], seq[i]
	value := models.OrderingAnswer{Order: append([]int64(nil), seq...)}
	s.values[qid] = value
	return value.Wire(), true
}

// ===== HELPERS =====

func optionIDs(q *models.Question) []int64 {
	out := make([]int64, len(q.Options))
	for i, o := range q.Options {
		out[i] = o.ID
	}
	return out
}

// resolveOrder maps a saved id sequence back onto the current option
// set: saved ids that still exist keep their order, options missing
// from the saved sequence are appended in server order.
func resolveOrder(q *models.Question, saved []int64) []int64 {
	var out []int64
	used := make(map[int64]bool, len(saved))
	for _, id := range saved {
		if _, ok := q.OptionByID(id); ok && !used[id] {
			out = append(out, id)
			used[id] = true
		}
	}
	for _, o := range q.Options {
		if !used[o.ID] {
			out = append(out, o.ID)
		}
	}
	return out
}

// rehydrateBlanks spreads a saved single-string value across the
// question's blank slots, splitting the legacy comma-joined form when
// the question has several blanks.
func rehydrateBlanks(q *models.Question, saved models.FillBlankAnswer) models.FillBlankAnswer {
	count := q.BlankCount()
	slots := make([]string, count)
	switch {
	case len(saved.Slots) == count:
		copy(slots, saved.Slots)
	case len(saved.Slots) == 1 && count > 1:
		parts := strings.Split(saved.Slots[0], ", ")
		for i := 0; i < count && i < len(parts); i++ {
			slots[i] = parts[i]
		}
	default:
		for i := 0; i < count && i < len(saved.Slots); i++ {
			slots[i] = saved.Slots[i]
		}
	}
	return models.FillBlankAnswer{Slots: slots}
}

func leftColumn(q *models.Question) []models.Option {
	left, _ := q.MatchingPartition()
	return left
}

func rightColumn(q *models.Question) []models.Option {
	_, right := q.MatchingPartition()
	return right
}

func inColumn(col []models.Option, id int64) bool {
	for _, o := range col {
		if o.ID == id {
			return true
		}
	}
	return false
}
