package services

import (
	"github.com/edupath/attempt-engine/internal/models"
)

// ===== QUESTION NORMALIZER =====
//
// Flattens the dual-shape section tree into one ordered question list.
// Wire-layout branching lives here and nowhere else: the tagged item
// layout is tried first, the legacy questions/groups layout is the
// fallback when a section carries no items.

// NormalizeSections produces the ordered, linear question list for an
// attempt. Sections are walked in order; within a section, standalone
// items and group members appear in the order encountered. A nil or
// empty tree yields an empty list.
func NormalizeSections(tree models.SectionTree) []models.Question {
	var out []models.Question
	for i := range tree {
		section := &tree[i]
		if len(section.Items) > 0 {
			for _, item := range section.Items {
				switch {
				case item.Question != nil:
					out = append(out, item.Question.ToQuestion())
				case item.Group != nil:
					for j := range item.Group.Questions {
						out = append(out, item.Group.Questions[j].ToQuestion())
					}
				}
			}
			continue
		}
		for j := range section.Questions {
			out = append(out, section.Questions[j].ToQuestion())
		}
		for g := range section.Groups {
			for j := range section.Groups[g].Questions {
				out = append(out, section.Groups[g].Questions[j].ToQuestion())
			}
		}
	}
	return out
}

// SavedAnswers rebuilds the question-id to saved-answer map from the
// same tree, with the same dual-shape tolerance. Null saved values are
// treated as unanswered and omitted; undecodable values are skipped
// rather than failing the whole resume.
func SavedAnswers(tree models.SectionTree) map[int64]models.AnswerValue {
	out := make(map[int64]models.AnswerValue)
	collect := func(w *models.WireQuestion) {
		if len(w.Answer) == 0 {
			return
		}
		value, err := models.DecodeAnswerValue(w.EffectiveType(), w.Answer)
		if err != nil || value == nil {
			return
		}
		out[w.ID] = value
	}

	for i := range tree {
		section := &tree[i]
		if len(section.Items) > 0 {
			for _, item := range section.Items {
				switch {
				case item.Question != nil:
					collect(item.Question)
				case item.Group != nil:
					for j := range item.Group.Questions {
						collect(&item.Group.Questions[j])
					}
				}
			}
			continue
		}
		for j := range section.Questions {
			collect(&section.Questions[j])
		}
		for g := range section.Groups {
			for j := range section.Groups[g].Questions {
				collect(&section.Groups[g].Questions[j])
			}
		}
	}
	return out
}
