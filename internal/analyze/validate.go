// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyze

import (
	"github.com/pdiddy/kb-builder/internal/logging"
	"github.com/pdiddy/kb-builder/pkg/types"
)

// Discards counts entities dropped by ValidateAndClean.
type Discards struct {
	Questions int
	Answers   int
	Notes     int
}

// Total returns the number of dropped entities.
func (d Discards) Total() int {
	return d.Questions + d.Answers + d.Notes
}

// ValidateAndClean removes, in place, every entity missing author, date or
// area. Each discard is logged; an empty result is not an error.
func ValidateAndClean(result *types.AnalysisResult, log *logging.Logger) Discards {
	log = logging.OrNop(log)
	var d Discards

	discard := func(kind types.EntityKind, e types.Entity) {
		log.Warn("discarding entity with missing metadata",
			"kind", kind, "id", e.ID, "author", e.Author, "missing", e.MissingField())
	}

	questions := result.Questions[:0]
	for _, q := range result.Questions {
		if q.HasRequiredMetadata() {
			questions = append(questions, q)
			continue
		}
		discard(types.KindQuestion, q.Entity)
		d.Questions++
	}
	result.Questions = questions

	answers := result.Answers[:0]
	for _, a := range result.Answers {
		if a.HasRequiredMetadata() {
			answers = append(answers, a)
			continue
		}
		discard(types.KindAnswer, a.Entity)
		d.Answers++
	}
	result.Answers = answers

	notes := result.Notes[:0]
	for _, n := range result.Notes {
		if n.HasRequiredMetadata() {
			notes = append(notes, n)
			continue
		}
		discard(types.KindNote, n.Entity)
		d.Notes++
	}
	result.Notes = notes

	log.Info("validated analysis result",
		"questions", len(result.Questions), "answers", len(result.Answers), "notes", len(result.Notes),
		"discardedQuestions", d.Questions, "discardedAnswers", d.Answers, "discardedNotes", d.Notes)
	return d
}
