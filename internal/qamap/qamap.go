// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package qamap links newly analyzed answers and notes to questions that
// already exist in the store. It narrows the candidate questions by area
// and topic overlap, asks the matching collaborator for proposals and
// applies only those at or above the confidence threshold. A matched note
// is promoted to an answer.
package qamap

import (
	"context"
	"sort"
	"strings"

	"github.com/pdiddy/kb-builder/internal/ai"
	"github.com/pdiddy/kb-builder/internal/entity"
	"github.com/pdiddy/kb-builder/internal/logging"
	"github.com/pdiddy/kb-builder/pkg/types"
)

// Promotion records a note that became an answer.
type Promotion struct {
	NoteID     string
	AnswerID   string
	QuestionID string
	Confidence float64
}

// Outcome summarizes one mapping pass.
type Outcome struct {
	Candidates int
	Linked     int
	Promoted   []Promotion
	Skipped    int
}

// Service applies confidence-gated Q&A links.
type Service struct {
	matcher ai.Matcher
	cfg     types.MappingConfig
	log     *logging.Logger
}

// New returns a Service.
func New(matcher ai.Matcher, cfg types.MappingConfig, log *logging.Logger) *Service {
	return &Service{matcher: matcher, cfg: cfg, log: logging.OrNop(log)}
}

// Apply links unlinked answers and promotes matched notes in result.
// It is a no-op when the store holds no questions or nothing is unlinked.
func (s *Service) Apply(ctx context.Context, result *types.AnalysisResult, kctx *types.KnowledgeContext, instructions string) (Outcome, error) {
	var out Outcome
	if kctx == nil || len(kctx.ExistingQuestions) == 0 {
		return out, nil
	}
	pending := Unlinked(result)
	if len(pending) == 0 {
		return out, nil
	}

	candidates := kctx.ExistingQuestions
	if !s.cfg.DisableAreaFilter {
		candidates = Candidates(kctx.ExistingQuestions, pending)
	} else {
		candidates = prioritize(candidates)
	}
	if s.cfg.CandidateLimit > 0 && len(candidates) > s.cfg.CandidateLimit {
		candidates = candidates[:s.cfg.CandidateLimit]
	}
	out.Candidates = len(candidates)
	if len(candidates) == 0 {
		s.log.Debug("no candidate questions share an area or topic", "items", len(pending))
		return out, nil
	}

	s.log.Info("running Q&A mapping", "items", len(pending), "candidates", len(candidates),
		"unanswered", countUnanswered(candidates))
	matches, err := s.matcher.Match(ctx, candidates, pending, instructions)
	if err != nil {
		return out, types.CollaboratorError("matching answers to questions", err)
	}

	known := make(map[string]bool, len(candidates))
	for _, q := range candidates {
		known[q.ID] = true
	}
	best := s.accepted(matches, known, &out)

	for i := range result.Answers {
		a := &result.Answers[i]
		if m, ok := best[a.ID]; ok && a.AnswersQuestion == "" {
			a.AnswersQuestion = m.QuestionID
			out.Linked++
		}
	}

	notes := make([]types.Note, 0, len(result.Notes))
	for _, n := range result.Notes {
		m, ok := best[n.ID]
		if !ok {
			notes = append(notes, n)
			continue
		}
		answer := Promote(n, m.QuestionID, m.Confidence)
		result.Answers = append(result.Answers, answer)
		out.Promoted = append(out.Promoted, Promotion{
			NoteID: n.ID, AnswerID: answer.ID, QuestionID: m.QuestionID, Confidence: m.Confidence,
		})
		s.log.Info("promoted note to answer", "note", n.ID, "answer", answer.ID,
			"question", m.QuestionID, "confidence", m.Confidence)
	}
	result.Notes = notes
	return out, nil
}

// accepted keeps, per item, the highest-confidence proposal at or above the
// threshold that names a candidate question.
func (s *Service) accepted(matches []types.Match, known map[string]bool, out *Outcome) map[string]types.Match {
	threshold := s.cfg.Threshold()
	best := make(map[string]types.Match)
	for _, m := range matches {
		switch {
		case m.Confidence < threshold:
			s.log.Debug("skipping low-confidence mapping", "item", m.ItemID,
				"question", m.QuestionID, "confidence", m.Confidence, "threshold", threshold)
			out.Skipped++
			continue
		case !known[m.QuestionID]:
			s.log.Warn("skipping mapping to unknown question", "item", m.ItemID, "question", m.QuestionID)
			out.Skipped++
			continue
		}
		if prev, ok := best[m.ItemID]; !ok || m.Confidence > prev.Confidence {
			best[m.ItemID] = m
		}
	}
	return best
}

// Promote turns a matched note into an answer. The answer keeps the note's
// metadata, takes an ID derived by swapping the n_ prefix for a_, and uses
// the match confidence as its quality.
func Promote(note types.Note, questionID string, confidence float64) types.Answer {
	id := note.ID
	if strings.HasPrefix(id, types.KindNote.Prefix()) {
		id = types.KindAnswer.Prefix() + strings.TrimPrefix(id, types.KindNote.Prefix())
	}
	e := note.Entity
	e.ID = id
	return types.Answer{
		Entity:          e,
		Quality:         confidence,
		AnswersQuestion: questionID,
		PromotedFrom:    note.ID,
	}
}

// Unlinked returns the answers without a question link and every note.
func Unlinked(result *types.AnalysisResult) []types.PendingItem {
	var items []types.PendingItem
	for i := range result.Answers {
		if result.Answers[i].AnswersQuestion == "" {
			items = append(items, types.PendingItem{Answer: &result.Answers[i]})
		}
	}
	for i := range result.Notes {
		items = append(items, types.PendingItem{Note: &result.Notes[i]})
	}
	return items
}

// Candidates keeps the questions whose area or topics overlap the areas or
// topics of the pending items, unanswered questions first.
func Candidates(questions []types.QuestionSummary, items []types.PendingItem) []types.QuestionSummary {
	labels := make(map[string]bool)
	var topics []string
	for _, it := range items {
		e := it.Base()
		if s := entity.Slugify(e.Area); s != "" {
			labels[s] = true
		}
		for _, t := range e.Topics {
			if s := entity.Slugify(t); s != "" {
				labels[s] = true
				topics = append(topics, s)
			}
		}
	}

	var out []types.QuestionSummary
	for _, q := range questions {
		if overlaps(q, labels, topics) {
			out = append(out, q)
		}
	}
	return prioritize(out)
}

func overlaps(q types.QuestionSummary, labels map[string]bool, topics []string) bool {
	area := entity.Slugify(q.Area)
	if labels[area] {
		return true
	}
	for _, t := range q.Topics {
		if labels[entity.Slugify(t)] {
			return true
		}
	}
	for _, t := range topics {
		if area != "" && hasTokens(area, t) {
			return true
		}
	}
	return false
}

// hasTokens reports whether slug t appears in slug s on "-" boundaries, so
// "go" matches "go-modules" but not "django".
func hasTokens(s, t string) bool {
	return strings.Contains("-"+s+"-", "-"+t+"-")
}

func prioritize(qs []types.QuestionSummary) []types.QuestionSummary {
	out := append([]types.QuestionSummary(nil), qs...)
	sort.SliceStable(out, func(i, j int) bool {
		return !out[i].Answered && out[j].Answered
	})
	return out
}

func countUnanswered(qs []types.QuestionSummary) int {
	n := 0
	for _, q := range qs {
		if !q.Answered {
			n++
		}
	}
	return n
}
