// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/kb-builder/internal/entity"
	"github.com/pdiddy/kb-builder/pkg/types"
)

// ConcatMerger merges chunk results without calling a model. Temporary IDs
// are renumbered so they stay unique across chunks, and entities with the
// same kind, author and text are collapsed into the first occurrence.
type ConcatMerger struct{}

// Commutative reports true: the merged entity set does not depend on order,
// only the temporary numbering does.
func (ConcatMerger) Commutative() bool { return true }

// Merge implements Merger.
func (ConcatMerger) Merge(_ context.Context, results []*types.AnalysisResult) (*types.AnalysisResult, error) {
	m := &merger{seen: make(map[string]int), out: &types.AnalysisResult{}}
	for _, r := range results {
		if r != nil {
			m.add(r)
		}
	}
	return m.out, nil
}

type merger struct {
	out   *types.AnalysisResult
	seen  map[string]int
	count [3]int
}

func dedupKey(kind types.EntityKind, e types.Entity) string {
	text := strings.Join(strings.Fields(strings.ToLower(e.Text)), " ")
	return string(kind) + "|" + entity.NormalizePerson(e.Author) + "|" + text
}

func (m *merger) next(kind types.EntityKind, slot int) string {
	m.count[slot]++
	return fmt.Sprintf("%s%d", kind.Prefix(), m.count[slot])
}

func (m *merger) add(r *types.AnalysisResult) {
	chunkIDs := make(map[string]string)
	lookup := func(id string) string {
		if p, ok := chunkIDs[id]; ok {
			return p
		}
		return id
	}

	// Links are rewritten after the whole chunk is numbered, since a
	// question may point at an answer that appears later in the chunk.
	type pendingLink struct {
		idx int
		ref string
	}
	var qs, as []pendingLink

	for _, q := range r.Questions {
		key := dedupKey(types.KindQuestion, q.Entity)
		if idx, ok := m.seen[key]; ok {
			chunkIDs[q.ID] = m.out.Questions[idx].ID
			qs = append(qs, pendingLink{idx, q.AnsweredBy})
			continue
		}
		id := m.next(types.KindQuestion, 0)
		chunkIDs[q.ID] = id
		q.ID = id
		m.out.Questions = append(m.out.Questions, q)
		idx := len(m.out.Questions) - 1
		m.seen[key] = idx
		qs = append(qs, pendingLink{idx, q.AnsweredBy})
		m.out.Questions[idx].AnsweredBy = ""
	}
	for _, a := range r.Answers {
		key := dedupKey(types.KindAnswer, a.Entity)
		if idx, ok := m.seen[key]; ok {
			chunkIDs[a.ID] = m.out.Answers[idx].ID
			as = append(as, pendingLink{idx, a.AnswersQuestion})
			continue
		}
		id := m.next(types.KindAnswer, 1)
		chunkIDs[a.ID] = id
		a.ID = id
		m.out.Answers = append(m.out.Answers, a)
		idx := len(m.out.Answers) - 1
		m.seen[key] = idx
		as = append(as, pendingLink{idx, a.AnswersQuestion})
		m.out.Answers[idx].AnswersQuestion = ""
	}
	for _, n := range r.Notes {
		key := dedupKey(types.KindNote, n.Entity)
		if idx, ok := m.seen[key]; ok {
			chunkIDs[n.ID] = m.out.Notes[idx].ID
			continue
		}
		id := m.next(types.KindNote, 2)
		chunkIDs[n.ID] = id
		n.ID = id
		m.out.Notes = append(m.out.Notes, n)
		m.seen[key] = len(m.out.Notes) - 1
	}

	for _, p := range qs {
		if p.ref != "" && m.out.Questions[p.idx].AnsweredBy == "" {
			m.out.Questions[p.idx].AnsweredBy = lookup(p.ref)
		}
	}
	for _, p := range as {
		if p.ref != "" && m.out.Answers[p.idx].AnswersQuestion == "" {
			m.out.Answers[p.idx].AnswersQuestion = lookup(p.ref)
		}
	}
}
