// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package idmap replaces the temporary IDs produced by analysis with
// permanent, store-wide sequential IDs.
package idmap

import "github.com/pdiddy/kb-builder/pkg/types"

// Build allocates permanent IDs for every entity in result, in list order,
// continuing from the maxima in ctx. Entities sharing a temporary ID share
// the permanent ID allocated to the first of them.
func Build(result *types.AnalysisResult, ctx *types.KnowledgeContext) map[string]string {
	m := make(map[string]string)
	next := map[types.EntityKind]int{
		types.KindQuestion: ctx.MaxQuestionID,
		types.KindAnswer:   ctx.MaxAnswerID,
		types.KindNote:     ctx.MaxNoteID,
	}
	assign := func(kind types.EntityKind, id string) {
		if id == "" {
			return
		}
		if _, ok := m[id]; ok {
			return
		}
		next[kind]++
		m[id] = types.PermanentID(kind, next[kind])
	}

	for _, q := range result.Questions {
		assign(types.KindQuestion, q.ID)
	}
	for _, a := range result.Answers {
		assign(types.KindAnswer, a.ID)
	}
	for _, n := range result.Notes {
		assign(types.KindNote, n.ID)
	}
	return m
}

// MapAndUpdate rewrites result in place: own IDs first, then answeredBy and
// answersQuestion by lookup. References the map does not know, such as links
// to entities persisted by earlier batches, are left as they are.
func MapAndUpdate(result *types.AnalysisResult, ctx *types.KnowledgeContext) map[string]string {
	m := Build(result, ctx)
	Apply(result, m)
	return m
}

// Apply rewrites result with an already computed map.
func Apply(result *types.AnalysisResult, m map[string]string) {
	lookup := func(id string) string {
		if p, ok := m[id]; ok {
			return p
		}
		return id
	}

	for i := range result.Questions {
		q := &result.Questions[i]
		q.ID = lookup(q.ID)
		if q.AnsweredBy != "" {
			q.AnsweredBy = lookup(q.AnsweredBy)
		}
	}
	for i := range result.Answers {
		a := &result.Answers[i]
		a.ID = lookup(a.ID)
		if a.AnswersQuestion != "" {
			a.AnswersQuestion = lookup(a.AnswersQuestion)
		}
	}
	for i := range result.Notes {
		result.Notes[i].ID = lookup(result.Notes[i].ID)
	}
}
