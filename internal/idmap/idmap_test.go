// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package idmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/kb-builder/pkg/types"
)

func q(id, answeredBy string) types.Question {
	return types.Question{Entity: types.Entity{ID: id}, AnsweredBy: answeredBy}
}

func a(id, answers string) types.Answer {
	return types.Answer{Entity: types.Entity{ID: id}, AnswersQuestion: answers}
}

func TestMapAndUpdateContinuesFromMax(t *testing.T) {
	result := &types.AnalysisResult{
		Questions: []types.Question{q("q_1", "a_1"), q("q_2", "")},
		Answers:   []types.Answer{a("a_1", "q_1"), a("a_2", "q_0003")},
		Notes:     []types.Note{{Entity: types.Entity{ID: "n_1"}}},
	}
	ctx := &types.KnowledgeContext{MaxQuestionID: 3, MaxAnswerID: 7, MaxNoteID: 0}

	m := MapAndUpdate(result, ctx)

	assert.Equal(t, "q_0004", m["q_1"])
	assert.Equal(t, "q_0005", result.Questions[1].ID)
	assert.Equal(t, "a_0008", result.Questions[0].AnsweredBy)
	assert.Equal(t, "a_0008", result.Answers[0].ID)
	assert.Equal(t, "q_0004", result.Answers[0].AnswersQuestion)
	assert.Equal(t, "a_0009", result.Answers[1].ID)
	assert.Equal(t, "q_0003", result.Answers[1].AnswersQuestion, "persisted reference untouched")
	assert.Equal(t, "n_0001", result.Notes[0].ID)
}

func TestSharedTemporaryIDResolvesOnce(t *testing.T) {
	result := &types.AnalysisResult{
		Questions: []types.Question{q("q_1", ""), q("q_1", ""), q("q_2", "")},
		Answers:   []types.Answer{a("a_1", "q_1"), a("a_2", "q_1")},
	}
	MapAndUpdate(result, &types.KnowledgeContext{})

	assert.Equal(t, "q_0001", result.Questions[0].ID)
	assert.Equal(t, result.Questions[0].ID, result.Questions[1].ID)
	assert.Equal(t, "q_0002", result.Questions[2].ID)
	assert.Equal(t, "q_0001", result.Answers[0].AnswersQuestion)
	assert.Equal(t, result.Answers[0].AnswersQuestion, result.Answers[1].AnswersQuestion)
}

func TestMonotonicAcrossBatches(t *testing.T) {
	ctx := &types.KnowledgeContext{}
	var last string
	for batch := 0; batch < 3; batch++ {
		result := &types.AnalysisResult{Questions: []types.Question{q("q_1", ""), q("q_2", "")}}
		MapAndUpdate(result, ctx)
		for _, got := range result.Questions {
			require.Greater(t, got.ID, last)
			last = got.ID
		}
		ctx.MaxQuestionID += 2
	}
	assert.Equal(t, "q_0006", last)
}

func TestEmptyResult(t *testing.T) {
	m := MapAndUpdate(&types.AnalysisResult{}, &types.KnowledgeContext{MaxQuestionID: 5})
	assert.Empty(t, m)
}
