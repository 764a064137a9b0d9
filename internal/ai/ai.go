// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ai defines the collaborators that understand content: analysis,
// cross-chunk merging, question matching and description writing. The
// builder treats them as opaque and fallible; ClaudeBackend implements all
// four over the Claude Messages API and ConcatMerger merges locally.
package ai

import (
	"context"

	"github.com/pdiddy/kb-builder/pkg/types"
)

// Analyzer turns one chunk of raw text into questions, answers and notes
// carrying temporary IDs (q_1, a_1, n_1) unique within the call.
type Analyzer interface {
	Analyze(ctx context.Context, text, sourceName string, kctx *types.KnowledgeContext, instructions string) (*types.AnalysisResult, error)
}

// Merger folds chunk-level results into one batch-level result and is
// responsible for coalescing entities that several chunks reported.
type Merger interface {
	Merge(ctx context.Context, results []*types.AnalysisResult) (*types.AnalysisResult, error)
}

// Commutative is implemented by mergers whose output semantics do not depend
// on input order. Only such mergers allow chunks to be analyzed in parallel.
type Commutative interface {
	Commutative() bool
}

// Matcher proposes links between unlinked answers or notes and existing questions.
type Matcher interface {
	Match(ctx context.Context, candidates []types.QuestionSummary, unlinked []types.PendingItem, instructions string) ([]types.Match, error)
}

// DescriptionKind names the artifact a description is written for.
type DescriptionKind string

const (
	DescribePerson DescriptionKind = "person"
	DescribeTopic  DescriptionKind = "topic"
	DescribeArea   DescriptionKind = "area"
)

// Describer writes the narrative description of a person, topic or area
// from the assembled content of its entities.
type Describer interface {
	Describe(ctx context.Context, kind DescriptionKind, id, content, instructions string) (string, error)
}

// IsCommutative reports whether m declares order-insensitive output.
func IsCommutative(m Merger) bool {
	c, ok := m.(Commutative)
	return ok && c.Commutative()
}
