// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package analyze turns raw batch text into a single AnalysisResult. It
// chunks oversized input, calls the analysis collaborator once per chunk,
// folds the chunk results through the merge collaborator and finally drops
// entities that lack mandatory metadata.
package analyze

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/kb-builder/internal/ai"
	"github.com/pdiddy/kb-builder/internal/entity"
	"github.com/pdiddy/kb-builder/internal/logging"
	"github.com/pdiddy/kb-builder/pkg/types"
)

const defaultWorkers = 4

// ChunkAnalyzer drives the analysis and merge collaborators.
type ChunkAnalyzer struct {
	analyzer ai.Analyzer
	merger   ai.Merger
	cfg      types.ChunkConfig
	log      *logging.Logger
}

// New returns a ChunkAnalyzer. A nil merger defaults to ai.ConcatMerger.
func New(analyzer ai.Analyzer, merger ai.Merger, cfg types.ChunkConfig, log *logging.Logger) *ChunkAnalyzer {
	if merger == nil {
		merger = ai.ConcatMerger{}
	}
	return &ChunkAnalyzer{analyzer: analyzer, merger: merger, cfg: cfg, log: logging.OrNop(log)}
}

// Chunks splits text with the configured chunk size.
func (c *ChunkAnalyzer) Chunks(text string) []string {
	return Chunks(text, c.cfg.MaxChars)
}

// AnalyzeChunk makes one analysis call. Entities come back stamped with
// sourceName and with dates truncated to the day.
func (c *ChunkAnalyzer) AnalyzeChunk(ctx context.Context, text, sourceName string, kctx *types.KnowledgeContext, instructions string) (*types.AnalysisResult, error) {
	result, err := c.analyzer.Analyze(ctx, text, sourceName, kctx, instructions)
	if err != nil {
		return nil, asCollaboratorError("analyzing chunk", err)
	}
	if result == nil {
		result = &types.AnalysisResult{}
	}
	normalize(result, sourceName)
	return result, nil
}

// AnalyzeAndMerge analyzes chunks and merges the results. Chunks are
// processed in input order unless parallel analysis is enabled and the
// merger is commutative; either way results reach the merger in input order.
func (c *ChunkAnalyzer) AnalyzeAndMerge(ctx context.Context, chunks []string, sourceName string, kctx *types.KnowledgeContext, instructions string) (*types.AnalysisResult, error) {
	switch len(chunks) {
	case 0:
		return &types.AnalysisResult{}, nil
	case 1:
		return c.AnalyzeChunk(ctx, chunks[0], sourceName, kctx, instructions)
	}

	results := make([]*types.AnalysisResult, len(chunks))
	if c.cfg.Parallel && ai.IsCommutative(c.merger) {
		workers := c.cfg.Workers
		if workers <= 0 {
			workers = defaultWorkers
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for i, chunk := range chunks {
			g.Go(func() error {
				r, err := c.AnalyzeChunk(gctx, chunk, sourceName, kctx, instructions)
				if err != nil {
					return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
				}
				results[i] = r
				c.log.Info("analyzed chunk", "chunk", i+1, "of", len(chunks), "entities", r.Len())
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, chunk := range chunks {
			r, err := c.AnalyzeChunk(ctx, chunk, sourceName, kctx, instructions)
			if err != nil {
				return nil, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
			}
			results[i] = r
			c.log.Info("analyzed chunk", "chunk", i+1, "of", len(chunks), "entities", r.Len())
		}
	}

	merged, err := c.merger.Merge(ctx, results)
	if err != nil {
		return nil, asCollaboratorError("merging chunk results", err)
	}
	if merged == nil {
		merged = &types.AnalysisResult{}
	}
	normalize(merged, sourceName)
	return merged, nil
}

func normalize(r *types.AnalysisResult, sourceName string) {
	r.SetSource(sourceName)
	for i := range r.Questions {
		normalizeEntity(&r.Questions[i].Entity)
	}
	for i := range r.Answers {
		normalizeEntity(&r.Answers[i].Entity)
		if q := r.Answers[i].Quality; q < 0 || q > 1 {
			r.Answers[i].Quality = min(max(q, 0), 1)
		}
	}
	for i := range r.Notes {
		normalizeEntity(&r.Notes[i].Entity)
	}
}

func normalizeEntity(e *types.Entity) {
	e.Author = strings.TrimSpace(e.Author)
	e.Area = strings.TrimSpace(e.Area)
	e.Date = entity.TruncateDate(e.Date)
}

func asCollaboratorError(op string, err error) error {
	if errors.Is(err, types.ErrCollaborator) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return types.CollaboratorError(op, err)
}
